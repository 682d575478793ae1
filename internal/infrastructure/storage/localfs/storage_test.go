package localfs

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

var testKey = bytes.Repeat([]byte("k"), 32)

func TestPutAndOpenNestedPath(t *testing.T) {
	store, err := New(t.TempDir(), "http://localhost:8080", testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	path := "leads/lead-1/dt-pan/1700000000000-abc.jpg"

	if err := store.Put(ctx, path, []byte("image"), "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rc, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "image" {
		t.Fatalf("unexpected content %q", got)
	}

	if _, err := store.Open(ctx, "leads/missing.jpg"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestPutRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir(), "", testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, path := range []string{"../escape.txt", "/etc/passwd", "", "a/../../b"} {
		if err := store.Put(context.Background(), path, []byte("x"), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("path %q: expected ErrInvalidInput, got %v", path, err)
		}
	}
}

func TestSignedURLRoundTripAndExpiry(t *testing.T) {
	store, err := New(t.TempDir(), "http://files.test/", testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	link, err := store.SignedURL(context.Background(), "leads/l/d/x.pdf", 10*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	if !strings.HasPrefix(link, "http://files.test/v1/files/") {
		t.Fatalf("unexpected link %s", link)
	}
	token, err := url.PathUnescape(strings.TrimPrefix(link, "http://files.test/v1/files/"))
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}

	path, err := store.Resolve(token)
	if err != nil || path != "leads/l/d/x.pdf" {
		t.Fatalf("Resolve() = %q, %v", path, err)
	}

	now = now.Add(11 * time.Minute)
	if _, err := store.Resolve(token); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected expired link error, got %v", err)
	}
	if _, err := store.Resolve(token + "x"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected tampered token error, got %v", err)
	}
}

func TestNewRequiresSigningKey(t *testing.T) {
	if _, err := New(t.TempDir(), "", []byte("short")); err == nil {
		t.Fatalf("expected short key error")
	}
}

func TestDeleteRemovesFileAndIgnoresMissing(t *testing.T) {
	store, err := New(t.TempDir(), "http://localhost:8080", testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	path := "leads/lead-1/dt-pan/1700000000000-abc.jpg"

	if err := store.Put(ctx, path, []byte("image"), "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Open(ctx, path); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected deleted file to be gone, got %v", err)
	}
	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() of missing file error = %v", err)
	}
	if err := store.Delete(ctx, "../outside.jpg"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}
