package s3store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/infrastructure/resilience"
)

type objectAPIFake struct {
	deleted     []string
	deleteErr   error
	calls       int
	failures    int
	failWith    error
	lastKey     string
	lastType    string
	lastPayload string
}

func (f *objectAPIFake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	f.lastKey = aws.ToString(in.Key)
	f.lastType = aws.ToString(in.ContentType)
	body, _ := io.ReadAll(in.Body)
	f.lastPayload = string(body)
	if f.calls <= f.failures {
		return nil, f.failWith
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *objectAPIFake) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type presignFake struct {
	lastKey string
	lastTTL time.Duration
}

func (f *presignFake) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.lastKey = aws.ToString(in.Key)
	f.lastTTL = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.test/" + f.lastKey + "?X-Amz-Signature=sig",
		Method: http.MethodGet,
	}, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newTestStore(api *objectAPIFake, presigner *presignFake, executor *resilience.Executor) *Store {
	return &Store{
		client:    api,
		presigner: presigner,
		bucket:    "loan-docs",
		prefix:    "intake",
		executor:  executor,
	}
}

func TestPutUsesPrefixedKeyAndContentType(t *testing.T) {
	api := &objectAPIFake{}
	store := newTestStore(api, &presignFake{}, nil)

	if err := store.Put(context.Background(), "leads/l1/pan/1-abc.pdf", []byte("%PDF"), "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.lastKey != "intake/leads/l1/pan/1-abc.pdf" {
		t.Fatalf("key = %q", api.lastKey)
	}
	if api.lastType != "application/pdf" || api.lastPayload != "%PDF" {
		t.Fatalf("unexpected put: type=%q payload=%q", api.lastType, api.lastPayload)
	}
}

func TestPutKeyCannotEscapePrefix(t *testing.T) {
	api := &objectAPIFake{}
	store := newTestStore(api, &presignFake{}, nil)

	if err := store.Put(context.Background(), "../../etc/passwd", []byte("x"), ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.lastKey != "intake/etc/passwd" {
		t.Fatalf("key = %q", api.lastKey)
	}
}

func TestPutRetriesTransientFailures(t *testing.T) {
	cfg := resilience.DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	cfg.BreakerEnabled = false
	executor := resilience.NewExecutor(cfg, nil)

	api := &objectAPIFake{failures: 1, failWith: timeoutErr{}}
	store := newTestStore(api, &presignFake{}, executor)

	if err := store.Put(context.Background(), "a.png", []byte("body"), "image/png"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if api.calls != 2 {
		t.Fatalf("calls = %d, want 2", api.calls)
	}
	if api.lastPayload != "body" {
		t.Fatalf("body not rewound on retry: %q", api.lastPayload)
	}
}

func TestPutWrapsExhaustedTransientAsTemporary(t *testing.T) {
	cfg := resilience.SingleShot(false)
	executor := resilience.NewExecutor(cfg, nil)

	api := &objectAPIFake{failures: 5, failWith: timeoutErr{}}
	store := newTestStore(api, &presignFake{}, executor)

	err := store.Put(context.Background(), "a.png", []byte("body"), "image/png")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestPutPermanentFailureIsNotRetried(t *testing.T) {
	cfg := resilience.DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.BreakerEnabled = false
	executor := resilience.NewExecutor(cfg, nil)

	api := &objectAPIFake{failures: 5, failWith: errors.New("AccessDenied")}
	store := newTestStore(api, &presignFake{}, executor)

	err := store.Put(context.Background(), "a.png", []byte("body"), "image/png")
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("calls = %d, want 1", api.calls)
	}
}

func TestSignedURLPresignsWithTTL(t *testing.T) {
	presigner := &presignFake{}
	store := newTestStore(&objectAPIFake{}, presigner, nil)

	url, err := store.SignedURL(context.Background(), "leads/l1/pan/1-abc.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	if presigner.lastKey != "intake/leads/l1/pan/1-abc.pdf" || presigner.lastTTL != 15*time.Minute {
		t.Fatalf("presign key=%q ttl=%s", presigner.lastKey, presigner.lastTTL)
	}
	if !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("url = %q", url)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(s3.New(s3.Options{Region: "us-east-1"}), " ", "", nil); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestDeleteUsesPrefixedKey(t *testing.T) {
	api := &objectAPIFake{}
	store := newTestStore(api, &presignFake{}, nil)

	if err := store.Delete(context.Background(), "/leads/l1/pan/1-abc.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "loan-docs/intake/leads/l1/pan/1-abc.pdf" {
		t.Fatalf("unexpected deletes %v", api.deleted)
	}

	api.deleteErr = errors.New("access denied")
	if err := store.Delete(context.Background(), "leads/l1/pan/1-abc.pdf"); err == nil {
		t.Fatalf("expected delete error")
	}
}
