package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const tokenName = "blob"

// Storage keeps uploaded files on the local filesystem and hands out
// signed, expiring download links served by the API itself.
type Storage struct {
	basePath  string
	publicURL string
	signer    *securecookie.SecureCookie
	now       func() time.Time
}

type signedPath struct {
	Path    string `json:"p"`
	Expires int64  `json:"e"`
}

func New(basePath, publicURL string, signingKey []byte) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("storage signing key must be at least 32 bytes, got %d", len(signingKey))
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	signer := securecookie.New(signingKey, nil)
	signer.SetSerializer(securecookie.JSONEncoder{})
	// Expiry travels in the payload.
	signer.MaxAge(0)

	return &Storage{
		basePath:  basePath,
		publicURL: strings.TrimRight(publicURL, "/"),
		signer:    signer,
		now:       time.Now,
	}, nil
}

// Put writes body to path atomically: readers never observe a partial file.
func (s *Storage) Put(ctx context.Context, path string, body []byte, _ string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(path); err != nil {
		return "", err
	}
	token, err := s.signer.Encode(tokenName, signedPath{Path: path, Expires: s.now().Add(ttl).Unix()})
	if err != nil {
		return "", fmt.Errorf("sign path: %w", err)
	}
	return s.publicURL + "/v1/files/" + url.PathEscape(token), nil
}

// Resolve validates a download token and returns the object path it grants.
func (s *Storage) Resolve(token string) (string, error) {
	var payload signedPath
	if err := s.signer.Decode(tokenName, token, &payload); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve download token", err)
	}
	if s.now().Unix() > payload.Expires {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve download token", errors.New("link expired"))
	}
	return payload.Path, nil
}

func (s *Storage) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path", fmt.Errorf("invalid path %q", path))
	}
	return filepath.Join(s.basePath, clean), nil
}
