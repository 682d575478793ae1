package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLASSIFIER_TIMEOUT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("SIGNED_URL_TTL", "")
	t.Setenv("UPLOAD_MAX_PARALLEL", "")

	cfg := Load()
	if cfg.ClassifierTimeout != 30*time.Second {
		t.Fatalf("expected default classifier timeout 30s, got %s", cfg.ClassifierTimeout)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("expected default storage backend local, got %q", cfg.StorageBackend)
	}
	if cfg.SignedURLTTL != 15*time.Minute {
		t.Fatalf("expected default signed url ttl 15m, got %s", cfg.SignedURLTTL)
	}
	if cfg.UploadMaxParallel != 4 {
		t.Fatalf("expected default upload parallelism 4, got %d", cfg.UploadMaxParallel)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CLASSIFIER_TIMEOUT", "45")
	t.Setenv("STORAGE_TIMEOUT", "90s")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("CLASSIFIER_PDF_ENABLED", "true")
	t.Setenv("API_RATE_LIMIT_RPS", "7.5")
	t.Setenv("UPLOAD_MAX_REQUEST_MB", "8")

	cfg := Load()
	if cfg.ClassifierTimeout != 45*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.ClassifierTimeout)
	}
	if cfg.StorageTimeout != 90*time.Second {
		t.Fatalf("expected storage timeout 90s, got %s", cfg.StorageTimeout)
	}
	if cfg.StorageBackend != "s3" {
		t.Fatalf("expected lowercased backend, got %q", cfg.StorageBackend)
	}
	if !cfg.ClassifierPDFEnabled {
		t.Fatal("expected pdf classification enabled")
	}
	if cfg.APIRateLimitRPS != 7.5 {
		t.Fatalf("expected rps 7.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.UploadMaxRequestSize != 8<<20 {
		t.Fatalf("expected 8 MiB request cap, got %d", cfg.UploadMaxRequestSize)
	}
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CLASSIFIER_TIMEOUT", "soon")
	t.Setenv("UPLOAD_MAX_PARALLEL", "many")

	cfg := Load()
	if cfg.ClassifierTimeout != 30*time.Second || cfg.UploadMaxParallel != 4 {
		t.Fatalf("expected fallbacks, got %s / %d", cfg.ClassifierTimeout, cfg.UploadMaxParallel)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("STORAGE_SIGNING_KEY", "short")
	cfg := Load()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STORAGE_SIGNING_KEY") {
		t.Fatalf("expected signing key error, got %v", err)
	}

	cfg.StorageSigningKey = strings.Repeat("k", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.StorageBackend = "s3"
	cfg.S3Bucket = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "S3_BUCKET") {
		t.Fatalf("expected bucket error, got %v", err)
	}

	cfg.StorageBackend = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
