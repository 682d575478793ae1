package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

var panCard = domain.DocumentType{
	ID:              "pan_card",
	Name:            "PAN Card",
	AcceptedFormats: []string{"pdf", "jpg", "jpeg", "png"},
	MaxSizePDF:      5 * MB,
	MaxSizeImage:    2 * MB,
}

func constraintRule(t *testing.T, err error) ConstraintRule {
	t.Helper()
	var cerr *ConstraintError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConstraintError, got %v", err)
	}
	return cerr.Rule
}

func TestCheckFileBlocksExecutablesRegardlessOfDeclaredType(t *testing.T) {
	for _, name := range []string{"pan.exe", "PAN.EXE", "scan.pdf.bat", "run.sh", "macro.js"} {
		err := CheckFile(name, 1024, "application/pdf", panCard)
		if rule := constraintRule(t, err); rule != RuleBlockedExtension {
			t.Fatalf("%s: expected blocked_extension, got %s", name, rule)
		}
		if !strings.Contains(err.Error(), "security") {
			t.Fatalf("%s: expected security wording, got %q", name, err.Error())
		}
	}
}

func TestCheckFileBlocksEvenWhenTypeAcceptsExtension(t *testing.T) {
	permissive := panCard
	permissive.AcceptedFormats = []string{"exe", "pdf"}
	if rule := constraintRule(t, CheckFile("file.exe", 10, "", permissive)); rule != RuleBlockedExtension {
		t.Fatalf("expected blocked_extension, got %s", rule)
	}
}

func TestCheckFileRejectsUnsupportedFormat(t *testing.T) {
	err := CheckFile("pan.docx", 1024, "", panCard)
	if rule := constraintRule(t, err); rule != RuleUnsupportedFormat {
		t.Fatalf("expected unsupported_format, got %s", rule)
	}
	if !strings.Contains(err.Error(), "PDF, JPG, JPEG, PNG") {
		t.Fatalf("expected accepted formats listed, got %q", err.Error())
	}
}

func TestCheckFileAppliesPerKindCeiling(t *testing.T) {
	if err := CheckFile("pan.pdf", 4*MB, "application/pdf", panCard); err != nil {
		t.Fatalf("expected 4 MB pdf to pass, got %v", err)
	}

	err := CheckFile("pan.jpg", 3*MB, "image/jpeg", panCard)
	if rule := constraintRule(t, err); rule != RuleFileTooLarge {
		t.Fatalf("expected file_too_large, got %s", rule)
	}
	if !strings.Contains(err.Error(), "2 MB") || !strings.Contains(err.Error(), "image") {
		t.Fatalf("expected image limit in message, got %q", err.Error())
	}

	err = CheckFile("pan.pdf", 5*MB+1, "application/pdf", panCard)
	if rule := constraintRule(t, err); rule != RuleFileTooLarge {
		t.Fatalf("expected file_too_large, got %s", rule)
	}
	if !strings.Contains(err.Error(), "Maximum size for PDF files is 5 MB") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCheckFileJPEGAlias(t *testing.T) {
	onlyJPEG := panCard
	onlyJPEG.AcceptedFormats = []string{".jpeg"}
	if err := CheckFile("photo.JPG", 100, "image/jpeg", onlyJPEG); err != nil {
		t.Fatalf("expected jpg to satisfy jpeg, got %v", err)
	}
}

func TestCheckFileFallsBackToMimeType(t *testing.T) {
	if err := CheckFile("scan", 100, "application/pdf", panCard); err != nil {
		t.Fatalf("expected extension from mime type, got %v", err)
	}
}

func TestCheckFileRejectsEmptyFile(t *testing.T) {
	if rule := constraintRule(t, CheckFile("pan.pdf", 0, "application/pdf", panCard)); rule != RuleEmptyFile {
		t.Fatalf("expected empty_file, got %s", rule)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:             "512 bytes",
		500 * KB:        "500 KB",
		5 * MB:          "5 MB",
		MB + MB/2:       "1.5 MB",
		10*MB + 1024*50: "10 MB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
