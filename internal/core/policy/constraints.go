// Package policy holds the pure intake rules: file constraints, document type
// alias resolution and the classification decision engine. Nothing here does
// I/O.
package policy

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const (
	KB int64 = 1024
	MB       = 1024 * KB

	// DefaultMaxFileSize applies when a document type carries no explicit
	// ceiling for the file's kind.
	DefaultMaxFileSize = 10 * MB
)

type ConstraintRule string

const (
	RuleBlockedExtension  ConstraintRule = "blocked_extension"
	RuleUnsupportedFormat ConstraintRule = "unsupported_format"
	RuleFileTooLarge      ConstraintRule = "file_too_large"
	RuleEmptyFile         ConstraintRule = "empty_file"
)

// ConstraintError reports the first violated file rule. Message is safe to
// show to the applicant as-is.
type ConstraintError struct {
	Rule    ConstraintRule
	Message string
}

func (e *ConstraintError) Error() string { return e.Message }

var blockedExtensions = map[string]struct{}{
	"exe": {}, "bat": {}, "cmd": {}, "com": {}, "msi": {}, "scr": {},
	"ps1": {}, "psm1": {}, "sh": {}, "bash": {}, "js": {}, "mjs": {},
	"vbs": {}, "vbe": {}, "wsf": {}, "jar": {}, "apk": {}, "app": {},
	"dll": {}, "so": {}, "dmg": {}, "deb": {}, "rpm": {}, "php": {},
	"py": {}, "pl": {}, "rb": {}, "hta": {}, "lnk": {}, "reg": {},
}

var mimeExtensions = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/heic":      "heic",
}

// CheckFile validates a candidate file against a document type's format and
// size policy. It returns nil or a *ConstraintError.
func CheckFile(name string, size int64, mimeType string, docType domain.DocumentType) error {
	ext := FileExtension(name, mimeType)

	if _, blocked := blockedExtensions[ext]; blocked {
		return &ConstraintError{
			Rule:    RuleBlockedExtension,
			Message: fmt.Sprintf("Executable and script files (.%s) are blocked for security reasons.", ext),
		}
	}

	if !acceptsFormat(docType.AcceptedFormats, ext) {
		shown := ext
		if shown == "" {
			shown = "without extension"
		} else {
			shown = "." + shown
		}
		return &ConstraintError{
			Rule: RuleUnsupportedFormat,
			Message: fmt.Sprintf("Unsupported file format (%s) for %s. Accepted formats: %s.",
				shown, docType.Name, formatList(docType.AcceptedFormats)),
		}
	}

	if size <= 0 {
		return &ConstraintError{Rule: RuleEmptyFile, Message: "The selected file is empty."}
	}

	ceiling, kind := SizeCeiling(ext, docType)
	if size > ceiling {
		return &ConstraintError{
			Rule: RuleFileTooLarge,
			Message: fmt.Sprintf("File is too large (%s). Maximum size for %s files is %s.",
				FormatBytes(size), kind, FormatBytes(ceiling)),
		}
	}
	return nil
}

// SizeCeiling returns the byte limit for ext and a label for the file kind.
func SizeCeiling(ext string, docType domain.DocumentType) (int64, string) {
	if ext == "pdf" {
		if docType.MaxSizePDF > 0 {
			return docType.MaxSizePDF, "PDF"
		}
		return DefaultMaxFileSize, "PDF"
	}
	if docType.MaxSizeImage > 0 {
		return docType.MaxSizeImage, "image"
	}
	return DefaultMaxFileSize, "image"
}

// FileExtension returns the lowercase extension of name without the dot,
// falling back to the declared media type when the name has none.
func FileExtension(name, mimeType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(strings.TrimSpace(name))), ".")
	if ext != "" {
		return canonicalFormat(ext)
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mimeExtensions[mt]
}

// IsImageExtension reports whether ext names a raster image format the
// vision classifier accepts.
func IsImageExtension(ext string) bool {
	switch canonicalFormat(ext) {
	case "jpg", "png", "webp", "heic", "gif", "bmp", "tiff":
		return true
	default:
		return false
	}
}

func acceptsFormat(accepted []string, ext string) bool {
	if ext == "" {
		return false
	}
	for _, f := range accepted {
		if canonicalFormat(f) == ext {
			return true
		}
	}
	return false
}

func canonicalFormat(f string) string {
	f = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
	if f == "jpeg" {
		return "jpg"
	}
	return f
}

func formatList(formats []string) string {
	if len(formats) == 0 {
		return "none"
	}
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(f), ".")))
	}
	return strings.Join(out, ", ")
}

// FormatBytes renders n in human units, e.g. 5 MB or 500 KB.
func FormatBytes(n int64) string {
	switch {
	case n >= MB:
		return trimFloat(float64(n)/float64(MB)) + " MB"
	case n >= KB:
		return trimFloat(float64(n)/float64(KB)) + " KB"
	default:
		return strconv.FormatInt(n, 10) + " bytes"
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(float64(int64(v*10+0.5))/10, 'f', -1, 64)
}
