package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const maxExtractedBytes = 64 * 1024

// Extractor checks that PDF uploads open and have pages, and pulls their
// text layer for classification.
type Extractor struct {
	maxPages int
}

func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

// Inspect fails when body is not a readable PDF with at least one page.
// Non-PDF bodies pass through untouched.
func (e *Extractor) Inspect(ctx context.Context, mimeType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mimeType != "" && mimeType != "application/pdf" && !bytes.HasPrefix(body, []byte("%PDF")) {
		return nil
	}
	reader, err := open(body)
	if err != nil {
		return err
	}
	pages := reader.NumPage()
	if pages == 0 {
		return errors.New("pdf has no pages")
	}
	if e.maxPages > 0 && pages > e.maxPages {
		return fmt.Errorf("pdf has %d pages, limit is %d", pages, e.maxPages)
	}
	return nil
}

// ExtractText returns the plain text of a PDF, or the body itself when it is
// already valid UTF-8 text. Output is capped at 64 KiB.
func (e *Extractor) ExtractText(body []byte) (text string, err error) {
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		if !utf8.Valid(body) {
			return "", errors.New("unsupported binary format")
		}
		return clip(strings.TrimSpace(string(body))), nil
	}

	reader, err := open(body)
	if err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract pdf text: %v", r)
		}
	}()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(plain, maxExtractedBytes))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return clip(strings.TrimSpace(string(raw))), nil
}

// open parses body; the pdf package panics on some malformed inputs.
func open(body []byte) (reader *pdf.Reader, err error) {
	if len(body) == 0 {
		return nil, errors.New("empty pdf")
	}
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("open pdf: %v", r)
		}
	}()
	reader, err = pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return reader, nil
}

func clip(text string) string {
	if len(text) <= maxExtractedBytes {
		return text
	}
	text = text[:maxExtractedBytes]
	for !utf8.ValidString(text) {
		text = text[:len(text)-1]
	}
	return text
}
