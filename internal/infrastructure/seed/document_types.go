// Package seed loads document type reference data from YAML and syncs it
// into the repository.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/ports"
)

//go:embed document_types.yaml
var defaultDocumentTypes []byte

// DefaultDocumentTypes returns the built-in document type catalogue.
func DefaultDocumentTypes() ([]domain.DocumentType, error) {
	return LoadDocumentTypes(bytes.NewReader(defaultDocumentTypes))
}

// LoadDocumentTypes decodes and validates a YAML list of document types.
// Unknown keys are rejected so typos do not silently drop a limit.
func LoadDocumentTypes(r io.Reader) ([]domain.DocumentType, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var types []domain.DocumentType
	if err := dec.Decode(&types); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load document types", errors.New("file is empty"))
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "load document types", err)
	}

	var errs []error
	seen := make(map[string]struct{}, len(types))
	for i := range types {
		t := &types[i]
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		for j, f := range t.AcceptedFormats {
			t.AcceptedFormats[j] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		}

		label := t.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("entry %s: id is required", label))
		case t.Name == "":
			errs = append(errs, fmt.Errorf("entry %s: name is required", label))
		case !t.Category.Valid():
			errs = append(errs, fmt.Errorf("entry %s: unknown category %q", label, t.Category))
		case len(t.AcceptedFormats) == 0:
			errs = append(errs, fmt.Errorf("entry %s: accepted_formats is empty", label))
		case t.MaxSizePDF <= 0 || t.MaxSizeImage <= 0:
			errs = append(errs, fmt.Errorf("entry %s: size limits must be positive", label))
		}
		if _, dup := seen[t.ID]; dup && t.ID != "" {
			errs = append(errs, fmt.Errorf("entry %s: duplicate id", label))
		}
		seen[t.ID] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate document types", err)
	}
	return types, nil
}

// SyncDocumentTypes upserts every type. Existing types not in the list are
// left alone because records may still reference them.
func SyncDocumentTypes(ctx context.Context, repo ports.DocumentTypeRepository, types []domain.DocumentType) (int, error) {
	for i := range types {
		if err := repo.Upsert(ctx, &types[i]); err != nil {
			return i, fmt.Errorf("upsert document type %s: %w", types[i].ID, err)
		}
	}
	return len(types), nil
}
