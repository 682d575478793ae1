package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

type uploaderFake struct {
	mu         sync.Mutex
	outcome    *domain.UploadOutcome
	err        error
	candidates []domain.UploadCandidate
	overridden string
	entries    []domain.UploadEntry
	removed    map[string]bool
	types      []domain.DocumentType
	url        string
}

func (f *uploaderFake) Upload(_ context.Context, candidate domain.UploadCandidate) (*domain.UploadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return f.outcome, f.err
}

func (f *uploaderFake) Override(_ context.Context, correlationID string, candidate domain.UploadCandidate) (*domain.UploadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overridden = correlationID
	f.candidates = append(f.candidates, candidate)
	return f.outcome, f.err
}

func (f *uploaderFake) UploadBatch(_ context.Context, candidates []domain.UploadCandidate) []domain.UploadOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.UploadOutcome, len(candidates))
	for i, c := range candidates {
		f.candidates = append(f.candidates, c)
		out[i] = domain.UploadOutcome{Entry: domain.UploadEntry{CorrelationID: c.CorrelationID, Filename: c.Filename, State: domain.UploadCompleted}}
		if strings.HasSuffix(c.Filename, ".exe") {
			out[i].Entry.State = domain.UploadError
			out[i].Err = &domain.UserError{
				Message:  "Executable and script files (.exe) are blocked for security reasons.",
				Category: domain.FailureInvalidFile,
				Err:      domain.ErrInvalidInput,
			}
		}
	}
	return out
}

func (f *uploaderFake) InFlight() []domain.UploadEntry {
	return f.entries
}

func (f *uploaderFake) Remove(correlationID string) bool {
	return f.removed[correlationID]
}

func (f *uploaderFake) DocumentTypes(context.Context) ([]domain.DocumentType, error) {
	return f.types, f.err
}

func (f *uploaderFake) SignedURL(_ context.Context, documentID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url + documentID, nil
}

type queueFake struct {
	pending  []domain.PendingDocument
	record   *domain.DocumentRecord
	err      error
	events   []domain.ChangeEvent
	reviewer string
	notes    string
}

func (f *queueFake) ListPending(context.Context) ([]domain.PendingDocument, error) {
	return f.pending, f.err
}

func (f *queueFake) Verify(_ context.Context, _, reviewerID, notes string) (*domain.DocumentRecord, error) {
	f.reviewer, f.notes = reviewerID, notes
	return f.record, f.err
}

func (f *queueFake) Reject(_ context.Context, _, reviewerID, notes string) (*domain.DocumentRecord, error) {
	f.reviewer, f.notes = reviewerID, notes
	if strings.TrimSpace(notes) == "" {
		return nil, &domain.UserError{
			Message:  "Please provide a reason for rejecting this document.",
			Category: domain.FailureInvalidFile,
			Err:      domain.WrapError(domain.ErrInvalidInput, "reject document", errors.New("rejection notes are required")),
		}
	}
	return f.record, f.err
}

func (f *queueFake) Watch(ctx context.Context, fn func(context.Context, domain.ChangeEvent) error) error {
	for _, ev := range f.events {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

type activityFake struct {
	query  domain.ActivityQuery
	events []domain.ActivityEvent
	err    error
}

func (f *activityFake) Recent(_ context.Context, query domain.ActivityQuery) ([]domain.ActivityEvent, error) {
	f.query = query
	return f.events, f.err
}

type filesFake struct {
	objects map[string]string
}

func (f *filesFake) Resolve(token string) (string, error) {
	if token != "good-token" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve download token", errors.New("bad signature"))
	}
	return "lead-1/doc.pdf", nil
}

func (f *filesFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.objects[path]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open file", fmt.Errorf("missing %s", path))
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func completedOutcome() *domain.UploadOutcome {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.UploadOutcome{
		Entry: domain.UploadEntry{
			CorrelationID: "corr-1",
			State:         domain.UploadCompleted,
			DocumentID:    "doc-1",
			UpdatedAt:     now,
		},
		Document: &domain.DocumentRecord{
			ID:                 "doc-1",
			LeadID:             "lead-1",
			VerificationStatus: domain.VerificationPending,
			UploadedAt:         now,
		},
	}
}
