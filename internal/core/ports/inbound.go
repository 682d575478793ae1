package ports

import (
	"context"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

// DocumentUploader is the inbound contract for per-file upload orchestration.
type DocumentUploader interface {
	Upload(ctx context.Context, candidate domain.UploadCandidate) (*domain.UploadOutcome, error)
	Override(ctx context.Context, correlationID string, candidate domain.UploadCandidate) (*domain.UploadOutcome, error)
	UploadBatch(ctx context.Context, candidates []domain.UploadCandidate) []domain.UploadOutcome
	InFlight() []domain.UploadEntry
	Remove(correlationID string) bool
	DocumentTypes(ctx context.Context) ([]domain.DocumentType, error)
	SignedURL(ctx context.Context, documentID string) (string, error)
}

// VerificationQueue is the inbound contract for the staff review queue.
type VerificationQueue interface {
	ListPending(ctx context.Context) ([]domain.PendingDocument, error)
	Verify(ctx context.Context, documentID, reviewerID, notes string) (*domain.DocumentRecord, error)
	Reject(ctx context.Context, documentID, reviewerID, notes string) (*domain.DocumentRecord, error)
	Watch(ctx context.Context, fn func(context.Context, domain.ChangeEvent) error) error
}

// ActivityFeed is the inbound read model for the merged activity timeline.
type ActivityFeed interface {
	Recent(ctx context.Context, query domain.ActivityQuery) ([]domain.ActivityEvent, error)
}
