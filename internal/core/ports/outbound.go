package ports

import (
	"context"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

// DocumentTypeRepository reads and maintains document type reference data.
type DocumentTypeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentType, error)
	List(ctx context.Context) ([]domain.DocumentType, error)
	Upsert(ctx context.Context, docType *domain.DocumentType) error
}

// DocumentRecordRepository persists uploaded document records.
//
// MarkVerified and MarkRejected are single conditional updates. When no row
// satisfies the condition they return an error of kind domain.ErrConflict and
// callers re-read the record to tell a missing id from a finished review.
type DocumentRecordRepository interface {
	Create(ctx context.Context, record *domain.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	ListPending(ctx context.Context) ([]domain.PendingDocument, error)
	MarkVerified(ctx context.Context, id, reviewerID string, notes *string, at time.Time) (*domain.DocumentRecord, error)
	MarkRejected(ctx context.Context, id, reviewerID, notes string, at time.Time) (*domain.DocumentRecord, error)
	ListRecent(ctx context.Context, query domain.ActivityQuery) ([]domain.DocumentRecord, error)
}

// StatusHistoryRepository reads the lead status log.
type StatusHistoryRepository interface {
	ListRecent(ctx context.Context, query domain.ActivityQuery) ([]domain.StatusHistoryEntry, error)
}

// ActorDirectory resolves user ids to display identities.
type ActorDirectory interface {
	Lookup(ctx context.Context, ids []string) (map[string]domain.Actor, error)
}

// BlobStore stores uploaded file bodies. Delete of a missing path succeeds.
type BlobStore interface {
	Put(ctx context.Context, path string, body []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// DocumentClassifier asks the vision service what a file is.
type DocumentClassifier interface {
	Classify(ctx context.Context, req domain.ClassifyRequest) (*domain.ClassificationResult, error)
}

// FileInspector checks that a file body is structurally readable.
type FileInspector interface {
	Inspect(ctx context.Context, mimeType string, body []byte) error
}

// ChangePublisher announces document record changes.
type ChangePublisher interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// ChangeSubscriber delivers change events until ctx is cancelled.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, handler func(context.Context, domain.ChangeEvent) error) error
}

// IntakeMetrics records upload and review outcomes.
type IntakeMetrics interface {
	RecordUpload(state domain.UploadState, category domain.ErrorCategory)
	RecordVerdict(status domain.ValidationStatus)
	ObserveClassifier(outcome string, duration time.Duration)
	ObserveStorage(outcome string, duration time.Duration)
	RecordReview(action, result string)
}

// QueueGauges tracks the shape of the verification queue over time.
type QueueGauges interface {
	SetPending(depth int, oldestAge time.Duration)
	RecordChangeEvent(kind domain.ChangeKind)
}
