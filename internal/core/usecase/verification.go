package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/ports"
)

const msgRejectionReasonRequired = "Please provide a reason for rejecting this document."

type VerificationUseCase struct {
	records    ports.DocumentRecordRepository
	publisher  ports.ChangePublisher
	subscriber ports.ChangeSubscriber
	metrics    ports.IntakeMetrics
	logger     *slog.Logger

	now func() time.Time
}

func NewVerificationUseCase(
	records ports.DocumentRecordRepository,
	publisher ports.ChangePublisher,
	subscriber ports.ChangeSubscriber,
	metrics ports.IntakeMetrics,
	logger *slog.Logger,
) *VerificationUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &VerificationUseCase{
		records:    records,
		publisher:  publisher,
		subscriber: subscriber,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ListPending returns documents awaiting review, newest upload first.
func (uc *VerificationUseCase) ListPending(ctx context.Context) ([]domain.PendingDocument, error) {
	pending, err := uc.records.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	return pending, nil
}

// Verify marks a pending document as verified. Verifying an already
// verified document returns it unchanged.
func (uc *VerificationUseCase) Verify(ctx context.Context, documentID, reviewerID, notes string) (*domain.DocumentRecord, error) {
	documentID, reviewerID, err := reviewTarget(documentID, reviewerID, "verify document")
	if err != nil {
		return nil, err
	}
	ctx, span := startReviewSpan(ctx, "verification.verify", documentID, reviewerID)
	defer span.End()

	var notesPtr *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		notesPtr = &trimmed
	}

	record, err := uc.records.MarkVerified(ctx, documentID, reviewerID, notesPtr, uc.now())
	if err != nil {
		if !domain.IsKind(err, domain.ErrConflict) {
			return nil, uc.reviewFailed(span, "verify", fmt.Errorf("mark verified: %w", err))
		}
		current, getErr := uc.records.GetByID(ctx, documentID)
		if getErr != nil {
			return nil, uc.reviewFailed(span, "verify", fmt.Errorf("load document: %w", getErr))
		}
		if current.VerificationStatus == domain.VerificationVerified {
			uc.metrics.RecordReview("verify", "noop")
			return current, nil
		}
		return nil, uc.reviewFailed(span, "verify", domain.WrapError(
			domain.ErrConflict,
			"verify document",
			fmt.Errorf("document %s is %s", documentID, current.VerificationStatus),
		))
	}

	uc.metrics.RecordReview("verify", "ok")
	uc.logger.Info("document_verified",
		"document_id", record.ID,
		"lead_id", record.LeadID,
		"reviewer_id", reviewerID,
	)
	uc.publish(ctx, domain.ChangeEvent{
		Kind:       domain.ChangeDocumentVerified,
		DocumentID: record.ID,
		LeadID:     record.LeadID,
		ActorID:    reviewerID,
		OccurredAt: derefTime(record.VerifiedAt, uc.now()),
	})
	return record, nil
}

// Reject marks a pending document as rejected. A reason is mandatory.
// Rejecting an already rejected document replaces its notes.
func (uc *VerificationUseCase) Reject(ctx context.Context, documentID, reviewerID, notes string) (*domain.DocumentRecord, error) {
	documentID, reviewerID, err := reviewTarget(documentID, reviewerID, "reject document")
	if err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, &domain.UserError{
			Message:  msgRejectionReasonRequired,
			Category: domain.FailureInvalidFile,
			Err:      domain.WrapError(domain.ErrInvalidInput, "reject document", errors.New("rejection notes are required")),
		}
	}

	ctx, span := startReviewSpan(ctx, "verification.reject", documentID, reviewerID)
	defer span.End()

	record, err := uc.records.MarkRejected(ctx, documentID, reviewerID, notes, uc.now())
	if err != nil {
		if !domain.IsKind(err, domain.ErrConflict) {
			return nil, uc.reviewFailed(span, "reject", fmt.Errorf("mark rejected: %w", err))
		}
		current, getErr := uc.records.GetByID(ctx, documentID)
		if getErr != nil {
			return nil, uc.reviewFailed(span, "reject", fmt.Errorf("load document: %w", getErr))
		}
		return nil, uc.reviewFailed(span, "reject", domain.WrapError(
			domain.ErrConflict,
			"reject document",
			fmt.Errorf("document %s is %s", documentID, current.VerificationStatus),
		))
	}

	uc.metrics.RecordReview("reject", "ok")
	uc.logger.Info("document_rejected",
		"document_id", record.ID,
		"lead_id", record.LeadID,
		"reviewer_id", reviewerID,
	)
	uc.publish(ctx, domain.ChangeEvent{
		Kind:       domain.ChangeDocumentRejected,
		DocumentID: record.ID,
		LeadID:     record.LeadID,
		ActorID:    reviewerID,
		OccurredAt: derefTime(record.VerifiedAt, uc.now()),
	})
	return record, nil
}

// Watch delivers change events to fn until ctx is cancelled.
func (uc *VerificationUseCase) Watch(ctx context.Context, fn func(context.Context, domain.ChangeEvent) error) error {
	if uc.subscriber == nil {
		return domain.WrapError(domain.ErrTemporary, "watch verification queue", errors.New("change feed is not configured"))
	}
	if err := uc.subscriber.Subscribe(ctx, fn); err != nil {
		return fmt.Errorf("subscribe to change feed: %w", err)
	}
	return nil
}

func (uc *VerificationUseCase) reviewFailed(span trace.Span, action string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, action+" failed")
	result := "error"
	if domain.IsKind(err, domain.ErrConflict) {
		result = "conflict"
	} else if domain.IsKind(err, domain.ErrDocumentNotFound) {
		result = "not_found"
	}
	uc.metrics.RecordReview(action, result)
	return err
}

func (uc *VerificationUseCase) publish(ctx context.Context, event domain.ChangeEvent) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn("change_event_publish_failed",
			"kind", event.Kind,
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}

func reviewTarget(documentID, reviewerID, op string) (string, string, error) {
	documentID = strings.TrimSpace(documentID)
	reviewerID = strings.TrimSpace(reviewerID)
	if documentID == "" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, op, errors.New("document id is required"))
	}
	if reviewerID == "" {
		return "", "", domain.WrapError(domain.ErrInvalidInput, op, errors.New("reviewer id is required"))
	}
	return documentID, reviewerID, nil
}

func startReviewSpan(ctx context.Context, name, documentID, reviewerID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.String("review.reviewer_id", reviewerID),
	))
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
