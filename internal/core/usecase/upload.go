package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/policy"
	"github.com/kirillkom/loan-intake/internal/core/ports"
)

const tracerName = "github.com/kirillkom/loan-intake/internal/core/usecase"

const (
	msgDocumentTypeMissing = "This document type is no longer available. Please refresh and try again."
	msgCorrupted           = "The file appears to be corrupted or unreadable. Please re-export it and try again."
	msgStorageTimeout      = "Upload timed out. Please check your connection and try again."
	msgStorageNetwork      = "Upload failed because of a network problem. Please try again."
	msgStorageGeneric      = "Upload failed. Please try again."
	msgPersistFailed       = "The file was uploaded but could not be saved. Please try again."
)

type UploadOptions struct {
	ClassifierEnabled bool
	ClassifyPDF       bool
	ClassifierTimeout time.Duration
	StorageTimeout    time.Duration
	SignedURLTTL      time.Duration
	MaxParallel       int
}

type UploadDocumentUseCase struct {
	types      ports.DocumentTypeRepository
	records    ports.DocumentRecordRepository
	blobs      ports.BlobStore
	classifier ports.DocumentClassifier
	inspector  ports.FileInspector
	publisher  ports.ChangePublisher
	metrics    ports.IntakeMetrics
	logger     *slog.Logger
	tracker    *UploadTracker
	opts       UploadOptions

	now        func() time.Time
	pathSuffix func() (string, error)
}

func NewUploadDocumentUseCase(
	types ports.DocumentTypeRepository,
	records ports.DocumentRecordRepository,
	blobs ports.BlobStore,
	classifier ports.DocumentClassifier,
	inspector ports.FileInspector,
	publisher ports.ChangePublisher,
	metrics ports.IntakeMetrics,
	logger *slog.Logger,
	opts UploadOptions,
) *UploadDocumentUseCase {
	if opts.ClassifierTimeout <= 0 {
		opts.ClassifierTimeout = 30 * time.Second
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 60 * time.Second
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 15 * time.Minute
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &UploadDocumentUseCase{
		types:      types,
		records:    records,
		blobs:      blobs,
		classifier: classifier,
		inspector:  inspector,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
		tracker:    NewUploadTracker(),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		pathSuffix: func() (string, error) { return gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 10) },
	}
}

// Upload runs one file through constraint checks, classification, storage
// and persistence. A rejected verdict is not an error: the outcome carries
// the rejected entry and its verdict.
func (uc *UploadDocumentUseCase) Upload(ctx context.Context, candidate domain.UploadCandidate) (*domain.UploadOutcome, error) {
	if err := validateCandidate(&candidate); err != nil {
		return nil, err
	}

	entry, gen, err := uc.tracker.Begin(candidate, uc.now())
	if err != nil {
		return nil, err
	}
	return uc.run(ctx, candidate, entry, gen)
}

// Override uploads a file whose previous attempt was rejected by the
// automated check. Classification is skipped; every other step still runs.
func (uc *UploadDocumentUseCase) Override(ctx context.Context, correlationID string, candidate domain.UploadCandidate) (*domain.UploadOutcome, error) {
	candidate.CorrelationID = strings.TrimSpace(correlationID)
	candidate.SkipValidation = true
	if candidate.CorrelationID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "override upload", errors.New("correlation id is required"))
	}

	previous, ok := uc.tracker.Get(candidate.CorrelationID)
	if ok {
		if candidate.LeadID == "" {
			candidate.LeadID = previous.LeadID
		}
		if candidate.DocumentTypeID == "" {
			candidate.DocumentTypeID = previous.DocumentTypeID
		}
	}
	if err := validateCandidate(&candidate); err != nil {
		return nil, err
	}

	entry, gen, err := uc.tracker.Resume(candidate.CorrelationID, uc.now())
	if err != nil {
		return nil, err
	}
	uc.logger.Info("upload_override_requested",
		"correlation_id", candidate.CorrelationID,
		"lead_id", candidate.LeadID,
		"document_type_id", candidate.DocumentTypeID,
	)
	return uc.run(ctx, candidate, entry, gen)
}

// UploadBatch uploads candidates concurrently. Files are independent: one
// failure never cancels the others and outcomes keep the input order.
func (uc *UploadDocumentUseCase) UploadBatch(ctx context.Context, candidates []domain.UploadCandidate) []domain.UploadOutcome {
	outcomes := make([]domain.UploadOutcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(uc.opts.MaxParallel)
	for i := range candidates {
		candidate := candidates[i]
		g.Go(func() error {
			outcome, err := uc.Upload(ctx, candidate)
			if outcome != nil {
				outcomes[i] = *outcome
			} else {
				outcomes[i] = domain.UploadOutcome{
					Entry: domain.UploadEntry{
						CorrelationID:  candidate.CorrelationID,
						LeadID:         candidate.LeadID,
						DocumentTypeID: candidate.DocumentTypeID,
						Filename:       candidate.Filename,
						State:          domain.UploadError,
						Message:        domain.UserMessage(err),
						ErrorCategory:  domain.FailureGeneric,
					},
				}
			}
			outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (uc *UploadDocumentUseCase) InFlight() []domain.UploadEntry {
	return uc.tracker.List()
}

func (uc *UploadDocumentUseCase) Remove(correlationID string) bool {
	removed := uc.tracker.Remove(correlationID)
	if removed {
		uc.logger.Info("upload_entry_removed", "correlation_id", correlationID)
	}
	return removed
}

func (uc *UploadDocumentUseCase) DocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	types, err := uc.types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	return types, nil
}

// SignedURL returns a time-limited download link for a stored document.
func (uc *UploadDocumentUseCase) SignedURL(ctx context.Context, documentID string) (string, error) {
	record, err := uc.records.GetByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("load document: %w", err)
	}
	url, err := uc.blobs.SignedURL(ctx, record.StoredPath, uc.opts.SignedURLTTL)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorageUnavailable, "sign document url", err)
	}
	return url, nil
}

func (uc *UploadDocumentUseCase) run(
	ctx context.Context,
	candidate domain.UploadCandidate,
	entry domain.UploadEntry,
	gen uint64,
) (*domain.UploadOutcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "upload.document", trace.WithAttributes(
		attribute.String("upload.correlation_id", candidate.CorrelationID),
		attribute.String("upload.document_type_id", candidate.DocumentTypeID),
		attribute.Int64("upload.size", candidate.Size()),
		attribute.Bool("upload.skip_validation", candidate.SkipValidation),
	))
	defer span.End()

	outcome, err := uc.pipeline(ctx, candidate, entry, gen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
	}
	if outcome != nil {
		span.SetAttributes(attribute.String("upload.state", string(outcome.Entry.State)))
		uc.metrics.RecordUpload(outcome.Entry.State, outcome.Entry.ErrorCategory)
	}
	return outcome, err
}

func (uc *UploadDocumentUseCase) pipeline(
	ctx context.Context,
	candidate domain.UploadCandidate,
	entry domain.UploadEntry,
	gen uint64,
) (*domain.UploadOutcome, error) {
	docType, err := uc.types.GetByID(ctx, candidate.DocumentTypeID)
	if err != nil {
		category := domain.FailureGeneric
		message := msgStorageGeneric
		if domain.IsKind(err, domain.ErrDocumentTypeNotFound) {
			category = domain.FailureInvalidFile
			message = msgDocumentTypeMissing
		}
		return uc.fail(candidate, gen, entry, category, message, fmt.Errorf("load document type: %w", err))
	}

	if err := policy.CheckFile(candidate.Filename, candidate.Size(), candidate.MimeType, *docType); err != nil {
		var cerr *policy.ConstraintError
		message := msgStorageGeneric
		if errors.As(err, &cerr) {
			message = cerr.Message
		}
		return uc.fail(candidate, gen, entry, domain.FailureInvalidFile, message,
			domain.WrapError(domain.ErrInvalidInput, "check file constraints", err))
	}

	ext := policy.FileExtension(candidate.Filename, candidate.MimeType)
	if ext == "pdf" && uc.inspector != nil {
		if err := uc.inspector.Inspect(ctx, candidate.MimeType, candidate.Body); err != nil {
			return uc.fail(candidate, gen, entry, domain.FailureCorrupted, msgCorrupted,
				domain.WrapError(domain.ErrInvalidInput, "inspect file", err))
		}
	}

	verdict, result := uc.classify(ctx, candidate, docType, ext)
	switch {
	case verdict != nil:
		entry, err = uc.tracker.Apply(candidate.CorrelationID, gen, domain.UploadEvent{
			Kind:    domain.EventClassified,
			Verdict: verdict,
			At:      uc.now(),
		})
		if err != nil {
			return uc.discarded(candidate, err)
		}
		if entry.State == domain.UploadRejected {
			uc.logger.Info("upload_rejected",
				"correlation_id", candidate.CorrelationID,
				"lead_id", candidate.LeadID,
				"document_type_id", candidate.DocumentTypeID,
				"notes", verdict.Notes,
			)
			return &domain.UploadOutcome{Entry: entry}, nil
		}
	default:
		entry, err = uc.tracker.Apply(candidate.CorrelationID, gen, domain.UploadEvent{
			Kind: domain.EventSkipClassification,
			At:   uc.now(),
		})
		if err != nil {
			return uc.discarded(candidate, err)
		}
		if candidate.SkipValidation {
			verdict = overrideVerdict(entry.Verdict)
		}
	}

	path, err := uc.storagePath(candidate, ext)
	if err != nil {
		return uc.fail(candidate, gen, entry, domain.FailureGeneric, msgStorageGeneric, fmt.Errorf("build storage path: %w", err))
	}
	if err := uc.store(ctx, path, candidate); err != nil {
		category, message := storageFailure(err)
		return uc.fail(candidate, gen, entry, category, message,
			domain.WrapError(domain.ErrStorageUnavailable, "store document", err))
	}

	if !uc.tracker.Alive(candidate.CorrelationID, gen) {
		uc.logger.Warn("upload_result_discarded",
			"correlation_id", candidate.CorrelationID,
			"stored_path", path,
		)
		uc.removeOrphan(ctx, candidate.CorrelationID, path)
		return nil, domain.WrapError(domain.ErrEntryRemoved, "store document",
			fmt.Errorf("upload %s was removed while storing", candidate.CorrelationID))
	}

	record := uc.newRecord(candidate, path, verdict, result)
	if err := uc.persist(ctx, record); err != nil {
		uc.logger.Error("upload_persist_failed",
			"correlation_id", candidate.CorrelationID,
			"stored_path", path,
			"error", err,
		)
		uc.removeOrphan(ctx, candidate.CorrelationID, path)
		return uc.fail(candidate, gen, entry, domain.FailureGeneric, msgPersistFailed, fmt.Errorf("create document record: %w", err))
	}

	entry, err = uc.tracker.Apply(candidate.CorrelationID, gen, domain.UploadEvent{
		Kind:       domain.EventPersisted,
		DocumentID: record.ID,
		At:         uc.now(),
	})
	if err != nil {
		uc.logger.Warn("upload_result_discarded",
			"correlation_id", candidate.CorrelationID,
			"document_id", record.ID,
			"error", err,
		)
	}
	uc.publish(ctx, domain.ChangeEvent{
		Kind:       domain.ChangeDocumentUploaded,
		DocumentID: record.ID,
		LeadID:     record.LeadID,
		ActorID:    record.UploadedBy,
		OccurredAt: record.UploadedAt,
	})
	uc.logger.Info("upload_completed",
		"correlation_id", candidate.CorrelationID,
		"document_id", record.ID,
		"lead_id", record.LeadID,
		"document_type_id", record.DocumentTypeID,
		"size", record.FileSize,
	)
	if err != nil {
		// The entry was removed after the record was written. Report the
		// last known entry so callers still see which upload it was.
		entry.DocumentID = record.ID
		return &domain.UploadOutcome{Entry: entry, Document: record}, err
	}
	return &domain.UploadOutcome{Entry: entry, Document: record}, nil
}

// removeOrphan deletes a stored object that will never get a record. It
// runs detached from ctx so a cancelled request still cleans up.
func (uc *UploadDocumentUseCase) removeOrphan(ctx context.Context, correlationID, path string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.StorageTimeout)
	defer cancel()
	if err := uc.blobs.Delete(cleanupCtx, path); err != nil {
		uc.logger.Error("upload_orphan_cleanup_failed",
			"correlation_id", correlationID,
			"stored_path", path,
			"error", err,
		)
		return
	}
	uc.logger.Info("upload_orphan_removed",
		"correlation_id", correlationID,
		"stored_path", path,
	)
}

// classify returns a nil verdict when classification does not apply to the
// candidate. A classifier failure yields the fail-open verdict and a nil
// result.
func (uc *UploadDocumentUseCase) classify(
	ctx context.Context,
	candidate domain.UploadCandidate,
	docType *domain.DocumentType,
	ext string,
) (*domain.Verdict, *domain.ClassificationResult) {
	if candidate.SkipValidation || !uc.shouldClassify(ext) {
		return nil, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "upload.classify")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, uc.opts.ClassifierTimeout)
	defer cancel()

	started := time.Now()
	result, err := uc.classifier.Classify(callCtx, domain.ClassifyRequest{
		Content:      candidate.Body,
		MimeType:     candidate.MimeType,
		ExpectedType: docType.Name,
	})
	if err != nil {
		category := classifierFailure(err)
		uc.metrics.ObserveClassifier(string(category), time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		uc.logger.Warn("upload_classifier_failed",
			"correlation_id", candidate.CorrelationID,
			"category", category,
			"error", err,
		)
		verdict := policy.Decide(nil, docType.Name)
		verdict.Notes = fmt.Sprintf("%s (reason: %s)", verdict.Notes, category)
		uc.metrics.RecordVerdict(verdict.Status)
		return &verdict, nil
	}
	uc.metrics.ObserveClassifier("ok", time.Since(started))

	verdict := policy.Decide(result, docType.Name)
	uc.metrics.RecordVerdict(verdict.Status)
	span.SetAttributes(
		attribute.String("classification.detected_type", result.DetectedType),
		attribute.Int("classification.confidence", result.Confidence),
		attribute.String("classification.verdict", string(verdict.Status)),
	)
	uc.logger.Info("upload_classified",
		"correlation_id", candidate.CorrelationID,
		"detected_type", result.DetectedType,
		"confidence", result.Confidence,
		"quality", result.Quality,
		"verdict", verdict.Status,
	)
	return &verdict, result
}

func (uc *UploadDocumentUseCase) shouldClassify(ext string) bool {
	if !uc.opts.ClassifierEnabled || uc.classifier == nil {
		return false
	}
	if ext == "pdf" {
		return uc.opts.ClassifyPDF
	}
	return policy.IsImageExtension(ext)
}

func (uc *UploadDocumentUseCase) store(ctx context.Context, path string, candidate domain.UploadCandidate) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "upload.store", trace.WithAttributes(attribute.String("storage.path", path)))
	defer span.End()

	storeCtx, cancel := context.WithTimeout(ctx, uc.opts.StorageTimeout)
	defer cancel()

	started := time.Now()
	err := uc.blobs.Put(storeCtx, path, candidate.Body, candidate.MimeType)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
	}
	uc.metrics.ObserveStorage(outcome, time.Since(started))
	return err
}

func (uc *UploadDocumentUseCase) persist(ctx context.Context, record *domain.DocumentRecord) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "upload.persist")
	defer span.End()
	if err := uc.records.Create(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return err
	}
	return nil
}

func (uc *UploadDocumentUseCase) publish(ctx context.Context, event domain.ChangeEvent) {
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

func (uc *UploadDocumentUseCase) newRecord(
	candidate domain.UploadCandidate,
	path string,
	verdict *domain.Verdict,
	result *domain.ClassificationResult,
) *domain.DocumentRecord {
	now := uc.now()
	record := &domain.DocumentRecord{
		ID:                 uuid.NewString(),
		LeadID:             candidate.LeadID,
		DocumentTypeID:     candidate.DocumentTypeID,
		OriginalFilename:   candidate.Filename,
		StoredPath:         path,
		FileSize:           candidate.Size(),
		MimeType:           candidate.MimeType,
		UploadStatus:       domain.UploadStatusUploaded,
		VerificationStatus: domain.VerificationPending,
		UploadedBy:         candidate.UploadedBy,
		UploadedAt:         now,
		Version:            1,
	}
	record.ApplyVerdict(verdict, result, now)
	return record
}

func (uc *UploadDocumentUseCase) storagePath(candidate domain.UploadCandidate, ext string) (string, error) {
	suffix, err := uc.pathSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("leads/%s/%s/%d-%s.%s",
		candidate.LeadID,
		candidate.DocumentTypeID,
		uc.now().UnixMilli(),
		suffix,
		ext,
	), nil
}

func (uc *UploadDocumentUseCase) fail(
	candidate domain.UploadCandidate,
	gen uint64,
	entry domain.UploadEntry,
	category domain.ErrorCategory,
	message string,
	cause error,
) (*domain.UploadOutcome, error) {
	uc.logger.Warn("upload_failed",
		"correlation_id", candidate.CorrelationID,
		"lead_id", candidate.LeadID,
		"document_type_id", candidate.DocumentTypeID,
		"filename", candidate.Filename,
		"category", category,
		"error", cause,
	)

	userErr := &domain.UserError{Message: message, Category: category, Err: cause}
	next, err := uc.tracker.Apply(candidate.CorrelationID, gen, domain.UploadEvent{
		Kind:     domain.EventFailed,
		Message:  message,
		Category: category,
		At:       uc.now(),
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrEntryRemoved) {
			return nil, userErr
		}
		return &domain.UploadOutcome{Entry: entry}, userErr
	}
	return &domain.UploadOutcome{Entry: next}, userErr
}

func (uc *UploadDocumentUseCase) discarded(candidate domain.UploadCandidate, err error) (*domain.UploadOutcome, error) {
	uc.logger.Info("upload_result_discarded",
		"correlation_id", candidate.CorrelationID,
		"error", err,
	)
	return nil, err
}

func validateCandidate(candidate *domain.UploadCandidate) error {
	candidate.LeadID = strings.TrimSpace(candidate.LeadID)
	candidate.DocumentTypeID = strings.TrimSpace(candidate.DocumentTypeID)
	candidate.CorrelationID = strings.TrimSpace(candidate.CorrelationID)
	if candidate.LeadID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("lead id is required"))
	}
	if candidate.DocumentTypeID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("document type id is required"))
	}
	if strings.TrimSpace(candidate.Filename) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("filename is required"))
	}
	if candidate.CorrelationID == "" {
		candidate.CorrelationID = uuid.NewString()
	}
	return nil
}

// overrideVerdict records that a user uploaded the file despite an automated
// rejection so reviewers see why it reached the queue.
func overrideVerdict(previous *domain.Verdict) *domain.Verdict {
	notes := "Uploaded despite automated rejection."
	if previous != nil && previous.Notes != "" {
		notes = fmt.Sprintf("Uploaded despite automated rejection: %s", previous.Notes)
	}
	return &domain.Verdict{Status: domain.ValidationManualReview, Notes: notes}
}

func classifierFailure(err error) domain.ErrorCategory {
	switch {
	case domain.IsKind(err, domain.ErrRateLimited):
		return domain.FailureRateLimited
	case domain.IsKind(err, domain.ErrQuotaExceeded):
		return domain.FailureQuotaExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	default:
		return domain.FailureGeneric
	}
}

func storageFailure(err error) (domain.ErrorCategory, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout, msgStorageTimeout
	case domain.IsKind(err, domain.ErrTemporary):
		return domain.FailureNetwork, msgStorageNetwork
	default:
		return domain.FailureGeneric, msgStorageGeneric
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordUpload(domain.UploadState, domain.ErrorCategory) {}
func (nopMetrics) RecordVerdict(domain.ValidationStatus) {}
func (nopMetrics) ObserveClassifier(string, time.Duration) {}
func (nopMetrics) ObserveStorage(string, time.Duration) {}
func (nopMetrics) RecordReview(string, string) {}
