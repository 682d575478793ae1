package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/ports"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

type ActivityOptions struct {
	DefaultLimit       int
	ActorLookupTimeout time.Duration
}

type ActivityUseCase struct {
	history ports.StatusHistoryRepository
	records ports.DocumentRecordRepository
	actors  ports.ActorDirectory
	logger  *slog.Logger
	opts    ActivityOptions
}

func NewActivityUseCase(
	history ports.StatusHistoryRepository,
	records ports.DocumentRecordRepository,
	actors ports.ActorDirectory,
	logger *slog.Logger,
	opts ActivityOptions,
) *ActivityUseCase {
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > MaxActivityLimit {
		opts.DefaultLimit = DefaultActivityLimit
	}
	if opts.ActorLookupTimeout <= 0 {
		opts.ActorLookupTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ActivityUseCase{
		history: history,
		records: records,
		actors:  actors,
		logger:  logger,
		opts:    opts,
	}
}

// Recent merges status history and document lifecycle events into one
// timeline, newest first.
func (uc *ActivityUseCase) Recent(ctx context.Context, query domain.ActivityQuery) ([]domain.ActivityEvent, error) {
	query.LeadID = strings.TrimSpace(query.LeadID)
	query.Limit = uc.normalizeLimit(query.Limit)

	var (
		entries []domain.StatusHistoryEntry
		records []domain.DocumentRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = uc.history.ListRecent(gctx, query)
		if err != nil {
			return fmt.Errorf("list status history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = uc.records.ListRecent(gctx, query)
		if err != nil {
			return fmt.Errorf("list document records: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events := make([]domain.ActivityEvent, 0, len(entries)+len(records))
	for _, entry := range entries {
		events = append(events, statusChangeEvent(entry))
	}
	for _, record := range records {
		events = append(events, documentEvents(record)...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
	if len(events) > query.Limit {
		events = events[:query.Limit]
	}

	uc.resolveActors(ctx, events)
	return events, nil
}

func (uc *ActivityUseCase) normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return uc.opts.DefaultLimit
	case limit > MaxActivityLimit:
		return MaxActivityLimit
	default:
		return limit
	}
}

// resolveActors fills display names. Lookup failures leave "Unknown" and
// never fail the feed.
func (uc *ActivityUseCase) resolveActors(ctx context.Context, events []domain.ActivityEvent) {
	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.ActorID == "" {
			continue
		}
		if _, ok := seen[ev.ActorID]; ok {
			continue
		}
		seen[ev.ActorID] = struct{}{}
		ids = append(ids, ev.ActorID)
	}

	var actors map[string]domain.Actor
	if len(ids) > 0 && uc.actors != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, uc.opts.ActorLookupTimeout)
		found, err := uc.actors.Lookup(lookupCtx, ids)
		cancel()
		if err != nil {
			uc.logger.Warn("activity_actor_lookup_failed", "actors", len(ids), "error", err)
		} else {
			actors = found
		}
	}

	for i := range events {
		actor, ok := actors[events[i].ActorID]
		if !ok {
			events[i].Actor = domain.UnknownActor
			continue
		}
		events[i].Actor = actor.Label()
		events[i].ActorRole = actor.Role
	}
}

func statusChangeEvent(entry domain.StatusHistoryEntry) domain.ActivityEvent {
	payload := map[string]string{
		"old_status": entry.OldStatus,
		"new_status": entry.NewStatus,
	}
	if entry.Reason != "" {
		payload["reason"] = entry.Reason
	}
	if entry.Notes != "" {
		payload["notes"] = entry.Notes
	}
	return domain.ActivityEvent{
		ID:        "status:" + entry.ID,
		Type:      domain.ActivityStatusChange,
		LeadID:    entry.LeadID,
		ActorID:   entry.ChangedBy,
		Timestamp: entry.ChangedAt,
		Payload:   payload,
	}
}

// documentEvents projects one record into its upload event and, once
// reviewed, its verify or reject event.
func documentEvents(record domain.DocumentRecord) []domain.ActivityEvent {
	upload := domain.ActivityEvent{
		ID:        "upload:" + record.ID,
		Type:      domain.ActivityDocumentUpload,
		LeadID:    record.LeadID,
		ActorID:   record.UploadedBy,
		Timestamp: record.UploadedAt,
		Payload: map[string]string{
			"document_id":      record.ID,
			"document_type_id": record.DocumentTypeID,
			"filename":         record.OriginalFilename,
		},
	}
	if record.AIValidationStatus != nil {
		upload.Payload["ai_validation_status"] = string(*record.AIValidationStatus)
	}
	events := []domain.ActivityEvent{upload}

	if record.VerifiedAt == nil {
		return events
	}
	var kind domain.ActivityType
	var prefix string
	switch record.VerificationStatus {
	case domain.VerificationVerified:
		kind, prefix = domain.ActivityDocumentVerify, "verify:"
	case domain.VerificationRejected:
		kind, prefix = domain.ActivityDocumentReject, "reject:"
	default:
		return events
	}
	review := domain.ActivityEvent{
		ID:        prefix + record.ID,
		Type:      kind,
		LeadID:    record.LeadID,
		Timestamp: *record.VerifiedAt,
		Payload: map[string]string{
			"document_id":      record.ID,
			"document_type_id": record.DocumentTypeID,
		},
	}
	if record.VerifiedBy != nil {
		review.ActorID = *record.VerifiedBy
	}
	if record.AdminNotes != nil && *record.AdminNotes != "" {
		review.Payload["notes"] = *record.AdminNotes
	}
	return append(events, review)
}
