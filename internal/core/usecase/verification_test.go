package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

func pendingRecord(id string, uploadedAt time.Time) domain.DocumentRecord {
	return domain.DocumentRecord{
		ID:                 id,
		LeadID:             "lead-1",
		DocumentTypeID:     "dt-pan",
		OriginalFilename:   id + ".jpg",
		UploadStatus:       domain.UploadStatusUploaded,
		VerificationStatus: domain.VerificationPending,
		UploadedBy:         "user-7",
		UploadedAt:         uploadedAt,
		Version:            1,
	}
}

func newVerificationHarness(records ...domain.DocumentRecord) (*VerificationUseCase, *recordRepoFake, *publisherFake, *metricsFake) {
	repo := newRecordRepoFake(records...)
	pub := &publisherFake{}
	m := newMetricsFake()
	return NewVerificationUseCase(repo, pub, &subscriberFake{}, m, nil), repo, pub, m
}

func TestListPendingNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	uc, _, _, _ := newVerificationHarness(
		pendingRecord("old", base),
		pendingRecord("new", base.Add(time.Hour)),
	)

	pending, err := uc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].Document.ID != "new" {
		t.Fatalf("unexpected queue %+v", pending)
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	uc, _, pub, m := newVerificationHarness(pendingRecord("d-1", time.Now()))
	ctx := context.Background()

	first, err := uc.Verify(ctx, "d-1", "reviewer-1", "  looks good ")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if first.VerificationStatus != domain.VerificationVerified || first.VerifiedBy == nil || *first.VerifiedBy != "reviewer-1" {
		t.Fatalf("unexpected record %+v", first)
	}
	if first.AdminNotes == nil || *first.AdminNotes != "looks good" {
		t.Fatalf("expected trimmed notes, got %v", first.AdminNotes)
	}

	second, err := uc.Verify(ctx, "d-1", "reviewer-2", "")
	if err != nil {
		t.Fatalf("second Verify() error = %v", err)
	}
	if *second.VerifiedBy != "reviewer-1" || second.Version != first.Version {
		t.Fatalf("second verify must not mutate, got %+v", second)
	}
	if kinds := pub.kinds(); len(kinds) != 1 || kinds[0] != domain.ChangeDocumentVerified {
		t.Fatalf("expected exactly one verified event, got %v", kinds)
	}
	if m.reviews["verify:noop"] != 1 {
		t.Fatalf("expected noop metric, got %v", m.reviews)
	}
}

func TestVerifyMissingDocument(t *testing.T) {
	uc, _, _, _ := newVerificationHarness()
	if _, err := uc.Verify(context.Background(), "nope", "reviewer-1", ""); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestVerifyRejectedDocumentConflicts(t *testing.T) {
	uc, _, _, _ := newVerificationHarness(pendingRecord("d-1", time.Now()))
	ctx := context.Background()

	if _, err := uc.Reject(ctx, "d-1", "reviewer-1", "blurry scan"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if _, err := uc.Verify(ctx, "d-1", "reviewer-2", ""); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRejectRequiresNotesBeforeWriting(t *testing.T) {
	uc, repo, pub, _ := newVerificationHarness(pendingRecord("d-1", time.Now()))

	for _, notes := range []string{"", "   ", "\n\t"} {
		_, err := uc.Reject(context.Background(), "d-1", "reviewer-1", notes)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("notes %q: expected ErrInvalidInput, got %v", notes, err)
		}
		if !strings.Contains(domain.UserMessage(err), "reason") {
			t.Fatalf("unexpected user message %q", domain.UserMessage(err))
		}
	}
	record, _ := repo.GetByID(context.Background(), "d-1")
	if record.VerificationStatus != domain.VerificationPending || record.Version != 1 {
		t.Fatalf("record must be untouched, got %+v", record)
	}
	if len(pub.kinds()) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestRejectAgainReplacesNotes(t *testing.T) {
	uc, _, pub, _ := newVerificationHarness(pendingRecord("d-1", time.Now()))
	ctx := context.Background()

	if _, err := uc.Reject(ctx, "d-1", "reviewer-1", "wrong document"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	record, err := uc.Reject(ctx, "d-1", "reviewer-2", " unreadable ")
	if err != nil {
		t.Fatalf("second Reject() error = %v", err)
	}
	if record.VerificationStatus != domain.VerificationRejected || *record.AdminNotes != "unreadable" {
		t.Fatalf("expected last writer to win, got %+v", record)
	}
	if len(pub.kinds()) != 2 {
		t.Fatalf("expected two rejected events, got %v", pub.kinds())
	}
}

func TestRejectVerifiedDocumentConflicts(t *testing.T) {
	uc, _, _, m := newVerificationHarness(pendingRecord("d-1", time.Now()))
	ctx := context.Background()

	if _, err := uc.Verify(ctx, "d-1", "reviewer-1", ""); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if _, err := uc.Reject(ctx, "d-1", "reviewer-2", "changed my mind"); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if m.reviews["reject:conflict"] != 1 {
		t.Fatalf("expected conflict metric, got %v", m.reviews)
	}
}

func TestReviewRequiresReviewer(t *testing.T) {
	uc, _, _, _ := newVerificationHarness(pendingRecord("d-1", time.Now()))
	if _, err := uc.Verify(context.Background(), "d-1", "", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPublishFailureDoesNotFailReview(t *testing.T) {
	uc, _, pub, _ := newVerificationHarness(pendingRecord("d-1", time.Now()))
	pub.err = errors.New("nats down")

	if _, err := uc.Verify(context.Background(), "d-1", "reviewer-1", ""); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestWatchDeliversUntilCancelled(t *testing.T) {
	repo := newRecordRepoFake()
	sub := &subscriberFake{events: []domain.ChangeEvent{
		{Kind: domain.ChangeDocumentUploaded, DocumentID: "d-1"},
		{Kind: domain.ChangeDocumentVerified, DocumentID: "d-1"},
	}}
	uc := NewVerificationUseCase(repo, nil, sub, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var got []domain.ChangeKind
	err := uc.Watch(ctx, func(_ context.Context, ev domain.ChangeEvent) error {
		got = append(got, ev.Kind)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
}

func TestWatchWithoutFeed(t *testing.T) {
	uc := NewVerificationUseCase(newRecordRepoFake(), nil, nil, nil, nil)
	if err := uc.Watch(context.Background(), nil); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
