package domain

import (
	"fmt"
	"time"
)

// UploadCandidate is one client-selected file for a single upload attempt.
// It is never persisted as-is.
type UploadCandidate struct {
	CorrelationID  string
	LeadID         string
	DocumentTypeID string
	Filename       string
	MimeType       string
	Body           []byte
	UploadedBy     string
	SkipValidation bool
}

func (c UploadCandidate) Size() int64 { return int64(len(c.Body)) }

type ErrorCategory string

const (
	FailureInvalidFile   ErrorCategory = "invalid_file"
	FailureCorrupted     ErrorCategory = "corrupted"
	FailureNetwork       ErrorCategory = "network"
	FailureTimeout       ErrorCategory = "timeout"
	FailureRateLimited   ErrorCategory = "rate_limited"
	FailureQuotaExceeded ErrorCategory = "quota_exceeded"
	FailureGeneric       ErrorCategory = "generic"
)

type UploadState string

const (
	UploadQueued     UploadState = "queued"
	UploadValidating UploadState = "validating"
	UploadUploading  UploadState = "uploading"
	UploadCompleted  UploadState = "completed"
	UploadError      UploadState = "error"
	UploadRejected   UploadState = "rejected"
)

func (s UploadState) Terminal() bool {
	return s == UploadCompleted || s == UploadError || s == UploadRejected
}

// UploadEntry is the per-file state machine value. It is replaced, never
// mutated, by Transition.
type UploadEntry struct {
	CorrelationID  string        `json:"correlation_id"`
	LeadID         string        `json:"lead_id"`
	DocumentTypeID string        `json:"document_type_id"`
	Filename       string        `json:"filename"`
	State          UploadState   `json:"state"`
	SkipValidation bool          `json:"skip_validation"`
	Verdict        *Verdict      `json:"verdict,omitempty"`
	Message        string        `json:"message,omitempty"`
	ErrorCategory  ErrorCategory `json:"error_category,omitempty"`
	DocumentID     string        `json:"document_id,omitempty"`
	Attempts       int           `json:"attempts"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func NewUploadEntry(candidate UploadCandidate, now time.Time) UploadEntry {
	return UploadEntry{
		CorrelationID:  candidate.CorrelationID,
		LeadID:         candidate.LeadID,
		DocumentTypeID: candidate.DocumentTypeID,
		Filename:       candidate.Filename,
		State:          UploadQueued,
		SkipValidation: candidate.SkipValidation,
		UpdatedAt:      now,
	}
}

type UploadEventKind string

const (
	EventStart              UploadEventKind = "start"
	EventFailed             UploadEventKind = "failed"
	EventClassified         UploadEventKind = "classified"
	EventSkipClassification UploadEventKind = "skip_classification"
	EventPersisted          UploadEventKind = "persisted"
	EventOverride           UploadEventKind = "override"
)

type UploadEvent struct {
	Kind       UploadEventKind
	Verdict    *Verdict
	Message    string
	Category   ErrorCategory
	DocumentID string
	At         time.Time
}

// Transition is the pure reducer of the upload state machine:
//
//	queued|error -> validating            (start, manual retry)
//	validating   -> uploading | rejected  (classified / skip_classification)
//	validating   -> error                 (failed: constraint, corrupted)
//	uploading    -> completed | error     (persisted / failed)
//	rejected     -> validating            (override, skips classification)
func Transition(entry UploadEntry, ev UploadEvent) (UploadEntry, error) {
	next := entry
	next.UpdatedAt = ev.At

	switch ev.Kind {
	case EventStart:
		if entry.State != UploadQueued && entry.State != UploadError {
			return entry, invalidTransition(entry.State, ev.Kind)
		}
		next.State = UploadValidating
		next.Attempts++
		next.Message = ""
		next.ErrorCategory = ""
		next.Verdict = nil
	case EventClassified:
		if entry.State != UploadValidating || ev.Verdict == nil {
			return entry, invalidTransition(entry.State, ev.Kind)
		}
		verdict := *ev.Verdict
		next.Verdict = &verdict
		next.Message = verdict.Notes
		if verdict.Status == ValidationRejected {
			next.State = UploadRejected
		} else {
			next.State = UploadUploading
		}
	case EventSkipClassification:
		if entry.State != UploadValidating {
			return entry, invalidTransition(entry.State, ev.Kind)
		}
		next.State = UploadUploading
	case EventFailed:
		if entry.State != UploadValidating && entry.State != UploadUploading {
			return entry, invalidTransition(entry.State, ev.Kind)
		}
		next.State = UploadError
		next.Message = ev.Message
		next.ErrorCategory = ev.Category
		if next.ErrorCategory == "" {
			next.ErrorCategory = FailureGeneric
		}
	case EventPersisted:
		if entry.State != UploadUploading || ev.DocumentID == "" {
			return entry, invalidTransition(entry.State, ev.Kind)
		}
		next.State = UploadCompleted
		next.DocumentID = ev.DocumentID
	case EventOverride:
		if entry.State != UploadRejected {
			return entry, invalidTransition(entry.State, ev.Kind)
		}
		next.State = UploadValidating
		next.SkipValidation = true
		next.Attempts++
		next.Message = ""
	default:
		return entry, WrapError(ErrInvalidInput, "upload transition", fmt.Errorf("unknown event %q", ev.Kind))
	}
	return next, nil
}

func invalidTransition(from UploadState, kind UploadEventKind) error {
	return WrapError(ErrConflict, "upload transition", fmt.Errorf("event %s not allowed in state %s", kind, from))
}

// UploadOutcome reports where one upload attempt ended. Document is set only
// when the entry completed; Err carries the failure for batch callers.
type UploadOutcome struct {
	Entry    UploadEntry     `json:"entry"`
	Document *DocumentRecord `json:"document,omitempty"`
	Err      error           `json:"-"`
}
