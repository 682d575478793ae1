package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

type trackedUpload struct {
	entry      domain.UploadEntry
	generation uint64
}

// UploadTracker holds the in-flight upload entries keyed by correlation id.
// Every mutation goes through domain.Transition. Each Begin hands out a
// generation so that results of an attempt whose entry was removed (or
// replaced) are discarded instead of applied to a newer entry.
type UploadTracker struct {
	mu      sync.Mutex
	entries map[string]trackedUpload
	nextGen uint64
}

func NewUploadTracker() *UploadTracker {
	return &UploadTracker{entries: make(map[string]trackedUpload)}
}

// Begin starts an attempt for candidate and moves its entry to validating.
// An entry in error is retried in place; completed or rejected entries are
// replaced by a fresh one; an entry still in flight is a conflict.
func (t *UploadTracker) Begin(candidate domain.UploadCandidate, now time.Time) (domain.UploadEntry, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := domain.NewUploadEntry(candidate, now)
	if existing, ok := t.entries[candidate.CorrelationID]; ok {
		switch existing.entry.State {
		case domain.UploadError:
			entry = existing.entry
			entry.SkipValidation = candidate.SkipValidation
		case domain.UploadCompleted, domain.UploadRejected:
		default:
			return existing.entry, 0, domain.WrapError(
				domain.ErrConflict,
				"begin upload",
				fmt.Errorf("upload %s is already %s", candidate.CorrelationID, existing.entry.State),
			)
		}
	}

	next, err := domain.Transition(entry, domain.UploadEvent{Kind: domain.EventStart, At: now})
	if err != nil {
		return entry, 0, err
	}
	t.nextGen++
	t.entries[candidate.CorrelationID] = trackedUpload{entry: next, generation: t.nextGen}
	return next, t.nextGen, nil
}

// Resume re-enters a rejected entry through the override path.
func (t *UploadTracker) Resume(correlationID string, now time.Time) (domain.UploadEntry, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[correlationID]
	if !ok {
		return domain.UploadEntry{}, 0, domain.WrapError(
			domain.ErrEntryRemoved,
			"override upload",
			fmt.Errorf("no tracked upload %s", correlationID),
		)
	}
	next, err := domain.Transition(existing.entry, domain.UploadEvent{Kind: domain.EventOverride, At: now})
	if err != nil {
		return existing.entry, 0, err
	}
	t.nextGen++
	t.entries[correlationID] = trackedUpload{entry: next, generation: t.nextGen}
	return next, t.nextGen, nil
}

// Apply feeds ev into the entry owned by generation. It returns
// domain.ErrEntryRemoved when that entry no longer exists.
func (t *UploadTracker) Apply(correlationID string, generation uint64, ev domain.UploadEvent) (domain.UploadEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[correlationID]
	if !ok || existing.generation != generation {
		return domain.UploadEntry{}, domain.WrapError(
			domain.ErrEntryRemoved,
			"apply upload event",
			fmt.Errorf("upload %s (generation %d) is gone, dropping %s", correlationID, generation, ev.Kind),
		)
	}
	next, err := domain.Transition(existing.entry, ev)
	if err != nil {
		return existing.entry, err
	}
	existing.entry = next
	t.entries[correlationID] = existing
	return next, nil
}

// Alive reports whether the entry owned by generation is still tracked.
func (t *UploadTracker) Alive(correlationID string, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.entries[correlationID]
	return ok && existing.generation == generation
}

func (t *UploadTracker) Get(correlationID string) (domain.UploadEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.entries[correlationID]
	return existing.entry, ok
}

// List returns the tracked entries, most recently updated first.
func (t *UploadTracker) List() []domain.UploadEntry {
	t.mu.Lock()
	out := make([]domain.UploadEntry, 0, len(t.entries))
	for _, tracked := range t.entries {
		out = append(out, tracked.entry)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].CorrelationID < out[j].CorrelationID
	})
	return out
}

// Remove drops an entry in any state. Persisted records are not touched.
func (t *UploadTracker) Remove(correlationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[correlationID]; !ok {
		return false
	}
	delete(t.entries, correlationID)
	return true
}
