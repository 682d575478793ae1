package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

type typeRepoFake struct {
	types map[string]domain.DocumentType
	err   error
}

func newTypeRepoFake(types ...domain.DocumentType) *typeRepoFake {
	f := &typeRepoFake{types: make(map[string]domain.DocumentType)}
	for _, t := range types {
		f.types[t.ID] = t
	}
	return f
}

func (f *typeRepoFake) GetByID(_ context.Context, id string) (*domain.DocumentType, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.types[id]
	if !ok {
		return nil, domain.ErrDocumentTypeNotFound
	}
	return &t, nil
}

func (f *typeRepoFake) List(context.Context) ([]domain.DocumentType, error) {
	out := make([]domain.DocumentType, 0, len(f.types))
	for _, t := range f.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *typeRepoFake) Upsert(_ context.Context, t *domain.DocumentType) error {
	f.types[t.ID] = *t
	return nil
}

type recordRepoFake struct {
	mu        sync.Mutex
	records   map[string]domain.DocumentRecord
	createErr error
	listErr   error
	created   int
	// afterCreate runs once a record is written, outside the lock.
	afterCreate func()
}

func newRecordRepoFake(records ...domain.DocumentRecord) *recordRepoFake {
	f := &recordRepoFake{records: make(map[string]domain.DocumentRecord)}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *recordRepoFake) Create(_ context.Context, record *domain.DocumentRecord) error {
	f.mu.Lock()
	if f.createErr != nil {
		f.mu.Unlock()
		return f.createErr
	}
	f.records[record.ID] = *record
	f.created++
	hook := f.afterCreate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *recordRepoFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	return &r, nil
}

func (f *recordRepoFake) ListPending(context.Context) ([]domain.PendingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.PendingDocument
	for _, r := range f.records {
		if r.VerificationStatus == domain.VerificationPending {
			out = append(out, domain.PendingDocument{Document: r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Document.UploadedAt.After(out[j].Document.UploadedAt) })
	return out, nil
}

func (f *recordRepoFake) MarkVerified(_ context.Context, id, reviewerID string, notes *string, at time.Time) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.VerificationStatus != domain.VerificationPending {
		return nil, domain.WrapError(domain.ErrConflict, "mark verified", fmt.Errorf("no pending document %s", id))
	}
	r.VerificationStatus = domain.VerificationVerified
	r.VerifiedBy = &reviewerID
	r.VerifiedAt = &at
	r.AdminNotes = notes
	r.Version++
	f.records[id] = r
	return &r, nil
}

func (f *recordRepoFake) MarkRejected(_ context.Context, id, reviewerID, notes string, at time.Time) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || (r.VerificationStatus != domain.VerificationPending && r.VerificationStatus != domain.VerificationRejected) {
		return nil, domain.WrapError(domain.ErrConflict, "mark rejected", fmt.Errorf("no pending document %s", id))
	}
	r.VerificationStatus = domain.VerificationRejected
	r.VerifiedBy = &reviewerID
	r.VerifiedAt = &at
	r.AdminNotes = &notes
	r.Version++
	f.records[id] = r
	return &r, nil
}

func (f *recordRepoFake) ListRecent(_ context.Context, query domain.ActivityQuery) ([]domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.DocumentRecord
	for _, r := range f.records {
		if query.LeadID != "" && r.LeadID != query.LeadID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *recordRepoFake) only() domain.DocumentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		return r
	}
	return domain.DocumentRecord{}
}

type blobStoreFake struct {
	mu        sync.Mutex
	puts      map[string][]byte
	deleted   []string
	err       error
	deleteErr error
	block     chan struct{}
}

func newBlobStoreFake() *blobStoreFake {
	return &blobStoreFake{puts: make(map[string][]byte)}
}

func (f *blobStoreFake) Put(ctx context.Context, path string, body []byte, _ string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[path] = append([]byte(nil), body...)
	return nil
}

func (f *blobStoreFake) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.puts, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *blobStoreFake) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *blobStoreFake) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%s", path, ttl), nil
}

func (f *blobStoreFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

type classifierFake struct {
	mu     sync.Mutex
	result *domain.ClassificationResult
	err    error
	calls  int
	last   domain.ClassifyRequest
}

func (f *classifierFake) Classify(_ context.Context, req domain.ClassifyRequest) (*domain.ClassificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	copyResult := *f.result
	return &copyResult, nil
}

func (f *classifierFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type inspectorFake struct {
	err   error
	calls int
}

func (f *inspectorFake) Inspect(context.Context, string, []byte) error {
	f.calls++
	return f.err
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
}

func (f *publisherFake) Publish(_ context.Context, event domain.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *publisherFake) kinds() []domain.ChangeKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChangeKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

type subscriberFake struct {
	events []domain.ChangeEvent
}

func (f *subscriberFake) Subscribe(ctx context.Context, handler func(context.Context, domain.ChangeEvent) error) error {
	for _, ev := range f.events {
		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

type historyRepoFake struct {
	entries []domain.StatusHistoryEntry
	err     error
}

func (f *historyRepoFake) ListRecent(_ context.Context, query domain.ActivityQuery) ([]domain.StatusHistoryEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.StatusHistoryEntry
	for _, e := range f.entries {
		if query.LeadID != "" && e.LeadID != query.LeadID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type actorDirectoryFake struct {
	actors map[string]domain.Actor
	err    error
	block  bool
}

func (f *actorDirectoryFake) Lookup(ctx context.Context, ids []string) (map[string]domain.Actor, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Actor)
	for _, id := range ids {
		if a, ok := f.actors[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

type metricsFake struct {
	mu       sync.Mutex
	uploads  map[domain.UploadState]int
	verdicts map[domain.ValidationStatus]int
	reviews  map[string]int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{
		uploads:  make(map[domain.UploadState]int),
		verdicts: make(map[domain.ValidationStatus]int),
		reviews:  make(map[string]int),
	}
}

func (m *metricsFake) RecordUpload(state domain.UploadState, _ domain.ErrorCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[state]++
}

func (m *metricsFake) RecordVerdict(status domain.ValidationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[status]++
}

func (m *metricsFake) ObserveClassifier(string, time.Duration) {}
func (m *metricsFake) ObserveStorage(string, time.Duration) {}

func (m *metricsFake) RecordReview(action, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[action+":"+result]++
}
