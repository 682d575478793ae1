package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/ports"
)

// QueueMonitor keeps queue depth gauges fresh. It refreshes on every change
// event and on a fixed interval so a quiet feed still reports the age of the
// oldest pending document.
type QueueMonitor struct {
	records    ports.DocumentRecordRepository
	subscriber ports.ChangeSubscriber
	gauges     ports.QueueGauges
	logger     *slog.Logger
	interval   time.Duration

	mu  sync.Mutex
	now func() time.Time
}

func NewQueueMonitor(
	records ports.DocumentRecordRepository,
	subscriber ports.ChangeSubscriber,
	gauges ports.QueueGauges,
	logger *slog.Logger,
	interval time.Duration,
) *QueueMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &QueueMonitor{
		records:    records,
		subscriber: subscriber,
		gauges:     gauges,
		logger:     logger,
		interval:   interval,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is done.
func (m *QueueMonitor) Run(ctx context.Context) error {
	m.refresh(ctx)

	subErr := make(chan error, 1)
	go func() {
		subErr <- m.subscriber.Subscribe(ctx, func(ctx context.Context, event domain.ChangeEvent) error {
			m.gauges.RecordChangeEvent(event.Kind)
			m.refresh(ctx)
			return nil
		})
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return <-subErr
		case err := <-subErr:
			if err != nil {
				return fmt.Errorf("queue monitor subscription: %w", err)
			}
			return nil
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// refresh is serialized so gauges never move backwards under concurrent
// events.
func (m *QueueMonitor) refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.records.ListPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("queue_monitor_refresh_failed", "error", err)
		}
		return
	}

	var oldest time.Duration
	now := m.now()
	for _, p := range pending {
		if age := now.Sub(p.Document.UploadedAt); age > oldest {
			oldest = age
		}
	}
	m.gauges.SetPending(len(pending), oldest)
	m.logger.Debug("queue_monitor_refreshed", "pending", len(pending), "oldest_age_s", oldest.Seconds())
}
