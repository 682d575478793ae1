package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

// WorkerMetrics backs the queue monitor process.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	pendingDepth  prometheus.Gauge
	oldestPending prometheus.Gauge
	changeEvents  *prometheus.CounterVec
	lastRefresh   prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	pendingDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "queue",
		Name:        "pending_documents",
		Help:        "Documents awaiting human verification.",
		ConstLabels: constLabels,
	})
	oldestPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "queue",
		Name:        "oldest_pending_age_seconds",
		Help:        "Age of the oldest pending document.",
		ConstLabels: constLabels,
	})
	changeEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "changefeed",
		Name:      "events_received_total",
		Help:      "Change events received by kind.",
	}, []string{"service", "kind"})
	lastRefresh := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "queue",
		Name:        "last_refresh_timestamp_seconds",
		Help:        "Unix time of the last successful queue refresh.",
		ConstLabels: constLabels,
	})

	registry.MustRegister(pendingDepth, oldestPending, changeEvents, lastRefresh)

	return &WorkerMetrics{
		registry:      registry,
		service:       service,
		pendingDepth:  pendingDepth,
		oldestPending: oldestPending,
		changeEvents:  changeEvents,
		lastRefresh:   lastRefresh,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) SetPending(depth int, oldestAge time.Duration) {
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.pendingDepth.Set(float64(depth))
	m.oldestPending.Set(oldestAge.Seconds())
	m.lastRefresh.SetToCurrentTime()
}

func (m *WorkerMetrics) RecordChangeEvent(kind domain.ChangeKind) {
	m.changeEvents.WithLabelValues(m.service, string(kind)).Inc()
}
