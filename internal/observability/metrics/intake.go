package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const namespace = "intake"

// IntakeMetrics implements ports.IntakeMetrics on a shared registry.
type IntakeMetrics struct {
	service string

	uploadsTotal       *prometheus.CounterVec
	verdictsTotal      *prometheus.CounterVec
	classifierDuration *prometheus.HistogramVec
	storageDuration    *prometheus.HistogramVec
	reviewsTotal       *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewIntakeMetrics(service string, registerer prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		service: service,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Upload attempts by final state and error category.",
		}, []string{"service", "state", "category"}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "verdicts_total",
			Help:      "Automated verdicts by status.",
		}, []string{"service", "status"}),
		classifierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "call_duration_seconds",
			Help:      "Vision classifier call duration by outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"service", "outcome"}),
		storageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "put_duration_seconds",
			Help:      "Blob store write duration by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "outcome"}),
		reviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "reviews_total",
			Help:      "Verification queue mutations by action and result.",
		}, []string{"service", "action", "result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is not closed.",
		}, []string{"service", "operation"}),
	}

	registerer.MustRegister(
		m.uploadsTotal,
		m.verdictsTotal,
		m.classifierDuration,
		m.storageDuration,
		m.reviewsTotal,
		m.breakerState,
	)
	return m
}

func (m *IntakeMetrics) RecordUpload(state domain.UploadState, category domain.ErrorCategory) {
	cat := string(category)
	if cat == "" {
		cat = "none"
	}
	m.uploadsTotal.WithLabelValues(m.service, string(state), cat).Inc()
}

func (m *IntakeMetrics) RecordVerdict(status domain.ValidationStatus) {
	m.verdictsTotal.WithLabelValues(m.service, string(status)).Inc()
}

func (m *IntakeMetrics) ObserveClassifier(outcome string, duration time.Duration) {
	m.classifierDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *IntakeMetrics) ObserveStorage(outcome string, duration time.Duration) {
	m.storageDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *IntakeMetrics) RecordReview(action, result string) {
	m.reviewsTotal.WithLabelValues(m.service, action, result).Inc()
}

// BreakerStateChanged matches resilience.Config.OnStateChange.
func (m *IntakeMetrics) BreakerStateChanged(operation, _, to string) {
	value := 1.0
	if to == "closed" {
		value = 0
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
