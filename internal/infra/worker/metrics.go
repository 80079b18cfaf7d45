package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notifsync/internal/pkg/config"
	"notifsync/internal/resilience/circuitbreaker"
)

// WorkerMetrics provides Prometheus metrics for the sync worker. It embeds
// the standard ConfigMetrics for configuration monitoring and adds
// worker-specific metrics for poll execution tracking.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_validation_errors_total: Total validation errors by field
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Worker-specific metrics:
//   - worker_poll_runs_total: Total polls by outcome (skipped/failed/unchanged/changed)
//   - worker_poll_duration_seconds: Duration histogram of poll execution
//   - worker_circuit_breaker_state: Current breaker state (0=closed, 1=half-open, 2=open)
//   - worker_storage_degraded: 1 while the storage degraded badge is active
//   - worker_storage_retries_total: Failed storage attempts, retries included
//   - worker_storage_retry_exhaustions_total: Operations that failed all attempts
//   - worker_cached_notifications: Records in the cached notification set
//   - worker_poll_last_success_timestamp: Unix timestamp of the last successful poll
type WorkerMetrics struct {
	*config.ConfigMetrics

	// PollRunsTotal counts polls by outcome.
	PollRunsTotal *prometheus.CounterVec

	// PollDurationSeconds measures poll execution time.
	// Buckets cover the sub-second happy path up to the fetch timeout.
	PollDurationSeconds prometheus.Histogram

	// CircuitBreakerState reflects the breaker's current state.
	CircuitBreakerState prometheus.Gauge

	// StorageDegraded is 1 while the degraded badge is active.
	StorageDegraded prometheus.Gauge

	// StorageRetriesTotal counts failed storage attempts, every retry
	// included.
	StorageRetriesTotal prometheus.Counter

	// StorageExhaustionsTotal counts operations that failed all attempts.
	StorageExhaustionsTotal prometheus.Counter

	// CachedNotifications tracks the size of the cached set.
	CachedNotifications prometheus.Gauge

	// PollLastSuccessTimestamp records the last changed or unchanged poll.
	PollLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates a WorkerMetrics instance with all metrics
// initialized and registered via promauto.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		PollRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_poll_runs_total",
			Help: "Total number of poll runs by outcome (skipped/failed/unchanged/changed)",
		}, []string{"outcome"}),

		PollDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_poll_duration_seconds",
			Help:    "Duration of poll execution in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),

		CircuitBreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),

		StorageDegraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_storage_degraded",
			Help: "1 while the storage degraded-mode badge is active",
		}),

		StorageRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_storage_retries_total",
			Help: "Total number of failed storage attempts, including retries",
		}),

		StorageExhaustionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_storage_retry_exhaustions_total",
			Help: "Total number of storage operations that failed all retry attempts",
		}),

		CachedNotifications: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cached_notifications",
			Help: "Number of records in the cached notification set",
		}),

		PollLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_poll_last_success_timestamp",
			Help: "Unix timestamp of the last successful poll",
		}),
	}
}

// MustRegister is a no-op method for API compatibility.
// Metrics are automatically registered via promauto when created in
// NewWorkerMetrics.
func (m *WorkerMetrics) MustRegister() {
	// No-op: metrics are auto-registered via promauto
}

// RecordPoll records one completed poll: its outcome and duration, and the
// last-success timestamp when the remote was reachable.
func (m *WorkerMetrics) RecordPoll(outcome string, seconds float64) {
	m.PollRunsTotal.WithLabelValues(outcome).Inc()
	m.PollDurationSeconds.Observe(seconds)
	if outcome == "changed" || outcome == "unchanged" {
		m.PollLastSuccessTimestamp.SetToCurrentTime()
	}
}

// SetBreakerState maps the breaker status onto the state gauge.
func (m *WorkerMetrics) SetBreakerState(status circuitbreaker.Status) {
	switch status {
	case circuitbreaker.StatusOpen:
		m.CircuitBreakerState.Set(2)
	case circuitbreaker.StatusHalfOpen:
		m.CircuitBreakerState.Set(1)
	default:
		m.CircuitBreakerState.Set(0)
	}
}

// SetStorageDegraded reflects the degraded badge on its gauge.
func (m *WorkerMetrics) SetStorageDegraded(active bool) {
	if active {
		m.StorageDegraded.Set(1)
	} else {
		m.StorageDegraded.Set(0)
	}
}

// SetCachedNotifications tracks the cached set size.
func (m *WorkerMetrics) SetCachedNotifications(count int) {
	m.CachedNotifications.Set(float64(count))
}
