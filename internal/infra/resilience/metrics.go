package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric collectors for each guard. Registration errors are ignored on
// purpose: a second guard of the same kind in one process reuses the
// already-registered series.

// CircuitBreakerMetrics tracks breaker state, transitions, and guarded
// operation durations.
type CircuitBreakerMetrics struct {
	state             *prometheus.GaugeVec
	transitions       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewCircuitBreakerMetrics registers breaker metrics with registry (a
// fresh registry when nil, for tests).
func NewCircuitBreakerMetrics(registry *prometheus.Registry) *CircuitBreakerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current breaker state (1 for the active state label, 0 otherwise).",
	}, []string{"name", "state"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_transitions_total",
		Help: "Breaker state transitions.",
	}, []string{"name", "from", "to"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "circuit_breaker_operation_duration_seconds",
		Help:    "Duration of operations run through the breaker.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"name", "result"})

	_ = registry.Register(state)
	_ = registry.Register(transitions)
	_ = registry.Register(operationDuration)

	return &CircuitBreakerMetrics{
		state:             state,
		transitions:       transitions,
		operationDuration: operationDuration,
	}
}

// SetState marks exactly one state label active for name.
func (m *CircuitBreakerMetrics) SetState(name string, state int) {
	for i, label := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if i == state {
			v = 1.0
		}
		m.state.WithLabelValues(name, label).Set(v)
	}
}

// RecordTransition counts one from->to transition.
func (m *CircuitBreakerMetrics) RecordTransition(name, from, to string) {
	m.transitions.WithLabelValues(name, from, to).Inc()
}

// RecordOperationDuration observes one guarded operation; result is
// success, failure, or rejected.
func (m *CircuitBreakerMetrics) RecordOperationDuration(name, result string, durationSeconds float64) {
	m.operationDuration.WithLabelValues(name, result).Observe(durationSeconds)
}

// RetryMetrics tracks retried operations by outcome and attempt count.
type RetryMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	attempts   *prometheus.HistogramVec
}

// NewRetryMetrics registers retry metrics with registry (a fresh
// registry when nil, for tests).
func NewRetryMetrics(registry *prometheus.Registry) *RetryMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_operations_total",
		Help: "Retried operations by outcome.",
	}, []string{"name", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_operation_duration_seconds",
		Help:    "Total duration of an operation across all its attempts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name", "result"})

	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_attempts",
		Help:    "Attempts used per operation.",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
	}, []string{"name", "result"})

	_ = registry.Register(operations)
	_ = registry.Register(duration)
	_ = registry.Register(attempts)

	return &RetryMetrics{operations: operations, duration: duration, attempts: attempts}
}

// RecordOperation observes one completed retry loop; result is success,
// failure, or exhausted.
func (m *RetryMetrics) RecordOperation(name, result string, attempts int, durationSeconds float64) {
	m.operations.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name, result).Observe(durationSeconds)
	m.attempts.WithLabelValues(name, result).Observe(float64(attempts))
}

// TimeoutMetrics tracks timeout-guarded operations by outcome.
type TimeoutMetrics struct {
	operations *prometheus.HistogramVec
}

// NewTimeoutMetrics registers timeout metrics with registry (a fresh
// registry when nil, for tests).
func NewTimeoutMetrics(registry *prometheus.Registry) *TimeoutMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeout_operation_duration_seconds",
		Help:    "Duration of timeout-guarded operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name", "result"})

	_ = registry.Register(operations)

	return &TimeoutMetrics{operations: operations}
}

// RecordOperation observes one guarded operation; result is success,
// error, or timeout.
func (m *TimeoutMetrics) RecordOperation(name, result string, durationSeconds float64) {
	m.operations.WithLabelValues(name, result).Observe(durationSeconds)
}

// BulkheadMetrics tracks bulkhead occupancy and outcomes.
type BulkheadMetrics struct {
	operations   *prometheus.CounterVec
	active       *prometheus.GaugeVec
	waiting      *prometheus.GaugeVec
	waitDuration *prometheus.HistogramVec
}

// NewBulkheadMetrics registers bulkhead metrics with registry (a fresh
// registry when nil, for tests).
func NewBulkheadMetrics(registry *prometheus.Registry) *BulkheadMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkhead_operations_total",
		Help: "Bulkhead-guarded operations by outcome.",
	}, []string{"name", "result"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bulkhead_active",
		Help: "Operations currently holding a bulkhead slot.",
	}, []string{"name"})

	waiting := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bulkhead_waiting",
		Help: "Operations queued for a bulkhead slot.",
	}, []string{"name"})

	waitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulkhead_wait_duration_seconds",
		Help:    "Time spent queued for a bulkhead slot.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})

	_ = registry.Register(operations)
	_ = registry.Register(active)
	_ = registry.Register(waiting)
	_ = registry.Register(waitDuration)

	return &BulkheadMetrics{
		operations:   operations,
		active:       active,
		waiting:      waiting,
		waitDuration: waitDuration,
	}
}

// RecordOperation counts one outcome: success, error, rejected, or
// cancelled.
func (m *BulkheadMetrics) RecordOperation(name, result string) {
	m.operations.WithLabelValues(name, result).Inc()
}

// SetActive reports the current slot occupancy.
func (m *BulkheadMetrics) SetActive(name string, count int) {
	m.active.WithLabelValues(name).Set(float64(count))
}

// SetWaiting reports the current queue depth.
func (m *BulkheadMetrics) SetWaiting(name string, count int) {
	m.waiting.WithLabelValues(name).Set(float64(count))
}

// RecordWaitDuration observes time spent queued before a slot freed.
func (m *BulkheadMetrics) RecordWaitDuration(name string, seconds float64) {
	m.waitDuration.WithLabelValues(name).Observe(seconds)
}

// ShutdownMetrics tracks drain progress at process shutdown.
type ShutdownMetrics struct {
	activeRequests     prometheus.Gauge
	rejections         prometheus.Counter
	shutdownInProgress prometheus.Gauge
	shutdownDuration   *prometheus.HistogramVec
}

// NewShutdownMetrics registers shutdown metrics with registry (a fresh
// registry when nil, for tests).
func NewShutdownMetrics(registry *prometheus.Registry) *ShutdownMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	activeRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shutdown_active_checkouts",
		Help: "Checked-out connections tracked by the shutdown coordinator.",
	})

	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shutdown_rejected_checkouts_total",
		Help: "Checkouts rejected because shutdown had begun.",
	})

	shutdownInProgress := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shutdown_in_progress",
		Help: "1 while the process is draining, 0 otherwise.",
	})

	shutdownDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shutdown_drain_duration_seconds",
		Help:    "Time spent draining in-flight checkouts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	_ = registry.Register(activeRequests)
	_ = registry.Register(rejections)
	_ = registry.Register(shutdownInProgress)
	_ = registry.Register(shutdownDuration)

	return &ShutdownMetrics{
		activeRequests:     activeRequests,
		rejections:         rejections,
		shutdownInProgress: shutdownInProgress,
		shutdownDuration:   shutdownDuration,
	}
}

// SetActiveRequests reports the tracked in-flight count.
func (m *ShutdownMetrics) SetActiveRequests(count int64) {
	m.activeRequests.Set(float64(count))
}

// RecordRejection counts one checkout refused during shutdown.
func (m *ShutdownMetrics) RecordRejection() {
	m.rejections.Inc()
}

// SetShutdownInProgress flags whether a drain is underway.
func (m *ShutdownMetrics) SetShutdownInProgress(inProgress bool) {
	if inProgress {
		m.shutdownInProgress.Set(1)
	} else {
		m.shutdownInProgress.Set(0)
	}
}

// RecordShutdownDuration observes one completed drain; result is
// success or timeout.
func (m *ShutdownMetrics) RecordShutdownDuration(d time.Duration, result string) {
	m.shutdownDuration.WithLabelValues(result).Observe(d.Seconds())
}
