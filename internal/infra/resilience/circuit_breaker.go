package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// State is the breaker state exposed to callers and metrics.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

func stateToInt(s State) int {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreaker trips after consecutive failures of a guarded database
// operation and rejects further attempts until the cool-off elapses. The
// catalog runs its enrichment round trips through one so a database that
// keeps failing catalog queries stops being asked, while the user's own
// paginated selects continue unguarded.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open, in which case it
	// returns ErrCircuitOpen (RES-001) without calling fn.
	Execute(ctx context.Context, fn func() (any, error)) (any, error)

	// State reports the current breaker state.
	State() State

	// Name is the metrics/logging label for this breaker.
	Name() string
}

type circuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	metrics *CircuitBreakerMetrics
	logger  *slog.Logger
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*circuitBreakerOptions)

type circuitBreakerOptions struct {
	metrics *CircuitBreakerMetrics
	logger  *slog.Logger
}

// WithMetrics records breaker state and operation durations to m.
func WithMetrics(m *CircuitBreakerMetrics) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		o.metrics = m
	}
}

// WithLogger routes breaker state-change logs to l.
func WithLogger(l *slog.Logger) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		o.logger = l
	}
}

// NewCircuitBreaker builds a breaker over gobreaker that opens after
// cfg.FailureThreshold consecutive failures and half-opens after
// cfg.Timeout.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, opts ...CircuitBreakerOption) CircuitBreaker {
	options := &circuitBreakerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	cb := &circuitBreaker{
		name:    name,
		metrics: options.metrics,
		logger:  options.logger,
	}

	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: cb.onStateChange,
	})

	if cb.metrics != nil {
		cb.metrics.SetState(name, stateToInt(StateClosed))
	}

	return cb
}

func (cb *circuitBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	start := time.Now()

	result, err := cb.breaker.Execute(func() (any, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fn()
	})

	duration := time.Since(start).Seconds()

	// gobreaker reports both "open" and "half-open with its quota spent"
	// as distinct sentinels; callers see a single circuit-open code.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		cb.record("rejected", duration)
		return nil, NewCircuitOpenError(err)
	}

	if err != nil {
		cb.record("failure", duration)
		return result, err
	}
	cb.record("success", duration)
	return result, nil
}

func (cb *circuitBreaker) record(result string, duration float64) {
	if cb.metrics != nil {
		cb.metrics.RecordOperationDuration(cb.name, result, duration)
	}
}

func (cb *circuitBreaker) State() State {
	return fromGobreakerState(cb.breaker.State())
}

func (cb *circuitBreaker) Name() string {
	return cb.name
}

func (cb *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	fromState := fromGobreakerState(from)
	toState := fromGobreakerState(to)

	if cb.metrics != nil {
		cb.metrics.SetState(name, stateToInt(toState))
		cb.metrics.RecordTransition(name, string(fromState), string(toState))
	}

	// Tripping open and recovering closed are operator-relevant; the
	// half-open probe window is only debug noise.
	level := slog.LevelDebug
	if to == gobreaker.StateOpen || to == gobreaker.StateClosed {
		level = slog.LevelInfo
	}
	cb.logger.Log(context.Background(), level, "circuit breaker state changed",
		"name", name,
		"previous_state", string(fromState),
		"new_state", string(toState),
	)
}

// DefaultCircuitBreakerConfig returns the package defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      DefaultCBMaxRequests,
		Interval:         DefaultCBInterval,
		Timeout:          DefaultCBTimeout,
		FailureThreshold: DefaultCBFailureThreshold,
	}
}
