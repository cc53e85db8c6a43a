package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Timeout bounds one guarded operation with its own deadline, tighter
// than the connection-level query timeout. The catalog uses one around
// an enrichment pass: both of its round trips together must finish
// within the configured database budget or the page is returned
// unenriched.
type Timeout interface {
	// Do runs fn under the configured deadline. Expiry is reported as
	// ErrTimeoutExceeded (RES-003); a cancellation arriving from the
	// caller's own context passes through untouched.
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// Name is the metrics/logging label for this timeout.
	Name() string

	// Duration reports the configured deadline.
	Duration() time.Duration
}

type timeoutGuard struct {
	name     string
	duration time.Duration
	metrics  *TimeoutMetrics
	logger   *slog.Logger
}

// TimeoutOption configures a Timeout.
type TimeoutOption func(*timeoutOptions)

type timeoutOptions struct {
	metrics *TimeoutMetrics
	logger  *slog.Logger
}

// WithTimeoutMetrics records outcomes and durations to m.
func WithTimeoutMetrics(m *TimeoutMetrics) TimeoutOption {
	return func(o *timeoutOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTimeoutLogger routes timeout logs to l.
func WithTimeoutLogger(l *slog.Logger) TimeoutOption {
	return func(o *timeoutOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewTimeout builds a Timeout with the given deadline.
func NewTimeout(name string, duration time.Duration, opts ...TimeoutOption) Timeout {
	options := &timeoutOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	return &timeoutGuard{
		name:     name,
		duration: duration,
		metrics:  options.metrics,
		logger:   options.logger,
	}
}

func (t *timeoutGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, t.duration)
	defer cancel()

	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			t.record("timeout", duration)
			t.logger.Warn("operation exceeded timeout",
				"name", t.name,
				"timeout_duration", t.duration.String(),
				"actual_duration_ms", duration.Milliseconds())
			return NewTimeoutExceededError(err)
		}
		t.record("error", duration)
		return err
	}

	t.record("success", duration)
	return nil
}

func (t *timeoutGuard) record(result string, duration time.Duration) {
	if t.metrics != nil {
		t.metrics.RecordOperation(t.name, result, duration.Seconds())
	}
}

func (t *timeoutGuard) Name() string {
	return t.name
}

func (t *timeoutGuard) Duration() time.Duration {
	return t.duration
}
