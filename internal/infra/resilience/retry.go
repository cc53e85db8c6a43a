package resilience

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retrier re-attempts a failed operation with exponential backoff and
// jitter. The registry runs pool dials through one: a momentary network
// blip while spawning a pool's connections should not mark the whole
// (connection, database) key as failed.
type Retrier interface {
	// Do runs fn until it succeeds, the error is non-retryable, the
	// context is cancelled, or MaxAttempts is exhausted (RES-004).
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// Name is the metrics/logging label for this retrier.
	Name() string
}

type retrier struct {
	name        string
	cfg         RetryConfig
	metrics     *RetryMetrics
	logger      *slog.Logger
	isRetryable func(error) bool
}

// RetrierOption configures a Retrier.
type RetrierOption func(*retrierOptions)

type retrierOptions struct {
	metrics     *RetryMetrics
	logger      *slog.Logger
	isRetryable func(error) bool
}

// WithRetryMetrics records attempt counts and outcomes to m.
func WithRetryMetrics(m *RetryMetrics) RetrierOption {
	return func(o *retrierOptions) {
		o.metrics = m
	}
}

// WithRetryLogger routes retry logs to l.
func WithRetryLogger(l *slog.Logger) RetrierOption {
	return func(o *retrierOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetryableFunc overrides the retryable-error predicate.
func WithRetryableFunc(fn func(error) bool) RetrierOption {
	return func(o *retrierOptions) {
		if fn != nil {
			o.isRetryable = fn
		}
	}
}

// NewRetrier builds a Retrier over go-retry. Backoff doubles from
// cfg.InitialDelay with jitter, capped at cfg.MaxDelay, for at most
// cfg.MaxAttempts total attempts.
func NewRetrier(name string, cfg RetryConfig, opts ...RetrierOption) Retrier {
	options := &retrierOptions{
		logger:      slog.Default(),
		isRetryable: DefaultIsRetryable,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &retrier{
		name:        name,
		cfg:         cfg,
		metrics:     options.metrics,
		logger:      options.logger,
		isRetryable: options.isRetryable,
	}
}

func (r *retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0
	var lastErr error

	backoff := retry.NewExponential(r.cfg.InitialDelay)
	backoff = retry.WithJitter(r.cfg.InitialDelay/4, backoff)
	backoff = retry.WithCappedDuration(r.cfg.MaxDelay, backoff)
	// go-retry counts retries, not attempts; the first call is free.
	var maxRetries uint64
	if r.cfg.MaxAttempts > 1 {
		maxRetries = uint64(r.cfg.MaxAttempts - 1)
	}
	backoff = retry.WithMaxRetries(maxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		opErr := fn(ctx)
		if opErr == nil {
			return nil
		}
		lastErr = opErr

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.isRetryable(opErr) {
			r.logger.Debug("non-retryable error, stopping retry",
				"name", r.name, "attempt", attempt, "error", opErr)
			return opErr
		}

		r.logger.Debug("operation failed, will retry",
			"name", r.name,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"error", opErr)
		return retry.RetryableError(opErr)
	})

	duration := time.Since(start)

	if err == nil {
		r.record("success", attempt, duration)
		if attempt > 1 {
			r.logger.Info("operation succeeded after retry",
				"name", r.name,
				"total_attempts", attempt,
				"duration_ms", duration.Milliseconds())
		}
		return nil
	}

	if attempt >= r.cfg.MaxAttempts {
		r.record("exhausted", attempt, duration)
		r.logger.Warn("max retries exceeded",
			"name", r.name,
			"total_attempts", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"duration_ms", duration.Milliseconds(),
			"last_error", lastErr)
		return NewMaxRetriesExceededError(lastErr)
	}

	r.record("failure", attempt, duration)
	return err
}

func (r *retrier) record(result string, attempts int, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordOperation(r.name, result, attempts, duration.Seconds())
	}
}

func (r *retrier) Name() string {
	return r.name
}

// RetryableError lets an error say explicitly whether retrying can help.
type RetryableError interface {
	error
	Retryable() bool
}

type temporaryError interface {
	Temporary() bool
}

// DefaultIsRetryable treats deadline expiry, self-declared retryable or
// temporary errors, and network timeouts as retryable; an explicit
// context.Canceled is not. Unknown errors default to retryable, since a
// failed pool dial is most often a transient network condition.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	var tempErr temporaryError
	if errors.As(err, &tempErr) {
		return tempErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return true
}

// DefaultRetryConfig returns the package defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultRetryMaxAttempts,
		InitialDelay: DefaultRetryInitialDelay,
		MaxDelay:     DefaultRetryMaxDelay,
		Multiplier:   DefaultRetryMultiplier,
	}
}
