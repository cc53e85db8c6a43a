package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ShutdownCoordinator drains in-flight work before the registry closes
// its pools. The registry counts every successful checkout in and every
// return out; at shutdown the coordinator refuses new checkouts, waits
// up to DrainPeriod for outstanding ones to come back, and only then is
// it safe to kill the pools under them.
type ShutdownCoordinator interface {
	// IncrementActive registers one unit of in-flight work. It returns
	// false once shutdown has begun; the caller must reject the work.
	IncrementActive() bool

	// DecrementActive retires one unit of in-flight work.
	DecrementActive()

	// ActiveCount reports the current in-flight count.
	ActiveCount() int64

	// IsShuttingDown reports whether shutdown has begun.
	IsShuttingDown() bool

	// InitiateShutdown flips the coordinator into shutdown: subsequent
	// IncrementActive calls return false. Idempotent.
	InitiateShutdown()

	// WaitForDrain blocks until the in-flight count reaches zero or
	// DrainPeriod expires, returning an error on expiry.
	WaitForDrain(ctx context.Context) error

	// Config exposes the drain/grace configuration so the caller can
	// apply GracePeriod to its own cleanup after the drain.
	Config() ShutdownConfig
}

// ShutdownOption configures the coordinator.
type ShutdownOption func(*shutdownCoordinator)

// WithShutdownMetrics records drain progress and rejections to m.
func WithShutdownMetrics(m *ShutdownMetrics) ShutdownOption {
	return func(s *shutdownCoordinator) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithShutdownLogger routes drain logs to l.
func WithShutdownLogger(l *slog.Logger) ShutdownOption {
	return func(s *shutdownCoordinator) {
		if l != nil {
			s.logger = l
		}
	}
}

type shutdownCoordinator struct {
	cfg          ShutdownConfig
	shuttingDown atomic.Bool
	active       atomic.Int64
	metrics      *ShutdownMetrics
	logger       *slog.Logger
}

// NewShutdownCoordinator builds a coordinator, failing fast on an
// invalid drain configuration.
func NewShutdownCoordinator(cfg ShutdownConfig, opts ...ShutdownOption) ShutdownCoordinator {
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("invalid shutdown config: %v", err))
	}

	s := &shutdownCoordinator{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IncrementActive adds first, then checks the shutdown flag, rolling
// the add back if shutdown won the race. The count therefore never
// misses work that slipped in just before the flag flipped.
func (s *shutdownCoordinator) IncrementActive() bool {
	count := s.active.Add(1)

	if s.shuttingDown.Load() {
		s.active.Add(-1)
		s.logger.Warn("checkout rejected during shutdown", "active", s.active.Load())
		if s.metrics != nil {
			s.metrics.RecordRejection()
		}
		return false
	}

	if s.metrics != nil {
		s.metrics.SetActiveRequests(count)
	}
	return true
}

// DecrementActive tolerates a stray extra call by clamping at zero
// rather than letting the drain wait on a negative count forever.
func (s *shutdownCoordinator) DecrementActive() {
	count := s.active.Add(-1)
	if count < 0 {
		s.active.CompareAndSwap(count, 0)
		s.logger.Warn("active count went negative, reset to 0", "previous", count)
		count = 0
	}
	if s.metrics != nil {
		s.metrics.SetActiveRequests(count)
	}
}

func (s *shutdownCoordinator) ActiveCount() int64 {
	return s.active.Load()
}

func (s *shutdownCoordinator) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

func (s *shutdownCoordinator) InitiateShutdown() {
	if s.shuttingDown.Swap(true) {
		return
	}

	s.logger.Info("shutdown initiated",
		"drain_period", s.cfg.DrainPeriod,
		"active", s.active.Load())
	if s.metrics != nil {
		s.metrics.SetShutdownInProgress(true)
	}
}

func (s *shutdownCoordinator) WaitForDrain(ctx context.Context) error {
	start := time.Now()

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainPeriod)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.active.Load() <= 0 {
			duration := time.Since(start)
			s.logger.Info("drain completed", "duration", duration)
			if s.metrics != nil {
				s.metrics.RecordShutdownDuration(duration, "success")
			}
			return nil
		}

		select {
		case <-drainCtx.Done():
			remaining := s.active.Load()
			duration := time.Since(start)
			s.logger.Warn("drain timeout, closing pools under in-flight work",
				"remaining", remaining,
				"duration", duration)
			if s.metrics != nil {
				s.metrics.RecordShutdownDuration(duration, "timeout")
			}
			return fmt.Errorf("drain timeout: %d checkouts still outstanding", remaining)
		case <-ticker.C:
		}
	}
}

func (s *shutdownCoordinator) Config() ShutdownConfig {
	return s.cfg
}
