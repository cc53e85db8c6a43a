package resilience

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Bulkhead caps how many guarded operations run at once, with a bounded
// waiting line behind the cap. The catalog runs enrichment passes
// through one: every pass borrows the caller's connection for two extra
// round trips, and without a cap a burst of wide result sets would turn
// into a burst of catalog traffic on every pool at once.
type Bulkhead interface {
	// Do runs fn within the concurrency cap, waiting for a slot if the
	// waiting line has room. A full line is rejected immediately with
	// ErrBulkheadFull (RES-002).
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// Name is the metrics/logging label for this bulkhead.
	Name() string

	// ActiveCount reports how many operations hold a slot right now.
	ActiveCount() int

	// WaitingCount reports how many operations are queued for a slot.
	WaitingCount() int
}

type bulkhead struct {
	name       string
	maxConc    int
	maxWaiting int
	slots      chan struct{}
	metrics    *BulkheadMetrics
	logger     *slog.Logger

	active  atomic.Int64
	waiting atomic.Int64
}

// BulkheadOption configures a Bulkhead.
type BulkheadOption func(*bulkheadOptions)

type bulkheadOptions struct {
	metrics *BulkheadMetrics
	logger  *slog.Logger
}

// WithBulkheadMetrics records occupancy and outcomes to m.
func WithBulkheadMetrics(m *BulkheadMetrics) BulkheadOption {
	return func(o *bulkheadOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithBulkheadLogger routes bulkhead logs to l.
func WithBulkheadLogger(l *slog.Logger) BulkheadOption {
	return func(o *bulkheadOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewBulkhead builds a Bulkhead allowing cfg.MaxConcurrent operations
// with up to cfg.MaxWaiting queued behind them. Panics on a nonsensical
// configuration, matching the fail-fast construction of the other
// guards.
func NewBulkhead(name string, cfg BulkheadConfig, opts ...BulkheadOption) Bulkhead {
	if cfg.MaxConcurrent < 1 {
		panic("resilience: bulkhead MaxConcurrent must be >= 1")
	}
	if cfg.MaxWaiting < 0 {
		panic("resilience: bulkhead MaxWaiting must be >= 0")
	}

	options := &bulkheadOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	return &bulkhead{
		name:       name,
		maxConc:    cfg.MaxConcurrent,
		maxWaiting: cfg.MaxWaiting,
		slots:      make(chan struct{}, cfg.MaxConcurrent),
		metrics:    options.metrics,
		logger:     options.logger,
	}
}

func (b *bulkhead) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case b.slots <- struct{}{}:
		return b.run(ctx, fn, 0)
	default:
	}

	// No free slot. Claim a place in the waiting line, or reject when
	// the line itself is full. CAS keeps the line bound exact under
	// concurrent arrivals.
	for {
		queued := b.waiting.Load()
		if queued >= int64(b.maxWaiting) {
			b.snapshot("rejected")
			b.logger.Warn("bulkhead rejected operation",
				"name", b.name,
				"max_concurrent", b.maxConc,
				"max_waiting", b.maxWaiting)
			return NewBulkheadFullError(nil)
		}
		if b.waiting.CompareAndSwap(queued, queued+1) {
			break
		}
	}

	waitStart := time.Now()
	select {
	case b.slots <- struct{}{}:
		b.waiting.Add(-1)
		return b.run(ctx, fn, time.Since(waitStart))
	case <-ctx.Done():
		b.waiting.Add(-1)
		b.snapshot("cancelled")
		return ctx.Err()
	}
}

// run executes fn with a slot already held, releasing it on any exit.
func (b *bulkhead) run(ctx context.Context, fn func(ctx context.Context) error, waited time.Duration) error {
	b.active.Add(1)
	defer func() {
		<-b.slots
		b.active.Add(-1)
	}()

	if waited > 0 && b.metrics != nil {
		b.metrics.RecordWaitDuration(b.name, waited.Seconds())
	}

	err := fn(ctx)
	if err != nil {
		b.snapshot("error")
		return err
	}
	b.snapshot("success")
	return nil
}

func (b *bulkhead) snapshot(result string) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordOperation(b.name, result)
	b.metrics.SetActive(b.name, int(b.active.Load()))
	b.metrics.SetWaiting(b.name, int(b.waiting.Load()))
}

func (b *bulkhead) Name() string {
	return b.name
}

func (b *bulkhead) ActiveCount() int {
	return int(b.active.Load())
}

func (b *bulkhead) WaitingCount() int {
	return int(b.waiting.Load())
}
