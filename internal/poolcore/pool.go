package poolcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	domainerrors "github.com/iruldev/dbcore/internal/domain/errors"
	"github.com/iruldev/dbcore/internal/eventbus"
)

// Pool is a bounded deque of Connections for one (connection, database)
// pair. It services checkout with a timeout, health-checks on borrow,
// replaces broken connections, and transitions between live and dormant.
type Pool struct {
	dsn  string
	name string
	size int

	checkoutTimeout    time.Duration
	idleTimeout        time.Duration
	healthCheckTimeout time.Duration

	bus *eventbus.Bus
	log *slog.Logger

	mu                 sync.Mutex
	deque              []*Connection
	live               bool
	failedHealthChecks int
	version            string

	// availCh is closed whenever a connection becomes available (returned,
	// replaced, or freshly spawned) and immediately swapped for a new one.
	// Checkout waiters capture the current channel under the lock, release
	// the lock, then select on it: a broadcast-and-replace notifier.
	availCh chan struct{}

	idleNotifier      chan struct{}
	idleWatcherCancel chan struct{}
}

// CheckedOutConnection is an exclusive borrow from a Pool. Callers must
// call Return exactly once.
type CheckedOutConnection struct {
	pool     *Pool
	conn     *Connection
	returned bool
	mu       sync.Mutex

	// onReturn, when set, fires exactly once as part of Return. The
	// registry uses it to retire the borrow from the shutdown tracker.
	onReturn func()
}

// NewPool constructs a Pool for dsn, validates its sizing parameters, and
// eagerly spawns size connections plus the idle watcher. name identifies
// the pool ("connection/database") on lifecycle events; bus may be nil,
// in which case no events are published.
func NewPool(ctx context.Context, dsn, name string, size int, checkoutTimeout, idleTimeout, healthCheckTimeout time.Duration, bus *eventbus.Bus, log *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "pool_size must be > 0")
	}
	if checkoutTimeout <= 0 {
		return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "checkout_timeout must be > 0")
	}

	p := &Pool{
		dsn:                dsn,
		name:               name,
		size:               size,
		checkoutTimeout:    checkoutTimeout,
		idleTimeout:        idleTimeout,
		healthCheckTimeout: healthCheckTimeout,
		bus:                bus,
		log:                log,
		availCh:            make(chan struct{}),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reinitLocked(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

// reinitLocked spawns size fresh connections and (re)starts the idle
// watcher. Callers must hold p.mu. Pre-priming availCh (closing the stale
// one, if any, and installing a fresh one) means the first checkout after
// construction does not need to wait on it.
func (p *Pool) reinitLocked(ctx context.Context) error {
	deque := make([]*Connection, 0, p.size)
	for i := 0; i < p.size; i++ {
		conn, err := Dial(ctx, p.dsn, p.log)
		if err != nil {
			for _, c := range deque {
				c.Drop()
			}
			return err
		}
		deque = append(deque, conn)
	}

	p.deque = deque
	p.live = true
	p.failedHealthChecks = 0
	p.startIdleWatcherLocked()
	p.signalAvailLocked()

	if len(deque) > 0 {
		var v string
		if err := deque[0].Raw().QueryRow(ctx, "select version()").Scan(&v); err == nil {
			p.version = v
		}
	}

	return nil
}

// Version returns the server version() string captured when the pool's
// connections were last (re)spawned, for the registry's status interface.
func (p *Pool) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// PoolStats is a point-in-time snapshot of one pool, for metrics scraping.
type PoolStats struct {
	Size               int
	Available          int
	Live               bool
	FailedHealthChecks int
}

// Stats snapshots the pool's current state.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size:               p.size,
		Available:          len(p.deque),
		Live:               p.live,
		FailedHealthChecks: p.failedHealthChecks,
	}
}

// startIdleWatcherLocked launches the background task that transitions the
// pool to dormant after idleTimeout of inactivity. Callers must hold p.mu.
func (p *Pool) startIdleWatcherLocked() {
	cancel := make(chan struct{})
	p.idleWatcherCancel = cancel
	notifier := make(chan struct{}, 1)
	p.idleNotifier = notifier

	go p.idleWatcher(notifier, cancel)
}

// stopIdleWatcherLocked cancels the current idle watcher, if any. Callers
// must hold p.mu. Safe to call when the watcher already exited on its own.
func (p *Pool) stopIdleWatcherLocked() {
	if p.idleWatcherCancel != nil {
		close(p.idleWatcherCancel)
		p.idleWatcherCancel = nil
	}
}

func (p *Pool) idleWatcher(notifier chan struct{}, cancel chan struct{}) {
	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-notifier:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(p.idleTimeout)
		case <-timer.C:
			p.goDormant()
			return
		}
	}
}

// pingIdleNotifier is a non-blocking send: the channel is single-slot, and
// a missed ping only means the idle deadline is checked slightly sooner
// than the most recent activity would otherwise justify. Callers must hold
// p.mu.
func (p *Pool) pingIdleNotifierLocked() {
	select {
	case p.idleNotifier <- struct{}{}:
	default:
	}
}

// signalAvailLocked wakes every current checkout waiter and installs a
// fresh channel for the next round. Callers must hold p.mu.
func (p *Pool) signalAvailLocked() {
	close(p.availCh)
	p.availCh = make(chan struct{})
}

// goDormant closes every connection in the pool and marks it not live.
func (p *Pool) goDormant() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.live {
		return
	}

	for _, c := range p.deque {
		c.Drop()
	}
	p.deque = nil
	p.live = false
	p.idleWatcherCancel = nil
	p.log.Info("pool went dormant", "idle_timeout", p.idleTimeout)
	p.publish(eventbus.KindDormant, fmt.Sprintf("idle for %s, connections released", p.idleTimeout))
}

// publish emits a lifecycle event for this pool when a bus is configured.
func (p *Pool) publish(kind, message string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Kind: kind, Subject: p.name, Message: message})
}

// errRetryCheckout signals the caller to re-enter the checkout algorithm:
// either the pool was just re-initialized out of dormancy, a connection
// failed its health check and was replaced, or a waiter lost the race for
// a just-returned connection.
var errRetryCheckout = fmt.Errorf("retry checkout")

var tracer = otel.Tracer("poolcore")

// Checkout borrows a Connection: dormancy re-init, LIFO pop,
// health-check-or-replace-or-dormant, and an availCh wait when the deque
// is empty, all bounded by checkoutTimeout.
func (p *Pool) Checkout(ctx context.Context) (*CheckedOutConnection, error) {
	ctx, span := tracer.Start(ctx, "pool.Checkout")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.checkoutTimeout)
	defer cancel()

	for {
		conn, err := p.tryCheckout(ctx)
		if err == errRetryCheckout {
			select {
			case <-ctx.Done():
				return nil, domainerrors.NewDomain(domainerrors.CodePoolTimeout,
					fmt.Sprintf("no connection available after %s", p.checkoutTimeout))
			default:
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		return &CheckedOutConnection{pool: p, conn: conn}, nil
	}
}

func (p *Pool) tryCheckout(ctx context.Context) (*Connection, error) {
	p.mu.Lock()

	if !p.live {
		if err := p.reinitLocked(ctx); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.mu.Unlock()
		return nil, errRetryCheckout
	}

	if len(p.deque) == 0 {
		avail := p.availCh
		p.mu.Unlock()

		select {
		case <-avail:
			return nil, errRetryCheckout
		case <-ctx.Done():
			return nil, domainerrors.NewDomain(domainerrors.CodePoolTimeout,
				fmt.Sprintf("no connection available after %s", p.checkoutTimeout))
		}
	}

	last := len(p.deque) - 1
	conn := p.deque[last]
	p.deque = p.deque[:last]
	p.mu.Unlock()

	if err := conn.HealthCheck(ctx, p.healthCheckTimeout); err != nil {
		conn.Kill()
		p.publish(eventbus.KindUnstable, "connection failed its health check")

		p.mu.Lock()
		p.failedHealthChecks++
		if p.failedHealthChecks >= 2 {
			for _, c := range p.deque {
				c.Drop()
			}
			p.deque = nil
			p.live = false
			p.stopIdleWatcherLocked()
			p.mu.Unlock()
			p.publish(eventbus.KindDormant, "repeated health-check failures, connections released")
			return nil, domainerrors.NewDomain(domainerrors.CodePoolDormant, "pool dormant after repeated health-check failures")
		}
		p.mu.Unlock()

		replacement, dialErr := Dial(ctx, p.dsn, p.log)
		if dialErr != nil {
			return nil, dialErr
		}
		p.mu.Lock()
		p.deque = append(p.deque, replacement)
		p.signalAvailLocked()
		p.mu.Unlock()
		return nil, errRetryCheckout
	}

	p.mu.Lock()
	p.failedHealthChecks = 0
	p.pingIdleNotifierLocked()
	p.mu.Unlock()

	return conn, nil
}

// Return hands the underlying Connection back to the pool: if it is still
// live it goes to the head of the deque (LIFO reuse), otherwise a
// replacement is spawned and the broken one discarded. availCh is
// signalled either way.
func (c *CheckedOutConnection) Return(ctx context.Context) {
	c.mu.Lock()
	if c.returned {
		c.mu.Unlock()
		return
	}
	c.returned = true
	c.mu.Unlock()

	if c.onReturn != nil {
		c.onReturn()
	}

	p := c.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.live {
		c.conn.Drop()
		return
	}

	if c.conn.IsLive() {
		p.deque = append(p.deque, c.conn)
	} else {
		replacement, err := Dial(ctx, p.dsn, p.log)
		if err != nil {
			p.log.Warn("failed to spawn replacement connection on return", "error", err)
		} else {
			p.deque = append(p.deque, replacement)
		}
	}

	p.signalAvailLocked()
}

// Conn exposes the borrowed Connection for the query engine to drive.
func (c *CheckedOutConnection) Conn() *Connection {
	return c.conn
}

// Reload atomically replaces the pool's deque: every existing connection
// is dropped and size fresh ones are dialed, all under the pool lock, so
// in-flight checkouts observe either the old or the new deque, never both.
func (p *Pool) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.deque {
		c.Drop()
	}
	p.stopIdleWatcherLocked()

	return p.reinitLocked(ctx)
}

// Close tears down every connection and stops the idle watcher. Used when
// the Registry retires this pool's key.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.deque {
		c.Drop()
	}
	p.deque = nil
	p.live = false
	p.stopIdleWatcherLocked()
}
