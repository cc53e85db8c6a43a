package poolcore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/iruldev/dbcore/internal/config"
	domainerrors "github.com/iruldev/dbcore/internal/domain/errors"
	"github.com/iruldev/dbcore/internal/eventbus"
)

// registryState tags which of the three PoolState variants an entry holds.
type registryState int

const (
	stateActive registryState = iota
	statePending
	stateFailed
)

// registryEntry is the tagged union Active(Pool) | Pending{notify, cancel}
// | Failed(message). Exactly one branch is meaningful per state.
type registryEntry struct {
	state registryState

	pool *Pool

	notify chan struct{}
	cancel chan struct{}

	failedErr error
}

// Retrier retries transient failures while a pool is being created. It is
// satisfied by resilience.Retrier; a nil Retrier means a single attempt.
type Retrier interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// CheckoutTracker counts checkouts in flight so process shutdown can
// drain them before pools close. It is satisfied by
// resilience.ShutdownCoordinator; a nil tracker disables draining.
type CheckoutTracker interface {
	IncrementActive() bool
	DecrementActive()
}

// Registry maps (connection_name, database_name) to pool lifecycle state.
// At most one Pending entry exists per key at any time; the task that
// installs it is solely responsible for resolving it to Active or Failed.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	configs map[string]config.ConnectionConfig

	bus     *eventbus.Bus
	retrier Retrier
	tracker CheckoutTracker
	log     *slog.Logger
}

// NewRegistry constructs an empty Registry over the given named
// connection configs.
func NewRegistry(conns []config.ConnectionConfig, bus *eventbus.Bus, retrier Retrier, tracker CheckoutTracker, log *slog.Logger) *Registry {
	configs := make(map[string]config.ConnectionConfig, len(conns))
	for _, c := range conns {
		configs[c.Name] = c.WithDefaults()
	}

	return &Registry{
		entries: make(map[string]*registryEntry),
		configs: configs,
		bus:     bus,
		retrier: retrier,
		tracker: tracker,
		log:     log,
	}
}

func entryKey(conn, db string) string {
	return conn + "/" + db
}

// GetDefault resolves conn's configured default database and delegates to
// Get.
func (r *Registry) GetDefault(ctx context.Context, conn string) (*CheckedOutConnection, error) {
	r.mu.Lock()
	cfg, ok := r.configs[conn]
	r.mu.Unlock()
	if !ok {
		return nil, domainerrors.NewDomain(domainerrors.CodeClientError, fmt.Sprintf("unknown connection %q", conn))
	}
	return r.Get(ctx, conn, cfg.Database)
}

// Get follows the 7-step single-flight algorithm: Active pools delegate
// directly, Failed entries surface their stored error, Pending entries
// are awaited and re-checked, and an absent entry is claimed by the
// calling goroutine, which resolves the config, materializes the
// password, dials the pool, and publishes the outcome to every waiter.
func (r *Registry) Get(ctx context.Context, conn, db string) (*CheckedOutConnection, error) {
	key := entryKey(conn, db)

	for {
		r.mu.Lock()
		entry, ok := r.entries[key]

		switch {
		case ok && entry.state == stateActive:
			pool := entry.pool
			r.mu.Unlock()
			return r.checkout(ctx, pool)

		case ok && entry.state == stateFailed:
			failedErr := entry.failedErr
			r.mu.Unlock()
			return nil, failedErr

		case ok && entry.state == statePending:
			notify := entry.notify
			r.mu.Unlock()
			select {
			case <-notify:
				continue
			case <-ctx.Done():
				return nil, domainerrors.NewDomain(domainerrors.CodePoolTimeout, "context cancelled while waiting for pool creation")
			}

		default:
			pending := &registryEntry{
				state:  statePending,
				notify: make(chan struct{}),
				cancel: make(chan struct{}),
			}
			r.entries[key] = pending
			r.mu.Unlock()

			r.createPool(ctx, conn, db, key, pending)
			continue
		}
	}
}

// checkout borrows from pool, registering the borrow with the shutdown
// tracker so a process drain waits for it. A tracker that refuses the
// borrow means shutdown has begun and the checkout is rejected outright.
func (r *Registry) checkout(ctx context.Context, pool *Pool) (*CheckedOutConnection, error) {
	if r.tracker != nil && !r.tracker.IncrementActive() {
		return nil, domainerrors.NewDomain(domainerrors.CodeClientError, "registry is shutting down")
	}

	conn, err := pool.Checkout(ctx)
	if err != nil {
		if r.tracker != nil {
			r.tracker.DecrementActive()
		}
		return nil, err
	}

	if r.tracker != nil {
		conn.onReturn = r.tracker.DecrementActive
	}
	return conn, nil
}

// createPool resolves the config, materializes the password, dials the
// pool, and installs the resolved state, unless cancel fired while it
// was working, in which case it discards its result and retires the key.
func (r *Registry) createPool(ctx context.Context, conn, db string, key string, pending *registryEntry) {
	r.mu.Lock()
	cfg, ok := r.configs[conn]
	r.mu.Unlock()

	if !ok {
		r.resolvePending(key, pending, nil, domainerrors.NewDomain(domainerrors.CodeClientError, fmt.Sprintf("unknown connection %q", conn)))
		return
	}

	r.bus.Publish(eventbus.Event{Kind: eventbus.KindOpening, Subject: key})

	password, err := materializePassword(ctx, cfg.Password, cfg.PasswordCmd, key, r.bus)
	if err != nil {
		select {
		case <-pending.cancel:
			r.retireCancelled(key, pending)
			return
		default:
		}
		r.resolvePending(key, pending, nil, err)
		return
	}

	dsn := buildDSN(cfg, db, password)

	pool, err := r.dialPool(ctx, dsn, key, cfg)
	select {
	case <-pending.cancel:
		if pool != nil {
			pool.Close()
		}
		r.retireCancelled(key, pending)
		return
	default:
	}

	if err != nil {
		r.bus.Publish(eventbus.Event{Kind: eventbus.KindFailure, Subject: key, Message: err.Error()})
		r.resolvePending(key, pending, nil, err)
		return
	}

	r.bus.Publish(eventbus.Event{Kind: eventbus.KindSuccess, Subject: key, Message: pool.Version()})
	r.resolvePending(key, pending, pool, nil)
}

// dialPool spawns the pool's connections, retrying transient dial
// failures through the configured retrier when one is present.
func (r *Registry) dialPool(ctx context.Context, dsn, key string, cfg config.ConnectionConfig) (*Pool, error) {
	newPool := func(ctx context.Context) (*Pool, error) {
		return NewPool(ctx, dsn, key, cfg.PoolSize, cfg.CheckoutTimeout, cfg.IdleTimeout, cfg.HealthCheckTimeout, r.bus, r.log)
	}

	if r.retrier == nil {
		return newPool(ctx)
	}

	var pool *Pool
	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		var dialErr error
		pool, dialErr = newPool(ctx)
		return dialErr
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// resolvePending installs the terminal state (Active or Failed) in place
// of pending and wakes every waiter.
func (r *Registry) resolvePending(key string, pending *registryEntry, pool *Pool, failedErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool != nil {
		r.entries[key] = &registryEntry{state: stateActive, pool: pool}
	} else {
		r.entries[key] = &registryEntry{state: stateFailed, failedErr: failedErr}
	}
	close(pending.notify)
}

// retireCancelled removes the key entirely so the next Get starts fresh,
// and wakes any waiters that arrived before cancellation.
func (r *Registry) retireCancelled(key string, pending *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok && entry == pending {
		delete(r.entries, key)
	}
	close(pending.notify)
}

// Close removes the (conn, db) entry, killing its pool. A Pending entry is
// retired via its cancel channel so the in-flight creator discards its
// result.
func (r *Registry) Close(conn, db string) {
	key := entryKey(conn, db)

	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.mu.Unlock()

	switch entry.state {
	case stateActive:
		entry.pool.Close()
	case statePending:
		close(entry.cancel)
	}
}

// CloseAll tears down every Active pool and retires every Pending entry,
// for use at process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		switch entry.state {
		case stateActive:
			entry.pool.Close()
		case statePending:
			close(entry.cancel)
		}
	}
}

// Reload replaces conn's configured connection parameters and reloads
// every pool currently active under that connection name in place (the
// pool for the default database and any other database opened on demand
// via Get). Pending entries are left alone; an in-flight creator that
// has already read r.configs finishes with the parameters it read.
func (r *Registry) Reload(ctx context.Context, conn string, newCfg config.ConnectionConfig) error {
	r.mu.Lock()
	r.configs[conn] = newCfg.WithDefaults()

	var toReload []*Pool
	prefix := conn + "/"
	for key, entry := range r.entries {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if entry.state != stateActive {
			continue
		}
		toReload = append(toReload, entry.pool)
	}
	r.mu.Unlock()

	for _, p := range toReload {
		if err := p.Reload(ctx); err != nil {
			return err
		}
	}

	return nil
}

// ReloadAll diffs updated against the registry's current named
// connections: connections absent from updated are closed entirely
// (every pool they own, killed); connections present in both are
// reloaded in place via Reload; connections new to updated are simply
// registered, to be lazily created on first Get. This is the Registry
// side of the external registry.reload(updated_configs) interface.
func (r *Registry) ReloadAll(ctx context.Context, updated []config.ConnectionConfig) error {
	updatedByName := make(map[string]config.ConnectionConfig, len(updated))
	for _, c := range updated {
		updatedByName[c.Name] = c
	}

	r.mu.Lock()
	var removed []string
	for name := range r.configs {
		if _, ok := updatedByName[name]; !ok {
			removed = append(removed, name)
		}
	}
	r.mu.Unlock()

	for _, name := range removed {
		r.closeConn(name)
	}

	for _, cfg := range updated {
		if err := r.Reload(ctx, cfg.Name, cfg); err != nil {
			return err
		}
	}

	return nil
}

// closeConn removes every (conn, *) entry for name, closing active pools
// and retiring pending ones, then drops the connection from r.configs
// entirely.
func (r *Registry) closeConn(name string) {
	prefix := name + "/"

	r.mu.Lock()
	var keys []string
	for key := range r.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	delete(r.configs, name)
	r.mu.Unlock()

	for _, key := range keys {
		db := key[len(prefix):]
		r.Close(name, db)
	}
}

// StatusEntry describes one registry entry for the status external
// interface: connection/database, its lifecycle status, and a message
// (the server version() string for active pools, or the failure message
// for failed ones).
type StatusEntry struct {
	Connection string
	Database   string
	Status     string
	Message    string
}

// Status lists every known (connection, database) entry and its current
// lifecycle state.
func (r *Registry) Status() []StatusEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]StatusEntry, 0, len(r.entries))
	for key, entry := range r.entries {
		conn, db := splitKey(key)
		st := StatusEntry{Connection: conn, Database: db}
		switch entry.state {
		case stateActive:
			st.Status = "active"
			st.Message = entry.pool.Version()
		case statePending:
			st.Status = "pending"
		case stateFailed:
			st.Status = "failed"
			st.Message = entry.failedErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// ActivePoolStat pairs one active pool's identity with a stats snapshot.
type ActivePoolStat struct {
	Connection string
	Database   string
	Stats      PoolStats
}

// ActivePoolStats snapshots every Active pool, for metrics scraping.
func (r *Registry) ActivePoolStats() []ActivePoolStat {
	r.mu.Lock()
	type active struct {
		conn, db string
		pool     *Pool
	}
	pools := make([]active, 0, len(r.entries))
	for key, entry := range r.entries {
		if entry.state != stateActive {
			continue
		}
		conn, db := splitKey(key)
		pools = append(pools, active{conn: conn, db: db, pool: entry.pool})
	}
	r.mu.Unlock()

	out := make([]ActivePoolStat, len(pools))
	for i, a := range pools {
		out[i] = ActivePoolStat{Connection: a.conn, Database: a.db, Stats: a.pool.Stats()}
	}
	return out
}

func splitKey(key string) (conn, db string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// buildDSN renders a libpq-style connection URI for cfg targeting
// database db with the materialized password.
func buildDSN(cfg config.ConnectionConfig, db, password string) string {
	sslmode := "disable"
	if cfg.SSL {
		sslmode = "require"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + db,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}
