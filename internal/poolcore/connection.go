// Package poolcore implements the connection pool and registry that back
// the query engine: one wire connection plus a background task per
// Connection, a bounded LIFO deque per Pool, and a tri-state registry
// mapping (connection, database) to pool lifecycle state.
//
// The pool is hand-rolled over raw *pgx.Conn rather than pgxpool: the
// checkout algorithm needs an explicit deque, LIFO reuse, a 2-strike
// dormancy threshold, and idle-driven teardown that a managed pool does
// not expose as primitives.
package poolcore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	domainerrors "github.com/iruldev/dbcore/internal/domain/errors"
)

// Connection is a live, authenticated session to a database plus a
// background task. Two one-shot signals couple owner and task: kill
// (owner -> task, terminate) and liveness (task -> owner, fires when the
// task exits for any reason).
//
// pgx drives the wire synchronously per call rather than through a
// separate I/O future, so the background task here does not itself pump
// bytes; it owns the lifetime decision. Wire errors observed by callers
// (health check, query execution) are reported back via NoteWireError,
// which plays the same role the original wire-errored branch would.
type Connection struct {
	conn *pgx.Conn
	log  *slog.Logger

	killOnce sync.Once
	kill     chan struct{}

	liveness     chan struct{}
	livenessOnce sync.Once

	citextOnce sync.Once
	citextOID  uint32

	mu   sync.Mutex
	dead bool
}

// Dial opens a wire connection (TLS config embedded in dsn via sslmode) and
// spawns its background task.
func Dial(ctx context.Context, dsn string, log *slog.Logger) (*Connection, error) {
	pgxCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeWireError, "invalid connection string", err)
	}

	conn, err := pgx.ConnectConfig(ctx, pgxCfg)
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeWireError, "failed to dial connection", err)
	}

	c := &Connection{
		conn:     conn,
		log:      log,
		kill:     make(chan struct{}),
		liveness: make(chan struct{}),
	}

	go c.backgroundTask()

	return c, nil
}

// backgroundTask waits for the kill signal, marks the connection dead, and
// fires liveness. It is the sole writer of the terminal state transition.
func (c *Connection) backgroundTask() {
	<-c.kill
	c.log.Debug("connection killed")
	c.markDead()
}

func (c *Connection) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
	c.livenessOnce.Do(func() { close(c.liveness) })
}

// NoteWireError records an I/O failure observed by a caller driving this
// connection (a query, a health check). It plays the role of the
// wire-errored branch of the background task: the connection transitions
// to not-live and liveness fires, without waiting for an explicit kill.
func (c *Connection) NoteWireError(err error) {
	if err == nil {
		return
	}
	c.log.Warn("connection wire error", "error", err)
	c.markDead()
}

// IsLive consumes the liveness signal non-blockingly. The first poll after
// the background task exits (for any reason) returns false; every
// subsequent poll also returns false: a terminal, sticky state.
func (c *Connection) IsLive() bool {
	select {
	case <-c.liveness:
		return false
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead
}

// Kill is idempotent: it closes the kill channel exactly once regardless of
// how many times it is called. Drop calls Kill.
func (c *Connection) Kill() {
	c.killOnce.Do(func() {
		close(c.kill)
	})
}

// Drop kills the connection and releases the underlying wire. Safe to call
// multiple times.
func (c *Connection) Drop() {
	c.Kill()
	_ = c.conn.Close(context.Background())
}

// HealthCheck performs a trivial round trip (SELECT 1) bounded by timeout.
// Failure marks the connection for replacement by the caller; HealthCheck
// itself notes the wire error but does not kill the connection directly;
// the pool's checkout algorithm decides whether to replace or go dormant.
func (c *Connection) HealthCheck(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var one int
	if err := c.conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		wrapped := domainerrors.NewDomainWithCause(domainerrors.CodeWireError, "health check failed", err)
		c.NoteWireError(wrapped)
		return wrapped
	}
	return nil
}

// Raw exposes the underlying *pgx.Conn for the query engine to drive
// prepare/query/exec against. It is only valid while IsLive() is true.
func (c *Connection) Raw() *pgx.Conn {
	return c.conn
}

// CitextOID resolves the citext extension's type OID on this database,
// caching the result for the connection's lifetime. citext is an
// extension type with no fixed OID, so it cannot live in a static type
// table. Returns 0 when the extension is not installed.
func (c *Connection) CitextOID(ctx context.Context) uint32 {
	c.citextOnce.Do(func() {
		var oid uint32
		err := c.conn.QueryRow(ctx, "SELECT oid FROM pg_type WHERE typname = 'citext'").Scan(&oid)
		if err != nil {
			return
		}
		c.citextOID = oid
	})
	return c.citextOID
}
