package poolcore

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iruldev/dbcore/internal/config"
	"github.com/iruldev/dbcore/internal/eventbus"
)

// startPostgres spins up a disposable Postgres container.
func startPostgres(t *testing.T) *postgres.PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })
	return container
}

// TestPool_CheckoutReturn_LIFOReuse exercises the checkout/return
// algorithm against a real server: a returned connection goes back to the
// head of the deque and is the next one handed out.
func TestPool_CheckoutReturn_LIFOReuse(t *testing.T) {
	container := startPostgres(t)
	ctx := context.Background()
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := slog.Default()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn, "primary/testdb", 2, 5*time.Second, time.Hour, 2*time.Second, nil, log)
	require.NoError(t, err)
	defer pool.Close()

	first, err := pool.Checkout(ctx)
	require.NoError(t, err)
	firstConn := first.Conn()
	first.Return(ctx)

	second, err := pool.Checkout(ctx)
	require.NoError(t, err)
	defer second.Return(ctx)

	require.Same(t, firstConn, second.Conn())
}

// TestPool_CheckoutTimeout_WhenExhausted: checkout blocks and eventually
// fails when every connection is already borrowed.
func TestPool_CheckoutTimeout_WhenExhausted(t *testing.T) {
	container := startPostgres(t)
	ctx := context.Background()
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := slog.Default()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn, "primary/testdb", 1, 500*time.Millisecond, time.Hour, 2*time.Second, nil, log)
	require.NoError(t, err)
	defer pool.Close()

	held, err := pool.Checkout(ctx)
	require.NoError(t, err)
	defer held.Return(ctx)

	_, err = pool.Checkout(ctx)
	require.Error(t, err)
}

// TestRegistry_Get_SingleFlightsConcurrentCreation: concurrent Get calls
// for the same (connection, database) pair share one pool creation rather
// than dialing twice, and Status reports it active once resolved.
func TestRegistry_Get_SingleFlightsConcurrentCreation(t *testing.T) {
	container := startPostgres(t)
	ctx := context.Background()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.ConnectionConfig{
		Name:     "primary",
		Username: "test",
		Password: "test",
		Host:     host,
		Port:     mappedPort.Int(),
		Database: "testdb",
	}.WithDefaults()

	bus := eventbus.New()
	registry := NewRegistry([]config.ConnectionConfig{cfg}, bus, nil, nil, slog.Default())
	defer registry.CloseAll()

	var wg sync.WaitGroup
	results := make([]*CheckedOutConnection, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := registry.Get(ctx, "primary", "testdb")
			results[i] = conn
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "goroutine %d", i)
		defer results[i].Return(ctx)
	}

	statuses := registry.Status()
	require.Len(t, statuses, 1)
	require.Equal(t, "active", statuses[0].Status)
}
