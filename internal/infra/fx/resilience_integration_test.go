package fxmodule

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/iruldev/dbcore/internal/config"
	"github.com/iruldev/dbcore/internal/infra/resilience"
)

// resilienceTestOptions provides the guard constructors against a fresh
// Prometheus registry and the default logger, without the rest of the
// application graph.
func resilienceTestOptions() fx.Option {
	return fx.Options(
		fx.Provide(config.Load),
		fx.Provide(func() *prometheus.Registry { return prometheus.NewRegistry() }),
		fx.Provide(func() *slog.Logger { return slog.Default() }),
		fx.Provide(provideResilienceConfig),
		fx.Provide(provideCircuitBreakerMetrics),
		fx.Provide(provideCatalogBreaker),
		fx.Provide(provideRetryMetrics),
		fx.Provide(provideRetrier),
		fx.Provide(provideTimeoutMetrics),
		fx.Provide(provideEnrichmentTimeout),
		fx.Provide(provideBulkheadMetrics),
		fx.Provide(provideEnrichmentBulkhead),
		fx.Provide(provideShutdownMetrics),
		fx.Provide(provideShutdownCoordinator),
	)
}

// TestResilienceModule_ProvidesNamedGuards verifies every guard resolves
// and carries the label its consumer expects to see in metrics and logs.
func TestResilienceModule_ProvidesNamedGuards(t *testing.T) {
	app := fxtest.New(t,
		resilienceTestOptions(),
		fx.Invoke(func(
			resCfg resilience.ResilienceConfig,
			breaker resilience.CircuitBreaker,
			retrier resilience.Retrier,
			timeout resilience.Timeout,
			bulkhead resilience.Bulkhead,
			coordinator resilience.ShutdownCoordinator,
		) {
			require.NoError(t, resCfg.Validate())

			assert.Equal(t, "catalog", breaker.Name())
			assert.Equal(t, resilience.StateClosed, breaker.State())

			assert.Equal(t, "pool-recreate", retrier.Name())

			assert.Equal(t, "catalog-enrichment", timeout.Name())
			assert.Equal(t, resCfg.Timeout.Database, timeout.Duration())

			assert.Equal(t, "catalog-enrichment", bulkhead.Name())
			assert.Equal(t, 0, bulkhead.ActiveCount())

			assert.False(t, coordinator.IsShuttingDown())
		}),
	)

	app.RequireStart()
	app.RequireStop()
}

// TestResilienceModule_ConfigurationFlowsFromEnv verifies env-sourced
// RESILIENCE_* values reach the constructed guards.
func TestResilienceModule_ConfigurationFlowsFromEnv(t *testing.T) {
	t.Setenv("RESILIENCE_TIMEOUT_DEFAULT", "3s")
	t.Setenv("RESILIENCE_TIMEOUT_DATABASE", "2s")

	app := fxtest.New(t,
		resilienceTestOptions(),
		fx.Invoke(func(timeout resilience.Timeout) {
			assert.Equal(t, 2*time.Second, timeout.Duration())
		}),
	)

	app.RequireStart()
	app.RequireStop()
}

// TestResilienceModule_CoordinatorDrains runs one tracked unit of work
// through the coordinator the module provides.
func TestResilienceModule_CoordinatorDrains(t *testing.T) {
	var coordinator resilience.ShutdownCoordinator

	app := fxtest.New(t,
		resilienceTestOptions(),
		fx.Populate(&coordinator),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.True(t, coordinator.IncrementActive())
	coordinator.InitiateShutdown()
	require.False(t, coordinator.IncrementActive())

	go func() {
		time.Sleep(20 * time.Millisecond)
		coordinator.DecrementActive()
	}()
	require.NoError(t, coordinator.WaitForDrain(context.Background()))
}
