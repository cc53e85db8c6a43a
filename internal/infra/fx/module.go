// Package fxmodule provides Uber Fx dependency injection wiring for the
// database access core: Config -> Observability -> Resilience -> Eventbus
// -> Registry -> Query engine -> Catalog.
//
// There is no transport module here: the HTTP/WebSocket surface that
// consumes this core lives outside it and brings its own wiring.
//
// Usage in main.go:
//
//	app := fx.New(
//	    fxmodule.Module,
//	    fx.Invoke(run),
//	)
//	app.Run()
package fxmodule

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/iruldev/dbcore/internal/catalog"
	"github.com/iruldev/dbcore/internal/config"
	"github.com/iruldev/dbcore/internal/eventbus"
	"github.com/iruldev/dbcore/internal/infra/observability"
	"github.com/iruldev/dbcore/internal/infra/resilience"
	"github.com/iruldev/dbcore/internal/poolcore"
	"github.com/iruldev/dbcore/internal/queryengine"
)

// Module provides every dependency of the database access core via Uber Fx.
var Module = fx.Options(
	ConfigModule,
	ObservabilityModule,
	ResilienceModule,
	CoreModule,
)

// ConfigModule provides configuration dependencies.
var ConfigModule = fx.Options(
	fx.Provide(config.Load),
)

// ObservabilityModule provides logging, metrics, and tracing dependencies.
var ObservabilityModule = fx.Options(
	fx.Provide(observability.NewLogger),
	fx.Invoke(func(logger *slog.Logger) {
		slog.SetDefault(logger)
	}),
	fx.Provide(observability.NewMetricsRegistry),
	fx.Provide(provideTracer),
)

func provideTracer(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	tp, err := observability.InitTracer(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	logger.Info("tracing configured")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down tracer")
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// ResilienceModule provides the guards the core actually exercises: the
// catalog enrichment breaker/bulkhead/timeout, the pool-dial retrier,
// and the shutdown coordinator that drains checkouts before pools close.
var ResilienceModule = fx.Options(
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

func provideResilienceConfig(cfg *config.Config) resilience.ResilienceConfig {
	return resilience.NewResilienceConfig(cfg)
}

func provideCircuitBreakerMetrics(registry *prometheus.Registry) *resilience.CircuitBreakerMetrics {
	return resilience.NewCircuitBreakerMetrics(registry)
}

func provideCatalogBreaker(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.CircuitBreakerMetrics,
	logger *slog.Logger,
) resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(
		"catalog",
		resCfg.CircuitBreaker,
		resilience.WithMetrics(metrics),
		resilience.WithLogger(logger),
	)
}

func provideRetryMetrics(registry *prometheus.Registry) *resilience.RetryMetrics {
	return resilience.NewRetryMetrics(registry)
}

func provideRetrier(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.RetryMetrics,
	logger *slog.Logger,
) resilience.Retrier {
	return resilience.NewRetrier(
		"pool-recreate",
		resCfg.Retry,
		resilience.WithRetryMetrics(metrics),
		resilience.WithRetryLogger(logger),
	)
}

func provideTimeoutMetrics(registry *prometheus.Registry) *resilience.TimeoutMetrics {
	return resilience.NewTimeoutMetrics(registry)
}

func provideEnrichmentTimeout(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.TimeoutMetrics,
	logger *slog.Logger,
) resilience.Timeout {
	return resilience.NewTimeout(
		"catalog-enrichment",
		resCfg.Timeout.Database,
		resilience.WithTimeoutMetrics(metrics),
		resilience.WithTimeoutLogger(logger),
	)
}

func provideBulkheadMetrics(registry *prometheus.Registry) *resilience.BulkheadMetrics {
	return resilience.NewBulkheadMetrics(registry)
}

func provideEnrichmentBulkhead(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.BulkheadMetrics,
	logger *slog.Logger,
) resilience.Bulkhead {
	return resilience.NewBulkhead(
		"catalog-enrichment",
		resCfg.Bulkhead,
		resilience.WithBulkheadMetrics(metrics),
		resilience.WithBulkheadLogger(logger),
	)
}

func provideShutdownMetrics(registry *prometheus.Registry) *resilience.ShutdownMetrics {
	return resilience.NewShutdownMetrics(registry)
}

func provideShutdownCoordinator(
	resCfg resilience.ResilienceConfig,
	metrics *resilience.ShutdownMetrics,
	logger *slog.Logger,
) resilience.ShutdownCoordinator {
	return resilience.NewShutdownCoordinator(
		resCfg.Shutdown,
		resilience.WithShutdownMetrics(metrics),
		resilience.WithShutdownLogger(logger),
	)
}

// CoreModule provides the database access core itself: the lifecycle
// event bus, the pool registry, the query engine, and the catalog that
// sits on top of it. The registry's OnStop hook closes every open pool
// (and, transitively, every Connection's background task) when the Fx
// app stops, the in-process equivalent of app.GracefulShutdown, which
// a standalone (non-Fx) host can use directly against the same Registry.
var CoreModule = fx.Options(
	fx.Provide(eventbus.New),
	fx.Provide(provideRegistry),
	fx.Provide(queryengine.NewEngine),
	fx.Provide(provideCatalog),
	fx.Provide(poolcore.NewPoolMetrics),
	fx.Invoke(registerPoolMetrics),
)

func registerPoolMetrics(promRegistry *prometheus.Registry, metrics *poolcore.PoolMetrics) {
	promRegistry.MustRegister(metrics)
}

func provideCatalog(
	engine *queryengine.Engine,
	breaker resilience.CircuitBreaker,
	bulkhead resilience.Bulkhead,
	timeout resilience.Timeout,
	logger *slog.Logger,
) *catalog.Catalog {
	return catalog.New(engine, breaker, bulkhead, timeout, logger)
}

// provideRegistry wires the registry's teardown through the shutdown
// coordinator: new checkouts are refused, outstanding ones drain (or the
// drain period expires), and only then are the pools killed.
func provideRegistry(
	lc fx.Lifecycle,
	cfg *config.Config,
	bus *eventbus.Bus,
	retrier resilience.Retrier,
	coordinator resilience.ShutdownCoordinator,
	logger *slog.Logger,
) *poolcore.Registry {
	registry := poolcore.NewRegistry(cfg.Connections, bus, retrier, coordinator, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			coordinator.InitiateShutdown()
			if err := coordinator.WaitForDrain(ctx); err != nil {
				logger.Warn("closing pool registry before drain finished", "error", err)
			}
			logger.Info("closing pool registry")
			registry.CloseAll()
			return nil
		},
	})

	return registry
}
