package poolcore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics implements prometheus.Collector to scrape the registry's
// active pools.
type PoolMetrics struct {
	registry *Registry
	log      *slog.Logger

	// Descriptors
	connectionsTotal     *prometheus.Desc
	connectionsAvailable *prometheus.Desc
	live                 *prometheus.Desc
	failedHealthChecks   *prometheus.Desc
}

// NewPoolMetrics creates a new pool metrics collector over registry.
func NewPoolMetrics(registry *Registry, log *slog.Logger) *PoolMetrics {
	const ns = "db"
	const sub = "pool"
	labels := []string{"connection", "database"}

	return &PoolMetrics{
		registry: registry,
		log:      log,
		connectionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "connections_total"),
			"Configured number of connections in the pool.",
			labels, nil,
		),
		connectionsAvailable: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "connections_available"),
			"Number of connections currently available for checkout.",
			labels, nil,
		),
		live: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "live"),
			"Whether the pool currently holds connections (1) or is dormant (0).",
			labels, nil,
		),
		failedHealthChecks: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "failed_health_checks"),
			"Consecutive health-check failures observed on checkout.",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectionsTotal
	ch <- c.connectionsAvailable
	ch <- c.live
	ch <- c.failedHealthChecks
}

// Collect implements prometheus.Collector.
func (c *PoolMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, stat := range c.registry.ActivePoolStats() {
		liveVal := 0.0
		if stat.Stats.Live {
			liveVal = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.connectionsTotal, prometheus.GaugeValue,
			float64(stat.Stats.Size), stat.Connection, stat.Database)
		ch <- prometheus.MustNewConstMetric(c.connectionsAvailable, prometheus.GaugeValue,
			float64(stat.Stats.Available), stat.Connection, stat.Database)
		ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue,
			liveVal, stat.Connection, stat.Database)
		ch <- prometheus.MustNewConstMetric(c.failedHealthChecks, prometheus.GaugeValue,
			float64(stat.Stats.FailedHealthChecks), stat.Connection, stat.Database)
	}
}
