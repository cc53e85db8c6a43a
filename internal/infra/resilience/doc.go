// Package resilience guards the places this core talks to a database
// outside of a user's own query: pool creation (dialing a fresh set of
// connections after a wire error or a config reload) and the catalog
// round trips that enrich a page of results.
//
// Four patterns are provided, each configured through the RESILIENCE_*
// section of the application config:
//
//   - CircuitBreaker: stops issuing catalog round trips against a
//     database that keeps failing them, so enrichment trouble cannot
//     cascade into every paginated select.
//   - Retrier: retries transient pool-dial failures with exponential
//     backoff before the registry marks a (connection, database) key
//     as failed.
//   - Timeout: bounds one guarded operation tighter than the
//     connection-level query timeout.
//   - Bulkhead: caps how many enrichment passes run concurrently, so a
//     burst of wide result sets cannot monopolize a pool.
//
// A ShutdownCoordinator tracks checked-out connections so process
// shutdown can drain in-flight work before the registry closes its
// pools.
//
// Failures carry stable RES-xxx codes (see errors.go) and are
// errors.Is-comparable against the package sentinels.
package resilience
