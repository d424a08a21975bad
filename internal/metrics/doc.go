// Package metrics declares the Prometheus collectors exported by streambox.
//
// All collectors are registered with the default registry through promauto
// and share the "streambox_" prefix. They cover:
//
//   - Runtime adapter: image listing and pull commands, pull outcomes
//   - Sandbox: start outcomes, running processes, exit states, lifetimes
//   - Socket pools: active pools and accepted connections
//   - Segments: size-check results, sizes, store latency, publishes
//   - Ledger: query counts and latency, job/segment totals
//   - HTTP: request counts, latency and in-flight requests
//
// InitializeMetrics pre-populates label combinations so dashboards see
// zero-valued series from the first scrape. Collector polls a StatsProvider
// (the ledger) on an interval to refresh the gauge metrics.
package metrics
