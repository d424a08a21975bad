// Package memory sizes the Go soft memory limit for containerized runs.
//
// Segments are buffered whole before they are written, so a host process
// receiving large segments can briefly hold several of them in memory.
// Setting GOMEMLIMIT below the container limit keeps the collector ahead
// of those bursts.
//
// # Environment
//
//   - GOMEMLIMIT: standard Go variable; if set it wins and is only reported
//   - MEMORY_LIMIT: container limit in bytes, e.g. from the Kubernetes Downward API
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap (default 0.85)
//
// Call [ConfigureFromEnv] at the top of main, before large allocations.
package memory
