// Package handlers provides the HTTP surface of the streambox service.
//
// It includes handlers for:
//   - Health, liveness and readiness checks
//   - Version and build information
//   - Job and segment listings from the ledger
//   - The HLS directory (playlist and segments) being written by the
//     current job
//   - Prometheus metrics
package handlers
