// Package main provides the entry point for streambox.
//
// streambox runs one untrusted transcoder invocation inside a locked-down
// container and turns its output into an HLS stream on the host. The
// transcoder never touches the host filesystem: it writes each segment to
// a Unix socket mounted into the sandbox, and the host numbers, hashes,
// stores and records every segment it receives.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from MEMORY_LIMIT, if set
//  2. Configuration: defaults, then CONFIG_FILE (YAML), then environment,
//     then command-line flags for the image and job settings
//  3. Ledger: opens the SQLite job ledger under DATA_DIR
//  4. HTTP server: health, job, metrics and video endpoints
//  5. Image readiness: pulls the pinned transcoder image, with retries
//  6. Transcode: creates the socket pool, starts the sandbox and receives
//     segments until the transcoder exits or a signal arrives
//  7. Drain: waits briefly for the last segment, finishes the playlist,
//     publishes it and records the job outcome
//
// # Usage
//
//	streambox [flags] -- <transcoder input args>
//
// Everything after "--" is passed to the transcoder as its input
// arguments. Output arguments are added by streambox and may not be
// supplied.
//
// # Exit Status
//
// streambox exits 0 only when the transcoder exited on its own with code 0.
// A killed sandbox, a non-zero transcoder exit, or a setup failure all
// exit 1. Invalid flags exit 2.
package main
