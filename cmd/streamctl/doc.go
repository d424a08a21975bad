// Package main provides streamctl, a command-line tool for inspecting the
// streambox job ledger.
//
// # Usage
//
//	streamctl jobs              # list recent jobs
//	streamctl segments <job>    # list a job's segments
//	streamctl verify <job>      # re-hash segment files against the ledger
//
// verify reads every segment file the ledger knows about, recomputes its
// BLAKE3 digest and size, and exits non-zero when any file is missing or
// differs from its ledger row.
//
// # Output
//
// On a terminal, results are printed as aligned tables. When stdout is a
// pipe or file, each row is written as one JSON object per line instead.
//
// # Environment
//
//   - DATA_DIR: directory holding streambox.db (default: /var/lib/streambox)
//   - STREAMBOX_WORKERS: number of files verified in parallel
package main
