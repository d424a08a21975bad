// Package database keeps the SQLite ledger of transcode jobs and the
// segments they produced.
//
// Every job gets a row when it starts and is updated once when the sandbox
// exits. Segments reference their job and are unique per (job, sequence).
// The database uses WAL mode so the HTTP surface can read while the
// receiver writes.
package database
