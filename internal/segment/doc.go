// Package segment turns socket pool connections into numbered, hashed
// transport-stream segments and hands them to a Sink.
//
// The transcoder wraps its own segment index at 1, so every segment arrives
// on endpoint 0 and carries no usable number. The Receiver assigns sequence
// numbers per job, in arrival order, starting at 0. Numbering restarts with
// every job; nothing here assumes sequence numbers are unique across jobs.
//
// Segments outside the configured byte-size range are counted and logged but
// still forwarded: the last segment of a stream is routinely short, and
// deciding what to do with a misfit segment is the sink's business.
package segment
