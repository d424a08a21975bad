// Package socketpool owns the unix-domain sockets a sandboxed transcoder
// writes its segments to.
//
// A Pool creates a private host directory, binds one listening socket per
// endpoint inside it ("0.ts", "1.ts", ...) and describes the bind mount that
// exposes the directory at a fixed path inside the sandbox. The transcoder
// opens "unix:///out/%d.ts" for every segment, so each accepted connection
// carries exactly one segment and the sandbox never needs a network.
//
// Pools are exclusive: a process-wide registry rejects a pool whose host
// directory would overlap one that is still open, so one job can never write
// into another job's endpoints. A pool must outlive the process it is lent to;
// Close removes the endpoints and the directory.
package socketpool
