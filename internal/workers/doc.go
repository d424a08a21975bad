/*
Package workers sizes worker pools from the CPUs the process may actually use.

runtime.NumCPU reports host CPUs, while GOMAXPROCS follows the container CPU
limit. Worker counts here are derived from GOMAXPROCS and scaled by the kind
of work:

	n := workers.ForCPU(8)  // hashing, one per CPU, at most 8
	n := workers.ForIO(0)   // file reads, two per CPU, unbounded

# Override

STREAMBOX_WORKERS, when set to a positive integer, replaces the computed
count. The limit passed by the caller still applies.
*/
package workers
