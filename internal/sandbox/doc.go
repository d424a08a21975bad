// Package sandbox launches and supervises sandboxed transcoder processes.
//
// Supervisor.Start turns a TranscodeConfig into exactly one container
// runtime invocation:
//
//  1. The configured image is checked in the local store and pulled only if
//     missing. Runtime failures surface as ImageUnavailable.
//  2. The invocation is built from fixed hardening flags, the network policy,
//     the socket pool's mount arguments, the content-addressed image
//     reference, the caller's transcoder arguments and finally the fixed
//     segmenting flags that direct output into the pool.
//  3. The runtime is spawned with inherited stdout/stderr in its own process
//     group. Spawn failures surface as SpawnFailed.
//
// Both failure kinds are logged together with the full invocation before
// Start returns. Start never retries; callers own retry policy.
//
// # Network policy
//
// With AllowNetworking the sandbox gets a slirp4netns usermode network with
// host loopback access disabled and no inherited DNS search domains. Without
// it the sandbox has no network at all. Caller arguments cannot change this:
// they are placed after the image reference, where the runtime passes them to
// the transcoder rather than interpreting them.
//
// # Process lifetime
//
// The returned Handle is owned by the caller. Kill signals the whole process
// group (SIGTERM, then SIGKILL after a grace period) so usermode network
// helpers are torn down with the runtime. Close kills if still running and
// reaps; defer it on every path that obtains a Handle.
package sandbox
