// Package container adapts an external OCI container runtime for streambox.
//
// The Runtime interface is the only way the rest of the system talks to the
// runtime binary. It answers three questions:
//
//   - Is this exact image (name and content hash) in the local store?
//   - Fetch it if not (idempotent).
//   - Give me a fresh invocation builder for the runtime binary.
//
// Podman is the shipped implementation. It shells out through an Executor so
// listing and pulling can be exercised in tests without a runtime installed.
// Flag construction for running a sandbox is not done here; callers build it
// on the Command returned by Runtime.Command.
package container
