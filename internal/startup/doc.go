// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] starts from [Default], overlays the YAML file named by
// CONFIG_FILE (if set) and then environment variables. Later sources win.
// The following environment variables are supported:
//
//   - CONFIG_FILE: Optional YAML file; keys match the Config yaml tags
//   - DATA_DIR: Ledger and HLS output root (default: /var/lib/streambox)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: false)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - RUNTIME_BINARY: Container runtime client (default: podman)
//   - IMAGE_NAME, IMAGE_DIGEST: Transcoder image, pinned by digest
//   - SOCKET_DIR: Parent of socket pool directories (default: os.TempDir)
//   - SOCKET_MOUNT_PATH: Where the pool appears in the sandbox (default: /out)
//   - SEGMENT_MIN_BYTES, SEGMENT_MAX_BYTES: Expected segment sizes (64KiB, 1MiB)
//   - SEGMENT_MIN_SEC, SEGMENT_MAX_SEC: Accepted segment times (2.0, 5.0)
//   - PUBLISH_INTERVAL: Minimum time between publishes (default: 60s)
//   - HLS_FILENAME, HLS_DIRECTORY, JS_FILENAME: Output naming
//   - IPFS_GATEWAY, IPFS_ROUTER_ID, IPFS_ROUTER_ADDRS (comma separated),
//     IPFS_LOCAL_GATEWAY, IPFS_PINNING_API, IPFS_PINNING_NAME: Publishing
//     collaborators
//
// Nothing reads the environment after LoadConfig returns; the Config value
// is passed explicitly.
//
// # Lifecycle Logging
//
// The Log* functions print the banner-style sections that frame startup
// and shutdown in the service log.
package startup
