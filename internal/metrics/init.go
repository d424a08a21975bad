package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{"images", "pull"} {
		RuntimeCommandsTotal.WithLabelValues(op, "success")
		RuntimeCommandsTotal.WithLabelValues(op, "error")
		RuntimeCommandDuration.WithLabelValues(op)
	}

	for _, s := range []string{"pulled", "present", "error"} {
		ImagePullsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"success", "invalid_config", "image_unavailable", "spawn_failed"} {
		SandboxStartsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"exited", "killed", "io_error"} {
		SandboxExitsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"ok", "error"} {
		SocketConnectionsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"ok", "undersize", "oversize", "error"} {
		SegmentsTotal.WithLabelValues(s)
	}

	for _, s := range []string{"success", "error"} {
		PublishesTotal.WithLabelValues(s)
	}

	for _, op := range []string{"create_job", "finish_job", "get_job", "list_jobs", "add_segment", "list_segments", "get_stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, op := range []string{"ensure_image"} {
		RetryAttempts.WithLabelValues(op)
		RetryFailures.WithLabelValues(op)
		RetryDuration.WithLabelValues(op)
	}
}
