package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambox_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Runtime adapter metrics
var (
	RuntimeCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_runtime_commands_total",
			Help: "Total number of container runtime commands executed",
		},
		[]string{"operation", "status"},
	)

	RuntimeCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambox_runtime_command_duration_seconds",
			Help:    "Container runtime command duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"operation"},
	)

	ImagePullsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_image_pulls_total",
			Help: "Total number of image pulls by outcome",
		},
		[]string{"status"}, // "pulled", "present", "error"
	)
)

// Sandbox metrics
var (
	SandboxStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_sandbox_starts_total",
			Help: "Total number of sandbox start attempts by outcome",
		},
		[]string{"status"},
	)

	SandboxRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambox_sandbox_running",
			Help: "Number of sandboxed transcoder processes currently running",
		},
	)

	SandboxExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_sandbox_exits_total",
			Help: "Total number of sandbox process exits by final state",
		},
		[]string{"state"},
	)

	SandboxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streambox_sandbox_duration_seconds",
			Help:    "Wall-clock lifetime of sandboxed transcoder processes",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600, 14400},
		},
	)
)

// Socket pool metrics
var (
	SocketPoolsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambox_socket_pools_active",
			Help: "Number of socket pools currently holding host endpoints",
		},
	)

	SocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_socket_connections_total",
			Help: "Total number of connections accepted from sandboxes",
		},
		[]string{"status"}, // "ok", "error"
	)
)

// Segment metrics
var (
	SegmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_segments_total",
			Help: "Total number of segments received by size check result",
		},
		[]string{"status"}, // "ok", "undersize", "oversize", "error"
	)

	SegmentBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streambox_segment_bytes",
			Help:    "Size of received segments in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 9),
		},
	)

	SegmentStoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streambox_segment_store_duration_seconds",
			Help:    "Time to persist a segment and refresh the playlist",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_publishes_total",
			Help: "Total number of publish attempts of the HLS directory",
		},
		[]string{"status"},
	)
)

// Ledger metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_db_queries_total",
			Help: "Total number of ledger queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambox_db_query_duration_seconds",
			Help:    "Ledger query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	JobsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambox_ledger_jobs",
			Help: "Number of jobs recorded in the ledger",
		},
	)

	LedgerSegmentsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambox_ledger_segments",
			Help: "Number of segments recorded in the ledger",
		},
	)

	LedgerBytesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambox_ledger_segment_bytes",
			Help: "Total bytes of segments recorded in the ledger",
		},
	)
)

// Retry metrics
var (
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_retry_attempts_total",
			Help: "Total number of retried operations",
		},
		[]string{"operation"},
	)

	RetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambox_retry_failures_total",
			Help: "Total number of operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	RetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambox_retry_duration_seconds",
			Help:    "Total time spent in an operation including retries",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"operation"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streambox_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
