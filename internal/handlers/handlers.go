package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"streambox/internal/database"
	"streambox/internal/metrics"
	"streambox/internal/playlist"
	"streambox/internal/segment"
)

// Ledger is the read side of the job ledger used by the handlers.
type Ledger interface {
	Ping(ctx context.Context) error
	GetJob(ctx context.Context, id string) (*database.Job, error)
	ListJobs(ctx context.Context, limit int) ([]database.Job, error)
	ListSegments(ctx context.Context, jobID string) ([]segment.Segment, error)
	GetStats() metrics.Stats
}

// JobStatus is the live state of the job this process supervises.
type JobStatus struct {
	JobID    string    `json:"jobId,omitempty"`
	State    string    `json:"state"`
	Ready    bool      `json:"ready"`
	Segments int64     `json:"segments"`
	Started  time.Time `json:"started"`
	Error    string    `json:"error,omitempty"`
}

// StatusProvider reports the live job status.
type StatusProvider interface {
	JobStatus() JobStatus
}

// Config configures the handlers.
type Config struct {
	VideoDir         string
	PlaylistFilename string
	MetricsEnabled   bool
}

// Handlers serves the streambox HTTP API.
type Handlers struct {
	ledger           Ledger
	status           StatusProvider
	videoDir         string
	playlistFilename string
	metricsEnabled   bool
	startTime        time.Time
}

// New returns handlers backed by ledger and status.
func New(ledger Ledger, status StatusProvider, config Config) *Handlers {
	if config.PlaylistFilename == "" {
		config.PlaylistFilename = playlist.DefaultFilename
	}
	return &Handlers{
		ledger:           ledger,
		status:           status,
		videoDir:         config.VideoDir,
		playlistFilename: config.PlaylistFilename,
		metricsEnabled:   config.MetricsEnabled,
		startTime:        time.Now(),
	}
}

// Router registers all routes on a new mux.Router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	if h.metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/segments", h.ListSegments).Methods("GET")

	r.HandleFunc("/video/{job}/{file}", h.ServeVideo).Methods("GET", "HEAD")

	return r
}
