package handlers

import (
	"net/http"
	"runtime"
	"time"

	"streambox/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string    `json:"status"`
	Ready   bool      `json:"ready"`
	Version string    `json:"version"`
	Uptime  string    `json:"uptime"`
	Job     JobStatus `json:"job"`
	Ledger  string    `json:"ledger"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`

	// Ledger totals
	TotalJobs     int   `json:"totalJobs"`
	TotalSegments int   `json:"totalSegments"`
	TotalBytes    int64 `json:"totalBytes"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	job := h.status.JobStatus()
	stats := h.ledger.GetStats()

	response := HealthResponse{
		Ready:         job.Ready,
		Version:       startup.Version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Job:           job,
		Ledger:        "ok",
		GoVersion:     runtime.Version(),
		NumGoroutine:  runtime.NumGoroutine(),
		TotalJobs:     stats.TotalJobs,
		TotalSegments: stats.TotalSegments,
		TotalBytes:    stats.TotalBytes,
	}

	switch {
	case job.Error != "":
		response.Status = statusDegraded
	case job.Ready:
		response.Status = statusHealthy
	default:
		response.Status = statusStarting
	}

	if err := h.ledger.Ping(r.Context()); err != nil {
		response.Ledger = err.Error()
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status == statusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 once the sandbox is running
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.status.JobStatus().Ready {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}
