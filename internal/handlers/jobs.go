package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"streambox/internal/database"
	"streambox/internal/logging"
)

const maxJobsLimit = 1000

// ListJobs returns recent jobs, newest first
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxJobsLimit)
	}

	jobs, err := h.ledger.ListJobs(r.Context(), limit)
	if err != nil {
		logging.Error("failed to list jobs: %v", err)
		writeJSONError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, jobs)
}

// GetJob returns one job
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.ledger.GetJob(r.Context(), id)
	if err != nil {
		h.ledgerError(w, "job", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, job)
}

// ListSegments returns a job's segments in sequence order
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	segments, err := h.ledger.ListSegments(r.Context(), id)
	if err != nil {
		h.ledgerError(w, "segments", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, segments)
}

// GetStats returns ledger totals
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.ledger.GetStats())
}

func (h *Handlers) ledgerError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	logging.Error("failed to load %s: %v", what, err)
	writeJSONError(w, "failed to load "+what, http.StatusInternalServerError)
}
