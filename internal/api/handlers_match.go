package api

import (
	"net/http"
	"strconv"
)

// ---------------------------------------------------------------------------
// Match scan handlers
// ---------------------------------------------------------------------------

// handleStartMatch enqueues a background match scan and returns the job id.
func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "MATCH_DISABLED",
			"background match scans are not enabled")
		return
	}

	jobID, err := s.runner.Enqueue()
	if err != nil {
		writeError(w, http.StatusTooManyRequests, "QUEUE_FULL", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleListMatchJobs(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "MATCH_DISABLED",
			"background match scans are not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.runner.ListJobs(limit))
}

func (s *Server) handleMatchJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "MATCH_DISABLED",
			"background match scans are not enabled")
		return
	}

	job, ok := s.runner.GetJob(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelMatchJob aborts a pending or running scan. Connections the
// scan already created stay persisted.
func (s *Server) handleCancelMatchJob(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "MATCH_DISABLED",
			"background match scans are not enabled")
		return
	}

	id := r.PathValue("id")
	if !s.runner.Cancel(id) {
		writeError(w, http.StatusConflict, "NOT_CANCELLABLE",
			"job not found or already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cancelling": id})
}
