package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/crosslink/crosslink/internal/ai"
	"github.com/crosslink/crosslink/internal/dependency"
	"github.com/crosslink/crosslink/internal/storage"
)

// ---------------------------------------------------------------------------
// Impact report handler
// ---------------------------------------------------------------------------

type impactResponse struct {
	*dependency.ImpactReport
	Narrative string `json:"narrative,omitempty"`
}

// handleImpact returns the reverse-reachable set of a node grouped by
// project, optionally with an LLM-written assessment when ?narrative=true
// and a provider is configured. Narrative failures degrade to the plain
// report.
func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	report, err := s.deps.Impact(r.Context(), id, depthParam(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "node not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "IMPACT_FAILED", err.Error())
		return
	}

	resp := impactResponse{ImpactReport: report}
	if r.URL.Query().Get("narrative") == "true" && s.ai != nil {
		narrative, err := ai.ImpactNarrative(r.Context(), s.ai, report)
		if err != nil {
			slog.Warn("impact narrative failed", "node_id", id, "error", err)
		} else {
			resp.Narrative = narrative
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
