package api

import (
	"net/http"
	"strconv"

	"github.com/crosslink/crosslink/internal/dependency"
)

// ---------------------------------------------------------------------------
// Graph query handlers
// ---------------------------------------------------------------------------

// depthParam parses the optional ?depth= query parameter.
func depthParam(r *http.Request) int {
	raw := r.URL.Query().Get("depth")
	if raw == "" {
		return dependency.DefaultDepth
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d <= 0 {
		return dependency.DefaultDepth
	}
	return d
}

// handleNodeGraph returns the dependency graph around one node. Unknown
// node ids yield an empty graph, matching the query contract: "no data" is
// not an error.
func (s *Server) handleNodeGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, err := s.deps.NodeGraph(r.Context(), id, depthParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GRAPH_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleProjectGraph returns one project's project-level graph with cycles.
func (s *Server) handleProjectGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	branch := r.URL.Query().Get("branch")

	if id == dependency.Wildcard {
		s.handleAllProjectGraphs(w, r)
		return
	}

	g, err := s.deps.ProjectGraphFor(r.Context(), id, branch, depthParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GRAPH_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleAllProjectGraphs answers the wildcard query: one graph per project.
func (s *Server) handleAllProjectGraphs(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	graphs, err := s.deps.AllProjectGraphs(r.Context(), branch, depthParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GRAPH_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, graphs)
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STATS_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
