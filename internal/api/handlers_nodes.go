package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// ---------------------------------------------------------------------------
// Node upload — shallow-branch staging
// ---------------------------------------------------------------------------
//
// Batch uploads land as "shallow" rows scoped to project+branch. They stay
// invisible to the matcher and to graph queries until the uploader commits
// the branch, which atomically replaces the branch's previous live rows.
// Rollback discards the staged rows without touching live data.

type uploadNodesRequest struct {
	ProjectID string        `json:"project_id"`
	Branch    string        `json:"branch"`
	Nodes     []*graph.Node `json:"nodes"`
}

// handleUploadNodes stages a batch of extracted nodes.
func (s *Server) handleUploadNodes(w http.ResponseWriter, r *http.Request) {
	var req uploadNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.ProjectID == "" || req.Branch == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SCOPE", "project_id and branch are required")
		return
	}

	project, err := s.store.GetProject(r.Context(), req.ProjectID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GET_FAILED", err.Error())
		return
	}

	for _, n := range req.Nodes {
		if !n.Type.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_TYPE",
				"unknown node type "+string(n.Type))
			return
		}
		n.ProjectID = project.ID
		n.ProjectName = project.Name
		n.Branch = req.Branch
		if n.ID == "" {
			writeError(w, http.StatusBadRequest, "MISSING_ID", "every node needs an id")
			return
		}
	}

	if err := s.store.SaveNodes(r.Context(), req.Nodes, true); err != nil {
		writeError(w, http.StatusInternalServerError, "SAVE_FAILED", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"staged":     len(req.Nodes),
		"project_id": project.ID,
		"branch":     req.Branch,
	})
}

type branchRequest struct {
	ProjectID string `json:"project_id"`
	Branch    string `json:"branch"`
}

// handleCommitBranch promotes a staged upload to live.
func (s *Server) handleCommitBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.ProjectID == "" || req.Branch == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SCOPE", "project_id and branch are required")
		return
	}

	if err := s.store.CommitBranch(r.Context(), req.ProjectID, req.Branch); err != nil {
		writeError(w, http.StatusInternalServerError, "COMMIT_FAILED", err.Error())
		return
	}
	s.deps.InvalidateProjectGraphs(r.Context(), req.Branch)
	s.sse.Broadcast(SSEEvent{Event: "nodes:committed", Data: req})
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

// handleRollbackBranch discards a staged upload.
func (s *Server) handleRollbackBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.ProjectID == "" || req.Branch == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SCOPE", "project_id and branch are required")
		return
	}

	if err := s.store.RollbackBranch(r.Context(), req.ProjectID, req.Branch); err != nil {
		writeError(w, http.StatusInternalServerError, "ROLLBACK_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rolled_back"})
}

// ---------------------------------------------------------------------------
// Node queries
// ---------------------------------------------------------------------------

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.NodeFilter{
		ProjectID:   q.Get("project_id"),
		ProjectName: q.Get("project_name"),
		Branch:      q.Get("branch"),
		Type:        graph.NodeType(q.Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE",
			"unknown node type "+string(filter.Type))
		return
	}

	nodes, err := s.store.ListNodes(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	if nodes == nil {
		nodes = []*graph.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node, err := s.store.GetNode(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "node not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GET_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleDeleteNodesByBranch removes every node of a project+branch.
func (s *Server) handleDeleteNodesByBranch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID, branch := q.Get("project_id"), q.Get("branch")
	if projectID == "" || branch == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SCOPE", "project_id and branch are required")
		return
	}

	if err := s.store.DeleteNodesByBranch(r.Context(), projectID, branch); err != nil {
		writeError(w, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}
	s.deps.InvalidateProjectGraphs(r.Context(), branch)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
