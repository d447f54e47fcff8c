package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// ---------------------------------------------------------------------------
// Project handlers
// ---------------------------------------------------------------------------

type createProjectRequest struct {
	ID   string            `json:"id,omitempty"`
	Name string            `json:"name"`
	Addr string            `json:"addr,omitempty"`
	Type graph.ProjectType `json:"type,omitempty"`
}

// handleCreateProject registers (or updates) a project.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "MISSING_NAME", "project name is required")
		return
	}
	if req.Type == "" {
		req.Type = graph.ProjectTypeApp
	}

	p := graph.NewProject(req.ID, req.Name, req.Addr, req.Type)
	if err := s.store.SaveProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "SAVE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	if projects == nil {
		projects = []*graph.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GET_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteProject(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
