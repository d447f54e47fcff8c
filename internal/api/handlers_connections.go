package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crosslink/crosslink/internal/graph"
	"github.com/crosslink/crosslink/internal/storage"
)

// ---------------------------------------------------------------------------
// Connection handlers
// ---------------------------------------------------------------------------

type createConnectionRequest struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

// handleCreateConnection creates a manual connection between two nodes.
// A duplicate pair returns 200 with created=false instead of an error:
// creation is idempotent all the way up the stack.
func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}
	if req.FromID == "" || req.ToID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ENDPOINT", "from_id and to_id are required")
		return
	}

	conn := graph.NewConnection(req.FromID, req.ToID, graph.OriginManual)
	err := s.store.CreateConnection(r.Context(), conn)
	switch {
	case errors.Is(err, storage.ErrConnectionExists):
		writeJSON(w, http.StatusOK, map[string]any{"created": false})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"created":    true,
			"connection": conn,
		})
	}
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ConnectionFilter{
		FromID: q.Get("from_id"),
		ToID:   q.Get("to_id"),
		Branch: q.Get("branch"),
	}

	conns, err := s.store.ListConnections(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	if conns == nil {
		conns = []*graph.Connection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteConnection(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "connection not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
