// Package api is the HTTP layer: node upload, graph queries, match scans,
// impact reports and the SSE event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crosslink/crosslink/internal/ai"
	"github.com/crosslink/crosslink/internal/dependency"
	"github.com/crosslink/crosslink/internal/storage"
	"github.com/crosslink/crosslink/internal/worker"
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server is the HTTP API layer for crosslink.
type Server struct {
	store  *storage.Storage
	deps   *dependency.Service
	runner *worker.Runner
	ai     ai.Provider
	sse    *SSEBroadcaster
	mux    *http.ServeMux
	server *http.Server

	uploadLimiter *rate.Limiter
}

// NewServer creates a Server wired to storage, the dependency service, the
// match-scan runner and (optional) AI provider. Pass nil for runner when
// background scans are disabled and nil for provider when no LLM is
// configured.
func NewServer(store *storage.Storage, deps *dependency.Service, runner *worker.Runner, provider ai.Provider, sse *SSEBroadcaster) *Server {
	if sse == nil {
		sse = NewSSEBroadcaster()
	}
	s := &Server{
		store:  store,
		deps:   deps,
		runner: runner,
		ai:     provider,
		sse:    sse,
		mux:    http.NewServeMux(),
	}

	// Rate limiter for the batch-upload endpoint: 1000 nodes/sec, burst 5000.
	// Per-server, not per-IP; sufficient for single-instance deployments.
	s.uploadLimiter = rate.NewLimiter(rate.Limit(1000), 5000)

	return s
}

// RegisterRoutes wires up every API endpoint.
func (s *Server) RegisterRoutes() {
	// -- Project endpoints ------------------------------------------------
	s.mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	// -- Node endpoints ---------------------------------------------------
	s.mux.HandleFunc("POST /api/nodes",
		s.withRateLimit(s.uploadLimiter, s.handleUploadNodes))
	s.mux.HandleFunc("POST /api/nodes/commit", s.handleCommitBranch)
	s.mux.HandleFunc("POST /api/nodes/rollback", s.handleRollbackBranch)
	s.mux.HandleFunc("GET /api/nodes", s.handleListNodes)
	s.mux.HandleFunc("GET /api/nodes/{id}", s.handleGetNode)
	s.mux.HandleFunc("DELETE /api/nodes", s.handleDeleteNodesByBranch)

	// -- Connection endpoints ---------------------------------------------
	s.mux.HandleFunc("POST /api/connections", s.handleCreateConnection)
	s.mux.HandleFunc("GET /api/connections", s.handleListConnections)
	s.mux.HandleFunc("DELETE /api/connections/{id}", s.handleDeleteConnection)

	// -- Graph endpoints --------------------------------------------------
	s.mux.HandleFunc("GET /api/graph/node/{id}", s.handleNodeGraph)
	s.mux.HandleFunc("GET /api/graph/projects", s.handleAllProjectGraphs)
	s.mux.HandleFunc("GET /api/graph/project/{id}", s.handleProjectGraph)
	s.mux.HandleFunc("GET /api/graph/stats", s.handleGraphStats)

	// -- Match scan endpoints ---------------------------------------------
	s.mux.HandleFunc("POST /api/match", s.handleStartMatch)
	s.mux.HandleFunc("GET /api/match/jobs", s.handleListMatchJobs)
	s.mux.HandleFunc("GET /api/match/jobs/{id}", s.handleMatchJobStatus)
	s.mux.HandleFunc("DELETE /api/match/jobs/{id}", s.handleCancelMatchJob)

	// -- Impact endpoints -------------------------------------------------
	s.mux.HandleFunc("GET /api/impact/{id}", s.handleImpact)

	// -- SSE event stream -------------------------------------------------
	s.mux.HandleFunc("GET /api/events", s.handleSSE)

	// -- Health check -----------------------------------------------------
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the fully-wrapped http.Handler (middleware chain + mux).
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoveryMiddleware(h)
	h = loggingMiddleware(h)
	h = corsMiddleware(h)
	return h
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "crosslink",
	})
}

// ---------------------------------------------------------------------------
// JSON response helpers
// ---------------------------------------------------------------------------

// writeJSON writes an arbitrary value as JSON with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a standardised JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware allows requests from localhost dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://localhost:") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code written by downstream handlers.
// It also implements http.Flusher so SSE streaming works through the
// logging middleware.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher by delegating to the underlying writer.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs method, path, duration and status code.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				slog.Error("panic recovered",
					"error", err,
					"stack", string(stack),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"error":"internal server error"}`)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit wraps a handler with a token-bucket rate limiter.
// Returns 429 when the limiter is exhausted.
// NOTE: this is a per-server limiter (not per-IP).
func (s *Server) withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limit exceeded","retry_after_ms":1000}`)
			slog.Warn("rate limit exceeded",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
		next(w, r)
	}
}
