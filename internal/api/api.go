package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/protolab/crew/internal/pipeline"
	"github.com/protolab/crew/internal/policy"
	"github.com/protolab/crew/internal/scan"
	"github.com/protolab/crew/internal/sessions"
	"github.com/protolab/crew/internal/store"
)

// Runner executes pipelines. It is the orchestrator's API-facing
// surface, narrowed so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	sessions *sessions.Manager
	runner   Runner
	policies policy.Table
}

// NewServer creates a new API server.
func NewServer(s store.Store, runner Runner, policies policy.Table) *Server {
	return &Server{
		store:    s,
		sessions: sessions.NewManager(s),
		runner:   runner,
		policies: policies,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/pipelines", s.runPipeline)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/runs", s.listRuns)
	mux.HandleFunc("GET /api/v1/sessions/{id}/handoffs", s.listHandoffs)
	mux.HandleFunc("POST /api/v1/sessions/{id}/close", s.closeSession)

	mux.HandleFunc("GET /api/v1/policies", s.listPolicies)
	mux.HandleFunc("POST /api/v1/approvals", s.recordApproval)
	mux.HandleFunc("GET /api/v1/approvals/{tool}", s.getApproval)

	mux.HandleFunc("POST /api/v1/scan", s.scanText)

	mux.HandleFunc("GET /api/v1/health", s.health)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Pipelines ---

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Idea) == "" {
		writeError(w, http.StatusBadRequest, "idea is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	activeOnly := r.URL.Query().Get("status") == "active"

	var list []any
	all, err := s.store.ListSessions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, sess := range all {
		if userID != "" && sess.UserID != userID {
			continue
		}
		if activeOnly && sess.Status != "active" {
			continue
		}
		summary, err := s.sessions.GetSessionSummary(ctx, sess.ID)
		if err != nil {
			continue
		}
		list = append(list, summary)
	}
	if list == nil {
		list = []any{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, err := s.sessions.GetSessionSummary(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runs, err := s.store.ListRuns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) listHandoffs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	handoffs, err := s.store.ListHandoffs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, handoffs)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.CloseSession(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, err := s.sessions.GetSessionSummary(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Policies and approvals ---

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.policies.Roles)
}

func (s *Server) recordApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool string `json:"tool"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool is required")
		return
	}
	if err := s.store.RecordApproval(r.Context(), req.Tool); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tool": req.Tool, "approved": true})
}

func (s *Server) getApproval(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	ok, err := s.store.IsApproved(r.Context(), tool)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool": tool, "approved": ok})
}

// --- Scan ---

func (s *Server) scanText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, scan.Text(req.Text))
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
