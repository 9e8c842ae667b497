// Package handlers implements the HTTP handlers for the AgentDesk API.
// All handlers read the authenticated user from the request context and
// scope every query to that user.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentdesk/agentdesk/internal/agents"
	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/rag"
	"github.com/agentdesk/agentdesk/internal/scheduler"
	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/internal/workflow"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store     store.Store
	Tokens    *auth.TokenService
	Agents    *agents.Runner
	Engine    *workflow.Engine
	Metrics   *metrics.Service
	RAG       *rag.Service
	LLM       *llm.Client
	Scheduler *scheduler.Scheduler // nil when the scheduler is disabled
	Version   string
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, tokens *auth.TokenService, runner *agents.Runner, engine *workflow.Engine, m *metrics.Service, r *rag.Service, client *llm.Client, sched *scheduler.Scheduler, version string) *Handlers {
	return &Handlers{
		Store:     s,
		Tokens:    tokens,
		Agents:    runner,
		Engine:    engine,
		Metrics:   m,
		RAG:       r,
		LLM:       client,
		Scheduler: sched,
		Version:   version,
	}
}

// Health reports service liveness and storage reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.Version,
		"service":   "agentdesk-api",
	})
}

// GetVersion returns the running version.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": "agentdesk-api",
		"version": h.Version,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps storage errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	if _, ok := err.(*store.ErrNotFound); ok {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// reloadScheduler refreshes cron entries after workflow changes.
func (h *Handlers) reloadScheduler(r *http.Request) {
	if h.Scheduler != nil {
		h.Scheduler.Reload(r.Context())
	}
}
