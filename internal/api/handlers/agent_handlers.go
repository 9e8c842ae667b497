package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/agentdesk/agentdesk/internal/agents"
	"github.com/agentdesk/agentdesk/internal/store"
	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/rs/zerolog/log"
)

// ListAgents returns the dashboard agent catalog.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, agents.List())
}

type agentExecuteRequest struct {
	AgentID   string `json:"agent_id"`
	InputText string `json:"input_text"`
	Model     string `json:"model,omitempty"`
}

// ExecuteAgent runs one dashboard agent on the given input. The
// document Q&A agent is answered by the RAG pipeline; every other agent
// is a single LLM call. Each run is recorded for the metrics aggregates.
func (h *Handlers) ExecuteAgent(w http.ResponseWriter, r *http.Request) {
	var req agentExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.InputText == "" {
		respondError(w, http.StatusBadRequest, "input_text is required")
		return
	}

	agent, err := agents.Lookup(req.AgentID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	userID := pkgmw.GetUserID(r.Context())

	var result *models.AgentResult
	if agent.Kind == agents.KindRAG {
		result, err = h.executeDocumentQA(r, req)
	} else {
		result, err = h.Agents.Execute(r.Context(), req.AgentID, req.Model, req.InputText)
	}

	run := &models.AgentExecution{
		UserID:    userID,
		AgentType: req.AgentID,
		ModelName: req.Model,
		InputText: req.InputText,
		Success:   err == nil,
	}
	if err != nil {
		run.ErrorMessage = err.Error()
	} else {
		run.ModelName = result.ModelName
		run.OutputText = result.Output
		run.TokensUsed = result.Usage.TotalTokens
		run.ResponseTimeMs = result.DurationMs
	}
	if recErr := h.Metrics.RecordExecution(r.Context(), run); recErr != nil {
		log.Warn().Err(recErr).Str("agent", req.AgentID).Msg("Failed to record agent execution")
	}

	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"status":           "success",
		"agent_id":         req.AgentID,
		"execution_id":     run.ID,
		"output":           result.Output,
		"model":            result.ModelName,
		"tokens_used":      result.Usage.TotalTokens,
		"response_time_ms": result.DurationMs,
		"demo_mode":        result.DemoMode,
	}
	if result.DemoMode {
		resp["message"] = "⚠️ Using demo mode - Ollama not connected. Install from https://ollama.ai and run 'ollama serve'"
	}
	respondJSON(w, http.StatusOK, resp)
}

// executeDocumentQA answers the document-qa agent through the RAG
// pipeline and adapts the result to the agent response shape.
func (h *Handlers) executeDocumentQA(r *http.Request, req agentExecuteRequest) (*models.AgentResult, error) {
	start := time.Now()
	qr, err := h.RAG.Query(r.Context(), pkgmw.GetUserID(r.Context()), req.InputText, 0)
	if err != nil {
		return nil, err
	}
	return &models.AgentResult{
		AgentType:  req.AgentID,
		ModelName:  qr.Model,
		Output:     qr.Answer,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

type rateRequest struct {
	ExecutionID string `json:"execution_id"`
	Rating      int    `json:"rating"`
	Feedback    string `json:"feedback,omitempty"`
}

// RateExecution attaches a 1-5 rating to one of the user's agent runs.
func (h *Handlers) RateExecution(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := h.Metrics.RateExecution(r.Context(), req.ExecutionID, pkgmw.GetUserID(r.Context()), req.Rating, req.Feedback)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// GetAgentMetrics returns aggregates for one agent type
// (?agent_type=...) or all agent types.
func (h *Handlers) GetAgentMetrics(w http.ResponseWriter, r *http.Request) {
	if agentType := r.URL.Query().Get("agent_type"); agentType != "" {
		m, err := h.Metrics.AgentMetrics(r.Context(), agentType)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, m)
		return
	}

	list, err := h.Metrics.ListAgentMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.AgentMetrics{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetMyStats returns the user's activity summary over a trailing
// window (?days=30).
func (h *Handlers) GetMyStats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	stats, err := h.Metrics.UserStats(r.Context(), pkgmw.GetUserID(r.Context()), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type compareModelsRequest struct {
	AgentType string `json:"agent_type,omitempty"`
	Days      int    `json:"days,omitempty"`
}

// CompareModels ranks the models the user has run by success rate and
// speed.
func (h *Handlers) CompareModels(w http.ResponseWriter, r *http.Request) {
	var req compareModelsRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	cmp, err := h.Metrics.CompareModels(r.Context(), pkgmw.GetUserID(r.Context()), req.AgentType, req.Days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cmp)
}

// GetRecentExecutions returns the user's latest agent runs (?limit=10).
func (h *Handlers) GetRecentExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.Metrics.RecentExecutions(r.Context(), pkgmw.GetUserID(r.Context()), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.AgentExecution{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetAvailableModels lists models installed on the Ollama instance.
func (h *Handlers) GetAvailableModels(w http.ResponseWriter, r *http.Request) {
	names, err := h.LLM.ListModels(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"models":  []string{},
			"error":   "Ollama not reachable",
			"default": h.LLM.DefaultModel(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"models":  names,
		"default": h.LLM.DefaultModel(),
	})
}
