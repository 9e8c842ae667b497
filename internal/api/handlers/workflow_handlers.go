package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/agentdesk/agentdesk/internal/store"
	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// getOwnedWorkflow fetches a workflow and verifies ownership. Workflows
// owned by other users look like 404s, not 403s.
func (h *Handlers) getOwnedWorkflow(r *http.Request, id string) (*models.Workflow, error) {
	wf, err := h.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if wf.OwnerID != pkgmw.GetUserID(r.Context()) {
		return nil, &store.ErrNotFound{Entity: "workflow", Key: id}
	}
	return wf, nil
}

// ListWorkflows returns the authenticated user's workflows.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.Store.ListWorkflows(r.Context(), pkgmw.GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if workflows == nil {
		workflows = []models.Workflow{}
	}
	respondJSON(w, http.StatusOK, workflows)
}

type workflowCreateRequest struct {
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	TriggerType    models.TriggerType  `json:"trigger_type,omitempty"`
	ScheduleConfig string              `json:"schedule_config,omitempty"`
	Data           models.WorkflowData `json:"workflow_data"`
}

// CreateWorkflow saves a new workflow. Edges are always rebuilt
// server-side from the node order; client-supplied edges are discarded.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = models.TriggerManual
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		OwnerID:        pkgmw.GetUserID(r.Context()),
		TriggerType:    req.TriggerType,
		ScheduleConfig: req.ScheduleConfig,
		IsActive:       true,
		Data: models.WorkflowData{
			Nodes: req.Data.Nodes,
			Edges: models.DeriveEdges(req.Data.Nodes),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Store.CreateWorkflow(r.Context(), wf); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.reloadScheduler(r)
	log.Info().Str("workflow_id", wf.ID).Str("name", wf.Name).Int("nodes", len(wf.Data.Nodes)).Msg("Workflow created")
	respondJSON(w, http.StatusCreated, wf)
}

// GetWorkflow returns one workflow by ID.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.getOwnedWorkflow(r, chi.URLParam(r, "workflowID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

type workflowUpdateRequest struct {
	Name           *string              `json:"name"`
	Description    *string              `json:"description"`
	TriggerType    *models.TriggerType  `json:"trigger_type"`
	ScheduleConfig *string              `json:"schedule_config"`
	IsActive       *bool                `json:"is_active"`
	Data           *models.WorkflowData `json:"workflow_data"`
}

// UpdateWorkflow applies a partial update. Absent fields keep their
// current values.
func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.getOwnedWorkflow(r, chi.URLParam(r, "workflowID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req workflowUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.TriggerType != nil {
		wf.TriggerType = *req.TriggerType
	}
	if req.ScheduleConfig != nil {
		wf.ScheduleConfig = *req.ScheduleConfig
	}
	if req.IsActive != nil {
		wf.IsActive = *req.IsActive
	}
	if req.Data != nil {
		wf.Data = models.WorkflowData{
			Nodes: req.Data.Nodes,
			Edges: models.DeriveEdges(req.Data.Nodes),
		}
	}
	wf.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateWorkflow(r.Context(), wf); err != nil {
		respondStoreError(w, err)
		return
	}

	h.reloadScheduler(r)
	respondJSON(w, http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow.
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.getOwnedWorkflow(r, chi.URLParam(r, "workflowID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.Store.DeleteWorkflow(r.Context(), wf.ID); err != nil {
		respondStoreError(w, err)
		return
	}

	h.reloadScheduler(r)
	log.Info().Str("workflow_id", wf.ID).Msg("Workflow deleted")
	w.WriteHeader(http.StatusNoContent)
}

type workflowExecuteRequest struct {
	TriggerType models.TriggerType     `json:"trigger_type,omitempty"`
	InputData   map[string]interface{} `json:"input_data,omitempty"`
}

// ExecuteWorkflow starts an asynchronous workflow run and returns the
// pending execution for the client to poll.
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.getOwnedWorkflow(r, chi.URLParam(r, "workflowID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !wf.IsActive {
		respondError(w, http.StatusBadRequest, "Workflow is not active")
		return
	}

	var req workflowExecuteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.TriggerType == "" {
		req.TriggerType = models.TriggerManual
	}

	execID, err := h.Engine.Execute(r.Context(), wf, pkgmw.GetUserID(r.Context()), req.TriggerType, req.InputData)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	exec, err := h.Store.GetExecution(r.Context(), execID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, exec)
}

// ListWorkflowExecutions returns a workflow's executions, newest first.
func (h *Handlers) ListWorkflowExecutions(w http.ResponseWriter, r *http.Request) {
	wf, err := h.getOwnedWorkflow(r, chi.URLParam(r, "workflowID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	executions, err := h.Store.ListExecutions(r.Context(), wf.ID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if executions == nil {
		executions = []models.Execution{}
	}
	respondJSON(w, http.StatusOK, executions)
}

// getOwnedExecution fetches an execution and verifies ownership.
func (h *Handlers) getOwnedExecution(r *http.Request, id string) (*models.Execution, error) {
	exec, err := h.Store.GetExecution(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if exec.UserID != pkgmw.GetUserID(r.Context()) {
		return nil, &store.ErrNotFound{Entity: "execution", Key: id}
	}
	return exec, nil
}

// GetExecution returns execution details with its logs attached.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.getOwnedExecution(r, chi.URLParam(r, "executionID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	logs, err := h.Store.ListExecutionLogs(r.Context(), exec.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []models.ExecutionLog{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"execution": exec,
		"logs":      logs,
	})
}

// GetExecutionLogs returns an execution's log lines in timestamp order.
// The dashboard polls this endpoint while the run is in flight.
func (h *Handlers) GetExecutionLogs(w http.ResponseWriter, r *http.Request) {
	exec, err := h.getOwnedExecution(r, chi.URLParam(r, "executionID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	logs, err := h.Store.ListExecutionLogs(r.Context(), exec.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []models.ExecutionLog{}
	}
	respondJSON(w, http.StatusOK, logs)
}

// CancelExecution aborts an in-flight execution.
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.getOwnedExecution(r, chi.URLParam(r, "executionID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if exec.Status.Terminal() {
		respondError(w, http.StatusBadRequest, "Execution already finished")
		return
	}
	if !h.Engine.Cancel(exec.ID) {
		respondError(w, http.StatusBadRequest, "Execution is not running")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}
