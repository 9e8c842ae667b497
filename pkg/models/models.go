// Package models defines the core data types for the AgentDesk platform:
// users, workflows, executions, agent runs, documents, and API keys.
package models

import (
	"fmt"
	"time"
)

// ── Users ───────────────────────────────────────────────────

// Role controls what a user may do. Regular users manage only
// their own workflows, executions, and documents.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a registered account.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name,omitempty"`
	HashedPassword string    `json:"-"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// ── Workflows ───────────────────────────────────────────────

// TriggerType says how a workflow execution gets started.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerWebhook   TriggerType = "webhook"
	TriggerEvent     TriggerType = "event"
)

// NodeType identifies what a workflow node does. The four agent kinds
// invoke the LLM with a role-specific system prompt; the remaining kinds
// are utility nodes executed directly by the engine.
type NodeType string

const (
	NodeExtractor  NodeType = "extractor"
	NodeAnalyzer   NodeType = "analyzer"
	NodeWriter     NodeType = "writer"
	NodeResearcher NodeType = "researcher"

	NodeHTTPRequest NodeType = "http_request"
	NodeCondition   NodeType = "condition"
	NodeTransform   NodeType = "transform"
	NodeDelay       NodeType = "delay"
)

// IsAgentNode reports whether the node type invokes an LLM agent.
func (t NodeType) IsAgentNode() bool {
	switch t {
	case NodeExtractor, NodeAnalyzer, NodeWriter, NodeResearcher:
		return true
	}
	return false
}

// NodeConfig carries the node's prompt and input templates plus
// type-specific extras (URL for http_request, expression for condition, ...).
type NodeConfig struct {
	Prompt string                 `json:"prompt,omitempty"`
	Input  string                 `json:"input,omitempty"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// Node is a single step in a workflow pipeline.
type Node struct {
	ID     string     `json:"id"`
	Type   NodeType   `json:"type"`
	Config NodeConfig `json:"config"`
}

// Edge connects two nodes. Edges are always derived server-side as the
// straight chain node[i] to node[i+1]; client-supplied edges are ignored.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// WorkflowData is the saved pipeline definition.
type WorkflowData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// DeriveEdges rebuilds the edge chain from the node order. The result
// always has exactly len(nodes)-1 edges connecting consecutive nodes.
func DeriveEdges(nodes []Node) []Edge {
	if len(nodes) < 2 {
		return []Edge{}
	}
	edges := make([]Edge, 0, len(nodes)-1)
	for i := 0; i < len(nodes)-1; i++ {
		edges = append(edges, Edge{Source: nodes[i].ID, Target: nodes[i+1].ID})
	}
	return edges
}

// Workflow is a saved sequential pipeline owned by a user.
type Workflow struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	OwnerID        string       `json:"owner_id"`
	TriggerType    TriggerType  `json:"trigger_type"`
	ScheduleConfig string       `json:"schedule_config,omitempty"` // cron spec when trigger_type=scheduled
	IsActive       bool         `json:"is_active"`
	Data           WorkflowData `json:"workflow_data"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ── Executions ──────────────────────────────────────────────

// ExecutionStatus is the lifecycle state of a workflow execution.
// Transitions are monotonic: pending, running, then completed or failed.
// Terminal states never change.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// CanTransitionTo enforces the monotonic status order.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionRunning || next == ExecutionFailed
	case ExecutionRunning:
		return next == ExecutionCompleted || next == ExecutionFailed
	}
	return false
}

// Execution is one run of a workflow.
type Execution struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	UserID       string                 `json:"user_id"`
	Status       ExecutionStatus        `json:"status"`
	TriggerType  TriggerType            `json:"trigger_type"`
	InputData    map[string]interface{} `json:"input_data,omitempty"`
	OutputData   map[string]interface{} `json:"output_data,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ExecutionLog is a per-node log line written by the engine, exposed via
// the polling API so the dashboard can show execution progress.
type ExecutionLog struct {
	ID          string                 `json:"id"`
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id,omitempty"`
	NodeType    string                 `json:"node_type,omitempty"`
	Level       string                 `json:"level"` // info | error
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ── Agent runs & metrics ────────────────────────────────────

// AgentExecution records one single-shot agent run from the dashboard.
// These rows feed the metrics aggregates and user stats.
type AgentExecution struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AgentType      string    `json:"agent_type"`
	ModelName      string    `json:"model_name"`
	InputText      string    `json:"input_text,omitempty"`
	OutputText     string    `json:"output_text,omitempty"`
	TokensUsed     int64     `json:"tokens_used"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	UserRating     int       `json:"user_rating,omitempty"` // 1-5, 0 = unrated
	UserFeedback   string    `json:"user_feedback,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AgentMetrics holds running aggregates per agent type.
type AgentMetrics struct {
	AgentType         string    `json:"agent_type"`
	TotalExecutions   int64     `json:"total_executions"`
	SuccessfulRuns    int64     `json:"successful_runs"`
	FailedRuns        int64     `json:"failed_runs"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	TotalTokensUsed   int64     `json:"total_tokens_used"`
	AvgRating         float64   `json:"avg_rating"`
	TotalRatings      int64     `json:"total_ratings"`
	LastUpdated       time.Time `json:"last_updated"`
}

// SuccessRate returns the success percentage (0-100).
func (m *AgentMetrics) SuccessRate() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.SuccessfulRuns) / float64(m.TotalExecutions) * 100
}

// UserStats summarises a user's activity over a trailing window.
type UserStats struct {
	UserID          string           `json:"user_id"`
	PeriodDays      int              `json:"period_days"`
	TotalExecutions int64            `json:"total_executions"`
	SuccessfulRuns  int64            `json:"successful_runs"`
	FailedRuns      int64            `json:"failed_runs"`
	SuccessRate     float64          `json:"success_rate"`
	TotalTokensUsed int64            `json:"total_tokens_used"`
	AvgResponseMs   float64          `json:"avg_response_time_ms"`
	ByAgentType     map[string]int64 `json:"by_agent_type"`
}

// ModelStats aggregates per-model performance for model comparison.
type ModelStats struct {
	ModelName       string  `json:"model_name"`
	TotalExecutions int64   `json:"total_executions"`
	SuccessfulRuns  int64   `json:"successful_runs"`
	SuccessRate     float64 `json:"success_rate"`
	AvgResponseMs   float64 `json:"avg_response_time_ms"`
	AvgTokens       float64 `json:"avg_tokens"`
	Score           float64 `json:"score"`
}

// ModelComparison ranks the models a user has run against each other.
type ModelComparison struct {
	Models []ModelStats `json:"models"`
	Winner string       `json:"winner"`
	Reason string       `json:"reason"`
}

// ── Documents ───────────────────────────────────────────────

// Document is an uploaded file indexed for retrieval. Each user's
// documents live in their own collection.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	Content     string    `json:"-"`
	ContentType string    `json:"content_type,omitempty"`
	Collection  string    `json:"collection"`
	ChunkCount  int       `json:"chunk_count"`
	FileSize    int64     `json:"file_size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UserCollection returns the per-user vector collection name.
func UserCollection(userID string) string {
	return fmt.Sprintf("user_%s_docs", userID)
}

// VectorDoc is a single embedded chunk in the vector index.
type VectorDoc struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []float64         `json:"vector"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SearchResult is a similarity search hit.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// ── API keys ────────────────────────────────────────────────

// APIKey is a long-lived programmatic credential. Only the bcrypt hash is
// stored; the prefix is kept in plaintext for lookup and display.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the key is past its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// ── LLM types ───────────────────────────────────────────────

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports token counts from an LLM call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// AgentResult is the outcome of a single agent invocation.
type AgentResult struct {
	AgentType  string     `json:"agent_type"`
	ModelName  string     `json:"model_name"`
	Output     string     `json:"output"`
	Usage      TokenUsage `json:"usage"`
	DurationMs int64      `json:"duration_ms"`
	DemoMode   bool       `json:"demo_mode,omitempty"`
}
