// Package store provides the storage interface and implementations for
// AgentDesk. The in-memory store (JSON snapshots) serves local dev and
// tests; the PostgreSQL store backs production deployments.
package store

import (
	"context"
	"time"

	"github.com/agentdesk/agentdesk/pkg/models"
)

// Store is the primary storage interface. All handler and service code
// depends on this interface, making it easy to swap between in-memory
// (tests) and PostgreSQL (production) implementations.
type Store interface {
	UserStore
	WorkflowStore
	ExecutionStore
	ExecutionLogStore
	AgentExecutionStore
	AgentMetricsStore
	DocumentStore
	APIKeyStore

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── User Store ──────────────────────────────────────────────

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
}

// ── Workflow Store ──────────────────────────────────────────

type WorkflowStore interface {
	ListWorkflows(ctx context.Context, ownerID string) ([]models.Workflow, error)
	// ListScheduledWorkflows returns active workflows with a scheduled trigger,
	// across all owners. Used by the cron scheduler.
	ListScheduledWorkflows(ctx context.Context) ([]models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ── Execution Store ─────────────────────────────────────────

type ExecutionStore interface {
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]models.Execution, error)
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	CreateExecution(ctx context.Context, exec *models.Execution) error

	// UpdateExecution persists run output/timestamps alongside a status
	// change. The implementation rejects transitions that violate the
	// monotonic pending → running → completed|failed order.
	UpdateExecution(ctx context.Context, exec *models.Execution) error

	// ListExpiredExecutions returns terminal executions created before
	// the cutoff. The retention janitor archives these before purging.
	ListExpiredExecutions(ctx context.Context, cutoff time.Time) ([]models.Execution, error)

	// PurgeExecutions deletes terminal executions (and their logs)
	// created before the cutoff. Returns the number removed.
	PurgeExecutions(ctx context.Context, cutoff time.Time) (int, error)
}

// ── Execution Log Store ─────────────────────────────────────

type ExecutionLogStore interface {
	AppendExecutionLog(ctx context.Context, entry *models.ExecutionLog) error
	ListExecutionLogs(ctx context.Context, executionID string) ([]models.ExecutionLog, error)
}

// ── Agent Execution Store ───────────────────────────────────

// AgentRunFilter narrows agent execution queries.
type AgentRunFilter struct {
	UserID    string
	AgentType string
	ModelName string
	Since     *time.Time
	Limit     int
}

type AgentExecutionStore interface {
	CreateAgentExecution(ctx context.Context, run *models.AgentExecution) error
	GetAgentExecution(ctx context.Context, id string) (*models.AgentExecution, error)
	UpdateAgentExecution(ctx context.Context, run *models.AgentExecution) error
	ListAgentExecutions(ctx context.Context, filter AgentRunFilter) ([]models.AgentExecution, error)
}

// ── Agent Metrics Store ─────────────────────────────────────

type AgentMetricsStore interface {
	GetAgentMetrics(ctx context.Context, agentType string) (*models.AgentMetrics, error)
	ListAgentMetrics(ctx context.Context) ([]models.AgentMetrics, error)
	UpsertAgentMetrics(ctx context.Context, m *models.AgentMetrics) error
}

// ── Document Store ──────────────────────────────────────────

type DocumentStore interface {
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
}

// ── API Key Store ───────────────────────────────────────────

type APIKeyStore interface {
	ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error)
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	// FindAPIKeysByPrefix returns candidate keys for bearer verification.
	FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	UpdateAPIKey(ctx context.Context, key *models.APIKey) error
	DeleteAPIKey(ctx context.Context, id string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrInvalidTransition is returned when an execution status update
// would violate the monotonic lifecycle.
type ErrInvalidTransition struct {
	From models.ExecutionStatus
	To   models.ExecutionStatus
}

func (e *ErrInvalidTransition) Error() string {
	return "invalid execution status transition: " + string(e.From) + " -> " + string(e.To)
}
