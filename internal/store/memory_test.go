package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/pkg/models"
)

// newTestStore creates a fresh in-memory store for tests with no persistence.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	// Use a temp dir so tests don't write to ~/.agentdesk/
	dir := t.TempDir()
	os.Setenv("AGENTDESK_DATA_DIR", dir)
	defer os.Unsetenv("AGENTDESK_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── User CRUD ──────────────────────────────────────────────

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &models.User{
		ID:        "u1",
		Email:     "alice@example.com",
		Username:  "alice",
		Role:      models.RoleUser,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("GetUser().Email = %q, want %q", got.Email, "alice@example.com")
	}

	// Email lookup is case-insensitive
	byEmail, err := s.GetUserByEmail(ctx, "ALICE@Example.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if byEmail.ID != "u1" {
		t.Errorf("GetUserByEmail().ID = %q, want %q", byEmail.ID, "u1")
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if byName.ID != "u1" {
		t.Errorf("GetUserByUsername().ID = %q, want %q", byName.ID, "u1")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetUser() for missing user should return error, got nil")
	}
	if _, ok := err.(*store.ErrNotFound); !ok {
		t.Errorf("GetUser() error type = %T, want *store.ErrNotFound", err)
	}
}

// ─── Workflow CRUD ──────────────────────────────────────────

func TestWorkflowCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := &models.Workflow{
		ID:          "wf1",
		Name:        "Email Pipeline",
		OwnerID:     "u1",
		TriggerType: models.TriggerManual,
		IsActive:    true,
		Data: models.WorkflowData{
			Nodes: []models.Node{
				{ID: "n1", Type: models.NodeExtractor},
				{ID: "n2", Type: models.NodeWriter},
			},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("CreateWorkflow() error = %v", err)
	}

	got, err := s.GetWorkflow(ctx, "wf1")
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if got.Name != "Email Pipeline" {
		t.Errorf("GetWorkflow().Name = %q, want %q", got.Name, "Email Pipeline")
	}
	if len(got.Data.Nodes) != 2 {
		t.Errorf("GetWorkflow() node count = %d, want 2", len(got.Data.Nodes))
	}

	list, err := s.ListWorkflows(ctx, "u1")
	if err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListWorkflows() returned %d, want 1", len(list))
	}

	// Other users see nothing
	other, _ := s.ListWorkflows(ctx, "u2")
	if len(other) != 0 {
		t.Errorf("ListWorkflows() for other user returned %d, want 0", len(other))
	}

	wf.Name = "Renamed Pipeline"
	if err := s.UpdateWorkflow(ctx, wf); err != nil {
		t.Fatalf("UpdateWorkflow() error = %v", err)
	}
	got, _ = s.GetWorkflow(ctx, "wf1")
	if got.Name != "Renamed Pipeline" {
		t.Errorf("After update, Name = %q, want %q", got.Name, "Renamed Pipeline")
	}

	if err := s.DeleteWorkflow(ctx, "wf1"); err != nil {
		t.Fatalf("DeleteWorkflow() error = %v", err)
	}
	if _, err := s.GetWorkflow(ctx, "wf1"); err == nil {
		t.Error("GetWorkflow() after delete should return error, got nil")
	}
}

func TestListScheduledWorkflows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateWorkflow(ctx, &models.Workflow{
		ID: "wf-sched", OwnerID: "u1", IsActive: true,
		TriggerType: models.TriggerScheduled, ScheduleConfig: "0 * * * *",
	})
	s.CreateWorkflow(ctx, &models.Workflow{
		ID: "wf-manual", OwnerID: "u1", IsActive: true,
		TriggerType: models.TriggerManual,
	})
	s.CreateWorkflow(ctx, &models.Workflow{
		ID: "wf-inactive", OwnerID: "u1", IsActive: false,
		TriggerType: models.TriggerScheduled, ScheduleConfig: "0 * * * *",
	})

	scheduled, err := s.ListScheduledWorkflows(ctx)
	if err != nil {
		t.Fatalf("ListScheduledWorkflows() error = %v", err)
	}
	if len(scheduled) != 1 {
		t.Fatalf("ListScheduledWorkflows() returned %d, want 1", len(scheduled))
	}
	if scheduled[0].ID != "wf-sched" {
		t.Errorf("ListScheduledWorkflows()[0].ID = %q, want %q", scheduled[0].ID, "wf-sched")
	}
}

// ─── Execution lifecycle ────────────────────────────────────

func TestExecutionStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ex := &models.Execution{
		ID: "ex1", WorkflowID: "wf1", UserID: "u1",
		Status: models.ExecutionPending, CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateExecution(ctx, ex); err != nil {
		t.Fatalf("CreateExecution() error = %v", err)
	}

	// pending -> running is allowed
	ex.Status = models.ExecutionRunning
	if err := s.UpdateExecution(ctx, ex); err != nil {
		t.Fatalf("UpdateExecution(running) error = %v", err)
	}

	// running -> completed is allowed
	ex.Status = models.ExecutionCompleted
	if err := s.UpdateExecution(ctx, ex); err != nil {
		t.Fatalf("UpdateExecution(completed) error = %v", err)
	}

	// Terminal state is immutable
	ex.Status = models.ExecutionRunning
	err := s.UpdateExecution(ctx, ex)
	if err == nil {
		t.Fatal("UpdateExecution() on terminal execution should return error, got nil")
	}
	if _, ok := err.(*store.ErrInvalidTransition); !ok {
		t.Errorf("UpdateExecution() error type = %T, want *store.ErrInvalidTransition", err)
	}

	got, _ := s.GetExecution(ctx, "ex1")
	if got.Status != models.ExecutionCompleted {
		t.Errorf("After rejected update, Status = %q, want %q", got.Status, models.ExecutionCompleted)
	}
}

func TestExecutionSkipsInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ex := &models.Execution{
		ID: "ex2", WorkflowID: "wf1", UserID: "u1",
		Status: models.ExecutionPending, CreatedAt: time.Now().UTC(),
	}
	s.CreateExecution(ctx, ex)

	// pending -> completed skips running and must be rejected
	ex.Status = models.ExecutionCompleted
	if err := s.UpdateExecution(ctx, ex); err == nil {
		t.Fatal("UpdateExecution(pending->completed) should return error, got nil")
	}

	// pending -> failed is a valid short-circuit
	ex.Status = models.ExecutionFailed
	ex.ErrorMessage = "workflow not found"
	if err := s.UpdateExecution(ctx, ex); err != nil {
		t.Fatalf("UpdateExecution(pending->failed) error = %v", err)
	}
}

func TestListExecutions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.CreateExecution(ctx, &models.Execution{
			ID:         "ex-" + string(rune('a'+i)),
			WorkflowID: "wf1",
			Status:     models.ExecutionPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	s.CreateExecution(ctx, &models.Execution{
		ID: "ex-other", WorkflowID: "wf2", Status: models.ExecutionPending, CreatedAt: base,
	})

	execs, err := s.ListExecutions(ctx, "wf1", 3)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(execs) != 3 {
		t.Fatalf("ListExecutions() returned %d, want 3", len(execs))
	}
	// Newest first
	if execs[0].ID != "ex-e" {
		t.Errorf("ListExecutions()[0].ID = %q, want %q (newest first)", execs[0].ID, "ex-e")
	}
}

func TestPurgeExecutions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	s.CreateExecution(ctx, &models.Execution{
		ID: "old-done", WorkflowID: "wf1", Status: models.ExecutionCompleted, CreatedAt: old,
	})
	s.CreateExecution(ctx, &models.Execution{
		ID: "old-running", WorkflowID: "wf1", Status: models.ExecutionRunning, CreatedAt: old,
	})
	s.CreateExecution(ctx, &models.Execution{
		ID: "fresh-done", WorkflowID: "wf1", Status: models.ExecutionCompleted, CreatedAt: time.Now().UTC(),
	})
	s.AppendExecutionLog(ctx, &models.ExecutionLog{
		ID: "log1", ExecutionID: "old-done", Level: "info", Message: "done", Timestamp: old,
	})

	n, err := s.PurgeExecutions(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeExecutions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExecutions() removed %d, want 1", n)
	}

	// Old terminal execution and its logs are gone
	if _, err := s.GetExecution(ctx, "old-done"); err == nil {
		t.Error("GetExecution(old-done) after purge should return error, got nil")
	}
	logs, _ := s.ListExecutionLogs(ctx, "old-done")
	if len(logs) != 0 {
		t.Errorf("ListExecutionLogs(old-done) after purge returned %d, want 0", len(logs))
	}

	// Running executions are never purged, regardless of age
	if _, err := s.GetExecution(ctx, "old-running"); err != nil {
		t.Errorf("GetExecution(old-running) error = %v, want nil", err)
	}
	if _, err := s.GetExecution(ctx, "fresh-done"); err != nil {
		t.Errorf("GetExecution(fresh-done) error = %v, want nil", err)
	}
}

// Retention is owned by the janitor: the store keeps expired terminal
// executions until PurgeExecutions is called explicitly, so nothing is
// deleted before it has a chance to be archived.
func TestExpiredExecutionsKeptUntilExplicitPurge(t *testing.T) {
	t.Setenv("AGENTDESK_EXECUTION_TTL", "1ms")
	s := newTestStore(t)
	ctx := context.Background()

	ancient := time.Now().UTC().Add(-365 * 24 * time.Hour)
	s.CreateExecution(ctx, &models.Execution{
		ID: "ancient-done", WorkflowID: "wf1", Status: models.ExecutionCompleted, CreatedAt: ancient,
	})

	if _, err := s.GetExecution(ctx, "ancient-done"); err != nil {
		t.Errorf("GetExecution(ancient-done) error = %v, want execution retained", err)
	}
}

// ─── Execution logs ─────────────────────────────────────────

func TestExecutionLogsOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, msg := range []string{"node 1 started", "node 1 completed", "node 2 started"} {
		s.AppendExecutionLog(ctx, &models.ExecutionLog{
			ID:          "l" + string(rune('a'+i)),
			ExecutionID: "ex1",
			Level:       "info",
			Message:     msg,
			Timestamp:   time.Now().UTC(),
		})
	}

	logs, err := s.ListExecutionLogs(ctx, "ex1")
	if err != nil {
		t.Fatalf("ListExecutionLogs() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("ListExecutionLogs() returned %d, want 3", len(logs))
	}
	if logs[0].Message != "node 1 started" {
		t.Errorf("logs[0].Message = %q, want %q (append order)", logs[0].Message, "node 1 started")
	}
}

// ─── Agent executions & metrics ─────────────────────────────

func TestAgentExecutionFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	runs := []*models.AgentExecution{
		{ID: "r1", UserID: "u1", AgentType: "email-summarizer", ModelName: "llama3.2", Success: true, CreatedAt: now},
		{ID: "r2", UserID: "u1", AgentType: "code-reviewer", ModelName: "llama3.2", Success: false, CreatedAt: now},
		{ID: "r3", UserID: "u2", AgentType: "email-summarizer", ModelName: "mistral", Success: true, CreatedAt: now},
		{ID: "r4", UserID: "u1", AgentType: "email-summarizer", ModelName: "llama3.2", Success: true, CreatedAt: now.Add(-90 * 24 * time.Hour)},
	}
	for _, r := range runs {
		if err := s.CreateAgentExecution(ctx, r); err != nil {
			t.Fatalf("CreateAgentExecution(%s) error = %v", r.ID, err)
		}
	}

	since := now.Add(-30 * 24 * time.Hour)
	got, err := s.ListAgentExecutions(ctx, store.AgentRunFilter{
		UserID:    "u1",
		AgentType: "email-summarizer",
		Since:     &since,
	})
	if err != nil {
		t.Fatalf("ListAgentExecutions() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListAgentExecutions() returned %d, want 1", len(got))
	}
	if got[0].ID != "r1" {
		t.Errorf("ListAgentExecutions()[0].ID = %q, want %q", got[0].ID, "r1")
	}
}

func TestAgentMetricsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &models.AgentMetrics{
		AgentType:       "data-analyzer",
		TotalExecutions: 1,
		SuccessfulRuns:  1,
		LastUpdated:     time.Now().UTC(),
	}
	if err := s.UpsertAgentMetrics(ctx, m); err != nil {
		t.Fatalf("UpsertAgentMetrics() error = %v", err)
	}

	m.TotalExecutions = 2
	m.FailedRuns = 1
	if err := s.UpsertAgentMetrics(ctx, m); err != nil {
		t.Fatalf("UpsertAgentMetrics() second call error = %v", err)
	}

	got, err := s.GetAgentMetrics(ctx, "data-analyzer")
	if err != nil {
		t.Fatalf("GetAgentMetrics() error = %v", err)
	}
	if got.TotalExecutions != 2 {
		t.Errorf("TotalExecutions = %d, want 2", got.TotalExecutions)
	}

	all, _ := s.ListAgentMetrics(ctx)
	if len(all) != 1 {
		t.Errorf("ListAgentMetrics() returned %d, want 1", len(all))
	}
}

// ─── Documents ──────────────────────────────────────────────

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:         "d1",
		UserID:     "u1",
		Filename:   "notes.txt",
		Collection: models.UserCollection("u1"),
		ChunkCount: 3,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	docs, err := s.ListDocuments(ctx, "u1")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("ListDocuments() returned %d, want 1", len(docs))
	}

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	docs, _ = s.ListDocuments(ctx, "u1")
	if len(docs) != 0 {
		t.Errorf("After delete, ListDocuments() returned %d, want 0", len(docs))
	}
}

// ─── API keys ───────────────────────────────────────────────

func TestAPIKeyPrefixLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateAPIKey(ctx, &models.APIKey{
		ID: "k1", UserID: "u1", Name: "ci", KeyPrefix: "adk_abc1234", IsActive: true, CreatedAt: time.Now().UTC(),
	})
	s.CreateAPIKey(ctx, &models.APIKey{
		ID: "k2", UserID: "u1", Name: "dev", KeyPrefix: "adk_xyz9876", IsActive: true, CreatedAt: time.Now().UTC(),
	})

	found, err := s.FindAPIKeysByPrefix(ctx, "adk_abc1234")
	if err != nil {
		t.Fatalf("FindAPIKeysByPrefix() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("FindAPIKeysByPrefix() returned %d, want 1", len(found))
	}
	if found[0].ID != "k1" {
		t.Errorf("FindAPIKeysByPrefix()[0].ID = %q, want %q", found[0].ID, "k1")
	}

	if err := s.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	keys, _ := s.ListAPIKeys(ctx, "u1")
	if len(keys) != 1 {
		t.Errorf("After delete, ListAPIKeys() returned %d, want 1", len(keys))
	}
}

// ─── Close / Snapshot ───────────────────────────────────────

func TestCloseFlush(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("AGENTDESK_DATA_DIR", dir)
	s := store.NewMemoryStore()
	os.Unsetenv("AGENTDESK_DATA_DIR")

	ctx := context.Background()
	s.CreateUser(ctx, &models.User{ID: "persist-me", Email: "p@example.com", Username: "persist"})

	// Close should flush to disk
	s.Close()

	// Reopen and verify data survived
	os.Setenv("AGENTDESK_DATA_DIR", dir)
	s2 := store.NewMemoryStore()
	os.Unsetenv("AGENTDESK_DATA_DIR")
	defer s2.Close()

	got, err := s2.GetUser(ctx, "persist-me")
	if err != nil {
		t.Fatalf("After reopen, GetUser() error = %v", err)
	}
	if got.Username != "persist" {
		t.Errorf("After reopen, username = %q, want %q", got.Username, "persist")
	}
}
