package scheduler_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk/internal/agents"
	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/internal/scheduler"
	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/internal/workflow"
	"github.com/agentdesk/agentdesk/pkg/models"
)

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, store.Store) {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("AGENTDESK_DATA_DIR", dir)
	defer os.Unsetenv("AGENTDESK_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	runner := agents.NewRunner(llm.NewClient("http://localhost:1", "llama3.2"), true)
	engine := workflow.NewEngine(s, runner)
	return scheduler.New(s, engine), s
}

func seedWorkflow(t *testing.T, s store.Store, id, schedule string, active bool) {
	t.Helper()
	wf := &models.Workflow{
		ID:             id,
		Name:           "scheduled " + id,
		OwnerID:        "u1",
		TriggerType:    models.TriggerScheduled,
		ScheduleConfig: schedule,
		IsActive:       active,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("CreateWorkflow() error = %v", err)
	}
}

func TestReloadRegistersScheduledWorkflows(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf-hourly", "@every 1h", true)
	seedWorkflow(t, s, "wf-daily", "0 9 * * *", true)
	seedWorkflow(t, s, "wf-inactive", "@every 1h", false)
	seedWorkflow(t, s, "wf-bad-spec", "not a cron spec", true)

	if err := sched.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	// Inactive workflows are excluded by the store, bad specs are skipped
	if got := sched.EntryCount(); got != 2 {
		t.Errorf("EntryCount() = %d, want 2", got)
	}
}

func TestReloadReplacesEntries(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf-1", "@every 1h", true)
	if err := sched.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := sched.EntryCount(); got != 1 {
		t.Fatalf("EntryCount() = %d, want 1", got)
	}

	if err := s.DeleteWorkflow(ctx, "wf-1"); err != nil {
		t.Fatalf("DeleteWorkflow() error = %v", err)
	}
	if err := sched.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := sched.EntryCount(); got != 0 {
		t.Errorf("EntryCount() after delete = %d, want 0", got)
	}
}

func TestStartStop(t *testing.T) {
	sched, s := newTestScheduler(t)
	seedWorkflow(t, s, "wf-1", "@every 1h", true)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sched.Stop()
}
