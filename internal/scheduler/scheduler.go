// Package scheduler runs workflows with a scheduled trigger on their
// cron spec. Entries are rebuilt from the store on startup and after
// every workflow change.
package scheduler

import (
	"context"
	"sync"

	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/internal/workflow"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler enqueues executions for active scheduled workflows.
type Scheduler struct {
	store  store.Store
	engine *workflow.Engine

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // workflow ID → entry
}

// New creates a stopped scheduler. Call Start to load entries and
// begin ticking.
func New(s store.Store, engine *workflow.Engine) *Scheduler {
	return &Scheduler{
		store:   s,
		engine:  engine,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads scheduled workflows and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Int("workflows", s.EntryCount()).Msg("⏰ Scheduler started")
	return nil
}

// Stop halts the cron loop. Running executions are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info().Msg("Scheduler stopped")
}

// Reload rebuilds the cron entries from the store. Called after
// workflow create/update/delete so schedule changes take effect
// without a restart.
func (s *Scheduler) Reload(ctx context.Context) error {
	workflows, err := s.store.ListScheduledWorkflows(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, wf := range workflows {
		workflowID := wf.ID
		entryID, err := s.cron.AddFunc(wf.ScheduleConfig, func() {
			s.runWorkflow(workflowID)
		})
		if err != nil {
			log.Warn().
				Str("workflow_id", wf.ID).
				Str("schedule", wf.ScheduleConfig).
				Err(err).
				Msg("Invalid cron spec, workflow not scheduled")
			continue
		}
		s.entries[wf.ID] = entryID
	}

	log.Debug().Int("entries", len(s.entries)).Msg("Scheduler entries reloaded")
	return nil
}

// EntryCount returns the number of scheduled workflows.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// runWorkflow fires one scheduled execution. The workflow is re-read
// so edits between reloads still take effect, and deactivated
// workflows are skipped.
func (s *Scheduler) runWorkflow(workflowID string) {
	ctx := context.Background()

	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		log.Warn().Str("workflow_id", workflowID).Err(err).Msg("Scheduled workflow vanished")
		return
	}
	if !wf.IsActive {
		return
	}

	execID, err := s.engine.Execute(ctx, wf, wf.OwnerID, models.TriggerScheduled, nil)
	if err != nil {
		log.Error().Str("workflow_id", workflowID).Err(err).Msg("Scheduled execution failed to start")
		return
	}
	log.Info().
		Str("workflow_id", workflowID).
		Str("execution_id", execID).
		Msg("Scheduled workflow triggered")
}
