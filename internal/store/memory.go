// In-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Users        map[string]*models.User             `json:"users"`
	Workflows    map[string]*models.Workflow         `json:"workflows"`
	Executions   map[string]*models.Execution        `json:"executions"`
	Logs         map[string][]*models.ExecutionLog   `json:"execution_logs"` // key: execution_id
	AgentRuns    map[string]*models.AgentExecution   `json:"agent_runs"`
	AgentMetrics map[string]*models.AgentMetrics     `json:"agent_metrics"` // key: agent_type
	Documents    map[string]*models.Document         `json:"documents"`
	APIKeys      map[string]*models.APIKey           `json:"api_keys"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*models.User           // key: id
	workflows    map[string]*models.Workflow       // key: id
	executions   map[string]*models.Execution      // key: id
	logs         map[string][]*models.ExecutionLog // key: execution_id, append-only
	agentRuns    map[string]*models.AgentExecution // key: id
	agentMetrics map[string]*models.AgentMetrics   // key: agent_type
	documents    map[string]*models.Document       // key: id
	apiKeys      map[string]*models.APIKey         // key: id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store.
// If AGENTDESK_DATA_DIR is set, data is persisted to a JSON file in that
// directory. Otherwise defaults to ~/.agentdesk/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		users:        make(map[string]*models.User),
		workflows:    make(map[string]*models.Workflow),
		executions:   make(map[string]*models.Execution),
		logs:         make(map[string][]*models.ExecutionLog),
		agentRuns:    make(map[string]*models.AgentExecution),
		agentMetrics: make(map[string]*models.AgentMetrics),
		documents:    make(map[string]*models.Document),
		apiKeys:      make(map[string]*models.APIKey),
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}

	dataDir := os.Getenv("AGENTDESK_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".agentdesk")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Users:        m.users,
		Workflows:    m.workflows,
		Executions:   m.executions,
		Logs:         m.logs,
		AgentRuns:    m.agentRuns,
		AgentMetrics: m.agentMetrics,
		Documents:    m.documents,
		APIKeys:      m.apiKeys,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Users != nil {
		m.users = snap.Users
	}
	if snap.Workflows != nil {
		m.workflows = snap.Workflows
	}
	if snap.Executions != nil {
		m.executions = snap.Executions
	}
	if snap.Logs != nil {
		m.logs = snap.Logs
	}
	if snap.AgentRuns != nil {
		m.agentRuns = snap.AgentRuns
	}
	if snap.AgentMetrics != nil {
		m.agentMetrics = snap.AgentMetrics
	}
	if snap.Documents != nil {
		m.documents = snap.Documents
	}
	if snap.APIKeys != nil {
		m.apiKeys = snap.APIKeys
	}

	log.Info().
		Int("users", len(m.users)).
		Int("workflows", len(m.workflows)).
		Int("executions", len(m.executions)).
		Int("documents", len(m.documents)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		// Already closed
		return nil
	default:
		close(m.doneCh)
	}

	// Force a final snapshot write so no in-flight data is lost
	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

// ── User Store ──────────────────────────────────────────────

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "user", Key: email}
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "user", Key: username}
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	cp := *user
	m.users[user.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	if _, ok := m.users[user.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "user", Key: user.ID}
	}
	cp := *user
	m.users[user.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Workflow Store ──────────────────────────────────────────

func (m *MemoryStore) ListWorkflows(_ context.Context, ownerID string) ([]models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Workflow
	for _, wf := range m.workflows {
		if wf.OwnerID == ownerID || ownerID == "" {
			result = append(result, *wf)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) ListScheduledWorkflows(_ context.Context) ([]models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Workflow
	for _, wf := range m.workflows {
		if wf.IsActive && wf.TriggerType == models.TriggerScheduled && wf.ScheduleConfig != "" {
			result = append(result, *wf)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "workflow", Key: id}
	}
	cp := *wf
	return &cp, nil
}

func (m *MemoryStore) CreateWorkflow(_ context.Context, wf *models.Workflow) error {
	m.mu.Lock()
	cp := *wf
	m.workflows[wf.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateWorkflow(_ context.Context, wf *models.Workflow) error {
	m.mu.Lock()
	if _, ok := m.workflows[wf.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "workflow", Key: wf.ID}
	}
	cp := *wf
	m.workflows[wf.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.workflows[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "workflow", Key: id}
	}
	delete(m.workflows, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Execution Store ─────────────────────────────────────────

func (m *MemoryStore) ListExecutions(_ context.Context, workflowID string, limit int) ([]models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Execution
	for _, ex := range m.executions {
		if ex.WorkflowID == workflowID {
			result = append(result, *ex)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.executions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	cp := *ex
	return &cp, nil
}

func (m *MemoryStore) CreateExecution(_ context.Context, exec *models.Execution) error {
	m.mu.Lock()
	cp := *exec
	m.executions[exec.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateExecution(_ context.Context, exec *models.Execution) error {
	m.mu.Lock()
	existing, ok := m.executions[exec.ID]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "execution", Key: exec.ID}
	}
	if existing.Status != exec.Status && !existing.Status.CanTransitionTo(exec.Status) {
		m.mu.Unlock()
		return &ErrInvalidTransition{From: existing.Status, To: exec.Status}
	}
	if existing.Status.Terminal() {
		// Terminal executions are immutable
		m.mu.Unlock()
		return &ErrInvalidTransition{From: existing.Status, To: exec.Status}
	}
	cp := *exec
	m.executions[exec.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListExpiredExecutions(_ context.Context, cutoff time.Time) ([]models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Execution
	for _, ex := range m.executions {
		if ex.Status.Terminal() && ex.CreatedAt.Before(cutoff) {
			result = append(result, *ex)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) PurgeExecutions(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	var purged int
	for id, ex := range m.executions {
		if ex.Status.Terminal() && ex.CreatedAt.Before(cutoff) {
			delete(m.executions, id)
			delete(m.logs, id)
			purged++
		}
	}
	m.mu.Unlock()

	if purged > 0 {
		m.requestSave()
	}
	return purged, nil
}

// ── Execution Log Store ─────────────────────────────────────

func (m *MemoryStore) AppendExecutionLog(_ context.Context, entry *models.ExecutionLog) error {
	m.mu.Lock()
	cp := *entry
	m.logs[entry.ExecutionID] = append(m.logs[entry.ExecutionID], &cp)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListExecutionLogs(_ context.Context, executionID string) ([]models.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.logs[executionID]
	result := make([]models.ExecutionLog, len(entries))
	for i, e := range entries {
		result[i] = *e
	}
	return result, nil
}

// ── Agent Execution Store ───────────────────────────────────

func (m *MemoryStore) CreateAgentExecution(_ context.Context, run *models.AgentExecution) error {
	m.mu.Lock()
	cp := *run
	m.agentRuns[run.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAgentExecution(_ context.Context, id string) (*models.AgentExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.agentRuns[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent_execution", Key: id}
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) UpdateAgentExecution(_ context.Context, run *models.AgentExecution) error {
	m.mu.Lock()
	if _, ok := m.agentRuns[run.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent_execution", Key: run.ID}
	}
	cp := *run
	m.agentRuns[run.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListAgentExecutions(_ context.Context, filter AgentRunFilter) ([]models.AgentExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.AgentExecution
	for _, run := range m.agentRuns {
		if filter.UserID != "" && run.UserID != filter.UserID {
			continue
		}
		if filter.AgentType != "" && run.AgentType != filter.AgentType {
			continue
		}
		if filter.ModelName != "" && run.ModelName != filter.ModelName {
			continue
		}
		if filter.Since != nil && run.CreatedAt.Before(*filter.Since) {
			continue
		}
		result = append(result, *run)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ── Agent Metrics Store ─────────────────────────────────────

func (m *MemoryStore) GetAgentMetrics(_ context.Context, agentType string) (*models.AgentMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	am, ok := m.agentMetrics[agentType]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent_metrics", Key: agentType}
	}
	cp := *am
	return &cp, nil
}

func (m *MemoryStore) ListAgentMetrics(_ context.Context) ([]models.AgentMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.AgentMetrics
	for _, am := range m.agentMetrics {
		result = append(result, *am)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AgentType < result[j].AgentType })
	return result, nil
}

func (m *MemoryStore) UpsertAgentMetrics(_ context.Context, am *models.AgentMetrics) error {
	m.mu.Lock()
	cp := *am
	m.agentMetrics[am.AgentType] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Document Store ──────────────────────────────────────────

func (m *MemoryStore) ListDocuments(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Document
	for _, d := range m.documents {
		if d.UserID == userID {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UploadedAt.After(result[j].UploadedAt) })
	return result, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	cp := *doc
	m.documents[doc.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.documents[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "document", Key: id}
	}
	delete(m.documents, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── API Key Store ───────────────────────────────────────────

func (m *MemoryStore) ListAPIKeys(_ context.Context, userID string) ([]models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.APIKey
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			result = append(result, *k)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) GetAPIKey(_ context.Context, id string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "api_key", Key: id}
	}
	cp := *k
	return &cp, nil
}

func (m *MemoryStore) FindAPIKeysByPrefix(_ context.Context, prefix string) ([]models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.APIKey
	for _, k := range m.apiKeys {
		if k.KeyPrefix == prefix {
			result = append(result, *k)
		}
	}
	return result, nil
}

func (m *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	cp := *key
	m.apiKeys[key.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	if _, ok := m.apiKeys[key.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "api_key", Key: key.ID}
	}
	cp := *key
	m.apiKeys[key.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.apiKeys[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "api_key", Key: id}
	}
	delete(m.apiKeys, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
