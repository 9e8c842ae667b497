// PostgreSQL Store implementation on pgx/v5.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	username        TEXT NOT NULL UNIQUE,
	full_name       TEXT NOT NULL DEFAULT '',
	hashed_password TEXT NOT NULL,
	role            TEXT NOT NULL DEFAULT 'user',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflows (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	owner_id        TEXT NOT NULL REFERENCES users(id),
	trigger_type    TEXT NOT NULL DEFAULT 'manual',
	schedule_config TEXT NOT NULL DEFAULT '',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	workflow_data   JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows (owner_id);

CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	workflow_id   TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	trigger_type  TEXT NOT NULL DEFAULT 'manual',
	input_data    JSONB,
	output_data   JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions (workflow_id, created_at DESC);

CREATE TABLE IF NOT EXISTS execution_logs (
	id           TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
	node_id      TEXT NOT NULL DEFAULT '',
	node_type    TEXT NOT NULL DEFAULT '',
	level        TEXT NOT NULL DEFAULT 'info',
	message      TEXT NOT NULL,
	data         JSONB,
	ts           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_execution_logs_execution ON execution_logs (execution_id, ts);

CREATE TABLE IF NOT EXISTS agent_executions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	agent_type       TEXT NOT NULL,
	model_name       TEXT NOT NULL DEFAULT '',
	input_text       TEXT NOT NULL DEFAULT '',
	output_text      TEXT NOT NULL DEFAULT '',
	tokens_used      BIGINT NOT NULL DEFAULT 0,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL DEFAULT FALSE,
	error_message    TEXT NOT NULL DEFAULT '',
	user_rating      INT NOT NULL DEFAULT 0,
	user_feedback    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_agent_executions_user ON agent_executions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_agent_executions_type ON agent_executions (agent_type, created_at DESC);

CREATE TABLE IF NOT EXISTS agent_metrics (
	agent_type           TEXT PRIMARY KEY,
	total_executions     BIGINT NOT NULL DEFAULT 0,
	successful_runs      BIGINT NOT NULL DEFAULT 0,
	failed_runs          BIGINT NOT NULL DEFAULT 0,
	avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_tokens_used    BIGINT NOT NULL DEFAULT 0,
	avg_rating           DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_ratings        BIGINT NOT NULL DEFAULT 0,
	last_updated         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	collection   TEXT NOT NULL,
	chunk_count  INT NOT NULL DEFAULT 0,
	file_size    BIGINT NOT NULL DEFAULT 0,
	uploaded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, uploaded_at DESC);

CREATE TABLE IF NOT EXISTS api_keys (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	key_hash     TEXT NOT NULL,
	key_prefix   TEXT NOT NULL,
	expires_at   TIMESTAMPTZ,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	last_used_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and applies the schema.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Int("max_conns", maxConns).Msg("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── User Store ──────────────────────────────────────────────

const userCols = "id, email, username, full_name, hashed_password, role, is_active, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.HashedPassword, &u.Role, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	return u, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE LOWER(email) = LOWER($1)", email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "user", Key: email}
	}
	return u, err
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE username = $1", username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "user", Key: username}
	}
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, username, full_name, hashed_password, role, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Username, u.FullName, u.HashedPassword, u.Role, u.IsActive, u.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *models.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email = $2, username = $3, full_name = $4, hashed_password = $5, role = $6, is_active = $7
		 WHERE id = $1`,
		u.ID, u.Email, u.Username, u.FullName, u.HashedPassword, u.Role, u.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user", Key: u.ID}
	}
	return nil
}

// ── Workflow Store ──────────────────────────────────────────

const workflowCols = "id, name, description, owner_id, trigger_type, schedule_config, is_active, workflow_data, created_at, updated_at"

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var wf models.Workflow
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.OwnerID, &wf.TriggerType,
		&wf.ScheduleConfig, &wf.IsActive, &wf.Data, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, ownerID string) ([]models.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+workflowCols+" FROM workflows WHERE owner_id = $1 OR $1 = '' ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *wf)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListScheduledWorkflows(ctx context.Context) ([]models.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+workflowCols+" FROM workflows WHERE is_active AND trigger_type = 'scheduled' AND schedule_config <> ''")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *wf)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := scanWorkflow(s.pool.QueryRow(ctx, "SELECT "+workflowCols+" FROM workflows WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "workflow", Key: id}
	}
	return wf, err
}

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflows (id, name, description, owner_id, trigger_type, schedule_config, is_active, workflow_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wf.ID, wf.Name, wf.Description, wf.OwnerID, wf.TriggerType, wf.ScheduleConfig, wf.IsActive, wf.Data, wf.CreatedAt, wf.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET name = $2, description = $3, trigger_type = $4, schedule_config = $5,
		 is_active = $6, workflow_data = $7, updated_at = $8 WHERE id = $1`,
		wf.ID, wf.Name, wf.Description, wf.TriggerType, wf.ScheduleConfig, wf.IsActive, wf.Data, wf.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "workflow", Key: wf.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "workflow", Key: id}
	}
	return nil
}

// ── Execution Store ─────────────────────────────────────────

const executionCols = "id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, started_at, completed_at, created_at"

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var ex models.Execution
	err := row.Scan(&ex.ID, &ex.WorkflowID, &ex.UserID, &ex.Status, &ex.TriggerType,
		&ex.InputData, &ex.OutputData, &ex.ErrorMessage, &ex.StartedAt, &ex.CompletedAt, &ex.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+executionCols+" FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2",
		workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ex)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	ex, err := scanExecution(s.pool.QueryRow(ctx, "SELECT "+executionCols+" FROM executions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	return ex, err
}

func (s *PostgresStore) CreateExecution(ctx context.Context, ex *models.Execution) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO executions (id, workflow_id, user_id, status, trigger_type, input_data, output_data, error_message, started_at, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ex.ID, ex.WorkflowID, ex.UserID, ex.Status, ex.TriggerType, ex.InputData, ex.OutputData,
		ex.ErrorMessage, ex.StartedAt, ex.CompletedAt, ex.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateExecution(ctx context.Context, ex *models.Execution) error {
	// Read-check-write in a transaction so the monotonic lifecycle holds
	// under concurrent updates.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current models.ExecutionStatus
	err = tx.QueryRow(ctx, "SELECT status FROM executions WHERE id = $1 FOR UPDATE", ex.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &ErrNotFound{Entity: "execution", Key: ex.ID}
	}
	if err != nil {
		return err
	}
	if current.Terminal() {
		return &ErrInvalidTransition{From: current, To: ex.Status}
	}
	if current != ex.Status && !current.CanTransitionTo(ex.Status) {
		return &ErrInvalidTransition{From: current, To: ex.Status}
	}

	_, err = tx.Exec(ctx,
		`UPDATE executions SET status = $2, output_data = $3, error_message = $4, started_at = $5, completed_at = $6
		 WHERE id = $1`,
		ex.ID, ex.Status, ex.OutputData, ex.ErrorMessage, ex.StartedAt, ex.CompletedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListExpiredExecutions(ctx context.Context, cutoff time.Time) ([]models.Execution, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+executionCols+" FROM executions WHERE status IN ('completed', 'failed') AND created_at < $1 ORDER BY created_at",
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ex)
	}
	return result, rows.Err()
}

func (s *PostgresStore) PurgeExecutions(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM executions WHERE status IN ('completed', 'failed') AND created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── Execution Log Store ─────────────────────────────────────

func (s *PostgresStore) AppendExecutionLog(ctx context.Context, entry *models.ExecutionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO execution_logs (id, execution_id, node_id, node_type, level, message, data, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ExecutionID, entry.NodeID, entry.NodeType, entry.Level, entry.Message, entry.Data, entry.Timestamp)
	return err
}

func (s *PostgresStore) ListExecutionLogs(ctx context.Context, executionID string) ([]models.ExecutionLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, execution_id, node_id, node_type, level, message, data, ts
		 FROM execution_logs WHERE execution_id = $1 ORDER BY ts`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ExecutionLog
	for rows.Next() {
		var e models.ExecutionLog
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.NodeID, &e.NodeType, &e.Level, &e.Message, &e.Data, &e.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ── Agent Execution Store ───────────────────────────────────

const agentRunCols = "id, user_id, agent_type, model_name, input_text, output_text, tokens_used, response_time_ms, success, error_message, user_rating, user_feedback, created_at"

func scanAgentRun(row pgx.Row) (*models.AgentExecution, error) {
	var r models.AgentExecution
	err := row.Scan(&r.ID, &r.UserID, &r.AgentType, &r.ModelName, &r.InputText, &r.OutputText,
		&r.TokensUsed, &r.ResponseTimeMs, &r.Success, &r.ErrorMessage, &r.UserRating, &r.UserFeedback, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateAgentExecution(ctx context.Context, r *models.AgentExecution) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_executions (id, user_id, agent_type, model_name, input_text, output_text, tokens_used, response_time_ms, success, error_message, user_rating, user_feedback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.UserID, r.AgentType, r.ModelName, r.InputText, r.OutputText, r.TokensUsed,
		r.ResponseTimeMs, r.Success, r.ErrorMessage, r.UserRating, r.UserFeedback, r.CreatedAt)
	return err
}

func (s *PostgresStore) GetAgentExecution(ctx context.Context, id string) (*models.AgentExecution, error) {
	r, err := scanAgentRun(s.pool.QueryRow(ctx, "SELECT "+agentRunCols+" FROM agent_executions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent_execution", Key: id}
	}
	return r, err
}

func (s *PostgresStore) UpdateAgentExecution(ctx context.Context, r *models.AgentExecution) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_executions SET output_text = $2, tokens_used = $3, response_time_ms = $4,
		 success = $5, error_message = $6, user_rating = $7, user_feedback = $8 WHERE id = $1`,
		r.ID, r.OutputText, r.TokensUsed, r.ResponseTimeMs, r.Success, r.ErrorMessage, r.UserRating, r.UserFeedback)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent_execution", Key: r.ID}
	}
	return nil
}

func (s *PostgresStore) ListAgentExecutions(ctx context.Context, filter AgentRunFilter) ([]models.AgentExecution, error) {
	query := "SELECT " + agentRunCols + " FROM agent_executions WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.AgentType != "" {
		query += fmt.Sprintf(" AND agent_type = $%d", argIdx)
		args = append(args, filter.AgentType)
		argIdx++
	}
	if filter.ModelName != "" {
		query += fmt.Sprintf(" AND model_name = $%d", argIdx)
		args = append(args, filter.ModelName)
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.AgentExecution
	for rows.Next() {
		r, err := scanAgentRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// ── Agent Metrics Store ─────────────────────────────────────

const metricsCols = "agent_type, total_executions, successful_runs, failed_runs, avg_response_time_ms, total_tokens_used, avg_rating, total_ratings, last_updated"

func scanMetrics(row pgx.Row) (*models.AgentMetrics, error) {
	var m models.AgentMetrics
	err := row.Scan(&m.AgentType, &m.TotalExecutions, &m.SuccessfulRuns, &m.FailedRuns,
		&m.AvgResponseTimeMs, &m.TotalTokensUsed, &m.AvgRating, &m.TotalRatings, &m.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) GetAgentMetrics(ctx context.Context, agentType string) (*models.AgentMetrics, error) {
	m, err := scanMetrics(s.pool.QueryRow(ctx, "SELECT "+metricsCols+" FROM agent_metrics WHERE agent_type = $1", agentType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent_metrics", Key: agentType}
	}
	return m, err
}

func (s *PostgresStore) ListAgentMetrics(ctx context.Context) ([]models.AgentMetrics, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+metricsCols+" FROM agent_metrics ORDER BY agent_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.AgentMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpsertAgentMetrics(ctx context.Context, m *models.AgentMetrics) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_metrics (agent_type, total_executions, successful_runs, failed_runs, avg_response_time_ms, total_tokens_used, avg_rating, total_ratings, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (agent_type) DO UPDATE SET
			total_executions = EXCLUDED.total_executions,
			successful_runs = EXCLUDED.successful_runs,
			failed_runs = EXCLUDED.failed_runs,
			avg_response_time_ms = EXCLUDED.avg_response_time_ms,
			total_tokens_used = EXCLUDED.total_tokens_used,
			avg_rating = EXCLUDED.avg_rating,
			total_ratings = EXCLUDED.total_ratings,
			last_updated = EXCLUDED.last_updated`,
		m.AgentType, m.TotalExecutions, m.SuccessfulRuns, m.FailedRuns, m.AvgResponseTimeMs,
		m.TotalTokensUsed, m.AvgRating, m.TotalRatings, m.LastUpdated)
	return err
}

// ── Document Store ──────────────────────────────────────────

const documentCols = "id, user_id, filename, content, content_type, collection, chunk_count, file_size, uploaded_at"

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.Content, &d.ContentType, &d.Collection,
		&d.ChunkCount, &d.FileSize, &d.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+documentCols+" FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, "SELECT "+documentCols+" FROM documents WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "document", Key: id}
	}
	return d, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d *models.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, filename, content, content_type, collection, chunk_count, file_size, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.UserID, d.Filename, d.Content, d.ContentType, d.Collection, d.ChunkCount, d.FileSize, d.UploadedAt)
	return err
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "document", Key: id}
	}
	return nil
}

// ── API Key Store ───────────────────────────────────────────

const apiKeyCols = "id, user_id, name, key_hash, key_prefix, expires_at, is_active, last_used_at, created_at"

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.ExpiresAt,
		&k.IsActive, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+apiKeyCols+" FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *k)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx, "SELECT "+apiKeyCols+" FROM api_keys WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "api_key", Key: id}
	}
	return k, err
}

func (s *PostgresStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+apiKeyCols+" FROM api_keys WHERE key_prefix = $1", prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *k)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, expires_at, is_active, last_used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.UserID, k.Name, k.KeyHash, k.KeyPrefix, k.ExpiresAt, k.IsActive, k.LastUsedAt, k.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateAPIKey(ctx context.Context, k *models.APIKey) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET name = $2, is_active = $3, last_used_at = $4, expires_at = $5 WHERE id = $1`,
		k.ID, k.Name, k.IsActive, k.LastUsedAt, k.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "api_key", Key: k.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM api_keys WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "api_key", Key: id}
	}
	return nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
