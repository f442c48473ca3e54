package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sicko7947/smartflow"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresMigration = `
CREATE TABLE IF NOT EXISTS smartflow_executions (
    id               TEXT        PRIMARY KEY,
    workflow_id      TEXT        NOT NULL,
    workflow_version INTEGER     NOT NULL DEFAULT 0,
    user_id          TEXT        NOT NULL DEFAULT '',
    status           TEXT        NOT NULL,
    start_time       TIMESTAMPTZ NOT NULL,
    end_time         TIMESTAMPTZ,
    metrics          JSONB       NOT NULL DEFAULT '{}',
    results          JSONB,
    step_results     JSONB       NOT NULL DEFAULT '[]',
    optimizations    JSONB       NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS smartflow_workflows (
    id          TEXT        PRIMARY KEY,
    user_id     TEXT        NOT NULL DEFAULT '',
    version     INTEGER     NOT NULL DEFAULT 0,
    definition  JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_smartflow_executions_start ON smartflow_executions (start_time DESC);
CREATE INDEX IF NOT EXISTS idx_smartflow_executions_workflow ON smartflow_executions (workflow_id, start_time DESC);
`

const (
	insertExecutionSQL = `INSERT INTO smartflow_executions
    (id, workflow_id, workflow_version, user_id, status, start_time, end_time, metrics, results, step_results, optimizations)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	listRecentExecutionsSQL = `SELECT id, workflow_id, workflow_version, user_id, status, start_time, end_time, metrics, results, step_results, optimizations
FROM smartflow_executions
ORDER BY start_time DESC
LIMIT $1`

	upsertWorkflowSQL = `INSERT INTO smartflow_workflows (id, user_id, version, definition, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    version = EXCLUDED.version,
    definition = EXCLUDED.definition,
    updated_at = EXCLUDED.updated_at`

	getWorkflowSQL = `SELECT definition FROM smartflow_workflows WHERE id = $1`
)

// PostgresStore implements smartflow.ExecutionStore using PostgreSQL.
// Payloads are stored as JSONB columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore connects with the pgx driver, verifies the connection
// and creates the schema when missing
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// Migrate creates the tables and indexes used by the store
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresMigration)
	return err
}

// Close closes the underlying database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertExecution(ctx context.Context, exec *smartflow.WorkflowExecution) error {
	metrics, err := json.Marshal(exec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	var results []byte
	if exec.Results != nil {
		if results, err = json.Marshal(exec.Results); err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}
	stepResults, err := json.Marshal(nonNil(exec.StepResults))
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}
	optimizations, err := json.Marshal(nonNil(exec.Optimizations))
	if err != nil {
		return fmt.Errorf("marshal optimizations: %w", err)
	}

	var endTime sql.NullTime
	if exec.EndTime != nil {
		endTime = sql.NullTime{Time: *exec.EndTime, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, insertExecutionSQL,
		exec.ID,
		exec.WorkflowID,
		exec.WorkflowVersion,
		exec.UserID,
		string(exec.Status),
		exec.StartTime,
		endTime,
		metrics,
		results,
		stepResults,
		optimizations,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow execution: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentExecutions(ctx context.Context, limit int) ([]*smartflow.WorkflowExecution, error) {
	rows, err := s.db.QueryContext(ctx, listRecentExecutionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*smartflow.WorkflowExecution, 0, limit)
	for rows.Next() {
		var (
			exec                                         smartflow.WorkflowExecution
			status                                       string
			endTime                                      sql.NullTime
			metrics, results, stepResults, optimizations []byte
		)
		if err := rows.Scan(
			&exec.ID,
			&exec.WorkflowID,
			&exec.WorkflowVersion,
			&exec.UserID,
			&status,
			&exec.StartTime,
			&endTime,
			&metrics,
			&results,
			&stepResults,
			&optimizations,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow execution: %w", err)
		}

		exec.Status = smartflow.ExecutionStatus(status)
		if endTime.Valid {
			t := endTime.Time
			exec.EndTime = &t
		}
		if err := unmarshalColumns(map[string]columnTarget{
			"metrics":       {metrics, &exec.Metrics},
			"results":       {results, &exec.Results},
			"step_results":  {stepResults, &exec.StepResults},
			"optimizations": {optimizations, &exec.Optimizations},
		}); err != nil {
			return nil, fmt.Errorf("execution %s: %w", exec.ID, err)
		}

		executions = append(executions, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recent executions: %w", err)
	}

	return executions, nil
}

func (s *PostgresStore) UpsertWorkflow(ctx context.Context, wf *smartflow.Workflow) error {
	definition, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertWorkflowSQL, wf.ID, wf.UserID, wf.Version, definition, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, workflowID string) (*smartflow.Workflow, error) {
	var definition []byte
	err := s.db.QueryRowContext(ctx, getWorkflowSQL, workflowID).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", smartflow.ErrWorkflowNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var wf smartflow.Workflow
	if err := json.Unmarshal(definition, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	return &wf, nil
}

type columnTarget struct {
	data []byte
	dest any
}

func unmarshalColumns(columns map[string]columnTarget) error {
	for name, col := range columns {
		if len(col.data) == 0 {
			continue
		}
		if err := json.Unmarshal(col.data, col.dest); err != nil {
			return fmt.Errorf("unmarshal %s: %w", name, err)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
