package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentic-workflow-builder/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the tables used by the store. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS steps (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	step_order INT NOT NULL,
	model TEXT NOT NULL,
	prompt TEXT NOT NULL,
	criteria_type TEXT NOT NULL DEFAULT '',
	criteria_value TEXT NOT NULL DEFAULT '',
	max_retries INT NOT NULL DEFAULT 0,
	context_mode TEXT NOT NULL DEFAULT 'full',
	UNIQUE (workflow_id, step_order)
);
CREATE TABLE IF NOT EXISTS runs (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS run_steps (
	id UUID PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	step_order INT NOT NULL,
	attempt_no INT NOT NULL,
	status TEXT NOT NULL,
	prompt_used TEXT NOT NULL,
	output TEXT,
	criteria_result TEXT,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (run_id, step_order, attempt_no)
);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// CreateWorkflow saves a workflow and its steps.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO workflows (id, name, created_at) VALUES ($1, $2, $3)",
		wf.ID, wf.Name, wf.CreatedAt)
	if err != nil {
		return err
	}
	if err := insertSteps(ctx, tx, wf); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertSteps(ctx context.Context, tx pgx.Tx, wf *models.Workflow) error {
	for i := range wf.Steps {
		st := &wf.Steps[i]
		st.WorkflowID = wf.ID
		_, err := tx.Exec(ctx,
			`INSERT INTO steps (id, workflow_id, step_order, model, prompt, criteria_type, criteria_value, max_retries, context_mode)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			st.ID, st.WorkflowID, st.StepOrder, st.Model, st.Prompt,
			string(st.CriteriaType), st.CriteriaValue, st.MaxRetries, string(st.ContextMode))
		if err != nil {
			return err
		}
	}
	return nil
}

// GetWorkflow retrieves a workflow with its steps in step_order.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.db.QueryRow(ctx,
		"SELECT id, name, created_at FROM workflows WHERE id = $1", id).
		Scan(&wf.ID, &wf.Name, &wf.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, workflow_id, step_order, model, prompt, criteria_type, criteria_value, max_retries, context_mode
		 FROM steps WHERE workflow_id = $1 ORDER BY step_order ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st models.Step
		err := rows.Scan(&st.ID, &st.WorkflowID, &st.StepOrder, &st.Model, &st.Prompt,
			&st.CriteriaType, &st.CriteriaValue, &st.MaxRetries, &st.ContextMode)
		if err != nil {
			return nil, err
		}
		wf.Steps = append(wf.Steps, st)
	}
	return &wf, rows.Err()
}

// ListWorkflows returns lightweight workflow rows, newest first.
func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]models.WorkflowListItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT w.id, w.name, w.created_at, count(s.id)
		 FROM workflows w LEFT JOIN steps s ON s.workflow_id = w.id
		 GROUP BY w.id ORDER BY w.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.WorkflowListItem
	for rows.Next() {
		var item models.WorkflowListItem
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt, &item.StepCount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateWorkflow replaces a workflow's name and entire step list.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "UPDATE workflows SET name = $1 WHERE id = $2", wf.Name, wf.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, "DELETE FROM steps WHERE workflow_id = $1", wf.ID); err != nil {
		return err
	}
	if err := insertSteps(ctx, tx, wf); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteWorkflow removes a workflow and its steps.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO runs (id, workflow_id, status, started_at, ended_at) VALUES ($1, $2, $3, $4, $5)",
		run.ID, run.WorkflowID, string(run.Status), run.StartedAt, run.EndedAt)
	return err
}

// GetRun retrieves a run with its attempts ordered by (step_order, attempt_no).
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := s.db.QueryRow(ctx,
		"SELECT id, workflow_id, status, started_at, ended_at FROM runs WHERE id = $1", id).
		Scan(&run.ID, &run.WorkflowID, &run.Status, &run.StartedAt, &run.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, step_order, attempt_no, status, prompt_used, output, criteria_result, error, created_at
		 FROM run_steps WHERE run_id = $1 ORDER BY step_order ASC, attempt_no ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rs models.RunStep
		err := rows.Scan(&rs.ID, &rs.RunID, &rs.StepOrder, &rs.AttemptNo, &rs.Status,
			&rs.PromptUsed, &rs.Output, &rs.CriteriaResult, &rs.Error, &rs.CreatedAt)
		if err != nil {
			return nil, err
		}
		run.Steps = append(run.Steps, rs)
	}
	return &run, rows.Err()
}

// ListRuns returns runs for a workflow, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, workflowID string) ([]models.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, workflow_id, status, started_at, ended_at
		 FROM runs WHERE workflow_id = $1 ORDER BY started_at DESC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		err := rows.Scan(&run.ID, &run.WorkflowID, &run.Status, &run.StartedAt, &run.EndedAt)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AppendRunStep appends one attempt record to a run's history.
func (s *PostgresStore) AppendRunStep(ctx context.Context, step *models.RunStep) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO run_steps (id, run_id, step_order, attempt_no, status, prompt_used, output, criteria_result, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		step.ID, step.RunID, step.StepOrder, step.AttemptNo, string(step.Status),
		step.PromptUsed, step.Output, step.CriteriaResult, step.Error, step.CreatedAt)
	return err
}

// FinalizeRun sets the run's terminal status and end time.
func (s *PostgresStore) FinalizeRun(ctx context.Context, runID string, status models.RunStatus) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE runs SET status = $1, ended_at = $2 WHERE id = $3 AND status = $4",
		string(status), time.Now().UTC(), runID, string(models.RunStatusRunning))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
