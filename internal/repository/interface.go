package repository

import (
	"context"
	"errors"

	"agentic-workflow-builder/backend/pkg/models"
)

// ErrNotFound is returned when a workflow or run does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists workflow definitions and run history. Runs and
// their attempt records are append-only: attempts are written once with
// a terminal status and only ever superseded by later attempts.
type Repository interface {
	// CreateWorkflow saves a workflow and its steps.
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	// GetWorkflow retrieves a workflow with its steps in step_order.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// ListWorkflows returns lightweight workflow rows, newest first.
	ListWorkflows(ctx context.Context) ([]models.WorkflowListItem, error)
	// UpdateWorkflow replaces a workflow's name and entire step list.
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error
	// DeleteWorkflow removes a workflow and its steps.
	DeleteWorkflow(ctx context.Context, id string) error

	// CreateRun inserts a new run row.
	CreateRun(ctx context.Context, run *models.Run) error
	// GetRun retrieves a run with its attempts ordered by
	// (step_order, attempt_no).
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns runs for a workflow, newest first, without
	// their attempt records.
	ListRuns(ctx context.Context, workflowID string) ([]models.Run, error)
	// AppendRunStep appends one attempt record to a run's history.
	AppendRunStep(ctx context.Context, step *models.RunStep) error
	// FinalizeRun sets the run's terminal status and end time.
	FinalizeRun(ctx context.Context, runID string, status models.RunStatus) error
}
