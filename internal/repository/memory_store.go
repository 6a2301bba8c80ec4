package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentic-workflow-builder/backend/pkg/models"
)

// MemoryStore is a simple in-memory Repository for local development
// and tests. Reads return copies so callers never observe a record
// mutating underneath them.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	runs      map[string]*models.Run
	runSteps  map[string][]models.RunStep
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: map[string]*models.Workflow{},
		runs:      map[string]*models.Run{},
		runSteps:  map[string][]models.RunStep{},
	}
}

// CreateWorkflow saves a workflow and its steps.
func (s *MemoryStore) CreateWorkflow(_ context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

// GetWorkflow retrieves a workflow with its steps in step_order.
func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneWorkflow(wf)
	out.SortSteps()
	return out, nil
}

// ListWorkflows returns lightweight workflow rows, newest first.
func (s *MemoryStore) ListWorkflows(_ context.Context) ([]models.WorkflowListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.WorkflowListItem, 0, len(s.workflows))
	for _, wf := range s.workflows {
		items = append(items, models.WorkflowListItem{
			ID:        wf.ID,
			Name:      wf.Name,
			StepCount: len(wf.Steps),
			CreatedAt: wf.CreatedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// UpdateWorkflow replaces a workflow's name and entire step list.
func (s *MemoryStore) UpdateWorkflow(_ context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workflows[wf.ID]
	if !ok {
		return ErrNotFound
	}
	updated := cloneWorkflow(wf)
	updated.CreatedAt = existing.CreatedAt
	s.workflows[wf.ID] = updated
	return nil
}

// DeleteWorkflow removes a workflow.
func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// CreateRun inserts a new run row. The referenced workflow must exist,
// matching the foreign key the Postgres store enforces.
func (s *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[run.WorkflowID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a run with its attempts ordered by (step_order, attempt_no).
func (s *MemoryStore) GetRun(_ context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRun(run)
	steps := make([]models.RunStep, len(s.runSteps[id]))
	copy(steps, s.runSteps[id])
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].StepOrder != steps[j].StepOrder {
			return steps[i].StepOrder < steps[j].StepOrder
		}
		return steps[i].AttemptNo < steps[j].AttemptNo
	})
	out.Steps = steps
	return out, nil
}

// ListRuns returns runs for a workflow, newest first.
func (s *MemoryStore) ListRuns(_ context.Context, workflowID string) ([]models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []models.Run
	for _, run := range s.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, *cloneRun(run))
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// AppendRunStep appends one attempt record to a run's history.
func (s *MemoryStore) AppendRunStep(_ context.Context, step *models.RunStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[step.RunID]; !ok {
		return ErrNotFound
	}
	s.runSteps[step.RunID] = append(s.runSteps[step.RunID], *step)
	return nil
}

// FinalizeRun sets the run's terminal status and end time.
func (s *MemoryStore) FinalizeRun(_ context.Context, runID string, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.Status != models.RunStatusRunning {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = status
	run.EndedAt = &now
	return nil
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	out := *wf
	out.Steps = make([]models.Step, len(wf.Steps))
	copy(out.Steps, wf.Steps)
	return &out
}

func cloneRun(run *models.Run) *models.Run {
	out := *run
	out.Steps = nil
	if run.EndedAt != nil {
		ended := *run.EndedAt
		out.EndedAt = &ended
	}
	return &out
}
