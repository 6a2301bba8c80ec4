package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"agentic-workflow-builder/backend/internal/logging"
	"agentic-workflow-builder/backend/internal/repository"
	"agentic-workflow-builder/backend/pkg/models"
)

// systemStepOrder marks attempt records written by the engine itself
// (store failures, cancellation) rather than by a workflow step. It
// sorts after any real step.
const systemStepOrder = 999999

// RunService owns run lifecycles: it snapshots the workflow once,
// executes its steps sequentially in a background goroutine, persists
// every attempt through the repository, and finalizes the run status.
// Each run gets its own cancel context addressed by run ID; there is no
// process-wide current run.
type RunService struct {
	repo   repository.Repository
	model  ModelClient
	logger *logging.Logger

	// base sleep before retrying an invocation error; criteria
	// failures retry immediately
	retryBackoff time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	runsStarted  metric.Int64Counter
	runsFinished metric.Int64Counter
	stepAttempts metric.Int64Counter
}

// NewRunService creates a new RunService.
func NewRunService(repo repository.Repository, model ModelClient, logger *logging.Logger, retryBackoff time.Duration) *RunService {
	meter := otel.Meter("agentic-workflow-builder/backend/engine")
	runsStarted, _ := meter.Int64Counter("runs.started")
	runsFinished, _ := meter.Int64Counter("runs.finished")
	stepAttempts, _ := meter.Int64Counter("step.attempts")

	return &RunService{
		repo:         repo,
		model:        model,
		logger:       logger,
		retryBackoff: retryBackoff,
		cancels:      map[string]context.CancelFunc{},
		runsStarted:  runsStarted,
		runsFinished: runsFinished,
		stepAttempts: stepAttempts,
	}
}

// StartRun snapshots the workflow, creates a RUNNING run row, and
// launches background execution. It returns the run ID immediately.
func (s *RunService) StartRun(ctx context.Context, workflowID string) (string, error) {
	wf, err := s.repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	wf.SortSteps()

	run := &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.runsStarted.Add(ctx, 1)
	go s.execute(runCtx, run.ID, wf)

	return run.ID, nil
}

// GetRun returns a run with its ordered attempt history.
func (s *RunService) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	return s.repo.GetRun(ctx, runID)
}

// CancelRun signals a running run to stop between attempts. An
// in-flight model call completes or times out on its own.
func (s *RunService) CancelRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
	}
}

// Shutdown cancels all outstanding runs and waits for their goroutines
// to drain, or until ctx expires.
func (s *RunService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute drives one run to a terminal state. Steps run strictly
// sequentially; context for step i is built once from all prior PASSED
// outputs, not rebuilt per attempt.
func (s *RunService) execute(ctx context.Context, runID string, wf *models.Workflow) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, runID)
		s.mu.Unlock()
	}()

	var priorOutputs []StepOutput

	for i := range wf.Steps {
		step := &wf.Steps[i]

		if err := ctx.Err(); err != nil {
			s.abortRun(runID, "run cancelled before step completion")
			return
		}

		contextText := BuildContext(priorOutputs, step.ContextMode)
		promptUsed := InjectContext(step.Prompt, contextText)

		outcome, err := s.runStep(ctx, runID, step, promptUsed)
		if errors.Is(err, context.Canceled) {
			s.abortRun(runID, "run cancelled before step completion")
			return
		}
		if err != nil {
			// run store unavailable or similar defect, not a
			// workflow-level failure
			s.logger.Error("run aborted by engine failure", "run_id", runID, "step_order", step.StepOrder, "error", err)
			s.abortRun(runID, fmt.Sprintf("engine failure at step %d: %v", step.StepOrder, err))
			return
		}

		if outcome.Status != models.RunStepStatusPassed {
			s.finalize(runID, models.RunStatusFailed)
			return
		}
		priorOutputs = append(priorOutputs, StepOutput{StepOrder: step.StepOrder, Output: outcome.Output})
	}

	// every step passed; a workflow with zero steps lands here
	// immediately with an empty history
	s.finalize(runID, models.RunStatusSucceeded)
}

// stepOutcome is the terminal result of one step after retries.
type stepOutcome struct {
	Status models.RunStepStatus
	Output string
}

// runStep drives attempts of a single step until it passes or the
// retry budget (max_retries additional attempts after the first) is
// exhausted. Every attempt is persisted before the next one starts.
func (s *RunService) runStep(ctx context.Context, runID string, step *models.Step, promptUsed string) (stepOutcome, error) {
	totalAttempts := step.MaxRetries + 1
	last := stepOutcome{Status: models.RunStepStatusError}

	for attemptNo := 1; attemptNo <= totalAttempts; attemptNo++ {
		if err := ctx.Err(); err != nil {
			return last, fmt.Errorf("run cancelled: %w", err)
		}

		record := &models.RunStep{
			ID:         uuid.New().String(),
			RunID:      runID,
			StepOrder:  step.StepOrder,
			AttemptNo:  attemptNo,
			PromptUsed: promptUsed,
			CreatedAt:  time.Now().UTC(),
		}

		output, err := s.model.Invoke(ctx, step.Model, promptUsed)
		if err != nil {
			msg := err.Error()
			record.Status = models.RunStepStatusError
			record.Error = &msg
			last = stepOutcome{Status: models.RunStepStatusError}
			s.logger.Warn("model invocation failed", "run_id", runID, "step_order", step.StepOrder, "attempt", attemptNo, "error", err)
		} else {
			crit := EvaluateCriteria(step.CriteriaType, step.CriteriaValue, output)
			record.Output = &output
			record.CriteriaResult = &crit.Reason
			if crit.Passed {
				record.Status = models.RunStepStatusPassed
				last = stepOutcome{Status: models.RunStepStatusPassed, Output: output}
			} else {
				record.Status = models.RunStepStatusFailed
				last = stepOutcome{Status: models.RunStepStatusFailed, Output: output}
			}
		}

		s.stepAttempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(record.Status)),
		))

		if err := s.repo.AppendRunStep(context.WithoutCancel(ctx), record); err != nil {
			return last, fmt.Errorf("failed to persist attempt: %w", err)
		}

		if record.Status == models.RunStepStatusPassed {
			return last, nil
		}

		// invocation errors back off before the next try; criteria
		// failures retry immediately
		if record.Status == models.RunStepStatusError && attemptNo < totalAttempts {
			if err := sleepCtx(ctx, s.retryBackoff*time.Duration(attemptNo)); err != nil {
				return last, fmt.Errorf("run cancelled: %w", err)
			}
		}
	}

	return last, nil
}

// abortRun records an engine-level failure as a system attempt row and
// finalizes the run FAILED. Best effort: the store may be the thing
// that is down.
func (s *RunService) abortRun(runID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := reason
	prompt := "(system)"
	record := &models.RunStep{
		ID:         uuid.New().String(),
		RunID:      runID,
		StepOrder:  systemStepOrder,
		AttemptNo:  1,
		Status:     models.RunStepStatusError,
		PromptUsed: prompt,
		Error:      &msg,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.AppendRunStep(ctx, record); err != nil {
		s.logger.Error("failed to record engine failure", "run_id", runID, "error", err)
	}
	s.finalize(runID, models.RunStatusFailed)
}

func (s *RunService) finalize(runID string, status models.RunStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.FinalizeRun(ctx, runID, status); err != nil {
		s.logger.Error("failed to finalize run", "run_id", runID, "status", status, "error", err)
		return
	}
	s.runsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
	s.logger.Info("run finished", "run_id", runID, "status", status)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
