package models

import "time"

// RunStatus is the lifecycle state of a run. A run is RUNNING until the
// orchestrator finalizes it; terminal states never transition again.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// RunStepStatus is the outcome of one recorded attempt.
type RunStepStatus string

const (
	RunStepStatusRunning RunStepStatus = "RUNNING"
	RunStepStatusPassed  RunStepStatus = "PASSED"
	RunStepStatusFailed  RunStepStatus = "FAILED"
	RunStepStatusError   RunStepStatus = "ERROR"
)

// Run is one execution instance of a workflow snapshot.
type Run struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
	Steps      []RunStep  `json:"steps,omitempty"`
}

// RunStep records a single attempt of a single step within a run.
// Records are append-only: an attempt is written once, with its
// terminal status, and never edited afterwards.
type RunStep struct {
	ID             string        `json:"id"`
	RunID          string        `json:"run_id"`
	StepOrder      int           `json:"step_order"`
	AttemptNo      int           `json:"attempt_no"`
	Status         RunStepStatus `json:"status"`
	PromptUsed     string        `json:"prompt_used"`
	Output         *string       `json:"output"`
	CriteriaResult *string       `json:"criteria_result"`
	Error          *string       `json:"error"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Terminal reports whether the run has left the RUNNING state.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}
