package models

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// CriteriaType selects the rule used to judge a model response.
type CriteriaType string

const (
	CriteriaContains  CriteriaType = "contains"
	CriteriaRegex     CriteriaType = "regex"
	CriteriaJSONValid CriteriaType = "json_valid"
)

// ContextMode controls how much of prior step outputs is injected into
// the next step's prompt.
type ContextMode string

const (
	ContextModeFull     ContextMode = "full"
	ContextModeCodeOnly ContextMode = "code_only"
)

// Workflow is a named, ordered sequence of steps.
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Step is one prompt/check unit within a workflow.
type Step struct {
	ID            string       `json:"id"`
	WorkflowID    string       `json:"workflow_id"`
	StepOrder     int          `json:"step_order"`
	Model         string       `json:"model"`
	Prompt        string       `json:"prompt"`
	CriteriaType  CriteriaType `json:"criteria_type"`
	CriteriaValue string       `json:"criteria_value"`
	MaxRetries    int          `json:"max_retries"`
	ContextMode   ContextMode  `json:"context_mode"`
}

// WorkflowListItem is the lightweight row returned by workflow listings.
type WorkflowListItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StepCount int       `json:"step_count"`
	CreatedAt time.Time `json:"created_at"`
}

// SortSteps orders the workflow's steps by step_order ascending. The
// engine relies on this ordering; gaps in step_order are allowed.
func (w *Workflow) SortSteps() {
	sort.Slice(w.Steps, func(i, j int) bool {
		return w.Steps[i].StepOrder < w.Steps[j].StepOrder
	})
}

// Validate checks a workflow definition at save time. allowedModels is
// the configured model catalog; an empty map skips the model check.
func (w *Workflow) Validate(allowedModels map[string]bool) error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	seen := make(map[int]bool, len(w.Steps))
	for i := range w.Steps {
		s := &w.Steps[i]
		if s.StepOrder < 1 {
			return fmt.Errorf("step %d: step_order must be >= 1", i+1)
		}
		if seen[s.StepOrder] {
			return fmt.Errorf("duplicate step_order %d: each step must have a unique step_order", s.StepOrder)
		}
		seen[s.StepOrder] = true
		if err := s.validate(allowedModels); err != nil {
			return fmt.Errorf("step %d: %w", s.StepOrder, err)
		}
	}
	return nil
}

func (s *Step) validate(allowedModels map[string]bool) error {
	if s.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(allowedModels) > 0 && !allowedModels[s.Model] {
		return fmt.Errorf("unsupported model %q", s.Model)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	switch s.ContextMode {
	case ContextModeFull, ContextModeCodeOnly:
	case "":
		s.ContextMode = ContextModeFull
	default:
		return fmt.Errorf("unknown context_mode %q", s.ContextMode)
	}
	switch s.CriteriaType {
	case "":
		// no criterion: every response passes
	case CriteriaContains:
		if s.CriteriaValue == "" {
			return fmt.Errorf("criteria_value is required for contains")
		}
	case CriteriaRegex:
		if s.CriteriaValue == "" {
			return fmt.Errorf("criteria_value is required for regex")
		}
		if _, err := regexp.Compile(s.CriteriaValue); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	case CriteriaJSONValid:
		// criteria_value ignored
	default:
		return fmt.Errorf("unknown criteria_type %q", s.CriteriaType)
	}
	return nil
}
