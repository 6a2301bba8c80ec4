package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"agentic-workflow-builder/backend/pkg/models"
)

// CriteriaResult is the verdict of evaluating a model response against
// a step's completion criterion.
type CriteriaResult struct {
	Passed bool
	Reason string
}

// EvaluateCriteria judges output against a criterion. It is pure and
// deterministic, and never returns an error: misconfiguration (missing
// value, bad pattern, unknown type) fails closed with an explanatory
// reason instead of raising into the orchestrator.
func EvaluateCriteria(criteriaType models.CriteriaType, criteriaValue, output string) CriteriaResult {
	switch criteriaType {
	case "":
		return CriteriaResult{Passed: true, Reason: "no_criteria"}

	case models.CriteriaContains:
		if criteriaValue == "" {
			return CriteriaResult{Passed: false, Reason: "contains: missing keyword"}
		}
		if strings.Contains(output, criteriaValue) {
			return CriteriaResult{Passed: true, Reason: fmt.Sprintf("contains: found %q", criteriaValue)}
		}
		return CriteriaResult{Passed: false, Reason: fmt.Sprintf("contains: missing %q", criteriaValue)}

	case models.CriteriaRegex:
		if criteriaValue == "" {
			return CriteriaResult{Passed: false, Reason: "regex: missing pattern"}
		}
		// (?s) so . spans newlines, matching multi-line code blocks
		re, err := regexp.Compile("(?s)" + criteriaValue)
		if err != nil {
			return CriteriaResult{Passed: false, Reason: fmt.Sprintf("regex: invalid pattern: %v", err)}
		}
		if re.MatchString(output) {
			return CriteriaResult{Passed: true, Reason: "regex: matched"}
		}
		return CriteriaResult{Passed: false, Reason: "regex: no match"}

	case models.CriteriaJSONValid:
		trimmed := strings.TrimSpace(output)
		if trimmed == "" {
			return CriteriaResult{Passed: false, Reason: "json_valid: parse failed (empty output)"}
		}
		var v interface{}
		if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
			return CriteriaResult{Passed: false, Reason: fmt.Sprintf("json_valid: parse failed (%v)", err)}
		}
		return CriteriaResult{Passed: true, Reason: "json_valid: parsed"}

	default:
		return CriteriaResult{Passed: false, Reason: fmt.Sprintf("unknown criteria type: %s", criteriaType)}
	}
}
