package services

import (
	"fmt"
	"regexp"
	"strings"

	"agentic-workflow-builder/backend/pkg/models"
)

// StepOutput is one prior PASSED step's output, carried into context
// building in step_order.
type StepOutput struct {
	StepOrder int
	Output    string
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:\\w+)?\\s*(.*?)```")

// BuildContext produces the text injected ahead of the next step's
// prompt from the outputs of all prior passed steps. It is pure and
// deterministic for a given input sequence.
//
// full mode forwards every prior output, labeled by its step order.
// code_only keeps only fenced code from each output; outputs without
// any extractable code contribute nothing.
func BuildContext(priorOutputs []StepOutput, mode models.ContextMode) string {
	var parts []string
	for _, prior := range priorOutputs {
		body := prior.Output
		if mode == models.ContextModeCodeOnly {
			code := extractFirstCodeBlock(prior.Output)
			if code == "" {
				continue
			}
			body = fmt.Sprintf("```\n%s\n```", code)
		}
		parts = append(parts, fmt.Sprintf("### Step %d output\n%s", prior.StepOrder, strings.TrimSpace(body)))
	}
	return strings.Join(parts, "\n\n")
}

// InjectContext forms the fully-built prompt recorded as prompt_used.
func InjectContext(prompt, context string) string {
	if strings.TrimSpace(context) == "" {
		return strings.TrimSpace(prompt)
	}
	return "### CONTEXT (output from previous step)\n" +
		strings.TrimSpace(context) +
		"\n\n### CURRENT TASK\n" +
		strings.TrimSpace(prompt)
}

var fenceLangRe = regexp.MustCompile(`^\w+\s*\n`)

// extractFirstCodeBlock returns the content of the first fenced code
// block, tolerating an unclosed trailing fence. Empty string means no
// code was found.
func extractFirstCodeBlock(text string) string {
	if text == "" {
		return ""
	}
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unclosed fence fallback
	if start := strings.Index(text, "```"); start != -1 {
		after := text[start+3:]
		after = fenceLangRe.ReplaceAllString(after, "")
		return strings.TrimSpace(after)
	}
	return ""
}
