package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agentic-workflow-builder/backend/pkg/models"
)

func TestBuildContextFull(t *testing.T) {
	prior := []StepOutput{
		{StepOrder: 1, Output: "first output"},
		{StepOrder: 3, Output: "third output"},
	}

	got := BuildContext(prior, models.ContextModeFull)
	assert.Equal(t, "### Step 1 output\nfirst output\n\n### Step 3 output\nthird output", got)
}

func TestBuildContextFullIsDeterministic(t *testing.T) {
	prior := []StepOutput{
		{StepOrder: 1, Output: "a"},
		{StepOrder: 2, Output: "b"},
	}
	first := BuildContext(prior, models.ContextModeFull)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildContext(prior, models.ContextModeFull))
	}
}

func TestBuildContextCodeOnly(t *testing.T) {
	prior := []StepOutput{
		{StepOrder: 1, Output: "Here is the code:\n```python\nprint(1)\n```\nenjoy"},
		{StepOrder: 2, Output: "no code at all"},
	}

	got := BuildContext(prior, models.ContextModeCodeOnly)
	// step 2 has no fenced content and contributes nothing
	assert.Equal(t, "### Step 1 output\n```\nprint(1)\n```", got)
}

func TestBuildContextCodeOnlyUnclosedFence(t *testing.T) {
	prior := []StepOutput{
		{StepOrder: 1, Output: "```python\nx = 1"},
	}

	got := BuildContext(prior, models.ContextModeCodeOnly)
	assert.Contains(t, got, "x = 1")
	assert.NotContains(t, got, "python")
}

func TestBuildContextEmpty(t *testing.T) {
	assert.Equal(t, "", BuildContext(nil, models.ContextModeFull))
	assert.Equal(t, "", BuildContext(nil, models.ContextModeCodeOnly))
}

func TestInjectContext(t *testing.T) {
	got := InjectContext("do the task", "prior stuff")
	assert.Equal(t,
		"### CONTEXT (output from previous step)\nprior stuff\n\n### CURRENT TASK\ndo the task",
		got)
}

func TestInjectContextNoContext(t *testing.T) {
	assert.Equal(t, "do the task", InjectContext("  do the task \n", ""))
	assert.Equal(t, "do the task", InjectContext("do the task", "   \n  "))
}

func TestExtractFirstCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced with language", "```python\nprint(1)\n```", "print(1)"},
		{"fenced bare", "```\nx\n```", "x"},
		{"first of several", "```\none\n```\n```\ntwo\n```", "one"},
		{"unclosed fence", "```go\nfunc main() {}", "func main() {}"},
		{"no code", "plain prose", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFirstCodeBlock(tt.in))
		})
	}
}
