package services

import (
	"context"
	"fmt"
	"sync"
)

// scriptedResponse configures one model turn in a scripted sequence.
type scriptedResponse struct {
	Text string
	Err  error
}

// scriptedModel is a deterministic ModelClient for engine tests.
type scriptedModel struct {
	mu        sync.Mutex
	index     int
	calls     []string
	responses []scriptedResponse
}

func newScriptedModel(responses ...scriptedResponse) *scriptedModel {
	cloned := make([]scriptedResponse, len(responses))
	copy(cloned, responses)
	return &scriptedModel{responses: cloned}
}

var _ ModelClient = (*scriptedModel)(nil)

func (m *scriptedModel) Invoke(_ context.Context, _ string, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, prompt)
	if m.index >= len(m.responses) {
		return "", fmt.Errorf("script exhausted at call %d", m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	if current.Err != nil {
		return "", current.Err
	}
	return current.Text, nil
}

// Prompts returns a copy of the prompts received so far.
func (m *scriptedModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
