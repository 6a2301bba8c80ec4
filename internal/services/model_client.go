package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agentic-workflow-builder/backend/internal/config"
)

// HTTPModelClient is an HTTP implementation of the ModelClient
// interface against an OpenAI-compatible chat completions endpoint.
type HTTPModelClient struct {
	cfg    *config.Config
	client *http.Client
}

// NewHTTPModelClient creates a new HTTPModelClient.
func NewHTTPModelClient(cfg *config.Config) *HTTPModelClient {
	return &HTTPModelClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	// fallback fields some gateways use instead of choices
	Output   string `json:"output"`
	Text     string `json:"text"`
	Response string `json:"response"`
}

// Invoke sends prompt to model and returns the text response. The call
// is bounded by the model's configured timeout; the deadline is never
// shortened once the request is in flight.
func (c *HTTPModelClient) Invoke(ctx context.Context, model, prompt string) (string, error) {
	if c.cfg.LLM.URL == "" {
		return "", fmt.Errorf("llm.url is not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   c.cfg.ModelMaxTokens(model),
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ModelTimeout(model))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLM.URL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.LLM.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.LLM.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	text := ""
	if len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Message.Content
	}
	if text == "" {
		text = firstNonEmpty(parsed.Output, parsed.Text, parsed.Response)
	}
	if text == "" {
		return "", fmt.Errorf("could not parse model response text")
	}
	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Timeout reports the invocation timeout the client will apply for a
// model, mostly useful for logging.
func (c *HTTPModelClient) Timeout(model string) time.Duration {
	return c.cfg.ModelTimeout(model)
}
