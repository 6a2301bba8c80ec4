package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-workflow-builder/backend/internal/logging"
	"agentic-workflow-builder/backend/internal/repository"
	"agentic-workflow-builder/backend/internal/services"
	"agentic-workflow-builder/backend/pkg/models"
)

// staticModel answers every invocation with the same text.
type staticModel struct {
	text string
}

func (m *staticModel) Invoke(context.Context, string, string) (string, error) {
	return m.text, nil
}

func newTestAPI(t *testing.T, modelText string) (*echo.Echo, repository.Repository, *services.RunService) {
	t.Helper()
	repo := repository.NewMemoryStore()
	runs := services.NewRunService(repo, &staticModel{text: modelText}, logging.NewLogger(), 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runs.Shutdown(ctx)
	})

	e := echo.New()
	server := NewServer(repo, runs, map[string]bool{"test-model": true})
	RegisterHandlers(e.Group("/api/v1"), server)
	return e, repo, runs
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const validWorkflowJSON = `{
	"name": "demo",
	"steps": [
		{"step_order": 1, "model": "test-model", "prompt": "say ok",
		 "criteria_type": "contains", "criteria_value": "OK",
		 "max_retries": 1, "context_mode": "full"}
	]
}`

func TestCreateAndGetWorkflow(t *testing.T) {
	e, _, _ := newTestAPI(t, "OK")

	rec := doJSON(e, http.MethodPost, "/api/v1/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	require.Len(t, created.Steps, 1)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []models.WorkflowListItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].StepCount)
}

func TestCreateWorkflowValidation(t *testing.T) {
	e, _, _ := newTestAPI(t, "OK")

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"steps": []}`},
		{"duplicate step order", `{"name": "x", "steps": [
			{"step_order": 1, "model": "test-model", "prompt": "a", "criteria_type": "json_valid"},
			{"step_order": 1, "model": "test-model", "prompt": "b", "criteria_type": "json_valid"}]}`},
		{"unknown model", `{"name": "x", "steps": [
			{"step_order": 1, "model": "nope", "prompt": "a", "criteria_type": "json_valid"}]}`},
		{"contains without value", `{"name": "x", "steps": [
			{"step_order": 1, "model": "test-model", "prompt": "a", "criteria_type": "contains"}]}`},
		{"bad regex", `{"name": "x", "steps": [
			{"step_order": 1, "model": "test-model", "prompt": "a", "criteria_type": "regex", "criteria_value": "([bad"}]}`},
		{"negative retries", `{"name": "x", "steps": [
			{"step_order": 1, "model": "test-model", "prompt": "a", "criteria_type": "json_valid", "max_retries": -1}]}`},
		{"unknown criteria type", `{"name": "x", "steps": [
			{"step_order": 1, "model": "test-model", "prompt": "a", "criteria_type": "llm_judge"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/api/v1/workflows", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUpdateAndDeleteWorkflow(t *testing.T) {
	e, _, _ := newTestAPI(t, "OK")

	rec := doJSON(e, http.MethodPost, "/api/v1/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(e, http.MethodPut, "/api/v1/workflows/"+created.ID, `{"name": "renamed", "steps": []}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "renamed", got.Name)
	assert.Empty(t, got.Steps)

	rec = doJSON(e, http.MethodDelete, "/api/v1/workflows/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(e, http.MethodPut, "/api/v1/workflows/"+created.ID, `{"name": "x", "steps": []}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRunAndPoll(t *testing.T) {
	e, _, _ := newTestAPI(t, "this is OK")

	rec := doJSON(e, http.MethodPost, "/api/v1/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(e, http.MethodPost, "/api/v1/workflows/"+created.ID+"/runs", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp RunCreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	// poll until the background run finishes
	var run models.Run
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(e, http.MethodGet, "/api/v1/runs/"+resp.RunID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		if run.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, models.RunStatusSucceeded, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, models.RunStepStatusPassed, run.Steps[0].Status)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+created.ID+"/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
}

func TestCancelRun(t *testing.T) {
	e, _, _ := newTestAPI(t, "this is OK")

	rec := doJSON(e, http.MethodPost, "/api/v1/workflows", validWorkflowJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(e, http.MethodPost, "/api/v1/workflows/"+created.ID+"/runs", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp RunCreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// cancelling is accepted whether the run is still in flight or
	// already terminal
	rec = doJSON(e, http.MethodDelete, "/api/v1/runs/"+resp.RunID, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRunUnknownWorkflow(t *testing.T) {
	e, _, _ := newTestAPI(t, "OK")

	rec := doJSON(e, http.MethodPost, "/api/v1/workflows/does-not-exist/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunUnknown(t *testing.T) {
	e, _, _ := newTestAPI(t, "OK")

	rec := doJSON(e, http.MethodGet, "/api/v1/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
