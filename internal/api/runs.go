package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"agentic-workflow-builder/backend/internal/repository"
)

// RunCreateResponse is returned by the run trigger endpoint.
type RunCreateResponse struct {
	RunID string `json:"run_id"`
}

// StartRun triggers background execution of a workflow and returns the
// run ID immediately; the UI polls GET /runs/:id for progress
// (POST /api/v1/workflows/:id/runs)
func (s *Server) StartRun(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := s.Runs.StartRun(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start run: "+err.Error())
	}
	return c.JSON(http.StatusCreated, RunCreateResponse{RunID: runID})
}

// GetRun returns a run with its ordered attempt history. Safe to poll
// while the run is RUNNING: readers always see a strict prefix of the
// final history
// (GET /api/v1/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := s.Repo.GetRun(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

// CancelRun requests cancellation of a running run. The engine stops
// between attempts; cancelling an already terminal run is a no-op
// (DELETE /api/v1/runs/:id)
func (s *Server) CancelRun(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := s.Repo.GetRun(ctx, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.Runs.CancelRun(c.Param("id"))
	return c.NoContent(http.StatusAccepted)
}

// ListWorkflowRuns returns a workflow's runs, newest first
// (GET /api/v1/workflows/:id/runs)
func (s *Server) ListWorkflowRuns(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := s.Repo.GetWorkflow(ctx, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	runs, err := s.Repo.ListRuns(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}
