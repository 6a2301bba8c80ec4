package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"agentic-workflow-builder/backend/internal/repository"
	"agentic-workflow-builder/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Repo          repository.Repository
	Runs          RunController
	AllowedModels map[string]bool
}

// RunController triggers and cancels background workflow execution.
type RunController interface {
	StartRun(ctx context.Context, workflowID string) (string, error)
	CancelRun(runID string)
}

// NewServer creates a new Server.
func NewServer(repo repository.Repository, runs RunController, allowedModels map[string]bool) *Server {
	return &Server{Repo: repo, Runs: runs, AllowedModels: allowedModels}
}

// RegisterHandlers mounts all API routes on the group.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)

	g.POST("/workflows/:id/runs", s.StartRun)
	g.GET("/workflows/:id/runs", s.ListWorkflowRuns)
	g.GET("/runs/:id", s.GetRun)
	g.DELETE("/runs/:id", s.CancelRun)
}

// CreateWorkflow creates a workflow with its steps
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var workflow models.Workflow
	if err := c.Bind(&workflow); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := workflow.Validate(s.AllowedModels); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	workflow.ID = uuid.New().String()
	for i := range workflow.Steps {
		workflow.Steps[i].ID = uuid.New().String()
	}

	if err := s.Repo.CreateWorkflow(ctx, &workflow); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save workflow: "+err.Error())
	}
	return c.JSON(http.StatusCreated, workflow)
}

// ListWorkflows returns a list of all workflows
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	workflows, err := s.Repo.ListWorkflows(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns one workflow with its steps
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	workflow, err := s.Repo.GetWorkflow(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, workflow)
}

// UpdateWorkflow replaces a workflow's name and step list
// (PUT /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var workflow models.Workflow
	if err := c.Bind(&workflow); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	workflow.ID = c.Param("id")
	if err := workflow.Validate(s.AllowedModels); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for i := range workflow.Steps {
		if workflow.Steps[i].ID == "" {
			workflow.Steps[i].ID = uuid.New().String()
		}
	}

	err := s.Repo.UpdateWorkflow(ctx, &workflow)
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update workflow: "+err.Error())
	}
	return c.JSON(http.StatusOK, workflow)
}

// DeleteWorkflow removes a workflow
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	err := s.Repo.DeleteWorkflow(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Workflow not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
