package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"agentic-workflow-builder/backend/internal/config"
	"agentic-workflow-builder/backend/internal/logging"
	"agentic-workflow-builder/backend/internal/repository"
	"agentic-workflow-builder/backend/pkg/models"
)

func main() {
	root := &cobra.Command{
		Use:   "workflowctl",
		Short: "Admin tooling for the agentic workflow builder",
	}
	root.AddCommand(seedCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*repository.PostgresStore, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DBConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return store, pool, nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo code-generation workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.NewLogger()

			store, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			// Skip if a demo workflow already exists
			existing, err := store.ListWorkflows(ctx)
			if err != nil {
				return fmt.Errorf("failed to list existing workflows: %w", err)
			}
			for _, w := range existing {
				if w.Name == demoWorkflowName {
					logger.Info("Skipping existing workflow", "name", w.Name, "id", w.ID)
					return nil
				}
			}

			wf := demoWorkflow()
			if err := store.CreateWorkflow(ctx, wf); err != nil {
				return fmt.Errorf("failed to create workflow: %w", err)
			}
			logger.Info("Seeded workflow", "name", wf.Name, "id", wf.ID)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Print a run's status and attempt history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}
}

const demoWorkflowName = "Demo: add() with tests"

// demoWorkflow is a three step code-generation pipeline: write a
// function, write tests for it, emit a requirements file.
func demoWorkflow() *models.Workflow {
	wf := &models.Workflow{
		ID:   uuid.New().String(),
		Name: demoWorkflowName,
		Steps: []models.Step{
			{
				ID:          uuid.New().String(),
				StepOrder:   1,
				Model:       "kimi-k2p5",
				ContextMode: models.ContextModeCodeOnly,
				MaxRetries:  1,
				Prompt: "Write Python code that defines a function add(a, b) which returns a + b.\n" +
					"Return ONLY a single Python code block. No explanations.",
				CriteriaType:  models.CriteriaRegex,
				CriteriaValue: "```python[\\s\\S]*```",
			},
			{
				ID:          uuid.New().String(),
				StepOrder:   2,
				Model:       "kimi-k2p5",
				ContextMode: models.ContextModeCodeOnly,
				MaxRetries:  3,
				Prompt: "Using the CONTEXT code above, write EXACTLY 3 pytest test cases for add(a, b).\n" +
					"Rules:\n" +
					"1) Return ONLY a single Python code block.\n" +
					"2) Do NOT include explanations, analysis, or any text outside the code block.\n" +
					"3) Assume add() is already available. Do NOT write placeholder imports.\n",
				CriteriaType:  models.CriteriaRegex,
				CriteriaValue: "```python[\\s\\S]*```",
			},
			{
				ID:          uuid.New().String(),
				StepOrder:   3,
				Model:       "kimi-k2-instruct-0905",
				ContextMode: models.ContextModeFull,
				MaxRetries:  2,
				Prompt: "From the CONTEXT above, output requirements.txt lines ONLY.\n" +
					"Rules:\n" +
					"1) Output ONLY package names (one per line).\n" +
					"2) Do NOT use code fences.\n" +
					"3) Do NOT add explanations.\n" +
					"If pytest tests exist, include pytest.\n",
				CriteriaType:  models.CriteriaContains,
				CriteriaValue: "pytest",
			},
		},
	}
	return wf
}
