package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"taskforge/internal/orchestrator"

	"github.com/spf13/cobra"
)

// runCmd executes a single agent cycle.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one agent cycle",
	Long: `Select the next ready task, run the planning pipeline, apply the
resulting patches, and open a pull request. Exits cleanly when no task is
ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runOnce(ctx, orchestrator.New(cfg, repoDir))
	},
}

func runOnce(ctx context.Context, o *orchestrator.Orchestrator) error {
	result, err := o.Run(ctx)
	if err != nil {
		return err
	}
	switch {
	case result == nil:
		fmt.Println("No ready tasks.")
	case result.Skipped != "":
		fmt.Printf("Task %s skipped: %s\n", result.Task.ID, result.Skipped)
	case result.PullRequest > 0:
		fmt.Printf("Task %s published as PR #%d on branch %s\n",
			result.Task.ID, result.PullRequest, result.Branch)
	case result.Committed:
		fmt.Printf("Task %s committed on branch %s\n", result.Task.ID, result.Branch)
	default:
		fmt.Printf("Task %s produced no commit\n", result.Task.ID)
	}
	return nil
}
