package main

import (
	"fmt"
	"path/filepath"

	"taskforge/internal/tasks"

	"github.com/spf13/cobra"
)

// tasksCmd lists the catalogue partitioned against the completion state.
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List catalogue tasks and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		catalogue, err := tasks.LoadDir(filepath.Join(repoDir, cfg.Paths.TasksDir))
		if err != nil {
			return err
		}
		state, err := tasks.NewCompletedTaskStore(filepath.Join(repoDir, cfg.Paths.CompletedState))
		if err != nil {
			return err
		}

		ready, blocked, done := tasks.Partition(catalogue, state)
		printTaskSection("Ready", ready)
		printTaskSection("Blocked", blocked)
		printTaskSection("Completed", done)
		if len(catalogue) == 0 {
			fmt.Println("Catalogue is empty.")
		}
		return nil
	},
}

// tasksReopenCmd marks a completed task as incomplete again.
var tasksReopenCmd = &cobra.Command{
	Use:   "reopen <task-id>",
	Short: "Reopen a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := completedState()
		if err != nil {
			return err
		}
		reopened, err := state.MarkIncomplete(args[0])
		if err != nil {
			return err
		}
		if !reopened {
			return fmt.Errorf("task %q is not completed", args[0])
		}
		fmt.Printf("Task %s reopened.\n", args[0])
		return nil
	},
}

// tasksResetCmd clears the completion state entirely.
var tasksResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all completion state",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := completedState()
		if err != nil {
			return err
		}
		if err := state.Clear(); err != nil {
			return err
		}
		fmt.Println("Completion state cleared.")
		return nil
	},
}

func completedState() (*tasks.CompletedTaskStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return tasks.NewCompletedTaskStore(filepath.Join(repoDir, cfg.Paths.CompletedState))
}

func init() {
	tasksCmd.AddCommand(tasksReopenCmd)
	tasksCmd.AddCommand(tasksResetCmd)
}

func printTaskSection(heading string, items []tasks.TaskSpec) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n", heading)
	for _, task := range items {
		fmt.Printf("  %-10s %-8s %s\n", task.ID, task.Priority, task.Title)
	}
}
