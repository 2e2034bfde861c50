package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"taskforge/internal/orchestrator"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveSchedule string

// serveCmd runs agent cycles on a cron schedule until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run agent cycles on a schedule",
	Long: `Run the agent continuously, starting a cycle on the configured cron
schedule. Overlapping cycles are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		schedule := serveSchedule
		if schedule == "" {
			schedule = cfg.Serve.Schedule
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		running := make(chan struct{}, 1)
		scheduler := cron.New()
		_, err = scheduler.AddFunc(schedule, func() {
			select {
			case running <- struct{}{}:
			default:
				log.Printf("[Serve] Previous cycle still running, skipping")
				return
			}
			defer func() { <-running }()

			if err := runOnce(ctx, orchestrator.New(cfg, repoDir)); err != nil {
				log.Printf("[Serve] Cycle failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", schedule, err)
		}

		log.Printf("[Serve] Starting with schedule %q", schedule)
		scheduler.Start()
		<-ctx.Done()
		log.Printf("[Serve] Shutting down")
		<-scheduler.Stop().Done()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "cron schedule (overrides config)")
}
