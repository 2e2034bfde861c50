package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"taskforge/internal/events"

	"github.com/spf13/cobra"
)

var eventsTail int

// eventsCmd groups the event log commands.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the agent event log",
}

// eventsShowCmd prints recent events, newest last.
var eventsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logged := eventLog(cfg.Paths.EventLog).Load()
		if len(logged) == 0 {
			fmt.Println("Event log is empty.")
			return nil
		}
		if eventsTail > 0 && len(logged) > eventsTail {
			logged = logged[len(logged)-eventsTail:]
		}
		for _, evt := range logged {
			line := fmt.Sprintf("%s  %-7s %-14s %s",
				evt.Timestamp.Format("2006-01-02 15:04:05"), evt.Level, evt.Source, evt.Message)
			if len(evt.Details) > 0 {
				if details, err := json.Marshal(evt.Details); err == nil {
					line += "  " + string(details)
				}
			}
			fmt.Println(line)
		}
		return nil
	},
}

// eventsClearCmd truncates the event log.
var eventsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eventLog(cfg.Paths.EventLog).Clear()
		fmt.Println("Event log cleared.")
		return nil
	},
}

func eventLog(configured string) *events.Log {
	path := configured
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoDir, path)
	}
	return events.New(path)
}

func init() {
	eventsShowCmd.Flags().IntVarP(&eventsTail, "tail", "n", 0, "show only the last N events")
	eventsCmd.AddCommand(eventsShowCmd)
	eventsCmd.AddCommand(eventsClearCmd)
}
