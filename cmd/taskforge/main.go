package main

import (
	"fmt"
	"log"
	"os"

	"taskforge/internal/config"
	"taskforge/internal/version"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	repoDir string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "TaskForge - autonomous task agent",
	Long: `TaskForge picks the next ready task from the catalogue, runs a staged
LLM planning pipeline grounded in a local vector index, applies the proposed
changes, and publishes them as a labelled pull request.`,
	Version: version.Full(),
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("TaskForge %s\n", version.Full())
		fmt.Printf("Go version: %s\n", version.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (JSON)")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "r", ".", "repository working tree")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(vectorCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(eventsCmd)
}

// loadConfig resolves the effective configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if !verbose {
		log.SetFlags(log.LstdFlags)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
