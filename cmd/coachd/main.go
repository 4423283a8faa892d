// Coachd is the personalized coaching insight service.
//
// Usage:
//
//	# Start the HTTP API
//	coachd serve
//
//	# Print the weekly model performance report
//	coachd report weekly
//
//	# Dump interactions, clarification metrics and opportunities as CSV
//	coachd export --format csv > metrics.csv
//
// Configuration is read from ~/.config/coachd/config.yaml and COACHD_*
// environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/coachd/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coachd",
		Short: "Personalized coaching insight service",
		Long: `coachd analyzes meals, sleep, energy and activity records and turns them
into prioritized coaching insights. It also monitors the quality of the AI
calls behind them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/coachd/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "coachd by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
