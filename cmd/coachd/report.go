package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/coachd/internal/feedback"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [daily|weekly|monthly]",
		Short: "Print the model performance report",
		Long: `Print one performance report per configured model tier as JSON.

Examples:
  # Last 24 hours
  coachd report

  # Last 30 days
  coachd report monthly`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(feedback.PeriodDaily), string(feedback.PeriodWeekly), string(feedback.PeriodMonthly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			period := feedback.PeriodDaily
			if len(args) == 1 {
				period = feedback.Period(args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			reports, err := a.registry.Monitor().GeneratePerformanceReport(cmd.Context(), period)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tracked interactions and feedback metrics",
		Long: `Export every tracked interaction, clarification metric and improvement
opportunity to stdout.

Examples:
  coachd export --format json > metrics.json
  coachd export --format csv > metrics.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			out, err := a.registry.Monitor().ExportMetrics(cmd.Context(), feedback.Format(format))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", string(feedback.FormatJSON), "output format (json or csv)")
	return cmd
}
