// Package commands implements reelforge's CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reelforge",
		Short: "Reelforge - autonomous content production scheduler",
		Long: `Reelforge schedules, produces, and publishes short-form video
content end to end: script generation, assembly, and upload, governed
by a publishing calendar and recurring schedules.

Examples:
  reelforge serve
  reelforge schedule create --topic "morning routine" --at 2026-08-01T09:00:00Z
  reelforge schedule list
  reelforge recurring create --kind daily --hour 9
  reelforge calendar day 2026-08-01
  reelforge auth set`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newScheduleCmd(),
		newRecurringCmd(),
		newCalendarCmd(),
		newAuthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("api", "http://localhost:8000", "reelforge API base URL")

	return rootCmd
}
