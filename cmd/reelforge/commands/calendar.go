package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
)

// newCalendarCmd creates the `reelforge calendar` command group, a thin
// client over /api/calendar against a running daemon.
func newCalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Inspect and manage the publishing calendar",
	}
	cmd.AddCommand(
		newCalendarDayCmd(),
		newCalendarWeekCmd(),
		newCalendarSuggestCmd(),
		newCalendarConflictsCmd(),
		newCalendarBlackoutCmd(),
	)
	return cmd
}

func newCalendarDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day <yyyy-mm-dd>",
		Short: "Show reserved slots for a single day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var slots []calendar.Slot
			if err := newAPIClient(cmd).get(cmd.Context(), "/api/calendar/day/"+args[0], &slots); err != nil {
				return err
			}
			return printJSON(slots)
		},
	}
}

func newCalendarWeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week <yyyy-mm-dd>",
		Short: "Show reserved slots for the week containing the given date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var slots []calendar.Slot
			if err := newAPIClient(cmd).get(cmd.Context(), "/api/calendar/week/"+args[0], &slots); err != nil {
				return err
			}
			return printJSON(slots)
		},
	}
}

func newCalendarSuggestCmd() *cobra.Command {
	var count, horizonDays int
	var from string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "List the next available preferred slots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := fmt.Sprintf("/api/calendar/suggestions?count=%d&horizon_days=%d", count, horizonDays)
			if from != "" {
				path += "&from=" + from
			}
			var times []time.Time
			if err := newAPIClient(cmd).get(cmd.Context(), path, &times); err != nil {
				return err
			}
			return printJSON(times)
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "number of suggestions")
	cmd.Flags().IntVar(&horizonDays, "horizon-days", 14, "how many days ahead to search")
	cmd.Flags().StringVar(&from, "from", "", "search start time, RFC3339 (default now)")
	return cmd
}

func newCalendarConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List slot pairs that overlap or are closer than the minimum gap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var conflicts []calendar.Conflict
			if err := newAPIClient(cmd).get(cmd.Context(), "/api/calendar/conflicts", &conflicts); err != nil {
				return err
			}
			return printJSON(conflicts)
		},
	}
}

func newCalendarBlackoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blackout",
		Short: "Manage blackout dates on which no job may be scheduled",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List blackout dates",
			RunE: func(cmd *cobra.Command, _ []string) error {
				var dates []time.Time
				if err := newAPIClient(cmd).get(cmd.Context(), "/api/calendar/blackouts", &dates); err != nil {
					return err
				}
				return printJSON(dates)
			},
		},
		newCalendarBlackoutMutateCmd("add", "POST"),
		newCalendarBlackoutMutateCmd("remove", "DELETE"),
	)
	return cmd
}

func newCalendarBlackoutMutateCmd(use, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <yyyy-mm-dd>",
		Short: use + " a blackout date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.Parse("2006-01-02", args[0])
			if err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}
			body := map[string]time.Time{"date": date}
			client := newAPIClient(cmd)
			if method == "DELETE" {
				return client.do(cmd.Context(), method, "/api/calendar/blackouts", body, nil)
			}
			return client.post(cmd.Context(), "/api/calendar/blackouts", body, nil)
		},
	}
}
