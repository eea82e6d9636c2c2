package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

// newRecurringCmd creates the `reelforge recurring` command group, a
// thin client over /api/recurring against a running daemon.
func newRecurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage recurring content schedules",
	}
	cmd.AddCommand(
		newRecurringCreateCmd(),
		newRecurringListCmd(),
		newRecurringGetCmd(),
		newRecurringDeleteCmd(),
		newRecurringPauseCmd(),
		newRecurringResumeCmd(),
	)
	return cmd
}

type createRecurringBody struct {
	Kind          recurring.Kind `json:"kind"`
	Name          string         `json:"name"`
	TopicTemplate string         `json:"topic_template"`
	Hour          int            `json:"hour"`
	Minute        int            `json:"minute"`
	Weekdays      []time.Weekday `json:"weekdays,omitempty"`
	DaysOfMonth   []int          `json:"days_of_month,omitempty"`
	EverySeconds  int            `json:"every_seconds,omitempty"`
	Cron          string         `json:"cron,omitempty"`
	StartDate     time.Time      `json:"start_date"`
}

func newRecurringCreateCmd() *cobra.Command {
	var (
		kind          string
		name          string
		topicTemplate string
		hour, minute  int
		weekdays      []int
		daysOfMonth   []int
		everySeconds  int
		cronExpr      string
		startDate     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if startDate != "" {
				t, err := time.Parse(time.RFC3339, startDate)
				if err != nil {
					return fmt.Errorf("--start must be RFC3339: %w", err)
				}
				start = t
			}

			body := createRecurringBody{
				Kind:          recurring.Kind(kind),
				Name:          name,
				TopicTemplate: topicTemplate,
				Hour:          hour,
				Minute:        minute,
				DaysOfMonth:   daysOfMonth,
				EverySeconds:  everySeconds,
				Cron:          cronExpr,
				StartDate:     start,
			}
			for _, w := range weekdays {
				body.Weekdays = append(body.Weekdays, time.Weekday(w))
			}

			var resp struct {
				ID string `json:"id"`
			}
			if err := newAPIClient(cmd).post(cmd.Context(), "/api/recurring/create", body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created recurring schedule %s\n", resp.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "daily, weekly, monthly, interval, or cron")
	cmd.Flags().StringVar(&name, "name", "", "schedule name")
	cmd.Flags().StringVar(&topicTemplate, "topic-template", "", "topic template, e.g. \"daily tip for {date}\"")
	cmd.Flags().IntVar(&hour, "hour", 9, "local hour for daily/weekly/monthly")
	cmd.Flags().IntVar(&minute, "minute", 0, "local minute for daily/weekly/monthly")
	cmd.Flags().IntSliceVar(&weekdays, "weekday", nil, "weekly: weekdays as 0=Sunday..6=Saturday")
	cmd.Flags().IntSliceVar(&daysOfMonth, "day-of-month", nil, "monthly: days of month")
	cmd.Flags().IntVar(&everySeconds, "every-seconds", 0, "interval: seconds between fires")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron: a 5-field cron expression")
	cmd.Flags().StringVar(&startDate, "start", "", "first eligible fire time, RFC3339 (default now)")

	return cmd
}

func newRecurringListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schedules []recurring.Schedule
			if err := newAPIClient(cmd).get(cmd.Context(), "/api/recurring", &schedules); err != nil {
				return err
			}
			return printJSON(schedules)
		},
	}
}

func newRecurringGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <schedule-id>",
		Short: "Show a single recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched recurring.Schedule
			if err := newAPIClient(cmd).get(cmd.Context(), "/api/recurring/"+args[0], &sched); err != nil {
				return err
			}
			return printJSON(sched)
		},
	}
}

func newRecurringDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <schedule-id>",
		Short: "Delete a recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(cmd).delete(cmd.Context(), "/api/recurring/"+args[0]); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "deleted")
			return nil
		},
	}
}

func newRecurringPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <schedule-id>",
		Short: "Pause a recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(cmd).post(cmd.Context(), "/api/recurring/"+args[0]+"/pause", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "paused")
			return nil
		},
	}
}

func newRecurringResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <schedule-id>",
		Short: "Resume a paused recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(cmd).post(cmd.Context(), "/api/recurring/"+args[0]+"/resume", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "resumed")
			return nil
		},
	}
}
