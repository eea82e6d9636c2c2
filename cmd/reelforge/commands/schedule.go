package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/reelforge/scheduler/pkg/reelforge/job"
)

// newScheduleCmd creates the `reelforge schedule` command group, a thin
// client over POST/GET /api/jobs against a running daemon.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create and inspect one-off content jobs",
	}
	cmd.AddCommand(
		newScheduleCreateCmd(),
		newScheduleListCmd(),
		newScheduleGetCmd(),
		newScheduleCancelCmd(),
		newSchedulePauseCmd(),
		newScheduleResumeCmd(),
	)
	return cmd
}

func newScheduleCreateCmd() *cobra.Command {
	var (
		topic, style, category, privacy, at, publishAt string
		durationSeconds, priority, maxAttempts          int
		tags                                            []string
		interactive                                     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a new content job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := job.Request{
				Topic:           topic,
				Style:           style,
				DurationSeconds: durationSeconds,
				Tags:            tags,
				Category:        category,
				Privacy:         privacy,
				Priority:        priority,
				MaxAttempts:     maxAttempts,
			}

			if interactive {
				if err := runScheduleWizard(&req); err != nil {
					return err
				}
			} else {
				scheduledAt, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339 (e.g. 2026-08-01T09:00:00Z): %w", err)
				}
				req.ScheduledAt = scheduledAt
				if publishAt != "" {
					p, err := time.Parse(time.RFC3339, publishAt)
					if err != nil {
						return fmt.Errorf("--publish-at must be RFC3339: %w", err)
					}
					req.PublishAt = &p
				}
			}

			var resp struct {
				ID string `json:"id"`
			}
			client := newAPIClient(cmd)
			if err := client.post(cmd.Context(), "/api/jobs/schedule", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "scheduled job %s\n", resp.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "video topic")
	cmd.Flags().StringVar(&style, "style", "", "script/voice style")
	cmd.Flags().IntVar(&durationSeconds, "duration", 90, "target duration in seconds")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVar(&category, "category", "", "upload category")
	cmd.Flags().StringVar(&privacy, "privacy", "public", "upload privacy (public, unlisted, private)")
	cmd.Flags().StringVar(&at, "at", "", "scheduled run time, RFC3339 (ignored with --interactive)")
	cmd.Flags().StringVar(&publishAt, "publish-at", "", "publish time, RFC3339 (optional)")
	cmd.Flags().IntVar(&priority, "priority", 0, "dispatch priority, higher runs first")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "max_attempts recorded on the job (0 = 3); retries follow the server's MAX_RETRIES policy")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "prompt for every field instead of reading flags")

	return cmd
}

// runScheduleWizard walks the operator through every job.Request field
// with a huh form, the same library the teacher's go.mod already
// depends on for its own interactive setup prompts.
func runScheduleWizard(req *job.Request) error {
	var (
		atStr        string
		publishAtStr string
		tagsStr      string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Topic").Value(&req.Topic).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("topic is required")
				}
				return nil
			}),
			huh.NewInput().Title("Style").Value(&req.Style),
			huh.NewInput().Title("Tags (comma-separated)").Value(&tagsStr),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Privacy").
				Options(huh.NewOption("public", "public"), huh.NewOption("unlisted", "unlisted"), huh.NewOption("private", "private")).
				Value(&req.Privacy),
			huh.NewInput().Title("Category").Value(&req.Category),
		),
		huh.NewGroup(
			huh.NewInput().Title("Scheduled at (RFC3339)").Value(&atStr).Validate(func(s string) error {
				_, err := time.Parse(time.RFC3339, s)
				return err
			}),
			huh.NewInput().Title("Publish at (RFC3339, optional)").Value(&publishAtStr),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("schedule wizard: %w", err)
	}

	if tagsStr != "" {
		req.Tags = strings.Split(tagsStr, ",")
		for i := range req.Tags {
			req.Tags[i] = strings.TrimSpace(req.Tags[i])
		}
	}
	req.ScheduledAt, _ = time.Parse(time.RFC3339, atStr)
	if publishAtStr != "" {
		if p, err := time.Parse(time.RFC3339, publishAtStr); err == nil {
			req.PublishAt = &p
		}
	}
	return nil
}

func newScheduleListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/api/jobs"
			if status != "" {
				path += "?status=" + status
			}
			var jobs []job.Job
			if err := newAPIClient(cmd).get(cmd.Context(), path, &jobs); err != nil {
				return err
			}
			return printJSON(jobs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, scheduled, running, paused, completed, failed, cancelled)")
	return cmd
}

func newScheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var j job.Job
			if err := newAPIClient(cmd).get(cmd.Context(), "/api/jobs/"+args[0], &j); err != nil {
				return err
			}
			return printJSON(j)
		},
	}
}

func newScheduleCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE:  jobActionRunE("cancel"),
	}
}

func newSchedulePauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <job-id>",
		Short: "Pause a pending/scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE:  jobActionRunE("pause"),
	}
}

func newScheduleResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE:  jobActionRunE("resume"),
	}
}

func jobActionRunE(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/jobs/%s/%s", args[0], action)
		if err := newAPIClient(cmd).post(cmd.Context(), path, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: ok\n", action)
		return nil
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
