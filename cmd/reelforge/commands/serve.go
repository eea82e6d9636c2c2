package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelforge/scheduler/pkg/reelforge/api"
	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/capability"
	"github.com/reelforge/scheduler/pkg/reelforge/config"
	"github.com/reelforge/scheduler/pkg/reelforge/content"
	"github.com/reelforge/scheduler/pkg/reelforge/executor"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
	"github.com/reelforge/scheduler/pkg/reelforge/store"
)

// newServeCmd creates the `reelforge serve` command that starts the
// daemon: the content scheduler, the recurring scheduler, and the HTTP
// API, wired to a single persistent store.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reelforge daemon (scheduler + API)",
		Long: `Start reelforge as a long-running daemon. It marks jobs left
running by the previous run as failed (they are not resumed), reloads
recurring schedules, then begins dispatching due jobs and serving the
HTTP/WebSocket API.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	st, err := store.Open(cfg.JobStoreURL)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer st.Close()

	loc := cfg.Location()

	cal := calendar.New(calendar.Config{
		MinGap:    cfg.CalendarMinGap(),
		MaxPerDay: cfg.CalendarMaxPerDay,
		Location:  loc,
	})

	exec := executor.New(int64(cfg.MaxConcurrentJobs), logger)
	bus := job.NewBus()

	caps := buildCapabilities(logger)

	contentCfg := content.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		DispatchInterval:  cfg.CheckInterval(),
		RetryPolicy: executor.Policy{
			MaxRetries: cfg.MaxRetries,
			Strategy:   executor.RetryExponential,
			BaseDelay:  cfg.RetryBaseDelay(),
			MaxDelay:   cfg.RetryMaxDelay(),
		},
		Location: loc,
	}
	contentSched := content.New(st, cal, exec, bus, caps, contentCfg, logger)

	recurringSched := recurring.New(st, contentSched, exec.Limiter(), loc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := contentSched.Restore(ctx); err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}
	if err := recurringSched.Restore(ctx); err != nil {
		return fmt.Errorf("restore recurring schedules: %w", err)
	}

	contentSched.Start(ctx)
	defer contentSched.Stop()
	recurringSched.Start(ctx)
	defer recurringSched.Stop()

	apiCfg := api.Config{
		Address:   fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		AuthToken: cfg.AdminToken,
	}
	server := api.New(apiCfg, contentSched, recurringSched, cal, bus, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start API server: %w", err)
	}

	logger.Info("reelforge running", "address", apiCfg.Address, "store", cfg.JobStoreURL, "timezone", cfg.Timezone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// buildCapabilities wires the three production capabilities from
// environment variables, falling back to local/stub implementations so
// `reelforge serve` starts without external services configured. Jobs
// do not complete in that setup: without SCRIPT_GENERATOR_ENDPOINT they
// fail at the script stage, and the local video assembler has no
// renderer, so assembly fails.
func buildCapabilities(logger *slog.Logger) content.Capabilities {
	var scriptGen capability.ScriptGenerator
	if endpoint := os.Getenv("SCRIPT_GENERATOR_ENDPOINT"); endpoint != "" {
		scriptGen = capability.NewHTTPScriptGenerator(endpoint, os.Getenv("SCRIPT_GENERATOR_API_KEY"))
	} else {
		logger.Warn("SCRIPT_GENERATOR_ENDPOINT not set, jobs will fail at the script stage")
	}

	outputDir := os.Getenv("VIDEO_OUTPUT_DIR")
	if outputDir == "" {
		outputDir = filepath.Join("data", "videos")
	}
	assembler, err := capability.NewLocalVideoAssembler(outputDir)
	if err != nil {
		logger.Error("failed to initialize video assembler", "error", err)
	}

	uploader := capability.StubYouTubeUploader{Credentials: capability.KeyringCredentialStore{}}

	return content.Capabilities{
		ScriptGenerator: scriptGen,
		VideoAssembler:  assembler,
		YouTubeUploader: uploader,
	}
}
