// Package content implements the ContentScheduler: the orchestration
// core that turns a production request into a scheduled Job, reserves
// its calendar slot, dispatches it through the three-stage pipeline
// (script, assemble, upload) via the JobExecutor, and keeps the job
// store and event bus in sync with its lifecycle.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/capability"
	"github.com/reelforge/scheduler/pkg/reelforge/executor"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/store"
)

// Capabilities bundles the external interfaces the pipeline calls
// through, per spec §6. Bound once at construction; the scheduler never
// assumes any of them are idempotent across retries.
type Capabilities struct {
	ScriptGenerator capability.ScriptGenerator
	VideoAssembler  capability.VideoAssembler
	YouTubeUploader capability.YouTubeUploader
}

// Config controls dispatch cadence and retry policy, sourced from
// config.Config by the caller (cmd/reelforge).
type Config struct {
	MaxConcurrentJobs int
	DispatchInterval  time.Duration
	RetryPolicy       executor.Policy
	Location          *time.Location
}

func (c Config) effective() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 2
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = 10 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Statistics summarises job state for the /api/statistics endpoint and
// dead-letter visibility (SPEC_FULL.md §C).
type Statistics struct {
	TotalJobs       int            `json:"total_jobs"`
	ActiveCount     int            `json:"active_jobs"`
	ByStatus        map[string]int `json:"by_status"`
	FailedLast24h   int            `json:"failed_last_24h"`
	OldestNextRetry *time.Time     `json:"oldest_next_retry_at,omitempty"`
}

// Scheduler is the ContentScheduler.
type Scheduler struct {
	store    store.JobStore
	calendar *calendar.Manager
	executor *executor.Executor
	bus      *job.Bus
	caps     Capabilities
	cfg      Config
	logger   *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job.Job

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a ContentScheduler. It does not start the dispatch
// loop; call Restore then Start.
func New(st store.JobStore, cal *calendar.Manager, exec *executor.Executor, bus *job.Bus, caps Capabilities, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    st,
		calendar: cal,
		executor: exec,
		bus:      bus,
		caps:     caps,
		cfg:      cfg.effective(),
		logger:   logger.With("component", "content_scheduler"),
		jobs:     make(map[string]*job.Job),
	}
}

// Restore reloads jobs and slots from the store at startup. Per spec
// §5, any job found RUNNING is treated as interrupted by the crash and
// moved to FAILED; its calendar slot is released. SCHEDULED jobs are
// left as-is for the dispatch loop to pick back up; calendar slots are
// reloaded verbatim with no re-validation.
func (s *Scheduler) Restore(ctx context.Context) error {
	now := time.Now().In(s.cfg.Location)

	slots, err := s.store.ListSlots(ctx)
	if err != nil {
		return fmt.Errorf("restore slots: %w", err)
	}
	for _, sl := range slots {
		s.calendar.Restore(sl)
	}

	jobs, err := s.store.ListJobs(ctx, job.Filter{})
	if err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range jobs {
		j := jobs[i]
		if j.Status == job.StatusRunning {
			if err := j.TransitionTo(job.StatusFailed, now); err != nil {
				s.logger.Error("restore: cannot mark interrupted job failed", "job_id", j.ID, "error", err)
			}
			j.ErrorMessage = "interrupted by restart"
			if j.SlotID != "" {
				_ = s.calendar.Release(j.SlotID)
			}
			if err := s.store.UpsertJob(ctx, j); err != nil {
				s.logger.Error("restore: failed to persist interrupted job", "job_id", j.ID, "error", err)
			}
		}
		cp := j
		s.jobs[j.ID] = &cp
	}

	s.logger.Info("restored state", "jobs", len(jobs), "slots", len(slots))
	return nil
}

// Schedule validates req, reserves a calendar slot, and persists a new
// Job in StatusScheduled. It satisfies recurring.Submitter, which is why
// it takes no context: recurring materialisation has none to offer, and
// persistence here is expected to complete quickly.
func (s *Scheduler) Schedule(req job.Request) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.schedule(ctx, req)
}

// ScheduleWithContext is the ctx-carrying entry point used by the API
// layer, which has a request-scoped context to propagate.
func (s *Scheduler) ScheduleWithContext(ctx context.Context, req job.Request) (string, error) {
	return s.schedule(ctx, req)
}

func (s *Scheduler) schedule(ctx context.Context, req job.Request) (string, error) {
	now := time.Now().In(s.cfg.Location)
	if err := req.Validate(now); err != nil {
		return "", err
	}

	slot, err := s.calendar.Reserve(req.ScheduledAt, time.Duration(req.DurationSeconds)*time.Second, req.Topic, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", job.ErrConflict, err)
	}

	id := uuid.NewString()
	j := job.New(id, req, now)
	j.SlotID = slot.ID
	if err := j.TransitionTo(job.StatusScheduled, now); err != nil {
		_ = s.calendar.Release(slot.ID)
		return "", fmt.Errorf("%w: %v", job.ErrInternal, err)
	}
	slot.JobID = id

	if err := s.store.UpsertSlot(ctx, slot); err != nil {
		_ = s.calendar.Release(slot.ID)
		return "", fmt.Errorf("persist slot: %w", err)
	}
	if err := s.store.UpsertJob(ctx, *j); err != nil {
		_ = s.calendar.Release(slot.ID)
		return "", fmt.Errorf("persist job: %w", err)
	}

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	s.bus.Publish(job.Event{Type: job.EventCreated, JobID: id, Status: j.Status, Stage: j.Stage, At: now})
	return id, nil
}

// ScheduleBatch schedules every request independently, collecting
// per-item results so one invalid/conflicting entry does not abort the
// rest.
func (s *Scheduler) ScheduleBatch(ctx context.Context, reqs []job.Request) ([]string, []error) {
	ids := make([]string, len(reqs))
	errs := make([]error, len(reqs))
	for i, r := range reqs {
		ids[i], errs[i] = s.schedule(ctx, r)
	}
	return ids, errs
}

// Get returns a copy of the job by id.
func (s *Scheduler) Get(ctx context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok {
		return *j, nil
	}
	return s.store.GetJob(ctx, id)
}

// List returns jobs matching filter.
func (s *Scheduler) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	return s.store.ListJobs(ctx, filter)
}

// Cancel transitions a job to CANCELLED and releases its calendar slot.
// Cancelling a RUNNING job also signals the executor to stop the
// in-flight operation cooperatively.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s", job.ErrNotFound, id)
	}

	now := time.Now().In(s.cfg.Location)
	wasRunning := j.Status == job.StatusRunning
	if err := j.TransitionTo(job.StatusCancelled, now); err != nil {
		return err
	}
	if j.SlotID != "" {
		_ = s.calendar.Release(j.SlotID)
	}
	if err := s.store.UpsertJob(ctx, *j); err != nil {
		return fmt.Errorf("persist cancelled job: %w", err)
	}
	if wasRunning {
		s.executor.Cancel(id)
	}
	s.bus.Publish(job.Event{Type: job.EventCancelled, JobID: id, Status: j.Status, At: now})
	return nil
}

// Pause suppresses due-time dispatch for a pending/scheduled job.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	return s.setPaused(ctx, id, true, job.EventPaused)
}

// Resume re-enables dispatch for a paused job.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	return s.setPaused(ctx, id, false, job.EventResumed)
}

func (s *Scheduler) setPaused(ctx context.Context, id string, paused bool, ev job.EventType) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s", job.ErrNotFound, id)
	}
	if j.Status != job.StatusPending && j.Status != job.StatusScheduled {
		return fmt.Errorf("%w: job %s in status %s cannot be paused/resumed", job.ErrConflict, id, j.Status)
	}

	now := time.Now().In(s.cfg.Location)
	j.Paused = paused
	j.UpdatedAt = now
	if err := s.store.UpsertJob(ctx, *j); err != nil {
		return fmt.Errorf("persist paused state: %w", err)
	}
	s.bus.Publish(job.Event{Type: ev, JobID: id, Status: j.Status, At: now})
	return nil
}

// Statistics aggregates job counts by status plus dead-letter visibility
// fields (SPEC_FULL.md §C): jobs failed in the last 24h and the oldest
// pending retry, so operators can spot a stuck retry queue at a glance.
func (s *Scheduler) Statistics(ctx context.Context) (Statistics, error) {
	jobs, err := s.store.ListJobs(ctx, job.Filter{})
	if err != nil {
		return Statistics{}, fmt.Errorf("list jobs for statistics: %w", err)
	}

	stats := Statistics{ByStatus: make(map[string]int)}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, j := range jobs {
		stats.TotalJobs++
		stats.ByStatus[string(j.Status)]++
		if j.Status == job.StatusRunning {
			stats.ActiveCount++
		}
		if j.Status == job.StatusFailed && j.CompletedAt != nil && j.CompletedAt.After(cutoff) {
			stats.FailedLast24h++
		}
		if j.NextRetryAt != nil {
			if stats.OldestNextRetry == nil || j.NextRetryAt.Before(*stats.OldestNextRetry) {
				t := *j.NextRetryAt
				stats.OldestNextRetry = &t
			}
		}
	}
	return stats, nil
}

// Start launches the dispatch loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dispatch(ctx)
			}
		}
	}()
}

// Stop halts the dispatch loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// dispatch scans due, non-paused SCHEDULED jobs, ordered by
// (scheduled_at, -priority), and starts a runPipeline goroutine for
// each; every goroutine waits for a slot on the executor's shared
// concurrency limit, so the loop itself does not block. A job still
// waiting for a slot stays SCHEDULED and may be started again on the
// next tick; that duplicate returns when its move to RUNNING fails.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := time.Now().In(s.cfg.Location)

	s.mu.RLock()
	due := make([]*job.Job, 0)
	for _, j := range s.jobs {
		if j.Status == job.StatusScheduled && !j.Paused && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].Priority > due[j].Priority
	})

	for _, j := range due {
		go s.runPipeline(ctx, j.ID)
	}
}

// runPipeline drives one job through SCRIPT -> ASSEMBLE -> UPLOAD,
// reporting roughly 33%/66%/100% progress milestones and publishing a
// bus event on every stage transition, per spec §4.1.
//
// The executor's concurrency slot is acquired before the job is marked
// RUNNING and released only once the attempt is fully finished, so
// active_count (jobs with status=running) never exceeds
// max_concurrent_jobs (spec §8): the status and the slot are held for
// exactly the same window, not just the underlying capability calls.
func (s *Scheduler) runPipeline(ctx context.Context, id string) {
	release, err := s.executor.Acquire(ctx)
	if err != nil {
		return
	}
	defer release()

	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	now := time.Now().In(s.cfg.Location)
	s.mu.Lock()
	if err := j.TransitionTo(job.StatusRunning, now); err != nil {
		s.mu.Unlock()
		return
	}
	j.ResetAttempt(now)
	cp := *j
	s.mu.Unlock()
	_ = s.store.UpsertJob(ctx, cp)
	s.bus.Publish(job.Event{Type: job.EventUpdate, JobID: id, Status: job.StatusRunning, At: now})

	op := func(opCtx context.Context, progress executor.ProgressFunc) (any, error) {
		return s.pipelineOperation(opCtx, j, progress)
	}

	result := s.executor.ExecuteLocked(ctx, id, op, s.cfg.RetryPolicy)
	s.finishAttempt(ctx, j, result)
}

// pipelineOperation runs the three capability calls for one attempt.
// Returns the final job.Result on success.
func (s *Scheduler) pipelineOperation(ctx context.Context, j *job.Job, progress executor.ProgressFunc) (any, error) {
	s.mu.Lock()
	j.EnterStage(job.StageScript, time.Now())
	s.mu.Unlock()

	script, err := s.caps.ScriptGenerator.Generate(ctx, j.Topic, j.Style, j.DurationSeconds, j.Tags)
	if err != nil {
		return nil, fmt.Errorf("script generation: %w", err)
	}
	progress(33)
	s.publishProgress(j.ID, job.StageScript, 33)

	s.mu.Lock()
	j.EnterStage(job.StageAssemble, time.Now())
	s.mu.Unlock()

	artifact, err := s.caps.VideoAssembler.Assemble(ctx, script, nil, "", func(p int) {
		progress(33 + p*33/100)
		s.publishProgress(j.ID, job.StageAssemble, 33+p*33/100)
	})
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	progress(66)

	s.mu.Lock()
	j.EnterStage(job.StageUpload, time.Now())
	s.mu.Unlock()

	meta := capability.UploadMetadata{Title: j.Topic, Tags: j.Tags, Category: j.Category, Privacy: j.Privacy}
	uploadResult, err := s.caps.YouTubeUploader.Upload(ctx, artifact, meta, j.PublishAt, func(p int) {
		progress(66 + p*34/100)
		s.publishProgress(j.ID, job.StageUpload, 66+p*34/100)
	})
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	progress(100)

	return job.Result{
		ScriptID:  script.ID,
		VideoPath: artifact.Path,
		RemoteID:  uploadResult.VideoID,
		RemoteURL: uploadResult.URL,
	}, nil
}

func (s *Scheduler) publishProgress(jobID string, stage job.Stage, percent int) {
	s.bus.Publish(job.Event{Type: job.EventUpdate, JobID: jobID, Stage: stage, Progress: percent, At: time.Now()})
}

// finishAttempt applies an executor.Result to the job's terminal state
// (or retry wait), persists it, and publishes the corresponding event.
func (s *Scheduler) finishAttempt(ctx context.Context, j *job.Job, result executor.Result) {
	now := time.Now().In(s.cfg.Location)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch result.Outcome {
	case executor.OutcomeCompleted:
		res, _ := result.Value.(job.Result)
		j.Result = res
		j.SetProgress(100, now)
		_ = j.TransitionTo(job.StatusCompleted, now)
		if j.SlotID != "" {
			_ = s.calendar.Complete(j.SlotID)
		}
	case executor.OutcomeCancelled:
		_ = j.TransitionTo(job.StatusCancelled, now)
		if j.SlotID != "" {
			_ = s.calendar.Release(j.SlotID)
		}
	default: // OutcomeFailed, OutcomeTimedOut: the executor already
		// exhausted its own retry policy before returning here.
		j.ErrorMessage = errString(result.Err)
		_ = j.TransitionTo(job.StatusFailed, now)
		if j.SlotID != "" {
			_ = s.calendar.Release(j.SlotID)
		}
	}

	_ = s.store.UpsertJob(ctx, *j)
	s.bus.Publish(job.Event{Type: job.EventUpdate, JobID: j.ID, Status: j.Status, Stage: j.Stage, Progress: j.ProgressPercent, At: now})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
