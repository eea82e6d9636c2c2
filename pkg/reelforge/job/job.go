// Package job defines the Job model: the unit of end-to-end video
// production that flows through the scheduler, the executor, and the
// API surface.
package job

import (
	"fmt"
	"time"
)

// Status is the job's position in its lifecycle state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// transitions enumerates the allowed edges of the job status graph.
// Any transition not listed here is rejected by Job.TransitionTo.
var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusRunning, StatusPaused, StatusCancelled},
	StatusPaused:    {StatusScheduled, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransition reports whether moving from s to next is allowed.
func CanTransition(s, next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Stage is the coarse phase within a job's current attempt.
type Stage string

const (
	StageQueued   Stage = "queued"
	StageScript   Stage = "script"
	StageAssemble Stage = "assemble"
	StageUpload   Stage = "upload"
	StageDone     Stage = "done"
	StageError    Stage = "error"
)

// Result holds references to artifacts produced by a completed job.
type Result struct {
	ScriptID    string `json:"script_id,omitempty"`
	VideoPath   string `json:"video_path,omitempty"`
	RemoteID    string `json:"remote_id,omitempty"`
	RemoteURL   string `json:"remote_url,omitempty"`
}

// TimelineEntry records when a job entered a given stage, so clients that
// reconnect after the fact can render a job's history without replaying
// the live event feed.
type TimelineEntry struct {
	Stage     Stage     `json:"stage"`
	EnteredAt time.Time `json:"entered_at"`
}

// Job represents one unit of end-to-end video production: script,
// assembly, upload.
type Job struct {
	ID string `json:"id"`

	// Production parameters, opaque to the core and forwarded verbatim to
	// external capabilities.
	Topic           string   `json:"topic"`
	Style           string   `json:"style"`
	DurationSeconds int      `json:"duration_seconds"`
	Tags            []string `json:"tags,omitempty"`
	Category        string   `json:"category,omitempty"`
	Privacy         string   `json:"privacy,omitempty"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	PublishAt   *time.Time `json:"publish_at,omitempty"`

	Status          Status  `json:"status"`
	ProgressPercent int     `json:"progress_percent"`
	Stage           Stage   `json:"stage"`
	Priority        int     `json:"priority"`

	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	Result Result `json:"result"`

	// Paused suppresses due-time firing while true. Reachable only from
	// Pending/Scheduled per the lifecycle invariant.
	Paused bool `json:"paused"`

	// SlotID is the CalendarSlot reserved for this job, if any.
	SlotID string `json:"slot_id,omitempty"`

	// ScheduleID traces this job back to the RecurringSchedule that
	// materialised it, empty for ad hoc jobs.
	ScheduleID string `json:"schedule_id,omitempty"`

	Timeline []TimelineEntry `json:"timeline,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Request is the input to ContentScheduler.Schedule.
type Request struct {
	Topic           string     `json:"topic"`
	Style           string     `json:"style"`
	DurationSeconds int        `json:"duration_seconds"`
	Tags            []string   `json:"tags,omitempty"`
	Category        string     `json:"category,omitempty"`
	Privacy         string     `json:"privacy,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	PublishAt       *time.Time `json:"publish_at,omitempty"`
	Priority        int        `json:"priority,omitempty"`
	MaxAttempts     int        `json:"max_attempts,omitempty"`
	ScheduleID      string     `json:"schedule_id,omitempty"`
}

const (
	minDurationSeconds = 60
	maxDurationSeconds = 3600
	// scheduleGrace tolerates small clock skew / request latency between
	// the client computing scheduled_at and the server validating it.
	scheduleGrace = 30 * time.Second
)

// Validate checks the request against spec invariants: topic non-empty,
// scheduled_at not in the past beyond a small grace window, duration in
// [60, 3600], and scheduled_at <= publish_at when both are set.
func (r Request) Validate(now time.Time) error {
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrValidation)
	}
	if r.DurationSeconds < minDurationSeconds || r.DurationSeconds > maxDurationSeconds {
		return fmt.Errorf("%w: duration_seconds must be between %d and %d", ErrValidation, minDurationSeconds, maxDurationSeconds)
	}
	if r.ScheduledAt.Before(now.Add(-scheduleGrace)) {
		return fmt.Errorf("%w: scheduled_at is in the past", ErrValidation)
	}
	if r.PublishAt != nil && r.ScheduledAt.After(*r.PublishAt) {
		return fmt.Errorf("%w: scheduled_at must not be after publish_at", ErrValidation)
	}
	return nil
}

// New builds a fresh Job from a validated request, in StatusPending.
// The caller (ContentScheduler) assigns ID and moves it to Scheduled once
// the calendar slot and persistence succeed.
func New(id string, r Request, now time.Time) *Job {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	publishAt := r.PublishAt
	if publishAt != nil && publishAt.Before(now) {
		// Open Question resolved: a past publish_at means "publish
		// immediately", not a validation error.
		publishAt = nil
	}
	return &Job{
		ID:              id,
		Topic:           r.Topic,
		Style:           r.Style,
		DurationSeconds: r.DurationSeconds,
		Tags:            r.Tags,
		Category:        r.Category,
		Privacy:         r.Privacy,
		ScheduledAt:     r.ScheduledAt,
		PublishAt:       publishAt,
		Priority:        r.Priority,
		Status:          StatusPending,
		Stage:           StageQueued,
		MaxAttempts:     maxAttempts,
		ScheduleID:      r.ScheduleID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TransitionTo moves the job to next if allowed, updating UpdatedAt and
// timeline bookkeeping. Returns ErrConflict if the transition is illegal,
// including any attempt to mutate an already-terminal job.
func (j *Job) TransitionTo(next Status, now time.Time) error {
	if j.Status == next {
		return nil
	}
	if !CanTransition(j.Status, next) {
		return fmt.Errorf("%w: cannot move job %s from %s to %s", ErrConflict, j.ID, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = now
	switch next {
	case StatusRunning:
		j.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = &now
	}
	return nil
}

// EnterStage records the job entering a new pipeline stage and appends a
// timeline entry.
func (j *Job) EnterStage(stage Stage, now time.Time) {
	j.Stage = stage
	j.UpdatedAt = now
	j.Timeline = append(j.Timeline, TimelineEntry{Stage: stage, EnteredAt: now})
}

// SetProgress clamps the value to [0, 100] and rejects any decrease within
// the same attempt, per the monotonicity invariant.
func (j *Job) SetProgress(percent int, now time.Time) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < j.ProgressPercent {
		return
	}
	j.ProgressPercent = percent
	j.UpdatedAt = now
}

// ResetAttempt zeroes per-attempt progress at the start of a new attempt,
// per the invariant that progress resets on every attempt.
func (j *Job) ResetAttempt(now time.Time) {
	j.ProgressPercent = 0
	j.AttemptCount++
	j.UpdatedAt = now
}

// Filter narrows List() queries.
type Filter struct {
	Status *Status
}
