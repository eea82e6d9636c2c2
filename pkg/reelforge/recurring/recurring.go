// Package recurring implements RecurringScheduler: a pattern engine that
// periodically materialises concrete jobs and hands them to the
// ContentScheduler.
package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/reelforge/scheduler/pkg/reelforge/job"
)

// Schedule is a RecurringSchedule: zero or more concrete Jobs are
// materialised from it over time.
type Schedule struct {
	ID            string
	Name          string
	Pattern       Pattern
	TopicTemplate string
	Enabled       bool
	StartDate     time.Time
	EndDate       *time.Time

	// Default production parameters forwarded into each materialised
	// job's Request.
	Style           string
	DurationSeconds int
	Category        string
	Privacy         string
	Priority        int
	Tags            []string

	// nextFire is the strictly-increasing cursor; never rewound, so a
	// process asleep across multiple fires only ever produces the next
	// future one.
	nextFire time.Time
}

// Submitter is the narrow slice of ContentScheduler the recurring engine
// depends on, avoiding an import cycle between the two packages.
type Submitter interface {
	Schedule(req job.Request) (string, error)
}

// Store persists schedules; Scheduler is the source of truth for
// `enabled`/pause state and nextFire at runtime, Store is the substrate
// for restart survival.
type Store interface {
	UpsertSchedule(ctx context.Context, s Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ListSchedules(ctx context.Context) ([]Schedule, error)
}

// Config groups tick-loop settings. Nothing in this package reads it:
// New takes the location directly, and tickCadence computes the sleep
// between ticks.
type Config struct {
	Location *time.Location
	// TickInterval is not consulted by the tick loop.
	TickInterval time.Duration
}

// Scheduler is the RecurringScheduler.
type Scheduler struct {
	mu        sync.RWMutex
	schedules map[string]*Schedule

	store     Store
	submitter Submitter
	limiter   *semaphore.Weighted
	loc       *time.Location
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a RecurringScheduler. limiter, if non-nil, is shared
// with the JobExecutor so materialisation work competes for the same
// concurrency budget as pipeline execution.
func New(store Store, submitter Submitter, limiter *semaphore.Weighted, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = semaphore.NewWeighted(4)
	}
	return &Scheduler{
		schedules: make(map[string]*Schedule),
		store:     store,
		submitter: submitter,
		limiter:   limiter,
		loc:       loc,
		logger:    logger.With("component", "recurring"),
	}
}

// Create registers a new schedule, computing its first fire time from
// StartDate. Returns the assigned id.
func (s *Scheduler) Create(ctx context.Context, sched Schedule) (string, error) {
	if sched.Name == "" {
		return "", fmt.Errorf("%w: schedule name is required", job.ErrValidation)
	}
	if sched.StartDate.IsZero() {
		sched.StartDate = time.Now().In(s.loc)
	}
	sched.ID = uuid.NewString()
	sched.Enabled = true

	first, ok := NextFire(sched.Pattern, sched.StartDate.Add(-time.Second), s.loc)
	if !ok {
		return "", fmt.Errorf("%w: pattern never fires", job.ErrValidation)
	}
	sched.nextFire = first

	s.mu.Lock()
	s.schedules[sched.ID] = &sched
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertSchedule(ctx, sched); err != nil {
			s.logger.Error("failed to persist schedule", "id", sched.ID, "error", err)
		}
	}
	s.logger.Info("recurring schedule created", "id", sched.ID, "name", sched.Name, "kind", sched.Pattern.Kind, "next_fire", sched.nextFire)
	return sched.ID, nil
}

// CreateDaily, CreateWeekly, CreateMonthly, CreateInterval, and
// CreateCron are the spec's named constructors, each a thin wrapper
// around Create with the matching Pattern shape.

func (s *Scheduler) CreateDaily(ctx context.Context, name, topicTemplate string, hour, minute int, start time.Time) (string, error) {
	return s.Create(ctx, Schedule{Name: name, TopicTemplate: topicTemplate, StartDate: start, Pattern: Pattern{Kind: KindDaily, Hour: hour, Minute: minute}})
}

func (s *Scheduler) CreateWeekly(ctx context.Context, name, topicTemplate string, weekdays []time.Weekday, hour, minute int, start time.Time) (string, error) {
	return s.Create(ctx, Schedule{Name: name, TopicTemplate: topicTemplate, StartDate: start, Pattern: Pattern{Kind: KindWeekly, Hour: hour, Minute: minute, Weekdays: weekdays}})
}

func (s *Scheduler) CreateMonthly(ctx context.Context, name, topicTemplate string, daysOfMonth []int, hour, minute int, start time.Time) (string, error) {
	return s.Create(ctx, Schedule{Name: name, TopicTemplate: topicTemplate, StartDate: start, Pattern: Pattern{Kind: KindMonthly, Hour: hour, Minute: minute, DaysOfMonth: daysOfMonth}})
}

func (s *Scheduler) CreateInterval(ctx context.Context, name, topicTemplate string, every time.Duration, start time.Time) (string, error) {
	return s.Create(ctx, Schedule{Name: name, TopicTemplate: topicTemplate, StartDate: start, Pattern: Pattern{Kind: KindInterval, Every: every}})
}

func (s *Scheduler) CreateCron(ctx context.Context, name, topicTemplate, expr string, start time.Time) (string, error) {
	pattern, err := ParseCron(expr)
	if err != nil {
		return "", err
	}
	return s.Create(ctx, Schedule{Name: name, TopicTemplate: topicTemplate, StartDate: start, Pattern: pattern})
}

// List returns all schedules.
func (s *Scheduler) List() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	return out
}

// Get returns a schedule by id.
func (s *Scheduler) Get(id string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	if !ok {
		return Schedule{}, false
	}
	return *sc, true
}

// Pause disables fire-time evaluation for a schedule without deleting it.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

// Resume re-enables a paused schedule.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

func (s *Scheduler) setEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	sc, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: schedule %s", job.ErrNotFound, id)
	}
	sc.Enabled = enabled
	cp := *sc
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertSchedule(ctx, cp); err != nil {
			s.logger.Error("failed to persist schedule state", "id", id, "error", err)
		}
	}
	return nil
}

// Delete removes a schedule; it does not affect jobs already
// materialised from it.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.schedules[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: schedule %s", job.ErrNotFound, id)
	}
	delete(s.schedules, id)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteSchedule(ctx, id); err != nil {
			s.logger.Error("failed to delete schedule from store", "id", id, "error", err)
		}
	}
	return nil
}

// Restore loads persisted schedules at startup, without back-filling any
// fires missed while the process was down: each schedule's next fire is
// recomputed from "now", not from its last known nextFire.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	scheds, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}
	now := time.Now().In(s.loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range scheds {
		sc := scheds[i]
		if next, ok := NextFire(sc.Pattern, now.Add(-time.Second), s.loc); ok {
			sc.nextFire = next
		}
		s.schedules[sc.ID] = &sc
	}
	s.logger.Info("recurring schedules restored", "count", len(scheds))
	return nil
}

// tickCadence is min(60s, smallest configured interval / 4), per
// spec.md §4.3, recomputed on each loop iteration.
func (s *Scheduler) tickCadence() time.Duration {
	cadence := 60 * time.Second
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.schedules {
		if sc.Pattern.Kind == KindInterval && sc.Pattern.Every > 0 {
			if candidate := sc.Pattern.Every / 4; candidate < cadence {
				cadence = candidate
			}
		}
	}
	if cadence <= 0 {
		cadence = time.Second
	}
	return cadence
}

// Start begins the tick loop, which runs until ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.tickCadence()):
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// tick scans every enabled, non-expired schedule whose nextFire is due
// and materialises a job for each, bounded by the shared concurrency
// limiter and serialized per schedule (never two concurrent
// materialisations for the same schedule).
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().In(s.loc)

	s.mu.RLock()
	due := make([]*Schedule, 0)
	for _, sc := range s.schedules {
		if !sc.Enabled {
			continue
		}
		if sc.EndDate != nil && !now.Before(*sc.EndDate) {
			continue
		}
		if !sc.nextFire.IsZero() && !now.Before(sc.nextFire) {
			due = append(due, sc)
		}
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sc := range due {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(sc *Schedule) {
			defer wg.Done()
			defer s.limiter.Release(1)
			s.materialize(ctx, sc, now)
		}(sc)
	}
	wg.Wait()
}

// materialize fires one schedule: substitutes template tokens against
// the fire time, submits a job request, and advances nextFire strictly
// forward to the first occurrence after now — exactly once per call,
// regardless of how many windows were missed.
func (s *Scheduler) materialize(ctx context.Context, sc *Schedule, now time.Time) {
	fireTime := sc.nextFire

	req := job.Request{
		Topic:           substitute(sc.TopicTemplate, fireTime, s.loc),
		Style:           sc.Style,
		DurationSeconds: sc.DurationSeconds,
		Tags:            sc.Tags,
		Category:        sc.Category,
		Privacy:         sc.Privacy,
		Priority:        sc.Priority,
		// ScheduledAt is the tick's "now", not the stale fireTime: the
		// tick loop only wakes every tickCadence (up to 60s), so
		// fireTime can already be past Validate's scheduleGrace window
		// by the time a due schedule is noticed. The fire time itself
		// is still what template substitution uses.
		ScheduledAt: now,
		ScheduleID:  sc.ID,
	}

	if _, err := s.submitter.Schedule(req); err != nil {
		s.logger.Error("failed to materialise recurring job", "schedule_id", sc.ID, "fire_time", fireTime, "error", err)
	} else {
		s.logger.Info("recurring job materialised", "schedule_id", sc.ID, "fire_time", fireTime)
	}

	// Advance from now when the cursor is stale, so windows missed while
	// asleep are skipped instead of firing one per tick.
	after := fireTime
	if now.After(after) {
		after = now
	}
	next, ok := NextFire(sc.Pattern, after, s.loc)

	s.mu.Lock()
	if ok {
		sc.nextFire = next
	} else {
		sc.Enabled = false
	}
	cp := *sc
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertSchedule(ctx, cp); err != nil {
			s.logger.Error("failed to persist schedule after fire", "id", sc.ID, "error", err)
		}
	}
}
