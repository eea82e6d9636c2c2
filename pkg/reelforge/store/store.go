// Package store implements JobStore: durable persistence for jobs,
// calendar slots, and recurring schedules, over a pluggable SQL
// substrate (sqlite or postgres, chosen by JOB_STORE_URL's scheme).
package store

import (
	"context"
	"time"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

// JobStore is the persistence contract the core depends on. All methods
// are synchronous from the core's perspective; the core does not assume
// cross-method transactions except where explicitly noted in the spec
// (create-job + reserve-slot, implemented one level up in
// ContentScheduler, not here).
type JobStore interface {
	UpsertJob(ctx context.Context, j job.Job) error
	GetJob(ctx context.Context, id string) (job.Job, error)
	ListJobs(ctx context.Context, filter job.Filter) ([]job.Job, error)
	DeleteJob(ctx context.Context, id string) error

	UpsertSlot(ctx context.Context, s calendar.Slot) error
	ListSlots(ctx context.Context) ([]calendar.Slot, error)

	UpsertSchedule(ctx context.Context, s recurring.Schedule) error
	ListSchedules(ctx context.Context) ([]recurring.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Health reports whether the underlying substrate is reachable.
	Health(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// HealthStatus is a liveness record for a JobStore. GET /api/health does
// not use it; that handler answers without querying the store.
type HealthStatus struct {
	Healthy   bool
	Error     string
	CheckedAt time.Time
}
