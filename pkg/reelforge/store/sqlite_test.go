package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	j := *job.New("job-1", job.Request{Topic: "test", DurationSeconds: 120, ScheduledAt: now}, now)
	j.Status = job.StatusScheduled

	if err := s.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Topic != "test" || got.Status != job.StatusScheduled {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

	pending := *job.New("j1", job.Request{Topic: "a", DurationSeconds: 60, ScheduledAt: now}, now)
	running := *job.New("j2", job.Request{Topic: "b", DurationSeconds: 60, ScheduledAt: now}, now)
	running.Status = job.StatusRunning

	if err := s.UpsertJob(ctx, pending); err != nil {
		t.Fatalf("UpsertJob pending: %v", err)
	}
	if err := s.UpsertJob(ctx, running); err != nil {
		t.Fatalf("UpsertJob running: %v", err)
	}

	runningStatus := job.StatusRunning
	got, err := s.ListJobs(ctx, job.Filter{Status: &runningStatus})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(got) != 1 || got[0].ID != "j2" {
		t.Fatalf("expected only j2, got %+v", got)
	}
}

func TestSlotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	slot := calendar.Slot{ID: "slot-1", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour), Status: calendar.SlotReserved, Topic: "x"}
	if err := s.UpsertSlot(ctx, slot); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	slots, err := s.ListSlots(ctx)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(slots) != 1 || slots[0].ID != "slot-1" {
		t.Fatalf("expected 1 slot, got %+v", slots)
	}
}

func TestScheduleRoundTripAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sched := recurring.Schedule{ID: "sched-1", Name: "daily", TopicTemplate: "x", Enabled: true}
	if err := s.UpsertSchedule(ctx, sched); err != nil {
		t.Fatalf("UpsertSchedule: %v", err)
	}

	scheds, err := s.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(scheds) != 1 || scheds[0].ID != "sched-1" {
		t.Fatalf("expected 1 schedule, got %+v", scheds)
	}

	if err := s.DeleteSchedule(ctx, "sched-1"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	scheds, err = s.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("ListSchedules after delete: %v", err)
	}
	if len(scheds) != 0 {
		t.Fatalf("expected 0 schedules after delete, got %+v", scheds)
	}
}

func TestHealthOK(t *testing.T) {
	s := openTestStore(t)
	if err := s.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
