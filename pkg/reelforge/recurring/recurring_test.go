package recurring

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/reelforge/scheduler/pkg/reelforge/job"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	reqs  []job.Request
	errFn func(job.Request) error
}

func (f *fakeSubmitter) Schedule(req job.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFn != nil {
		if err := f.errFn(req); err != nil {
			return "", err
		}
	}
	f.reqs = append(f.reqs, req)
	return "job-id", nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// S5 from spec.md: a weekly schedule on Mon/Wed/Fri at 09:00, created
// with a start date that is itself a Monday before 09:00, fires first
// on that same Monday.
func TestWeeklyScheduleFirstFireSameDay(t *testing.T) {
	sub := &fakeSubmitter{}
	sched := New(nil, sub, semaphore.NewWeighted(4), time.UTC, nil)

	start := mustUTC("2030-01-07T08:00:00Z") // a Monday
	id, err := sched.CreateWeekly(context.Background(), "weekly-post", "Update for {weekday}", []time.Weekday{time.Monday, time.Wednesday, time.Friday}, 9, 0, start)
	if err != nil {
		t.Fatalf("CreateWeekly: %v", err)
	}

	got, ok := sched.Get(id)
	if !ok {
		t.Fatal("schedule not found after create")
	}
	want := mustUTC("2030-01-07T09:00:00Z")
	if !got.nextFire.Equal(want) {
		t.Fatalf("expected first fire %v, got %v", want, got.nextFire)
	}
}

// Firing while asleep (spec.md §8): a daily schedule whose nextFire
// passed long ago materialises exactly once on the next tick, with
// nextFire advanced to the following future occurrence, not
// back-filling every missed window.
func TestTickFiresOnceDespiteLongSleep(t *testing.T) {
	sub := &fakeSubmitter{}
	sched := New(nil, sub, semaphore.NewWeighted(4), time.UTC, nil)

	id, err := sched.CreateDaily(context.Background(), "daily-post", "Daily update {date}", 9, 0, mustUTC("2030-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("CreateDaily: %v", err)
	}

	sched.mu.Lock()
	sc := sched.schedules[id]
	sc.nextFire = mustUTC("2020-01-01T09:00:00Z")
	sched.mu.Unlock()

	// Simulate waking up long after the schedule's nextFire.
	sched.tick(context.Background())

	if got := sub.count(); got != 1 {
		t.Fatalf("expected exactly 1 materialised job despite long sleep, got %d", got)
	}

	got, _ := sched.Get(id)
	if !got.nextFire.After(mustUTC("2020-01-01T09:00:00Z")) {
		t.Fatalf("expected nextFire to advance past the fired time, got %v", got.nextFire)
	}
}

func TestTickSkipsDisabledAndExpiredSchedules(t *testing.T) {
	sub := &fakeSubmitter{}
	sched := New(nil, sub, semaphore.NewWeighted(4), time.UTC, nil)

	pastEnd := mustUTC("2020-01-01T00:00:00Z")
	idExpired, _ := sched.CreateDaily(context.Background(), "expired", "x", 9, 0, mustUTC("2019-12-01T00:00:00Z"))
	sched.mu.Lock()
	sched.schedules[idExpired].EndDate = &pastEnd
	sched.schedules[idExpired].nextFire = mustUTC("2019-12-02T09:00:00Z")
	sched.mu.Unlock()

	idPaused, _ := sched.CreateDaily(context.Background(), "paused", "x", 9, 0, mustUTC("2030-01-01T00:00:00Z"))
	if err := sched.Pause(context.Background(), idPaused); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	sched.mu.Lock()
	sched.schedules[idPaused].nextFire = mustUTC("2020-01-01T09:00:00Z")
	sched.mu.Unlock()

	sched.tick(context.Background())

	if got := sub.count(); got != 0 {
		t.Fatalf("expected no jobs materialised for disabled/expired schedules, got %d", got)
	}
}

func TestPauseThenResumeReEnablesFiring(t *testing.T) {
	sub := &fakeSubmitter{}
	sched := New(nil, sub, semaphore.NewWeighted(4), time.UTC, nil)

	id, _ := sched.CreateDaily(context.Background(), "daily", "x", 9, 0, mustUTC("2030-01-01T00:00:00Z"))
	sched.mu.Lock()
	sched.schedules[id].nextFire = mustUTC("2020-01-01T09:00:00Z")
	sched.mu.Unlock()

	if err := sched.Pause(context.Background(), id); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	sched.tick(context.Background())
	if got := sub.count(); got != 0 {
		t.Fatalf("expected no fire while paused, got %d", got)
	}

	if err := sched.Resume(context.Background(), id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	sched.tick(context.Background())
	if got := sub.count(); got != 1 {
		t.Fatalf("expected fire after resume, got %d", got)
	}
}

func TestDeleteRemovesSchedule(t *testing.T) {
	sub := &fakeSubmitter{}
	sched := New(nil, sub, semaphore.NewWeighted(4), time.UTC, nil)

	id, _ := sched.CreateDaily(context.Background(), "daily", "x", 9, 0, mustUTC("2030-01-01T00:00:00Z"))
	if err := sched.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := sched.Get(id); ok {
		t.Fatal("expected schedule to be gone after delete")
	}
	if err := sched.Delete(context.Background(), id); err == nil {
		t.Fatal("expected error deleting an already-deleted schedule")
	}
}

func TestTemplateSubstitutionAppliedAtMaterialisation(t *testing.T) {
	sub := &fakeSubmitter{}
	sched := New(nil, sub, semaphore.NewWeighted(4), time.UTC, nil)

	id, _ := sched.CreateDaily(context.Background(), "daily", "Topic for {date} at {time}", 9, 0, mustUTC("2030-01-01T00:00:00Z"))
	sched.mu.Lock()
	sched.schedules[id].nextFire = mustUTC("2020-03-15T09:00:00Z")
	sched.mu.Unlock()

	sched.tick(context.Background())

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(sub.reqs))
	}
	want := "Topic for 2020-03-15 at 09:00"
	if sub.reqs[0].Topic != want {
		t.Fatalf("expected topic %q, got %q", want, sub.reqs[0].Topic)
	}
	if sub.reqs[0].ScheduleID != id {
		t.Fatalf("expected schedule id on request, got %q", sub.reqs[0].ScheduleID)
	}
}
