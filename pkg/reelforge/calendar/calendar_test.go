package calendar

import (
	"errors"
	"testing"
	"time"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReserveRejectsOverlap(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3})
	start := mustTime("2030-01-01T10:00:00Z")

	if _, err := m.Reserve(start, time.Hour, "topic A", ""); err != nil {
		t.Fatalf("first reservation: %v", err)
	}
	if _, err := m.Reserve(start.Add(30*time.Minute), time.Hour, "topic B", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on overlap, got %v", err)
	}
}

func TestReserveEnforcesMinGap(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3})
	start := mustTime("2030-01-01T10:00:00Z")
	if _, err := m.Reserve(start, time.Hour, "A", ""); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// 3 hours later: within gap, should conflict.
	if _, err := m.Reserve(start.Add(3*time.Hour), time.Hour, "B", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected gap conflict, got %v", err)
	}
	// 7 hours later: satisfies the 6h gap.
	if _, err := m.Reserve(start.Add(7*time.Hour), time.Hour, "C", ""); err != nil {
		t.Fatalf("expected success past the gap, got %v", err)
	}
}

func TestReserveEnforcesMaxPerDay(t *testing.T) {
	m := New(Config{MinGap: time.Hour, MaxPerDay: 2})
	start := mustTime("2030-01-01T00:00:00Z")
	if _, err := m.Reserve(start.Add(2*time.Hour), time.Hour, "A", ""); err != nil {
		t.Fatalf("reserve 1: %v", err)
	}
	if _, err := m.Reserve(start.Add(6*time.Hour), time.Hour, "B", ""); err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	if _, err := m.Reserve(start.Add(10*time.Hour), time.Hour, "C", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected max-per-day conflict, got %v", err)
	}
}

func TestReserveBlackoutDate(t *testing.T) {
	blackout := mustTime("2030-01-01T00:00:00Z")
	m := New(Config{MinGap: time.Hour, MaxPerDay: 3, BlackoutDates: []time.Time{blackout}})
	if _, err := m.Reserve(mustTime("2030-01-01T10:00:00Z"), time.Hour, "A", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected blackout conflict, got %v", err)
	}
}

func TestReleaseThenReserveSucceeds(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3})
	start := mustTime("2030-01-01T10:00:00Z")
	slot, err := m.Reserve(start, time.Hour, "A", "")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := m.Release(slot.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := m.Reserve(start, time.Hour, "A again", ""); err != nil {
		t.Fatalf("expected reserve to succeed after release, got %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	m := New(Config{})
	if err := m.Release("unknown"); err != nil {
		t.Fatalf("releasing unknown/already-released slot should not error: %v", err)
	}
}

// S6 from spec.md: one slot at 10:00, min_gap=6h, preferred_hours=[10,14,18].
// suggest(3, from=2030-01-01, horizon=2) must return
// [18:00 day0, 10:00 day1, 14:00 day1].
func TestSuggestScenarioS6(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3, PreferredHours: []int{10, 14, 18}})
	if _, err := m.Reserve(mustTime("2030-01-01T10:00:00Z"), time.Hour, "existing", ""); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got := m.Suggest(3, mustTime("2030-01-01T00:00:00Z"), 2, nil)
	want := []time.Time{
		mustTime("2030-01-01T18:00:00Z"),
		mustTime("2030-01-02T10:00:00Z"),
		mustTime("2030-01-02T14:00:00Z"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d suggestions, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("suggestion %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConflictsDetectsInjectedOverlap(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3})
	// Restore bypasses Reserve's checks, simulating externally injected
	// inconsistency from a store.
	m.Restore(Slot{ID: "s1", StartTime: mustTime("2030-01-01T10:00:00Z"), EndTime: mustTime("2030-01-01T11:00:00Z"), Status: SlotReserved})
	m.Restore(Slot{ID: "s2", StartTime: mustTime("2030-01-01T10:30:00Z"), EndTime: mustTime("2030-01-01T11:30:00Z"), Status: SlotReserved})

	conflicts := m.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d: %v", len(conflicts), conflicts)
	}
}

func TestAddBlackoutDateRejectsReservation(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3, Location: time.UTC})
	day := mustTime("2030-02-01T00:00:00Z")
	m.AddBlackoutDate(day)

	_, err := m.Reserve(mustTime("2030-02-01T10:00:00Z"), time.Hour, "x", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on blacked-out date, got %v", err)
	}

	dates := m.BlackoutDates()
	if len(dates) != 1 {
		t.Fatalf("expected 1 blackout date, got %d", len(dates))
	}
}

func TestRemoveBlackoutDateAllowsReservation(t *testing.T) {
	m := New(Config{MinGap: 6 * time.Hour, MaxPerDay: 3, Location: time.UTC})
	day := mustTime("2030-02-01T00:00:00Z")
	m.AddBlackoutDate(day)
	m.RemoveBlackoutDate(day)

	if _, err := m.Reserve(mustTime("2030-02-01T10:00:00Z"), time.Hour, "x", ""); err != nil {
		t.Fatalf("expected reservation to succeed after removing blackout, got %v", err)
	}
	if len(m.BlackoutDates()) != 0 {
		t.Fatalf("expected 0 blackout dates after removal")
	}
}
