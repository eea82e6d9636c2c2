// Package calendar implements CalendarManager: an in-memory index of
// reserved production time slots that enforces gap/per-day limits,
// detects conflicts, and suggests optimal times.
package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the lifecycle state of a CalendarSlot.
type SlotStatus string

const (
	SlotReserved  SlotStatus = "reserved"
	SlotCompleted SlotStatus = "completed"
	SlotCancelled SlotStatus = "cancelled"
)

// Slot is a reserved window on the calendar associated with at most one
// job.
type Slot struct {
	ID        string     `json:"id"`
	JobID     string     `json:"job_id,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Topic     string     `json:"topic"`
	Status    SlotStatus `json:"status"`
}

func (s Slot) nonCancelled() bool { return s.Status != SlotCancelled }

// overlaps reports whether s and other occupy any common instant.
func (s Slot) overlaps(other Slot) bool {
	return s.StartTime.Before(other.EndTime) && other.StartTime.Before(s.EndTime)
}

// ErrConflict is returned by Reserve when the requested window cannot be
// granted under the configured invariants.
var ErrConflict = fmt.Errorf("calendar: conflict")

// Config holds the tunables from spec §4.4 / §6.
type Config struct {
	// MinGap is the minimum separation required between adjacent
	// non-cancelled slots. Default 6h.
	MinGap time.Duration
	// MaxPerDay caps non-cancelled slots per local date. Default 3.
	MaxPerDay int
	// PreferredHours lists local hours (0-23) used by Suggest, in
	// priority order.
	PreferredHours []int
	// BlackoutDates are local dates (truncated to midnight in Location)
	// on which no reservation is accepted.
	BlackoutDates []time.Time
	// Location is the timezone used for day-boundary and blackout-date
	// comparisons. Defaults to UTC.
	Location *time.Location
}

func (c Config) effective() Config {
	if c.MinGap <= 0 {
		c.MinGap = 6 * time.Hour
	}
	if c.MaxPerDay <= 0 {
		c.MaxPerDay = 3
	}
	if len(c.PreferredHours) == 0 {
		c.PreferredHours = []int{10, 14, 18}
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Manager is the CalendarManager: slots are held in a per-date ordered
// structure keyed by start time, guarded by a single mutex. Reservation
// is O(log n) with a neighbour lookup for the gap check; a full conflict
// scan is O(n).
type Manager struct {
	mu   sync.Mutex
	cfg  Config
	byID map[string]*Slot
	// byDate indexes slot IDs per local date, kept sorted by start time.
	byDate map[string][]string
}

// New constructs a CalendarManager with the given configuration.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg.effective(),
		byID:   make(map[string]*Slot),
		byDate: make(map[string][]string),
	}
}

func (m *Manager) dateKey(t time.Time) string {
	return t.In(m.cfg.Location).Format("2006-01-02")
}

// neighbourIDs returns the slot ids in start's local-date bucket plus the
// adjacent day's buckets on either side, so gap/overlap checks see slots
// just across a midnight boundary (e.g. 23:50 one day vs 00:10 the next)
// instead of only the candidate's own bucket.
func (m *Manager) neighbourIDs(start time.Time) []string {
	local := start.In(m.cfg.Location)
	keys := [3]string{
		m.dateKey(local.AddDate(0, 0, -1)),
		m.dateKey(local),
		m.dateKey(local.AddDate(0, 0, 1)),
	}
	var ids []string
	for _, k := range keys {
		ids = append(ids, m.byDate[k]...)
	}
	return ids
}

func (m *Manager) isBlackout(t time.Time) bool {
	day := t.In(m.cfg.Location).Truncate(24 * time.Hour)
	for _, b := range m.cfg.BlackoutDates {
		if b.In(m.cfg.Location).Truncate(24 * time.Hour).Equal(day) {
			return true
		}
	}
	return false
}

// Reserve attempts to reserve [start, start+duration) for jobID (which
// may be empty and bound later). It rejects overlaps with any
// non-cancelled slot, gaps smaller than MinGap to the nearest
// non-cancelled neighbour, more than MaxPerDay non-cancelled slots on
// the local date, and blacked-out dates.
func (m *Manager) Reserve(start time.Time, duration time.Duration, topic, jobID string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := start.Add(duration)
	candidate := Slot{StartTime: start, EndTime: end, Status: SlotReserved}

	if m.isBlackout(start) {
		return Slot{}, fmt.Errorf("%w: %s is a blackout date", ErrConflict, m.dateKey(start))
	}

	day := m.dateKey(start)
	count := 0
	for _, id := range m.byDate[day] {
		if m.byID[id].nonCancelled() {
			count++
		}
	}
	if count >= m.cfg.MaxPerDay {
		return Slot{}, fmt.Errorf("%w: %s already has %d slots (max %d)", ErrConflict, day, count, m.cfg.MaxPerDay)
	}

	for _, id := range m.neighbourIDs(start) {
		s := m.byID[id]
		if !s.nonCancelled() {
			continue
		}
		if s.overlaps(candidate) {
			return Slot{}, fmt.Errorf("%w: overlaps slot %s", ErrConflict, s.ID)
		}
		gap := gapBetween(*s, candidate)
		if gap < m.cfg.MinGap {
			return Slot{}, fmt.Errorf("%w: gap %s to slot %s is below minimum %s", ErrConflict, gap, s.ID, m.cfg.MinGap)
		}
	}

	candidate.ID = uuid.NewString()
	candidate.Topic = topic
	candidate.JobID = jobID

	m.put(&candidate)
	return candidate, nil
}

// put inserts or replaces a slot in both indices, maintaining per-date
// sort order by start time. Used by Reserve and by Restore (startup
// reload from the JobStore).
func (m *Manager) put(s *Slot) {
	day := m.dateKey(s.StartTime)
	if _, exists := m.byID[s.ID]; !exists {
		ids := m.byDate[day]
		idx := sort.Search(len(ids), func(i int) bool {
			return m.byID[ids[i]].StartTime.After(s.StartTime) || m.byID[ids[i]].StartTime.Equal(s.StartTime)
		})
		ids = append(ids, "")
		copy(ids[idx+1:], ids[idx:])
		ids[idx] = s.ID
		m.byDate[day] = ids
	}
	m.byID[s.ID] = s
}

// gapBetween returns the time separation between two non-overlapping
// slots: zero if they overlap (Reserve already rejects that case
// separately), otherwise the gap between the earlier slot's end and the
// later slot's start.
func gapBetween(a, b Slot) time.Duration {
	if a.StartTime.After(b.StartTime) {
		a, b = b, a
	}
	gap := b.StartTime.Sub(a.EndTime)
	if gap < 0 {
		return 0
	}
	return gap
}

// Restore re-inserts a previously persisted slot into the in-memory
// index without running conflict checks, used when rebuilding state from
// the JobStore at startup.
func (m *Manager) Restore(s Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.put(&cp)
}

// AddBlackoutDate registers a date (truncated to local midnight) on
// which Reserve and Suggest will refuse new reservations. Existing
// slots on that date are left untouched.
func (m *Manager) AddBlackoutDate(date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := date.In(m.cfg.Location).Truncate(24 * time.Hour)
	for _, b := range m.cfg.BlackoutDates {
		if b.Equal(day) {
			return
		}
	}
	m.cfg.BlackoutDates = append(m.cfg.BlackoutDates, day)
}

// RemoveBlackoutDate un-registers a previously blacked-out date.
func (m *Manager) RemoveBlackoutDate(date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := date.In(m.cfg.Location).Truncate(24 * time.Hour)
	out := m.cfg.BlackoutDates[:0]
	for _, b := range m.cfg.BlackoutDates {
		if !b.Equal(day) {
			out = append(out, b)
		}
	}
	m.cfg.BlackoutDates = out
}

// BlackoutDates returns a copy of the currently configured blackout
// dates.
func (m *Manager) BlackoutDates() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.cfg.BlackoutDates))
	copy(out, m.cfg.BlackoutDates)
	return out
}

// Release marks a slot CANCELLED. Idempotent: releasing an
// already-cancelled or unknown slot is not an error.
func (m *Manager) Release(slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[slotID]
	if !ok {
		return nil
	}
	s.Status = SlotCancelled
	return nil
}

// Complete marks a slot COMPLETED, called when its job completes.
func (m *Manager) Complete(slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[slotID]
	if !ok {
		return fmt.Errorf("calendar: slot %s not found", slotID)
	}
	s.Status = SlotCompleted
	return nil
}

// Get returns a copy of a slot by id.
func (m *Manager) Get(slotID string) (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[slotID]
	if !ok {
		return Slot{}, false
	}
	return *s, true
}

// DayView returns all slots reserved on the given local date, ordered by
// start time.
func (m *Manager) DayView(date time.Time) []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotsForDate(m.dateKey(date))
}

func (m *Manager) slotsForDate(day string) []Slot {
	ids := m.byDate[day]
	out := make([]Slot, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.byID[id])
	}
	return out
}

// WeekView returns all slots in the 7-day window starting on the local
// date containing `date`'s ISO week start (Monday).
func (m *Manager) WeekView(date time.Time) []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	local := date.In(m.cfg.Location)
	offset := (int(local.Weekday()) + 6) % 7 // days since Monday
	start := local.AddDate(0, 0, -offset).Truncate(24 * time.Hour)

	var out []Slot
	for i := 0; i < 7; i++ {
		out = append(out, m.slotsForDate(m.dateKey(start.AddDate(0, 0, i)))...)
	}
	return out
}

// MonthView returns all slots in the given calendar month.
func (m *Manager) MonthView(year int, month time.Month) []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Date(year, month, 1, 0, 0, 0, 0, m.cfg.Location)
	end := start.AddDate(0, 1, 0)

	var out []Slot
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, m.slotsForDate(m.dateKey(d))...)
	}
	return out
}

// Conflict describes a pair of slots that violate an invariant, used to
// diagnose externally injected inconsistencies (e.g. restored from a
// store that bypassed Reserve).
type Conflict struct {
	A, B   Slot
	Reason string
}

// Conflicts scans all non-cancelled slots and returns every pair that
// overlaps or is separated by less than MinGap.
func (m *Manager) Conflicts() []Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Slot
	for _, s := range m.byID {
		if s.nonCancelled() {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	var conflicts []Conflict
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[i].overlaps(all[j]) {
				conflicts = append(conflicts, Conflict{A: all[i], B: all[j], Reason: "overlap"})
				continue
			}
			gap := gapBetween(all[i], all[j])
			if gap < m.cfg.MinGap {
				conflicts = append(conflicts, Conflict{A: all[i], B: all[j], Reason: "gap below minimum"})
			}
		}
	}
	return conflicts
}

// Suggest returns up to count future times within horizonDays of `from`
// that would satisfy Reserve's constraints, without actually reserving
// them. Iterates day by day from `from`, trying preferredHours (or the
// manager's configured PreferredHours if nil) in order, so results are
// ordered by (earliest date, then preferred-hour proximity/order).
func (m *Manager) Suggest(count int, from time.Time, horizonDays int, preferredHours []int) []time.Time {
	if len(preferredHours) == 0 {
		preferredHours = m.cfg.PreferredHours
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []time.Time
	for d := 0; d <= horizonDays && len(out) < count; d++ {
		day := from.In(m.cfg.Location).AddDate(0, 0, d)
		if m.isBlackout(day) {
			continue
		}
		for _, hour := range preferredHours {
			if len(out) >= count {
				break
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, m.cfg.Location)
			if candidate.Before(from) {
				continue
			}
			if m.wouldReserve(candidate) {
				out = append(out, candidate)
			}
		}
	}
	return out
}

// wouldReserve checks Reserve's constraints for a 1-hour placeholder
// window without mutating state. Suggestions are advisory; the caller
// must still call Reserve to actually claim the slot.
func (m *Manager) wouldReserve(start time.Time) bool {
	day := m.dateKey(start)
	count := 0
	for _, id := range m.byDate[day] {
		if m.byID[id].nonCancelled() {
			count++
		}
	}
	if count >= m.cfg.MaxPerDay {
		return false
	}

	candidate := Slot{StartTime: start, EndTime: start.Add(time.Hour)}
	for _, id := range m.neighbourIDs(start) {
		s := m.byID[id]
		if !s.nonCancelled() {
			continue
		}
		if s.overlaps(candidate) {
			return false
		}
		if gapBetween(*s, candidate) < m.cfg.MinGap {
			return false
		}
	}
	return true
}
