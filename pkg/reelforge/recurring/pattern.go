package recurring

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind identifies which pattern shape a Schedule uses.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// Pattern describes when a RecurringSchedule fires. Only the fields
// relevant to Kind are populated; the rest are zero.
type Pattern struct {
	Kind Kind

	// Daily / Weekly / Monthly: time of day to fire.
	Hour   int
	Minute int

	// Weekly: weekdays to fire on.
	Weekdays []time.Weekday

	// Monthly: days of month (1-31) to fire on. A day that does not
	// exist in a given month (e.g. 31 in April) is silently skipped for
	// that month, not rescheduled.
	DaysOfMonth []int

	// Interval: fixed period from the schedule's start date.
	Every time.Duration

	// Cron: standard 5-field minute/hour/dom/month/dow expression,
	// evaluated in the schedule's timezone. Parsed and validated at
	// schedule-creation time (see ParseCron), never at fire time, per
	// the redesign guidance in spec.md §9.
	Cron string

	cronSchedule cron.Schedule
}

// cronParser rejects descriptors/seconds extensions: standard 5-field
// grammar only, per spec.md §9 "Cron parsing" redesign flag.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a cron expression eagerly and returns a Pattern
// ready to fire. Call this at schedule-creation time so malformed
// expressions are rejected immediately instead of silently never firing.
func ParseCron(expr string) (Pattern, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Pattern{Kind: KindCron, Cron: expr, cronSchedule: sched}, nil
}

func weekdaySet(days []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

func dayOfMonthSet(days []int) map[int]bool {
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

// NextFire returns the next fire time strictly after `after`, in loc.
// It never back-fills: callers always pass the last-known fire time (or
// now) as `after` and get exactly the next future occurrence, so a
// process asleep across multiple fire windows produces exactly one job
// dated at the next future fire, per spec.md §4.3/§8.
func NextFire(p Pattern, after time.Time, loc *time.Location) (time.Time, bool) {
	after = after.In(loc)

	switch p.Kind {
	case KindDaily:
		return nextDailyLike(after, loc, p.Hour, p.Minute, nil, nil)
	case KindWeekly:
		return nextDailyLike(after, loc, p.Hour, p.Minute, weekdaySet(p.Weekdays), nil)
	case KindMonthly:
		return nextDailyLike(after, loc, p.Hour, p.Minute, nil, dayOfMonthSet(p.DaysOfMonth))
	case KindInterval:
		if p.Every <= 0 {
			return time.Time{}, false
		}
		// Advance from `after` by whole intervals; since interval has no
		// fixed origin here (the caller anchors it via start_date
		// externally), simply step forward one interval.
		return after.Add(p.Every), true
	case KindCron:
		sched := p.cronSchedule
		if sched == nil {
			parsed, err := cronParser.Parse(p.Cron)
			if err != nil {
				return time.Time{}, false
			}
			sched = parsed
		}
		return sched.Next(after), true
	default:
		return time.Time{}, false
	}
}

// nextDailyLike scans forward day by day from `after` looking for the
// next instant at hour:minute that satisfies the optional weekday/
// day-of-month filters. Bounded to 400 days to guarantee termination
// even for an impossible day-of-month set.
func nextDailyLike(after time.Time, loc *time.Location, hour, minute int, weekdays map[time.Weekday]bool, daysOfMonth map[int]bool) (time.Time, bool) {
	day := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, loc)
	if !day.After(after) {
		day = day.AddDate(0, 0, 1)
	}

	for i := 0; i < 400; i++ {
		ok := true
		if weekdays != nil && !weekdays[day.Weekday()] {
			ok = false
		}
		if daysOfMonth != nil && !daysOfMonth[day.Day()] {
			ok = false
		}
		if ok {
			return day, true
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}
