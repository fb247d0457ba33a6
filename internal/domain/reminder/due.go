// internal/domain/reminder/due.go
package reminder

import (
	"time"
)

// Policy holds the time-window constants of the evaluator. They encode an
// assumption about how often the trigger runs.
type Policy struct {
	// DeadlineTolerance is how far |deadline - now| may be from a tier's
	// hour offset and still fire that tier.
	DeadlineTolerance time.Duration
	// FiringWindow is the length of the weekly, opening and assignment windows.
	FiringWindow time.Duration
	WeeklyWeekday time.Weekday
	WeeklyHour    int
}

// DefaultPolicy assumes the tick runs at least once per hour.
func DefaultPolicy() Policy {
	return Policy{
		DeadlineTolerance: 15 * time.Minute,
		FiringWindow:      time.Hour,
		WeeklyWeekday:     time.Monday,
		WeeklyHour:        9,
	}
}

// DueInput is everything Evaluate needs for one period.
type DueInput struct {
	Now           time.Time
	Deadline      *time.Time
	AvailOpenAt   *time.Time
	CreatedAt     *time.Time // the opening window never starts before this
	WeeklyEnabled bool
	ExtraHours    []int // descending; see period.NormalizeHours
	Location      *time.Location
}

// Evaluate returns the reminder kinds due at in.Now, in firing order:
// weekly, deadline tiers, opening. It has no side effects and never
// consults the ledger.
//
// Nothing is due without a deadline or once the deadline has passed.
func Evaluate(in DueInput, p Policy) []Kind {
	if in.Deadline == nil || !in.Now.Before(*in.Deadline) {
		return nil
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	var kinds []Kind

	if in.WeeklyEnabled && inWeeklyWindow(in.Now.In(loc), p) {
		kinds = append(kinds, KindWeekly)
	}

	remaining := in.Deadline.Sub(in.Now)
	seen := make(map[int]struct{}, len(in.ExtraHours))
	for _, h := range in.ExtraHours {
		if h <= 0 {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		diff := remaining - time.Duration(h)*time.Hour
		if diff < 0 {
			diff = -diff
		}
		if diff <= p.DeadlineTolerance {
			kinds = append(kinds, DeadlineKind(h))
		}
	}

	if in.AvailOpenAt != nil && inWindow(in.Now, openingStart(in), p.FiringWindow) {
		kinds = append(kinds, KindOpening)
	}

	return kinds
}

// openingStart is the later of AvailOpenAt and CreatedAt, so a period
// stored after its availability opened still announces it once.
func openingStart(in DueInput) time.Time {
	start := *in.AvailOpenAt
	if in.CreatedAt != nil && in.CreatedAt.After(start) {
		return *in.CreatedAt
	}
	return start
}

// inWeeklyWindow matches the configured weekday and the first FiringWindow
// after the configured hour, in local time.
func inWeeklyWindow(local time.Time, p Policy) bool {
	if local.Weekday() != p.WeeklyWeekday {
		return false
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), p.WeeklyHour, 0, 0, 0, local.Location())
	return inWindow(local, start, p.FiringWindow)
}

func inWindow(now, start time.Time, window time.Duration) bool {
	return !now.Before(start) && now.Before(start.Add(window))
}

// AssignmentWindow returns the [from, to) range of slot start times that are
// due for an assignment reminder with the given lead time.
func AssignmentWindow(now time.Time, leadDays int, p Policy) (time.Time, time.Time) {
	from := now.Add(time.Duration(leadDays) * 24 * time.Hour)
	return from, from.Add(p.FiringWindow)
}
