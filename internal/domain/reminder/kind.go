// internal/domain/reminder/kind.go
package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is a category of reminder whose firing condition is time-based.
type Kind string

const (
	KindWeekly       Kind = "weekly"
	KindDeadline48   Kind = "deadline_48"
	KindDeadline24   Kind = "deadline_24"
	KindDeadline1    Kind = "deadline_1"
	KindOpening      Kind = "opening"
	KindAssignmentJ1 Kind = "assignment_j1"
	KindAssignmentJ7 Kind = "assignment_j7"
)

const deadlinePrefix = "deadline_"

// DeadlineKind returns the deadline tier kind for an hour offset.
func DeadlineKind(hours int) Kind {
	return Kind(deadlinePrefix + strconv.Itoa(hours))
}

// DeadlineHours returns the hour offset of a deadline tier kind.
func (k Kind) DeadlineHours() (int, bool) {
	if !strings.HasPrefix(string(k), deadlinePrefix) {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimPrefix(string(k), deadlinePrefix))
	if err != nil {
		return 0, false
	}
	return h, true
}

// AssignmentKind returns the per-slot reminder kind for a lead time in days.
func AssignmentKind(days int) Kind {
	return Kind(fmt.Sprintf("assignment_j%d", days))
}

// IsAssignment reports whether k is a per-slot assignment reminder.
func (k Kind) IsAssignment() bool {
	return strings.HasPrefix(string(k), "assignment_j")
}

// Valid reports whether k is a known kind or a well-formed deadline or
// assignment tier.
func (k Kind) Valid() bool {
	switch k {
	case KindWeekly, KindOpening:
		return true
	}
	if h, ok := k.DeadlineHours(); ok {
		return h > 0
	}
	if k.IsAssignment() {
		days, err := strconv.Atoi(strings.TrimPrefix(string(k), "assignment_j"))
		return err == nil && days > 0
	}
	return false
}

// WeeklyWindowKey is the ISO week of now in loc, e.g. 2025-W38.
func WeeklyWindowKey(now time.Time, loc *time.Location) string {
	year, week := now.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// DeadlineWindowKey identifies one deadline tier of one deadline, e.g.
// 2025-09-16T00:00:00Z:48h.
func DeadlineWindowKey(deadline time.Time, hours int) string {
	return fmt.Sprintf("%s:%dh", deadline.UTC().Format(time.RFC3339), hours)
}

// OpeningWindowKey identifies one availability opening.
func OpeningWindowKey(availOpenAt time.Time) string {
	return "open:" + availOpenAt.UTC().Format(time.RFC3339)
}

// SlotWindowKey identifies a per-slot reminder.
func SlotWindowKey(slotID int64) string {
	return "slot:" + strconv.FormatInt(slotID, 10)
}
