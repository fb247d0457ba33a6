// internal/domain/slot/slot.go
package slot

import (
	"context"
	"time"
)

// Kind is the weekday-dependent type of a bookable block.
type Kind string

const (
	KindWeekdayEvening    Kind = "weekday_evening"    // Mon-Fri 20:00-00:00
	KindSaturdayAfternoon Kind = "saturday_afternoon" // Sat 12:00-18:00
	KindSaturdayEvening   Kind = "saturday_evening"   // Sat 18:00-00:00
	KindSundayMorning     Kind = "sunday_morning"     // Sun 08:00-14:00
	KindSundayAfternoon   Kind = "sunday_afternoon"   // Sun 14:00-20:00
	KindSundayEvening     Kind = "sunday_evening"     // Sun 20:00-00:00
)

// Slot is one bookable time-block within a period.
// Corresponds to the 'slots' table; (period_id, date, kind) is unique.
type Slot struct {
	ID       int64
	PeriodID int64
	Date     time.Time // calendar date of the block start, midnight UTC
	StartTS  time.Time // UTC
	EndTS    time.Time // UTC
	Kind     Kind
}

// Repository defines operations for persisting generated slots.
type Repository interface {
	CountByPeriod(ctx context.Context, periodID int64) (int, error)
	BulkCreate(ctx context.Context, slots []*Slot) error
	// MonthsWithSlots lists the YYYY-MM months of a period that contain slots.
	MonthsWithSlots(ctx context.Context, periodID int64) ([]string, error)
}
