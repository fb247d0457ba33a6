// internal/domain/slot/calendar.go
package slot

import "time"

// block is a wall-clock range on one day. endHour 24 means midnight of the
// following day.
type block struct {
	kind      Kind
	startHour int
	endHour   int
}

var (
	weekdayBlocks = []block{
		{KindWeekdayEvening, 20, 24},
	}
	saturdayBlocks = []block{
		{KindSaturdayAfternoon, 12, 18},
		{KindSaturdayEvening, 18, 24},
	}
	sundayBlocks = []block{
		{KindSundayMorning, 8, 14},
		{KindSundayAfternoon, 14, 20},
		{KindSundayEvening, 20, 24},
	}
)

func blocksFor(wd time.Weekday) []block {
	switch wd {
	case time.Saturday:
		return saturdayBlocks
	case time.Sunday:
		return sundayBlocks
	default:
		return weekdayBlocks
	}
}

// Generate expands every calendar day in [start, end] (inclusive, by date)
// into its fixed block pattern. Boundaries are wall-clock times in loc and
// are stored in UTC; a block ending at 00:00 ends on the following date.
//
// Generate does not deduplicate: callers must check for existing slots of the
// period before persisting.
func Generate(periodID int64, start, end time.Time, loc *time.Location) []*Slot {
	if loc == nil {
		loc = time.UTC
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)

	var out []*Slot
	for !day.After(last) {
		date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		for _, b := range blocksFor(day.Weekday()) {
			startTS := time.Date(day.Year(), day.Month(), day.Day(), b.startHour, 0, 0, 0, loc)
			// endHour 24 normalises to 00:00 on the next date.
			endTS := time.Date(day.Year(), day.Month(), day.Day(), b.endHour, 0, 0, 0, loc)
			out = append(out, &Slot{
				PeriodID: periodID,
				Date:     date,
				StartTS:  startTS.UTC(),
				EndTS:    endTS.UTC(),
				Kind:     b.kind,
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Expected is the slot count Generate produces for [start, end]:
// one per weekday, two per Saturday and three per Sunday.
func Expected(start, end time.Time) int {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	n := 0
	for !day.After(last) {
		n += len(blocksFor(day.Weekday()))
		day = day.AddDate(0, 0, 1)
	}
	return n
}
