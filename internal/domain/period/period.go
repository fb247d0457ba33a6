// internal/domain/period/period.go
package period

import (
	"fmt"
	"time"
)

// Period is one scheduling epoch (a calendar quarter).
// Corresponds to the 'periods' table.
type Period struct {
	ID         int64
	Label      string    // e.g. 2025-Q4, unique
	OpenAt     time.Time // first instant of the quarter, stored in UTC
	CloseAt    time.Time // last second of the quarter, stored in UTC
	GenerateAt *time.Time
	Timezone   string
	CreatedAt  time.Time

	// Settings is attached by ListWithSettings; nil when none were saved yet.
	Settings *AutomationSettings
}

// Location loads the period's IANA timezone, falling back to UTC for an
// empty or unknown name.
func (p *Period) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Quarter identifies a calendar quarter.
type Quarter struct {
	Year int
	Q    int // 1..4
}

// QuarterOf returns the quarter containing t (in t's location).
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// Next returns the quarter following q.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// Label is the stable, unique period label for the quarter.
func (q Quarter) Label() string {
	return fmt.Sprintf("%d-Q%d", q.Year, q.Q)
}

// Start is midnight of the quarter's first day in loc.
func (q Quarter) Start(loc *time.Location) time.Time {
	return time.Date(q.Year, time.Month((q.Q-1)*3+1), 1, 0, 0, 0, 0, loc)
}

// LastDay is midnight of the quarter's last day in loc.
func (q Quarter) LastDay(loc *time.Location) time.Time {
	return q.Next().Start(loc).AddDate(0, 0, -1)
}

// End is the last second of the quarter in loc.
func (q Quarter) End(loc *time.Location) time.Time {
	d := q.LastDay(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
}

// Months lists the quarter's three months as YYYY-MM.
func (q Quarter) Months() []string {
	first := (q.Q-1)*3 + 1
	months := make([]string, 0, 3)
	for m := first; m < first+3; m++ {
		months = append(months, fmt.Sprintf("%04d-%02d", q.Year, m))
	}
	return months
}
