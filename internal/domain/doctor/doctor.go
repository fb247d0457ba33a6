package doctor

import (
	"database/sql"
	"strings"
	"time"
)

// RoleDoctor is the only identity role that ever receives reminders.
const RoleDoctor = "doctor"

// Doctor is an identity from the directory.
type Doctor struct {
	ID              string
	Email           sql.NullString
	FullName        string
	Role            string
	RemindersOptOut bool // global opt-out, distinct from per-month opted_out
}

// Reachable reports whether the doctor has a usable contact address.
func (d *Doctor) Reachable() bool {
	return d.Email.Valid && strings.TrimSpace(d.Email.String) != ""
}

// Recipient is a doctor resolved for one reminder batch.
type Recipient struct {
	UserID   string
	Email    string
	FullName string
}

// PeriodMonth is one doctor's commitment status for one month of a period.
// Corresponds to the 'doctor_period_months' table.
type PeriodMonth struct {
	UserID      string
	PeriodID    int64
	Month       string // YYYY-MM
	ValidatedAt sql.NullTime
	Locked      bool
	OptedOut    bool
	UpdatedAt   time.Time
}

// NeedsReminding reports whether this month row still requires action.
func (m *PeriodMonth) NeedsReminding() bool {
	return !m.Locked && !m.OptedOut && !m.ValidatedAt.Valid
}

// NeedsReminding applies the period-level rule: a doctor still needs
// reminding if any month row is open, or if a month with slots has no row.
func NeedsReminding(rows []*PeriodMonth, monthsWithSlots []string) bool {
	byMonth := make(map[string]*PeriodMonth, len(rows))
	for _, r := range rows {
		if r.NeedsReminding() {
			return true
		}
		byMonth[r.Month] = r
	}
	for _, m := range monthsWithSlots {
		if _, ok := byMonth[m]; !ok {
			return true
		}
	}
	return false
}
