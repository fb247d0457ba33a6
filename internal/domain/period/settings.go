// internal/domain/period/settings.go
package period

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when an offset is missing, negative or not a number.
const (
	DefaultSlotsGenerateBeforeDays    = 45
	DefaultAvailDeadlineBeforeDays    = 15
	DefaultPlanningGenerateBeforeDays = 7
)

// DefaultExtraReminderHours are the deadline tiers used when none are configured.
var DefaultExtraReminderHours = []int{48, 24, 1}

// AutomationSettings holds an admin's relative offsets for one period and the
// absolute instants derived from them.
// Corresponds to the 'automation_settings' table (one row per period).
type AutomationSettings struct {
	PeriodID                   int64 `json:"period_id"`
	SlotsGenerateBeforeDays    int   `json:"slots_generate_before_days"`
	AvailDeadlineBeforeDays    int   `json:"avail_deadline_before_days"`
	PlanningGenerateBeforeDays int   `json:"planning_generate_before_days"`
	WeeklyReminder             bool  `json:"weekly_reminder"`
	ExtraReminderHours         []int `json:"extra_reminder_hours"` // ordered set, descending
	LockAssignments            bool  `json:"lock_assignments"`

	// Derived, see Resolve.
	AvailOpenAt   time.Time `json:"avail_open_at"`
	AvailDeadline time.Time `json:"avail_deadline"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Offsets are the relative day counts an admin configures.
type Offsets struct {
	SlotsGenerateBeforeDays    int
	AvailDeadlineBeforeDays    int
	PlanningGenerateBeforeDays int
}

// Resolved are the absolute instants computed from Offsets.
type Resolved struct {
	AvailOpenAt   time.Time
	AvailDeadline time.Time
	GenerateAt    time.Time
}

// Resolve subtracts each offset, in whole calendar days, from openAt.
// Days are counted in loc so the derived instants keep openAt's wall time
// across DST changes. Results are returned in UTC.
func Resolve(openAt time.Time, loc *time.Location, o Offsets) Resolved {
	if loc == nil {
		loc = time.UTC
	}
	local := openAt.In(loc)
	return Resolved{
		AvailOpenAt:   local.AddDate(0, 0, -o.SlotsGenerateBeforeDays).UTC(),
		AvailDeadline: local.AddDate(0, 0, -o.AvailDeadlineBeforeDays).UTC(),
		GenerateAt:    local.AddDate(0, 0, -o.PlanningGenerateBeforeDays).UTC(),
	}
}

// Offsets returns the settings' current offsets.
func (s *AutomationSettings) Offsets() Offsets {
	return Offsets{
		SlotsGenerateBeforeDays:    s.SlotsGenerateBeforeDays,
		AvailDeadlineBeforeDays:    s.AvailDeadlineBeforeDays,
		PlanningGenerateBeforeDays: s.PlanningGenerateBeforeDays,
	}
}

// Apply copies the derived instants onto the settings.
func (s *AutomationSettings) Apply(r Resolved) {
	s.AvailOpenAt = r.AvailOpenAt
	s.AvailDeadline = r.AvailDeadline
}

// OffsetInput is a raw day offset. It decodes from a JSON string or number so
// form values and typed clients are both accepted.
type OffsetInput string

func (o *OffsetInput) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		*o = OffsetInput(x)
	case float64:
		*o = OffsetInput(strconv.FormatFloat(x, 'f', -1, 64))
	default:
		*o = ""
	}
	return nil
}

// SettingsInput is the raw, untrusted form of an admin's settings write.
// Nil fields keep their default.
type SettingsInput struct {
	SlotsGenerateBeforeDays    *OffsetInput `json:"slots_generate_before_days"`
	AvailDeadlineBeforeDays    *OffsetInput `json:"avail_deadline_before_days"`
	PlanningGenerateBeforeDays *OffsetInput `json:"planning_generate_before_days"`
	WeeklyReminder             *bool        `json:"weekly_reminder"`
	ExtraReminderHours         []int        `json:"extra_reminder_hours"`
	LockAssignments            *bool        `json:"lock_assignments"`
}

// DefaultSettings returns the settings used for a freshly created period.
func DefaultSettings(periodID int64) *AutomationSettings {
	return &AutomationSettings{
		PeriodID:                   periodID,
		SlotsGenerateBeforeDays:    DefaultSlotsGenerateBeforeDays,
		AvailDeadlineBeforeDays:    DefaultAvailDeadlineBeforeDays,
		PlanningGenerateBeforeDays: DefaultPlanningGenerateBeforeDays,
		WeeklyReminder:             true,
		ExtraReminderHours:         append([]int(nil), DefaultExtraReminderHours...),
	}
}

// Coerce turns raw input into settings, replacing every invalid offset with
// its documented default.
func (in SettingsInput) Coerce(periodID int64) *AutomationSettings {
	s := DefaultSettings(periodID)
	s.SlotsGenerateBeforeDays = CoerceOffset((*string)(in.SlotsGenerateBeforeDays), DefaultSlotsGenerateBeforeDays)
	s.AvailDeadlineBeforeDays = CoerceOffset((*string)(in.AvailDeadlineBeforeDays), DefaultAvailDeadlineBeforeDays)
	s.PlanningGenerateBeforeDays = CoerceOffset((*string)(in.PlanningGenerateBeforeDays), DefaultPlanningGenerateBeforeDays)
	if in.WeeklyReminder != nil {
		s.WeeklyReminder = *in.WeeklyReminder
	}
	if in.ExtraReminderHours != nil {
		s.ExtraReminderHours = NormalizeHours(in.ExtraReminderHours)
	}
	if in.LockAssignments != nil {
		s.LockAssignments = *in.LockAssignments
	}
	return s
}

// CoerceOffset parses a non-negative day count, returning def for nil,
// empty, non-numeric or negative input.
func CoerceOffset(raw *string, def int) int {
	if raw == nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(*raw))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// NormalizeHours drops non-positive values and duplicates and sorts the
// remaining hour offsets in descending order.
func NormalizeHours(hours []int) []int {
	seen := make(map[int]struct{}, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h <= 0 {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
