// internal/app/status_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"
	"oncall_reminder_engine/internal/domain/slot"

	"github.com/sirupsen/logrus"
)

// PeriodStatus is the operator view of one open period.
type PeriodStatus struct {
	PeriodID       int64           `json:"period_id"`
	Label          string          `json:"label"`
	OpenAt         time.Time       `json:"open_at"`
	GenerateAt     *time.Time      `json:"generate_at,omitempty"`
	AvailDeadline  *time.Time      `json:"avail_deadline,omitempty"`
	SlotMonths     []string        `json:"slot_months"`
	DoctorsTotal   int             `json:"doctors_total"`
	DoctorsPending int             `json:"doctors_pending"`
	DueKinds       []reminder.Kind `json:"due_kinds"`
}

// StatusService reports, per period not yet closed, how many reachable
// doctors still have to commit their availability.
type StatusService struct {
	periods period.Repository
	slots   slot.Repository
	months  doctor.MonthRepository
	doctors doctor.Repository
	policy  reminder.Policy
	logger  *logrus.Entry
}

func NewStatusService(pr period.Repository, sr slot.Repository, mr doctor.MonthRepository, dr doctor.Repository, policy reminder.Policy, logger *logrus.Entry) *StatusService {
	return &StatusService{periods: pr, slots: sr, months: mr, doctors: dr, policy: policy, logger: logger}
}

func (s *StatusService) Status(ctx context.Context, now time.Time) ([]PeriodStatus, error) {
	periods, err := s.periods.ListWithSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	doctors, err := s.doctors.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}

	var out []PeriodStatus
	for _, p := range periods {
		if now.After(p.CloseAt) {
			continue
		}
		st, err := s.periodStatus(ctx, p, doctors, now)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	s.logger.WithField("periods", len(out)).Debug("Status computed")
	return out, nil
}

func (s *StatusService) periodStatus(ctx context.Context, p *period.Period, doctors []*doctor.Doctor, now time.Time) (PeriodStatus, error) {
	st := PeriodStatus{
		PeriodID:   p.ID,
		Label:      p.Label,
		OpenAt:     p.OpenAt,
		GenerateAt: p.GenerateAt,
		DueKinds:   evaluatePeriod(p, now, s.policy),
	}
	if p.Settings != nil && !p.Settings.AvailDeadline.IsZero() {
		deadline := p.Settings.AvailDeadline
		st.AvailDeadline = &deadline
	}

	months, err := s.slots.MonthsWithSlots(ctx, p.ID)
	if err != nil {
		return st, fmt.Errorf("failed to list slot months for period %d: %w", p.ID, err)
	}
	st.SlotMonths = months

	rows, err := s.months.ListByPeriod(ctx, p.ID)
	if err != nil {
		return st, fmt.Errorf("failed to list month rows for period %d: %w", p.ID, err)
	}
	byUser := make(map[string][]*doctor.PeriodMonth)
	for _, r := range rows {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	for _, d := range doctors {
		if d.RemindersOptOut || !d.Reachable() {
			continue
		}
		st.DoctorsTotal++
		if doctor.NeedsReminding(byUser[d.ID], months) {
			st.DoctorsPending++
		}
	}
	return st, nil
}
