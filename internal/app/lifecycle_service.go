// internal/app/lifecycle_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/slot"
	idb "oncall_reminder_engine/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// DefaultOpenLeadDays is how long before a quarter starts its period is created.
const DefaultOpenLeadDays = 45

// quarterLookahead is the number of quarters after the current one considered.
const quarterLookahead = 3

const lifecycleLockName = "period-lifecycle"

// LifecycleResult reports what one lifecycle run did.
type LifecycleResult struct {
	Created      bool   `json:"created"`
	Repaired     bool   `json:"repaired"`
	Label        string `json:"label,omitempty"`
	PeriodID     int64  `json:"period_id,omitempty"`
	SlotsCreated int    `json:"slots_created"`
	Note         string `json:"note,omitempty"`
}

// LifecycleService creates upcoming periods ahead of time and generates
// their calendar.
type LifecycleService struct {
	periods      period.Repository
	slots        slot.Repository
	settings     *SettingsService
	locker       Locker
	location     *time.Location
	openLeadDays int
	logger       *logrus.Entry
}

func NewLifecycleService(
	pr period.Repository,
	sr slot.Repository,
	settings *SettingsService,
	locker Locker,
	loc *time.Location,
	openLeadDays int,
	logger *logrus.Entry,
) *LifecycleService {
	if loc == nil {
		loc = time.UTC
	}
	if openLeadDays <= 0 {
		openLeadDays = DefaultOpenLeadDays
	}
	if locker == nil {
		locker = NoopLocker{}
	}
	return &LifecycleService{
		periods:      pr,
		slots:        sr,
		settings:     settings,
		locker:       locker,
		location:     loc,
		openLeadDays: openLeadDays,
		logger:       logger,
	}
}

// EnsureUpcomingPeriod creates at most one period: the first of the current
// and next three quarters whose lead window contains now and which does not
// exist yet. A due period that exists without settings or slots is repaired
// instead.
func (s *LifecycleService) EnsureUpcomingPeriod(ctx context.Context, now time.Time) (*LifecycleResult, error) {
	release, ok, err := s.locker.TryLock(ctx, lifecycleLockName, 5*time.Minute)
	if err != nil {
		s.logger.WithError(err).Warn("Lifecycle lock unavailable, continuing without it")
	} else if !ok {
		s.logger.Info("Another lifecycle run holds the lock, skipping")
		return &LifecycleResult{Note: "another run in progress"}, nil
	} else {
		defer release()
	}

	local := now.In(s.location)
	q := period.QuarterOf(local)
	for i := 0; i <= quarterLookahead; i++ {
		start := q.Start(s.location)
		leadStart := start.AddDate(0, 0, -s.openLeadDays)
		if !local.Before(leadStart) && local.Before(start) {
			return s.ensureQuarter(ctx, q)
		}
		q = q.Next()
	}

	s.logger.WithField("now", local.Format(time.RFC3339)).Debug("No quarter in its lead window")
	return &LifecycleResult{}, nil
}

func (s *LifecycleService) ensureQuarter(ctx context.Context, q period.Quarter) (*LifecycleResult, error) {
	label := q.Label()
	log := s.logger.WithField("label", label)

	existing, err := s.periods.GetByLabel(ctx, label)
	switch {
	case err == nil:
		return s.repairPeriod(ctx, existing, log)
	case !errors.Is(err, idb.ErrPeriodNotFound):
		return nil, fmt.Errorf("failed to look up period %s: %w", label, err)
	}

	p := &period.Period{
		Label:    label,
		OpenAt:   q.Start(s.location).UTC(),
		CloseAt:  q.End(s.location).UTC(),
		Timezone: s.location.String(),
	}
	if err := s.periods.Create(ctx, p); err != nil {
		if errors.Is(err, idb.ErrDuplicatePeriodLabel) {
			log.Info("Period created concurrently, skipping")
			return &LifecycleResult{Label: label, Note: "created concurrently"}, nil
		}
		return nil, fmt.Errorf("failed to create period %s: %w", label, err)
	}
	log = log.WithField("period_id", p.ID)
	log.Info("Period created")

	if err := s.settings.Save(ctx, p, period.DefaultSettings(p.ID)); err != nil {
		// Slots are still generated; the next run applies the missing settings.
		log.WithError(err).Error("Failed to save default automation settings")
	}

	created, err := s.generateSlots(ctx, p)
	if err != nil {
		return nil, err
	}
	return &LifecycleResult{Created: true, Label: label, PeriodID: p.ID, SlotsCreated: created}, nil
}

// repairPeriod completes a period left half-created by an earlier run: it
// applies default settings when none are stored and generates slots when
// there are none.
func (s *LifecycleService) repairPeriod(ctx context.Context, p *period.Period, log *logrus.Entry) (*LifecycleResult, error) {
	res := &LifecycleResult{Label: p.Label, PeriodID: p.ID}
	log = log.WithField("period_id", p.ID)

	_, err := s.periods.GetSettings(ctx, p.ID)
	switch {
	case errors.Is(err, idb.ErrSettingsNotFound):
		log.Warn("Period exists without automation settings, applying defaults")
		if _, err := s.settings.RecomputeForPeriod(ctx, p.ID); err != nil {
			return nil, err
		}
		res.Repaired = true
	case err != nil:
		return nil, fmt.Errorf("failed to get automation settings for period %s: %w", p.Label, err)
	}

	n, err := s.slots.CountByPeriod(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count slots for period %s: %w", p.Label, err)
	}
	if n == 0 {
		log.Warn("Period exists without slots, generating them")
		created, err := s.generateSlots(ctx, p)
		if err != nil {
			return nil, err
		}
		res.Repaired = true
		res.SlotsCreated = created
	}

	if !res.Repaired {
		log.Debug("Period already exists, nothing to do")
	}
	return res, nil
}

func (s *LifecycleService) generateSlots(ctx context.Context, p *period.Period) (int, error) {
	loc := p.Location()
	slots := slot.Generate(p.ID, p.OpenAt.In(loc), p.CloseAt.In(loc), loc)
	if err := s.slots.BulkCreate(ctx, slots); err != nil {
		return 0, fmt.Errorf("failed to create slots for period %s: %w", p.Label, err)
	}
	s.logger.WithFields(logrus.Fields{"period_id": p.ID, "slots": len(slots)}).Info("Slots generated")
	return len(slots), nil
}
