// internal/app/settings_service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"oncall_reminder_engine/internal/domain/period"
	idb "oncall_reminder_engine/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// SettingsService resolves automation settings into absolute instants and
// keeps the period's generate_at in sync on every write.
type SettingsService struct {
	periods period.Repository
	logger  *logrus.Entry
}

func NewSettingsService(pr period.Repository, logger *logrus.Entry) *SettingsService {
	return &SettingsService{periods: pr, logger: logger}
}

// Apply coerces raw input for a period, resolves it and persists it.
func (s *SettingsService) Apply(ctx context.Context, periodID int64, in period.SettingsInput) (*period.AutomationSettings, error) {
	p, err := s.periods.GetByID(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to get period %d: %w", periodID, err)
	}
	settings := in.Coerce(periodID)
	if err := s.Save(ctx, p, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save resolves settings against p.OpenAt and writes both the settings and
// the period's generate_at.
func (s *SettingsService) Save(ctx context.Context, p *period.Period, settings *period.AutomationSettings) error {
	resolved := period.Resolve(p.OpenAt, p.Location(), settings.Offsets())
	settings.PeriodID = p.ID
	settings.Apply(resolved)

	if err := s.periods.SaveSettings(ctx, settings, resolved.GenerateAt); err != nil {
		return fmt.Errorf("failed to save automation settings for period %d: %w", p.ID, err)
	}
	generateAt := resolved.GenerateAt
	p.GenerateAt = &generateAt
	p.Settings = settings

	s.logger.WithFields(logrus.Fields{
		"period_id":      p.ID,
		"avail_open_at":  resolved.AvailOpenAt,
		"avail_deadline": resolved.AvailDeadline,
		"generate_at":    resolved.GenerateAt,
	}).Info("Automation settings resolved")
	return nil
}

// RecomputeForPeriod re-resolves the stored offsets, e.g. after open_at
// changed. Periods without settings get the defaults.
func (s *SettingsService) RecomputeForPeriod(ctx context.Context, periodID int64) (*period.AutomationSettings, error) {
	p, err := s.periods.GetByID(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to get period %d: %w", periodID, err)
	}
	settings, err := s.periods.GetSettings(ctx, periodID)
	if errors.Is(err, idb.ErrSettingsNotFound) {
		settings = period.DefaultSettings(periodID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get automation settings for period %d: %w", periodID, err)
	}
	if err := s.Save(ctx, p, settings); err != nil {
		return nil, err
	}
	return settings, nil
}
