// internal/domain/period/repository.go
package period

import (
	"context"
	"time"
)

// Repository defines operations for Period and AutomationSettings.
type Repository interface {
	// Period methods
	Create(ctx context.Context, p *Period) error
	GetByID(ctx context.Context, id int64) (*Period, error)
	GetByLabel(ctx context.Context, label string) (*Period, error)
	// ListWithSettings returns all periods ordered by open_at, each with its
	// AutomationSettings attached when present.
	ListWithSettings(ctx context.Context) ([]*Period, error)

	// AutomationSettings methods
	GetSettings(ctx context.Context, periodID int64) (*AutomationSettings, error)
	// SaveSettings upserts the settings and writes the period's generate_at in
	// the same transaction so both stay in sync.
	SaveSettings(ctx context.Context, s *AutomationSettings, generateAt time.Time) error
}
