package doctor

import (
	"context"
	"time"
)

// Repository is the identity directory.
type Repository interface {
	ListDoctors(ctx context.Context) ([]*Doctor, error)
}

// MonthRepository is the month-status store.
type MonthRepository interface {
	ListByPeriod(ctx context.Context, periodID int64) ([]*PeriodMonth, error)
}

// RecipientQueries are the two recipient lookups for a period.
type RecipientQueries interface {
	// PendingFromView reads the precomputed aggregate view.
	PendingFromView(ctx context.Context, periodID int64) ([]Recipient, error)
	// PendingFromMonths joins month rows to identities directly.
	PendingFromMonths(ctx context.Context, periodID int64) ([]Recipient, error)
}

// AssignedSlot is a published roster entry joined with its doctor.
type AssignedSlot struct {
	SlotID    int64
	StartTS   time.Time
	EndTS     time.Time
	SlotKind  string
	Recipient Recipient
}

// AssignmentRepository reads the published roster.
type AssignmentRepository interface {
	// ListAssignedStartingBetween returns assignments of the period whose slot
	// starts in [from, to), restricted to reachable doctors.
	ListAssignedStartingBetween(ctx context.Context, periodID int64, from, to time.Time) ([]AssignedSlot, error)
}
