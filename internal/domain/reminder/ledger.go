// internal/domain/reminder/ledger.go
package reminder

import (
	"context"
	"fmt"
	"time"
)

// EventKey is the idempotency tuple of the dedup ledger. It is unique in
// storage.
type EventKey struct {
	PeriodID  int64
	Kind      Kind
	WindowKey string
	Target    string // recipient email
}

func (k EventKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", k.PeriodID, k.Kind, k.WindowKey, k.Target)
}

// Status of a ledger row.
type Status string

const (
	StatusPending Status = "pending" // claimed, send in progress
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed" // permanent transport failure, final for the window
)

// Event is one row of the 'reminder_events' table.
type Event struct {
	ID int64
	EventKey
	Status    Status
	Meta      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimResult is the outcome of inserting a ledger row.
type ClaimResult int

const (
	// ClaimFailed means the write failed for a reason other than uniqueness;
	// the accompanying error must be surfaced and the send not attempted.
	ClaimFailed ClaimResult = iota
	// Claimed means this caller owns the tuple and may send.
	Claimed
	// AlreadyClaimed means the tuple exists: the reminder was already handled.
	AlreadyClaimed
)

func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyClaimed:
		return "already_claimed"
	default:
		return "failed"
	}
}

// Ledger is the append-only idempotency log guaranteeing at most one
// delivery per (period, kind, window, recipient).
type Ledger interface {
	AlreadySent(ctx context.Context, key EventKey) (bool, error)
	// Claim inserts a pending row. A uniqueness violation yields
	// AlreadyClaimed with a nil error.
	Claim(ctx context.Context, key EventKey, meta map[string]any) (ClaimResult, error)
	// RecordSent inserts a row directly in the sent state.
	RecordSent(ctx context.Context, key EventKey, meta map[string]any) (ClaimResult, error)
	// Complete moves a claimed row to sent or failed.
	Complete(ctx context.Context, key EventKey, status Status, meta map[string]any) error
	// Release deletes a pending claim so a later tick may retry it.
	Release(ctx context.Context, key EventKey) error
}
