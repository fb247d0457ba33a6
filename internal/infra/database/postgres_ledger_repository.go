// internal/infra/database/postgres_ledger_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"oncall_reminder_engine/internal/domain/reminder"
)

const dedupConstraint = "reminder_events_dedup_key"

// PostgresLedgerRepository implements reminder.Ledger on reminder_events.
type PostgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

// AlreadySent reports whether the tuple exists in any status. A pending or
// failed row blocks the send just like a sent one.
func (r *PostgresLedgerRepository) AlreadySent(ctx context.Context, key reminder.EventKey) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM reminder_events
                WHERE period_id = $1 AND event_type = $2 AND window_key = $3 AND target = $4)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, key.PeriodID, string(key.Kind), key.WindowKey, key.Target).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking reminder event: %w", err)
	}
	return exists, nil
}

func (r *PostgresLedgerRepository) Claim(ctx context.Context, key reminder.EventKey, meta map[string]any) (reminder.ClaimResult, error) {
	return r.insert(ctx, key, reminder.StatusPending, meta)
}

func (r *PostgresLedgerRepository) RecordSent(ctx context.Context, key reminder.EventKey, meta map[string]any) (reminder.ClaimResult, error) {
	return r.insert(ctx, key, reminder.StatusSent, meta)
}

func (r *PostgresLedgerRepository) insert(ctx context.Context, key reminder.EventKey, status reminder.Status, meta map[string]any) (reminder.ClaimResult, error) {
	raw, err := encodeMeta(meta)
	if err != nil {
		return reminder.ClaimFailed, err
	}
	query := `INSERT INTO reminder_events (period_id, event_type, window_key, target, status, meta)
              VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.db.ExecContext(ctx, query, key.PeriodID, string(key.Kind), key.WindowKey, key.Target, string(status), raw)
	if err != nil {
		if isUniqueViolation(err, dedupConstraint) {
			return reminder.AlreadyClaimed, nil
		}
		return reminder.ClaimFailed, fmt.Errorf("error inserting reminder event: %w", err)
	}
	return reminder.Claimed, nil
}

// Complete sets the final status and merges meta into the stored object.
func (r *PostgresLedgerRepository) Complete(ctx context.Context, key reminder.EventKey, status reminder.Status, meta map[string]any) error {
	raw, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	query := `UPDATE reminder_events
              SET status = $5, meta = meta || $6::jsonb, updated_at = NOW()
              WHERE period_id = $1 AND event_type = $2 AND window_key = $3 AND target = $4`
	res, err := r.db.ExecContext(ctx, query, key.PeriodID, string(key.Kind), key.WindowKey, key.Target, string(status), raw)
	if err != nil {
		return fmt.Errorf("error completing reminder event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrReminderEventNotFound
	}
	return nil
}

// Release removes a claim that never reached the transport successfully.
// Rows already sent or failed are left untouched.
func (r *PostgresLedgerRepository) Release(ctx context.Context, key reminder.EventKey) error {
	query := `DELETE FROM reminder_events
              WHERE period_id = $1 AND event_type = $2 AND window_key = $3 AND target = $4 AND status = $5`
	if _, err := r.db.ExecContext(ctx, query, key.PeriodID, string(key.Kind), key.WindowKey, key.Target, string(reminder.StatusPending)); err != nil {
		return fmt.Errorf("error releasing reminder event: %w", err)
	}
	return nil
}

func encodeMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("error encoding reminder event meta: %w", err)
	}
	return raw, nil
}
