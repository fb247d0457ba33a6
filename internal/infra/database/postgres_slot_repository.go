// internal/infra/database/postgres_slot_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"oncall_reminder_engine/internal/domain/slot"
)

type PostgresSlotRepository struct {
	db *sql.DB
}

func NewPostgresSlotRepository(db *sql.DB) *PostgresSlotRepository {
	return &PostgresSlotRepository{db: db}
}

func (r *PostgresSlotRepository) CountByPeriod(ctx context.Context, periodID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slots WHERE period_id = $1`, periodID).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting slots: %w", err)
	}
	return n, nil
}

// BulkCreate inserts all slots in one transaction. A duplicate (period, date,
// kind) aborts the whole batch.
func (r *PostgresSlotRepository) BulkCreate(ctx context.Context, slots []*slot.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for bulk create: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO slots (period_id, date, start_ts, end_ts, kind)
                                         VALUES ($1, $2, $3, $4, $5)
                                         RETURNING id`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for bulk create: %w", err)
	}
	defer stmt.Close()

	for _, s := range slots {
		if err := stmt.QueryRowContext(ctx, s.PeriodID, s.Date, s.StartTS, s.EndTS, string(s.Kind)).Scan(&s.ID); err != nil {
			return fmt.Errorf("error inserting slot (P:%d, %s, %s): %w", s.PeriodID, s.Date.Format("2006-01-02"), s.Kind, err)
		}
	}

	return txn.Commit()
}

func (r *PostgresSlotRepository) MonthsWithSlots(ctx context.Context, periodID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT to_char(date, 'YYYY-MM') AS month FROM slots WHERE period_id = $1 ORDER BY month`, periodID)
	if err != nil {
		return nil, fmt.Errorf("error listing slot months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("error scanning slot month: %w", err)
		}
		months = append(months, m)
	}
	return months, rows.Err()
}
