// internal/infra/database/postgres_period_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"oncall_reminder_engine/internal/domain/period"

	"github.com/lib/pq"
)

type PostgresPeriodRepository struct {
	db *sql.DB
}

func NewPostgresPeriodRepository(db *sql.DB) *PostgresPeriodRepository {
	return &PostgresPeriodRepository{db: db}
}

// --- Period Methods ---

func (r *PostgresPeriodRepository) Create(ctx context.Context, p *period.Period) error {
	query := `INSERT INTO periods (label, open_at, close_at, generate_at, timezone)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, p.Label, p.OpenAt, p.CloseAt, nullTime(p.GenerateAt), p.Timezone).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "periods_label_key") {
			return ErrDuplicatePeriodLabel
		}
		return fmt.Errorf("error creating period: %w", err)
	}
	return nil
}

const periodColumns = `id, label, open_at, close_at, generate_at, timezone, created_at`

func scanPeriod(row interface{ Scan(...any) error }) (*period.Period, error) {
	p := &period.Period{}
	var generateAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Label, &p.OpenAt, &p.CloseAt, &generateAt, &p.Timezone, &p.CreatedAt); err != nil {
		return nil, err
	}
	if generateAt.Valid {
		t := generateAt.Time
		p.GenerateAt = &t
	}
	return p, nil
}

func (r *PostgresPeriodRepository) GetByID(ctx context.Context, id int64) (*period.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE id = $1`
	p, err := scanPeriod(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, fmt.Errorf("error getting period by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresPeriodRepository) GetByLabel(ctx context.Context, label string) (*period.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE label = $1`
	p, err := scanPeriod(r.db.QueryRowContext(ctx, query, label))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, fmt.Errorf("error getting period by label: %w", err)
	}
	return p, nil
}

func (r *PostgresPeriodRepository) ListWithSettings(ctx context.Context) ([]*period.Period, error) {
	query := `SELECT p.id, p.label, p.open_at, p.close_at, p.generate_at, p.timezone, p.created_at,
                      s.period_id, s.slots_generate_before_days, s.avail_deadline_before_days,
                      s.planning_generate_before_days, s.weekly_reminder, s.extra_reminder_hours,
                      s.lock_assignments, s.avail_open_at, s.avail_deadline, s.updated_at
               FROM periods p
               LEFT JOIN automation_settings s ON s.period_id = p.id
               ORDER BY p.open_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing periods: %w", err)
	}
	defer rows.Close()

	var periods []*period.Period
	for rows.Next() {
		p := &period.Period{}
		var (
			generateAt                        sql.NullTime
			settingsPeriodID                  sql.NullInt64
			slotsDays, deadlineDays, planDays sql.NullInt64
			weekly, lockAssignments           sql.NullBool
			hours                             pq.Int64Array
			availOpenAt, availDeadline        sql.NullTime
			updatedAt                         sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.Label, &p.OpenAt, &p.CloseAt, &generateAt, &p.Timezone, &p.CreatedAt,
			&settingsPeriodID, &slotsDays, &deadlineDays, &planDays, &weekly, &hours,
			&lockAssignments, &availOpenAt, &availDeadline, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning period row: %w", err)
		}
		if generateAt.Valid {
			t := generateAt.Time
			p.GenerateAt = &t
		}
		if settingsPeriodID.Valid {
			p.Settings = &period.AutomationSettings{
				PeriodID:                   settingsPeriodID.Int64,
				SlotsGenerateBeforeDays:    int(slotsDays.Int64),
				AvailDeadlineBeforeDays:    int(deadlineDays.Int64),
				PlanningGenerateBeforeDays: int(planDays.Int64),
				WeeklyReminder:             weekly.Bool,
				ExtraReminderHours:         toInts(hours),
				LockAssignments:            lockAssignments.Bool,
				AvailOpenAt:                availOpenAt.Time,
				AvailDeadline:              availDeadline.Time,
				UpdatedAt:                  updatedAt.Time,
			}
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period rows: %w", err)
	}
	return periods, nil
}

// --- AutomationSettings Methods ---

func (r *PostgresPeriodRepository) GetSettings(ctx context.Context, periodID int64) (*period.AutomationSettings, error) {
	query := `SELECT period_id, slots_generate_before_days, avail_deadline_before_days,
                      planning_generate_before_days, weekly_reminder, extra_reminder_hours,
                      lock_assignments, avail_open_at, avail_deadline, updated_at
               FROM automation_settings WHERE period_id = $1`
	s := &period.AutomationSettings{}
	var hours pq.Int64Array
	err := r.db.QueryRowContext(ctx, query, periodID).Scan(
		&s.PeriodID, &s.SlotsGenerateBeforeDays, &s.AvailDeadlineBeforeDays,
		&s.PlanningGenerateBeforeDays, &s.WeeklyReminder, &hours,
		&s.LockAssignments, &s.AvailOpenAt, &s.AvailDeadline, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("error getting automation settings: %w", err)
	}
	s.ExtraReminderHours = toInts(hours)
	return s, nil
}

func (r *PostgresPeriodRepository) SaveSettings(ctx context.Context, s *period.AutomationSettings, generateAt time.Time) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for settings: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	upsert := `INSERT INTO automation_settings (period_id, slots_generate_before_days, avail_deadline_before_days,
                    planning_generate_before_days, weekly_reminder, extra_reminder_hours, lock_assignments,
                    avail_open_at, avail_deadline, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
               ON CONFLICT (period_id) DO UPDATE SET
                    slots_generate_before_days = EXCLUDED.slots_generate_before_days,
                    avail_deadline_before_days = EXCLUDED.avail_deadline_before_days,
                    planning_generate_before_days = EXCLUDED.planning_generate_before_days,
                    weekly_reminder = EXCLUDED.weekly_reminder,
                    extra_reminder_hours = EXCLUDED.extra_reminder_hours,
                    lock_assignments = EXCLUDED.lock_assignments,
                    avail_open_at = EXCLUDED.avail_open_at,
                    avail_deadline = EXCLUDED.avail_deadline,
                    updated_at = NOW()
               RETURNING updated_at`
	err = txn.QueryRowContext(ctx, upsert,
		s.PeriodID, s.SlotsGenerateBeforeDays, s.AvailDeadlineBeforeDays, s.PlanningGenerateBeforeDays,
		s.WeeklyReminder, pq.Array(toInt64s(s.ExtraReminderHours)), s.LockAssignments,
		s.AvailOpenAt, s.AvailDeadline,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting automation settings: %w", err)
	}

	res, err := txn.ExecContext(ctx, `UPDATE periods SET generate_at = $1 WHERE id = $2`, generateAt, s.PeriodID)
	if err != nil {
		return fmt.Errorf("error updating period generate_at: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPeriodNotFound
	}

	return txn.Commit()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toInts(a pq.Int64Array) []int {
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = int(v)
	}
	return out
}

func toInt64s(a []int) []int64 {
	out := make([]int64, len(a))
	for i, v := range a {
		out[i] = int64(v)
	}
	return out
}
