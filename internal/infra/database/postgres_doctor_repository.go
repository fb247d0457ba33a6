// internal/infra/database/postgres_doctor_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
)

// PostgresDoctorRepository reads identities, month rows and the published
// roster. It implements doctor.Repository, doctor.MonthRepository,
// doctor.RecipientQueries and doctor.AssignmentRepository.
type PostgresDoctorRepository struct {
	db *sql.DB
}

func NewPostgresDoctorRepository(db *sql.DB) *PostgresDoctorRepository {
	return &PostgresDoctorRepository{db: db}
}

func (r *PostgresDoctorRepository) ListDoctors(ctx context.Context) ([]*doctor.Doctor, error) {
	query := `SELECT id, email, full_name, role, reminders_opt_out
              FROM profiles WHERE role = $1 ORDER BY full_name, id`
	rows, err := r.db.QueryContext(ctx, query, doctor.RoleDoctor)
	if err != nil {
		return nil, fmt.Errorf("error listing doctors: %w", err)
	}
	defer rows.Close()

	var doctors []*doctor.Doctor
	for rows.Next() {
		d := &doctor.Doctor{}
		if err := rows.Scan(&d.ID, &d.Email, &d.FullName, &d.Role, &d.RemindersOptOut); err != nil {
			return nil, fmt.Errorf("error scanning doctor row: %w", err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating doctor rows: %w", err)
	}
	return doctors, nil
}

func (r *PostgresDoctorRepository) ListByPeriod(ctx context.Context, periodID int64) ([]*doctor.PeriodMonth, error) {
	query := `SELECT user_id, period_id, month, validated_at, locked, COALESCE(opted_out, FALSE), updated_at
              FROM doctor_period_months WHERE period_id = $1 ORDER BY user_id, month`
	rows, err := r.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("error listing month rows: %w", err)
	}
	defer rows.Close()

	var months []*doctor.PeriodMonth
	for rows.Next() {
		m := &doctor.PeriodMonth{}
		if err := rows.Scan(&m.UserID, &m.PeriodID, &m.Month, &m.ValidatedAt, &m.Locked, &m.OptedOut, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning month row: %w", err)
		}
		months = append(months, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating month rows: %w", err)
	}
	return months, nil
}

func (r *PostgresDoctorRepository) PendingFromView(ctx context.Context, periodID int64) ([]doctor.Recipient, error) {
	query := `SELECT user_id, email, full_name
              FROM v_doctors_pending_reminders
              WHERE period_id = $1 AND email IS NOT NULL AND btrim(email) <> ''
              ORDER BY email`
	return r.queryRecipients(ctx, "pending view", query, periodID)
}

// PendingFromMonths lists doctors having at least one open month row. It does
// not see months that have slots but no row; the view does.
func (r *PostgresDoctorRepository) PendingFromMonths(ctx context.Context, periodID int64) ([]doctor.Recipient, error) {
	query := `SELECT DISTINCT p.id, p.email, p.full_name
              FROM doctor_period_months m
              JOIN profiles p ON p.id = m.user_id
              WHERE m.period_id = $1
                AND m.locked = FALSE
                AND COALESCE(m.opted_out, FALSE) = FALSE
                AND m.validated_at IS NULL
                AND p.role = $2
                AND p.reminders_opt_out = FALSE
                AND p.email IS NOT NULL AND btrim(p.email) <> ''
              ORDER BY p.email`
	return r.queryRecipients(ctx, "month rows", query, periodID, doctor.RoleDoctor)
}

func (r *PostgresDoctorRepository) queryRecipients(ctx context.Context, source, query string, args ...any) ([]doctor.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying recipients from %s: %w", source, err)
	}
	defer rows.Close()

	var out []doctor.Recipient
	for rows.Next() {
		var rc doctor.Recipient
		if err := rows.Scan(&rc.UserID, &rc.Email, &rc.FullName); err != nil {
			return nil, fmt.Errorf("error scanning recipient from %s: %w", source, err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients from %s: %w", source, err)
	}
	return out, nil
}

func (r *PostgresDoctorRepository) ListAssignedStartingBetween(ctx context.Context, periodID int64, from, to time.Time) ([]doctor.AssignedSlot, error) {
	query := `SELECT s.id, s.start_ts, s.end_ts, s.kind, p.id, p.email, p.full_name
              FROM assignments a
              JOIN slots s ON s.id = a.slot_id
              JOIN profiles p ON p.id = a.user_id
              WHERE s.period_id = $1
                AND s.start_ts >= $2 AND s.start_ts < $3
                AND p.role = $4
                AND p.reminders_opt_out = FALSE
                AND p.email IS NOT NULL AND btrim(p.email) <> ''
              ORDER BY s.start_ts, p.email`
	rows, err := r.db.QueryContext(ctx, query, periodID, from, to, doctor.RoleDoctor)
	if err != nil {
		return nil, fmt.Errorf("error listing assignments: %w", err)
	}
	defer rows.Close()

	var out []doctor.AssignedSlot
	for rows.Next() {
		var a doctor.AssignedSlot
		if err := rows.Scan(&a.SlotID, &a.StartTS, &a.EndTS, &a.SlotKind,
			&a.Recipient.UserID, &a.Recipient.Email, &a.Recipient.FullName); err != nil {
			return nil, fmt.Errorf("error scanning assignment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment rows: %w", err)
	}
	return out, nil
}
