package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"oncall_reminder_engine/internal/domain/period"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPeriodRepository(db)
	openAt := time.Date(2025, 9, 30, 22, 0, 0, 0, time.UTC)
	closeAt := time.Date(2025, 12, 31, 22, 59, 59, 0, time.UTC)
	created := time.Date(2025, 8, 17, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO periods`).
		WithArgs("2025-Q4", openAt, closeAt, sqlmock.AnyArg(), "Europe/Paris").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), created))

	p := &period.Period{Label: "2025-Q4", OpenAt: openAt, CloseAt: closeAt, Timezone: "Europe/Paris"}
	require.NoError(t, repo.Create(context.Background(), p))

	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, created, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodCreate_DuplicateLabel(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPeriodRepository(db)
	mock.ExpectQuery(`INSERT INTO periods`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "periods_label_key"})

	err := repo.Create(context.Background(), &period.Period{Label: "2025-Q4"})

	assert.ErrorIs(t, err, ErrDuplicatePeriodLabel)
}

func TestPeriodGetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPeriodRepository(db)
	mock.ExpectQuery(`FROM periods WHERE id`).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 9)

	assert.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestPeriodGetByLabel(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPeriodRepository(db)
	openAt := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	generateAt := time.Date(2025, 9, 24, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM periods WHERE label`).
		WithArgs("2025-Q4").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "open_at", "close_at", "generate_at", "timezone", "created_at"}).
			AddRow(int64(2), "2025-Q4", openAt, openAt.AddDate(0, 3, 0), generateAt, "UTC", openAt))

	p, err := repo.GetByLabel(context.Background(), "2025-Q4")

	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)
	require.NotNil(t, p.GenerateAt)
	assert.Equal(t, generateAt, *p.GenerateAt)
}

func TestPeriodListWithSettings(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPeriodRepository(db)
	openQ4 := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	openQ1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "label", "open_at", "close_at", "generate_at", "timezone", "created_at",
		"period_id", "slots_generate_before_days", "avail_deadline_before_days",
		"planning_generate_before_days", "weekly_reminder", "extra_reminder_hours",
		"lock_assignments", "avail_open_at", "avail_deadline", "updated_at",
	}).
		AddRow(int64(1), "2025-Q4", openQ4, openQ1, nil, "UTC", openQ4,
			int64(1), int64(45), int64(15), int64(7), true, []byte("{48,24,1}"),
			false, openQ4.AddDate(0, 0, -45), deadline, openQ4).
		AddRow(int64(2), "2026-Q1", openQ1, openQ1.AddDate(0, 3, 0), nil, "UTC", openQ4,
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery(`LEFT JOIN automation_settings`).WillReturnRows(rows)

	periods, err := repo.ListWithSettings(context.Background())

	require.NoError(t, err)
	require.Len(t, periods, 2)
	require.NotNil(t, periods[0].Settings)
	assert.Equal(t, []int{48, 24, 1}, periods[0].Settings.ExtraReminderHours)
	assert.Equal(t, deadline, periods[0].Settings.AvailDeadline)
	assert.True(t, periods[0].Settings.WeeklyReminder)
	assert.Nil(t, periods[0].GenerateAt)
	assert.Nil(t, periods[1].Settings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodGetSettings_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPeriodRepository(db)
	mock.ExpectQuery(`FROM automation_settings WHERE period_id`).
		WithArgs(int64(4)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSettings(context.Background(), 4)

	assert.ErrorIs(t, err, ErrSettingsNotFound)
}

func TestPeriodSaveSettings(t *testing.T) {
	generateAt := time.Date(2025, 9, 24, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	t.Run("writes settings and generate_at atomically", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresPeriodRepository(db)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO automation_settings`).
			WithArgs(int64(1), 45, 15, 7, true, sqlmock.AnyArg(), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))
		mock.ExpectExec(`UPDATE periods SET generate_at`).
			WithArgs(generateAt, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s := period.DefaultSettings(1)
		require.NoError(t, repo.SaveSettings(context.Background(), s, generateAt))

		assert.Equal(t, updated, s.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown period rolls back", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresPeriodRepository(db)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO automation_settings`).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))
		mock.ExpectExec(`UPDATE periods SET generate_at`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.SaveSettings(context.Background(), period.DefaultSettings(1), generateAt)

		assert.ErrorIs(t, err, ErrPeriodNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
