package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"
	"oncall_reminder_engine/internal/domain/slot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func email(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	periods := newMemPeriodRepo()
	slots := newMemSlotRepo()

	closed := seedPeriod(t, periods, "2025-Q2",
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC), "UTC")
	q4 := seedPeriod(t, periods, "2025-Q4",
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), "UTC")
	_, err := NewSettingsService(periods, testLogger()).Apply(ctx, q4.ID, period.SettingsInput{})
	require.NoError(t, err)

	require.NoError(t, slots.BulkCreate(ctx, []*slot.Slot{
		{PeriodID: q4.ID, Date: time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)},
		{PeriodID: q4.ID, Date: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)},
		{PeriodID: closed.ID, Date: time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)},
	}))

	validated := sql.NullTime{Time: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), Valid: true}
	dir := &fakeDoctorDirectory{
		doctors: []*doctor.Doctor{
			{ID: "done", Email: email("done@example.org")},
			{ID: "pending", Email: email("pending@example.org")},
			{ID: "optout", Email: email("optout@example.org"), RemindersOptOut: true},
			{ID: "noemail"},
		},
		months: map[int64][]*doctor.PeriodMonth{
			q4.ID: {
				{UserID: "done", Month: "2025-10", ValidatedAt: validated},
				{UserID: "done", Month: "2025-11", Locked: true},
				{UserID: "pending", Month: "2025-10", ValidatedAt: validated},
			},
		},
	}
	svc := NewStatusService(periods, slots, dir, dir, reminder.DefaultPolicy(), testLogger())

	got, err := svc.Status(ctx, time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, got, 1)
	st := got[0]
	assert.Equal(t, "2025-Q4", st.Label)
	assert.Equal(t, []string{"2025-10", "2025-11"}, st.SlotMonths)
	assert.Equal(t, 2, st.DoctorsTotal)
	assert.Equal(t, 1, st.DoctorsPending)
	assert.Equal(t, []reminder.Kind{reminder.KindDeadline48}, st.DueKinds)
	require.NotNil(t, st.AvailDeadline)
	assert.Equal(t, time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC), *st.AvailDeadline)
	require.NotNil(t, st.GenerateAt)
}

func TestStatus_ListError(t *testing.T) {
	periods := newMemPeriodRepo()
	periods.listErr = errBoom
	dir := &fakeDoctorDirectory{}
	svc := NewStatusService(periods, newMemSlotRepo(), dir, dir, reminder.DefaultPolicy(), testLogger())

	_, err := svc.Status(context.Background(), time.Now())

	assert.ErrorIs(t, err, errBoom)
}
