package app

import (
	"context"
	"testing"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"
	idb "oncall_reminder_engine/internal/infra/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureReporter struct {
	summaries []*TickSummary
}

func (r *captureReporter) ReportTick(_ context.Context, s *TickSummary) {
	r.summaries = append(r.summaries, s)
}

type reminderFixture struct {
	periods     *memPeriodRepo
	queries     *fakeRecipientQueries
	assignments *fakeAssignments
	ledger      *memLedger
	transport   *fakeTransport
	locker      *fakeLocker
	reporter    *captureReporter
	period      *period.Period
	svc         *ReminderService
}

// newReminderFixture seeds 2025-Q4 in UTC with default settings: the
// availability deadline is 2025-09-16T00:00Z.
func newReminderFixture(t *testing.T, in period.SettingsInput) *reminderFixture {
	t.Helper()
	f := &reminderFixture{
		periods:     newMemPeriodRepo(),
		queries:     &fakeRecipientQueries{view: []doctor.Recipient{{UserID: "u1", Email: "a@example.org", FullName: "Dr A"}}},
		assignments: &fakeAssignments{slots: map[int64][]doctor.AssignedSlot{}},
		ledger:      newMemLedger(),
		transport:   newFakeTransport(),
		locker:      newFakeLocker(),
		reporter:    &captureReporter{},
	}
	f.period = seedPeriod(t, f.periods, "2025-Q4",
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), "UTC")
	_, err := NewSettingsService(f.periods, testLogger()).Apply(context.Background(), f.period.ID, in)
	require.NoError(t, err)

	log := testLogger()
	f.svc = NewReminderService(ReminderServiceDeps{
		Periods:     f.periods,
		Recipients:  NewRecipientResolver(f.queries, log),
		Assignments: f.assignments,
		Ledger:      f.ledger,
		Dispatcher:  NewDispatcher(f.transport, f.ledger, &countingPacer{}, 3, log),
		Composer:    NewComposer("https://oncall.example.org/"),
		Locker:      f.locker,
		Reporter:    f.reporter,
		Policy:      reminder.DefaultPolicy(),
	}, log)
	return f
}

func TestTick_DeadlineTierSendsOnceAcrossTicks(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	now := time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC) // a Sunday, 48h before the deadline

	first := f.svc.Tick(context.Background(), now, TickOptions{RunID: "run-1"})

	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, map[string][]reminder.Kind{"2025-Q4": {reminder.KindDeadline48}}, first.DueKinds)
	assert.Equal(t, 1, first.SentCount)
	assert.Equal(t, 1, first.RecipientsConsidered)
	assert.Empty(t, first.Errors)
	require.Len(t, f.transport.sent, 1)
	assert.Contains(t, f.transport.sent[0].Subject, "48h")

	key := reminder.EventKey{PeriodID: f.period.ID, Kind: reminder.KindDeadline48, WindowKey: "2025-09-16T00:00:00Z:48h", Target: "a@example.org"}
	st, ok := f.ledger.status(key)
	require.True(t, ok)
	assert.Equal(t, reminder.StatusSent, st)

	second := f.svc.Tick(context.Background(), now.Add(time.Minute), TickOptions{})

	assert.NotEmpty(t, second.RunID)
	assert.Equal(t, 0, second.SentCount)
	assert.Equal(t, 1, second.SkippedCount)
	assert.Len(t, f.transport.sent, 1)
	assert.Len(t, f.reporter.summaries, 2)
}

func TestTick_NothingDueAfterDeadline(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 22, 9, 0, 0, 0, time.UTC), TickOptions{})

	assert.Empty(t, s.DueKinds)
	assert.Zero(t, f.transport.totalCalls())
	assert.Zero(t, f.queries.viewCalls)
}

func TestTick_DryRunHasNoSideEffects(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	now := time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC)

	s := f.svc.Tick(context.Background(), now, TickOptions{DryRun: true})

	assert.True(t, s.DryRun)
	assert.Zero(t, f.transport.totalCalls())
	assert.Zero(t, f.ledger.writes)
	assert.Zero(t, s.SentCount)
	require.Len(t, s.Periods, 1)
	require.Len(t, s.Periods[0].Kinds, 1)
	assert.Equal(t, reminder.KindDeadline48, s.Periods[0].Kinds[0].Kind)
	assert.Equal(t, []string{"a@example.org"}, s.Periods[0].Kinds[0].Recipients)
	assert.Equal(t, []string{"2025-09-16T00:00:00Z:48h"}, s.Periods[0].Kinds[0].WindowKeys)
}

func TestTick_WeeklyReminder(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	monday := time.Date(2025, 9, 8, 9, 30, 0, 0, time.UTC)

	s := f.svc.Tick(context.Background(), monday, TickOptions{})

	assert.Equal(t, []reminder.Kind{reminder.KindWeekly}, s.DueKinds["2025-Q4"])
	_, ok := f.ledger.status(reminder.EventKey{PeriodID: f.period.ID, Kind: reminder.KindWeekly, WindowKey: "2025-W37", Target: "a@example.org"})
	assert.True(t, ok)
}

func TestTick_AssignmentRemindersNeedLockedRoster(t *testing.T) {
	now := time.Date(2025, 9, 10, 10, 0, 0, 0, time.UTC)
	slot := doctor.AssignedSlot{
		SlotID:    77,
		StartTS:   now.Add(24*time.Hour + 30*time.Minute),
		EndTS:     now.Add(30*time.Hour + 30*time.Minute),
		SlotKind:  "saturday_afternoon",
		Recipient: doctor.Recipient{UserID: "u2", Email: "b@example.org"},
	}

	t.Run("unlocked roster", func(t *testing.T) {
		f := newReminderFixture(t, period.SettingsInput{})
		f.assignments.slots[f.period.ID] = []doctor.AssignedSlot{slot}

		s := f.svc.Tick(context.Background(), now, TickOptions{})

		assert.Empty(t, s.DueKinds)
		assert.Zero(t, f.transport.totalCalls())
	})

	t.Run("locked roster", func(t *testing.T) {
		locked := true
		f := newReminderFixture(t, period.SettingsInput{LockAssignments: &locked})
		f.assignments.slots[f.period.ID] = []doctor.AssignedSlot{slot}

		s := f.svc.Tick(context.Background(), now, TickOptions{})

		assert.Equal(t, []reminder.Kind{reminder.KindAssignmentJ1}, s.DueKinds["2025-Q4"])
		assert.Equal(t, 1, s.SentCount)
		st, ok := f.ledger.status(reminder.EventKey{PeriodID: f.period.ID, Kind: reminder.KindAssignmentJ1, WindowKey: "slot:77", Target: "b@example.org"})
		require.True(t, ok)
		assert.Equal(t, reminder.StatusSent, st)
	})
}

func TestTick_AssignmentLookupErrorAbortsPeriod(t *testing.T) {
	locked := true
	f := newReminderFixture(t, period.SettingsInput{LockAssignments: &locked})
	f.assignments.err = errBoom

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), TickOptions{})

	require.Len(t, s.Errors, 1)
	assert.Equal(t, StagePersistence, s.Errors[0].Stage)
	assert.Zero(t, f.transport.totalCalls())
}

func TestTick_ListFailureIsReported(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	f.periods.listErr = errBoom

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), TickOptions{})

	require.Len(t, s.Errors, 1)
	assert.Equal(t, StagePersistence, s.Errors[0].Stage)
	assert.Contains(t, s.Errors[0].Message, "boom")
	assert.Len(t, f.reporter.summaries, 1)
}

func TestTick_RecipientFailureIsReported(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	f.queries.viewErr = errBoom
	f.queries.monthsErr = errBoom

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), TickOptions{})

	require.Len(t, s.Errors, 1)
	assert.Equal(t, StagePersistence, s.Errors[0].Stage)
	assert.Equal(t, f.period.ID, s.Errors[0].PeriodID)
}

func TestTick_DispatchFailureIsReported(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	f.transport.failing["a@example.org"] = errBoom

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), TickOptions{})

	assert.Equal(t, 1, s.FailedCount)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, StageDispatch, s.Errors[0].Stage)
	assert.Equal(t, "a@example.org", s.Errors[0].Target)
}

func TestTick_SkipsWhenLockHeld(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	f.locker.held[reminderLockName] = true

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), TickOptions{})

	assert.Equal(t, "another run in progress", s.Note)
	assert.Zero(t, f.transport.totalCalls())
}

func TestMarkSent_SuppressesLaterSend(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	key := reminder.EventKey{
		PeriodID:  f.period.ID,
		Kind:      reminder.KindDeadline48,
		WindowKey: "2025-09-16T00:00:00Z:48h",
		Target:    " a@example.org ",
	}

	res, err := f.svc.MarkSent(context.Background(), key, "reached by phone")
	require.NoError(t, err)
	assert.Equal(t, reminder.Claimed, res)

	again, err := f.svc.MarkSent(context.Background(), key, "")
	require.NoError(t, err)
	assert.Equal(t, reminder.AlreadyClaimed, again)

	s := f.svc.Tick(context.Background(), time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), TickOptions{})

	assert.Equal(t, 1, s.SkippedCount)
	assert.Zero(t, s.SentCount)
	assert.Zero(t, f.transport.totalCalls())
}

func TestMarkSent_Errors(t *testing.T) {
	f := newReminderFixture(t, period.SettingsInput{})
	valid := reminder.EventKey{PeriodID: f.period.ID, Kind: reminder.KindWeekly, WindowKey: "2025-W37", Target: "a@example.org"}

	bad := valid
	bad.Kind = "deadline_soon"
	_, err := f.svc.MarkSent(context.Background(), bad, "")
	assert.ErrorIs(t, err, ErrInvalidEventKey)

	bad = valid
	bad.Target = "  "
	_, err = f.svc.MarkSent(context.Background(), bad, "")
	assert.ErrorIs(t, err, ErrInvalidEventKey)

	bad = valid
	bad.PeriodID = 99
	_, err = f.svc.MarkSent(context.Background(), bad, "")
	assert.ErrorIs(t, err, idb.ErrPeriodNotFound)

	f.ledger.claimErr = errBoom
	res, err := f.svc.MarkSent(context.Background(), valid, "")
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, reminder.ClaimFailed, res)
	assert.Zero(t, f.ledger.writes)
}
