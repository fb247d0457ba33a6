package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/mail"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"
	"oncall_reminder_engine/internal/domain/slot"
	idb "oncall_reminder_engine/internal/infra/database"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// --- periods ---

type memPeriodRepo struct {
	mu        sync.Mutex
	nextID    int64
	periods   map[int64]*period.Period
	settings  map[int64]*period.AutomationSettings
	createErr error
	listErr   error
	saveErr   error
	createdAt time.Time // stamped on Create, like the column default
}

func newMemPeriodRepo() *memPeriodRepo {
	return &memPeriodRepo{periods: map[int64]*period.Period{}, settings: map[int64]*period.AutomationSettings{}}
}

func (r *memPeriodRepo) Create(_ context.Context, p *period.Period) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.periods {
		if existing.Label == p.Label {
			return idb.ErrDuplicatePeriodLabel
		}
	}
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = r.createdAt
	cp := *p
	cp.Settings = nil
	r.periods[p.ID] = &cp
	return nil
}

func (r *memPeriodRepo) GetByID(_ context.Context, id int64) (*period.Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.periods[id]
	if !ok {
		return nil, idb.ErrPeriodNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPeriodRepo) GetByLabel(_ context.Context, label string) (*period.Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.periods {
		if p.Label == label {
			cp := *p
			return &cp, nil
		}
	}
	return nil, idb.ErrPeriodNotFound
}

func (r *memPeriodRepo) ListWithSettings(_ context.Context) ([]*period.Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*period.Period
	for _, p := range r.periods {
		cp := *p
		if s, ok := r.settings[p.ID]; ok {
			sc := *s
			cp.Settings = &sc
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenAt.Before(out[j].OpenAt) })
	return out, nil
}

func (r *memPeriodRepo) GetSettings(_ context.Context, periodID int64) (*period.AutomationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[periodID]
	if !ok {
		return nil, idb.ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memPeriodRepo) SaveSettings(_ context.Context, s *period.AutomationSettings, generateAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	p, ok := r.periods[s.PeriodID]
	if !ok {
		return idb.ErrPeriodNotFound
	}
	s.UpdatedAt = time.Now()
	cp := *s
	r.settings[s.PeriodID] = &cp
	g := generateAt
	p.GenerateAt = &g
	return nil
}

// --- slots ---

type memSlotRepo struct {
	mu     sync.Mutex
	nextID int64
	slots  map[int64][]*slot.Slot
}

func newMemSlotRepo() *memSlotRepo {
	return &memSlotRepo{slots: map[int64][]*slot.Slot{}}
}

func (r *memSlotRepo) CountByPeriod(_ context.Context, periodID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots[periodID]), nil
}

func (r *memSlotRepo) BulkCreate(_ context.Context, slots []*slot.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range slots {
		r.nextID++
		s.ID = r.nextID
		r.slots[s.PeriodID] = append(r.slots[s.PeriodID], s)
	}
	return nil
}

func (r *memSlotRepo) MonthsWithSlots(_ context.Context, periodID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	var months []string
	for _, s := range r.slots[periodID] {
		m := s.Date.Format("2006-01")
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			months = append(months, m)
		}
	}
	sort.Strings(months)
	return months, nil
}

// --- doctors ---

type fakeRecipientQueries struct {
	view       []doctor.Recipient
	viewErr    error
	months     []doctor.Recipient
	monthsErr  error
	viewCalls  int
	monthCalls int
}

func (f *fakeRecipientQueries) PendingFromView(context.Context, int64) ([]doctor.Recipient, error) {
	f.viewCalls++
	return f.view, f.viewErr
}

func (f *fakeRecipientQueries) PendingFromMonths(context.Context, int64) ([]doctor.Recipient, error) {
	f.monthCalls++
	return f.months, f.monthsErr
}

type fakeAssignments struct {
	slots map[int64][]doctor.AssignedSlot
	err   error
}

func (f *fakeAssignments) ListAssignedStartingBetween(_ context.Context, periodID int64, from, to time.Time) ([]doctor.AssignedSlot, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []doctor.AssignedSlot
	for _, a := range f.slots[periodID] {
		if !a.StartTS.Before(from) && a.StartTS.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeDoctorDirectory struct {
	doctors []*doctor.Doctor
	months  map[int64][]*doctor.PeriodMonth
}

func (f *fakeDoctorDirectory) ListDoctors(context.Context) ([]*doctor.Doctor, error) {
	return f.doctors, nil
}

func (f *fakeDoctorDirectory) ListByPeriod(_ context.Context, periodID int64) ([]*doctor.PeriodMonth, error) {
	return f.months[periodID], nil
}

// --- ledger ---

type memLedger struct {
	mu          sync.Mutex
	rows        map[reminder.EventKey]*reminder.Event
	lookupErr   error
	claimErr    error
	completeErr error
	writes      int
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[reminder.EventKey]*reminder.Event{}}
}

func (l *memLedger) AlreadySent(_ context.Context, key reminder.EventKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return false, l.lookupErr
	}
	_, ok := l.rows[key]
	return ok, nil
}

func (l *memLedger) insert(key reminder.EventKey, status reminder.Status, meta map[string]any) (reminder.ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return reminder.ClaimFailed, l.claimErr
	}
	if _, ok := l.rows[key]; ok {
		return reminder.AlreadyClaimed, nil
	}
	l.writes++
	l.rows[key] = &reminder.Event{EventKey: key, Status: status, Meta: copyMeta(meta)}
	return reminder.Claimed, nil
}

func (l *memLedger) Claim(_ context.Context, key reminder.EventKey, meta map[string]any) (reminder.ClaimResult, error) {
	return l.insert(key, reminder.StatusPending, meta)
}

func (l *memLedger) RecordSent(_ context.Context, key reminder.EventKey, meta map[string]any) (reminder.ClaimResult, error) {
	return l.insert(key, reminder.StatusSent, meta)
}

func (l *memLedger) Complete(_ context.Context, key reminder.EventKey, status reminder.Status, meta map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.completeErr != nil {
		return l.completeErr
	}
	row, ok := l.rows[key]
	if !ok {
		return idb.ErrReminderEventNotFound
	}
	l.writes++
	row.Status = status
	for k, v := range meta {
		row.Meta[k] = v
	}
	return nil
}

func (l *memLedger) Release(_ context.Context, key reminder.EventKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok := l.rows[key]; ok && row.Status == reminder.StatusPending {
		l.writes++
		delete(l.rows, key)
	}
	return nil
}

func (l *memLedger) status(key reminder.EventKey) (reminder.Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[key]
	if !ok {
		return "", false
	}
	return row.Status, true
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// --- transport and pacing ---

type fakeTransport struct {
	mu        sync.Mutex
	calls     map[string]int
	sent      []mail.Message
	throttled map[string]bool
	failing   map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: map[string]int{}, throttled: map[string]bool{}, failing: map[string]error{}}
}

func (t *fakeTransport) Send(_ context.Context, msg mail.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[msg.To]++
	if t.throttled[msg.To] {
		return mail.ErrThrottled
	}
	if err := t.failing[msg.To]; err != nil {
		return err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) totalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		n += c
	}
	return n
}

type countingPacer struct {
	waits    int
	backoffs []int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.waits++
	return nil
}

func (p *countingPacer) Backoff(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.backoffs = append(p.backoffs, attempt)
	return nil
}

// --- locks ---

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) TryLock(_ context.Context, name string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
	}, true, nil
}

var errBoom = errors.New("boom")
