// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oncall_reminder_engine/internal/domain/doctor"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultAssignmentLeadDays are the J-1 and J-7 per-slot reminders.
var DefaultAssignmentLeadDays = []int{1, 7}

const reminderLockName = "reminder-tick"

// ErrInvalidEventKey is returned by MarkSent for an incomplete key.
var ErrInvalidEventKey = errors.New("invalid reminder event key")

// Error stages of a tick.
const (
	StagePersistence = "persistence" // read failure, the period was aborted
	StageLedger      = "ledger"      // non-idempotency ledger write failure
	StageDispatch    = "dispatch"    // transport failure for one recipient
	StageCompose     = "compose"
)

// TickOptions are the mode flags of one invocation.
type TickOptions struct {
	DryRun bool
	Debug  bool
	RunID  string
}

// TickError is one entry of the run's error list.
type TickError struct {
	Stage    string        `json:"stage"`
	PeriodID int64         `json:"period_id,omitempty"`
	Kind     reminder.Kind `json:"kind,omitempty"`
	Target   string        `json:"target,omitempty"`
	Message  string        `json:"message"`
}

// KindReport details one due kind of one period.
type KindReport struct {
	Kind       reminder.Kind `json:"kind"`
	WindowKeys []string      `json:"window_keys"`
	Recipients []string      `json:"recipients,omitempty"`
	Sent       int           `json:"sent"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
}

// PeriodReport is included when Debug or DryRun is set.
type PeriodReport struct {
	PeriodID int64         `json:"period_id"`
	Label    string        `json:"label"`
	Kinds    []*KindReport `json:"kinds"`
}

// TickSummary is the structured result returned to the trigger.
type TickSummary struct {
	RunID                string                     `json:"run_id"`
	Now                  time.Time                  `json:"now"`
	DryRun               bool                       `json:"dry_run"`
	DueKinds             map[string][]reminder.Kind `json:"due_kinds"`
	RecipientsConsidered int                        `json:"recipients_considered"`
	SentCount            int                        `json:"sent_count"`
	SkippedCount         int                        `json:"skipped_count"`
	FailedCount          int                        `json:"failed_count"`
	Errors               []TickError                `json:"errors"`
	Periods              []*PeriodReport            `json:"periods,omitempty"`
	Note                 string                     `json:"note,omitempty"`
}

func (s *TickSummary) addError(e TickError) {
	s.Errors = append(s.Errors, e)
}

// RunReporter is told about every finished tick.
type RunReporter interface {
	ReportTick(ctx context.Context, summary *TickSummary)
}

// ReminderService runs the reminder pipeline: for each period, evaluate due
// kinds, resolve recipients and dispatch through the ledger.
type ReminderService struct {
	periods         period.Repository
	recipients      RecipientResolver
	assignments     doctor.AssignmentRepository
	ledger          reminder.Ledger
	dispatcher      *Dispatcher
	composer        *Composer
	locker          Locker
	reporter        RunReporter
	policy          reminder.Policy
	assignmentLeads []int
	logger          *logrus.Entry
}

// ReminderServiceDeps groups the collaborators of ReminderService.
type ReminderServiceDeps struct {
	Periods         period.Repository
	Recipients      RecipientResolver
	Assignments     doctor.AssignmentRepository
	Ledger          reminder.Ledger
	Dispatcher      *Dispatcher
	Composer        *Composer
	Locker          Locker
	Reporter        RunReporter
	Policy          reminder.Policy
	AssignmentLeads []int
}

func NewReminderService(deps ReminderServiceDeps, logger *logrus.Entry) *ReminderService {
	if deps.Locker == nil {
		deps.Locker = NoopLocker{}
	}
	if deps.AssignmentLeads == nil {
		deps.AssignmentLeads = DefaultAssignmentLeadDays
	}
	if deps.Composer == nil {
		deps.Composer = NewComposer("")
	}
	return &ReminderService{
		periods:         deps.Periods,
		recipients:      deps.Recipients,
		assignments:     deps.Assignments,
		ledger:          deps.Ledger,
		dispatcher:      deps.Dispatcher,
		composer:        deps.Composer,
		locker:          deps.Locker,
		reporter:        deps.Reporter,
		policy:          deps.Policy,
		assignmentLeads: deps.AssignmentLeads,
		logger:          logger,
	}
}

// Tick evaluates every period at now. It never fails as a whole: period
// read failures and per-recipient failures are reported in the summary.
func (s *ReminderService) Tick(ctx context.Context, now time.Time, opts TickOptions) *TickSummary {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	summary := &TickSummary{
		RunID:    opts.RunID,
		Now:      now.UTC(),
		DryRun:   opts.DryRun,
		DueKinds: map[string][]reminder.Kind{},
		Errors:   []TickError{},
	}
	log := s.logger.WithFields(logrus.Fields{"run_id": opts.RunID, "dry_run": opts.DryRun})
	log.WithField("now", summary.Now).Info("Reminder tick started")

	if !opts.DryRun {
		release, ok, err := s.locker.TryLock(ctx, reminderLockName, 10*time.Minute)
		if err != nil {
			log.WithError(err).Warn("Tick lock unavailable, continuing without it")
		} else if !ok {
			log.Info("Another tick holds the lock, skipping")
			summary.Note = "another run in progress"
			return summary
		} else {
			defer release()
		}
	}

	periods, err := s.periods.ListWithSettings(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list periods")
		summary.addError(TickError{Stage: StagePersistence, Message: fmt.Sprintf("list periods: %v", err)})
		s.report(ctx, summary)
		return summary
	}

	for _, p := range periods {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Tick cancelled, remaining periods left for next tick")
			break
		}
		s.processPeriod(ctx, p, now, opts, summary, log.WithFields(logrus.Fields{"period_id": p.ID, "label": p.Label}))
	}

	log.WithFields(logrus.Fields{
		"sent":    summary.SentCount,
		"skipped": summary.SkippedCount,
		"failed":  summary.FailedCount,
		"errors":  len(summary.Errors),
	}).Info("Reminder tick finished")
	s.report(ctx, summary)
	return summary
}

func (s *ReminderService) report(ctx context.Context, summary *TickSummary) {
	if s.reporter != nil {
		s.reporter.ReportTick(ctx, summary)
	}
}

// Evaluate returns the kinds due for one period at now.
func (s *ReminderService) Evaluate(p *period.Period, now time.Time) []reminder.Kind {
	return evaluatePeriod(p, now, s.policy)
}

func evaluatePeriod(p *period.Period, now time.Time, policy reminder.Policy) []reminder.Kind {
	st := p.Settings
	if st == nil {
		return nil
	}
	in := reminder.DueInput{
		Now:           now,
		WeeklyEnabled: st.WeeklyReminder,
		ExtraHours:    st.ExtraReminderHours,
		Location:      p.Location(),
	}
	if !st.AvailDeadline.IsZero() {
		deadline := st.AvailDeadline
		in.Deadline = &deadline
	}
	if !st.AvailOpenAt.IsZero() {
		openAt := st.AvailOpenAt
		in.AvailOpenAt = &openAt
	}
	if !p.CreatedAt.IsZero() {
		createdAt := p.CreatedAt
		in.CreatedAt = &createdAt
	}
	return reminder.Evaluate(in, policy)
}

func (s *ReminderService) processPeriod(ctx context.Context, p *period.Period, now time.Time, opts TickOptions, summary *TickSummary, log *logrus.Entry) {
	if p.Settings == nil {
		log.Debug("Period has no automation settings, skipping")
		return
	}

	due := s.Evaluate(p, now)

	assigned := map[reminder.Kind][]doctor.AssignedSlot{}
	var assignmentKinds []reminder.Kind
	if p.Settings.LockAssignments && s.assignments != nil {
		for _, lead := range s.assignmentLeads {
			from, to := reminder.AssignmentWindow(now, lead, s.policy)
			slots, err := s.assignments.ListAssignedStartingBetween(ctx, p.ID, from, to)
			if err != nil {
				log.WithError(err).Error("Failed to list assignments, aborting period for this tick")
				summary.addError(TickError{Stage: StagePersistence, PeriodID: p.ID, Message: fmt.Sprintf("list assignments: %v", err)})
				return
			}
			if len(slots) > 0 {
				kind := reminder.AssignmentKind(lead)
				assigned[kind] = slots
				assignmentKinds = append(assignmentKinds, kind)
			}
		}
	}

	if len(due) == 0 && len(assignmentKinds) == 0 {
		return
	}
	summary.DueKinds[p.Label] = append(append([]reminder.Kind{}, due...), assignmentKinds...)
	log.WithField("due_kinds", summary.DueKinds[p.Label]).Info("Reminders due")

	var pr *PeriodReport
	if opts.Debug || opts.DryRun {
		pr = &PeriodReport{PeriodID: p.ID, Label: p.Label}
		summary.Periods = append(summary.Periods, pr)
	}

	if len(due) > 0 {
		recipients, err := s.recipients.Resolve(ctx, p.ID)
		if err != nil {
			log.WithError(err).Error("Failed to resolve recipients, aborting period for this tick")
			summary.addError(TickError{Stage: StagePersistence, PeriodID: p.ID, Message: err.Error()})
			return
		}
		summary.RecipientsConsidered += len(recipients)

		for _, kind := range due {
			windowKey := s.windowKey(kind, p, now)
			batch := make([]Delivery, 0, len(recipients))
			for _, rc := range recipients {
				msg, err := s.composer.Availability(kind, p, rc)
				if err != nil {
					summary.addError(TickError{Stage: StageCompose, PeriodID: p.ID, Kind: kind, Target: rc.Email, Message: err.Error()})
					continue
				}
				batch = append(batch, Delivery{
					Key:       reminder.EventKey{PeriodID: p.ID, Kind: kind, WindowKey: windowKey, Target: rc.Email},
					Recipient: rc,
					Message:   msg,
					Meta:      map[string]any{"user_id": rc.UserID, "run_id": opts.RunID},
				})
			}
			s.runBatch(ctx, kind, []string{windowKey}, batch, opts, summary, pr, log)
		}
	}

	for _, kind := range assignmentKinds {
		slots := assigned[kind]
		batch := make([]Delivery, 0, len(slots))
		keys := make([]string, 0, len(slots))
		for _, a := range slots {
			msg, err := s.composer.Assignment(kind, p, a)
			if err != nil {
				summary.addError(TickError{Stage: StageCompose, PeriodID: p.ID, Kind: kind, Target: a.Recipient.Email, Message: err.Error()})
				continue
			}
			windowKey := reminder.SlotWindowKey(a.SlotID)
			keys = append(keys, windowKey)
			batch = append(batch, Delivery{
				Key:       reminder.EventKey{PeriodID: p.ID, Kind: kind, WindowKey: windowKey, Target: a.Recipient.Email},
				Recipient: a.Recipient,
				Message:   msg,
				Meta: map[string]any{
					"user_id":  a.Recipient.UserID,
					"run_id":   opts.RunID,
					"slot_id":  a.SlotID,
					"start_ts": formatUTC(a.StartTS),
				},
			})
		}
		summary.RecipientsConsidered += len(batch)
		s.runBatch(ctx, kind, keys, batch, opts, summary, pr, log)
	}
}

// MarkSent records a reminder as delivered without sending it, for a
// recipient reached by other means. Marking the same key twice reports
// AlreadyClaimed.
func (s *ReminderService) MarkSent(ctx context.Context, key reminder.EventKey, note string) (reminder.ClaimResult, error) {
	key.WindowKey = strings.TrimSpace(key.WindowKey)
	key.Target = strings.TrimSpace(key.Target)
	if key.PeriodID <= 0 || !key.Kind.Valid() || key.WindowKey == "" || key.Target == "" {
		return reminder.ClaimFailed, ErrInvalidEventKey
	}
	if _, err := s.periods.GetByID(ctx, key.PeriodID); err != nil {
		return reminder.ClaimFailed, fmt.Errorf("failed to get period %d: %w", key.PeriodID, err)
	}

	meta := map[string]any{"source": "manual"}
	if note != "" {
		meta["note"] = note
	}
	res, err := s.ledger.RecordSent(ctx, key, meta)
	if err != nil {
		return res, fmt.Errorf("failed to record reminder %s: %w", key, err)
	}
	s.logger.WithFields(logrus.Fields{"key": key.String(), "result": res.String()}).Info("Reminder marked as sent")
	return res, nil
}

func (s *ReminderService) windowKey(kind reminder.Kind, p *period.Period, now time.Time) string {
	if kind == reminder.KindWeekly {
		return reminder.WeeklyWindowKey(now, p.Location())
	}
	if kind == reminder.KindOpening {
		return reminder.OpeningWindowKey(p.Settings.AvailOpenAt)
	}
	if h, ok := kind.DeadlineHours(); ok {
		return reminder.DeadlineWindowKey(p.Settings.AvailDeadline, h)
	}
	return string(kind)
}

func (s *ReminderService) runBatch(ctx context.Context, kind reminder.Kind, windowKeys []string, batch []Delivery, opts TickOptions, summary *TickSummary, pr *PeriodReport, log *logrus.Entry) {
	kr := &KindReport{Kind: kind, WindowKeys: windowKeys}
	if pr != nil {
		pr.Kinds = append(pr.Kinds, kr)
		for _, d := range batch {
			kr.Recipients = append(kr.Recipients, d.Recipient.Email)
		}
	}

	if opts.DryRun {
		// Reads only: no transport call and no ledger write.
		for _, d := range batch {
			sent, err := s.ledger.AlreadySent(ctx, d.Key)
			if err != nil {
				summary.addError(TickError{Stage: StageLedger, PeriodID: d.Key.PeriodID, Kind: kind, Target: d.Key.Target, Message: err.Error()})
				continue
			}
			if sent {
				kr.Skipped++
				summary.SkippedCount++
			}
		}
		log.WithFields(logrus.Fields{"kind": kind, "would_send": len(batch) - kr.Skipped, "would_skip": kr.Skipped}).Info("Dry run batch evaluated")
		return
	}

	res := s.dispatcher.Dispatch(ctx, batch)
	kr.Sent, kr.Skipped, kr.Failed = res.Sent, res.Skipped, res.Failed
	summary.SentCount += res.Sent
	summary.SkippedCount += res.Skipped
	summary.FailedCount += res.Failed

	for _, r := range res.Results {
		if r.Err == nil {
			continue
		}
		stage := StageDispatch
		switch r.Outcome {
		case OutcomeLedgerError, OutcomeUnconfirmed:
			stage = StageLedger
		case OutcomeCancelled:
			continue
		}
		summary.addError(TickError{Stage: stage, PeriodID: r.Key.PeriodID, Kind: r.Key.Kind, Target: r.Key.Target, Message: r.Err.Error()})
	}
}
