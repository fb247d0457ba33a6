package scheduler

import (
	"context"
	"fmt"
	"time"

	"oncall_reminder_engine/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// LifecycleRunner creates upcoming periods.
type LifecycleRunner interface {
	EnsureUpcomingPeriod(ctx context.Context, now time.Time) (*app.LifecycleResult, error)
}

// TickRunner runs one reminder tick.
type TickRunner interface {
	Tick(ctx context.Context, now time.Time, opts app.TickOptions) *app.TickSummary
}

// JobScheduler runs the lifecycle and reminder jobs in process, through the
// same services as the HTTP triggers.
type JobScheduler struct {
	cronEngine    *cron.Cron
	lifecycle     LifecycleRunner
	reminders     TickRunner
	logger        *logrus.Entry
	lifecycleSpec string
	tickSpec      string
	timeout       time.Duration
	now           func() time.Time
}

func NewJobScheduler(
	lifecycle LifecycleRunner,
	reminders TickRunner,
	logger *logrus.Entry,
	loc *time.Location,
	lifecycleSpec string, // e.g., "0 6 * * *" (06:00 daily)
	tickSpec string, // e.g., "*/15 * * * *" (every 15 minutes)
	timeout time.Duration,
) *JobScheduler {
	return &JobScheduler{
		// A slow tick must not overlap the next one.
		cronEngine:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		lifecycle:     lifecycle,
		reminders:     reminders,
		logger:        logger,
		lifecycleSpec: lifecycleSpec,
		tickSpec:      tickSpec,
		timeout:       timeout,
		now:           time.Now,
	}
}

func (s *JobScheduler) Start() error {
	s.logger.Info("Starting job scheduler...")

	if _, err := s.cronEngine.AddFunc(s.lifecycleSpec, s.runLifecycle); err != nil {
		return fmt.Errorf("could not add period lifecycle cron job: %w", err)
	}
	if _, err := s.cronEngine.AddFunc(s.tickSpec, s.runTick); err != nil {
		return fmt.Errorf("could not add reminder tick cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{"lifecycle": s.lifecycleSpec, "tick": s.tickSpec}).Info("Job scheduler started")
	return nil
}

func (s *JobScheduler) runLifecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.lifecycle.EnsureUpcomingPeriod(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Period lifecycle job failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"created":       res.Created,
		"repaired":      res.Repaired,
		"label":         res.Label,
		"slots_created": res.SlotsCreated,
	}).Info("Period lifecycle job finished")
}

func (s *JobScheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	summary := s.reminders.Tick(ctx, s.now(), app.TickOptions{})
	if len(summary.Errors) > 0 {
		s.logger.WithFields(logrus.Fields{"run_id": summary.RunID, "errors": len(summary.Errors)}).Warn("Reminder tick finished with errors")
	}
}

func (s *JobScheduler) Stop() {
	s.logger.Info("Stopping job scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Job scheduler gracefully stopped")
}
