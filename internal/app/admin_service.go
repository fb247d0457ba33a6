package app

import (
	"context"
	"fmt"
	"time"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// AdminService exposes the operator commands of the chat bot. Every call is
// checked against the configured admin ID.
type AdminService struct {
	status          *StatusService
	reminders       *ReminderService
	lifecycle       *LifecycleService
	adminTelegramID int64
	now             func() time.Time
}

func NewAdminService(status *StatusService, reminders *ReminderService, lifecycle *LifecycleService, adminID int64) *AdminService {
	return &AdminService{
		status:          status,
		reminders:       reminders,
		lifecycle:       lifecycle,
		adminTelegramID: adminID,
		now:             time.Now,
	}
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// Status lists the open periods with their pending doctors and due kinds.
func (s *AdminService) Status(ctx context.Context, performingAdminID int64) ([]PeriodStatus, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.status.Status(ctx, s.now())
}

// DryRun evaluates a tick without sending anything.
func (s *AdminService) DryRun(ctx context.Context, performingAdminID int64) (*TickSummary, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.reminders.Tick(ctx, s.now(), TickOptions{DryRun: true, Debug: true}), nil
}

// GeneratePeriod runs the lifecycle job immediately.
func (s *AdminService) GeneratePeriod(ctx context.Context, performingAdminID int64) (*LifecycleResult, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.lifecycle.EnsureUpcomingPeriod(ctx, s.now())
}
