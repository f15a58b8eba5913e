package usecase

import (
	"context"
	"fmt"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/logger"
	"github.com/helpq/helpq/internal/ports"
)

// PresenceService tracks grader duty status for a course and keeps the
// queue status in step: a login opens the queue, the last logout locks it.
type PresenceService struct {
	logins      ports.LoginEventRepository
	queues      ports.QueueRepository
	enrollments ports.EnrollmentResolver
	clock       ports.Clock
	log         logger.Logger
}

// NewPresenceService wires the grader presence tracker.
func NewPresenceService(
	logins ports.LoginEventRepository,
	queues ports.QueueRepository,
	enrollments ports.EnrollmentResolver,
	clock ports.Clock,
	log logger.Logger,
) *PresenceService {
	return &PresenceService{
		logins:      logins,
		queues:      queues,
		enrollments: enrollments,
		clock:       clock,
		log:         log,
	}
}

// Login records the grader going on duty and opens the course queue if it
// is not already open.
func (s *PresenceService) Login(ctx context.Context, courseID, userID string) error {
	enr, err := s.enrollments.ResolveEnrollment(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !enr.IsStaff() {
		return domain.ErrNotAuthorized
	}

	if err := s.logins.Append(ctx, domain.NewLoginEvent(courseID, userID, domain.LoginEventLogin, s.clock.Now())); err != nil {
		return fmt.Errorf("recording login: %w", err)
	}

	q, err := s.queues.FindByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if q.Status != domain.QueueStatusOpen {
		if err := s.queues.UpdateStatus(ctx, q.ID, q.Status, domain.QueueStatusOpen); err != nil {
			return fmt.Errorf("opening queue: %w", err)
		}
		s.log.Info("queue opened on grader login", logger.Fields{"queue_id": q.ID, "grader": userID})
	}
	return nil
}

// Logout records the grader going off duty and locks the queue when no
// grader remains on duty.
func (s *PresenceService) Logout(ctx context.Context, courseID, userID string) error {
	enr, err := s.enrollments.ResolveEnrollment(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !enr.IsStaff() {
		return domain.ErrNotAuthorized
	}

	if err := s.logins.Append(ctx, domain.NewLoginEvent(courseID, userID, domain.LoginEventLogout, s.clock.Now())); err != nil {
		return fmt.Errorf("recording logout: %w", err)
	}

	active, err := s.logins.ActiveGraders(ctx, courseID)
	if err != nil {
		return fmt.Errorf("checking active graders: %w", err)
	}
	if len(active) > 0 {
		return nil
	}

	q, err := s.queues.FindByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if q.Status == domain.QueueStatusOpen {
		if err := s.queues.UpdateStatus(ctx, q.ID, q.Status, domain.QueueStatusLocked); err != nil {
			return fmt.Errorf("locking queue: %w", err)
		}
		s.log.Info("queue locked, no graders on duty", logger.Fields{"queue_id": q.ID})
	}
	return nil
}

// ActiveGraders returns the user ids of graders currently on duty.
func (s *PresenceService) ActiveGraders(ctx context.Context, courseID string) ([]string, error) {
	return s.logins.ActiveGraders(ctx, courseID)
}
