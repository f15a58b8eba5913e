package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

// StatsService derives session and utilization statistics from the ticket
// and login event logs.
type StatsService struct {
	events  ports.EventRepository
	logins  ports.LoginEventRepository
	courses ports.CourseDirectory
	clock   ports.Clock
}

// NewStatsService wires the statistics derivations.
func NewStatsService(
	events ports.EventRepository,
	logins ports.LoginEventRepository,
	courses ports.CourseDirectory,
	clock ports.Clock,
) *StatsService {
	return &StatsService{events: events, logins: logins, courses: courses, clock: clock}
}

// EventCounts tallies the queue's ticket events per kind.
func (s *StatsService) EventCounts(ctx context.Context, queueID string) (map[domain.EventKind]int, error) {
	return s.events.CountByKind(ctx, queueID)
}

// GraderHelpTime sums the time the grader spent actively helping on the
// queue: accepted-to-closed intervals from the event log, which attributes
// time correctly across defer and re-accept cycles.
func (s *StatsService) GraderHelpTime(ctx context.Context, queueID, graderUserID string) (time.Duration, error) {
	events, err := s.events.ByActor(ctx, queueID, graderUserID)
	if err != nil {
		return 0, fmt.Errorf("loading grader events: %w", err)
	}

	// Intervals the grader opened can be closed by someone else (a student
	// cancel, another grader's steal), so pull each touched ticket's full
	// trail before attributing.
	seen := make(map[string]bool)
	var total time.Duration
	for _, e := range events {
		if e.Kind != domain.EventAccepted || seen[e.TicketID] {
			continue
		}
		seen[e.TicketID] = true
		trail, err := s.events.ByTicket(ctx, e.TicketID)
		if err != nil {
			return 0, fmt.Errorf("loading trail for %s: %w", e.TicketID, err)
		}
		total += domain.AttributedHelpTime(trail, graderUserID)
	}
	return total, nil
}

// DutySessions derives the course's grader on/off-duty windows from paired
// login events since the given time.
func (s *StatsService) DutySessions(ctx context.Context, queueID string, since time.Time) ([]domain.Session, error) {
	courseID, err := s.courses.CourseForQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	events, err := s.logins.ByCourse(ctx, courseID, since)
	if err != nil {
		return nil, fmt.Errorf("loading login events: %w", err)
	}
	return domain.Sessions(events), nil
}
