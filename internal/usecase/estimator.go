package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

const (
	// MinWaitTime is returned when too few samples exist for a stable
	// average; early-session noise would otherwise skew the estimate.
	MinWaitTime = 5 * time.Minute

	// MinSamples is the smallest resolved-ticket count the average trusts.
	MinSamples = 5
)

// Window bounds the recency of the estimator's sample set: [Start, End].
// The end is inclusive so a ticket resolved at the query instant counts.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastHour is the window covering the hour before now.
func LastHour(now time.Time) Window {
	return Window{Start: now.Add(-time.Hour), End: now}
}

// Today is the window from local midnight to now.
func Today(now time.Time) Window {
	year, month, day := now.Date()
	return Window{Start: time.Date(year, month, day, 0, 0, 0, 0, now.Location()), End: now}
}

// Estimator derives expected wait times from historical resolution
// durations and grader availability. It never errors on missing data;
// floors and sentinels cover the empty cases.
type Estimator struct {
	tickets ports.TicketRepository
	events  ports.EventRepository
	queues  ports.QueueRepository
	logins  ports.LoginEventRepository
	clock   ports.Clock
}

// NewEstimator wires the wait-time estimator.
func NewEstimator(
	tickets ports.TicketRepository,
	events ports.EventRepository,
	queues ports.QueueRepository,
	logins ports.LoginEventRepository,
	clock ports.Clock,
) *Estimator {
	return &Estimator{tickets: tickets, events: events, queues: queues, logins: logins, clock: clock}
}

// AverageHelpTime averages the event-derived help durations of tickets
// resolved within the window. Fewer than MinSamples samples return the
// MinWaitTime floor.
func (e *Estimator) AverageHelpTime(ctx context.Context, queueID string, w Window) (time.Duration, error) {
	resolved, err := e.tickets.ResolvedBetween(ctx, queueID, w.Start, w.End)
	if err != nil {
		return 0, fmt.Errorf("loading resolved tickets: %w", err)
	}

	var total time.Duration
	samples := 0
	for _, t := range resolved {
		events, err := e.events.ByTicket(ctx, t.ID)
		if err != nil {
			return 0, fmt.Errorf("loading events for %s: %w", t.ID, err)
		}
		if d := domain.HelpTime(events); d > 0 {
			total += d
			samples++
		}
	}

	if samples < MinSamples {
		return MinWaitTime, nil
	}
	return total / time.Duration(samples), nil
}

// WaitTimeForNextTutor estimates how long until any grader frees up. Zero
// when more graders are on duty than tickets are being helped; otherwise
// the worst case over all accepted tickets of the average help time minus
// the time already spent, floored at zero.
func (e *Estimator) WaitTimeForNextTutor(ctx context.Context, queueID string) (time.Duration, error) {
	q, err := e.queues.FindByID(ctx, queueID)
	if err != nil {
		return 0, err
	}
	graders, err := e.logins.ActiveGraders(ctx, q.CourseID)
	if err != nil {
		return 0, fmt.Errorf("loading active graders: %w", err)
	}
	accepted, err := e.tickets.Accepted(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("loading accepted tickets: %w", err)
	}
	if len(graders) > len(accepted) {
		return 0, nil
	}

	now := e.clock.Now()
	avg, err := e.AverageHelpTime(ctx, queueID, LastHour(now))
	if err != nil {
		return 0, err
	}

	var wait time.Duration
	for _, t := range accepted {
		if t.AcceptedAt == nil {
			continue
		}
		if remaining := avg - now.Sub(*t.AcceptedAt); remaining > wait {
			wait = remaining
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

// WaitTimeFor estimates the wait for a student's pending ticket: queue
// position times the average help time, plus the time until a grader frees
// up. ok is false when the student has no pending ticket.
func (e *Estimator) WaitTimeFor(ctx context.Context, queueID, studentUserID string) (wait time.Duration, ok bool, err error) {
	t, err := e.tickets.ActiveByStudent(ctx, queueID, studentUserID)
	if err != nil {
		return 0, false, fmt.Errorf("loading student ticket: %w", err)
	}
	if t == nil || t.Status != domain.TicketStatusPending {
		return 0, false, nil
	}

	position, err := e.tickets.Position(ctx, t)
	if err != nil {
		return 0, false, fmt.Errorf("computing position: %w", err)
	}
	avg, err := e.AverageHelpTime(ctx, queueID, LastHour(e.clock.Now()))
	if err != nil {
		return 0, false, err
	}
	next, err := e.WaitTimeForNextTutor(ctx, queueID)
	if err != nil {
		return 0, false, err
	}
	return time.Duration(position)*avg + next, true, nil
}

// QueueWaitTime estimates the wait for a ticket submitted right now:
// pending count times the average help time.
func (e *Estimator) QueueWaitTime(ctx context.Context, queueID string) (time.Duration, error) {
	pending, err := e.tickets.Pending(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("loading pending tickets: %w", err)
	}
	avg, err := e.AverageHelpTime(ctx, queueID, LastHour(e.clock.Now()))
	if err != nil {
		return 0, err
	}
	return time.Duration(len(pending)) * avg, nil
}
