package usecase

import (
	"context"
	"fmt"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/logger"
	"github.com/helpq/helpq/internal/ports"
)

// QueueService orchestrates the ticket lifecycle on a queue: submission,
// acceptance, resolution, cancellation and the policies around them.
type QueueService struct {
	tickets     ports.TicketRepository
	events      ports.EventRepository
	queues      ports.QueueRepository
	enrollments ports.EnrollmentResolver
	cooldown    ports.CooldownGuard
	notifier    ports.Notifier
	clock       ports.Clock
	log         logger.Logger
}

// NewQueueService wires the queue orchestration with its collaborators.
func NewQueueService(
	tickets ports.TicketRepository,
	events ports.EventRepository,
	queues ports.QueueRepository,
	enrollments ports.EnrollmentResolver,
	cooldown ports.CooldownGuard,
	notifier ports.Notifier,
	clock ports.Clock,
	log logger.Logger,
) *QueueService {
	return &QueueService{
		tickets:     tickets,
		events:      events,
		queues:      queues,
		enrollments: enrollments,
		cooldown:    cooldown,
		notifier:    notifier,
		clock:       clock,
		log:         log,
	}
}

// resolveForQueue loads the queue and the actor's enrollment in its course.
func (s *QueueService) resolveForQueue(ctx context.Context, queueID, userID string) (*domain.Queue, domain.Enrollment, error) {
	q, err := s.queues.FindByID(ctx, queueID)
	if err != nil {
		return nil, domain.Enrollment{}, err
	}
	enr, err := s.enrollments.ResolveEnrollment(ctx, userID, q.CourseID)
	if err != nil {
		return nil, domain.Enrollment{}, err
	}
	return q, enr, nil
}

// resolveForTicket loads the ticket, its queue and the actor's enrollment.
func (s *QueueService) resolveForTicket(ctx context.Context, ticketID, userID string) (*domain.Ticket, *domain.Queue, domain.Enrollment, error) {
	t, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, nil, domain.Enrollment{}, err
	}
	q, err := s.queues.FindByID(ctx, t.QueueID)
	if err != nil {
		return nil, nil, domain.Enrollment{}, err
	}
	enr, err := s.enrollments.ResolveEnrollment(ctx, userID, q.CourseID)
	if err != nil {
		return nil, nil, domain.Enrollment{}, err
	}
	return t, q, enr, nil
}

// Submit creates a PENDING ticket for the student, enforcing queue status,
// the one-active-ticket rule and the submission cooldown.
func (s *QueueService) Submit(ctx context.Context, queueID, studentUserID string, params domain.TicketParams) (*domain.Ticket, error) {
	q, enr, err := s.resolveForQueue(ctx, queueID, studentUserID)
	if err != nil {
		return nil, err
	}
	if !q.AcceptingTickets() {
		return nil, domain.ErrQueueClosed
	}

	existing, err := s.tickets.ActiveByStudent(ctx, queueID, studentUserID)
	if err != nil {
		return nil, fmt.Errorf("checking active ticket: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateActiveTicket
	}

	if q.Cooldown > 0 {
		remaining, active, err := s.cooldown.Remaining(ctx, queueID, studentUserID)
		if err != nil {
			// The guard is advisory; a broken backend must not block the
			// queue.
			s.log.Warn("cooldown guard unavailable", logger.Fields{"queue_id": queueID, "error": err.Error()})
		} else if active {
			return nil, domain.NewCooldownActive(remaining)
		}
	}

	now := s.clock.Now()
	t, err := domain.NewTicket(queueID, enr, params, now)
	if err != nil {
		return nil, err
	}
	created := domain.NewTicketEvent(t, domain.EventCreated, enr, t.Title, now)

	// The repository re-validates the duplicate check atomically with the
	// insert; two near-simultaneous submissions cannot both land.
	if err := s.tickets.Create(ctx, t, created); err != nil {
		return nil, err
	}

	s.log.Info("ticket submitted", logger.Fields{
		"ticket_id": t.ID,
		"queue_id":  queueID,
		"student":   studentUserID,
		"help_type": t.HelpType,
	})
	return t, nil
}

// Accept assigns a pending ticket to the acting grader. If the grader
// already holds another ticket on the course it is deferred back to the
// queue in the same transaction.
func (s *QueueService) Accept(ctx context.Context, ticketID, actorUserID string) (*domain.Ticket, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !enr.IsStaff() {
		return nil, domain.ErrNotAuthorized
	}

	accepted, deferred, err := s.tickets.AcceptForGrader(ctx, t.ID, enr, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		s.log.Info("ticket deferred for new accept", logger.Fields{
			"deferred_ticket_id": deferred.ID,
			"grader":             actorUserID,
		})
	}
	s.log.Info("ticket accepted", logger.Fields{"ticket_id": accepted.ID, "grader": actorUserID})

	if err := s.notifier.NotifyTicketAccepted(ctx, accepted); err != nil {
		s.log.Warn("accept notification failed", logger.Fields{"ticket_id": accepted.ID, "error": err.Error()})
	}
	return accepted, nil
}

// Defer returns the grader-held ticket to the queue without resolving
// it. Only the grader holding the ticket may defer it.
func (s *QueueService) Defer(ctx context.Context, ticketID, actorUserID string) (*domain.Ticket, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !enr.IsStaff() {
		return nil, domain.ErrNotAuthorized
	}
	if t.Grader != nil && !t.HeldBy(enr) {
		return nil, domain.ErrNotAuthorized
	}

	from := t.Status
	if err := t.Defer(); err != nil {
		return nil, err
	}
	ev := domain.NewTicketEvent(t, domain.EventDeferred, enr, "", s.clock.Now())
	if err := s.tickets.Update(ctx, t, from, ev); err != nil {
		return nil, err
	}
	s.log.Info("ticket deferred", logger.Fields{"ticket_id": t.ID, "grader": actorUserID})
	return t, nil
}

// Resolve closes the ticket as successfully helped. Only a grader holding
// the ticket may resolve it.
func (s *QueueService) Resolve(ctx context.Context, ticketID, actorUserID string) (*domain.Ticket, error) {
	t, q, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !enr.IsStaff() {
		return nil, domain.ErrNotAuthorized
	}
	if t.Grader != nil && !t.HeldBy(enr) {
		return nil, domain.ErrNotAuthorized
	}

	from := t.Status
	now := s.clock.Now()
	if err := t.Resolve(now); err != nil {
		return nil, err
	}
	ev := domain.NewTicketEvent(t, domain.EventResolved, enr, "", now)
	if err := s.tickets.Update(ctx, t, from, ev); err != nil {
		return nil, err
	}

	s.armCooldown(ctx, q, t)
	s.log.Info("ticket resolved", logger.Fields{"ticket_id": t.ID, "grader": actorUserID})

	if err := s.notifier.NotifyTicketResolved(ctx, t); err != nil {
		s.log.Warn("resolve notification failed", logger.Fields{"ticket_id": t.ID, "error": err.Error()})
	}
	return t, nil
}

// Cancel closes the ticket without resolution. The owning student or any
// staff member may cancel; canceling an already-closed ticket is rejected.
func (s *QueueService) Cancel(ctx context.Context, ticketID, actorUserID string) (*domain.Ticket, error) {
	t, q, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !t.OwnedBy(enr) && !enr.IsStaff() {
		return nil, domain.ErrNotAuthorized
	}

	from := t.Status
	now := s.clock.Now()
	if err := t.Cancel(now); err != nil {
		return nil, err
	}
	ev := domain.NewTicketEvent(t, domain.EventCanceled, enr, "", now)
	if err := s.tickets.Update(ctx, t, from, ev); err != nil {
		return nil, err
	}

	s.armCooldown(ctx, q, t)
	s.log.Info("ticket canceled", logger.Fields{"ticket_id": t.ID, "actor": actorUserID})
	return t, nil
}

func (s *QueueService) armCooldown(ctx context.Context, q *domain.Queue, t *domain.Ticket) {
	if q.Cooldown <= 0 {
		return
	}
	if err := s.cooldown.Arm(ctx, q.ID, t.Student.UserID, q.Cooldown); err != nil {
		s.log.Warn("failed to arm cooldown", logger.Fields{
			"queue_id": q.ID,
			"student":  t.Student.UserID,
			"error":    err.Error(),
		})
	}
}

// StudentUpdate applies the owning student's edit to an open ticket and
// logs an UPDATED event carrying the new description.
func (s *QueueService) StudentUpdate(ctx context.Context, ticketID, actorUserID string, upd domain.TicketUpdate) (*domain.Ticket, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}

	from := t.Status
	if err := t.ApplyStudentEdit(enr, upd); err != nil {
		return nil, err
	}
	ev := domain.NewTicketEvent(t, domain.EventUpdated, enr, t.Description, s.clock.Now())
	if err := s.tickets.Update(ctx, t, from, ev); err != nil {
		return nil, err
	}
	s.log.Info("ticket updated", logger.Fields{"ticket_id": t.ID, "student": actorUserID})
	return t, nil
}

// Comment appends a COMMENTED event to the ticket's trail. Any enrollment
// that can view the ticket may comment.
func (s *QueueService) Comment(ctx context.Context, ticketID, actorUserID, message string) (*domain.TicketEvent, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !t.CanView(enr) {
		return nil, domain.ErrNotAuthorized
	}
	if message == "" {
		return nil, domain.NewValidationError("comment message is required")
	}
	ev := domain.NewTicketEvent(t, domain.EventCommented, enr, message, s.clock.Now())
	if err := s.events.Append(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Ticket returns the ticket if the actor may view it.
func (s *QueueService) Ticket(ctx context.Context, ticketID, actorUserID string) (*domain.Ticket, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !t.CanView(enr) {
		return nil, domain.ErrTicketNotFound
	}
	return t, nil
}

// Events returns the ticket's permission-filtered history, ascending by
// timestamp. A viewer who cannot see the ticket gets an empty history.
func (s *QueueService) Events(ctx context.Context, ticketID, actorUserID string) ([]*domain.TicketEvent, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !t.CanView(enr) {
		return []*domain.TicketEvent{}, nil
	}
	events, err := s.events.ByTicket(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return domain.VisibleEvents(events, enr, t), nil
}

// Position returns the 1-based rank of a pending ticket on its queue.
func (s *QueueService) Position(ctx context.Context, ticketID, actorUserID string) (int, error) {
	t, _, enr, err := s.resolveForTicket(ctx, ticketID, actorUserID)
	if err != nil {
		return 0, err
	}
	if !t.CanView(enr) {
		return 0, domain.ErrTicketNotFound
	}
	if t.Status != domain.TicketStatusPending {
		return 0, domain.ErrTicketNotPending
	}
	return s.tickets.Position(ctx, t)
}

// HighCapacityInfo surfaces the queue's capacity warning to clients.
type HighCapacityInfo struct {
	AtHighCapacity bool   `json:"at_high_capacity"`
	Unresolved     int    `json:"unresolved"`
	Message        string `json:"message,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

// HighCapacity reports whether the queue's unresolved ticket count exceeds
// its threshold. Submission is never blocked by this.
func (s *QueueService) HighCapacity(ctx context.Context, queueID string) (HighCapacityInfo, error) {
	q, err := s.queues.FindByID(ctx, queueID)
	if err != nil {
		return HighCapacityInfo{}, err
	}
	unresolved, err := s.tickets.Unresolved(ctx, queueID)
	if err != nil {
		return HighCapacityInfo{}, fmt.Errorf("counting unresolved tickets: %w", err)
	}
	info := HighCapacityInfo{Unresolved: len(unresolved)}
	if q.AtHighCapacity(len(unresolved)) {
		info.AtHighCapacity = true
		info.Message = q.HighCapacityMessage
		info.Warning = q.HighCapacityWarning
	}
	return info, nil
}

// ClearTickets cancels every unresolved ticket on the queue. Administrative
// reset between sessions; instructor or higher.
func (s *QueueService) ClearTickets(ctx context.Context, queueID, actorUserID string) (int, error) {
	_, enr, err := s.resolveForQueue(ctx, queueID, actorUserID)
	if err != nil {
		return 0, err
	}
	if !enr.Role.HasAtLeast(domain.RoleInstructor) {
		return 0, domain.ErrNotAuthorized
	}

	unresolved, err := s.tickets.Unresolved(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("listing unresolved tickets: %w", err)
	}

	cleared := 0
	now := s.clock.Now()
	for _, t := range unresolved {
		from := t.Status
		if err := t.Cancel(now); err != nil {
			continue
		}
		ev := domain.NewTicketEvent(t, domain.EventCanceled, enr, "queue cleared", now)
		if err := s.tickets.Update(ctx, t, from, ev); err != nil {
			// A ticket that closed concurrently is fine to skip.
			s.log.Warn("skipping ticket during clear", logger.Fields{"ticket_id": t.ID, "error": err.Error()})
			continue
		}
		cleared++
	}
	s.log.Info("queue cleared", logger.Fields{"queue_id": queueID, "cleared": cleared, "actor": actorUserID})
	return cleared, nil
}

// SetQueueStatus applies an administrative queue status change.
func (s *QueueService) SetQueueStatus(ctx context.Context, queueID, actorUserID string, to domain.QueueStatus) (*domain.Queue, error) {
	q, enr, err := s.resolveForQueue(ctx, queueID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !enr.Role.HasAtLeast(domain.RoleInstructor) {
		return nil, domain.ErrNotAuthorized
	}
	from := q.Status
	if err := q.SetStatus(to); err != nil {
		return nil, err
	}
	if err := s.queues.UpdateStatus(ctx, queueID, from, to); err != nil {
		return nil, err
	}
	s.log.Info("queue status changed", logger.Fields{"queue_id": queueID, "from": from, "to": to})
	return q, nil
}

// Queue returns the queue by id.
func (s *QueueService) Queue(ctx context.Context, queueID string) (*domain.Queue, error) {
	return s.queues.FindByID(ctx, queueID)
}
