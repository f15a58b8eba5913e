package ports

import (
	"context"
	"time"

	"github.com/helpq/helpq/internal/domain"
)

// TicketRepository defines the interface for ticket persistence. State
// mutations are all-or-nothing: the ticket row and its audit event commit
// in the same unit of work.
type TicketRepository interface {
	// Create persists a new ticket with its CREATED event. The one-active-
	// ticket-per-student rule is re-validated atomically with the insert;
	// a violation surfaces as domain.ErrDuplicateActiveTicket.
	Create(ctx context.Context, t *domain.Ticket, created *domain.TicketEvent) error

	// FindByID retrieves a ticket by its ID.
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)

	// Update persists the ticket and appends the event atomically, guarded
	// by a compare-and-swap on the prior status. A concurrent transition
	// surfaces as domain.ErrStaleTicket.
	Update(ctx context.Context, t *domain.Ticket, from domain.TicketStatus, event *domain.TicketEvent) error

	// AcceptForGrader defers whichever ticket the grader currently holds on
	// the course (logging one DEFERRED event) and transitions the target
	// from PENDING to ACCEPTED (logging one ACCEPTED event), all in a
	// single transaction. Exactly one of two racing callers succeeds; the
	// loser receives domain.ErrTicketNotPending. Returns the accepted
	// ticket and the deferred one, if any.
	AcceptForGrader(ctx context.Context, ticketID string, grader domain.Enrollment, at time.Time) (accepted, deferred *domain.Ticket, err error)

	// ActiveByStudent returns the student's PENDING or ACCEPTED ticket on
	// the queue, or nil when there is none.
	ActiveByStudent(ctx context.Context, queueID, studentUserID string) (*domain.Ticket, error)

	// Pending lists the queue's PENDING tickets by ascending creation time.
	Pending(ctx context.Context, queueID string) ([]*domain.Ticket, error)

	// Accepted lists the queue's ACCEPTED tickets.
	Accepted(ctx context.Context, queueID string) ([]*domain.Ticket, error)

	// Unresolved lists every PENDING and ACCEPTED ticket on the queue.
	Unresolved(ctx context.Context, queueID string) ([]*domain.Ticket, error)

	// ResolvedBetween lists tickets resolved on the queue with closed_at in
	// [start, end).
	ResolvedBetween(ctx context.Context, queueID string, start, end time.Time) ([]*domain.Ticket, error)

	// Position returns the 1-based rank of a pending ticket among the
	// queue's PENDING tickets by ascending creation time.
	Position(ctx context.Context, t *domain.Ticket) (int, error)
}

// EventRepository defines the interface for the append-only ticket audit
// trail. Events are never updated or deleted.
type EventRepository interface {
	// Append records one immutable event.
	Append(ctx context.Context, e *domain.TicketEvent) error

	// ByTicket lists a ticket's events by ascending timestamp.
	ByTicket(ctx context.Context, ticketID string) ([]*domain.TicketEvent, error)

	// ByActor lists events on the queue's tickets performed by the user,
	// ascending by timestamp.
	ByActor(ctx context.Context, queueID, actorUserID string) ([]*domain.TicketEvent, error)

	// CountByKind tallies the queue's events per kind.
	CountByKind(ctx context.Context, queueID string) (map[domain.EventKind]int, error)
}

// QueueRepository defines the interface for queue persistence.
type QueueRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Queue, error)
	FindByCourse(ctx context.Context, courseID string) (*domain.Queue, error)
	Save(ctx context.Context, q *domain.Queue) error

	// UpdateStatus applies a status change guarded by a compare-and-swap on
	// the prior status. A concurrent change surfaces as
	// domain.ErrInvalidQueueTransition.
	UpdateStatus(ctx context.Context, queueID string, from, to domain.QueueStatus) error
}

// LoginEventRepository defines the interface for the grader duty log.
type LoginEventRepository interface {
	// Append records one login or logout event.
	Append(ctx context.Context, e *domain.LoginEvent) error

	// ByCourse lists the course's login events since the given time,
	// ascending by timestamp.
	ByCourse(ctx context.Context, courseID string, since time.Time) ([]*domain.LoginEvent, error)

	// ActiveGraders returns the user ids whose latest event on the course
	// is a login.
	ActiveGraders(ctx context.Context, courseID string) ([]string, error)
}
