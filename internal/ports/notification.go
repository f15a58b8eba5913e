package ports

import (
	"context"

	"github.com/helpq/helpq/internal/domain"
)

// Notifier delivers fire-and-forget student notifications. Callers log
// failures and never roll back a ticket transition because of one.
type Notifier interface {
	// NotifyTicketAccepted tells the student a grader is on the way.
	NotifyTicketAccepted(ctx context.Context, t *domain.Ticket) error

	// NotifyTicketResolved tells the student the ticket was resolved.
	NotifyTicketResolved(ctx context.Context, t *domain.Ticket) error
}
