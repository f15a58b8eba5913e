package notify

import (
	"context"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

// NoopNotifier drops every notification. Used when no webhook endpoint is
// configured and in tests.
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that does nothing.
func NewNoopNotifier() ports.Notifier {
	return &NoopNotifier{}
}

func (n *NoopNotifier) NotifyTicketAccepted(context.Context, *domain.Ticket) error { return nil }
func (n *NoopNotifier) NotifyTicketResolved(context.Context, *domain.Ticket) error { return nil }
