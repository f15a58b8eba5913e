package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helpq/helpq/internal/domain"
	"github.com/helpq/helpq/internal/ports"
)

// WebhookNotifier POSTs ticket notifications to a configured endpoint.
// Delivery is best effort; callers treat failures as advisory.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the endpoint.
func NewWebhookNotifier(url string, timeout time.Duration) ports.Notifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Event    string `json:"event"`
	TicketID string `json:"ticket_id"`
	QueueID  string `json:"queue_id"`
	Student  string `json:"student_user_id"`
	Title    string `json:"title"`
}

func (n *WebhookNotifier) post(ctx context.Context, event string, t *domain.Ticket) error {
	body, err := json.Marshal(webhookPayload{
		Event:    event,
		TicketID: t.ID,
		QueueID:  t.QueueID,
		Student:  t.Student.UserID,
		Title:    t.Title,
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// NotifyTicketAccepted implements ports.Notifier.
func (n *WebhookNotifier) NotifyTicketAccepted(ctx context.Context, t *domain.Ticket) error {
	return n.post(ctx, "ticket_accepted", t)
}

// NotifyTicketResolved implements ports.Notifier.
func (n *WebhookNotifier) NotifyTicketResolved(ctx context.Context, t *domain.Ticket) error {
	return n.post(ctx, "ticket_resolved", t)
}
