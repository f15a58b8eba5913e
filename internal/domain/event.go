package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a ticket audit-trail entry.
type EventKind string

const (
	EventCreated   EventKind = "CREATED"
	EventAccepted  EventKind = "ACCEPTED"
	EventUpdated   EventKind = "UPDATED"
	EventDeferred  EventKind = "DEFERRED"
	EventResolved  EventKind = "RESOLVED"
	EventCanceled  EventKind = "CANCELED"
	EventCommented EventKind = "COMMENTED"
)

// TicketEvent is one immutable entry in a ticket's audit trail. The event
// log is append-only; the full status history of a ticket is reconstructed
// from it.
type TicketEvent struct {
	ID       string     `json:"id"`
	TicketID string     `json:"ticket_id"`
	Kind     EventKind  `json:"kind"`
	Message  string     `json:"message,omitempty"`
	Private  bool       `json:"private"`
	Actor    Enrollment `json:"actor"`
	At       time.Time  `json:"at"`
}

// NewTicketEvent builds an event for the ticket. The privacy flag mirrors
// the ticket's privacy at the time the event is recorded.
func NewTicketEvent(t *Ticket, kind EventKind, actor Enrollment, message string, now time.Time) *TicketEvent {
	return &TicketEvent{
		ID:       uuid.NewString(),
		TicketID: t.ID,
		Kind:     kind,
		Message:  message,
		Private:  t.Private,
		Actor:    actor,
		At:       now,
	}
}

// VisibleTo reports whether the viewer may see this event. Private events
// are hidden from non-staff viewers other than the ticket's own student.
func (e *TicketEvent) VisibleTo(viewer Enrollment, t *Ticket) bool {
	if !e.Private {
		return true
	}
	return viewer.IsStaff() || t.OwnedBy(viewer)
}

// VisibleEvents filters the log down to what the viewer may see,
// preserving order.
func VisibleEvents(events []*TicketEvent, viewer Enrollment, t *Ticket) []*TicketEvent {
	out := make([]*TicketEvent, 0, len(events))
	for _, e := range events {
		if e.VisibleTo(viewer, t) {
			out = append(out, e)
		}
	}
	return out
}

// HelpTime sums the intervals a ticket was actively being helped: each
// ACCEPTED event opens an interval, closed by the next RESOLVED, DEFERRED
// or CANCELED event. This attributes time correctly across defer and
// re-accept cycles, unlike closed_at minus created_at.
func HelpTime(events []*TicketEvent) time.Duration {
	return AttributedHelpTime(events, "")
}

// AttributedHelpTime is HelpTime restricted to intervals opened by the
// given grader's ACCEPTED events. An empty user id attributes every
// interval.
func AttributedHelpTime(events []*TicketEvent, graderUserID string) time.Duration {
	ordered := make([]*TicketEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	var total time.Duration
	var openedAt *time.Time
	for _, e := range ordered {
		switch e.Kind {
		case EventAccepted:
			if graderUserID == "" || e.Actor.UserID == graderUserID {
				at := e.At
				openedAt = &at
			} else {
				openedAt = nil
			}
		case EventResolved, EventDeferred, EventCanceled:
			if openedAt != nil {
				total += e.At.Sub(*openedAt)
				openedAt = nil
			}
		}
	}
	return total
}
