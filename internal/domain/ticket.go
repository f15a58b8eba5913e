package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus represents the lifecycle state of a help ticket.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusAccepted TicketStatus = "ACCEPTED"
	TicketStatusResolved TicketStatus = "RESOLVED"
	TicketStatusCanceled TicketStatus = "CANCELED"
)

// Terminal reports whether no further transition may leave the status.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusCanceled
}

// Transition reports whether a ticket may move between the two statuses.
// This is the single source of truth for the lifecycle; every mutation
// below consults it.
func Transition(from, to TicketStatus) bool {
	switch from {
	case TicketStatusPending:
		return to == TicketStatusAccepted || to == TicketStatusCanceled
	case TicketStatusAccepted:
		return to == TicketStatusPending || to == TicketStatusResolved || to == TicketStatusCanceled
	default:
		return false
	}
}

// HelpType distinguishes a question from a checkoff request.
type HelpType string

const (
	HelpTypeQuestion HelpType = "QUESTION"
	HelpTypeCheckoff HelpType = "CHECKOFF"
)

// MaxTags is the most tags a ticket may carry; the first is mandatory.
const MaxTags = 3

// Ticket is a single student help request on a queue.
type Ticket struct {
	ID          string       `json:"id"`
	QueueID     string       `json:"queue_id"`
	Student     Enrollment   `json:"student"`
	Grader      *Enrollment  `json:"grader,omitempty"`
	Status      TicketStatus `json:"status"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Room        string       `json:"room"`
	Workstation string       `json:"workstation"`
	Private     bool         `json:"private"`
	HelpType    HelpType     `json:"help_type"`
	Tags        []string     `json:"tags"`
	CreatedAt   time.Time    `json:"created_at"`
	AcceptedAt  *time.Time   `json:"accepted_at,omitempty"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

// TicketParams carries the student-supplied fields of a new ticket.
type TicketParams struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Room        string   `json:"room"`
	Workstation string   `json:"workstation"`
	Private     bool     `json:"private"`
	HelpType    HelpType `json:"help_type"`
	Tags        []string `json:"tags"`
}

func validateTags(tags []string) ([]string, error) {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := strings.TrimSpace(tag); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, NewValidationError("at least one tag is required")
	}
	if len(cleaned) > MaxTags {
		return nil, NewValidationError("a ticket may carry at most 3 tags")
	}
	return cleaned, nil
}

// NewTicket validates the parameters and builds a PENDING ticket for the
// submitting student.
func NewTicket(queueID string, student Enrollment, p TicketParams, now time.Time) (*Ticket, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, NewValidationError("title is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, NewValidationError("description is required")
	}
	if p.HelpType != HelpTypeQuestion && p.HelpType != HelpTypeCheckoff {
		return nil, NewValidationError("help type must be QUESTION or CHECKOFF")
	}
	tags, err := validateTags(p.Tags)
	if err != nil {
		return nil, err
	}
	return &Ticket{
		ID:          uuid.NewString(),
		QueueID:     queueID,
		Student:     student,
		Status:      TicketStatusPending,
		Title:       p.Title,
		Description: p.Description,
		Room:        p.Room,
		Workstation: p.Workstation,
		Private:     p.Private,
		HelpType:    p.HelpType,
		Tags:        tags,
		CreatedAt:   now,
	}, nil
}

// Terminal reports whether the ticket has reached a terminal status.
func (t *Ticket) Terminal() bool {
	return t.Status.Terminal()
}

// OwnedBy reports whether the enrollment is the submitting student.
func (t *Ticket) OwnedBy(actor Enrollment) bool {
	return t.Student.SameUser(actor)
}

// HeldBy reports whether the enrollment is the grader currently holding
// the ticket.
func (t *Ticket) HeldBy(actor Enrollment) bool {
	return t.Grader != nil && t.Grader.SameUser(actor)
}

// Accept moves a pending ticket to ACCEPTED under the given grader.
func (t *Ticket) Accept(grader Enrollment, now time.Time) error {
	if !Transition(t.Status, TicketStatusAccepted) {
		return ErrTicketNotPending
	}
	g := grader
	at := now
	t.Status = TicketStatusAccepted
	t.Grader = &g
	t.AcceptedAt = &at
	return nil
}

// Defer returns an accepted ticket to the queue, clearing the grader.
func (t *Ticket) Defer() error {
	if t.Status != TicketStatusAccepted {
		return ErrTicketNotHeld
	}
	t.Status = TicketStatusPending
	t.Grader = nil
	t.AcceptedAt = nil
	return nil
}

// Resolve closes an accepted ticket, retaining the grader who resolved it.
func (t *Ticket) Resolve(now time.Time) error {
	if t.Status != TicketStatusAccepted {
		return ErrTicketNotHeld
	}
	at := now
	t.Status = TicketStatusResolved
	t.ClosedAt = &at
	return nil
}

// Cancel closes the ticket from any non-terminal status. The grader
// reference is cleared: only RESOLVED retains it.
func (t *Ticket) Cancel(now time.Time) error {
	if !Transition(t.Status, TicketStatusCanceled) {
		return ErrTicketTerminal
	}
	at := now
	t.Status = TicketStatusCanceled
	t.ClosedAt = &at
	t.Grader = nil
	t.AcceptedAt = nil
	return nil
}

// TicketUpdate carries the fields a student may change on an open ticket.
// Nil pointers leave the field untouched.
type TicketUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Room        *string  `json:"room,omitempty"`
	Workstation *string  `json:"workstation,omitempty"`
	Private     *bool    `json:"private,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ApplyStudentEdit mutates the ticket with the update. Only the owning
// student may edit, and only while the ticket is open.
func (t *Ticket) ApplyStudentEdit(actor Enrollment, upd TicketUpdate) error {
	if t.Terminal() || !t.OwnedBy(actor) {
		return ErrEditForbidden
	}
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return NewValidationError("title is required")
		}
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		if strings.TrimSpace(*upd.Description) == "" {
			return NewValidationError("description is required")
		}
		t.Description = *upd.Description
	}
	if upd.Room != nil {
		t.Room = *upd.Room
	}
	if upd.Workstation != nil {
		t.Workstation = *upd.Workstation
	}
	if upd.Private != nil {
		t.Private = *upd.Private
	}
	if upd.Tags != nil {
		tags, err := validateTags(upd.Tags)
		if err != nil {
			return err
		}
		t.Tags = tags
	}
	return nil
}

// CanView reports whether the enrollment may see the ticket. Public tickets
// are visible to anyone enrolled in the course; private ones only to the
// owning student and staff.
func (t *Ticket) CanView(actor Enrollment) bool {
	if actor.CourseID != t.Student.CourseID {
		return false
	}
	if !t.Private {
		return true
	}
	return t.OwnedBy(actor) || actor.IsStaff()
}

// CanEdit reports whether the enrollment may still modify the ticket.
func (t *Ticket) CanEdit(actor Enrollment) bool {
	if t.Terminal() {
		return false
	}
	return t.OwnedBy(actor) || (actor.IsStaff() && actor.CourseID == t.Student.CourseID)
}
