package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies a domain error for transport mapping.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindStateConflict ErrorKind = "STATE_CONFLICT"
	KindPolicy        ErrorKind = "POLICY"
	KindAuthorization ErrorKind = "AUTHORIZATION"
)

// DomainError is a typed business error. Errors with the same code compare
// equal under errors.Is, so parameterized instances still match their
// sentinel.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on the error code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func newDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

var (
	ErrTicketNotFound = newDomainError(KindNotFound, "TICKET_NOT_FOUND", "ticket not found")
	ErrQueueNotFound  = newDomainError(KindNotFound, "QUEUE_NOT_FOUND", "queue not found")
	ErrNotEnrolled    = newDomainError(KindAuthorization, "NOT_ENROLLED", "user is not enrolled in the course")
	ErrNotAuthorized  = newDomainError(KindAuthorization, "NOT_AUTHORIZED", "insufficient privileges for this operation")

	ErrTicketNotPending = newDomainError(KindStateConflict, "TICKET_NOT_PENDING", "ticket is not pending")
	ErrTicketNotHeld    = newDomainError(KindStateConflict, "TICKET_NOT_HELD", "ticket is not accepted by a grader")
	ErrTicketTerminal   = newDomainError(KindStateConflict, "TICKET_TERMINAL", "ticket is already closed")
	ErrEditForbidden    = newDomainError(KindAuthorization, "EDIT_FORBIDDEN", "ticket may not be edited by this user")
	ErrStaleTicket      = newDomainError(KindStateConflict, "STALE_TICKET", "ticket changed concurrently, reload and retry")

	ErrDuplicateActiveTicket  = newDomainError(KindPolicy, "DUPLICATE_ACTIVE_TICKET", "student already has an open ticket on this queue")
	ErrCooldownActive         = newDomainError(KindPolicy, "COOLDOWN_ACTIVE", "submission cooldown is active")
	ErrQueueClosed            = newDomainError(KindPolicy, "QUEUE_CLOSED", "queue is closed to new tickets")
	ErrInvalidQueueTransition = newDomainError(KindStateConflict, "INVALID_QUEUE_TRANSITION", "queue status transition is not allowed")
)

// NewCooldownActive builds a cooldown violation carrying the remaining
// wait. It matches ErrCooldownActive under errors.Is.
func NewCooldownActive(remaining time.Duration) *DomainError {
	return newDomainError(KindPolicy, ErrCooldownActive.Code,
		fmt.Sprintf("submission cooldown is active, retry in %s", remaining.Round(time.Second)))
}

// NewValidationError builds a validation failure with the given message.
func NewValidationError(message string) *DomainError {
	return newDomainError(KindValidation, "VALIDATION_FAILED", message)
}
