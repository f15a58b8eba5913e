package domain

import "time"

// QueueStatus is the administrative state of a queue.
type QueueStatus string

const (
	QueueStatusOpen   QueueStatus = "OPEN"
	QueueStatusLocked QueueStatus = "LOCKED"
	QueueStatusClosed QueueStatus = "CLOSED"
)

// QueueTransition reports whether a queue may move between the two
// statuses. A closed queue must be reopened before it can be locked.
func QueueTransition(from, to QueueStatus) bool {
	switch from {
	case QueueStatusOpen:
		return to == QueueStatusLocked || to == QueueStatusClosed
	case QueueStatusLocked:
		return to == QueueStatusOpen || to == QueueStatusClosed
	case QueueStatusClosed:
		return to == QueueStatusOpen
	default:
		return false
	}
}

// Queue is the office-hours session context owning tickets for one course.
type Queue struct {
	ID                    string        `json:"id"`
	CourseID              string        `json:"course_id"`
	Status                QueueStatus   `json:"status"`
	HighCapacityEnabled   bool          `json:"high_capacity_enabled"`
	HighCapacityThreshold int           `json:"high_capacity_threshold"`
	HighCapacityMessage   string        `json:"high_capacity_message,omitempty"`
	HighCapacityWarning   string        `json:"high_capacity_warning,omitempty"`
	Cooldown              time.Duration `json:"cooldown"`
}

// AcceptingTickets reports whether submissions are allowed. Only a closed
// queue rejects them; a locked queue still accumulates tickets.
func (q *Queue) AcceptingTickets() bool {
	return q.Status != QueueStatusClosed
}

// AtHighCapacity reports whether the unresolved ticket count exceeds the
// configured threshold. High capacity only surfaces warning messaging, it
// never blocks submission.
func (q *Queue) AtHighCapacity(unresolved int) bool {
	return q.HighCapacityEnabled && unresolved > q.HighCapacityThreshold
}

// SetStatus applies an administrative status change, validating the
// transition.
func (q *Queue) SetStatus(to QueueStatus) error {
	if !QueueTransition(q.Status, to) {
		return ErrInvalidQueueTransition
	}
	q.Status = to
	return nil
}
