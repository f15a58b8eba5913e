package ports

import (
	"context"
	"time"

	"github.com/helpq/helpq/internal/domain"
)

// EnrollmentResolver looks up the course-scoped identity for a user. The
// resolved enrollment is passed explicitly through an operation; methods
// never re-resolve mid-flight.
type EnrollmentResolver interface {
	// ResolveEnrollment returns the user's enrollment in the course, or
	// domain.ErrNotEnrolled when there is none.
	ResolveEnrollment(ctx context.Context, userID, courseID string) (domain.Enrollment, error)
}

// CourseDirectory maps queues to their owning course.
type CourseDirectory interface {
	CourseForQueue(ctx context.Context, queueID string) (string, error)
}

// Clock supplies the current time and is injected for testability.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}
