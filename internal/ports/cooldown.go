package ports

import (
	"context"
	"time"
)

// CooldownGuard tracks the per-student submission cooldown on a queue. The
// guard is armed when a student's ticket closes and checked on the next
// submission.
type CooldownGuard interface {
	// Arm starts a cooldown window for the student on the queue.
	Arm(ctx context.Context, queueID, studentUserID string, d time.Duration) error

	// Remaining reports the time left on an armed cooldown. ok is false
	// when no cooldown is active.
	Remaining(ctx context.Context, queueID, studentUserID string) (remaining time.Duration, ok bool, err error)
}
