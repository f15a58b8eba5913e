package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/helpq/helpq/internal/ports"
)

// MemoryGuard is an in-process cooldown guard for tests and single-node
// development without Redis.
type MemoryGuard struct {
	mu      sync.Mutex
	expires map[string]time.Time
	clock   ports.Clock
}

// NewMemoryGuard creates an in-memory cooldown guard.
func NewMemoryGuard(clock ports.Clock) *MemoryGuard {
	return &MemoryGuard{expires: make(map[string]time.Time), clock: clock}
}

// Arm starts a cooldown window for the student on the queue.
func (g *MemoryGuard) Arm(_ context.Context, queueID, studentUserID string, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expires[cooldownKey(queueID, studentUserID)] = g.clock.Now().Add(d)
	return nil
}

// Remaining reports the time left on an armed cooldown.
func (g *MemoryGuard) Remaining(_ context.Context, queueID, studentUserID string) (time.Duration, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := cooldownKey(queueID, studentUserID)
	expiry, ok := g.expires[key]
	if !ok {
		return 0, false, nil
	}
	remaining := expiry.Sub(g.clock.Now())
	if remaining <= 0 {
		delete(g.expires, key)
		return 0, false, nil
	}
	return remaining, true, nil
}
