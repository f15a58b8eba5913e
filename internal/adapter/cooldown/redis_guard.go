package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/helpq/helpq/internal/ports"
)

// RedisGuard tracks submission cooldowns in Redis: one key per queue and
// student with a TTL equal to the cooldown window. Remaining is a PTTL
// read, so the check and the expiry share one clock.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisGuard creates a Redis-backed cooldown guard.
func NewRedisGuard(client *redis.Client) ports.CooldownGuard {
	return &RedisGuard{client: client}
}

func cooldownKey(queueID, studentUserID string) string {
	return fmt.Sprintf("cooldown:%s:%s", queueID, studentUserID)
}

// Arm starts a cooldown window for the student on the queue.
func (g *RedisGuard) Arm(ctx context.Context, queueID, studentUserID string, d time.Duration) error {
	if err := g.client.Set(ctx, cooldownKey(queueID, studentUserID), 1, d).Err(); err != nil {
		return fmt.Errorf("arming cooldown: %w", err)
	}
	return nil
}

// Remaining reports the time left on an armed cooldown.
func (g *RedisGuard) Remaining(ctx context.Context, queueID, studentUserID string) (time.Duration, bool, error) {
	ttl, err := g.client.PTTL(ctx, cooldownKey(queueID, studentUserID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("reading cooldown: %w", err)
	}
	// PTTL returns a negative duration for missing or persistent keys.
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}
