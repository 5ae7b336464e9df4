package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL is how long an idempotency key is remembered.
const DefaultDedupeTTL = 24 * time.Hour

// Deduper stores processed idempotency keys in Redis so every instance
// refuses a replayed command. A Deduper with a nil client accepts every key.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduper creates a deduper using rc and ttl. Pass a nil rc to disable it.
func NewDeduper(rc *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduper{client: rc, ttl: ttl}
}

// Enabled reports whether keys are actually recorded.
func (d *Deduper) Enabled() bool {
	return d != nil && d.client != nil
}

func (d *Deduper) key(userID, key string) string {
	return fmt.Sprintf("guild:idem:%s:%s", userID, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (d *Deduper) Add(ctx context.Context, userID, key string) (bool, error) {
	if !d.Enabled() {
		return true, nil
	}
	return d.client.SetNX(ctx, d.key(userID, key), 1, d.ttl).Result()
}

// Remove deletes a recorded key so a failed command may be retried.
func (d *Deduper) Remove(ctx context.Context, userID, key string) error {
	if !d.Enabled() {
		return nil
	}
	return d.client.Del(ctx, d.key(userID, key)).Err()
}
