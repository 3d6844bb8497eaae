package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe is the inbox's optional Redis fast-path, avoiding a database
// round-trip to discover an event_id has already been seen. It is a cache
// only: the database inbox row is still the durable authority, and a miss
// here never means "not processed" — it falls through to persist_pre per
// spec.md section 4.5.
type Dedupe struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupe wraps an existing client, generalizing the teacher's
// RedisCache (internal/repository/cache/redis.go) from product/review
// caching to event_id dedup marking.
func NewDedupe(client *redis.Client, ttl time.Duration) *Dedupe {
	return &Dedupe{client: client, ttl: ttl}
}

func (d *Dedupe) key(eventID string) string {
	return fmt.Sprintf("inbox:seen:%s", eventID)
}

// Seen reports whether event_id has already been marked processed.
func (d *Dedupe) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen records event_id as processed for the dedup window.
func (d *Dedupe) MarkSeen(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.key(eventID), "1", d.ttl).Err()
}
