package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryTracker counts inbound-message processing failures per stream
// message id, external to the stream itself so a crashed consumer does
// not lose the count when the entry is reclaimed. Counters expire on
// their own so a long-idle id does not leak memory.
type RetryTracker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRetryTracker returns a tracker keyed under prefix (typically the
// stream name) with counters expiring after ttl of inactivity.
func NewRetryTracker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RetryTracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RetryTracker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (t *RetryTracker) key(messageID string) string {
	return fmt.Sprintf("retry:%s:%s", t.prefix, messageID)
}

// Increment bumps the failure count for messageID and refreshes its TTL,
// returning the new count.
func (t *RetryTracker) Increment(ctx context.Context, messageID string) (int64, error) {
	key := t.key(messageID)
	n, err := t.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("stream: incr retry count %s: %w", key, err)
	}
	if err := t.rdb.Expire(ctx, key, t.ttl).Err(); err != nil {
		return n, fmt.Errorf("stream: refresh retry ttl %s: %w", key, err)
	}
	return n, nil
}

// Clear removes the failure count for messageID, called on successful
// processing so a later redelivery (e.g. after an XAUTOCLAIM reclaim of an
// unrelated stale entry) starts from zero.
func (t *RetryTracker) Clear(ctx context.Context, messageID string) error {
	if err := t.rdb.Del(ctx, t.key(messageID)).Err(); err != nil {
		return fmt.Errorf("stream: clear retry count %s: %w", t.key(messageID), err)
	}
	return nil
}
