package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore implements ports.DedupStore using Redis SET NX. Keys take the
// form "processed:<event_id>" and expire after the configured TTL, so this
// is a bounded redelivery guard, not a permanent log.
type DedupStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupStore creates a new Redis-backed dedup ledger.
func NewDedupStore(client *goredis.Client) *DedupStore {
	return &DedupStore{
		client: client,
		prefix: "processed:",
	}
}

// MarkIfNew atomically records the event id if absent.
// Returns true if the event is new, false if it was already admitted
// within the TTL window.
func (s *DedupStore) MarkIfNew(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := s.prefix + eventID
	result, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — event was already admitted
			return false, nil
		}
		return false, fmt.Errorf("redis dedup mark: %w", err)
	}
	return result == "OK", nil
}

// Unmark deletes an event's ledger entry so a delivery that was never
// admitted can be retried.
func (s *DedupStore) Unmark(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("redis dedup unmark: %w", err)
	}
	return nil
}
