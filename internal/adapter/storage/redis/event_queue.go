package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crm-sync-pipeline/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventQueue implements ports.EventQueue on two Redis lists: one for live
// events, one for dead letters. Pushes go to the head (LPUSH), pops come
// from the tail (BRPOP/RPOP), so each list is best-effort FIFO.
type EventQueue struct {
	client        *goredis.Client
	queueKey      string
	deadKey       string
	notifyChannel string
	deadRetention time.Duration
	log           zerolog.Logger
}

// NewEventQueue creates a Redis-backed event queue.
// deadRetention bounds how long dead-letter entries are kept; zero disables
// expiry.
func NewEventQueue(client *goredis.Client, queueKey, deadKey string, deadRetention time.Duration, log zerolog.Logger) *EventQueue {
	if queueKey == "" {
		queueKey = "webhook:queue"
	}
	if deadKey == "" {
		deadKey = "webhook:dead_letter"
	}
	return &EventQueue{
		client:        client,
		queueKey:      queueKey,
		deadKey:       deadKey,
		notifyChannel: queueKey + ":notify",
		deadRetention: deadRetention,
		log:           log,
	}
}

// Push appends a serialized event to the live queue and publishes a
// best-effort side-channel notification for passive listeners.
func (q *EventQueue) Push(ctx context.Context, event *domain.WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.EventID, err)
	}
	if err := q.client.LPush(ctx, q.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("redis queue push: %w", err)
	}
	// Listeners are optional; a publish failure must not fail admission.
	q.client.Publish(ctx, q.notifyChannel, event.EventID)
	return nil
}

// PopBatch removes up to max events. Each pull blocks up to timeout; the
// batch is returned as soon as a pull comes back empty.
func (q *EventQueue) PopBatch(ctx context.Context, max int, timeout time.Duration) ([]domain.WebhookEvent, error) {
	var batch []domain.WebhookEvent
	for i := 0; i < max; i++ {
		vals, err := q.client.BRPop(ctx, timeout, q.queueKey).Result()
		if err != nil {
			if err == goredis.Nil {
				break // timeout with nothing retrieved
			}
			return batch, fmt.Errorf("redis queue pop: %w", err)
		}
		var event domain.WebhookEvent
		if err := json.Unmarshal([]byte(vals[1]), &event); err != nil {
			// Poison item: drop it rather than stalling the batch.
			q.log.Warn().
				Err(err).
				Str("list", q.queueKey).
				Int("payload_bytes", len(vals[1])).
				Msg("dropping unparseable queue item")
			continue
		}
		batch = append(batch, event)
	}
	return batch, nil
}

// Len returns the current live queue length.
func (q *EventQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis queue len: %w", err)
	}
	return n, nil
}

// PushDead appends an entry to the dead-letter list and refreshes its
// retention TTL.
func (q *EventQueue) PushDead(ctx context.Context, entry *domain.DeadLetterEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling dead-letter entry %s: %w", entry.Event.EventID, err)
	}
	if err := q.client.LPush(ctx, q.deadKey, payload).Err(); err != nil {
		return fmt.Errorf("redis dead-letter push: %w", err)
	}
	if q.deadRetention > 0 {
		q.client.Expire(ctx, q.deadKey, q.deadRetention)
	}
	return nil
}

// PopDead removes up to limit entries from the dead-letter list.
func (q *EventQueue) PopDead(ctx context.Context, limit int) ([]domain.DeadLetterEntry, error) {
	var entries []domain.DeadLetterEntry
	for i := 0; i < limit; i++ {
		val, err := q.client.RPop(ctx, q.deadKey).Result()
		if err != nil {
			if err == goredis.Nil {
				break
			}
			return entries, fmt.Errorf("redis dead-letter pop: %w", err)
		}
		var entry domain.DeadLetterEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			q.log.Warn().
				Err(err).
				Str("list", q.deadKey).
				Int("payload_bytes", len(val)).
				Msg("dropping unparseable dead-letter entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeadLen returns the current dead-letter list length.
func (q *EventQueue) DeadLen(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.deadKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis dead-letter len: %w", err)
	}
	return n, nil
}
