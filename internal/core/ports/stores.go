package ports

import (
	"context"
	"time"

	"crm-sync-pipeline/internal/core/domain"
)

// EventQueue is the durable work queue backing the pipeline: one ordered
// list for live events, one for dead letters. Implementations must be safe
// for concurrent producers and consumers.
type EventQueue interface {
	// Push appends a serialized event to the live queue.
	Push(ctx context.Context, event *domain.WebhookEvent) error
	// PopBatch removes up to max events, blocking up to timeout per pull.
	// Returns early with what it has once a pull times out empty.
	PopBatch(ctx context.Context, max int, timeout time.Duration) ([]domain.WebhookEvent, error)
	// Len returns the current live queue length.
	Len(ctx context.Context) (int64, error)

	// PushDead appends an entry to the dead-letter queue.
	PushDead(ctx context.Context, entry *domain.DeadLetterEntry) error
	// PopDead removes up to limit entries from the dead-letter queue.
	PopDead(ctx context.Context, limit int) ([]domain.DeadLetterEntry, error)
	// DeadLen returns the current dead-letter queue length.
	DeadLen(ctx context.Context) (int64, error)
}

// DedupStore is the short-TTL ledger guarding against sender-side
// redelivery of the same event id.
type DedupStore interface {
	// MarkIfNew atomically records eventID if absent.
	// Returns true if the event is new, false if already admitted.
	MarkIfNew(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Unmark removes eventID from the ledger. Admission claims a slot
	// before enqueueing; a delivery that is then rejected must release it
	// so the sender's retry is not answered as a duplicate.
	Unmark(ctx context.Context, eventID string) error
}
