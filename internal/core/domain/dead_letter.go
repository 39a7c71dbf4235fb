package domain

import "time"

// DeadLetterEntry wraps an event that exhausted its retry budget. Entries
// live on a separate durable list and can be fed back through the pipeline.
type DeadLetterEntry struct {
	Event    WebhookEvent `json:"event"`
	Error    string       `json:"error"`
	FailedAt time.Time    `json:"failed_at"`
	Retries  int          `json:"retries"`
}
