package ports

import (
	"context"
	"time"

	"crm-sync-pipeline/internal/core/domain"
)

// SignatureService handles HMAC-SHA256 signing, verification and secret
// material generation for the webhook trust boundary.
type SignatureService interface {
	Sign(secret string, payload string) string
	Verify(secret string, payload string, signature string) bool
	// GenerateSecret returns a 256-bit cryptographically random secret,
	// hex-encoded.
	GenerateSecret() (string, error)
}

// SyncTarget is the downstream memory/knowledge store the pipeline feeds.
// SyncAccount must be idempotent: it converges to the latest CRM state of
// the account rather than applying an event's embedded diff, which is what
// makes out-of-order delivery acceptable.
type SyncTarget interface {
	SyncAccount(ctx context.Context, accountID string, forced bool) error
}

// CRMClient is the CRM's webhook subscription management API.
type CRMClient interface {
	// RegisterWebhook creates the remote subscription and returns the
	// CRM-assigned webhook id.
	RegisterWebhook(ctx context.Context, cfg *domain.WebhookConfiguration) (string, error)
	UpdateWebhook(ctx context.Context, cfg *domain.WebhookConfiguration) error
	DeleteWebhook(ctx context.Context, webhookID string) error
	// GetWebhook probes the remote subscription. Returns whether it is
	// enabled on the CRM side.
	GetWebhook(ctx context.Context, webhookID string) (bool, error)
}

// --- Service Ports (Business Logic) ---

// Ingress result statuses.
const (
	IngressStatusAccepted  = "accepted"
	IngressStatusDuplicate = "duplicate"
)

// IngressResult is the synchronous answer returned to the webhook sender.
type IngressResult struct {
	Status  string
	EventID string
	Message string
	Queued  bool
}

// IngressHealth is a point-in-time view of queue admission capacity.
type IngressHealth struct {
	Status           string // healthy | unhealthy
	RedisConnected   bool
	QueueSize        int64
	QueueCapacity    int
	QueueUtilization float64 // percent
	Timestamp        time.Time
}

// IngressMetrics is a snapshot of the admission counters.
type IngressMetrics struct {
	Received          uint64
	Verified          uint64
	Rejected          uint64
	Duplicated        uint64
	Queued            uint64
	Failed            uint64
	AcceptanceRate    float64
	DeduplicationRate float64
}

// IngressService is the pipeline's only trust boundary: every external byte
// passes through HandleWebhook before becoming internal state.
type IngressService interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signature string, eventID string) (*IngressResult, error)
	Health(ctx context.Context) *IngressHealth
	Metrics() *IngressMetrics
}

// ProcessorMetrics is a snapshot of the worker pool's aggregate state.
type ProcessorMetrics struct {
	EventsProcessed    uint64
	EventsSucceeded    uint64
	EventsFailed       uint64
	EventsRetried      uint64
	EventsDeadLettered uint64
	BatchesProcessed   uint64
	AvgBatchMillis     float64
	QueueSize          int64
	DeadLetterSize     int64
	SuccessRate        float64
	Workers            int
	Running            bool
}

// ReprocessReport summarises one dead-letter reprocessing run.
type ReprocessReport struct {
	Attempted int
	Succeeded int
	Failed    int
}

// ProcessorService drains the queue into the sync target.
type ProcessorService interface {
	Start(ctx context.Context, numWorkers int)
	// Stop signals all workers to exit after their current batch and waits.
	Stop()
	ReprocessDeadLetters(ctx context.Context, limit int) (*ReprocessReport, error)
	Metrics(ctx context.Context) *ProcessorMetrics
}

// WebhookStats is a read-only snapshot of the subscription registry.
type WebhookStats struct {
	Total     int
	Enabled   int
	Disabled  int
	PerModule map[string]int
}

// RegistryService owns the shared webhook secret and the set of active
// CRM subscriptions.
type RegistryService interface {
	// Initialize generates secret material if absent and optionally
	// auto-registers one subscription per known module.
	Initialize(ctx context.Context, autoRegister bool) error
	// Secret returns the shared signing secret. Valid after Initialize.
	Secret() string
	RegisterWebhook(ctx context.Context, name string, module domain.Module, events []domain.EventType, url string) (*domain.WebhookConfiguration, error)
	UpdateWebhook(ctx context.Context, name string, events []domain.EventType, enabled *bool) (*domain.WebhookConfiguration, error)
	UnregisterWebhook(ctx context.Context, name string) error
	// VerifyHealth polls each registered subscription remotely and reports
	// healthy/unhealthy/error per webhook name. Never mutates state.
	VerifyHealth(ctx context.Context) map[string]string
	Stats() *WebhookStats
}
