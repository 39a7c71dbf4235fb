package dto

import (
	"time"

	"crm-sync-pipeline/internal/core/domain"
	"crm-sync-pipeline/internal/core/ports"
)

// WebhookAck is the synchronous response returned to the CRM's webhook
// sender. Flat on purpose: the sender expects this exact shape, not the
// admin API envelope.
type WebhookAck struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
	Message string `json:"message"`
	Queued  bool   `json:"queued"`
}

// IngressHealthResponse is the body of GET /webhooks/health.
type IngressHealthResponse struct {
	Status           string  `json:"status"`
	RedisConnected   bool    `json:"redis_connected"`
	QueueSize        int64   `json:"queue_size"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`
	Timestamp        string  `json:"timestamp"`
}

// IngressMetricsResponse is the body of GET /webhooks/metrics.
type IngressMetricsResponse struct {
	TotalReceived     uint64  `json:"total_received"`
	Verified          uint64  `json:"verified"`
	Rejected          uint64  `json:"rejected"`
	Duplicated        uint64  `json:"duplicated"`
	Queued            uint64  `json:"queued"`
	Failed            uint64  `json:"failed"`
	AcceptanceRate    float64 `json:"acceptance_rate"`
	DeduplicationRate float64 `json:"deduplication_rate"`
}

// ProcessorMetricsResponse is the body of GET /webhooks/metrics/processor.
type ProcessorMetricsResponse struct {
	EventsProcessed     uint64  `json:"events_processed"`
	EventsSucceeded     uint64  `json:"events_succeeded"`
	EventsFailed        uint64  `json:"events_failed"`
	EventsRetried       uint64  `json:"events_retried"`
	EventsDeadLettered  uint64  `json:"events_dead_lettered"`
	BatchesProcessed    uint64  `json:"batches_processed"`
	AvgBatchMillis      float64 `json:"avg_batch_ms"`
	QueueSize           int64   `json:"queue_size"`
	DeadLetterQueueSize int64   `json:"dead_letter_queue_size"`
	SuccessRate         float64 `json:"success_rate"`
	WorkersRunning      int     `json:"workers_running"`
	Running             bool    `json:"running"`
}

// RegisterWebhookRequest is the admin request body to create a subscription.
type RegisterWebhookRequest struct {
	Name   string   `json:"name" binding:"required,min=1,max=100"`
	Module string   `json:"module" binding:"required"`
	Events []string `json:"events" binding:"required,min=1"`
	URL    string   `json:"url,omitempty"`
}

// UpdateWebhookRequest is the admin request body to mutate a subscription.
type UpdateWebhookRequest struct {
	Events  []string `json:"events,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// WebhookConfigResponse is the admin view of one subscription.
type WebhookConfigResponse struct {
	WebhookID string   `json:"webhook_id"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Module    string   `json:"module"`
	Events    []string `json:"events"`
	Enabled   bool     `json:"enabled"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// WebhookStatsResponse is the body of GET /api/v1/webhooks/stats.
type WebhookStatsResponse struct {
	Total     int            `json:"total"`
	Enabled   int            `json:"enabled"`
	Disabled  int            `json:"disabled"`
	PerModule map[string]int `json:"per_module"`
}

// ReprocessRequest is the admin request body for dead-letter reprocessing.
type ReprocessRequest struct {
	Limit int `json:"limit" binding:"required,gt=0,lte=1000"`
}

// ReprocessResponse summarises one reprocessing run.
type ReprocessResponse struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ToEventTypes converts wire event names into domain event types without
// validating them; validation happens at construction.
func ToEventTypes(names []string) []domain.EventType {
	events := make([]domain.EventType, len(names))
	for i, n := range names {
		events[i] = domain.EventType(n)
	}
	return events
}

// FromWebhookConfiguration converts a domain subscription to its admin view.
func FromWebhookConfiguration(cfg *domain.WebhookConfiguration) WebhookConfigResponse {
	events := make([]string, len(cfg.Events))
	for i, ev := range cfg.Events {
		events[i] = string(ev)
	}
	return WebhookConfigResponse{
		WebhookID: cfg.WebhookID,
		Name:      cfg.Name,
		URL:       cfg.URL,
		Module:    string(cfg.Module),
		Events:    events,
		Enabled:   cfg.Enabled,
		CreatedAt: cfg.CreatedAt.Format(time.RFC3339),
		UpdatedAt: cfg.UpdatedAt.Format(time.RFC3339),
	}
}

// FromIngressHealth converts the health snapshot to its wire shape.
func FromIngressHealth(h *ports.IngressHealth) IngressHealthResponse {
	return IngressHealthResponse{
		Status:           h.Status,
		RedisConnected:   h.RedisConnected,
		QueueSize:        h.QueueSize,
		QueueCapacity:    h.QueueCapacity,
		QueueUtilization: h.QueueUtilization,
		Timestamp:        h.Timestamp.Format(time.RFC3339),
	}
}

// FromIngressMetrics converts the counter snapshot to its wire shape.
func FromIngressMetrics(m *ports.IngressMetrics) IngressMetricsResponse {
	return IngressMetricsResponse{
		TotalReceived:     m.Received,
		Verified:          m.Verified,
		Rejected:          m.Rejected,
		Duplicated:        m.Duplicated,
		Queued:            m.Queued,
		Failed:            m.Failed,
		AcceptanceRate:    m.AcceptanceRate,
		DeduplicationRate: m.DeduplicationRate,
	}
}

// FromProcessorMetrics converts the processor snapshot to its wire shape.
func FromProcessorMetrics(m *ports.ProcessorMetrics) ProcessorMetricsResponse {
	return ProcessorMetricsResponse{
		EventsProcessed:     m.EventsProcessed,
		EventsSucceeded:     m.EventsSucceeded,
		EventsFailed:        m.EventsFailed,
		EventsRetried:       m.EventsRetried,
		EventsDeadLettered:  m.EventsDeadLettered,
		BatchesProcessed:    m.BatchesProcessed,
		AvgBatchMillis:      m.AvgBatchMillis,
		QueueSize:           m.QueueSize,
		DeadLetterQueueSize: m.DeadLetterSize,
		SuccessRate:         m.SuccessRate,
		WorkersRunning:      m.Workers,
		Running:             m.Running,
	}
}
