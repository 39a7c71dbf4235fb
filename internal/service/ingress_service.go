package service

import (
	"context"
	"sync/atomic"
	"time"

	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/internal/metrics"
	"crm-sync-pipeline/pkg/apperror"

	"github.com/rs/zerolog"
)

// IngressConfig tunes the admission path.
type IngressConfig struct {
	Secret       string
	DedupTTL     time.Duration
	MaxQueueSize int
}

// ingressCounters are shared across request goroutines. Increments are
// atomic; snapshot reads may interleave with writes, which is acceptable
// for approximate metrics.
type ingressCounters struct {
	received   atomic.Uint64
	verified   atomic.Uint64
	rejected   atomic.Uint64
	duplicated atomic.Uint64
	queued     atomic.Uint64
	failed     atomic.Uint64
}

// ingressService implements ports.IngressService: verify, parse, dedupe,
// enqueue — in that order, failing closed at each step.
type ingressService struct {
	queue       ports.EventQueue
	dedup       ports.DedupStore
	sigSvc      ports.SignatureService
	queueHealth ports.HealthChecker
	cfg         IngressConfig
	counters    ingressCounters
	log         zerolog.Logger
}

// NewIngressService creates the webhook admission service.
func NewIngressService(
	queue ports.EventQueue,
	dedup ports.DedupStore,
	sigSvc ports.SignatureService,
	queueHealth ports.HealthChecker,
	cfg IngressConfig,
	log zerolog.Logger,
) ports.IngressService {
	return &ingressService{
		queue:       queue,
		dedup:       dedup,
		sigSvc:      sigSvc,
		queueHealth: queueHealth,
		cfg:         cfg,
		log:         log,
	}
}

// HandleWebhook admits one inbound delivery. The raw body is never parsed
// before the signature is verified.
func (s *ingressService) HandleWebhook(ctx context.Context, rawBody []byte, signature string, eventID string) (*ports.IngressResult, error) {
	s.counters.received.Add(1)

	if signature == "" || !s.sigSvc.Verify(s.cfg.Secret, string(rawBody), signature) {
		s.counters.rejected.Add(1)
		metrics.RecordIngress("rejected")
		s.log.Warn().Str("event_id", eventID).Msg("webhook rejected: bad signature")
		return nil, apperror.ErrInvalidSignature()
	}
	s.counters.verified.Add(1)

	event, err := decodePayload(rawBody, eventID)
	if err != nil {
		s.counters.failed.Add(1)
		metrics.RecordIngress("malformed")
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("webhook rejected: malformed payload")
		return nil, apperror.ErrMalformedPayload(err)
	}

	fresh, err := s.dedup.MarkIfNew(ctx, event.EventID, s.cfg.DedupTTL)
	if err != nil {
		s.counters.failed.Add(1)
		metrics.RecordIngress("failed")
		s.log.Error().Err(err).Str("event_id", event.EventID).Msg("dedup ledger unavailable")
		return nil, apperror.ErrQueueUnavailable(err)
	}
	if !fresh {
		s.counters.duplicated.Add(1)
		metrics.RecordIngress("duplicate")
		s.log.Debug().Str("event_id", event.EventID).Msg("duplicate webhook delivery ignored")
		return &ports.IngressResult{
			Status:  ports.IngressStatusDuplicate,
			EventID: event.EventID,
			Message: "event already processed",
			Queued:  false,
		}, nil
	}

	length, err := s.queue.Len(ctx)
	if err != nil {
		s.counters.failed.Add(1)
		metrics.RecordIngress("failed")
		s.releaseDedupClaim(ctx, event.EventID)
		return nil, apperror.ErrQueueUnavailable(err)
	}
	if length >= int64(s.cfg.MaxQueueSize) {
		s.counters.failed.Add(1)
		metrics.RecordIngress("failed")
		s.releaseDedupClaim(ctx, event.EventID)
		s.log.Warn().
			Int64("queue_size", length).
			Int("capacity", s.cfg.MaxQueueSize).
			Msg("webhook rejected: queue at capacity")
		return nil, apperror.ErrQueueFull()
	}

	if err := s.queue.Push(ctx, event); err != nil {
		s.counters.failed.Add(1)
		metrics.RecordIngress("failed")
		s.releaseDedupClaim(ctx, event.EventID)
		s.log.Error().Err(err).Str("event_id", event.EventID).Msg("enqueue failed")
		return nil, apperror.ErrQueueUnavailable(err)
	}
	s.counters.queued.Add(1)
	metrics.RecordIngress("queued")

	s.log.Info().
		Str("event_id", event.EventID).
		Str("module", string(event.Module)).
		Str("event_type", string(event.EventType)).
		Msg("webhook event queued")

	return &ports.IngressResult{
		Status:  ports.IngressStatusAccepted,
		EventID: event.EventID,
		Message: "event queued for processing",
		Queued:  true,
	}, nil
}

// releaseDedupClaim drops the ledger entry for a delivery that was not
// enqueued. Without this the sender's retry would be swallowed as a
// duplicate for the whole TTL window.
func (s *ingressService) releaseDedupClaim(ctx context.Context, eventID string) {
	if err := s.dedup.Unmark(ctx, eventID); err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to release dedup claim")
	}
}

// Health reports queue connectivity and admission headroom.
func (s *ingressService) Health(ctx context.Context) *ports.IngressHealth {
	h := &ports.IngressHealth{
		Status:        "healthy",
		QueueCapacity: s.cfg.MaxQueueSize,
		Timestamp:     time.Now().UTC(),
	}

	if err := s.queueHealth.Ping(ctx); err != nil {
		h.Status = "unhealthy"
		return h
	}
	h.RedisConnected = true

	length, err := s.queue.Len(ctx)
	if err != nil {
		h.Status = "unhealthy"
		return h
	}
	h.QueueSize = length
	if s.cfg.MaxQueueSize > 0 {
		h.QueueUtilization = float64(length) / float64(s.cfg.MaxQueueSize) * 100
	}
	return h
}

// Metrics returns a snapshot of the admission counters.
func (s *ingressService) Metrics() *ports.IngressMetrics {
	m := &ports.IngressMetrics{
		Received:   s.counters.received.Load(),
		Verified:   s.counters.verified.Load(),
		Rejected:   s.counters.rejected.Load(),
		Duplicated: s.counters.duplicated.Load(),
		Queued:     s.counters.queued.Load(),
		Failed:     s.counters.failed.Load(),
	}
	if m.Received > 0 {
		m.AcceptanceRate = float64(m.Queued) / float64(m.Received)
		m.DeduplicationRate = float64(m.Duplicated) / float64(m.Received)
	}
	return m
}
