package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"crm-sync-pipeline/internal/core/domain"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/internal/metrics"

	"github.com/rs/zerolog"
)

// ProcessorConfig tunes the worker pool and retry policy.
type ProcessorConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Processor drains the event queue into the sync target with a fixed pool
// of worker loops. Each worker owns its own pull-batch-process cycle; there
// is no work stealing. No ordering is guaranteed across events — the sync
// target's force-sync converges to the latest CRM state, so out-of-order
// application is safe.
type Processor struct {
	queue  ports.EventQueue
	target ports.SyncTarget
	cfg    ProcessorConfig
	log    zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	workers atomic.Int64

	processed    atomic.Uint64
	succeeded    atomic.Uint64
	failed       atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	batches      atomic.Uint64
	batchMillis  atomic.Uint64
}

// NewProcessor creates an event processor. Zero config fields fall back to
// safe defaults.
func NewProcessor(queue ports.EventQueue, target ports.SyncTarget, cfg ProcessorConfig, log zerolog.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Processor{
		queue:  queue,
		target: target,
		cfg:    cfg,
		log:    log,
	}
}

// Start launches numWorkers independent worker loops. Calling Start on a
// running processor is a no-op.
func (p *Processor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 1; i <= numWorkers; i++ {
		p.wg.Add(1)
		p.workers.Add(1)
		go p.workerLoop(workerCtx, i)
	}
	p.log.Info().Int("workers", numWorkers).Msg("event processor started")
}

// Stop signals all workers to exit after their current batch and waits for
// them to finish. In-flight events are never cancelled mid-processing.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.running.Store(false)
	p.log.Info().Msg("event processor stopped")
}

// workerLoop pulls batches until the context is cancelled. The cancellation
// check sits at the top of each iteration so a worker always finishes its
// current batch first.
func (p *Processor) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	defer p.workers.Add(-1)
	p.log.Debug().Int("worker_id", id).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Int("worker_id", id).Msg("worker exiting")
			return
		default:
		}

		batch, err := p.queue.PopBatch(ctx, p.cfg.BatchSize, p.cfg.BatchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn().Err(err).Int("worker_id", id).Msg("batch pull failed")
			continue
		}
		if len(batch) == 0 {
			continue
		}

		// Events already pulled off the queue are no longer in Redis; if
		// shutdown cancelled them mid-flight they could be lost without
		// even a dead-letter record. The batch and its dead-letter pushes
		// run detached so Stop() only interrupts the pull loop.
		batchCtx := context.WithoutCancel(ctx)

		start := time.Now()
		var batchWG sync.WaitGroup
		for i := range batch {
			batchWG.Add(1)
			go func(ev domain.WebhookEvent) {
				defer batchWG.Done()
				// One event's failure is isolated from its siblings.
				_ = p.processEvent(batchCtx, ev)
			}(batch[i])
		}
		batchWG.Wait()

		elapsed := time.Since(start)
		p.batches.Add(1)
		p.batchMillis.Add(uint64(elapsed.Milliseconds()))
		metrics.RecordBatch(elapsed)
	}
}

// processEvent applies one event with retry-with-backoff. A retry-exhausted
// event is wrapped into a dead-letter entry; no event is silently dropped.
// Returns nil when the event was applied.
func (p *Processor) processEvent(ctx context.Context, ev domain.WebhookEvent) error {
	p.processed.Add(1)

	var lastErr error
	delay := p.cfg.BaseBackoff
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			p.retried.Add(1)
			metrics.RecordRetry()
			time.Sleep(delay)
			delay *= 2
			if delay > p.cfg.MaxBackoff {
				delay = p.cfg.MaxBackoff
			}
		}

		lastErr = p.route(ctx, &ev)
		if lastErr == nil {
			p.succeeded.Add(1)
			metrics.RecordProcessed("succeeded")
			return nil
		}
		p.log.Warn().
			Err(lastErr).
			Str("event_id", ev.EventID).
			Str("module", string(ev.Module)).
			Int("attempt", attempt+1).
			Msg("event processing failed")
	}

	p.failed.Add(1)
	entry := &domain.DeadLetterEntry{
		Event:    ev,
		Error:    lastErr.Error(),
		FailedAt: time.Now().UTC(),
		Retries:  p.cfg.MaxRetries,
	}
	if err := p.queue.PushDead(ctx, entry); err != nil {
		// Worst case for the at-least-once contract: the event is lost
		// unless the sender redelivers.
		p.log.Error().
			Err(err).
			Str("event_id", ev.EventID).
			Msg("failed to dead-letter event")
		return lastErr
	}
	p.deadLettered.Add(1)
	metrics.RecordProcessed("dead_lettered")
	p.log.Error().
		Str("event_id", ev.EventID).
		Str("module", string(ev.Module)).
		Str("error", entry.Error).
		Msg("event moved to dead-letter queue")
	return lastErr
}

// route dispatches one event by module and operation. Every enumerated
// (module, event type) pair either reaches the sync target or completes as
// a logged no-op.
func (p *Processor) route(ctx context.Context, ev *domain.WebhookEvent) error {
	// Deletes are not propagated: the memory store keeps its last-known
	// state and tombstoning is out of scope.
	if ev.EventType == domain.EventDelete {
		p.log.Warn().
			Str("event_id", ev.EventID).
			Str("module", string(ev.Module)).
			Str("record_id", ev.RecordID).
			Msg("delete event received, not propagated")
		return nil
	}

	if ev.Module == domain.ModuleAccounts {
		if ev.RecordID == "" {
			p.log.Warn().Str("event_id", ev.EventID).Msg("accounts event without record id, skipping")
			return nil
		}
		forced := true
		if ev.EventType == domain.EventUpdate {
			// Non-critical field changes take the lighter, debounceable path.
			forced = ev.TouchesCriticalField()
		}
		return p.target.SyncAccount(ctx, ev.RecordID, forced)
	}

	// Related modules: find the owning account and force-refresh it.
	accountID, ok := ev.OwningAccountID()
	if !ok {
		p.log.Debug().
			Str("event_id", ev.EventID).
			Str("module", string(ev.Module)).
			Msg("no owning account resolvable, skipping")
		return nil
	}
	return p.target.SyncAccount(ctx, accountID, true)
}

// ReprocessDeadLetters pops up to limit entries from the dead-letter queue
// and feeds each back through the normal per-event path. An entry that
// fails again is dead-lettered again by that path.
func (p *Processor) ReprocessDeadLetters(ctx context.Context, limit int) (*ports.ReprocessReport, error) {
	entries, err := p.queue.PopDead(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ports.ReprocessReport{}
	for _, entry := range entries {
		report.Attempted++
		if err := p.processEvent(ctx, entry.Event); err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
	}

	p.log.Info().
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("dead-letter reprocessing finished")
	return report, nil
}

// Metrics returns a snapshot of the pool's aggregate state. Queue lengths
// are read live; counter reads may interleave with worker updates.
func (p *Processor) Metrics(ctx context.Context) *ports.ProcessorMetrics {
	m := &ports.ProcessorMetrics{
		EventsProcessed:    p.processed.Load(),
		EventsSucceeded:    p.succeeded.Load(),
		EventsFailed:       p.failed.Load(),
		EventsRetried:      p.retried.Load(),
		EventsDeadLettered: p.deadLettered.Load(),
		BatchesProcessed:   p.batches.Load(),
		Workers:            int(p.workers.Load()),
		Running:            p.running.Load(),
	}
	if m.BatchesProcessed > 0 {
		m.AvgBatchMillis = float64(p.batchMillis.Load()) / float64(m.BatchesProcessed)
	}
	if m.EventsProcessed > 0 {
		m.SuccessRate = float64(m.EventsSucceeded) / float64(m.EventsProcessed)
	}
	if n, err := p.queue.Len(ctx); err == nil {
		m.QueueSize = n
	}
	if n, err := p.queue.DeadLen(ctx); err == nil {
		m.DeadLetterSize = n
	}
	metrics.UpdateQueueDepths(m.QueueSize, m.DeadLetterSize)
	return m
}
