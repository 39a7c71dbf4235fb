package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"crm-sync-pipeline/internal/core/domain"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RegistryConfig tunes the subscription registry.
type RegistryConfig struct {
	// Secret is the shared signing secret. Empty means Initialize
	// generates one.
	Secret string
	// NotifyURL is the ingress endpoint handed to the CRM when a
	// subscription does not name its own URL.
	NotifyURL string
	// AllowLocalFallback keeps a subscription locally under a synthetic id
	// when the remote registration call fails. Off by default: register is
	// normally all-or-nothing.
	AllowLocalFallback bool
}

// registryService implements ports.RegistryService. It is the sole owner of
// the subscription set; callers only ever see copies.
type registryService struct {
	crm    ports.CRMClient
	sigSvc ports.SignatureService
	cfg    RegistryConfig
	log    zerolog.Logger

	mu       sync.RWMutex
	secret   string
	webhooks map[string]*domain.WebhookConfiguration
}

// NewRegistryService creates the webhook configuration manager.
func NewRegistryService(crm ports.CRMClient, sigSvc ports.SignatureService, cfg RegistryConfig, log zerolog.Logger) ports.RegistryService {
	return &registryService{
		crm:      crm,
		sigSvc:   sigSvc,
		cfg:      cfg,
		log:      log,
		secret:   cfg.Secret,
		webhooks: make(map[string]*domain.WebhookConfiguration),
	}
}

// Initialize generates the shared secret if absent and optionally registers
// one subscription per known module with default events {create, update}.
// Auto-registration failures are logged and skipped, not fatal.
func (s *registryService) Initialize(ctx context.Context, autoRegister bool) error {
	s.mu.Lock()
	if s.secret == "" {
		secret, err := s.sigSvc.GenerateSecret()
		if err != nil {
			s.mu.Unlock()
			return apperror.InternalError(err)
		}
		s.secret = secret
		s.log.Info().Msg("generated new webhook signing secret")
	}
	s.mu.Unlock()

	if !autoRegister {
		return nil
	}

	defaults := []domain.EventType{domain.EventCreate, domain.EventUpdate}
	for _, module := range domain.Modules {
		name := "crm-sync-" + strings.ToLower(string(module))
		if _, err := s.RegisterWebhook(ctx, name, module, defaults, ""); err != nil {
			s.log.Warn().
				Err(err).
				Str("module", string(module)).
				Msg("auto-registration failed, continuing")
		}
	}
	return nil
}

// Secret returns the shared signing secret.
func (s *registryService) Secret() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret
}

// RegisterWebhook creates a subscription remotely and stores it locally
// only once the CRM has assigned an id. On remote failure nothing is
// stored, unless the local-fallback escape hatch is enabled.
func (s *registryService) RegisterWebhook(ctx context.Context, name string, module domain.Module, events []domain.EventType, url string) (*domain.WebhookConfiguration, error) {
	if url == "" {
		url = s.cfg.NotifyURL
	}

	s.mu.RLock()
	_, exists := s.webhooks[name]
	secret := s.secret
	s.mu.RUnlock()
	if exists {
		return nil, apperror.ErrWebhookExists(name)
	}

	cfg, err := domain.NewWebhookConfiguration(name, module, events, url, secret)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	webhookID, err := s.crm.RegisterWebhook(ctx, cfg)
	if err != nil {
		if !s.cfg.AllowLocalFallback {
			return nil, apperror.ErrRemoteRegistration(err)
		}
		// Degraded mode: keep a synthetic local id so the subscription can
		// be retried or inspected. Never the production path.
		webhookID = "local-" + uuid.New().String()
		s.log.Warn().
			Err(err).
			Str("name", name).
			Str("webhook_id", webhookID).
			Msg("remote registration failed, storing local fallback")
	}
	cfg.WebhookID = webhookID

	s.mu.Lock()
	s.webhooks[name] = cfg
	s.mu.Unlock()

	s.log.Info().
		Str("name", name).
		Str("module", string(module)).
		Str("webhook_id", webhookID).
		Msg("webhook registered")
	return cfg.Clone(), nil
}

// UpdateWebhook pushes the change remotely first, then commits it locally.
func (s *registryService) UpdateWebhook(ctx context.Context, name string, events []domain.EventType, enabled *bool) (*domain.WebhookConfiguration, error) {
	s.mu.RLock()
	existing, ok := s.webhooks[name]
	s.mu.RUnlock()
	if !ok {
		return nil, apperror.ErrWebhookNotFound(name)
	}

	updated := existing.Clone()
	if len(events) > 0 {
		for _, ev := range events {
			if !ev.Valid() {
				return nil, apperror.Validation("invalid event type " + string(ev))
			}
		}
		updated.Events = append([]domain.EventType(nil), events...)
	}
	if enabled != nil {
		updated.Enabled = *enabled
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := s.crm.UpdateWebhook(ctx, updated); err != nil {
		return nil, apperror.ErrRemoteRegistration(err)
	}

	s.mu.Lock()
	s.webhooks[name] = updated
	s.mu.Unlock()

	s.log.Info().Str("name", name).Msg("webhook updated")
	return updated.Clone(), nil
}

// UnregisterWebhook deletes the subscription remotely best-effort and always
// removes the local record: local state must never reference a subscription
// the CRM may no longer have.
func (s *registryService) UnregisterWebhook(ctx context.Context, name string) error {
	s.mu.RLock()
	existing, ok := s.webhooks[name]
	s.mu.RUnlock()
	if !ok {
		return apperror.ErrWebhookNotFound(name)
	}

	if err := s.crm.DeleteWebhook(ctx, existing.WebhookID); err != nil {
		s.log.Warn().
			Err(err).
			Str("name", name).
			Str("webhook_id", existing.WebhookID).
			Msg("remote webhook delete failed, removing local record anyway")
	}

	s.mu.Lock()
	delete(s.webhooks, name)
	s.mu.Unlock()

	s.log.Info().Str("name", name).Msg("webhook unregistered")
	return nil
}

// VerifyHealth polls each subscription remotely. Read-only.
func (s *registryService) VerifyHealth(ctx context.Context) map[string]string {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.webhooks))
	for name, cfg := range s.webhooks {
		snapshot[name] = cfg.WebhookID
	}
	s.mu.RUnlock()

	result := make(map[string]string, len(snapshot))
	for name, webhookID := range snapshot {
		enabled, err := s.crm.GetWebhook(ctx, webhookID)
		switch {
		case err != nil:
			result[name] = "error: " + err.Error()
		case enabled:
			result[name] = "healthy"
		default:
			result[name] = "unhealthy"
		}
	}
	return result
}

// Stats returns a read-only snapshot of the registry.
func (s *registryService) Stats() *ports.WebhookStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ports.WebhookStats{
		Total:     len(s.webhooks),
		PerModule: make(map[string]int),
	}
	for _, cfg := range s.webhooks {
		if cfg.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.PerModule[string(cfg.Module)]++
	}
	return stats
}
