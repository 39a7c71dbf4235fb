package domain

import (
	"fmt"
	"time"
)

// WebhookConfiguration is a subscription record for one CRM module.
// WebhookID stays empty until the CRM acknowledges registration. The
// configuration registry owns these exclusively; callers get copies.
type WebhookConfiguration struct {
	WebhookID   string      `json:"webhook_id,omitempty"`
	Name        string      `json:"name"`
	URL         string      `json:"url"`
	Module      Module      `json:"module"`
	Events      []EventType `json:"events"`
	Enabled     bool        `json:"enabled"`
	SecretToken string      `json:"secret_token,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewWebhookConfiguration builds a validated, not-yet-registered subscription.
// The event list must be non-empty and every entry a known event type.
func NewWebhookConfiguration(name string, module Module, events []EventType, url, secretToken string) (*WebhookConfiguration, error) {
	if name == "" {
		return nil, fmt.Errorf("webhook name must not be empty")
	}
	if !module.Valid() {
		return nil, fmt.Errorf("invalid module %q", module)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("webhook %q: event list must not be empty", name)
	}
	for _, ev := range events {
		if !ev.Valid() {
			return nil, fmt.Errorf("webhook %q: invalid event type %q", name, ev)
		}
	}
	now := time.Now().UTC()
	return &WebhookConfiguration{
		Name:        name,
		URL:         url,
		Module:      module,
		Events:      events,
		Enabled:     true,
		SecretToken: secretToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Clone returns a deep copy so registry internals never escape.
func (c *WebhookConfiguration) Clone() *WebhookConfiguration {
	cp := *c
	cp.Events = append([]EventType(nil), c.Events...)
	return &cp
}
