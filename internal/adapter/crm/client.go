package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crm-sync-pipeline/internal/core/domain"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the CRM's webhook subscription management API.
// Implements ports.CRMClient.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	authToken  string
}

// NewClient creates a CRM API client. baseURL must not end with a slash.
func NewClient(httpClient HTTPClient, baseURL, authToken string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		authToken:  authToken,
	}
}

type registerRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"notify_url"`
	Module string   `json:"module"`
	Events []string `json:"events"`
}

type registerResponse struct {
	WebhookID string `json:"webhook_id"`
}

type updateRequest struct {
	Events  []string `json:"events"`
	Enabled bool     `json:"enabled"`
}

type getResponse struct {
	Enabled bool `json:"enabled"`
}

// RegisterWebhook creates the remote subscription and returns the
// CRM-assigned webhook id.
func (c *Client) RegisterWebhook(ctx context.Context, cfg *domain.WebhookConfiguration) (string, error) {
	body := registerRequest{
		Name:   cfg.Name,
		URL:    cfg.URL,
		Module: string(cfg.Module),
		Events: eventNames(cfg.Events),
	}
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/settings/webhooks", body, &resp); err != nil {
		return "", err
	}
	if resp.WebhookID == "" {
		return "", fmt.Errorf("crm register webhook %q: empty webhook id in response", cfg.Name)
	}
	return resp.WebhookID, nil
}

// UpdateWebhook pushes the subscription's current events/enabled state.
func (c *Client) UpdateWebhook(ctx context.Context, cfg *domain.WebhookConfiguration) error {
	body := updateRequest{
		Events:  eventNames(cfg.Events),
		Enabled: cfg.Enabled,
	}
	return c.do(ctx, http.MethodPut, "/api/v1/settings/webhooks/"+cfg.WebhookID, body, nil)
}

// DeleteWebhook removes the remote subscription.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/settings/webhooks/"+webhookID, nil, nil)
}

// GetWebhook probes the remote subscription.
func (c *Client) GetWebhook(ctx context.Context, webhookID string) (bool, error) {
	var resp getResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/settings/webhooks/"+webhookID, nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// do executes one JSON round trip against the CRM API.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("crm %s %s: marshaling request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("crm %s %s: building request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crm %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("crm %s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}

func eventNames(events []domain.EventType) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = string(ev)
	}
	return names
}
