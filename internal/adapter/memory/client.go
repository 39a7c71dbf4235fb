package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client pushes derived changes into the downstream memory/knowledge store.
// Implements ports.SyncTarget. The store's sync endpoint is idempotent:
// it refetches the account from the CRM and converges to its latest state.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	authToken  string
}

// NewClient creates a memory store client. baseURL must not end with a slash.
func NewClient(httpClient HTTPClient, baseURL, authToken string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		authToken:  authToken,
	}
}

type syncRequest struct {
	Forced bool `json:"forced"`
}

// SyncAccount asks the memory store to refresh its representation of the
// account. forced bypasses the store's debounce heuristics.
func (c *Client) SyncAccount(ctx context.Context, accountID string, forced bool) error {
	payload, err := json.Marshal(syncRequest{Forced: forced})
	if err != nil {
		return fmt.Errorf("memory sync %s: marshaling request: %w", accountID, err)
	}

	url := c.baseURL + "/api/v1/accounts/" + accountID + "/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("memory sync %s: building request: %w", accountID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory sync %s: %w", accountID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("memory sync %s: unexpected status %d", accountID, resp.StatusCode)
	}
	return nil
}
