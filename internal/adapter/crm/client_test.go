package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"crm-sync-pipeline/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testConfig(t *testing.T) *domain.WebhookConfiguration {
	t.Helper()
	cfg, err := domain.NewWebhookConfiguration("sync-accounts", domain.ModuleAccounts, []domain.EventType{domain.EventCreate, domain.EventUpdate}, "https://pipeline.example.com/webhooks/crm", "secret")
	require.NoError(t, err)
	return cfg
}

func TestClient_RegisterWebhook(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			capturedBody, _ = io.ReadAll(req.Body)
			return jsonResponse(201, `{"webhook_id":"wh-42"}`), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "crm-token")

	id, err := client.RegisterWebhook(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "wh-42", id)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "https://crm.example.com/api/v1/settings/webhooks", captured.URL.String())
	assert.Equal(t, "Bearer crm-token", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(capturedBody, &body))
	assert.Equal(t, "sync-accounts", body["name"])
	assert.Equal(t, "Accounts", body["module"])
	assert.Equal(t, []any{"create", "update"}, body["events"])
}

func TestClient_RegisterWebhook_EmptyID(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(201, `{}`), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	_, err := client.RegisterWebhook(context.Background(), testConfig(t))
	assert.Error(t, err, "a registration without an id is useless downstream")
}

func TestClient_RegisterWebhook_ServerError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(500, `{"message":"boom"}`), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	_, err := client.RegisterWebhook(context.Background(), testConfig(t))
	assert.Error(t, err)
}

func TestClient_RegisterWebhook_TransportError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	_, err := client.RegisterWebhook(context.Background(), testConfig(t))
	assert.ErrorContains(t, err, "connection refused")
}

func TestClient_UpdateWebhook(t *testing.T) {
	var captured *http.Request
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			return jsonResponse(200, `{}`), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	cfg := testConfig(t)
	cfg.WebhookID = "wh-42"
	require.NoError(t, client.UpdateWebhook(context.Background(), cfg))

	assert.Equal(t, http.MethodPut, captured.Method)
	assert.Equal(t, "https://crm.example.com/api/v1/settings/webhooks/wh-42", captured.URL.String())
}

func TestClient_DeleteWebhook(t *testing.T) {
	var captured *http.Request
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			return jsonResponse(204, ``), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	require.NoError(t, client.DeleteWebhook(context.Background(), "wh-42"))
	assert.Equal(t, http.MethodDelete, captured.Method)
	assert.Equal(t, "https://crm.example.com/api/v1/settings/webhooks/wh-42", captured.URL.String())
}

func TestClient_GetWebhook(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodGet, req.Method)
			return jsonResponse(200, `{"enabled":true}`), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	enabled, err := client.GetWebhook(context.Background(), "wh-42")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestClient_GetWebhook_NotFound(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(404, `{"message":"no such webhook"}`), nil
		},
	}
	client := NewClient(httpClient, "https://crm.example.com", "")

	_, err := client.GetWebhook(context.Background(), "wh-missing")
	assert.Error(t, err)
}
