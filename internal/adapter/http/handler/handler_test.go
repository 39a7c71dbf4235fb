package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crm-sync-pipeline/internal/core/domain"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Service stubs ---

type stubIngress struct {
	result *ports.IngressResult
	err    error
	health *ports.IngressHealth

	gotBody      []byte
	gotSignature string
	gotEventID   string
}

func (s *stubIngress) HandleWebhook(ctx context.Context, rawBody []byte, signature, eventID string) (*ports.IngressResult, error) {
	s.gotBody = rawBody
	s.gotSignature = signature
	s.gotEventID = eventID
	return s.result, s.err
}

func (s *stubIngress) Health(ctx context.Context) *ports.IngressHealth {
	if s.health != nil {
		return s.health
	}
	return &ports.IngressHealth{Status: "healthy", Timestamp: time.Now()}
}

func (s *stubIngress) Metrics() *ports.IngressMetrics {
	return &ports.IngressMetrics{Received: 10, Queued: 8, AcceptanceRate: 0.8}
}

type stubProcessor struct {
	report       *ports.ReprocessReport
	reprocessErr error
	gotLimit     int
}

func (s *stubProcessor) Start(ctx context.Context, numWorkers int) {}
func (s *stubProcessor) Stop()                                     {}

func (s *stubProcessor) ReprocessDeadLetters(ctx context.Context, limit int) (*ports.ReprocessReport, error) {
	s.gotLimit = limit
	return s.report, s.reprocessErr
}

func (s *stubProcessor) Metrics(ctx context.Context) *ports.ProcessorMetrics {
	return &ports.ProcessorMetrics{EventsProcessed: 42, EventsSucceeded: 40, Workers: 5, Running: true}
}

type stubRegistry struct {
	cfg *domain.WebhookConfiguration
	err error
}

func (s *stubRegistry) Initialize(ctx context.Context, autoRegister bool) error { return nil }
func (s *stubRegistry) Secret() string                                          { return "secret" }

func (s *stubRegistry) RegisterWebhook(ctx context.Context, name string, module domain.Module, events []domain.EventType, url string) (*domain.WebhookConfiguration, error) {
	return s.cfg, s.err
}

func (s *stubRegistry) UpdateWebhook(ctx context.Context, name string, events []domain.EventType, enabled *bool) (*domain.WebhookConfiguration, error) {
	return s.cfg, s.err
}

func (s *stubRegistry) UnregisterWebhook(ctx context.Context, name string) error { return s.err }

func (s *stubRegistry) VerifyHealth(ctx context.Context) map[string]string {
	return map[string]string{"sync-accounts": "healthy"}
}

func (s *stubRegistry) Stats() *ports.WebhookStats {
	return &ports.WebhookStats{Total: 1, Enabled: 1, PerModule: map[string]int{"Accounts": 1}}
}

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(ctx context.Context) error { return s.err }
func (s stubChecker) Name() string                   { return s.name }

const testAdminToken = "admin-token"

func newTestRouter(ingress *stubIngress, processor *stubProcessor, registry *stubRegistry, checkers ...ports.HealthChecker) *gin.Engine {
	return SetupRouter(RouterDeps{
		Ingress:        ingress,
		Processor:      processor,
		Registry:       registry,
		AdminToken:     testAdminToken,
		HealthCheckers: checkers,
		Logger:         zerolog.New(io.Discard),
	})
}

func doRequest(router *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

// --- Webhook delivery endpoint ---

func TestHandleCRM_Accepted(t *testing.T) {
	ingress := &stubIngress{result: &ports.IngressResult{
		Status:  ports.IngressStatusAccepted,
		EventID: "evt-1",
		Message: "event queued for processing",
		Queued:  true,
	}}
	router := newTestRouter(ingress, &stubProcessor{}, &stubRegistry{})

	body := []byte(`{"operation":"update","module":"Accounts","data":[{"id":"acc-1"}]}`)
	w := doRequest(router, http.MethodPost, "/webhooks/crm", body, map[string]string{
		HeaderSignature: "abc123",
		HeaderEventID:   "evt-1",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var ack map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "accepted", ack["status"])
	assert.Equal(t, "evt-1", ack["event_id"])
	assert.Equal(t, true, ack["queued"])

	// The raw body and both delivery headers reach the service untouched.
	assert.Equal(t, body, ingress.gotBody)
	assert.Equal(t, "abc123", ingress.gotSignature)
	assert.Equal(t, "evt-1", ingress.gotEventID)
}

func TestHandleCRM_Duplicate(t *testing.T) {
	ingress := &stubIngress{result: &ports.IngressResult{
		Status:  ports.IngressStatusDuplicate,
		EventID: "evt-1",
		Queued:  false,
	}}
	router := newTestRouter(ingress, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodPost, "/webhooks/crm", []byte(`{}`), nil)

	assert.Equal(t, http.StatusOK, w.Code, "duplicates are acknowledged, not errored")
	var ack map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "duplicate", ack["status"])
	assert.Equal(t, false, ack["queued"])
}

func TestHandleCRM_InvalidSignature(t *testing.T) {
	ingress := &stubIngress{err: apperror.ErrInvalidSignature()}
	router := newTestRouter(ingress, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodPost, "/webhooks/crm", []byte(`{}`), nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SEC_001", resp["error_code"])
}

func TestHandleCRM_QueueFull(t *testing.T) {
	ingress := &stubIngress{err: apperror.ErrQueueFull()}
	router := newTestRouter(ingress, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodPost, "/webhooks/crm", []byte(`{}`), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngressHealth_Healthy(t *testing.T) {
	ingress := &stubIngress{health: &ports.IngressHealth{
		Status:         "healthy",
		RedisConnected: true,
		QueueSize:      3,
		QueueCapacity:  100,
		Timestamp:      time.Now(),
	}}
	router := newTestRouter(ingress, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/webhooks/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["redis_connected"])
	assert.Equal(t, float64(3), resp["queue_size"])
}

func TestIngressHealth_Unhealthy(t *testing.T) {
	ingress := &stubIngress{health: &ports.IngressHealth{Status: "unhealthy", Timestamp: time.Now()}}
	router := newTestRouter(ingress, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/webhooks/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngressMetrics(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/webhooks/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(10), resp["total_received"])
	assert.Equal(t, float64(8), resp["queued"])
}

func TestProcessorMetrics(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/webhooks/metrics/processor", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["events_processed"])
	assert.Equal(t, float64(5), resp["workers_running"])
	assert.Equal(t, true, resp["running"])
}

// --- Deep health check ---

func TestHealthCheck_AllHealthy(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{}, stubChecker{name: "redis"})

	w := doRequest(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{},
		stubChecker{name: "redis", err: assert.AnError})

	w := doRequest(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

// --- Admin API ---

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func testWebhookConfig(t *testing.T) *domain.WebhookConfiguration {
	t.Helper()
	cfg, err := domain.NewWebhookConfiguration("sync-accounts", domain.ModuleAccounts, []domain.EventType{domain.EventCreate}, "https://pipeline.example.com/webhooks/crm", "secret")
	require.NoError(t, err)
	cfg.WebhookID = "wh-1"
	return cfg
}

func TestAdminAPI_RequiresToken(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/api/v1/webhooks/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/webhooks/stats", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAPI_DisabledWithoutConfiguredToken(t *testing.T) {
	router := SetupRouter(RouterDeps{
		Ingress:   &stubIngress{},
		Processor: &stubProcessor{},
		Registry:  &stubRegistry{},
		Logger:    zerolog.New(io.Discard),
	})

	w := doRequest(router, http.MethodGet, "/api/v1/webhooks/stats", nil, adminHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code, "no admin token configured means no admin routes")
}

func TestRegisterWebhook_Created(t *testing.T) {
	registry := &stubRegistry{cfg: testWebhookConfig(t)}
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, registry)

	body := []byte(`{"name":"sync-accounts","module":"Accounts","events":["create"]}`)
	w := doRequest(router, http.MethodPost, "/api/v1/webhooks", body, adminHeaders())

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, "wh-1", data["webhook_id"])
	assert.Equal(t, "sync-accounts", data["name"])
}

func TestRegisterWebhook_BindingError(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	// events is required and must be non-empty
	body := []byte(`{"name":"sync-accounts","module":"Accounts","events":[]}`)
	w := doRequest(router, http.MethodPost, "/api/v1/webhooks", body, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterWebhook_Conflict(t *testing.T) {
	registry := &stubRegistry{err: apperror.ErrWebhookExists("sync-accounts")}
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, registry)

	body := []byte(`{"name":"sync-accounts","module":"Accounts","events":["create"]}`)
	w := doRequest(router, http.MethodPost, "/api/v1/webhooks", body, adminHeaders())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateWebhook(t *testing.T) {
	registry := &stubRegistry{cfg: testWebhookConfig(t)}
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, registry)

	body := []byte(`{"enabled":false}`)
	w := doRequest(router, http.MethodPut, "/api/v1/webhooks/sync-accounts", body, adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateWebhook_NotFound(t *testing.T) {
	registry := &stubRegistry{err: apperror.ErrWebhookNotFound("nope")}
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, registry)

	w := doRequest(router, http.MethodPut, "/api/v1/webhooks/nope", []byte(`{}`), adminHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnregisterWebhook(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodDelete, "/api/v1/webhooks/sync-accounts", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, true, data["deleted"])
}

func TestWebhookStats(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/api/v1/webhooks/stats", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total"])
}

func TestVerifyHealth(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodGet, "/api/v1/webhooks/verify", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, "healthy", data["sync-accounts"])
}

func TestReprocessDeadLetters(t *testing.T) {
	processor := &stubProcessor{report: &ports.ReprocessReport{Attempted: 5, Succeeded: 4, Failed: 1}}
	router := newTestRouter(&stubIngress{}, processor, &stubRegistry{})

	w := doRequest(router, http.MethodPost, "/api/v1/webhooks/dead-letters/reprocess", []byte(`{"limit":5}`), adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, processor.gotLimit)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(5), data["attempted"])
	assert.Equal(t, float64(4), data["succeeded"])
	assert.Equal(t, float64(1), data["failed"])
}

func TestReprocessDeadLetters_InvalidLimit(t *testing.T) {
	router := newTestRouter(&stubIngress{}, &stubProcessor{}, &stubRegistry{})

	w := doRequest(router, http.MethodPost, "/api/v1/webhooks/dead-letters/reprocess", []byte(`{"limit":0}`), adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
