package handler

import (
	"io"
	"net/http"

	"crm-sync-pipeline/internal/adapter/http/dto"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/pkg/apperror"
	"crm-sync-pipeline/pkg/response"

	"github.com/gin-gonic/gin"
)

// Webhook delivery headers.
const (
	HeaderSignature = "X-CRM-Signature"
	HeaderEventID   = "X-CRM-Event-Id"
)

// WebhookHandler handles the inbound delivery endpoint and the pipeline's
// read surfaces.
type WebhookHandler struct {
	ingress   ports.IngressService
	processor ports.ProcessorService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ingress ports.IngressService, processor ports.ProcessorService) *WebhookHandler {
	return &WebhookHandler{ingress: ingress, processor: processor}
}

// HandleCRM handles POST /webhooks/crm. The body is read raw: the signature
// covers the exact bytes on the wire.
func (h *WebhookHandler) HandleCRM(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	result, err := h.ingress.HandleWebhook(
		c.Request.Context(),
		body,
		c.GetHeader(HeaderSignature),
		c.GetHeader(HeaderEventID),
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAck{
		Status:  result.Status,
		EventID: result.EventID,
		Message: result.Message,
		Queued:  result.Queued,
	})
}

// IngressHealth handles GET /webhooks/health.
func (h *WebhookHandler) IngressHealth(c *gin.Context) {
	health := h.ingress.Health(c.Request.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.FromIngressHealth(health))
}

// IngressMetrics handles GET /webhooks/metrics.
func (h *WebhookHandler) IngressMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, dto.FromIngressMetrics(h.ingress.Metrics()))
}

// ProcessorMetrics handles GET /webhooks/metrics/processor.
func (h *WebhookHandler) ProcessorMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, dto.FromProcessorMetrics(h.processor.Metrics(c.Request.Context())))
}

// ReprocessDeadLetters handles POST /api/v1/webhooks/dead-letters/reprocess.
func (h *WebhookHandler) ReprocessDeadLetters(c *gin.Context) {
	var req dto.ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	report, err := h.processor.ReprocessDeadLetters(c.Request.Context(), req.Limit)
	if err != nil {
		response.Error(c, apperror.ErrQueueUnavailable(err))
		return
	}
	response.OK(c, dto.ReprocessResponse{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
	})
}
