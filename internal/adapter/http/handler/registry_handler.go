package handler

import (
	"crm-sync-pipeline/internal/adapter/http/dto"
	"crm-sync-pipeline/internal/core/domain"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/pkg/apperror"
	"crm-sync-pipeline/pkg/response"

	"github.com/gin-gonic/gin"
)

// RegistryHandler exposes subscription management to operators.
type RegistryHandler struct {
	registry ports.RegistryService
}

// NewRegistryHandler creates a new RegistryHandler.
func NewRegistryHandler(registry ports.RegistryService) *RegistryHandler {
	return &RegistryHandler{registry: registry}
}

// Register handles POST /api/v1/webhooks.
func (h *RegistryHandler) Register(c *gin.Context) {
	var req dto.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	cfg, err := h.registry.RegisterWebhook(
		c.Request.Context(),
		req.Name,
		domain.Module(req.Module),
		dto.ToEventTypes(req.Events),
		req.URL,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromWebhookConfiguration(cfg))
}

// Update handles PUT /api/v1/webhooks/:name.
func (h *RegistryHandler) Update(c *gin.Context) {
	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	cfg, err := h.registry.UpdateWebhook(
		c.Request.Context(),
		c.Param("name"),
		dto.ToEventTypes(req.Events),
		req.Enabled,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromWebhookConfiguration(cfg))
}

// Unregister handles DELETE /api/v1/webhooks/:name.
func (h *RegistryHandler) Unregister(c *gin.Context) {
	if err := h.registry.UnregisterWebhook(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// Stats handles GET /api/v1/webhooks/stats.
func (h *RegistryHandler) Stats(c *gin.Context) {
	stats := h.registry.Stats()
	response.OK(c, dto.WebhookStatsResponse{
		Total:     stats.Total,
		Enabled:   stats.Enabled,
		Disabled:  stats.Disabled,
		PerModule: stats.PerModule,
	})
}

// VerifyHealth handles GET /api/v1/webhooks/verify.
func (h *RegistryHandler) VerifyHealth(c *gin.Context) {
	response.OK(c, h.registry.VerifyHealth(c.Request.Context()))
}
