package handler

import (
	"crm-sync-pipeline/internal/adapter/http/middleware"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ingress        ports.IngressService
	Processor      ports.ProcessorService
	Registry       ports.RegistryService
	AdminToken     string // empty disables the admin API
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Deep health check across dependencies
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus scrape endpoint
	r.GET("/metrics/prometheus", gin.WrapH(metrics.Handler()))

	// Webhook delivery + read surfaces
	webhookHandler := NewWebhookHandler(deps.Ingress, deps.Processor)
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/crm", webhookHandler.HandleCRM)
		webhooks.GET("/health", webhookHandler.IngressHealth)
		webhooks.GET("/metrics", webhookHandler.IngressMetrics)
		webhooks.GET("/metrics/processor", webhookHandler.ProcessorMetrics)
	}

	// Operator API (disabled when no admin token is configured)
	if deps.AdminToken != "" {
		adminAuth := middleware.AdminAuth(deps.AdminToken, deps.Logger)
		registryHandler := NewRegistryHandler(deps.Registry)
		admin := r.Group("/api/v1/webhooks", adminAuth)
		{
			admin.POST("", registryHandler.Register)
			admin.PUT("/:name", registryHandler.Update)
			admin.DELETE("/:name", registryHandler.Unregister)
			admin.GET("/stats", registryHandler.Stats)
			admin.GET("/verify", registryHandler.VerifyHealth)
			admin.POST("/dead-letters/reprocess", webhookHandler.ReprocessDeadLetters)
		}
	}

	return r
}
