package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-sync-pipeline/config"
	crmClient "crm-sync-pipeline/internal/adapter/crm"
	httpHandler "crm-sync-pipeline/internal/adapter/http/handler"
	memoryClient "crm-sync-pipeline/internal/adapter/memory"
	redisStorage "crm-sync-pipeline/internal/adapter/storage/redis"
	"crm-sync-pipeline/internal/core/ports"
	"crm-sync-pipeline/internal/service"
	"crm-sync-pipeline/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting CRM Sync Pipeline")

	ctx := context.Background()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize Redis stores
	eventQueue := redisStorage.NewEventQueue(rdb, cfg.Webhook.QueueKey, cfg.Webhook.DeadLetterKey, cfg.Webhook.DeadLetterRetention, log)
	dedupStore := redisStorage.NewDedupStore(rdb)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Initialize outbound clients
	crmAPI := crmClient.NewClient(&http.Client{Timeout: cfg.CRM.Timeout}, cfg.CRM.BaseURL, cfg.CRM.AuthToken)
	memoryStore := memoryClient.NewClient(&http.Client{Timeout: cfg.Memory.Timeout}, cfg.Memory.BaseURL, cfg.Memory.AuthToken)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	registrySvc := service.NewRegistryService(crmAPI, sigSvc, service.RegistryConfig{
		Secret:             cfg.Webhook.Secret,
		NotifyURL:          cfg.Webhook.NotifyURL,
		AllowLocalFallback: cfg.Webhook.AllowLocalFallback,
	}, log)
	if err := registrySvc.Initialize(ctx, cfg.Webhook.AutoRegister); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize webhook registry")
	}

	ingressSvc := service.NewIngressService(eventQueue, dedupStore, sigSvc, redisHealth, service.IngressConfig{
		Secret:       registrySvc.Secret(),
		DedupTTL:     cfg.Webhook.DedupTTL,
		MaxQueueSize: cfg.Webhook.MaxQueueSize,
	}, log)

	processor := service.NewProcessor(eventQueue, memoryStore, service.ProcessorConfig{
		BatchSize:    cfg.Processor.BatchSize,
		BatchTimeout: cfg.Processor.BatchTimeout,
		MaxRetries:   cfg.Processor.MaxRetries,
		BaseBackoff:  cfg.Processor.BaseBackoff,
		MaxBackoff:   cfg.Processor.MaxBackoff,
	}, log)
	processor.Start(ctx, cfg.Processor.Workers)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ingress:        ingressSvc,
		Processor:      processor,
		Registry:       registrySvc,
		AdminToken:     cfg.Admin.Token,
		HealthCheckers: []ports.HealthChecker{redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Workers finish their in-flight batch before exiting
	processor.Stop()

	log.Info().Msg("Server exited")
}
