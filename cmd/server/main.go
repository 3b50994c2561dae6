package main

import (
	"fmt"
	"log"
	"net/http"

	"beacon/internal/api"
	"beacon/internal/api/handlers"
	"beacon/internal/api/middleware"
	"beacon/internal/engine/delivery"
	"beacon/internal/engine/dispatch"
	"beacon/internal/engine/inbound"
	"beacon/internal/engine/router"
	"beacon/internal/pkg/logger"
	"beacon/internal/platform/auth"
	"beacon/internal/platform/config"
	"beacon/internal/platform/database"
	"beacon/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Repositories
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)

	// Pipeline
	engine := delivery.NewEngine(deliveryRepo, subscriptionRepo)
	pool := dispatch.NewPool(cfg.Webhooks.WorkerCount, cfg.Webhooks.QueueSize)
	defer pool.Shutdown()

	indexer := router.NewIndexer(cfg.Indexer)
	eventRouter := router.New(subscriptionRepo, deliveryRepo, engine, pool, indexer)
	dedup := inbound.NewDedupCache(cfg.Webhooks.DedupWindow)

	// Provider adapters. Slack user resolution belongs to the identity
	// system; unresolved users fall back to the configured default.
	gmailVerifier := inbound.NewGmailVerifier(cfg.Gmail)
	slackVerifier := inbound.NewSlackVerifier(cfg.Slack, cfg.IsDevelopment(), nil)

	// Services
	tokenSvc := auth.NewTokenService(cfg.Auth)

	// Handlers
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionRepo, cfg.Webhooks)
	deliveryHandler := handlers.NewDeliveryHandler(subscriptionRepo, deliveryRepo, engine, pool)
	eventHandler := handlers.NewEventHandler(eventRouter, dedup)
	inboundHandler := handlers.NewInboundHandler(gmailVerifier, slackVerifier, eventRouter, dedup)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyRepo)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(apiKeyRepo)

	deps := &api.Dependencies{
		SubscriptionHandler: subscriptionHandler,
		DeliveryHandler:     deliveryHandler,
		EventHandler:        eventHandler,
		InboundHandler:      inboundHandler,
		APIKeyHandler:       apiKeyHandler,
		HealthHandler:       healthHandler,
		AuthMiddleware:      authMiddleware,
		APIKeyMiddleware:    apiKeyMiddleware,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
