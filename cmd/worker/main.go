package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"beacon/internal/engine/delivery"
	"beacon/internal/pkg/logger"
	"beacon/internal/platform/config"
	"beacon/internal/platform/database"
	"beacon/internal/platform/repositories"
	"beacon/internal/workers"
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

	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	engine := delivery.NewEngine(deliveryRepo, subscriptionRepo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := workers.NewRetrySweeper(deliveryRepo, engine, cfg.Retry)
	cleanup := workers.NewCleanupWorker(deliveryRepo, cfg.Retention)

	log.Println("Starting beacon background workers...")
	go sweeper.Run(ctx)
	go cleanup.Run(ctx)

	<-ctx.Done()
	log.Println("Workers shutting down")
}
