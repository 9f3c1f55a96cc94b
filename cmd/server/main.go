package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"couponmarket/internal/config"
	"couponmarket/internal/handler"
	"couponmarket/internal/infrastructure/cache"
	"couponmarket/internal/infrastructure/database"
	"couponmarket/internal/infrastructure/mq"
	"couponmarket/internal/job"
	"couponmarket/internal/service"
	"couponmarket/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)

	redisClient := cache.InitRedis(&cfg.Redis)

	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background workers: outbox relay, degraded-mode reconciliation,
	// credit key expiry sweep.
	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	redeemService := service.NewRedeemService(db, redisClient, cfg)
	reconcileJob := job.NewReferralReconcileJob(db, redeemService, cfg)
	go reconcileJob.Start(ctx)

	keyExpiryJob := job.NewKeyExpiryJob(db, cfg)
	go keyExpiryJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	log.Println("server stopped")
}
