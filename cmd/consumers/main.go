package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boothpay/cmd/consumers/jobs"
	"boothpay/internal/app"
	"boothpay/internal/config"
	"boothpay/internal/consumers"
	"boothpay/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	log.Info("Starting consumers service...")

	a, err := app.New(cfg, app.Options{RequireNATS: true, ClientID: cfg.NATS.ClientID + "-consumers"})
	if err != nil {
		logger.Fatal("Failed to initialize application", "error", err)
	}

	consumerService := consumers.NewConsumerService(a)
	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	var lease jobs.Lease
	if a.Valkey != nil {
		lease = a.Valkey
	}
	sweepJob := jobs.NewReconcileSweepJob(a.Services.Reconciler, lease, jobs.SweepConfig{
		Interval: cfg.Reconcile.SweepInterval,
		MaxAge:   cfg.Reconcile.SweepMaxAge,
		Limit:    cfg.Reconcile.SweepLimit,
		LeaseTTL: cfg.Reconcile.SweepLeaseTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweepJob.Start(ctx)

	log.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")

	sweepJob.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}
	if err := a.Close(); err != nil {
		log.Error("Error closing connections", "error", err)
	}

	log.Info("Consumers service stopped")
}
