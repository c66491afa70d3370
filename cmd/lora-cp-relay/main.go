package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/database"
	"github.com/brinsoko/LoRa-CP/internal/logger"
	"github.com/brinsoko/LoRa-CP/internal/redisx"
	"github.com/brinsoko/LoRa-CP/internal/relay"
	"github.com/brinsoko/LoRa-CP/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "lora-cp-relay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting lora-cp-relay service")

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redisx.NewClient(&cfg.Redis)
	defer redisClient.Close()

	messagesRepo := repository.NewPostgresMessagesRepo(db)
	devicesRepo := repository.NewPostgresDevicesRepo(db)

	var collector *relay.CollectorClient
	if cfg.Relay.CollectorURL != "" {
		collector = relay.NewCollectorClient(cfg.Relay.CollectorURL, cfg.Relay.CollectorTimeout, log)
		log.Info("Collector forwarding enabled", zap.String("url", cfg.Relay.CollectorURL))
	}

	consumer := relay.NewConsumer(redisClient, messagesRepo, devicesRepo, collector, cfg.Events.Stream, cfg.Relay, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Relay error", zap.Error(err))
		}
	}

	log.Info("Service stopped")
}
