package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/config"
	"github.com/brinsoko/LoRa-CP/internal/database"
	"github.com/brinsoko/LoRa-CP/internal/dedup"
	"github.com/brinsoko/LoRa-CP/internal/events"
	httpapi "github.com/brinsoko/LoRa-CP/internal/http"
	"github.com/brinsoko/LoRa-CP/internal/ingest"
	"github.com/brinsoko/LoRa-CP/internal/logger"
	"github.com/brinsoko/LoRa-CP/internal/mqtt"
	"github.com/brinsoko/LoRa-CP/internal/progress"
	"github.com/brinsoko/LoRa-CP/internal/redisx"
	"github.com/brinsoko/LoRa-CP/internal/repository"
	"github.com/brinsoko/LoRa-CP/internal/service"
	"github.com/brinsoko/LoRa-CP/internal/store"
	"github.com/brinsoko/LoRa-CP/internal/uplink"
	"github.com/brinsoko/LoRa-CP/internal/verify"
)

func main() {
	// .env is a development convenience; deployments set the environment.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "lora-cp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting lora-cp service")

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redisx.NewClient(&cfg.Redis)
	defer redisClient.Close()

	devicesRepo := repository.NewPostgresDevicesRepo(db)
	tagsRepo := repository.NewPostgresTagsRepo(db)
	teamsRepo := repository.NewPostgresTeamsRepo(db)
	groupsRepo := repository.NewPostgresGroupsRepo(db)
	checkpointsRepo := repository.NewPostgresCheckpointsRepo(db)
	checkinsRepo := repository.NewPostgresCheckInsRepo(db)
	messagesRepo := repository.NewPostgresMessagesRepo(db)

	kv := store.NewRedisKV(redisClient)
	guard := dedup.NewGuard(kv, cfg.Dedup.Window, log)
	emitter := events.NewEmitter(redisClient, cfg.Events.Stream, log)

	pipeline := ingest.NewPipeline(devicesRepo, tagsRepo, teamsRepo, checkpointsRepo, checkinsRepo, guard, emitter, cfg.Digest, log)
	reconciler := verify.NewReconciler(devicesRepo, tagsRepo, teamsRepo, checkpointsRepo, checkinsRepo, emitter, cfg.Digest, log)
	projector := progress.NewProjector(teamsRepo, groupsRepo, checkinsRepo, log)

	router := httpapi.NewRouter(log)
	router.RegisterAPIRoutes(
		httpapi.NewIngestHandler(pipeline, log),
		httpapi.NewCheckInHandler(pipeline, checkinsRepo, log),
		httpapi.NewVerifyHandler(reconciler, log),
		httpapi.NewProgressHandler(projector, log),
		httpapi.NewDeviceHandler(devicesRepo, messagesRepo, log),
		httpapi.NewHealthHandler(db, redisClient, log),
	)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	// The MQTT subscription is optional; gateways can also POST uplinks to
	// /api/v1/ingest directly.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		consumer := uplink.NewConsumer(mqttClient, pipeline, cfg.MQTT.Topic, cfg.MQTT.QoS, log)
		if err := consumer.Start(); err != nil {
			log.Fatal("Failed to subscribe to uplink topic", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", zap.Error(err))
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}

	log.Info("Service stopped")
}
