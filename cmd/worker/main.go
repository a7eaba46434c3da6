package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/medledger/registry-api/internal/config"
	"github.com/medledger/registry-api/internal/repository/postgres"
	"github.com/medledger/registry-api/pkg/logger"
	"github.com/medledger/registry-api/pkg/messaging/redis"
	"github.com/medledger/registry-api/pkg/metrics"
	"github.com/medledger/registry-api/pkg/worker"
)

// Standalone outbox drainer. Runs against the postgres backend only; the
// memory backend keeps its outbox in-process with the API server.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Store.Backend != "postgres" {
		log.Fatal().Str("backend", cfg.Store.Backend).Msg("worker requires the postgres backend")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store := postgres.NewStore(db)

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	processor := worker.NewOutboxProcessor(
		store,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval(),
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay(),
		},
		appLogger,
		metrics.NewMetrics("registry", "outbox"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go processor.Start(ctx)
	log.Info().Msg("outbox worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	log.Info().Msg("outbox worker stopped")
}
