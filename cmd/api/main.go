package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/medledger/registry-api/internal/config"
	"github.com/medledger/registry-api/internal/handler"
	appointmentHandler "github.com/medledger/registry-api/internal/handler/appointment"
	medicalHandler "github.com/medledger/registry-api/internal/handler/medical"
	patientHandler "github.com/medledger/registry-api/internal/handler/patient"
	registryHandler "github.com/medledger/registry-api/internal/handler/registry"
	"github.com/medledger/registry-api/internal/middleware"
	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository"
	"github.com/medledger/registry-api/internal/repository/memory"
	"github.com/medledger/registry-api/internal/repository/postgres"
	"github.com/medledger/registry-api/internal/router"
	appointmentService "github.com/medledger/registry-api/internal/service/appointment"
	identityService "github.com/medledger/registry-api/internal/service/identity"
	medicalService "github.com/medledger/registry-api/internal/service/medical"
	patientService "github.com/medledger/registry-api/internal/service/patient"
	"github.com/medledger/registry-api/pkg/auth"
	"github.com/medledger/registry-api/pkg/logger"
	"github.com/medledger/registry-api/pkg/messaging/redis"
	"github.com/medledger/registry-api/pkg/metrics"
	"github.com/medledger/registry-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	admin := model.Identity(cfg.Store.AdminAddress)

	// Select the ledger backend. Both implementations expose the same
	// transactional store plus the outbox repository the processor drains.
	var (
		store      repository.LedgerStore
		outboxRepo repository.OutboxRepository
		pinger     handler.Pinger
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		pg := postgres.NewStore(db)
		if err := pg.Bootstrap(context.Background(), admin); err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap ledger")
		}
		store = pg
		outboxRepo = pg
		pinger = db
	case "memory":
		mem := memory.NewStore(admin)
		store = mem
		outboxRepo = mem
	default:
		log.Fatal().Str("backend", cfg.Store.Backend).Msg("unknown store backend")
	}

	// Initialize services
	identitySvc := identityService.NewService(store, appLogger)
	patientSvc := patientService.NewService(store, appLogger)
	appointmentSvc := appointmentService.NewService(store, appLogger)
	medicalSvc := medicalService.NewService(store, appLogger)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	// Initialize handlers
	h := handler.NewHandler(pinger)
	registryH := registryHandler.NewHandler(identitySvc)
	patientH := patientHandler.NewHandler(patientSvc, appointmentSvc, medicalSvc)
	appointmentH := appointmentHandler.NewHandler(appointmentSvc)
	medicalH := medicalHandler.NewHandler(medicalSvc)

	r := router.NewRouter(
		authMiddleware,
		registryH,
		patientH,
		appointmentH,
		medicalH,
		h,
		router.RouterConfig{
			RateLimit:     rate.Limit(cfg.RateLimit.RPS),
			RateBurst:     cfg.RateLimit.Burst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "registry_http",
			ReadCacheTTL:  30 * time.Second,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	// Initialize Redis message broker
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

	// Start the outbox processor so staged audit events reach the broker.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	outboxProcessor := worker.NewOutboxProcessor(
		outboxRepo,
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
	go outboxProcessor.Start(workerCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
