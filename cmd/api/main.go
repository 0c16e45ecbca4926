package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/repair-tracker/internal/api/http"
	"github.com/spec-kit/repair-tracker/internal/api/http/handlers"
	"github.com/spec-kit/repair-tracker/internal/auth"
	"github.com/spec-kit/repair-tracker/internal/config"
	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/observability"
	"github.com/spec-kit/repair-tracker/internal/persistence"
	"github.com/spec-kit/repair-tracker/internal/realtime"
	"github.com/spec-kit/repair-tracker/internal/repository"
	"github.com/spec-kit/repair-tracker/internal/service"
	"github.com/spec-kit/repair-tracker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		requestRepo repository.ServiceRequestRepository
		jobRepo     repository.JobRepository
		sequences   repository.SequenceRepository
	)
	if pg.Enabled() {
		requestRepo = repository.NewServiceRequestRepository(pg.PoolHandle())
		jobRepo = repository.NewJobRepository(pg.PoolHandle())
	} else {
		logger.Warn("using in-memory repositories; data is lost on restart")
		requestRepo = repository.NewMemoryServiceRequestRepository()
		jobRepo = repository.NewMemoryJobRepository()
	}
	switch {
	case redis.Reachable:
		sequences = repository.NewRedisSequenceRepository(redis.Client, "repair-tracker:seq:")
	case pg.Enabled():
		sequences = repository.NewPostgresSequenceRepository(pg.PoolHandle())
	default:
		sequences = repository.NewMemorySequenceRepository()
	}

	loc := cfg.App.Location()
	hub := realtime.NewHub(cfg.Notification.SubscriberBuffer, logger, metrics)
	var sink realtime.Sink = hub
	if cfg.Redis.PubSubEnabled && redis.Reachable {
		bridge := realtime.NewRedisBridge(redis.Client, realtime.DefaultChannel, hub, logger)
		sink = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
	}

	queue := events.NewAsyncDispatcher(events.NewInMemoryDispatcher(), cfg.Notification.QueueSize, func(event events.Event) {
		metrics.RecordDropped("queue_full")
		logger.Warn("notification dropped",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	})
	notificationService := service.NewNotificationService(queue, sink, logger)
	worker.StartNotificationWorker(ctx, notificationService, queue, logger)

	numbers := service.NewNumberGenerator(sequences, loc).WithStoredNumbers(requestRepo, jobRepo)
	requestService := service.NewServiceRequestService(service.ServiceRequestDependencies{
		RequestRepo: requestRepo,
		Numbers:     numbers,
		Dispatcher:  queue,
		Logger:      logger,
		Metrics:     metrics,
		QuotePolicy: domain.QuotePolicy{ValidityDays: cfg.Quote.ValidityDays, Location: loc},
		Surcharges: domain.SurchargeTable{
			domain.PickupTierRegular:   cfg.Quote.SurchargeRegular,
			domain.PickupTierPriority:  cfg.Quote.SurchargePriority,
			domain.PickupTierEmergency: cfg.Quote.SurchargeEmergency,
		},
	})
	jobService := service.NewJobService(service.JobDependencies{
		JobRepo:    jobRepo,
		Requests:   requestService,
		Numbers:    numbers,
		Dispatcher: queue,
		Logger:     logger,
		Metrics:    metrics,
		Location:   loc,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	streamsDone := make(chan struct{})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, hub),
		ServiceRequests: handlers.NewServiceRequestsHandler(requestService, jobService, loc),
		Jobs:            handlers.NewJobsHandler(jobService),
		Events:          handlers.NewEventsHandler(hub, cfg.Notification.HeartbeatInterval(), streamsDone, logger),
		Metrics:         metrics,
		AuthMiddleware:  auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	close(streamsDone)
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	cancel()
	logger.Info("stopped", zap.Int("pending_notifications", queue.Pending()))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
