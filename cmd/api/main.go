package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-insights/internal/api/http"
	"github.com/spec-kit/ticket-insights/internal/api/http/handlers"
	"github.com/spec-kit/ticket-insights/internal/cache"
	"github.com/spec-kit/ticket-insights/internal/calendar"
	"github.com/spec-kit/ticket-insights/internal/config"
	"github.com/spec-kit/ticket-insights/internal/events"
	"github.com/spec-kit/ticket-insights/internal/observability"
	"github.com/spec-kit/ticket-insights/internal/persistence"
	"github.com/spec-kit/ticket-insights/internal/repository"
	"github.com/spec-kit/ticket-insights/internal/scheduler"
	"github.com/spec-kit/ticket-insights/internal/service"
	"github.com/spec-kit/ticket-insights/internal/upstream"
	"github.com/spec-kit/ticket-insights/internal/worker"
)

// reconcileLockKey identifies the advisory lock serializing
// reconciliation passes across all instances.
const reconcileLockKey = 7421001

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

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		logger.Fatal("invalid calendar timezone", zap.String("timezone", cfg.Calendar.Timezone), zap.Error(err))
	}
	cal := calendar.Config{
		Location:     loc,
		BusinessDays: cfg.Calendar.Weekdays(),
		StartHour:    cfg.Calendar.StartHour,
		EndHour:      cfg.Calendar.EndHour,
	}
	if err := cal.Validate(); err != nil {
		logger.Fatal("invalid business calendar", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	eventRepo := repository.NewEventRepository(pool)
	segmentRepo := repository.NewSegmentRepository(pool)
	aggregateRepo := repository.NewAggregateRepository(pool)
	closureRepo := repository.NewClosureRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	freshness := cache.NewFreshness(cache.NewRedisStore(redis.Client))
	upstreamClient := upstream.NewClient(cfg.Upstream, logger)

	ingestService := service.NewIngestService(service.IngestDependencies{
		EventRepo:  eventRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	segmentService := service.NewSegmentService(service.SegmentDependencies{
		EventRepo:   eventRepo,
		SegmentRepo: segmentRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	aggregationService := service.NewAggregationService(service.AggregationDependencies{
		SegmentRepo:   segmentRepo,
		AggregateRepo: aggregateRepo,
		Calendar:      cal,
		Logger:        logger,
	})
	reconcileService := service.NewReconcileService(service.ReconcileDependencies{
		Upstream:    upstreamClient,
		ClosureRepo: closureRepo,
		Guard:       persistence.NewAdvisoryLock(pool, reconcileLockKey),
		Upstreamcfg: cfg.Upstream,
		Location:    loc,
		Logger:      logger,
	})
	analyticsService := service.NewAnalyticsService(service.AnalyticsDependencies{
		AggregateRepo: aggregateRepo,
		SegmentRepo:   segmentRepo,
		ClosureRepo:   closureRepo,
		Cache:         freshness,
		CacheCfg:      cfg.Cache,
		Reconcile:     reconcileService,
		Logger:        logger,
	})

	rebuildQueue := worker.NewRebuildQueue(segmentService.Rebuild, 4, logger)
	dispatcher.Subscribe(events.EventStatusRecorded, func(ctx context.Context, evt events.Event) error {
		rebuildQueue.Enqueue(ctx, evt.TicketID)
		return nil
	})
	dispatcher.Subscribe(events.EventSegmentsRebuilt, func(ctx context.Context, evt events.Event) error {
		if payload, ok := evt.Payload.(events.SegmentsRebuiltPayload); ok {
			logger.Info("ticket segments rebuilt",
				zap.String("ticket_id", evt.TicketID),
				zap.Int("segment_count", payload.SegmentCount),
			)
		}
		return nil
	})

	sched := scheduler.New(scheduler.Dependencies{
		Aggregation: aggregationService,
		Reconcile:   reconcileService,
		Reconciler:  cfg.Reconciler,
		AggCfg:      cfg.Aggregation,
		Location:    loc,
		Metrics:     metrics,
		Logger:      logger,
	})
	go func() {
		if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped unexpectedly", zap.Error(err))
		}
	}()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Webhooks:  handlers.NewWebhookHandler(ingestService),
		Analytics: handlers.NewAnalyticsHandler(analyticsService),
		Jobs:      handlers.NewJobsHandler(aggregationService, reconcileService, loc),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	rebuildQueue.Drain()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
