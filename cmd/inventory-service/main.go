package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/stockflow/stockflow-backend/internal/inventory/cache"
	"github.com/stockflow/stockflow-backend/internal/inventory/consumers"
	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/internal/inventory/handler"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository/memory"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/workerpool"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(events.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(events.ServiceName, cfg.Server.Environment)
	log.Info().
		Str("storage", cfg.Engine.Storage).
		Str("events", cfg.Events.Mode).
		Msg("starting Inventory Service")

	checks := map[string]handler.HealthCheck{}

	// Storage
	var stores service.Stores
	switch cfg.Engine.Storage {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory storage, state is lost on restart and the catalog starts empty")
		stores = memory.New().Stores()
	default:
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		stores = repository.NewStores(db)
		checks["database"] = db.Health
	}

	snapshotCache, err := cache.NewSnapshotCache(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Broker, only in broker mode. A nil publisher publishes nothing.
	var rmq *messaging.RabbitMQ
	var publisher *events.InventoryEventPublisher
	if cfg.Events.Mode == config.EventsBroker {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		if err := rmq.DeclareDeadLetterQueue(events.ServiceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		publisher, err = events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		checks["rabbitmq"] = func(context.Context) map[string]string { return rmq.Health() }
	}

	pool := workerpool.New(cfg.Scheduler.Workers, cfg.Scheduler.QueueSize, log)
	log.Info().Int("workers", pool.Workers()).Int("queue_size", cfg.Scheduler.QueueSize).Msg("worker pool started")
	bus := events.NewLocalBus(log,
		events.WithRetry(cfg.Events.DeliveryAttempts, cfg.Events.RetryBackoff),
		events.WithParkLimit(cfg.Events.ParkLimit),
	)

	// Services. The alert engine is built before the optimizer, which
	// evaluates cost alerts on every result.
	snapshots := service.NewSnapshotService(stores, snapshotCache, cfg.Engine, log)
	ledger := service.NewLedgerService(stores, snapshots, bus, cfg.Engine, log)
	demand := service.NewDemandService(stores, pool, cfg.Engine, log)
	alerts := service.NewAlertService(stores, demand, snapshots, publisher, cfg.Engine, log)
	optimizer := service.NewOptimizationService(stores, demand, snapshots, alerts, publisher, cfg.Engine, log)
	orders := service.NewPurchaseOrderService(stores, ledger, snapshots, bus, publisher, log)
	cleanup := service.NewCleanupService(stores, pool, cfg.Scheduler, log)

	// Threshold updates and order state changes recompute snapshots without
	// a movement, so the alert engine hooks the aggregator directly.
	snapshots.OnRecomputed(alerts.HandleSnapshotRecomputed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Subscribers. The cache goes first so later handlers read fresh snapshots.
	bus.Subscribe("snapshot_cache", snapshots.HandleMovementCommitted)
	if cfg.Events.Mode == config.EventsBroker {
		bus.Subscribe("broker", publisher.ForwardMovement)

		consumer, err := consumers.NewMovementEventConsumer(rmq, log, demand, alerts)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create movement event consumer")
		}
		if err := consumer.Start(gctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start movement event consumer")
		}
		g.Go(func() error {
			consumer.Wait()
			return nil
		})
	} else {
		bus.Subscribe("demand", demand.HandleMovementCommitted)
		bus.Subscribe("alerts", alerts.HandleMovementCommitted)
	}

	log.Info().Strs("subscribers", bus.Subscribers()).Msg("event bus ready")

	scheduler := service.NewScheduler(demand, cleanup, alerts, bus, cfg.Scheduler, cfg.Engine.DemandWindowDays, log)
	if cfg.Scheduler.Enabled {
		scheduler.Start(gctx)
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Email", "X-User-Name"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.ActorMiddleware)

	r.Get("/health", handler.NewHealthHandler(events.ServiceName, checks).Check)

	handler.Handlers{
		Movements:     handler.NewMovementHandler(ledger, log),
		Snapshots:     handler.NewSnapshotHandler(snapshots, log),
		Demand:        handler.NewDemandHandler(demand, cfg.Engine.DemandWindowDays, log),
		Optimizations: handler.NewOptimizationHandler(optimizer, log),
		Alerts:        handler.NewAlertHandler(alerts, log),
		Orders:        handler.NewPurchaseOrderHandler(orders, log),
		Maintenance:   handler.NewMaintenanceHandler(demand, cleanup, alerts, log),
	}.Mount(r)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		scheduler.Stop()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("worker pool did not drain")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("inventory service stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
