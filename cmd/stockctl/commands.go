package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/migrations"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/workerpool"
)

type engineKey struct{}

// engine holds the services a batch command runs against. Events are
// dispatched nowhere: the jobs write derived data directly.
type engine struct {
	db        *database.DB
	pool      *workerpool.Pool
	cfg       *config.Config
	log       *logger.Logger
	demand    *service.DemandService
	alerts    *service.AlertService
	optimizer *service.OptimizationService
	cleanup   *service.CleanupService
}

func loadConfig(c *cli.Context) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(events.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	env := cfg.Server.Environment
	if c.Bool("verbose") {
		env = config.EnvDevelopment
	}
	return cfg, logger.New("stockctl", env), nil
}

func openEngine(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Engine.Storage != config.StoragePostgres {
		return fmt.Errorf("stockctl needs postgres storage, configured %q", cfg.Engine.Storage)
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return err
	}

	stores := repository.NewStores(db)
	pool := workerpool.New(cfg.Scheduler.Workers, cfg.Scheduler.QueueSize, log)
	snapshots := service.NewSnapshotService(stores, nil, cfg.Engine, log)
	demand := service.NewDemandService(stores, pool, cfg.Engine, log)
	alerts := service.NewAlertService(stores, demand, snapshots, nil, cfg.Engine, log)

	e := &engine{
		db:        db,
		pool:      pool,
		cfg:       cfg,
		log:       log,
		demand:    demand,
		alerts:    alerts,
		optimizer: service.NewOptimizationService(stores, demand, snapshots, alerts, nil, cfg.Engine, log),
		cleanup:   service.NewCleanupService(stores, pool, cfg.Scheduler, log),
	}

	c.Context = context.WithValue(c.Context, engineKey{}, e)
	return nil
}

func closeEngine(c *cli.Context) error {
	e, ok := c.Context.Value(engineKey{}).(*engine)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Scheduler.ShutdownTimeout)
	defer cancel()
	if err := e.pool.Shutdown(ctx); err != nil {
		e.log.Warn().Err(err).Msg("worker pool did not drain")
	}
	return e.db.Close()
}

func engineFrom(c *cli.Context) *engine {
	return c.Context.Value(engineKey{}).(*engine)
}

// jobContext runs batch work as the system actor.
func jobContext(c *cli.Context) context.Context {
	return actor.WithActor(c.Context, actor.SystemActor())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes the report and fails the command when any item failed.
func printReport(report *service.BatchReport, err error) error {
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if report.Failed() > 0 {
		return cli.Exit(fmt.Sprintf("%s: %d of %d items failed", report.Job, report.Failed(), report.Processed), 2)
	}
	return nil
}

func runNormalize(c *cli.Context) error {
	return printReport(engineFrom(c).demand.NormalizeAll(jobContext(c), c.Int("window")))
}

func runCleanup(c *cli.Context) error {
	return printReport(engineFrom(c).cleanup.Run(jobContext(c)))
}

func runScan(c *cli.Context) error {
	return printReport(engineFrom(c).alerts.Scan(jobContext(c)))
}

func runOptimize(c *cli.Context) error {
	params := service.OptimizationParams{
		HoldingCost: c.Float64("holding-cost"),
		HoldingRate: c.Float64("holding-rate"),
		OrderCost:   c.Float64("order-cost"),
		WindowDays:  c.Int("window"),
	}
	if c.IsSet("annual-demand") {
		v := c.Float64("annual-demand")
		params.AnnualDemand = &v
	}
	if c.IsSet("lead-time") {
		v := c.Int("lead-time")
		params.LeadTimeDays = &v
	}
	if c.IsSet("service-level") {
		v := c.Float64("service-level")
		params.ServiceLevelFactor = &v
	}

	result, err := engineFrom(c).optimizer.Compute(jobContext(c), c.String("product"), params)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// migrator opens a dedicated connection; the migrator closes it.
func migrator(c *cli.Context) (*database.Migrator, error) {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	m, err := database.NewMigrator(db.DB.DB, migrations.FS, ".", log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func migrateUp(c *cli.Context) error {
	m, err := migrator(c)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func migrateDown(c *cli.Context) error {
	m, err := migrator(c)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Down()
}

func migrateVersion(c *cli.Context) error {
	m, err := migrator(c)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"version":    version,
		"dirty":      dirty,
		"checked_at": time.Now().UTC(),
	})
}
