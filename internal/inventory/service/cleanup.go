package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/workerpool"
)

// CleanupService removes auxiliary records that have outlived their
// retention. Ledger movements, snapshots and orders are never removed.
type CleanupService struct {
	stores                Stores
	pool                  *workerpool.Pool
	alertRetention        time.Duration
	optimizationRetention time.Duration
	demandRetentionDays   int
	logger                *logger.Logger
	now                   func() time.Time
}

// NewCleanupService creates the cleanup job.
func NewCleanupService(stores Stores, pool *workerpool.Pool, cfg config.SchedulerConfig, log *logger.Logger) *CleanupService {
	return &CleanupService{
		stores:                stores,
		pool:                  pool,
		alertRetention:        cfg.AlertRetention,
		optimizationRetention: cfg.OptimizationRetention,
		demandRetentionDays:   cfg.DemandRetentionDays,
		logger:                log.WithComponent("cleanup_service"),
		now:                   func() time.Time { return time.Now().UTC() },
	}
}

// Run deletes closed alerts, superseded optimization results and old demand
// records. Each record (or product, for demand) is its own unit of work, so
// an interrupted run leaves a consistent state.
func (s *CleanupService) Run(ctx context.Context) (*BatchReport, error) {
	now := s.now()
	collector := newBatchCollector("cleanup", now)

	if s.alertRetention > 0 {
		ids, err := s.stores.Alerts.ListClosedBefore(ctx, now.Add(-s.alertRetention))
		if err != nil {
			return nil, fmt.Errorf("list closed alerts: %w", err)
		}
		fanOut(ctx, s.pool, ids, collector, func(ctx context.Context, id string) (int, int, error) {
			if err := s.stores.Alerts.Delete(ctx, id); err != nil {
				s.logger.Error().Err(err).Str("alert_id", id).Msg("failed to delete alert")
				return 0, 0, err
			}
			return 0, 1, nil
		})
	}

	if s.optimizationRetention > 0 {
		ids, err := s.stores.Optimizations.ListSupersededBefore(ctx, now.Add(-s.optimizationRetention))
		if err != nil {
			return nil, fmt.Errorf("list superseded optimization results: %w", err)
		}
		fanOut(ctx, s.pool, ids, collector, func(ctx context.Context, id string) (int, int, error) {
			if err := s.stores.Optimizations.Delete(ctx, id); err != nil {
				s.logger.Error().Err(err).Str("result_id", id).Msg("failed to delete optimization result")
				return 0, 0, err
			}
			return 0, 1, nil
		})
	}

	if s.demandRetentionDays > 0 {
		ids, err := s.stores.Catalog.ListProductIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		cutoff := now.AddDate(0, 0, -s.demandRetentionDays)
		fanOut(ctx, s.pool, ids, collector, func(ctx context.Context, productID string) (int, int, error) {
			n, err := s.stores.Demand.DeleteBefore(ctx, productID, cutoff)
			if err != nil {
				s.logger.Error().Err(err).Str("product_id", productID).Msg("failed to delete demand records")
				return 0, 0, err
			}
			return 0, int(n), nil
		})
	}

	report := collector.finish(s.now())
	s.logger.Info().
		Int("processed", report.Processed).
		Int("removed", report.RecordsRemoved).
		Int("failed", report.Failed()).
		Dur("duration", report.Duration).
		Msg("cleanup finished")

	return report, nil
}
