package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/workerpool"
)

var saleKinds = []domain.MovementKind{domain.KindSaleOut}

// NormalizeResult reports what one normalization changed.
type NormalizeResult struct {
	ProductID      string `json:"product_id"`
	RecordsWritten int    `json:"records_written"`
	RecordsRemoved int    `json:"records_removed"`
}

// DemandService turns sale movements into a daily demand series.
type DemandService struct {
	stores        Stores
	pool          *workerpool.Pool
	defaultWindow int
	logger        *logger.Logger
	now           func() time.Time
}

// NewDemandService creates the normalization pipeline. Bulk runs are
// executed on pool.
func NewDemandService(stores Stores, pool *workerpool.Pool, cfg config.EngineConfig, log *logger.Logger) *DemandService {
	return &DemandService{
		stores:        stores,
		pool:          pool,
		defaultWindow: cfg.DemandWindowDays,
		logger:        log.WithComponent("demand_service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *DemandService) window(days int) int {
	if days <= 0 {
		return s.defaultWindow
	}
	return days
}

// Normalize rewrites the demand records of the last windowDays days from the
// ledger. Days without sales lose their record. Re-running it yields the same
// records.
func (s *DemandService) Normalize(ctx context.Context, productID string, windowDays int) (*NormalizeResult, error) {
	if _, err := s.stores.Catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	from, to := domain.DemandWindow(s.now(), s.window(windowDays))
	result := &NormalizeResult{ProductID: productID}

	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		totals, err := s.stores.Movements.DailyTotals(ctx, productID, saleKinds, from, to)
		if err != nil {
			return err
		}
		existing, err := s.stores.Demand.ListRange(ctx, productID, from, to)
		if err != nil {
			return err
		}

		sold := make(map[time.Time]int64, len(totals))
		for _, t := range totals {
			sold[domain.Day(t.Day)] += t.Quantity
		}

		written, removed, err := s.apply(ctx, productID, sold, existing)
		if err != nil {
			return err
		}
		result.RecordsWritten = written
		result.RecordsRemoved = removed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("product_id", productID).
		Int("records_written", result.RecordsWritten).
		Int("records_removed", result.RecordsRemoved).
		Msg("demand normalized")

	return result, nil
}

// apply upserts every day with positive sales and deletes stale records.
func (s *DemandService) apply(ctx context.Context, productID string, sold map[time.Time]int64, existing []*domain.DemandRecord) (int, int, error) {
	now := s.now()
	written, removed := 0, 0

	for day, qty := range sold {
		if qty <= 0 {
			continue
		}
		rec := &domain.DemandRecord{
			ProductID: productID,
			Date:      day,
			Quantity:  qty,
			Period:    domain.PeriodOf(day),
			UpdatedAt: now,
		}
		if err := s.stores.Demand.Upsert(ctx, rec); err != nil {
			return 0, 0, err
		}
		written++
	}

	for _, rec := range existing {
		if sold[domain.Day(rec.Date)] > 0 {
			continue
		}
		if err := s.stores.Demand.Delete(ctx, productID, rec.Date); err != nil {
			return 0, 0, err
		}
		removed++
	}

	return written, removed, nil
}

// normalizeDay re-derives the record of a single day.
func (s *DemandService) normalizeDay(ctx context.Context, productID string, at time.Time) error {
	day := domain.Day(at)
	return s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		totals, err := s.stores.Movements.DailyTotals(ctx, productID, saleKinds, day, day)
		if err != nil {
			return err
		}
		existing, err := s.stores.Demand.ListRange(ctx, productID, day, day)
		if err != nil {
			return err
		}
		sold := map[time.Time]int64{}
		for _, t := range totals {
			sold[domain.Day(t.Day)] += t.Quantity
		}
		_, _, err = s.apply(ctx, productID, sold, existing)
		return err
	})
}

// HandleMovementCommitted refreshes the demand of the day a sale (or a voided
// sale) occurred. Other kinds are ignored.
func (s *DemandService) HandleMovementCommitted(ctx context.Context, evt messaging.MovementCommittedEvent) error {
	if !domain.MovementKind(evt.Kind).IsSale() {
		return nil
	}
	if err := s.normalizeDay(ctx, evt.ProductID, evt.OccurredAt); err != nil {
		return fmt.Errorf("normalize %s on %s: %w", evt.ProductID, domain.Day(evt.OccurredAt).Format("2006-01-02"), err)
	}
	return nil
}

// NormalizeAll normalizes every product on the worker pool. One product's
// failure is collected and logged; only failing to list products aborts.
func (s *DemandService) NormalizeAll(ctx context.Context, windowDays int) (*BatchReport, error) {
	ids, err := s.stores.Catalog.ListProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	window := s.window(windowDays)
	collector := newBatchCollector("normalize", s.now())

	fanOut(ctx, s.pool, ids, collector, func(ctx context.Context, productID string) (int, int, error) {
		res, err := s.Normalize(ctx, productID, window)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", productID).Msg("demand normalization failed")
			return 0, 0, err
		}
		return res.RecordsWritten, res.RecordsRemoved, nil
	})

	report := collector.finish(s.now())
	s.logger.Info().
		Int("window_days", window).
		Int("processed", report.Processed).
		Int("records_written", report.RecordsWritten).
		Int("records_removed", report.RecordsRemoved).
		Int("failed", report.Failed()).
		Dur("duration", report.Duration).
		Msg("bulk demand normalization finished")

	return report, nil
}

// History returns the stored demand records of a product in [from, to].
func (s *DemandService) History(ctx context.Context, productID string, from, to time.Time) ([]*domain.DemandRecord, error) {
	if to.Before(from) {
		return nil, errors.Validation(map[string]string{"to": "must not be before from"})
	}
	if _, err := s.stores.Catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.stores.Demand.ListRange(ctx, productID, domain.Day(from), domain.Day(to))
}

// Stats summarizes the demand of the last windowDays days.
func (s *DemandService) Stats(ctx context.Context, productID string, windowDays int) (domain.DemandStats, error) {
	days := s.window(windowDays)
	from, to := domain.DemandWindow(s.now(), days)
	records, err := s.stores.Demand.ListRange(ctx, productID, from, to)
	if err != nil {
		return domain.DemandStats{}, err
	}
	return domain.ComputeDemandStats(records, from, days), nil
}
