package service

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/cache"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// RecomputeHook runs after a snapshot change made outside the ledger has
// committed. Ledger changes reach subscribers through MovementCommitted.
type RecomputeHook func(ctx context.Context, productID string) error

// SnapshotService derives per-product stock snapshots from the ledger.
type SnapshotService struct {
	stores            Stores
	cache             cache.SnapshotCache
	obsoleteAfterDays int
	hooks             []RecomputeHook
	logger            *logger.Logger
	now               func() time.Time
}

// NewSnapshotService creates the aggregator. A nil cache disables caching.
func NewSnapshotService(stores Stores, snapshotCache cache.SnapshotCache, cfg config.EngineConfig, log *logger.Logger) *SnapshotService {
	if snapshotCache == nil {
		snapshotCache = cache.NewNoopSnapshotCache()
	}
	return &SnapshotService{
		stores:            stores,
		cache:             snapshotCache,
		obsoleteAfterDays: cfg.ObsoleteAfterDays,
		logger:            log.WithComponent("snapshot_service"),
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// OnRecomputed registers h. Hooks are not safe to add once requests are served.
func (s *SnapshotService) OnRecomputed(h RecomputeHook) {
	s.hooks = append(s.hooks, h)
}

// Recompute re-derives the product's snapshot in its own transaction and
// runs the recompute hooks after commit.
func (s *SnapshotService) Recompute(ctx context.Context, productID string) (*domain.Snapshot, error) {
	snap, err := s.recompute(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, productID)
	return snap, nil
}

// changed drops cached snapshots and runs the hooks for committed changes.
// Hook failures are logged; the change itself has already committed.
func (s *SnapshotService) changed(ctx context.Context, productIDs ...string) {
	for _, id := range productIDs {
		s.Invalidate(ctx, id)
		for _, h := range s.hooks {
			if err := h(ctx, id); err != nil {
				s.logger.Error().Err(err).Str("product_id", id).Msg("snapshot recompute hook failed")
			}
		}
	}
}

// recompute re-derives the product's snapshot from the ledger and the open
// purchase orders. It joins the caller's transaction when there is one.
func (s *SnapshotService) recompute(ctx context.Context, productID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Snapshots.Lock(ctx, productID); err != nil {
			return err
		}
		current, err := s.stores.Snapshots.Get(ctx, productID)
		if err != nil {
			return err
		}
		if err := s.refresh(ctx, current); err != nil {
			return err
		}
		snap = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// refresh recomputes quantities, timestamps and derived fields of snap and
// saves it. The product must be locked.
func (s *SnapshotService) refresh(ctx context.Context, snap *domain.Snapshot) error {
	st := s.stores

	balance, err := st.Movements.Balance(ctx, snap.ProductID)
	if err != nil {
		return err
	}
	inTransit, err := st.Orders.InTransit(ctx, snap.ProductID)
	if err != nil {
		return err
	}
	lastMovement, err := st.Movements.LastMovementAt(ctx, snap.ProductID)
	if err != nil {
		return err
	}
	lastSale, err := st.Movements.LastSaleAt(ctx, snap.ProductID)
	if err != nil {
		return err
	}
	latest, err := st.Optimizations.Latest(ctx, snap.ProductID)
	if err != nil {
		return err
	}

	now := s.now()
	snap.Available = balance.Available
	snap.Reserved = balance.Reserved
	snap.InTransit = inTransit
	snap.LastMovementAt = lastMovement
	snap.LastSaleAt = lastSale
	snap.DaysSinceLastSale = domain.DaysSince(lastSale, now)
	snap.EffectiveReorderPoint = snap.ReorderPoint
	if latest != nil {
		snap.EffectiveReorderPoint = latest.ReorderPointUnits()
	}
	snap.UpdatedAt = now
	snap.Derive(s.obsoleteAfterDays)

	return st.Snapshots.Save(ctx, snap)
}

// UpdateThresholds replaces the operator configuration of a product and
// re-derives state and flags. Quantities are re-read, never edited.
func (s *SnapshotService) UpdateThresholds(ctx context.Context, productID string, update domain.ThresholdUpdate) (*domain.Snapshot, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.stores.Catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	var snap *domain.Snapshot
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Snapshots.Lock(ctx, productID); err != nil {
			return err
		}
		current, err := s.stores.Snapshots.Get(ctx, productID)
		if err != nil {
			return err
		}
		update.Apply(current)
		if err := s.refresh(ctx, current); err != nil {
			return err
		}
		snap = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", productID).
		Int64("minimum", update.Minimum).
		Int64("reorder_point", update.ReorderPoint).
		Bool("blocked", update.Blocked).
		Str("state", string(snap.State)).
		Msg("thresholds updated")
	s.changed(ctx, productID)

	return snap, nil
}

// Get returns the current snapshot, read through the cache. A product that
// has never moved gets an empty snapshot.
func (s *SnapshotService) Get(ctx context.Context, productID string) (*domain.Snapshot, error) {
	if cached, ok, err := s.cache.Get(ctx, productID); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("snapshot cache read failed")
	} else if ok {
		return cached, nil
	}

	snap, err := s.stores.Snapshots.Get(ctx, productID)
	if errors.Is(err, errors.ErrNotFound) {
		if _, err := s.stores.Catalog.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
		return domain.NewSnapshot(productID, s.now()), nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("snapshot cache write failed")
	}
	return snap, nil
}

// List returns snapshots matching the filter.
func (s *SnapshotService) List(ctx context.Context, filter domain.SnapshotFilter) ([]*domain.Snapshot, int64, error) {
	return s.stores.Snapshots.List(ctx, filter)
}

// Invalidate drops the cached snapshot of a product.
func (s *SnapshotService) Invalidate(ctx context.Context, productID string) {
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("snapshot cache invalidation failed")
	}
}

// HandleMovementCommitted invalidates the cached snapshot of the moved product.
func (s *SnapshotService) HandleMovementCommitted(ctx context.Context, evt messaging.MovementCommittedEvent) error {
	s.Invalidate(ctx, evt.ProductID)
	return nil
}
