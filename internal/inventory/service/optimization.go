package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

const defaultHistoryLimit = 50

// OptimizationParams are the caller-supplied inputs of a calculation. Unset
// optional fields fall back to the catalog, the demand history and the
// engine configuration.
type OptimizationParams struct {
	AnnualDemand       *float64         `json:"annual_demand,omitempty" validate:"omitempty,gte=0"`
	HoldingCost        float64          `json:"holding_cost" validate:"gte=0"`
	HoldingRate        float64          `json:"holding_rate" validate:"gte=0"`
	OrderCost          float64          `json:"order_cost" validate:"gte=0"`
	LeadTimeDays       *int             `json:"lead_time_days,omitempty" validate:"omitempty,gte=0"`
	UnitCost           *decimal.Decimal `json:"unit_cost,omitempty"`
	SafetyStock        *float64         `json:"safety_stock,omitempty" validate:"omitempty,gte=0"`
	ServiceLevelFactor *float64         `json:"service_level_factor,omitempty" validate:"omitempty,gte=0"`
	WindowDays         int              `json:"window_days,omitempty" validate:"gte=0"`
}

// OptimizationService computes and stores EOQ / reorder point results.
type OptimizationService struct {
	stores             Stores
	demand             *DemandService
	snapshots          *SnapshotService
	alerts             *AlertService
	publisher          *events.InventoryEventPublisher
	serviceLevelFactor float64
	defaultWindow      int
	logger             *logger.Logger
	now                func() time.Time
}

// NewOptimizationService creates the calculator service. publisher may be nil.
func NewOptimizationService(
	stores Stores,
	demand *DemandService,
	snapshots *SnapshotService,
	alerts *AlertService,
	publisher *events.InventoryEventPublisher,
	cfg config.EngineConfig,
	log *logger.Logger,
) *OptimizationService {
	return &OptimizationService{
		stores:             stores,
		demand:             demand,
		snapshots:          snapshots,
		alerts:             alerts,
		publisher:          publisher,
		serviceLevelFactor: cfg.ServiceLevelFactor,
		defaultWindow:      cfg.DemandWindowDays,
		logger:             log.WithComponent("optimization_service"),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// Compute resolves the inputs, calculates the replenishment parameters and
// stores them as a new result that supersedes the previous one. The
// product's snapshot is re-derived against the new reorder point and its
// alerts are evaluated.
func (s *OptimizationService) Compute(ctx context.Context, productID string, params OptimizationParams) (*domain.OptimizationResult, error) {
	product, err := s.stores.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	window := params.WindowDays
	if window <= 0 {
		window = s.defaultWindow
	}
	stats, err := s.demand.Stats(ctx, productID, window)
	if err != nil {
		return nil, err
	}

	in := domain.OptimizationInputs{
		AnnualDemand:       stats.AnnualEstimate,
		OrderCost:          params.OrderCost,
		HoldingCost:        params.HoldingCost,
		LeadTimeDays:       product.LeadTimeDays,
		SafetyStock:        params.SafetyStock,
		ServiceLevelFactor: s.serviceLevelFactor,
		DemandStdDev:       stats.DailyStdDev,
	}
	if params.AnnualDemand != nil {
		in.AnnualDemand = *params.AnnualDemand
	}
	if params.LeadTimeDays != nil {
		in.LeadTimeDays = *params.LeadTimeDays
	}
	if params.ServiceLevelFactor != nil {
		in.ServiceLevelFactor = *params.ServiceLevelFactor
	}
	unitCost := product.UnitCost
	if params.UnitCost != nil {
		unitCost = *params.UnitCost
	}
	if unitCost.IsNegative() {
		return nil, errors.InvalidParameters(map[string]string{"unit_cost": "must not be negative"})
	}
	if in.HoldingCost == 0 && params.HoldingRate > 0 {
		in.HoldingCost = unitCost.InexactFloat64() * params.HoldingRate
	}

	out, err := domain.Calculate(in)
	if err != nil {
		return nil, err
	}

	result := &domain.OptimizationResult{
		ID:                  uuid.New().String(),
		ProductID:           productID,
		AnnualDemand:        in.AnnualDemand,
		OrderCost:           in.OrderCost,
		HoldingCost:         in.HoldingCost,
		UnitCost:            decimal.NewNullDecimal(unitCost),
		LeadTimeDays:        in.LeadTimeDays,
		ServiceLevelFactor:  in.ServiceLevelFactor,
		DemandStdDev:        in.DemandStdDev,
		WindowDays:          window,
		SafetyStockSupplied: params.SafetyStock != nil,
		CreatedBy:           actor.IDFromContext(ctx),
		CreatedAt:           s.now(),
	}
	result.SetOutputs(out)

	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Optimizations.Insert(ctx, result); err != nil {
			return err
		}
		_, err := s.snapshots.recompute(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", productID).
		Str("result_id", result.ID).
		Float64("eoq", result.EOQ).
		Float64("reorder_point", result.ReorderPoint).
		Float64("safety_stock", result.SafetyStock).
		Msg("optimization computed")

	s.snapshots.Invalidate(ctx, productID)
	s.publisher.PublishOptimizationComputed(ctx, result)
	if s.alerts != nil {
		if _, err := s.alerts.Evaluate(ctx, productID); err != nil {
			s.logger.Error().Err(err).Str("product_id", productID).Msg("alert evaluation after optimization failed")
		}
	}

	return result, nil
}

// Latest returns the result currently in force for a product.
func (s *OptimizationService) Latest(ctx context.Context, productID string) (*domain.OptimizationResult, error) {
	r, err := s.stores.Optimizations.Latest(ctx, productID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.NotFoundID("optimization result", productID)
	}
	return r, nil
}

// Get returns one result.
func (s *OptimizationService) Get(ctx context.Context, id string) (*domain.OptimizationResult, error) {
	return s.stores.Optimizations.GetByID(ctx, id)
}

// History returns the most recent results of a product, newest first.
func (s *OptimizationService) History(ctx context.Context, productID string, limit int) ([]*domain.OptimizationResult, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.stores.Optimizations.ListByProduct(ctx, productID, limit)
}
