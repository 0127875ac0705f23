package service_test

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

func classicParams() service.OptimizationParams {
	return service.OptimizationParams{
		AnnualDemand: ptr(1200.0),
		OrderCost:    50,
		HoldingCost:  2,
		SafetyStock:  ptr(0.0),
	}
}

func TestOptimization_ClassicEOQ(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	res, err := e.optimizer.Compute(testContext(), "p-1", classicParams())
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt(60000), res.EOQ, 1e-9)
	assert.InDelta(t, 1200.0/365.0, res.DailyDemand, 1e-9)
	assert.InDelta(t, 1200.0/365.0*7, res.ReorderPoint, 1e-9)
	assert.Equal(t, 7, res.LeadTimeDays, "lead time falls back to the catalog")
	assert.True(t, res.SafetyStockSupplied)
	assert.Equal(t, "user-1", res.CreatedBy)
	assert.InDelta(t, 2*math.Sqrt(60000), res.TotalAnnualCost, 1e-6)

	snap := e.snapshot(t, "p-1")
	assert.Equal(t, int64(24), snap.EffectiveReorderPoint, "effective reorder point rounds up")
	assert.True(t, snap.NeedsReorder)

	latest, err := e.optimizer.Latest(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)
}

func TestOptimization_ReorderPointCoversLeadTimeDemand(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 500)

	for i, qty := range []int64{2, 9, 4, 0, 12, 3, 7, 1, 8, 5} {
		if qty == 0 {
			continue
		}
		e.move(t, "p-1", domain.KindSaleOut, qty, daysAgo(i+1))
	}

	res, err := e.optimizer.Compute(testContext(), "p-1", service.OptimizationParams{
		OrderCost:   25,
		HoldingCost: 1.5,
		WindowDays:  30,
	})
	require.NoError(t, err)

	stats, err := e.demand.Stats(context.Background(), "p-1", 30)
	require.NoError(t, err)

	assert.InDelta(t, stats.AnnualEstimate, res.AnnualDemand, 1e-9)
	assert.Greater(t, res.SafetyStock, 0.0)
	assert.InDelta(t, 1.65*stats.DailyStdDev*math.Sqrt(7), res.SafetyStock, 1e-9)
	assert.GreaterOrEqual(t, res.ReorderPoint, res.DailyDemand*float64(res.LeadTimeDays))
	assert.Equal(t, 30, res.WindowDays)
}

func TestOptimization_HoldingRate(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	params := classicParams()
	params.HoldingCost = 0
	params.HoldingRate = 0.2
	res, err := e.optimizer.Compute(testContext(), "p-1", params)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.HoldingCost, 1e-9)
	assert.True(t, res.UnitCost.Valid)
	assert.True(t, res.UnitCost.Decimal.Equal(decimal.NewFromInt(10)))
}

func TestOptimization_InvalidParameters(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	tests := []struct {
		name   string
		params service.OptimizationParams
	}{
		{"zero holding cost", service.OptimizationParams{AnnualDemand: ptr(100.0), OrderCost: 10}},
		{"negative order cost", service.OptimizationParams{AnnualDemand: ptr(100.0), OrderCost: -1, HoldingCost: 1}},
		{"negative demand", service.OptimizationParams{AnnualDemand: ptr(-5.0), OrderCost: 10, HoldingCost: 1}},
		{"negative lead time", service.OptimizationParams{AnnualDemand: ptr(100.0), OrderCost: 10, HoldingCost: 1, LeadTimeDays: ptr(-1)}},
		{"negative unit cost", service.OptimizationParams{AnnualDemand: ptr(100.0), OrderCost: 10, HoldingCost: 1, UnitCost: ptr(decimal.NewFromInt(-1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.optimizer.Compute(testContext(), "p-1", tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidParameters), "got %v", err)
		})
	}

	history, err := e.optimizer.History(context.Background(), "p-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history, "failed calculations are not stored")
}

func TestOptimization_LatestSupersedes(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	ctx := context.Background()
	_, err := e.optimizer.Latest(ctx, "p-1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	first, err := e.optimizer.Compute(testContext(), "p-1", classicParams())
	require.NoError(t, err)

	params := classicParams()
	params.AnnualDemand = ptr(3650.0)
	second, err := e.optimizer.Compute(testContext(), "p-1", params)
	require.NoError(t, err)

	latest, err := e.optimizer.Latest(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	history, err := e.optimizer.History(ctx, "p-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)

	got, err := e.optimizer.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, first.EOQ, got.EOQ, 1e-9)

	assert.Equal(t, int64(70), e.snapshot(t, "p-1").EffectiveReorderPoint)
}

func TestOptimization_ZeroDemand(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	res, err := e.optimizer.Compute(testContext(), "p-1", service.OptimizationParams{OrderCost: 50, HoldingCost: 2})
	require.NoError(t, err)
	assert.Zero(t, res.EOQ)
	assert.Zero(t, res.TotalAnnualCost)
	assert.Zero(t, res.ReorderPoint)
}
