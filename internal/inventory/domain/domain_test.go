package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64       { return &v }
func intPtr(v int) *int             { return &v }
func float64Ptr(v float64) *float64 { return &v }

func TestDeriveState(t *testing.T) {
	tests := []struct {
		name string
		in   domain.StateInputs
		want domain.StockState
	}{
		{"zero stock is critical", domain.StateInputs{Available: 0, Minimum: 10}, domain.StateCritical},
		{"zero stock with no minimum is still critical", domain.StateInputs{Available: 0}, domain.StateCritical},
		{"below minimum is low", domain.StateInputs{Available: 8, Minimum: 10}, domain.StateLow},
		{"at minimum is normal", domain.StateInputs{Available: 10, Minimum: 10}, domain.StateNormal},
		{"at maximum is excess", domain.StateInputs{Available: 100, Minimum: 10, Maximum: int64Ptr(100)}, domain.StateExcess},
		{"low wins over excess", domain.StateInputs{Available: 5, Minimum: 10, Maximum: int64Ptr(5)}, domain.StateLow},
		{
			"stale sales are obsolete",
			domain.StateInputs{Available: 50, DaysSinceLastSale: intPtr(31), ObsoleteAfterDays: 30},
			domain.StateObsolete,
		},
		{
			"exactly at the obsolete threshold is normal",
			domain.StateInputs{Available: 50, DaysSinceLastSale: intPtr(30), ObsoleteAfterDays: 30},
			domain.StateNormal,
		},
		{
			"excess wins over obsolete",
			domain.StateInputs{Available: 50, Maximum: int64Ptr(40), DaysSinceLastSale: intPtr(90), ObsoleteAfterDays: 30},
			domain.StateExcess,
		},
		{"never sold is not obsolete", domain.StateInputs{Available: 50, ObsoleteAfterDays: 30}, domain.StateNormal},
		{"blocked wins over everything", domain.StateInputs{Available: 0, Blocked: true}, domain.StateBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.DeriveState(tt.in))
		})
	}
}

func TestSnapshot_Derive(t *testing.T) {
	s := &domain.Snapshot{
		Available:             8,
		Reserved:              2,
		InTransit:             40,
		Minimum:               10,
		EffectiveReorderPoint: 8,
	}
	s.Derive(30)

	assert.Equal(t, int64(50), s.Total)
	assert.True(t, s.NeedsReorder, "available equal to the reorder point needs reorder")
	assert.True(t, s.BelowMinimum)
	assert.Equal(t, domain.StateLow, s.State)

	empty := domain.NewSnapshot("p-1", time.Now())
	assert.Equal(t, domain.StateCritical, empty.State)
	assert.True(t, empty.NeedsReorder)
}

func TestThresholdUpdate_Validate(t *testing.T) {
	assert.NoError(t, domain.ThresholdUpdate{Minimum: 5, Maximum: int64Ptr(5)}.Validate())

	err := domain.ThresholdUpdate{Minimum: 10, Maximum: int64Ptr(5)}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = domain.ThresholdUpdate{Minimum: -1}.Validate()
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestMovementKind_Effects(t *testing.T) {
	for _, kind := range domain.Kinds() {
		assert.True(t, kind.Valid(), kind)
		assert.NotZero(t, kind.AvailableSign(), kind)
	}

	assert.False(t, domain.MovementKind("TELEPORT").Valid())
	assert.True(t, domain.KindPurchaseIn.RequiresSupplier())
	assert.True(t, domain.KindSaleOut.IsSale())
	assert.False(t, domain.KindLoss.IsSale())

	reserve := &domain.Movement{Kind: domain.KindReserve, Quantity: 4}
	b := domain.LedgerBalance{Available: 10}.Apply(reserve, 1)
	assert.Equal(t, domain.LedgerBalance{Available: 6, Reserved: 4}, b)
	assert.Equal(t, domain.LedgerBalance{Available: 10}, b.Apply(reserve, -1))
}

func TestAllocateLots(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lots := []domain.LotBalance{
		{ProductID: "p-1", LotNumber: "A", ExpiryDate: day, Quantity: 10},
		{ProductID: "p-1", LotNumber: "B", ExpiryDate: day.AddDate(0, 1, 0), Quantity: 10},
	}

	tests := []struct {
		name      string
		available int64
		want      map[string]int64
	}{
		{"untouched", 20, map[string]int64{"A": 10, "B": 10}},
		{"earliest lot sold first", 14, map[string]int64{"A": 4, "B": 10}},
		{"earliest lot gone", 10, map[string]int64{"B": 10}},
		{"unlotted stock on top", 35, map[string]int64{"A": 10, "B": 10}},
		{"sold out", 0, map[string]int64{}},
		{"backordered", -3, map[string]int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]int64{}
			for _, l := range domain.AllocateLots(lots, tt.available) {
				got[l.LotNumber] = l.Quantity
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, int64(10), lots[0].Quantity, "input is not modified")
}

func TestAlertState_Next(t *testing.T) {
	tests := []struct {
		from   domain.AlertState
		action domain.AlertAction
		want   domain.AlertState
		ok     bool
	}{
		{domain.AlertPending, domain.ActionClaim, domain.AlertInProgress, true},
		{domain.AlertPending, domain.ActionIgnore, domain.AlertIgnored, true},
		{domain.AlertPending, domain.ActionResolve, "", false},
		{domain.AlertPending, domain.ActionAutoResolve, domain.AlertResolved, true},
		{domain.AlertInProgress, domain.ActionAutoResolve, "", false},
		{domain.AlertEscalated, domain.ActionAutoResolve, "", false},
		{domain.AlertInProgress, domain.ActionResolve, domain.AlertResolved, true},
		{domain.AlertInProgress, domain.ActionEscalate, domain.AlertEscalated, true},
		{domain.AlertInProgress, domain.ActionIgnore, domain.AlertIgnored, true},
		{domain.AlertEscalated, domain.ActionResolve, domain.AlertResolved, true},
		{domain.AlertEscalated, domain.ActionIgnore, "", false},
		{domain.AlertResolved, domain.ActionClaim, "", false},
		{domain.AlertIgnored, domain.ActionClaim, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, ok := tt.from.Next(tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, domain.AlertResolved.Terminal())
	assert.True(t, domain.AlertIgnored.Terminal())
	assert.False(t, domain.AlertEscalated.Terminal())

	assert.True(t, domain.ActionAutoResolve.SystemOnly())
	assert.False(t, domain.ActionResolve.SystemOnly())
}

func TestAlertType_Severity(t *testing.T) {
	assert.Equal(t, domain.SeverityCritical, domain.AlertCriticalStock.Severity())
	assert.Equal(t, domain.SeverityHigh, domain.AlertLowStock.Severity())
	assert.Equal(t, domain.SeverityMedium, domain.AlertReorderPoint.Severity())
	assert.Equal(t, domain.SeverityLow, domain.AlertOverstock.Severity())
	assert.Equal(t, domain.SeverityLow, domain.AlertObsolete.Severity())
}

func TestOrderState_Transitions(t *testing.T) {
	assert.True(t, domain.OrderDraft.CanTransitionTo(domain.OrderConfirmed))
	assert.False(t, domain.OrderDraft.CanTransitionTo(domain.OrderReceived))
	assert.True(t, domain.OrderConfirmed.CanTransitionTo(domain.OrderPartiallyReceived))
	assert.True(t, domain.OrderPartiallyReceived.CanTransitionTo(domain.OrderReceived))
	assert.False(t, domain.OrderReceived.CanTransitionTo(domain.OrderCancelled))
	assert.False(t, domain.OrderCancelled.CanTransitionTo(domain.OrderConfirmed))
	assert.True(t, domain.OrderReceived.Terminal())
	assert.True(t, domain.OrderConfirmed.Open())
	assert.False(t, domain.OrderDraft.Open())
}

func TestCalculate_ReferenceExample(t *testing.T) {
	out, err := domain.Calculate(domain.OptimizationInputs{
		AnnualDemand: 1200,
		OrderCost:    50,
		HoldingCost:  2,
		LeadTimeDays: 7,
		SafetyStock:  float64Ptr(10),
	})
	require.NoError(t, err)

	assert.InDelta(t, 244.9, out.EOQ, 0.05)
	assert.InDelta(t, 4.9, out.OrdersPerYear, 0.01)
	assert.InDelta(t, 74.5, out.DaysBetweenOrders, 0.05)
	assert.InDelta(t, 1200.0/365.0, out.DailyDemand, 1e-9)
	assert.InDelta(t, 1200.0/365.0*7+10, out.ReorderPoint, 1e-9)
	assert.InDelta(t, (1200/out.EOQ)*50+(out.EOQ/2)*2, out.TotalAnnualCost, 1e-9)
}

func TestCalculate_SafetyStockFromServiceLevel(t *testing.T) {
	out, err := domain.Calculate(domain.OptimizationInputs{
		AnnualDemand:       365,
		OrderCost:          10,
		HoldingCost:        1,
		LeadTimeDays:       4,
		ServiceLevelFactor: 1.65,
		DemandStdDev:       2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.65*2*2, out.SafetyStock, 1e-9)
	assert.InDelta(t, 4+6.6, out.ReorderPoint, 1e-9)
}

func TestCalculate_Properties(t *testing.T) {
	base := domain.OptimizationInputs{AnnualDemand: 1000, OrderCost: 40, HoldingCost: 3, LeadTimeDays: 5, SafetyStock: float64Ptr(0)}

	prev, err := domain.Calculate(base)
	require.NoError(t, err)
	for _, d := range []float64{2000, 4000, 8000} {
		in := base
		in.AnnualDemand = d
		out, err := domain.Calculate(in)
		require.NoError(t, err)
		assert.Greater(t, out.EOQ, prev.EOQ, "EOQ grows with demand")
		assert.GreaterOrEqual(t, out.ReorderPoint, out.DailyDemand*5)
		prev = out
	}

	prev, _ = domain.Calculate(base)
	for _, h := range []float64{6, 12, 24} {
		in := base
		in.HoldingCost = h
		out, err := domain.Calculate(in)
		require.NoError(t, err)
		assert.Less(t, out.EOQ, prev.EOQ, "EOQ shrinks as holding cost grows")
		prev = out
	}
}

func TestCalculate_ZeroDemand(t *testing.T) {
	out, err := domain.Calculate(domain.OptimizationInputs{AnnualDemand: 0, OrderCost: 50, HoldingCost: 2})
	require.NoError(t, err)

	assert.Zero(t, out.EOQ)
	assert.Zero(t, out.OrdersPerYear)
	assert.Zero(t, out.DaysBetweenOrders)
	assert.False(t, math.IsNaN(out.TotalAnnualCost))
	assert.False(t, math.IsInf(out.DaysBetweenOrders, 0))
}

func TestCalculate_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		in    domain.OptimizationInputs
		field string
	}{
		{"zero holding cost", domain.OptimizationInputs{AnnualDemand: 10, OrderCost: 1, HoldingCost: 0}, "holding_cost"},
		{"negative holding cost", domain.OptimizationInputs{AnnualDemand: 10, OrderCost: 1, HoldingCost: -1}, "holding_cost"},
		{"negative order cost", domain.OptimizationInputs{AnnualDemand: 10, OrderCost: -1, HoldingCost: 1}, "order_cost"},
		{"negative demand", domain.OptimizationInputs{AnnualDemand: -1, OrderCost: 1, HoldingCost: 1}, "annual_demand"},
		{"negative safety stock", domain.OptimizationInputs{AnnualDemand: 1, OrderCost: 1, HoldingCost: 1, SafetyStock: float64Ptr(-2)}, "safety_stock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.Calculate(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidParameters))

			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}

func TestComputeDemandStats(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []*domain.DemandRecord{
		{Date: from, Quantity: 4},
		{Date: from.AddDate(0, 0, 1), Quantity: 4},
		{Date: from.AddDate(0, 0, 3), Quantity: 8},
		{Date: from.AddDate(0, 0, 10), Quantity: 100}, // outside the window
	}

	stats := domain.ComputeDemandStats(records, from, 4)

	assert.Equal(t, 4, stats.Days)
	assert.Equal(t, int64(16), stats.Total)
	assert.InDelta(t, 4.0, stats.DailyMean, 1e-9)
	// series 4,4,0,8 -> variance (0+0+16+16)/4 = 8
	assert.InDelta(t, math.Sqrt(8), stats.DailyStdDev, 1e-9)
	assert.InDelta(t, 4*365.0, stats.AnnualEstimate, 1e-9)
	assert.Equal(t, int64(8), stats.Latest)
}

func TestDayAndPeriod(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2026, 4, 1, 3, 0, 0, 0, loc) // 2026-03-31 18:00 UTC

	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), domain.Day(ts))
	assert.Equal(t, "2026-03", domain.PeriodOf(ts))

	from, to := domain.DemandWindow(time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), 7)
	assert.Equal(t, time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), to)
}

func TestPurchaseOrder_Helpers(t *testing.T) {
	po := &domain.PurchaseOrder{Lines: []*domain.PurchaseOrderLine{
		{ID: "a", Quantity: 10, ReceivedQuantity: 10},
		{ID: "b", Quantity: 5, ReceivedQuantity: 2},
	}}

	assert.False(t, po.FullyReceived())
	assert.Equal(t, int64(3), po.Line("b").Remaining())
	assert.Nil(t, po.Line("missing"))

	po.Lines[1].ReceivedQuantity = 5
	assert.True(t, po.FullyReceived())
	assert.Regexp(t, `^PO-\d{8}-[0-9A-F]{8}$`, domain.NewOrderNumber(time.Now()))
}

func TestPagination_Window(t *testing.T) {
	start, end := domain.Pagination{Page: 2, PerPage: 3}.Window(7)
	assert.Equal(t, 3, start)
	assert.Equal(t, 6, end)

	start, end = domain.Pagination{}.Window(7)
	assert.Equal(t, 0, start)
	assert.Equal(t, 7, end)

	start, end = domain.Pagination{Page: 5, PerPage: 3}.Window(7)
	assert.Equal(t, 7, start)
	assert.Equal(t, 7, end)
}
