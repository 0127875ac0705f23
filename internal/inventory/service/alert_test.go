package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

func setThresholds(t *testing.T, e *engine, productID string, update domain.ThresholdUpdate) {
	t.Helper()
	_, err := e.snapshots.UpdateThresholds(testContext(), productID, update)
	require.NoError(t, err)
}

func TestAlerts_LowStockOpensOnce(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 8)
	assert.Empty(t, e.openAlerts(t, "p-1"))

	setThresholds(t, e, "p-1", domain.ThresholdUpdate{Minimum: 10, ReorderPoint: 5})

	snap := e.snapshot(t, "p-1")
	assert.Equal(t, domain.StateLow, snap.State)
	assert.True(t, snap.BelowMinimum)

	open := e.openAlerts(t, "p-1")
	require.Contains(t, open, domain.AlertLowStock)
	low := open[domain.AlertLowStock]
	assert.Equal(t, domain.SeverityHigh, low.Severity)
	assert.Equal(t, domain.AlertPending, low.State)
	require.NotNil(t, low.CurrentValue)
	assert.Equal(t, 8.0, *low.CurrentValue)
	assert.Equal(t, 10.0, *low.ThresholdValue)
	assert.Contains(t, low.Message, "SKU-p-1")
	assert.NotContains(t, open, domain.AlertReorderPoint)
	assert.NotContains(t, open, domain.AlertCriticalStock)

	e.move(t, "p-1", domain.KindSaleOut, 1)
	created, err := e.alerts.Evaluate(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Empty(t, created)

	all, total, err := e.alerts.List(context.Background(), domain.AlertFilter{ProductID: "p-1", Type: domain.AlertLowStock})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, low.ID, all[0].ID)
}

func TestAlerts_StockRules(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 60)
	setThresholds(t, e, "p-1", domain.ThresholdUpdate{Minimum: 5, Maximum: ptr(int64(50)), ReorderPoint: 10})
	assert.Contains(t, e.openAlerts(t, "p-1"), domain.AlertOverstock)

	e.move(t, "p-1", domain.KindSaleOut, 52)
	open := e.openAlerts(t, "p-1")
	assert.Contains(t, open, domain.AlertReorderPoint)
	assert.NotContains(t, open, domain.AlertLowStock)

	e.move(t, "p-1", domain.KindSaleOut, 8)
	open = e.openAlerts(t, "p-1")
	assert.Contains(t, open, domain.AlertCriticalStock)
	assert.Contains(t, open, domain.AlertLowStock)
	assert.Equal(t, domain.SeverityCritical, open[domain.AlertCriticalStock].Severity)
}

func TestAlerts_HighCost(t *testing.T) {
	e := newEngine(t, withEngineConfig(func(c *config.EngineConfig) { c.HighCostThreshold = 100 }))
	e.addProduct("p-1")

	res, err := e.optimizer.Compute(testContext(), "p-1", classicParams())
	require.NoError(t, err)

	open := e.openAlerts(t, "p-1")
	require.Contains(t, open, domain.AlertHighCost)
	require.NotNil(t, open[domain.AlertHighCost].ReferenceID)
	assert.Equal(t, res.ID, *open[domain.AlertHighCost].ReferenceID)
}

func TestAlerts_Transitions(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 3)
	setThresholds(t, e, "p-1", domain.ThresholdUpdate{Minimum: 10})

	low := e.openAlerts(t, "p-1")[domain.AlertLowStock]
	require.NotNil(t, low)
	ctx := testContext()

	_, err := e.alerts.Transition(ctx, low.ID, service.TransitionAlertRequest{Action: domain.ActionResolve})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "pending alerts must be claimed first")

	_, err = e.alerts.Transition(ctx, low.ID, service.TransitionAlertRequest{Action: domain.ActionAutoResolve})
	assert.True(t, errors.Is(err, errors.ErrValidation), "auto resolve is reserved for the scanner")

	claimed, err := e.alerts.Transition(ctx, low.ID, service.TransitionAlertRequest{Action: domain.ActionClaim})
	require.NoError(t, err)
	assert.Equal(t, domain.AlertInProgress, claimed.State)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, "user-1", *claimed.AssignedTo)

	escalated, err := e.alerts.Transition(ctx, low.ID, service.TransitionAlertRequest{Action: domain.ActionEscalate})
	require.NoError(t, err)
	assert.Equal(t, domain.AlertEscalated, escalated.State)

	note := "supplier delivered early"
	resolved, err := e.alerts.Transition(ctx, low.ID, service.TransitionAlertRequest{Action: domain.ActionResolve, Note: &note})
	require.NoError(t, err)
	assert.Equal(t, domain.AlertResolved, resolved.State)
	assert.Equal(t, note, *resolved.ResolutionNote)
	assert.Equal(t, "user-1", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = e.alerts.Transition(ctx, low.ID, service.TransitionAlertRequest{Action: domain.ActionClaim})
	assert.True(t, errors.Is(err, errors.ErrAlertClosed))

	// a closed alert no longer blocks a new one for the same condition
	created, err := e.alerts.Evaluate(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, domain.AlertLowStock, created[0].Type)
	assert.NotEqual(t, low.ID, created[0].ID)

	ignored, err := e.alerts.Transition(ctx, created[0].ID, service.TransitionAlertRequest{Action: domain.ActionIgnore})
	require.NoError(t, err)
	assert.Equal(t, domain.AlertIgnored, ignored.State)

	_, err = e.alerts.Transition(ctx, "missing", service.TransitionAlertRequest{Action: domain.ActionClaim})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAlerts_OrderStateChangeEvaluatesProduct(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 30)

	res, err := e.optimizer.Compute(testContext(), "p-1", classicParams())
	require.NoError(t, err)
	po, err := e.orders.GenerateFromOptimization(testContext(), service.GenerateOrderRequest{OptimizationID: res.ID})
	require.NoError(t, err)

	// a threshold raised straight in the store skips the hook; the next
	// order state change must still pick it up
	snap, err := e.stores.Snapshots.Get(context.Background(), "p-1")
	require.NoError(t, err)
	snap.Minimum = 40
	require.NoError(t, e.stores.Snapshots.Save(context.Background(), snap))
	assert.NotContains(t, e.openAlerts(t, "p-1"), domain.AlertLowStock)

	_, err = e.orders.Confirm(testContext(), po.ID)
	require.NoError(t, err)
	assert.Contains(t, e.openAlerts(t, "p-1"), domain.AlertLowStock)
}

func TestAlerts_RecomputeEvaluatesProduct(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 8)

	snap, err := e.stores.Snapshots.Get(context.Background(), "p-1")
	require.NoError(t, err)
	snap.Minimum = 10
	require.NoError(t, e.stores.Snapshots.Save(context.Background(), snap))

	got, err := e.snapshots.Recompute(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, got.BelowMinimum)

	low := e.openAlerts(t, "p-1")[domain.AlertLowStock]
	require.NotNil(t, low)
	assert.Equal(t, domain.SeverityHigh, low.Severity)
}

func TestAlerts_ListRejectsUnknownType(t *testing.T) {
	e := newEngine(t)
	_, _, err := e.alerts.List(context.Background(), domain.AlertFilter{Type: "SOMETHING"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestAlerts_ScanResolvesClearedConditions(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 4)
	setThresholds(t, e, "p-1", domain.ThresholdUpdate{Minimum: 10})
	low := e.openAlerts(t, "p-1")[domain.AlertLowStock]
	require.NotNil(t, low)

	e.purchase(t, "p-1", 20)

	report, err := e.alerts.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scan", report.Job)
	assert.Zero(t, report.Failed())
	assert.GreaterOrEqual(t, report.RecordsRemoved, 1)

	got, err := e.alerts.Get(context.Background(), low.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertResolved, got.State)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, actor.SystemID, *got.ResolvedBy)
}

func TestAlerts_ScanLeavesClaimedAlerts(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 4)
	setThresholds(t, e, "p-1", domain.ThresholdUpdate{Minimum: 10})
	low := e.openAlerts(t, "p-1")[domain.AlertLowStock]
	require.NotNil(t, low)

	_, err := e.alerts.Transition(testContext(), low.ID, service.TransitionAlertRequest{Action: domain.ActionClaim})
	require.NoError(t, err)
	e.purchase(t, "p-1", 20)

	_, err = e.alerts.Scan(context.Background())
	require.NoError(t, err)

	got, err := e.alerts.Get(context.Background(), low.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertInProgress, got.State)
}

func TestAlerts_ScanExpiry(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.addProduct("p-2")

	supplier := testSupplierID
	receive := func(productID, lot string, expiresInDays int) {
		expiry := daysAgo(-expiresInDays)
		_, err := e.ledger.Append(testContext(), service.AppendMovementRequest{
			ProductID:  productID,
			Kind:       domain.KindPurchaseIn,
			Quantity:   12,
			SupplierID: &supplier,
			LotNumber:  &lot,
			ExpiryDate: &expiry,
		})
		require.NoError(t, err)
	}
	receive("p-1", "LOT-OLD", -2)
	receive("p-2", "LOT-SOON", 10)
	receive("p-2", "LOT-LATER", 120)

	_, err := e.alerts.Scan(context.Background())
	require.NoError(t, err)

	expired := e.openAlerts(t, "p-1")[domain.AlertExpired]
	require.NotNil(t, expired)
	assert.Equal(t, "LOT-OLD", *expired.ReferenceID)

	soon := e.openAlerts(t, "p-2")[domain.AlertExpirySoon]
	require.NotNil(t, soon)
	assert.Equal(t, "LOT-SOON", *soon.ReferenceID)
	assert.NotContains(t, e.openAlerts(t, "p-2"), domain.AlertExpired)
}

func TestAlerts_ScanExpiryFollowsSales(t *testing.T) {
	e := newEngine(t)
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		e.addProduct(id)
	}

	supplier := testSupplierID
	receive := func(productID, lot string, qty int64, expiresInDays int) {
		expiry := daysAgo(-expiresInDays)
		_, err := e.ledger.Append(testContext(), service.AppendMovementRequest{
			ProductID:  productID,
			Kind:       domain.KindPurchaseIn,
			Quantity:   qty,
			SupplierID: &supplier,
			LotNumber:  &lot,
			ExpiryDate: &expiry,
		})
		require.NoError(t, err)
	}

	// sold out
	receive("p-1", "LOT-A", 10, -2)
	e.move(t, "p-1", domain.KindSaleOut, 10)

	// the expired lot went out first
	receive("p-2", "LOT-A", 10, -2)
	receive("p-2", "LOT-B", 10, 120)
	e.move(t, "p-2", domain.KindSaleOut, 12)

	// part of the expired lot is left
	receive("p-3", "LOT-A", 10, -2)
	e.move(t, "p-3", domain.KindSaleOut, 4)

	_, err := e.alerts.Scan(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, e.openAlerts(t, "p-1"), domain.AlertExpired)
	assert.NotContains(t, e.openAlerts(t, "p-2"), domain.AlertExpired)

	expired := e.openAlerts(t, "p-3")[domain.AlertExpired]
	require.NotNil(t, expired)
	assert.Equal(t, 6.0, *expired.CurrentValue)
}

func TestAlerts_ScanShrinkage(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 100)
	e.move(t, "p-1", domain.KindSaleOut, 10)
	e.move(t, "p-1", domain.KindLoss, 5)

	_, err := e.alerts.Scan(context.Background())
	require.NoError(t, err)

	a := e.openAlerts(t, "p-1")[domain.AlertHighShrinkage]
	require.NotNil(t, a)
	assert.InDelta(t, 5.0/15.0, *a.CurrentValue, 1e-9)
}

func TestAlerts_ScanAnomalousDemand(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.addProduct("p-2")
	e.purchase(t, "p-1", 500)
	e.purchase(t, "p-2", 500)

	for day := 1; day <= 10; day++ {
		e.move(t, "p-1", domain.KindSaleOut, 2, daysAgo(day))
		e.move(t, "p-2", domain.KindSaleOut, 2, daysAgo(day))
	}
	e.move(t, "p-1", domain.KindSaleOut, 50)
	e.move(t, "p-2", domain.KindSaleOut, 2)

	_, err := e.alerts.Scan(context.Background())
	require.NoError(t, err)

	a := e.openAlerts(t, "p-1")[domain.AlertAnomalousDemand]
	require.NotNil(t, a)
	assert.Equal(t, 50.0, *a.CurrentValue)
	assert.NotContains(t, e.openAlerts(t, "p-2"), domain.AlertAnomalousDemand)
}

func TestAlerts_ScanSupplierDelay(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	res, err := e.optimizer.Compute(testContext(), "p-1", classicParams())
	require.NoError(t, err)
	due := daysAgo(3)
	po, err := e.orders.GenerateFromOptimization(testContext(), service.GenerateOrderRequest{
		OptimizationID:    res.ID,
		RequestedDelivery: &due,
	})
	require.NoError(t, err)

	// drafts are not overdue
	_, err = e.alerts.Scan(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, e.openAlerts(t, "p-1"), domain.AlertSupplierDelay)

	_, err = e.orders.Confirm(testContext(), po.ID)
	require.NoError(t, err)
	_, err = e.alerts.Scan(context.Background())
	require.NoError(t, err)

	a := e.openAlerts(t, "p-1")[domain.AlertSupplierDelay]
	require.NotNil(t, a)
	assert.Equal(t, po.ID, *a.ReferenceID)
}
