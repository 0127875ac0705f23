package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type lineSpec struct {
	id        string
	productID string
	quantity  int64
}

// confirmedOrder stores a CONFIRMED order with the given lines.
func (e *engine) confirmedOrder(t *testing.T, lines ...lineSpec) *domain.PurchaseOrder {
	t.Helper()
	now := time.Now().UTC()
	po := &domain.PurchaseOrder{
		ID:          uuid.New().String(),
		OrderNumber: domain.NewOrderNumber(now),
		SupplierID:  testSupplierID,
		State:       domain.OrderConfirmed,
		CreatedBy:   "user-1",
		CreatedAt:   now,
		UpdatedAt:   now,
		ConfirmedAt: &now,
	}
	for _, l := range lines {
		po.Lines = append(po.Lines, &domain.PurchaseOrderLine{
			ID:        l.id,
			OrderID:   po.ID,
			ProductID: l.productID,
			Quantity:  l.quantity,
			UnitCost:  decimal.RequireFromString("4.25"),
		})
	}
	require.NoError(t, e.stores.Orders.Create(context.Background(), po))
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		if _, err := e.store.GetProduct(context.Background(), id); err == nil {
			_, err := e.snapshots.Recompute(context.Background(), id)
			require.NoError(t, err)
		}
	}
	return po
}

func (e *engine) ledgerCount(t *testing.T) int64 {
	t.Helper()
	_, total, err := e.ledger.List(context.Background(), domain.MovementFilter{IncludeVoided: true})
	require.NoError(t, err)
	return total
}

func TestPurchaseOrder_GenerateConfirmReceive(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	ctx := testContext()

	res, err := e.optimizer.Compute(ctx, "p-1", classicParams())
	require.NoError(t, err)

	po, err := e.orders.GenerateFromOptimization(ctx, service.GenerateOrderRequest{OptimizationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDraft, po.State)
	assert.Equal(t, testSupplierID, po.SupplierID)
	require.Len(t, po.Lines, 1)
	assert.Equal(t, int64(245), po.Lines[0].Quantity)
	assert.True(t, po.Lines[0].UnitCost.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, po.RequestedDelivery)
	assert.Equal(t, res.ID, *po.OptimizationID)
	assert.Equal(t, int64(0), e.snapshot(t, "p-1").InTransit, "drafts are not in transit")

	confirmed, err := e.orders.Confirm(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, confirmed.State)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, int64(245), e.snapshot(t, "p-1").InTransit)

	_, err = e.orders.Confirm(ctx, po.ID)
	assert.True(t, errors.Is(err, errors.ErrOrderConfirmed))

	received, err := e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{
		Lines: []service.ReceiveLine{{LineID: po.Lines[0].ID, Quantity: 245}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderReceived, received.Order.State)
	require.NotNil(t, received.Order.ReceivedAt)

	snap := e.snapshot(t, "p-1")
	assert.Equal(t, int64(245), snap.Available)
	assert.Equal(t, int64(0), snap.InTransit)

	_, err = e.orders.Cancel(ctx, po.ID)
	assert.True(t, errors.Is(err, errors.ErrOrderClosed))
}

func TestPurchaseOrder_ReceiveInTwoDeliveries(t *testing.T) {
	e := newEngine(t)
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		e.addProduct(id)
	}
	po := e.confirmedOrder(t,
		lineSpec{"l-1", "p-1", 10},
		lineSpec{"l-2", "p-2", 5},
		lineSpec{"l-3", "p-3", 8},
	)
	assert.Equal(t, int64(8), e.snapshot(t, "p-3").InTransit)
	ctx := testContext()

	lot := "LOT-42"
	first, err := e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{Lines: []service.ReceiveLine{
		{LineID: "l-1", Quantity: 10, LotNumber: &lot},
		{LineID: "l-2", Quantity: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartiallyReceived, first.Order.State)
	assert.Nil(t, first.Order.ReceivedAt)
	require.Len(t, first.Movements, 2)
	for _, m := range first.Movements {
		assert.Equal(t, domain.KindPurchaseIn, m.Kind)
		assert.Equal(t, "PURCHASE_ORDER", *m.ReferenceType)
		assert.Equal(t, po.ID, *m.ReferenceID)
		assert.Equal(t, testSupplierID, *m.SupplierID)
	}
	assert.Equal(t, "LOT-42", *first.Movements[0].LotNumber)

	assert.Equal(t, int64(10), e.snapshot(t, "p-1").Available)
	p2 := e.snapshot(t, "p-2")
	assert.Equal(t, int64(2), p2.Available)
	assert.Equal(t, int64(3), p2.InTransit)

	second, err := e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{Lines: []service.ReceiveLine{
		{LineID: "l-2", Quantity: 3},
		{LineID: "l-3", Quantity: 8},
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderReceived, second.Order.State)
	require.NotNil(t, second.Order.ReceivedAt)

	stored, err := e.orders.Get(context.Background(), po.ID)
	require.NoError(t, err)
	for _, l := range stored.Lines {
		assert.Equal(t, l.Quantity, l.ReceivedQuantity, l.ID)
	}
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		assert.Equal(t, int64(0), e.snapshot(t, id).InTransit, id)
	}
	assert.Equal(t, int64(8), e.snapshot(t, "p-3").Available)
	assert.Len(t, e.events(), 4)

	_, err = e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{Lines: []service.ReceiveLine{{LineID: "l-1", Quantity: 1}}})
	assert.True(t, errors.Is(err, errors.ErrOrderClosed))
}

func TestPurchaseOrder_ReceiveIsAllOrNothing(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.addProduct("p-2")
	po := e.confirmedOrder(t, lineSpec{"l-1", "p-1", 5}, lineSpec{"l-2", "p-2", 5})
	ctx := testContext()

	tests := []struct {
		name   string
		lines  []service.ReceiveLine
		target error
	}{
		{"over remaining", []service.ReceiveLine{{LineID: "l-1", Quantity: 6}}, errors.ErrExceedsRemaining},
		{"split over remaining", []service.ReceiveLine{{LineID: "l-1", Quantity: 3}, {LineID: "l-1", Quantity: 3}}, errors.ErrExceedsRemaining},
		{"unknown line", []service.ReceiveLine{{LineID: "l-2", Quantity: 2}, {LineID: "l-9", Quantity: 1}}, errors.ErrNotFound},
		{"zero quantity", []service.ReceiveLine{{LineID: "l-2", Quantity: 0}}, errors.ErrValidation},
		{"no lines", nil, errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{Lines: tt.lines})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	assert.Equal(t, int64(0), e.ledgerCount(t))
	stored, err := e.orders.Get(context.Background(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, stored.State)
	for _, l := range stored.Lines {
		assert.Zero(t, l.ReceivedQuantity)
	}
	assert.Equal(t, int64(5), e.snapshot(t, "p-1").InTransit)
}

func TestPurchaseOrder_ReceiveRequiresConfirmation(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	ctx := testContext()

	res, err := e.optimizer.Compute(ctx, "p-1", classicParams())
	require.NoError(t, err)
	po, err := e.orders.GenerateFromOptimization(ctx, service.GenerateOrderRequest{OptimizationID: res.ID})
	require.NoError(t, err)

	_, err = e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{Lines: []service.ReceiveLine{{LineID: po.Lines[0].ID, Quantity: 1}}})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	cancelled, err := e.orders.Cancel(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.State)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = e.orders.Cancel(ctx, po.ID)
	assert.True(t, errors.Is(err, errors.ErrOrderClosed))
	_, err = e.orders.Receive(ctx, po.ID, service.ReceiveOrderRequest{Lines: []service.ReceiveLine{{LineID: po.Lines[0].ID, Quantity: 1}}})
	assert.True(t, errors.Is(err, errors.ErrOrderClosed))
	_, err = e.orders.Confirm(ctx, po.ID)
	assert.True(t, errors.Is(err, errors.ErrOrderConfirmed))
}

func TestPurchaseOrder_CancelClearsInTransit(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	po := e.confirmedOrder(t, lineSpec{"l-1", "p-1", 12})

	_, err := e.orders.Receive(testContext(), po.ID, service.ReceiveOrderRequest{Lines: []service.ReceiveLine{{LineID: "l-1", Quantity: 4}}})
	require.NoError(t, err)
	assert.Equal(t, int64(8), e.snapshot(t, "p-1").InTransit)

	_, err = e.orders.Cancel(testContext(), po.ID)
	require.NoError(t, err)

	snap := e.snapshot(t, "p-1")
	assert.Equal(t, int64(0), snap.InTransit)
	assert.Equal(t, int64(4), snap.Available, "received goods stay in stock")
}

func TestPurchaseOrder_NoSupplier(t *testing.T) {
	e := newEngine(t)
	e.store.AddProduct(&domain.Product{ID: "p-orphan", SKU: "ORPHAN", Name: "Orphan", LeadTimeDays: 3, IsActive: true})

	res, err := e.optimizer.Compute(testContext(), "p-orphan", classicParams())
	require.NoError(t, err)

	_, err = e.orders.GenerateFromOptimization(testContext(), service.GenerateOrderRequest{OptimizationID: res.ID})
	assert.True(t, errors.Is(err, errors.ErrNoSupplier))

	orders, _, err := e.orders.List(context.Background(), domain.OrderFilter{ProductID: "p-orphan"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPurchaseOrder_ShortfallPolicy(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 10)
	ctx := testContext()

	res, err := e.optimizer.Compute(ctx, "p-1", classicParams())
	require.NoError(t, err)
	require.Equal(t, int64(24), res.ReorderPointUnits())

	po, err := e.orders.GenerateFromOptimization(ctx, service.GenerateOrderRequest{
		OptimizationID: res.ID,
		Policy:         domain.PolicyShortfall,
		ExtraQuantity:  6,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(24-10+6), po.Lines[0].Quantity)

	// once the order is in transit the shortfall is covered
	_, err = e.orders.Confirm(ctx, po.ID)
	require.NoError(t, err)
	_, err = e.orders.GenerateFromOptimization(ctx, service.GenerateOrderRequest{
		OptimizationID: res.ID,
		Policy:         domain.PolicyShortfall,
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = e.orders.GenerateFromOptimization(ctx, service.GenerateOrderRequest{OptimizationID: res.ID, Policy: "JUST_IN_TIME"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestPurchaseOrder_List(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.addProduct("p-2")
	e.confirmedOrder(t, lineSpec{"a-1", "p-1", 3})
	e.confirmedOrder(t, lineSpec{"b-1", "p-2", 3})

	orders, total, err := e.orders.List(context.Background(), domain.OrderFilter{ProductID: "p-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "p-2", orders[0].Lines[0].ProductID)

	_, total, err = e.orders.List(context.Background(), domain.OrderFilter{State: domain.OrderConfirmed, SupplierID: testSupplierID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
