package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository/memory"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

func movement(id, productID string, kind domain.MovementKind, qty int64, at time.Time) *domain.Movement {
	return &domain.Movement{ID: id, ProductID: productID, Kind: kind, Quantity: qty, OccurredAt: at, CreatedAt: at}
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	store := memory.New()
	st := store.Stores()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Movements.Insert(ctx, movement("m-1", "p-1", domain.KindAdjustmentIn, 5, now)))

	err := st.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := st.Movements.Insert(ctx, movement("m-2", "p-1", domain.KindAdjustmentIn, 7, now)); err != nil {
			return err
		}
		if err := st.Snapshots.Lock(ctx, "p-1"); err != nil {
			return err
		}
		// nested units of work join the outer one
		return st.Tx.RunInTx(ctx, func(ctx context.Context) error {
			return fmt.Errorf("boom")
		})
	})
	require.EqualError(t, err, "boom")

	b, err := st.Movements.Balance(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Available)

	_, err = st.Movements.GetByID(ctx, "m-2")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = st.Snapshots.Get(ctx, "p-1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := memory.New()
	st := store.Stores()
	ctx := context.Background()

	require.NoError(t, st.Movements.Insert(ctx, movement("m-1", "p-1", domain.KindAdjustmentIn, 5, time.Now())))
	m, err := st.Movements.GetByID(ctx, "m-1")
	require.NoError(t, err)
	m.Quantity = 500

	b, err := st.Movements.Balance(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Available)
}

func TestStore_MovementQueries(t *testing.T) {
	store := memory.New()
	st := store.Stores()
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	lot := "L-1"
	expiry := day.AddDate(0, 0, 5)
	in := movement("m-1", "p-1", domain.KindPurchaseIn, 20, day.AddDate(0, 0, -1))
	in.LotNumber, in.ExpiryDate = &lot, &expiry
	require.NoError(t, st.Movements.Insert(ctx, in))
	require.NoError(t, st.Movements.Insert(ctx, movement("m-2", "p-1", domain.KindSaleOut, 3, day)))
	require.NoError(t, st.Movements.Insert(ctx, movement("m-3", "p-1", domain.KindSaleOut, 2, day.Add(2*time.Hour))))
	require.NoError(t, st.Movements.Insert(ctx, movement("m-4", "p-1", domain.KindLoss, 1, day)))

	voided := movement("m-3", "p-1", domain.KindSaleOut, 2, day)
	require.NoError(t, st.Movements.MarkVoided(ctx, voided))
	assert.True(t, errors.Is(st.Movements.MarkVoided(ctx, voided), errors.ErrAlreadyVoided))

	totals, err := st.Movements.DailyTotals(ctx, "p-1", []domain.MovementKind{domain.KindSaleOut}, day.AddDate(0, 0, -3), day)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, int64(3), totals[0].Quantity)
	assert.Equal(t, domain.Day(day), totals[0].Day)

	lost, err := st.Movements.SumSince(ctx, "p-1", []domain.MovementKind{domain.KindLoss}, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), lost)

	lastSale, err := st.Movements.LastSaleAt(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, day, *lastSale, "voided sales are ignored")

	lots, err := st.Movements.LotBalances(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, int64(20), lots[0].Quantity)

	page, total, err := st.Movements.List(ctx, domain.MovementFilter{
		ProductID:     "p-1",
		IncludeVoided: true,
		Pagination:    domain.Pagination{Page: 1, PerPage: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.Equal(t, "m-3", page[0].ID, "newest first")
}

func TestStore_AlertDeduplication(t *testing.T) {
	store := memory.New()
	st := store.Stores()
	ctx := context.Background()
	now := time.Now().UTC()

	first := &domain.Alert{ID: "a-1", ProductID: "p-1", Type: domain.AlertLowStock, State: domain.AlertPending, CreatedAt: now, UpdatedAt: now}
	created, err := st.Alerts.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *first
	dup.ID = "a-2"
	created, err = st.Alerts.CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	resolved := *first
	resolved.State = domain.AlertResolved
	require.NoError(t, st.Alerts.UpdateState(ctx, &resolved, domain.AlertPending))
	assert.True(t, errors.Is(st.Alerts.UpdateState(ctx, &resolved, domain.AlertPending), errors.ErrConflict))

	created, err = st.Alerts.CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStore_OrdersInTransit(t *testing.T) {
	store := memory.New()
	st := store.Stores()
	ctx := context.Background()
	now := time.Now().UTC()
	due := now.AddDate(0, 0, -1)

	po := &domain.PurchaseOrder{
		ID: "po-1", OrderNumber: "PO-1", SupplierID: "s-1", State: domain.OrderConfirmed,
		RequestedDelivery: &due, CreatedAt: now, UpdatedAt: now,
		Lines: []*domain.PurchaseOrderLine{
			{ID: "l-1", OrderID: "po-1", ProductID: "p-1", Quantity: 10, ReceivedQuantity: 4},
			{ID: "l-2", OrderID: "po-1", ProductID: "p-2", Quantity: 3},
		},
	}
	require.NoError(t, st.Orders.Create(ctx, po))

	dup := *po
	dup.ID = "po-2"
	assert.True(t, errors.Is(st.Orders.Create(ctx, &dup), errors.ErrConflict))

	n, err := st.Orders.InTransit(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	overdue, err := st.Orders.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	loaded, err := st.Orders.GetForUpdate(ctx, "po-1")
	require.NoError(t, err)
	loaded.Lines[0].ReceivedQuantity = 11
	assert.True(t, errors.Is(st.Orders.Update(ctx, loaded), errors.ErrExceedsRemaining))

	loaded.Lines[0].ReceivedQuantity = 10
	loaded.State = domain.OrderCancelled
	require.NoError(t, st.Orders.Update(ctx, loaded))

	n, err = st.Orders.InTransit(ctx, "p-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
