package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// brokenDemand fails every read for one product, or panics when panics is set.
type brokenDemand struct {
	service.DemandStore
	productID string
	panics    bool
}

func (b *brokenDemand) ListRange(ctx context.Context, productID string, from, to time.Time) ([]*domain.DemandRecord, error) {
	if productID == b.productID {
		if b.panics {
			panic("corrupt demand row")
		}
		return nil, fmt.Errorf("demand storage unavailable")
	}
	return b.DemandStore.ListRange(ctx, productID, from, to)
}

func demandByDay(records []*domain.DemandRecord) map[string]int64 {
	out := map[string]int64{}
	for _, r := range records {
		out[r.Date.Format("2006-01-02")] = r.Quantity
	}
	return out
}

func TestDemand_NormalizeIsIdempotent(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 100)

	twoDaysAgo, yesterday := daysAgo(2), daysAgo(1)
	e.move(t, "p-1", domain.KindSaleOut, 3, twoDaysAgo)
	e.move(t, "p-1", domain.KindSaleOut, 2, twoDaysAgo)
	e.move(t, "p-1", domain.KindSaleOut, 4, yesterday)
	e.move(t, "p-1", domain.KindLoss, 7, yesterday)

	ctx := context.Background()
	first, err := e.demand.Normalize(ctx, "p-1", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, first.RecordsWritten)
	assert.Equal(t, 0, first.RecordsRemoved)

	before, err := e.demand.History(ctx, "p-1", daysAgo(30), time.Now())
	require.NoError(t, err)

	second, err := e.demand.Normalize(ctx, "p-1", 30)
	require.NoError(t, err)
	assert.Equal(t, first.RecordsWritten, second.RecordsWritten)

	after, err := e.demand.History(ctx, "p-1", daysAgo(30), time.Now())
	require.NoError(t, err)
	assert.Equal(t, demandByDay(before), demandByDay(after))
	assert.Equal(t, map[string]int64{
		domain.Day(twoDaysAgo).Format("2006-01-02"): 5,
		domain.Day(yesterday).Format("2006-01-02"):  4,
	}, demandByDay(after), "losses are not demand")

	for _, r := range after {
		assert.Equal(t, domain.PeriodOf(r.Date), r.Period)
	}
}

func TestDemand_SaleEventsKeepHistoryCurrent(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 100)

	yesterday := daysAgo(1)
	sale := e.move(t, "p-1", domain.KindSaleOut, 6, yesterday)

	ctx := context.Background()
	history, err := e.demand.History(ctx, "p-1", daysAgo(3), time.Now())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(6), history[0].Quantity)

	_, err = e.ledger.Void(testContext(), sale.ID, service.VoidMovementRequest{Reason: "test sale"})
	require.NoError(t, err)

	history, err = e.demand.History(ctx, "p-1", daysAgo(3), time.Now())
	require.NoError(t, err)
	assert.Empty(t, history, "voiding the only sale of a day removes its record")
}

func TestDemand_NormalizeRemovesStaleRecords(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	ctx := context.Background()
	stale := domain.Day(daysAgo(4))
	require.NoError(t, e.stores.Demand.Upsert(ctx, &domain.DemandRecord{
		ProductID: "p-1",
		Date:      stale,
		Quantity:  9,
		Period:    domain.PeriodOf(stale),
	}))

	res, err := e.demand.Normalize(ctx, "p-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RecordsWritten)
	assert.Equal(t, 1, res.RecordsRemoved)

	history, err := e.demand.History(ctx, "p-1", daysAgo(10), time.Now())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDemand_Stats(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	e.purchase(t, "p-1", 100)
	e.move(t, "p-1", domain.KindSaleOut, 6, daysAgo(1))
	e.move(t, "p-1", domain.KindSaleOut, 4, daysAgo(2))

	stats, err := e.demand.Stats(context.Background(), "p-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Days)
	assert.Equal(t, int64(10), stats.Total)
	assert.InDelta(t, 1.0, stats.DailyMean, 1e-9)
	assert.InDelta(t, 365.0, stats.AnnualEstimate, 1e-9)
	assert.Equal(t, int64(0), stats.Latest)
}

func TestDemand_NormalizeAllIsolatesFailures(t *testing.T) {
	e := newEngine(t, withStores(func(s service.Stores) service.Stores {
		s.Demand = &brokenDemand{DemandStore: s.Demand, productID: "p-bad"}
		return s
	}))
	for _, id := range []string{"p-1", "p-2", "p-bad"} {
		e.addProduct(id)
	}
	e.purchase(t, "p-1", 10)
	e.purchase(t, "p-2", 10)

	// clear the records written by the sale events so the bulk run has work
	ctx := context.Background()
	e.move(t, "p-1", domain.KindSaleOut, 1, daysAgo(1))
	e.move(t, "p-2", domain.KindSaleOut, 2, daysAgo(1))
	for _, id := range []string{"p-1", "p-2"} {
		require.NoError(t, e.stores.Demand.Delete(ctx, id, daysAgo(1)))
	}

	report, err := e.demand.NormalizeAll(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "normalize", report.Job)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.RecordsWritten)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, "p-bad", report.Failures[0].ID)

	for _, id := range []string{"p-1", "p-2"} {
		history, err := e.demand.History(ctx, id, daysAgo(7), time.Now())
		require.NoError(t, err)
		assert.Len(t, history, 1, id)
	}
}

func TestDemand_NormalizeAllRecordsPanics(t *testing.T) {
	e := newEngine(t, withStores(func(s service.Stores) service.Stores {
		s.Demand = &brokenDemand{DemandStore: s.Demand, productID: "p-bad", panics: true}
		return s
	}))
	for _, id := range []string{"p-1", "p-2", "p-bad"} {
		e.addProduct(id)
	}
	e.purchase(t, "p-1", 10)
	e.move(t, "p-1", domain.KindSaleOut, 3, daysAgo(1))

	ctx := context.Background()
	report, err := e.demand.NormalizeAll(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, "p-bad", report.Failures[0].ID)
	assert.Contains(t, report.Failures[0].Error, "panic")

	// the store lock is released, later work still runs
	history, err := e.demand.History(ctx, "p-1", daysAgo(7), time.Now())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestDemand_HistoryValidation(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")

	_, err := e.demand.History(context.Background(), "p-1", time.Now(), daysAgo(1))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = e.demand.History(context.Background(), "missing", daysAgo(1), time.Now())
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = e.demand.Normalize(context.Background(), "missing", 7)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
