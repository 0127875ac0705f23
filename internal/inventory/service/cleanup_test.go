package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

func TestCleanup_RemovesExpiredRecords(t *testing.T) {
	e := newEngine(t)
	e.addProduct("p-1")
	ctx := context.Background()
	now := time.Now().UTC()

	old := now.AddDate(0, 0, -120)
	closed := &domain.Alert{
		ID: uuid.New().String(), ProductID: "p-1", Type: domain.AlertOverstock, Severity: domain.SeverityLow,
		State: domain.AlertResolved, Message: "old", CreatedAt: old, UpdatedAt: old, ResolvedAt: &old,
	}
	recent := &domain.Alert{
		ID: uuid.New().String(), ProductID: "p-1", Type: domain.AlertObsolete, Severity: domain.SeverityLow,
		State: domain.AlertIgnored, Message: "recent", CreatedAt: now, UpdatedAt: now,
	}
	pending := &domain.Alert{
		ID: uuid.New().String(), ProductID: "p-1", Type: domain.AlertLowStock, Severity: domain.SeverityHigh,
		State: domain.AlertPending, Message: "open", CreatedAt: old, UpdatedAt: old,
	}
	for _, a := range []*domain.Alert{closed, recent, pending} {
		created, err := e.stores.Alerts.CreateIfAbsent(ctx, a)
		require.NoError(t, err)
		require.True(t, created)
	}

	ancient := now.AddDate(0, 0, -400)
	superseded := &domain.OptimizationResult{ID: uuid.New().String(), ProductID: "p-1", CreatedAt: ancient}
	latestButOld := &domain.OptimizationResult{ID: uuid.New().String(), ProductID: "p-1", CreatedAt: ancient.Add(time.Hour)}
	require.NoError(t, e.stores.Optimizations.Insert(ctx, superseded))
	require.NoError(t, e.stores.Optimizations.Insert(ctx, latestButOld))

	for _, day := range []time.Time{now.AddDate(0, 0, -800), now.AddDate(0, 0, -10)} {
		require.NoError(t, e.stores.Demand.Upsert(ctx, &domain.DemandRecord{
			ProductID: "p-1", Date: domain.Day(day), Quantity: 3, Period: domain.PeriodOf(day),
		}))
	}

	report, err := e.cleanup.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cleanup", report.Job)
	assert.Equal(t, 3, report.RecordsRemoved)
	assert.Zero(t, report.Failed())

	_, err = e.stores.Alerts.GetByID(ctx, closed.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = e.stores.Alerts.GetByID(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = e.stores.Alerts.GetByID(ctx, pending.ID)
	assert.NoError(t, err, "open alerts are never removed")

	_, err = e.stores.Optimizations.GetByID(ctx, superseded.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	latest, err := e.optimizer.Latest(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, latestButOld.ID, latest.ID, "the result in force is kept regardless of age")

	records, err := e.stores.Demand.ListRange(ctx, "p-1", now.AddDate(0, 0, -1000), now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Day(now.AddDate(0, 0, -10)), records[0].Date)

	again, err := e.cleanup.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.RecordsRemoved)
}
