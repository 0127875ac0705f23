package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository/memory"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/workerpool"
)

const testSupplierID = "sup-1"

// engine wires every service against the in-memory store the same way the
// inventory service does in local event mode.
type engine struct {
	store     *memory.Store
	stores    service.Stores
	cfg       config.EngineConfig
	bus       *events.LocalBus
	pool      *workerpool.Pool
	snapshots *service.SnapshotService
	ledger    *service.LedgerService
	demand    *service.DemandService
	alerts    *service.AlertService
	optimizer *service.OptimizationService
	orders    *service.PurchaseOrderService
	cleanup   *service.CleanupService

	mu       sync.Mutex
	recorded []messaging.MovementCommittedEvent
}

type engineOption func(*engine)

func withEngineConfig(fn func(*config.EngineConfig)) engineOption {
	return func(e *engine) { fn(&e.cfg) }
}

func withStores(fn func(service.Stores) service.Stores) engineOption {
	return func(e *engine) { e.stores = fn(e.stores) }
}

func defaultEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Storage:            config.StorageMemory,
		ServiceLevelFactor: 1.65,
		DemandWindowDays:   90,
		ObsoleteAfterDays:  30,
		ExpiryWarningDays:  30,
		AnomalySigma:       3,
		ShrinkageRatio:     0.05,
		AutoResolveAlerts:  true,
	}
}

func newEngine(t *testing.T, opts ...engineOption) *engine {
	t.Helper()

	log := logger.Nop()
	store := memory.New()
	e := &engine{
		store:  store,
		stores: store.Stores(),
		cfg:    defaultEngineConfig(),
		bus:    events.NewLocalBus(log, events.WithRetry(3, 0)),
		pool:   workerpool.New(4, 64, log),
	}
	for _, opt := range opts {
		opt(e)
	}
	t.Cleanup(func() {
		_ = e.pool.Shutdown(context.Background())
	})

	e.snapshots = service.NewSnapshotService(e.stores, nil, e.cfg, log)
	e.ledger = service.NewLedgerService(e.stores, e.snapshots, e.bus, e.cfg, log)
	e.demand = service.NewDemandService(e.stores, e.pool, e.cfg, log)
	e.alerts = service.NewAlertService(e.stores, e.demand, e.snapshots, nil, e.cfg, log)
	e.optimizer = service.NewOptimizationService(e.stores, e.demand, e.snapshots, e.alerts, nil, e.cfg, log)
	e.orders = service.NewPurchaseOrderService(e.stores, e.ledger, e.snapshots, e.bus, nil, log)
	e.cleanup = service.NewCleanupService(e.stores, e.pool, config.SchedulerConfig{
		AlertRetention:        90 * 24 * time.Hour,
		OptimizationRetention: 180 * 24 * time.Hour,
		DemandRetentionDays:   730,
	}, log)

	e.snapshots.OnRecomputed(e.alerts.HandleSnapshotRecomputed)

	e.bus.Subscribe("snapshot_cache", e.snapshots.HandleMovementCommitted)
	e.bus.Subscribe("demand", e.demand.HandleMovementCommitted)
	e.bus.Subscribe("alerts", e.alerts.HandleMovementCommitted)
	e.bus.Subscribe("recorder", func(_ context.Context, evt messaging.MovementCommittedEvent) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.recorded = append(e.recorded, evt)
		return nil
	})

	store.AddSupplier(&domain.Supplier{ID: testSupplierID, Name: "Acme Wholesale", IsActive: true})
	return e
}

func (e *engine) events() []messaging.MovementCommittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]messaging.MovementCommittedEvent(nil), e.recorded...)
}

// addProduct registers an active product supplied by the test supplier.
func (e *engine) addProduct(id string) *domain.Product {
	supplier := testSupplierID
	p := &domain.Product{
		ID:                id,
		SKU:               "SKU-" + id,
		Name:              "Product " + id,
		PrimarySupplierID: &supplier,
		LeadTimeDays:      7,
		UnitCost:          decimal.NewFromInt(10),
		IsActive:          true,
	}
	e.store.AddProduct(p)
	return p
}

func testContext() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{ID: "user-1", Name: "Test User", Email: "test@stockflow.local"})
}

func (e *engine) purchase(t *testing.T, productID string, qty int64) *domain.Movement {
	t.Helper()
	supplier := testSupplierID
	m, err := e.ledger.Append(testContext(), service.AppendMovementRequest{
		ProductID:  productID,
		Kind:       domain.KindPurchaseIn,
		Quantity:   qty,
		SupplierID: &supplier,
	})
	require.NoError(t, err)
	return m
}

func (e *engine) move(t *testing.T, productID string, kind domain.MovementKind, qty int64, at ...time.Time) *domain.Movement {
	t.Helper()
	req := service.AppendMovementRequest{ProductID: productID, Kind: kind, Quantity: qty}
	if len(at) > 0 {
		req.OccurredAt = &at[0]
	}
	m, err := e.ledger.Append(testContext(), req)
	require.NoError(t, err)
	return m
}

func (e *engine) snapshot(t *testing.T, productID string) *domain.Snapshot {
	t.Helper()
	snap, err := e.snapshots.Get(context.Background(), productID)
	require.NoError(t, err)
	return snap
}

func (e *engine) openAlerts(t *testing.T, productID string) map[domain.AlertType]*domain.Alert {
	t.Helper()
	alerts, _, err := e.alerts.List(context.Background(), domain.AlertFilter{ProductID: productID, OpenOnly: true})
	require.NoError(t, err)
	out := make(map[domain.AlertType]*domain.Alert, len(alerts))
	for _, a := range alerts {
		out[a.Type] = a
	}
	return out
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

func ptr[T any](v T) *T { return &v }
