// Package memory is an in-process implementation of the inventory stores.
// It backs the service in engine.storage=memory mode and the service tests.
//
// A unit of work holds one store-wide lock and restores the previous state
// on error, which gives the same per-product serialization and atomicity as
// the PostgreSQL repositories at the cost of concurrency.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type txKey struct{}

type demandKey struct {
	productID string
	day       int64
}

// state is everything a unit of work can change. Stored values are never
// mutated in place, so a shallow copy of the maps is a full checkpoint.
type state struct {
	movements     map[string]*domain.Movement
	snapshots     map[string]*domain.Snapshot
	demand        map[demandKey]*domain.DemandRecord
	optimizations map[string]*domain.OptimizationResult
	alerts        map[string]*domain.Alert
	orders        map[string]*domain.PurchaseOrder
	seq           map[string]int64
	next          int64
}

func newState() *state {
	return &state{
		movements:     map[string]*domain.Movement{},
		snapshots:     map[string]*domain.Snapshot{},
		demand:        map[demandKey]*domain.DemandRecord{},
		optimizations: map[string]*domain.OptimizationResult{},
		alerts:        map[string]*domain.Alert{},
		orders:        map[string]*domain.PurchaseOrder{},
		seq:           map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := &state{
		movements:     make(map[string]*domain.Movement, len(s.movements)),
		snapshots:     make(map[string]*domain.Snapshot, len(s.snapshots)),
		demand:        make(map[demandKey]*domain.DemandRecord, len(s.demand)),
		optimizations: make(map[string]*domain.OptimizationResult, len(s.optimizations)),
		alerts:        make(map[string]*domain.Alert, len(s.alerts)),
		orders:        make(map[string]*domain.PurchaseOrder, len(s.orders)),
		seq:           make(map[string]int64, len(s.seq)),
		next:          s.next,
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range s.demand {
		c.demand[k] = v
	}
	for k, v := range s.optimizations {
		c.optimizations[k] = v
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

// sequence returns a monotonically increasing insertion number.
func (s *state) sequence(id string) int64 {
	s.next++
	s.seq[id] = s.next
	return s.next
}

// Store holds all inventory data in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	catalogMu sync.RWMutex
	products  map[string]*domain.Product
	suppliers map[string]*domain.Supplier

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		state:     newState(),
		products:  map[string]*domain.Product{},
		suppliers: map[string]*domain.Supplier{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Stores returns the store wired into every service port.
func (s *Store) Stores() service.Stores {
	return service.Stores{
		Tx:            s,
		Catalog:       s,
		Movements:     &movementStore{s},
		Snapshots:     &snapshotStore{s},
		Demand:        &demandStore{s},
		Optimizations: &optimizationStore{s},
		Alerts:        &alertStore{s},
		Orders:        &orderStore{s},
	}
}

var (
	_ service.TxRunner           = (*Store)(nil)
	_ service.Catalog            = (*Store)(nil)
	_ service.MovementStore      = (*movementStore)(nil)
	_ service.SnapshotStore      = (*snapshotStore)(nil)
	_ service.DemandStore        = (*demandStore)(nil)
	_ service.OptimizationStore  = (*optimizationStore)(nil)
	_ service.AlertStore         = (*alertStore)(nil)
	_ service.PurchaseOrderStore = (*orderStore)(nil)
)

// RunInTx runs fn holding the store lock. Nested calls join the outer unit
// of work. If fn fails every change it made is discarded.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.state = checkpoint
		return err
	}
	return nil
}

// acquire takes the store lock unless ctx already holds it.
func (s *Store) acquire(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// AddProduct registers a catalog product.
func (s *Store) AddProduct(p *domain.Product) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	c := *p
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.products[p.ID] = &c
}

// AddSupplier registers a catalog supplier.
func (s *Store) AddSupplier(sup *domain.Supplier) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	c := *sup
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.suppliers[sup.ID] = &c
}

// GetProduct implements service.Catalog.
func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, errors.NotFoundID("product", id)
	}
	c := *p
	return &c, nil
}

// GetSupplier implements service.Catalog.
func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, errors.NotFoundID("supplier", id)
	}
	c := *sup
	return &c, nil
}

// ListProductIDs returns the ids of active products in id order.
func (s *Store) ListProductIDs(_ context.Context) ([]string, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	ids := make([]string, 0, len(s.products))
	for id, p := range s.products {
		if p.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
