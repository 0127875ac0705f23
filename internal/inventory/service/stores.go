package service

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
)

// TxRunner runs fn in one atomic unit of work. Stores called with the
// context passed to fn take part in it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Catalog is the read-only product and supplier lookup.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListProductIDs(ctx context.Context) ([]string, error)
}

// MovementStore persists ledger entries.
type MovementStore interface {
	Insert(ctx context.Context, m *domain.Movement) error
	GetByID(ctx context.Context, id string) (*domain.Movement, error)
	MarkVoided(ctx context.Context, m *domain.Movement) error
	List(ctx context.Context, f domain.MovementFilter) ([]*domain.Movement, int64, error)
	// Balance sums the non-voided movements of a product.
	Balance(ctx context.Context, productID string) (domain.LedgerBalance, error)
	LastMovementAt(ctx context.Context, productID string) (*time.Time, error)
	LastSaleAt(ctx context.Context, productID string) (*time.Time, error)
	// DailyTotals sums non-voided movements of the given kinds per UTC day in [from, to].
	DailyTotals(ctx context.Context, productID string, kinds []domain.MovementKind, from, to time.Time) ([]domain.DailyQuantity, error)
	// SumSince sums non-voided movements of the given kinds since a point in time.
	SumSince(ctx context.Context, productID string, kinds []domain.MovementKind, since time.Time) (int64, error)
	// LotBalances returns every lot with a positive lot quantity, ordered by
	// product and expiry date.
	LotBalances(ctx context.Context) ([]domain.LotBalance, error)
}

// SnapshotStore persists derived snapshots.
type SnapshotStore interface {
	// Lock serializes writers of one product until the surrounding unit of
	// work ends, creating the snapshot row on first use.
	Lock(ctx context.Context, productID string) error
	Get(ctx context.Context, productID string) (*domain.Snapshot, error)
	Save(ctx context.Context, s *domain.Snapshot) error
	List(ctx context.Context, f domain.SnapshotFilter) ([]*domain.Snapshot, int64, error)
}

// DemandStore persists normalized demand.
type DemandStore interface {
	Upsert(ctx context.Context, r *domain.DemandRecord) error
	Delete(ctx context.Context, productID string, day time.Time) error
	ListRange(ctx context.Context, productID string, from, to time.Time) ([]*domain.DemandRecord, error)
	DeleteBefore(ctx context.Context, productID string, cutoff time.Time) (int64, error)
}

// OptimizationStore persists optimization results.
type OptimizationStore interface {
	Insert(ctx context.Context, r *domain.OptimizationResult) error
	GetByID(ctx context.Context, id string) (*domain.OptimizationResult, error)
	// Latest returns nil without error when the product has no result.
	Latest(ctx context.Context, productID string) (*domain.OptimizationResult, error)
	ListByProduct(ctx context.Context, productID string, limit int) ([]*domain.OptimizationResult, error)
	// ListSupersededBefore returns ids of non-latest results created before cutoff.
	ListSupersededBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// AlertStore persists alerts.
type AlertStore interface {
	// CreateIfAbsent inserts a unless a non-terminal alert of the same
	// (product, type) exists. It reports whether a row was created.
	CreateIfAbsent(ctx context.Context, a *domain.Alert) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	// UpdateState writes the lifecycle fields of a if its stored state is still from.
	UpdateState(ctx context.Context, a *domain.Alert, from domain.AlertState) error
	List(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// PurchaseOrderStore persists purchase orders with their lines.
type PurchaseOrderStore interface {
	Create(ctx context.Context, po *domain.PurchaseOrder) error
	GetByID(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	// GetForUpdate loads the order and locks it until the unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	// Update writes state, timestamps and line received quantities.
	Update(ctx context.Context, po *domain.PurchaseOrder) error
	List(ctx context.Context, f domain.OrderFilter) ([]*domain.PurchaseOrder, int64, error)
	// InTransit sums the remaining quantities of open orders for a product.
	InTransit(ctx context.Context, productID string) (int64, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]*domain.PurchaseOrder, error)
}

// Stores bundles every persistence port of the engine.
type Stores struct {
	Tx            TxRunner
	Catalog       Catalog
	Movements     MovementStore
	Snapshots     SnapshotStore
	Demand        DemandStore
	Optimizations OptimizationStore
	Alerts        AlertStore
	Orders        PurchaseOrderStore
}
