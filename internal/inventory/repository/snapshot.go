package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

const snapshotColumns = `
	product_id, available, reserved, in_transit, total, minimum, maximum, reorder_point,
	effective_reorder_point, location, blocked, state, needs_reorder, below_minimum,
	last_movement_at, last_sale_at, days_since_last_sale, updated_at
`

// SnapshotRepository persists the derived inventory snapshots.
type SnapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Lock creates the snapshot row on first use and holds a row lock on it until
// the surrounding transaction ends.
func (r *SnapshotRepository) Lock(ctx context.Context, productID string) error {
	conn := r.db.Conn(ctx)

	insert := `
		INSERT INTO inventory_snapshots (` + snapshotColumns + `)
		VALUES (
			:product_id, :available, :reserved, :in_transit, :total, :minimum, :maximum, :reorder_point,
			:effective_reorder_point, :location, :blocked, :state, :needs_reorder, :below_minimum,
			:last_movement_at, :last_sale_at, :days_since_last_sale, :updated_at
		)
		ON CONFLICT (product_id) DO NOTHING
	`
	if _, err := sqlx.NamedExecContext(ctx, conn, insert, domain.NewSnapshot(productID, time.Now().UTC())); err != nil {
		return mapError(err)
	}

	var locked string
	query := `SELECT product_id FROM inventory_snapshots WHERE product_id = $1 FOR UPDATE`
	return conn.GetContext(ctx, &locked, query, productID)
}

// Get gets the snapshot of a product
func (r *SnapshotRepository) Get(ctx context.Context, productID string) (*domain.Snapshot, error) {
	var s domain.Snapshot
	query := `SELECT ` + snapshotColumns + ` FROM inventory_snapshots WHERE product_id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &s, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("snapshot", productID)
		}
		return nil, err
	}
	return &s, nil
}

// Save writes every column of the snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, s *domain.Snapshot) error {
	if s.Reserved < 0 || s.InTransit < 0 {
		return errors.InvalidMovement("snapshot quantities must not be negative")
	}

	query := `
		INSERT INTO inventory_snapshots (` + snapshotColumns + `)
		VALUES (
			:product_id, :available, :reserved, :in_transit, :total, :minimum, :maximum, :reorder_point,
			:effective_reorder_point, :location, :blocked, :state, :needs_reorder, :below_minimum,
			:last_movement_at, :last_sale_at, :days_since_last_sale, :updated_at
		)
		ON CONFLICT (product_id) DO UPDATE SET
			available = EXCLUDED.available,
			reserved = EXCLUDED.reserved,
			in_transit = EXCLUDED.in_transit,
			total = EXCLUDED.total,
			minimum = EXCLUDED.minimum,
			maximum = EXCLUDED.maximum,
			reorder_point = EXCLUDED.reorder_point,
			effective_reorder_point = EXCLUDED.effective_reorder_point,
			location = EXCLUDED.location,
			blocked = EXCLUDED.blocked,
			state = EXCLUDED.state,
			needs_reorder = EXCLUDED.needs_reorder,
			below_minimum = EXCLUDED.below_minimum,
			last_movement_at = EXCLUDED.last_movement_at,
			last_sale_at = EXCLUDED.last_sale_at,
			days_since_last_sale = EXCLUDED.days_since_last_sale,
			updated_at = EXCLUDED.updated_at
	`
	_, err := sqlx.NamedExecContext(ctx, r.db.Conn(ctx), query, s)
	return mapError(err)
}

// List lists snapshots with filtering, ordered by product
func (r *SnapshotRepository) List(ctx context.Context, f domain.SnapshotFilter) ([]*domain.Snapshot, int64, error) {
	var c conditions
	if f.State != "" {
		c.add("state = $%d", f.State)
	}
	if f.NeedsReorder != nil {
		c.add("needs_reorder = $%d", *f.NeedsReorder)
	}

	conn := r.db.Conn(ctx)

	var total int64
	countQuery := `SELECT COUNT(*) FROM inventory_snapshots` + c.where()
	if err := conn.GetContext(ctx, &total, countQuery, c.args...); err != nil {
		return nil, 0, err
	}

	paging, args := c.page(f.Pagination)
	query := `SELECT ` + snapshotColumns + ` FROM inventory_snapshots` + c.where() + ` ORDER BY product_id` + paging

	snapshots := []*domain.Snapshot{}
	if err := conn.SelectContext(ctx, &snapshots, query, args...); err != nil {
		return nil, 0, err
	}

	return snapshots, total, nil
}
