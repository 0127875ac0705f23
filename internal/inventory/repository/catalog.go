package repository

import (
	"context"
	"database/sql"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// CatalogRepository reads products and suppliers.
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetProduct gets a product by ID
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	query := `
		SELECT id, sku, name, primary_supplier_id, lead_time_days, unit_cost, is_active, created_at
		FROM products WHERE id = $1
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("product", id)
		}
		return nil, err
	}
	return &p, nil
}

// GetSupplier gets a supplier by ID
func (r *CatalogRepository) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var s domain.Supplier
	query := `SELECT id, name, email, is_active, created_at FROM suppliers WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("supplier", id)
		}
		return nil, err
	}
	return &s, nil
}

// ListProductIDs returns the ids of active products.
func (r *CatalogRepository) ListProductIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT id FROM products WHERE is_active ORDER BY id`
	if err := r.db.Conn(ctx).SelectContext(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}
