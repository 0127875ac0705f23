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

const optimizationColumns = `
	id, product_id, annual_demand, order_cost, holding_cost, unit_cost, lead_time_days,
	service_level_factor, demand_std_dev, window_days, safety_stock_supplied, eoq,
	reorder_point, safety_stock, daily_demand, total_annual_cost, orders_per_year,
	days_between_orders, created_by, created_at
`

// OptimizationRepository persists EOQ/ROP results. Results are never updated;
// the newest per product is the one in force.
type OptimizationRepository struct {
	db *database.DB
}

// NewOptimizationRepository creates a new optimization repository
func NewOptimizationRepository(db *database.DB) *OptimizationRepository {
	return &OptimizationRepository{db: db}
}

// Insert stores a result
func (r *OptimizationRepository) Insert(ctx context.Context, res *domain.OptimizationResult) error {
	query := `
		INSERT INTO optimization_results (` + optimizationColumns + `)
		VALUES (
			:id, :product_id, :annual_demand, :order_cost, :holding_cost, :unit_cost, :lead_time_days,
			:service_level_factor, :demand_std_dev, :window_days, :safety_stock_supplied, :eoq,
			:reorder_point, :safety_stock, :daily_demand, :total_annual_cost, :orders_per_year,
			:days_between_orders, :created_by, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db.Conn(ctx), query, res)
	return mapError(err)
}

// GetByID gets a result by ID
func (r *OptimizationRepository) GetByID(ctx context.Context, id string) (*domain.OptimizationResult, error) {
	var res domain.OptimizationResult
	query := `SELECT ` + optimizationColumns + ` FROM optimization_results WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &res, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("optimization result", id)
		}
		return nil, err
	}
	return &res, nil
}

// Latest returns the newest result of a product, nil when there is none.
func (r *OptimizationRepository) Latest(ctx context.Context, productID string) (*domain.OptimizationResult, error) {
	var res domain.OptimizationResult
	query := `
		SELECT ` + optimizationColumns + `
		FROM optimization_results
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &res, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// ListByProduct returns the results of a product, newest first.
func (r *OptimizationRepository) ListByProduct(ctx context.Context, productID string, limit int) ([]*domain.OptimizationResult, error) {
	c := conditions{}
	c.add("product_id = $%d", productID)
	paging, args := c.page(domain.Pagination{Page: 1, PerPage: limit})

	query := `SELECT ` + optimizationColumns + ` FROM optimization_results` + c.where() +
		` ORDER BY created_at DESC, id DESC` + paging

	results := []*domain.OptimizationResult{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &results, query, args...); err != nil {
		return nil, err
	}
	return results, nil
}

// ListSupersededBefore returns the ids of results created before the cutoff
// that are no longer the newest of their product.
func (r *OptimizationRepository) ListSupersededBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM (
			SELECT id, created_at,
				ROW_NUMBER() OVER (PARTITION BY product_id ORDER BY created_at DESC, id DESC) AS rank
			FROM optimization_results
		) ranked
		WHERE rank > 1 AND created_at < $1
		ORDER BY id
	`

	ids := []string{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &ids, query, cutoff); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes a result
func (r *OptimizationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM optimization_results WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFoundID("optimization result", id)
	}
	return nil
}
