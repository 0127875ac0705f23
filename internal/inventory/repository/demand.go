package repository

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// DemandRepository persists normalized daily demand.
type DemandRepository struct {
	db *database.DB
}

// NewDemandRepository creates a new demand repository
func NewDemandRepository(db *database.DB) *DemandRepository {
	return &DemandRepository{db: db}
}

// Upsert writes the demand of one product-day, replacing any earlier value.
func (r *DemandRepository) Upsert(ctx context.Context, rec *domain.DemandRecord) error {
	query := `
		INSERT INTO demand_records (product_id, demand_date, quantity, period, updated_at)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (product_id, demand_date) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			period = EXCLUDED.period,
			updated_at = EXCLUDED.updated_at
	`

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.db.Conn(ctx).ExecContext(ctx, query,
		rec.ProductID, dateArg(rec.Date), rec.Quantity, rec.Period, updatedAt,
	)
	return mapError(err)
}

// Delete removes the demand record of one product-day.
func (r *DemandRepository) Delete(ctx context.Context, productID string, day time.Time) error {
	query := `DELETE FROM demand_records WHERE product_id = $1 AND demand_date = $2::date`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query, productID, dateArg(day))
	return err
}

// ListRange returns the records of a product between two days, inclusive.
func (r *DemandRepository) ListRange(ctx context.Context, productID string, from, to time.Time) ([]*domain.DemandRecord, error) {
	query := `
		SELECT product_id, demand_date, quantity, period, updated_at
		FROM demand_records
		WHERE product_id = $1 AND demand_date BETWEEN $2::date AND $3::date
		ORDER BY demand_date
	`

	records := []*domain.DemandRecord{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &records, query, productID, dateArg(from), dateArg(to)); err != nil {
		return nil, err
	}
	for _, rec := range records {
		rec.Date = domain.Day(rec.Date)
	}
	return records, nil
}

// DeleteBefore removes the records of a product older than the cutoff day.
func (r *DemandRepository) DeleteBefore(ctx context.Context, productID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM demand_records WHERE product_id = $1 AND demand_date < $2::date`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, productID, dateArg(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
