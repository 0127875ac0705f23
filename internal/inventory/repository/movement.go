package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

const movementColumns = `
	id, product_id, kind, quantity, unit_cost, supplier_id, reference_type, reference_id,
	lot_number, expiry_date, notes, balance_before, balance_after, occurred_at, recorded_by,
	created_at, voided, voided_at, voided_by, void_reason, void_balance
`

// Signed quantity expressions derived from the kind table, so the SQL
// aggregation always agrees with domain.LedgerBalance.Apply.
var (
	availableDelta = signedQuantity(domain.MovementKind.AvailableSign)
	reservedDelta  = signedQuantity(domain.MovementKind.ReservedSign)
)

func signedQuantity(sign func(domain.MovementKind) int64) string {
	var b strings.Builder
	b.WriteString("CASE kind")
	for _, k := range domain.Kinds() {
		switch sign(k) {
		case 1:
			fmt.Fprintf(&b, " WHEN '%s' THEN quantity", k)
		case -1:
			fmt.Fprintf(&b, " WHEN '%s' THEN -quantity", k)
		}
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

// MovementRepository persists the append-only stock ledger.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Insert appends a movement
func (r *MovementRepository) Insert(ctx context.Context, m *domain.Movement) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stock_movements (
			id, product_id, kind, quantity, unit_cost, supplier_id, reference_type, reference_id,
			lot_number, expiry_date, notes, balance_before, balance_after, occurred_at, recorded_by,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Conn(ctx).ExecContext(ctx, query,
		m.ID, m.ProductID, m.Kind, m.Quantity, m.UnitCost, m.SupplierID, m.ReferenceType,
		m.ReferenceID, m.LotNumber, m.ExpiryDate, m.Notes, m.BalanceBefore, m.BalanceAfter,
		m.OccurredAt, m.RecordedBy, m.CreatedAt,
	)
	return mapError(err)
}

// GetByID gets a movement by ID
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*domain.Movement, error) {
	var m domain.Movement
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("movement", id)
		}
		return nil, err
	}
	return &m, nil
}

// MarkVoided flags a movement as voided. Only the void columns change.
func (r *MovementRepository) MarkVoided(ctx context.Context, m *domain.Movement) error {
	query := `
		UPDATE stock_movements
		SET voided = TRUE, voided_at = $2, voided_by = $3, void_reason = $4, void_balance = $5
		WHERE id = $1 AND NOT voided
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, m.ID, m.VoidedAt, m.VoidedBy, m.VoidReason, m.VoidBalance)
	if err != nil {
		return mapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	// distinguish a missing movement from one voided earlier
	if _, err := r.GetByID(ctx, m.ID); err != nil {
		return err
	}
	return errors.AlreadyVoided(m.ID)
}

// List lists movements with filtering, newest first
func (r *MovementRepository) List(ctx context.Context, f domain.MovementFilter) ([]*domain.Movement, int64, error) {
	var c conditions
	if f.ProductID != "" {
		c.add("product_id = $%d", f.ProductID)
	}
	if f.Kind != "" {
		c.add("kind = $%d", f.Kind)
	}
	if f.From != nil {
		c.add("occurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		c.add("occurred_at <= $%d", *f.To)
	}
	if !f.IncludeVoided {
		c.raw("NOT voided")
	}

	conn := r.db.Conn(ctx)

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_movements` + c.where()
	if err := conn.GetContext(ctx, &total, countQuery, c.args...); err != nil {
		return nil, 0, err
	}

	paging, args := c.page(f.Pagination)
	query := `SELECT ` + movementColumns + ` FROM stock_movements` + c.where() +
		` ORDER BY occurred_at DESC, created_at DESC` + paging

	movements := []*domain.Movement{}
	if err := conn.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}

// Balance sums the non-voided movements of a product.
func (r *MovementRepository) Balance(ctx context.Context, productID string) (domain.LedgerBalance, error) {
	var b domain.LedgerBalance
	query := `
		SELECT
			COALESCE(SUM(` + availableDelta + `), 0) AS available,
			COALESCE(SUM(` + reservedDelta + `), 0) AS reserved
		FROM stock_movements
		WHERE product_id = $1 AND NOT voided
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &b, query, productID); err != nil {
		return domain.LedgerBalance{}, err
	}
	return b, nil
}

// LastMovementAt returns when the latest non-voided movement occurred.
func (r *MovementRepository) LastMovementAt(ctx context.Context, productID string) (*time.Time, error) {
	query := `SELECT MAX(occurred_at) FROM stock_movements WHERE product_id = $1 AND NOT voided`
	return r.maxTime(ctx, query, productID)
}

// LastSaleAt returns when the latest non-voided sale occurred.
func (r *MovementRepository) LastSaleAt(ctx context.Context, productID string) (*time.Time, error) {
	query := `SELECT MAX(occurred_at) FROM stock_movements WHERE product_id = $1 AND kind = $2 AND NOT voided`
	return r.maxTime(ctx, query, productID, domain.KindSaleOut)
}

func (r *MovementRepository) maxTime(ctx context.Context, query string, args ...interface{}) (*time.Time, error) {
	var t sql.NullTime
	if err := r.db.Conn(ctx).GetContext(ctx, &t, query, args...); err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	at := t.Time.UTC()
	return &at, nil
}

// DailyTotals sums non-voided movements of the given kinds per UTC day.
func (r *MovementRepository) DailyTotals(ctx context.Context, productID string, kinds []domain.MovementKind, from, to time.Time) ([]domain.DailyQuantity, error) {
	query := `
		SELECT (occurred_at AT TIME ZONE 'UTC')::date AS day, SUM(quantity) AS quantity
		FROM stock_movements
		WHERE product_id = $1
		AND kind = ANY($2)
		AND NOT voided
		AND (occurred_at AT TIME ZONE 'UTC')::date BETWEEN $3::date AND $4::date
		GROUP BY 1
		ORDER BY 1
	`

	var totals []domain.DailyQuantity
	if err := r.db.Conn(ctx).SelectContext(ctx, &totals, query, productID, kindArray(kinds), dateArg(from), dateArg(to)); err != nil {
		return nil, err
	}
	for i := range totals {
		totals[i].Day = domain.Day(totals[i].Day)
	}
	return totals, nil
}

// SumSince sums non-voided movements of the given kinds since a point in time.
func (r *MovementRepository) SumSince(ctx context.Context, productID string, kinds []domain.MovementKind, since time.Time) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM stock_movements
		WHERE product_id = $1 AND kind = ANY($2) AND NOT voided AND occurred_at >= $3
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &total, query, productID, kindArray(kinds), since); err != nil {
		return 0, err
	}
	return total, nil
}

// LotBalances returns lots with stock left by their own movements.
func (r *MovementRepository) LotBalances(ctx context.Context) ([]domain.LotBalance, error) {
	query := `
		SELECT product_id, lot_number, expiry_day AS expiry_date, SUM(delta) AS quantity
		FROM (
			SELECT product_id, lot_number,
				(expiry_date AT TIME ZONE 'UTC')::date AS expiry_day,
				` + availableDelta + ` AS delta
			FROM stock_movements
			WHERE lot_number IS NOT NULL AND expiry_date IS NOT NULL AND NOT voided
		) lots
		GROUP BY product_id, lot_number, expiry_day
		HAVING SUM(delta) > 0
		ORDER BY product_id, expiry_day, lot_number
	`

	var lots []domain.LotBalance
	if err := r.db.Conn(ctx).SelectContext(ctx, &lots, query); err != nil {
		return nil, err
	}
	for i := range lots {
		lots[i].ExpiryDate = domain.Day(lots[i].ExpiryDate)
	}
	return lots, nil
}
