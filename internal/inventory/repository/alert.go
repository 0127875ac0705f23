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

const alertColumns = `
	id, product_id, alert_type, severity, state, message, reference_id, current_value,
	threshold_value, assigned_to, resolution_note, resolved_by, resolved_at, created_at, updated_at
`

// AlertRepository handles inventory alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateIfAbsent inserts the alert unless an open one of the same type exists
// for the product. The partial unique index on open alerts does the check.
func (r *AlertRepository) CreateIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	query := `
		INSERT INTO inventory_alerts (` + alertColumns + `)
		VALUES (
			:id, :product_id, :alert_type, :severity, :state, :message, :reference_id, :current_value,
			:threshold_value, :assigned_to, :resolution_note, :resolved_by, :resolved_at, :created_at, :updated_at
		)
		ON CONFLICT (product_id, alert_type) WHERE state NOT IN ('RESOLVED', 'IGNORED') DO NOTHING
	`

	result, err := sqlx.NamedExecContext(ctx, r.db.Conn(ctx), query, a)
	if err != nil {
		return false, mapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	var a domain.Alert
	query := `SELECT ` + alertColumns + ` FROM inventory_alerts WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &a, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("alert", id)
		}
		return nil, err
	}
	return &a, nil
}

// UpdateState writes the lifecycle fields if the stored state is still from.
func (r *AlertRepository) UpdateState(ctx context.Context, a *domain.Alert, from domain.AlertState) error {
	query := `
		UPDATE inventory_alerts
		SET state = $3, assigned_to = $4, resolution_note = $5, resolved_by = $6,
			resolved_at = $7, current_value = $8, message = $9, updated_at = $10
		WHERE id = $1 AND state = $2
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query,
		a.ID, from, a.State, a.AssignedTo, a.ResolutionNote, a.ResolvedBy,
		a.ResolvedAt, a.CurrentValue, a.Message, a.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, a.ID); err != nil {
		return err
	}
	return errors.Conflict("alert was modified concurrently")
}

// List lists alerts with filtering, newest first
func (r *AlertRepository) List(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error) {
	var c conditions
	if f.ProductID != "" {
		c.add("product_id = $%d", f.ProductID)
	}
	if f.Type != "" {
		c.add("alert_type = $%d", f.Type)
	}
	if f.Severity != "" {
		c.add("severity = $%d", f.Severity)
	}
	if f.State != "" {
		c.add("state = $%d", f.State)
	}
	if f.OpenOnly {
		c.raw("state NOT IN ('RESOLVED', 'IGNORED')")
	}

	conn := r.db.Conn(ctx)

	var total int64
	countQuery := `SELECT COUNT(*) FROM inventory_alerts` + c.where()
	if err := conn.GetContext(ctx, &total, countQuery, c.args...); err != nil {
		return nil, 0, err
	}

	paging, args := c.page(f.Pagination)
	query := `SELECT ` + alertColumns + ` FROM inventory_alerts` + c.where() +
		` ORDER BY created_at DESC, id DESC` + paging

	alerts := []*domain.Alert{}
	if err := conn.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// ListClosedBefore returns ids of resolved or ignored alerts last touched
// before the cutoff.
func (r *AlertRepository) ListClosedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM inventory_alerts
		WHERE state IN ('RESOLVED', 'IGNORED') AND updated_at < $1
		ORDER BY id
	`

	ids := []string{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &ids, query, cutoff); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes an alert
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM inventory_alerts WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFoundID("alert", id)
	}
	return nil
}
