package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

const orderColumns = `
	id, order_number, supplier_id, state, optimization_id, alert_id, notes, requested_delivery,
	created_by, created_at, updated_at, confirmed_at, received_at, cancelled_at
`

const lineColumns = `id, order_id, product_id, quantity, received_quantity, unit_cost`

// PurchaseOrderRepository persists purchase orders and their lines.
type PurchaseOrderRepository struct {
	db *database.DB
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *database.DB) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db}
}

// Create inserts the order header and its lines in one transaction.
func (r *PurchaseOrderRepository) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	if err := po.CheckLines(); err != nil {
		return err
	}

	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)

		query := `
			INSERT INTO purchase_orders (` + orderColumns + `)
			VALUES (
				:id, :order_number, :supplier_id, :state, :optimization_id, :alert_id, :notes,
				:requested_delivery, :created_by, :created_at, :updated_at, :confirmed_at,
				:received_at, :cancelled_at
			)
		`
		if _, err := sqlx.NamedExecContext(ctx, conn, query, po); err != nil {
			return mapError(err)
		}

		lineQuery := `
			INSERT INTO purchase_order_lines (` + lineColumns + `)
			VALUES (:id, :order_id, :product_id, :quantity, :received_quantity, :unit_cost)
		`
		for _, l := range po.Lines {
			l.OrderID = po.ID
			if _, err := sqlx.NamedExecContext(ctx, conn, lineQuery, l); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetByID gets an order with its lines
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id)
}

// GetForUpdate gets an order and locks its row until the transaction ends.
func (r *PurchaseOrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *PurchaseOrderRepository) get(ctx context.Context, query, id string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	if err := r.db.Conn(ctx).GetContext(ctx, &po, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundID("purchase order", id)
		}
		return nil, err
	}

	if err := r.attachLines(ctx, []*domain.PurchaseOrder{&po}); err != nil {
		return nil, err
	}
	return &po, nil
}

// attachLines loads the lines of every order in one query.
func (r *PurchaseOrderRepository) attachLines(ctx context.Context, orders []*domain.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*domain.PurchaseOrder, len(orders))
	for i, po := range orders {
		ids[i] = po.ID
		byID[po.ID] = po
		po.Lines = []*domain.PurchaseOrderLine{}
	}

	query := `SELECT ` + lineColumns + ` FROM purchase_order_lines WHERE order_id = ANY($1) ORDER BY order_id, id`

	var lines []*domain.PurchaseOrderLine
	if err := r.db.Conn(ctx).SelectContext(ctx, &lines, query, pq.Array(ids)); err != nil {
		return err
	}
	for _, l := range lines {
		if po, ok := byID[l.OrderID]; ok {
			po.Lines = append(po.Lines, l)
		}
	}
	return nil
}

// Update writes the order state, timestamps and the received quantity of
// each line.
func (r *PurchaseOrderRepository) Update(ctx context.Context, po *domain.PurchaseOrder) error {
	if err := po.CheckLines(); err != nil {
		return err
	}

	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)

		query := `
			UPDATE purchase_orders
			SET state = $2, notes = $3, requested_delivery = $4, updated_at = $5,
				confirmed_at = $6, received_at = $7, cancelled_at = $8
			WHERE id = $1
		`
		result, err := conn.ExecContext(ctx, query,
			po.ID, po.State, po.Notes, po.RequestedDelivery, po.UpdatedAt,
			po.ConfirmedAt, po.ReceivedAt, po.CancelledAt,
		)
		if err != nil {
			return mapError(err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return errors.NotFoundID("purchase order", po.ID)
		}

		lineQuery := `UPDATE purchase_order_lines SET received_quantity = $3 WHERE id = $1 AND order_id = $2`
		for _, l := range po.Lines {
			if _, err := conn.ExecContext(ctx, lineQuery, l.ID, po.ID, l.ReceivedQuantity); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// List lists orders with filtering, newest first
func (r *PurchaseOrderRepository) List(ctx context.Context, f domain.OrderFilter) ([]*domain.PurchaseOrder, int64, error) {
	var c conditions
	if f.State != "" {
		c.add("state = $%d", f.State)
	}
	if f.SupplierID != "" {
		c.add("supplier_id = $%d", f.SupplierID)
	}
	if f.ProductID != "" {
		c.add("EXISTS (SELECT 1 FROM purchase_order_lines l WHERE l.order_id = purchase_orders.id AND l.product_id = $%d)", f.ProductID)
	}

	conn := r.db.Conn(ctx)

	var total int64
	countQuery := `SELECT COUNT(*) FROM purchase_orders` + c.where()
	if err := conn.GetContext(ctx, &total, countQuery, c.args...); err != nil {
		return nil, 0, err
	}

	paging, args := c.page(f.Pagination)
	query := `SELECT ` + orderColumns + ` FROM purchase_orders` + c.where() +
		` ORDER BY created_at DESC, id DESC` + paging

	orders := []*domain.PurchaseOrder{}
	if err := conn.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// InTransit sums the remaining quantities of open orders for a product.
func (r *PurchaseOrderRepository) InTransit(ctx context.Context, productID string) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(l.quantity - l.received_quantity), 0)
		FROM purchase_order_lines l
		JOIN purchase_orders o ON o.id = l.order_id
		WHERE l.product_id = $1 AND o.state = ANY($2)
	`
	open := pq.Array([]string{string(domain.OrderConfirmed), string(domain.OrderPartiallyReceived)})
	if err := r.db.Conn(ctx).GetContext(ctx, &total, query, productID, open); err != nil {
		return 0, err
	}
	return total, nil
}

// ListOverdue returns open orders whose requested delivery has passed.
func (r *PurchaseOrderRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*domain.PurchaseOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM purchase_orders
		WHERE state = ANY($1) AND requested_delivery IS NOT NULL AND requested_delivery < $2
		ORDER BY requested_delivery
	`
	open := pq.Array([]string{string(domain.OrderConfirmed), string(domain.OrderPartiallyReceived)})

	orders := []*domain.PurchaseOrder{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &orders, query, open, asOf); err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}
