package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// OrderState is the lifecycle position of a purchase order.
type OrderState string

const (
	OrderDraft             OrderState = "DRAFT"
	OrderConfirmed         OrderState = "CONFIRMED"
	OrderPartiallyReceived OrderState = "PARTIALLY_RECEIVED"
	OrderReceived          OrderState = "RECEIVED"
	OrderCancelled         OrderState = "CANCELLED"
)

var orderTransitions = map[OrderState][]OrderState{
	OrderDraft:             {OrderConfirmed, OrderCancelled},
	OrderConfirmed:         {OrderPartiallyReceived, OrderReceived, OrderCancelled},
	OrderPartiallyReceived: {OrderPartiallyReceived, OrderReceived, OrderCancelled},
}

// CanTransitionTo reports whether the order may move from s to next.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the order is closed.
func (s OrderState) Terminal() bool {
	return s == OrderReceived || s == OrderCancelled
}

// Open reports whether goods are still expected for the order.
func (s OrderState) Open() bool {
	return s == OrderConfirmed || s == OrderPartiallyReceived
}

// OrderPolicy selects how a generated order is sized.
type OrderPolicy string

const (
	PolicyEOQ       OrderPolicy = "EOQ"
	PolicyShortfall OrderPolicy = "SHORTFALL"
)

// PurchaseOrder is a replenishment order to one supplier.
type PurchaseOrder struct {
	ID                string               `db:"id" json:"id"`
	OrderNumber       string               `db:"order_number" json:"order_number"`
	SupplierID        string               `db:"supplier_id" json:"supplier_id"`
	State             OrderState           `db:"state" json:"state"`
	OptimizationID    *string              `db:"optimization_id" json:"optimization_id,omitempty"`
	AlertID           *string              `db:"alert_id" json:"alert_id,omitempty"`
	Notes             *string              `db:"notes" json:"notes,omitempty"`
	RequestedDelivery *time.Time           `db:"requested_delivery" json:"requested_delivery,omitempty"`
	CreatedBy         string               `db:"created_by" json:"created_by"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at" json:"updated_at"`
	ConfirmedAt       *time.Time           `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ReceivedAt        *time.Time           `db:"received_at" json:"received_at,omitempty"`
	CancelledAt       *time.Time           `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Lines             []*PurchaseOrderLine `db:"-" json:"lines"`
}

// PurchaseOrderLine is one product on an order.
type PurchaseOrderLine struct {
	ID               string          `db:"id" json:"id"`
	OrderID          string          `db:"order_id" json:"order_id"`
	ProductID        string          `db:"product_id" json:"product_id"`
	Quantity         int64           `db:"quantity" json:"quantity"`
	ReceivedQuantity int64           `db:"received_quantity" json:"received_quantity"`
	UnitCost         decimal.Decimal `db:"unit_cost" json:"unit_cost"`
}

// Remaining is the quantity still to be received.
func (l *PurchaseOrderLine) Remaining() int64 {
	return l.Quantity - l.ReceivedQuantity
}

// Value is quantity times unit cost.
func (l *PurchaseOrderLine) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Quantity))
}

// Line returns the line with the given id, nil when absent.
func (po *PurchaseOrder) Line(id string) *PurchaseOrderLine {
	for _, l := range po.Lines {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// CheckLines verifies every line orders a positive quantity and has not
// received more than it ordered.
func (po *PurchaseOrder) CheckLines() error {
	for _, l := range po.Lines {
		if l.Quantity <= 0 {
			return errors.Validation(map[string]string{"quantity": fmt.Sprintf("line %s: must be greater than zero", l.ID)})
		}
		if l.ReceivedQuantity < 0 || l.ReceivedQuantity > l.Quantity {
			return errors.ExceedsRemaining(l.ID, l.ReceivedQuantity, l.Quantity)
		}
	}
	return nil
}

// FullyReceived reports whether every line has been received in full.
func (po *PurchaseOrder) FullyReceived() bool {
	for _, l := range po.Lines {
		if l.Remaining() > 0 {
			return false
		}
	}
	return true
}

// TotalValue sums the line values.
func (po *PurchaseOrder) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range po.Lines {
		total = total.Add(l.Value())
	}
	return total
}

// NewOrderNumber returns a human readable, unique order number.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("PO-%s-%s", now.UTC().Format("20060102"), suffix)
}

// OrderFilter narrows purchase order listings.
type OrderFilter struct {
	State      OrderState
	SupplierID string
	ProductID  string
	Pagination
}
