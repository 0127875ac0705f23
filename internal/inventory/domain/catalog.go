package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the inventory engine needs. The catalog itself
// is owned elsewhere; this service only reads it.
type Product struct {
	ID                string          `db:"id" json:"id"`
	SKU               string          `db:"sku" json:"sku"`
	Name              string          `db:"name" json:"name"`
	PrimarySupplierID *string         `db:"primary_supplier_id" json:"primary_supplier_id,omitempty"`
	LeadTimeDays      int             `db:"lead_time_days" json:"lead_time_days"`
	UnitCost          decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// Supplier is a vendor that purchase orders are addressed to.
type Supplier struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
