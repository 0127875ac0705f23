// Package domain holds the inventory entities and the rule tables that
// govern them. Nothing in here touches storage or the network.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind classifies a ledger entry.
type MovementKind string

const (
	KindPurchaseIn     MovementKind = "PURCHASE_IN"
	KindSaleOut        MovementKind = "SALE_OUT"
	KindAdjustmentIn   MovementKind = "ADJUSTMENT_IN"
	KindAdjustmentOut  MovementKind = "ADJUSTMENT_OUT"
	KindTransferIn     MovementKind = "TRANSFER_IN"
	KindTransferOut    MovementKind = "TRANSFER_OUT"
	KindCustomerReturn MovementKind = "CUSTOMER_RETURN"
	KindSupplierReturn MovementKind = "SUPPLIER_RETURN"
	KindLoss           MovementKind = "LOSS"
	KindReserve        MovementKind = "RESERVE"
	KindRelease        MovementKind = "RELEASE"
)

// kindRule is the effect of one unit of a movement kind on the balances.
type kindRule struct {
	available        int64
	reserved         int64
	requiresSupplier bool
	sale             bool
}

var kindRules = map[MovementKind]kindRule{
	KindPurchaseIn:     {available: 1, requiresSupplier: true},
	KindSaleOut:        {available: -1, sale: true},
	KindAdjustmentIn:   {available: 1},
	KindAdjustmentOut:  {available: -1},
	KindTransferIn:     {available: 1},
	KindTransferOut:    {available: -1},
	KindCustomerReturn: {available: 1},
	KindSupplierReturn: {available: -1},
	KindLoss:           {available: -1},
	KindReserve:        {available: -1, reserved: 1},
	KindRelease:        {available: 1, reserved: -1},
}

// Kinds returns every known movement kind.
func Kinds() []MovementKind {
	return []MovementKind{
		KindPurchaseIn, KindSaleOut, KindAdjustmentIn, KindAdjustmentOut,
		KindTransferIn, KindTransferOut, KindCustomerReturn, KindSupplierReturn,
		KindLoss, KindReserve, KindRelease,
	}
}

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	_, ok := kindRules[k]
	return ok
}

// AvailableSign is +1 for kinds that add to available stock and -1 for kinds
// that remove from it.
func (k MovementKind) AvailableSign() int64 { return kindRules[k].available }

// ReservedSign is the effect on reserved stock.
func (k MovementKind) ReservedSign() int64 { return kindRules[k].reserved }

// RequiresSupplier reports whether the movement must reference a supplier.
func (k MovementKind) RequiresSupplier() bool { return kindRules[k].requiresSupplier }

// IsSale reports whether the movement is customer demand.
func (k MovementKind) IsSale() bool { return kindRules[k].sale }

// Movement is one immutable ledger entry. Only the void fields change after
// insert.
type Movement struct {
	ID            string              `db:"id" json:"id"`
	ProductID     string              `db:"product_id" json:"product_id"`
	Kind          MovementKind        `db:"kind" json:"kind"`
	Quantity      int64               `db:"quantity" json:"quantity"`
	UnitCost      decimal.NullDecimal `db:"unit_cost" json:"unit_cost"`
	SupplierID    *string             `db:"supplier_id" json:"supplier_id,omitempty"`
	ReferenceType *string             `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   *string             `db:"reference_id" json:"reference_id,omitempty"`
	LotNumber     *string             `db:"lot_number" json:"lot_number,omitempty"`
	ExpiryDate    *time.Time          `db:"expiry_date" json:"expiry_date,omitempty"`
	Notes         *string             `db:"notes" json:"notes,omitempty"`
	BalanceBefore int64               `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64               `db:"balance_after" json:"balance_after"`
	OccurredAt    time.Time           `db:"occurred_at" json:"occurred_at"`
	RecordedBy    string              `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	Voided        bool                `db:"voided" json:"voided"`
	VoidedAt      *time.Time          `db:"voided_at" json:"voided_at,omitempty"`
	VoidedBy      *string             `db:"voided_by" json:"voided_by,omitempty"`
	VoidReason    *string             `db:"void_reason" json:"void_reason,omitempty"`
	VoidBalance   *int64              `db:"void_balance" json:"void_balance,omitempty"`
}

// AvailableDelta is the signed change this movement applies to available stock.
func (m *Movement) AvailableDelta() int64 {
	return m.Kind.AvailableSign() * m.Quantity
}

// ReservedDelta is the signed change this movement applies to reserved stock.
func (m *Movement) ReservedDelta() int64 {
	return m.Kind.ReservedSign() * m.Quantity
}

// LedgerBalance is the authoritative position of a product derived from its
// non-voided movements.
type LedgerBalance struct {
	Available int64 `db:"available" json:"available"`
	Reserved  int64 `db:"reserved" json:"reserved"`
}

// Apply returns the balance after adding (sign 1) or reverting (sign -1) m.
func (b LedgerBalance) Apply(m *Movement, sign int64) LedgerBalance {
	return LedgerBalance{
		Available: b.Available + sign*m.AvailableDelta(),
		Reserved:  b.Reserved + sign*m.ReservedDelta(),
	}
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID     string
	Kind          MovementKind
	From          *time.Time
	To            *time.Time
	IncludeVoided bool
	Pagination
}

// DailyQuantity is a per-day sum of movement quantities.
type DailyQuantity struct {
	Day      time.Time `db:"day"`
	Quantity int64     `db:"quantity"`
}

// LotBalance is the remaining quantity of one lot.
type LotBalance struct {
	ProductID  string    `db:"product_id" json:"product_id"`
	LotNumber  string    `db:"lot_number" json:"lot_number"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiry_date"`
	Quantity   int64     `db:"quantity" json:"quantity"`
}

// AllocateLots caps the lots of one product at its available stock. Outflows
// that name no lot are taken from the earliest expiring lots first, so what
// remains sits in the latest ones. lots must be sorted by expiry date.
func AllocateLots(lots []LotBalance, available int64) []LotBalance {
	if available <= 0 {
		return nil
	}
	var total int64
	for _, l := range lots {
		total += l.Quantity
	}
	consumed := total - available

	out := make([]LotBalance, 0, len(lots))
	for _, l := range lots {
		if consumed > 0 {
			take := min(consumed, l.Quantity)
			l.Quantity -= take
			consumed -= take
		}
		if l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}
