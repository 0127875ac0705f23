package domain

import (
	"time"

	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// StockState classifies a product's stock level.
type StockState string

const (
	StateNormal   StockState = "NORMAL"
	StateLow      StockState = "LOW"
	StateCritical StockState = "CRITICAL"
	StateExcess   StockState = "EXCESS"
	StateObsolete StockState = "OBSOLETE"
	StateBlocked  StockState = "BLOCKED"
)

// Snapshot is the derived, current position of one product. Quantities and
// flags are only ever written by the aggregator; the threshold fields,
// location and blocked flag are operator configuration.
type Snapshot struct {
	ProductID             string     `db:"product_id" json:"product_id"`
	Available             int64      `db:"available" json:"available"`
	Reserved              int64      `db:"reserved" json:"reserved"`
	InTransit             int64      `db:"in_transit" json:"in_transit"`
	Total                 int64      `db:"total" json:"total"`
	Minimum               int64      `db:"minimum" json:"minimum"`
	Maximum               *int64     `db:"maximum" json:"maximum,omitempty"`
	ReorderPoint          int64      `db:"reorder_point" json:"reorder_point"`
	EffectiveReorderPoint int64      `db:"effective_reorder_point" json:"effective_reorder_point"`
	Location              *string    `db:"location" json:"location,omitempty"`
	Blocked               bool       `db:"blocked" json:"blocked"`
	State                 StockState `db:"state" json:"state"`
	NeedsReorder          bool       `db:"needs_reorder" json:"needs_reorder"`
	BelowMinimum          bool       `db:"below_minimum" json:"below_minimum"`
	LastMovementAt        *time.Time `db:"last_movement_at" json:"last_movement_at,omitempty"`
	LastSaleAt            *time.Time `db:"last_sale_at" json:"last_sale_at,omitempty"`
	DaysSinceLastSale     *int       `db:"days_since_last_sale" json:"days_since_last_sale,omitempty"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// NewSnapshot returns the derived view of a product with no movements.
func NewSnapshot(productID string, now time.Time) *Snapshot {
	s := &Snapshot{ProductID: productID, UpdatedAt: now}
	s.Derive(0)
	return s
}

// Derive recomputes total, flags and state from the current quantities and
// configuration.
func (s *Snapshot) Derive(obsoleteAfterDays int) {
	s.Total = s.Available + s.Reserved + s.InTransit
	s.NeedsReorder = s.Available <= s.EffectiveReorderPoint
	s.BelowMinimum = s.Available < s.Minimum
	s.State = DeriveState(StateInputs{
		Available:         s.Available,
		Minimum:           s.Minimum,
		Maximum:           s.Maximum,
		Blocked:           s.Blocked,
		DaysSinceLastSale: s.DaysSinceLastSale,
		ObsoleteAfterDays: obsoleteAfterDays,
	})
}

// StateInputs are the values the state rule table looks at.
type StateInputs struct {
	Available         int64
	Minimum           int64
	Maximum           *int64
	Blocked           bool
	DaysSinceLastSale *int
	ObsoleteAfterDays int
}

// DeriveState applies the state rules in priority order; the first match wins.
// A product that never sold is not considered obsolete.
func DeriveState(in StateInputs) StockState {
	switch {
	case in.Blocked:
		return StateBlocked
	case in.Available == 0:
		return StateCritical
	case in.Available < in.Minimum:
		return StateLow
	case in.Maximum != nil && in.Available >= *in.Maximum:
		return StateExcess
	case in.ObsoleteAfterDays > 0 && in.DaysSinceLastSale != nil && *in.DaysSinceLastSale > in.ObsoleteAfterDays:
		return StateObsolete
	default:
		return StateNormal
	}
}

// DaysSince returns the whole days between t and now, nil when t is nil.
func DaysSince(t *time.Time, now time.Time) *int {
	if t == nil {
		return nil
	}
	days := int(Day(now).Sub(Day(*t)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// ThresholdUpdate replaces the configuration fields of a snapshot.
type ThresholdUpdate struct {
	Minimum      int64   `json:"minimum" validate:"gte=0"`
	Maximum      *int64  `json:"maximum,omitempty" validate:"omitempty,gte=0"`
	ReorderPoint int64   `json:"reorder_point" validate:"gte=0"`
	Location     *string `json:"location,omitempty" validate:"omitempty,max=128"`
	Blocked      bool    `json:"blocked"`
}

// Validate checks the threshold invariants.
func (u ThresholdUpdate) Validate() error {
	details := map[string]string{}
	if u.Minimum < 0 {
		details["minimum"] = "must not be negative"
	}
	if u.ReorderPoint < 0 {
		details["reorder_point"] = "must not be negative"
	}
	if u.Maximum != nil && *u.Maximum < u.Minimum {
		details["maximum"] = "must be greater than or equal to minimum"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// Apply copies the configuration onto s.
func (u ThresholdUpdate) Apply(s *Snapshot) {
	s.Minimum = u.Minimum
	s.Maximum = u.Maximum
	s.ReorderPoint = u.ReorderPoint
	s.Location = u.Location
	s.Blocked = u.Blocked
}

// SnapshotFilter narrows snapshot listings.
type SnapshotFilter struct {
	State        StockState
	NeedsReorder *bool
	Pagination
}
