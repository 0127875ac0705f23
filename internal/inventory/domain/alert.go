package domain

import "time"

// AlertType identifies the condition an alert reports.
type AlertType string

const (
	AlertCriticalStock   AlertType = "CRITICAL_STOCK"
	AlertLowStock        AlertType = "LOW_STOCK"
	AlertReorderPoint    AlertType = "REORDER_POINT"
	AlertOverstock       AlertType = "OVERSTOCK"
	AlertObsolete        AlertType = "OBSOLETE"
	AlertExpirySoon      AlertType = "EXPIRY_SOON"
	AlertExpired         AlertType = "EXPIRED"
	AlertAnomalousDemand AlertType = "ANOMALOUS_DEMAND"
	AlertHighShrinkage   AlertType = "HIGH_SHRINKAGE"
	AlertSupplierDelay   AlertType = "SUPPLIER_DELAY"
	AlertHighCost        AlertType = "HIGH_COST"
)

// Severity ranks alerts.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

var alertSeverity = map[AlertType]Severity{
	AlertCriticalStock:   SeverityCritical,
	AlertLowStock:        SeverityHigh,
	AlertReorderPoint:    SeverityMedium,
	AlertOverstock:       SeverityLow,
	AlertObsolete:        SeverityLow,
	AlertExpirySoon:      SeverityHigh,
	AlertExpired:         SeverityCritical,
	AlertAnomalousDemand: SeverityMedium,
	AlertHighShrinkage:   SeverityMedium,
	AlertSupplierDelay:   SeverityMedium,
	AlertHighCost:        SeverityLow,
}

// Severity returns the fixed severity of the alert type.
func (t AlertType) Severity() Severity {
	return alertSeverity[t]
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	_, ok := alertSeverity[t]
	return ok
}

// SnapshotDriven reports whether the condition is read off the stock snapshot
// and can therefore be auto-resolved when the snapshot clears it.
func (t AlertType) SnapshotDriven() bool {
	switch t {
	case AlertCriticalStock, AlertLowStock, AlertReorderPoint, AlertOverstock, AlertObsolete:
		return true
	}
	return false
}

// AlertState is the lifecycle position of an alert.
type AlertState string

const (
	AlertPending    AlertState = "PENDING"
	AlertInProgress AlertState = "IN_PROGRESS"
	AlertResolved   AlertState = "RESOLVED"
	AlertEscalated  AlertState = "ESCALATED"
	AlertIgnored    AlertState = "IGNORED"
)

// Terminal reports whether no further transitions are allowed.
func (s AlertState) Terminal() bool {
	return s == AlertResolved || s == AlertIgnored
}

// AlertAction is a request to move an alert.
type AlertAction string

const (
	ActionClaim    AlertAction = "CLAIM"
	ActionResolve  AlertAction = "RESOLVE"
	ActionEscalate AlertAction = "ESCALATE"
	ActionIgnore   AlertAction = "IGNORE"

	// ActionAutoResolve is applied by the scanner when the condition behind
	// a pending alert has cleared. Operators cannot request it.
	ActionAutoResolve AlertAction = "AUTO_RESOLVE"
)

// SystemOnly reports whether the action is reserved for background jobs.
func (a AlertAction) SystemOnly() bool {
	return a == ActionAutoResolve
}

var alertTransitions = map[AlertState]map[AlertAction]AlertState{
	AlertPending: {
		ActionClaim:       AlertInProgress,
		ActionIgnore:      AlertIgnored,
		ActionAutoResolve: AlertResolved,
	},
	AlertInProgress: {
		ActionResolve:  AlertResolved,
		ActionEscalate: AlertEscalated,
		ActionIgnore:   AlertIgnored,
	},
	AlertEscalated: {
		ActionClaim:   AlertInProgress,
		ActionResolve: AlertResolved,
	},
}

// Next returns the state reached by applying action to s. ok is false when
// the pair is not in the transition table.
func (s AlertState) Next(action AlertAction) (AlertState, bool) {
	next, ok := alertTransitions[s][action]
	return next, ok
}

// Alert is an actionable condition on a product. At most one non-terminal
// alert exists per (product, type).
type Alert struct {
	ID             string     `db:"id" json:"id"`
	ProductID      string     `db:"product_id" json:"product_id"`
	Type           AlertType  `db:"alert_type" json:"type"`
	Severity       Severity   `db:"severity" json:"severity"`
	State          AlertState `db:"state" json:"state"`
	Message        string     `db:"message" json:"message"`
	ReferenceID    *string    `db:"reference_id" json:"reference_id,omitempty"`
	CurrentValue   *float64   `db:"current_value" json:"current_value,omitempty"`
	ThresholdValue *float64   `db:"threshold_value" json:"threshold_value,omitempty"`
	AssignedTo     *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	ResolutionNote *string    `db:"resolution_note" json:"resolution_note,omitempty"`
	ResolvedBy     *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	ProductID string
	Type      AlertType
	Severity  Severity
	State     AlertState
	OpenOnly  bool
	Pagination
}
