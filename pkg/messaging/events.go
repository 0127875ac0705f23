package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventMovementCommitted     = "inventory.movement.committed"
	EventAlertOpened           = "inventory.alert.opened"
	EventOptimizationComputed  = "inventory.optimization.computed"
	EventPurchaseOrderReceived = "inventory.purchase_order.received"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeDeadLetter      = "dlx.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// MovementCommittedEvent is published after a ledger append or void commits.
type MovementCommittedEvent struct {
	MovementID   string    `json:"movement_id"`
	ProductID    string    `json:"product_id"`
	Kind         string    `json:"kind"`
	Quantity     int64     `json:"quantity"`
	BalanceAfter int64     `json:"balance_after"`
	OccurredAt   time.Time `json:"occurred_at"`
	Voided       bool      `json:"voided"`
}

// AlertOpenedEvent is published when the alert engine opens an alert.
type AlertOpenedEvent struct {
	AlertID   string `json:"alert_id"`
	ProductID string `json:"product_id"`
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

// OptimizationComputedEvent is published for every persisted optimization result.
type OptimizationComputedEvent struct {
	ResultID        string  `json:"result_id"`
	ProductID       string  `json:"product_id"`
	EOQ             float64 `json:"eoq"`
	ReorderPoint    float64 `json:"reorder_point"`
	SafetyStock     float64 `json:"safety_stock"`
	TotalAnnualCost float64 `json:"total_annual_cost"`
}

// PurchaseOrderReceivedEvent is published after goods are received on an order.
type PurchaseOrderReceivedEvent struct {
	OrderID     string   `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	SupplierID  string   `json:"supplier_id"`
	State       string   `json:"state"`
	MovementIDs []string `json:"movement_ids"`
}
