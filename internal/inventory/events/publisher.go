package events

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// ServiceName is the event source and queue prefix of this service.
const ServiceName = "inventory-service"

// InventoryEventPublisher publishes inventory events to RabbitMQ. A nil
// publisher is valid and publishes nothing.
type InventoryEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, ServiceName, log)
	if err != nil {
		return nil, err
	}

	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// ForwardMovement publishes a committed movement. It has the Handler
// signature so the local bus can forward to the broker.
func (p *InventoryEventPublisher) ForwardMovement(ctx context.Context, evt messaging.MovementCommittedEvent) error {
	if p == nil {
		return nil
	}
	return p.publisher.Publish(ctx, messaging.EventMovementCommitted, evt)
}

// PublishAlertOpened publishes an alert opened event
func (p *InventoryEventPublisher) PublishAlertOpened(ctx context.Context, alert *domain.Alert) {
	if p == nil {
		return
	}

	data := messaging.AlertOpenedEvent{
		AlertID:   alert.ID,
		ProductID: alert.ProductID,
		AlertType: string(alert.Type),
		Severity:  string(alert.Severity),
		Message:   alert.Message,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertOpened, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert opened event")
	}
}

// PublishOptimizationComputed publishes an optimization computed event
func (p *InventoryEventPublisher) PublishOptimizationComputed(ctx context.Context, r *domain.OptimizationResult) {
	if p == nil {
		return
	}

	data := messaging.OptimizationComputedEvent{
		ResultID:        r.ID,
		ProductID:       r.ProductID,
		EOQ:             r.EOQ,
		ReorderPoint:    r.ReorderPoint,
		SafetyStock:     r.SafetyStock,
		TotalAnnualCost: r.TotalAnnualCost,
	}

	if err := p.publisher.Publish(ctx, messaging.EventOptimizationComputed, data); err != nil {
		p.logger.Error().Err(err).Str("result_id", r.ID).Msg("failed to publish optimization computed event")
	}
}

// PublishPurchaseOrderReceived publishes a goods received event
func (p *InventoryEventPublisher) PublishPurchaseOrderReceived(ctx context.Context, po *domain.PurchaseOrder, movementIDs []string) {
	if p == nil {
		return
	}

	data := messaging.PurchaseOrderReceivedEvent{
		OrderID:     po.ID,
		OrderNumber: po.OrderNumber,
		SupplierID:  po.SupplierID,
		State:       string(po.State),
		MovementIDs: movementIDs,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPurchaseOrderReceived, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", po.ID).Msg("failed to publish purchase order received event")
	}
}
