package consumers

import (
	"context"

	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// MovementQueue is the queue that receives committed movements from the broker.
const MovementQueue = "inventory-service.movement-events"

// MovementHandler reacts to a committed ledger movement.
type MovementHandler interface {
	HandleMovementCommitted(ctx context.Context, evt messaging.MovementCommittedEvent) error
}

// MovementEventConsumer fans committed movements out to the demand and alert
// pipelines when the service runs in broker mode.
type MovementEventConsumer struct {
	consumer *messaging.Consumer
	handlers []MovementHandler
	logger   *logger.Logger
}

// NewMovementEventConsumer creates a new movement event consumer
func NewMovementEventConsumer(rmq *messaging.RabbitMQ, log *logger.Logger, handlers ...MovementHandler) (*MovementEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, MovementQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeInventoryEvents, messaging.EventMovementCommitted); err != nil {
		return nil, err
	}

	c := newMovementEventConsumer(log, handlers...)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventMovementCommitted, c.handleMovementCommitted)

	return c, nil
}

func newMovementEventConsumer(log *logger.Logger, handlers ...MovementHandler) *MovementEventConsumer {
	return &MovementEventConsumer{handlers: handlers, logger: log}
}

// Start starts consuming messages
func (c *MovementEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Wait blocks until the consume loop has stopped.
func (c *MovementEventConsumer) Wait() {
	c.consumer.Wait()
}

// handleMovementCommitted runs every handler and reports the first failure so
// the delivery is retried. Handlers are idempotent.
func (c *MovementEventConsumer) handleMovementCommitted(ctx context.Context, event *messaging.Event) error {
	var data messaging.MovementCommittedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	log := c.logger.WithCorrelationID(event.CorrelationID).WithProduct(data.ProductID)
	log.Debug().
		Str("movement_id", data.MovementID).
		Str("kind", data.Kind).
		Bool("voided", data.Voided).
		Msg("received movement committed event")

	var first error
	for _, h := range c.handlers {
		if err := h.HandleMovementCommitted(ctx, data); err != nil {
			// A product deleted in the meantime will never succeed on retry.
			if errors.Is(err, errors.ErrNotFound) {
				log.Warn().Err(err).Msg("dropping movement event for unknown product")
				continue
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
