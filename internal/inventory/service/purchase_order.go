package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// GenerateOrderRequest turns an optimization result into a draft order.
type GenerateOrderRequest struct {
	OptimizationID    string             `json:"optimization_id" validate:"required"`
	ExtraQuantity     int64              `json:"extra_quantity" validate:"gte=0"`
	Policy            domain.OrderPolicy `json:"policy,omitempty" validate:"omitempty,oneof=EOQ SHORTFALL"`
	Notes             *string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
	AlertID           *string            `json:"alert_id,omitempty"`
	RequestedDelivery *time.Time         `json:"requested_delivery,omitempty"`
}

// ReceiveLine is the quantity received for one order line.
type ReceiveLine struct {
	LineID     string     `json:"line_id" validate:"required"`
	Quantity   int64      `json:"quantity" validate:"required,gt=0"`
	LotNumber  *string    `json:"lot_number,omitempty" validate:"omitempty,max=64"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// ReceiveOrderRequest lists the goods received in one delivery.
type ReceiveOrderRequest struct {
	Lines []ReceiveLine `json:"lines" validate:"required,min=1,dive"`
}

// ReceiveResult is the order after receiving and the movements it appended.
type ReceiveResult struct {
	Order     *domain.PurchaseOrder `json:"order"`
	Movements []*domain.Movement    `json:"movements"`
}

// PurchaseOrderService drives purchase orders from draft to receipt.
type PurchaseOrderService struct {
	stores     Stores
	ledger     *LedgerService
	snapshots  *SnapshotService
	dispatcher events.Dispatcher
	publisher  *events.InventoryEventPublisher
	logger     *logger.Logger
	now        func() time.Time
}

// NewPurchaseOrderService creates the workflow. publisher may be nil.
func NewPurchaseOrderService(
	stores Stores,
	ledger *LedgerService,
	snapshots *SnapshotService,
	dispatcher events.Dispatcher,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *PurchaseOrderService {
	if dispatcher == nil {
		dispatcher = events.NopDispatcher{}
	}
	return &PurchaseOrderService{
		stores:     stores,
		ledger:     ledger,
		snapshots:  snapshots,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     log.WithComponent("purchase_order_service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GenerateFromOptimization creates a DRAFT order with one line for the
// optimized product, addressed to its primary supplier.
func (s *PurchaseOrderService) GenerateFromOptimization(ctx context.Context, req GenerateOrderRequest) (*domain.PurchaseOrder, error) {
	if req.ExtraQuantity < 0 {
		return nil, errors.Validation(map[string]string{"extra_quantity": "must not be negative"})
	}
	policy := req.Policy
	if policy == "" {
		policy = domain.PolicyEOQ
	}
	if policy != domain.PolicyEOQ && policy != domain.PolicyShortfall {
		return nil, errors.Validation(map[string]string{"policy": fmt.Sprintf("unknown policy %q", req.Policy)})
	}

	opt, err := s.stores.Optimizations.GetByID(ctx, req.OptimizationID)
	if err != nil {
		return nil, err
	}
	product, err := s.stores.Catalog.GetProduct(ctx, opt.ProductID)
	if err != nil {
		return nil, err
	}
	if product.PrimarySupplierID == nil || *product.PrimarySupplierID == "" {
		return nil, errors.NoSupplierAssigned(product.ID)
	}
	supplier, err := s.stores.Catalog.GetSupplier(ctx, *product.PrimarySupplierID)
	if err != nil {
		return nil, err
	}

	var base int64
	switch policy {
	case domain.PolicyEOQ:
		base = opt.EOQUnits()
	case domain.PolicyShortfall:
		snap, err := s.snapshots.Get(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		base = opt.ReorderPointUnits() - (snap.Available + snap.InTransit)
		if base < 0 {
			base = 0
		}
	}
	quantity := base + req.ExtraQuantity
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "computed order quantity must be greater than zero"})
	}

	unitCost := product.UnitCost
	if opt.UnitCost.Valid {
		unitCost = opt.UnitCost.Decimal
	}

	now := s.now()
	requested := req.RequestedDelivery
	if requested == nil {
		due := now.AddDate(0, 0, opt.LeadTimeDays)
		requested = &due
	}

	optID := opt.ID
	po := &domain.PurchaseOrder{
		ID:                uuid.New().String(),
		OrderNumber:       domain.NewOrderNumber(now),
		SupplierID:        supplier.ID,
		State:             domain.OrderDraft,
		OptimizationID:    &optID,
		AlertID:           req.AlertID,
		Notes:             req.Notes,
		RequestedDelivery: requested,
		CreatedBy:         actor.IDFromContext(ctx),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	po.Lines = []*domain.PurchaseOrderLine{{
		ID:        uuid.New().String(),
		OrderID:   po.ID,
		ProductID: product.ID,
		Quantity:  quantity,
		UnitCost:  unitCost,
	}}

	if err := s.stores.Orders.Create(ctx, po); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", po.ID).
		Str("order_number", po.OrderNumber).
		Str("product_id", product.ID).
		Str("policy", string(policy)).
		Int64("quantity", quantity).
		Str("value", po.TotalValue().StringFixed(2)).
		Msg("purchase order generated")

	return po, nil
}

// Confirm sends a DRAFT order to the supplier. Its lines start counting as
// in transit.
func (s *PurchaseOrderService) Confirm(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := s.changeState(ctx, id, func(po *domain.PurchaseOrder, now time.Time) error {
		if po.State != domain.OrderDraft {
			return errors.OrderAlreadyConfirmed(po.ID, string(po.State))
		}
		po.State = domain.OrderConfirmed
		po.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", po.ID).Msg("purchase order confirmed")
	return po, nil
}

// Cancel closes an order that has not been fully received.
func (s *PurchaseOrderService) Cancel(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := s.changeState(ctx, id, func(po *domain.PurchaseOrder, now time.Time) error {
		if po.State.Terminal() {
			return errors.OrderClosed(po.ID, string(po.State))
		}
		po.State = domain.OrderCancelled
		po.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", po.ID).Msg("purchase order cancelled")
	return po, nil
}

// changeState locks the order, applies mutate and recomputes the snapshots
// of its products, all in one transaction.
func (s *PurchaseOrderService) changeState(ctx context.Context, id string, mutate func(*domain.PurchaseOrder, time.Time) error) (*domain.PurchaseOrder, error) {
	var po *domain.PurchaseOrder
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.stores.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := mutate(current, now); err != nil {
			return err
		}
		current.UpdatedAt = now
		if err := s.stores.Orders.Update(ctx, current); err != nil {
			return err
		}
		for _, productID := range orderProducts(current) {
			if _, err := s.snapshots.recompute(ctx, productID); err != nil {
				return err
			}
		}
		po = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.snapshots.changed(ctx, orderProducts(po)...)
	return po, nil
}

// Receive books a delivery against a CONFIRMED or PARTIALLY_RECEIVED order.
// Every line is validated before anything is written and all lines commit
// together: one PURCHASE_IN movement per line, the received quantities and
// the new order state.
func (s *PurchaseOrderService) Receive(ctx context.Context, id string, req ReceiveOrderRequest) (*ReceiveResult, error) {
	if len(req.Lines) == 0 {
		return nil, errors.Validation(map[string]string{"lines": "at least one line is required"})
	}

	result := &ReceiveResult{}
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		po, err := s.stores.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case po.State.Terminal():
			return errors.OrderClosed(po.ID, string(po.State))
		case !po.State.Open():
			return errors.InvalidTransition(string(po.State), "RECEIVE")
		}

		if err := validateReceipt(po, req.Lines); err != nil {
			return err
		}

		orderID := po.ID
		refType := "PURCHASE_ORDER"
		supplierID := po.SupplierID
		for _, rl := range req.Lines {
			line := po.Line(rl.LineID)
			cost := line.UnitCost
			m, err := s.ledger.appendInTx(ctx, AppendMovementRequest{
				ProductID:     line.ProductID,
				Kind:          domain.KindPurchaseIn,
				Quantity:      rl.Quantity,
				UnitCost:      &cost,
				SupplierID:    &supplierID,
				ReferenceType: &refType,
				ReferenceID:   &orderID,
				LotNumber:     rl.LotNumber,
				ExpiryDate:    rl.ExpiryDate,
			})
			if err != nil {
				return fmt.Errorf("line %s: %w", rl.LineID, err)
			}
			line.ReceivedQuantity += rl.Quantity
			result.Movements = append(result.Movements, m)
		}

		now := s.now()
		next := domain.OrderPartiallyReceived
		if po.FullyReceived() {
			next = domain.OrderReceived
			po.ReceivedAt = &now
		}
		if !po.State.CanTransitionTo(next) {
			return errors.InvalidTransition(string(po.State), string(next))
		}
		po.State = next
		po.UpdatedAt = now
		if err := s.stores.Orders.Update(ctx, po); err != nil {
			return err
		}

		// in-transit dropped with the received quantities
		for _, productID := range orderProducts(po) {
			if _, err := s.snapshots.recompute(ctx, productID); err != nil {
				return err
			}
		}
		result.Order = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	movementIDs := make([]string, 0, len(result.Movements))
	evts := make([]messaging.MovementCommittedEvent, 0, len(result.Movements))
	for _, m := range result.Movements {
		movementIDs = append(movementIDs, m.ID)
		evts = append(evts, committedEvent(m, false))
	}
	s.dispatcher.Dispatch(ctx, evts...)
	s.publisher.PublishPurchaseOrderReceived(ctx, result.Order, movementIDs)

	s.logger.Info().
		Str("order_id", result.Order.ID).
		Str("state", string(result.Order.State)).
		Int("lines", len(req.Lines)).
		Msg("purchase order received")

	return result, nil
}

// validateReceipt checks every receive line against the order.
func validateReceipt(po *domain.PurchaseOrder, lines []ReceiveLine) error {
	requested := map[string]int64{}
	for _, rl := range lines {
		if rl.Quantity <= 0 {
			return errors.Validation(map[string]string{"quantity": fmt.Sprintf("line %s: must be greater than zero", rl.LineID)})
		}
		line := po.Line(rl.LineID)
		if line == nil {
			return errors.NotFoundID("purchase order line", rl.LineID)
		}
		requested[rl.LineID] += rl.Quantity
		if requested[rl.LineID] > line.Remaining() {
			return errors.ExceedsRemaining(rl.LineID, requested[rl.LineID], line.Remaining())
		}
	}
	return nil
}

func orderProducts(po *domain.PurchaseOrder) []string {
	seen := map[string]bool{}
	var ids []string
	for _, l := range po.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// Get returns one order with its lines.
func (s *PurchaseOrderService) Get(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return s.stores.Orders.GetByID(ctx, id)
}

// List returns orders matching the filter, newest first.
func (s *PurchaseOrderService) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.PurchaseOrder, int64, error) {
	return s.stores.Orders.List(ctx, filter)
}
