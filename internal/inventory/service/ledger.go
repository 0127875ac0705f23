package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// AppendMovementRequest is a new ledger entry.
type AppendMovementRequest struct {
	ProductID     string              `json:"product_id" validate:"required"`
	Kind          domain.MovementKind `json:"kind" validate:"required"`
	Quantity      int64               `json:"quantity" validate:"required,gt=0"`
	UnitCost      *decimal.Decimal    `json:"unit_cost,omitempty"`
	SupplierID    *string             `json:"supplier_id,omitempty"`
	ReferenceType *string             `json:"reference_type,omitempty" validate:"omitempty,max=64"`
	ReferenceID   *string             `json:"reference_id,omitempty" validate:"omitempty,max=128"`
	LotNumber     *string             `json:"lot_number,omitempty" validate:"omitempty,max=64"`
	ExpiryDate    *time.Time          `json:"expiry_date,omitempty"`
	Notes         *string             `json:"notes,omitempty" validate:"omitempty,max=1000"`
	OccurredAt    *time.Time          `json:"occurred_at,omitempty"`
}

// VoidMovementRequest carries the reason for a void.
type VoidMovementRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// LedgerService appends and voids stock movements.
type LedgerService struct {
	stores        Stores
	snapshots     *SnapshotService
	dispatcher    events.Dispatcher
	allowNegative bool
	logger        *logger.Logger
	now           func() time.Time
}

// NewLedgerService creates the ledger. A nil dispatcher drops events.
func NewLedgerService(stores Stores, snapshots *SnapshotService, dispatcher events.Dispatcher, cfg config.EngineConfig, log *logger.Logger) *LedgerService {
	if dispatcher == nil {
		dispatcher = events.NopDispatcher{}
	}
	return &LedgerService{
		stores:        stores,
		snapshots:     snapshots,
		dispatcher:    dispatcher,
		allowNegative: cfg.AllowNegativeBalance,
		logger:        log.WithComponent("ledger_service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Append validates and records a movement, recomputes the product snapshot in
// the same transaction and publishes MovementCommitted once committed.
func (s *LedgerService) Append(ctx context.Context, req AppendMovementRequest) (*domain.Movement, error) {
	var m *domain.Movement
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		m, err = s.appendInTx(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, committedEvent(m, false))
	return m, nil
}

// appendInTx records a movement inside the caller's transaction. The caller
// dispatches the commit event.
func (s *LedgerService) appendInTx(ctx context.Context, req AppendMovementRequest) (*domain.Movement, error) {
	m, err := s.buildMovement(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.stores.Snapshots.Lock(ctx, m.ProductID); err != nil {
		return nil, err
	}
	before, err := s.stores.Movements.Balance(ctx, m.ProductID)
	if err != nil {
		return nil, err
	}
	after := before.Apply(m, 1)
	if err := s.checkBalance(after, "movement"); err != nil {
		return nil, err
	}

	m.BalanceBefore = before.Available
	m.BalanceAfter = after.Available
	if err := s.stores.Movements.Insert(ctx, m); err != nil {
		return nil, err
	}
	if _, err := s.snapshots.recompute(ctx, m.ProductID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", m.ID).
		Str("product_id", m.ProductID).
		Str("kind", string(m.Kind)).
		Int64("quantity", m.Quantity).
		Int64("balance_after", m.BalanceAfter).
		Msg("movement appended")

	return m, nil
}

// buildMovement validates req against the catalog. Nothing is written.
func (s *LedgerService) buildMovement(ctx context.Context, req AppendMovementRequest) (*domain.Movement, error) {
	details := map[string]string{}
	if strings.TrimSpace(req.ProductID) == "" {
		details["product_id"] = "is required"
	}
	if !req.Kind.Valid() {
		details["kind"] = fmt.Sprintf("unknown movement kind %q", req.Kind)
	}
	if req.Quantity <= 0 {
		details["quantity"] = "must be greater than zero"
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		details["unit_cost"] = "must not be negative"
	}
	if req.Kind.RequiresSupplier() && (req.SupplierID == nil || *req.SupplierID == "") {
		details["supplier_id"] = "is required for purchase movements"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	product, err := s.stores.Catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, errors.InvalidMovement(fmt.Sprintf("product %s is inactive", product.ID))
	}
	if req.SupplierID != nil && *req.SupplierID != "" {
		if _, err := s.stores.Catalog.GetSupplier(ctx, *req.SupplierID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	m := &domain.Movement{
		ID:            uuid.New().String(),
		ProductID:     product.ID,
		Kind:          req.Kind,
		Quantity:      req.Quantity,
		SupplierID:    req.SupplierID,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		LotNumber:     req.LotNumber,
		ExpiryDate:    req.ExpiryDate,
		Notes:         req.Notes,
		OccurredAt:    occurredAt,
		RecordedBy:    actor.IDFromContext(ctx),
		CreatedAt:     now,
	}
	if req.UnitCost != nil {
		m.UnitCost = decimal.NewNullDecimal(*req.UnitCost)
	}
	return m, nil
}

// checkBalance enforces the non-negative balance rule. Reserved stock may
// never go negative; available stock may in backorder mode.
func (s *LedgerService) checkBalance(b domain.LedgerBalance, what string) error {
	if b.Reserved < 0 {
		return errors.InvalidMovement(fmt.Sprintf("%s would drive reserved stock to %d", what, b.Reserved))
	}
	if b.Available < 0 && !s.allowNegative {
		return errors.InvalidMovement(fmt.Sprintf("%s would drive available stock to %d", what, b.Available))
	}
	return nil
}

// Void marks a movement voided and re-derives the live snapshot. The ledger
// row stays visible and later balances are not rewritten.
func (s *LedgerService) Void(ctx context.Context, id string, req VoidMovementRequest) (*domain.Movement, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}

	original, err := s.stores.Movements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Voided {
		return nil, errors.AlreadyVoided(id)
	}

	var m *domain.Movement
	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Snapshots.Lock(ctx, original.ProductID); err != nil {
			return err
		}
		// re-read under the product lock; a concurrent void may have won
		current, err := s.stores.Movements.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Voided {
			return errors.AlreadyVoided(id)
		}

		live, err := s.stores.Movements.Balance(ctx, current.ProductID)
		if err != nil {
			return err
		}
		after := live.Apply(current, -1)
		if err := s.checkBalance(after, "void"); err != nil {
			return err
		}

		now := s.now()
		by := actor.IDFromContext(ctx)
		reason := req.Reason
		current.Voided = true
		current.VoidedAt = &now
		current.VoidedBy = &by
		current.VoidReason = &reason
		current.VoidBalance = &after.Available

		if err := s.stores.Movements.MarkVoided(ctx, current); err != nil {
			return err
		}
		if _, err := s.snapshots.recompute(ctx, current.ProductID); err != nil {
			return err
		}
		m = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", m.ID).
		Str("product_id", m.ProductID).
		Int64("void_balance", *m.VoidBalance).
		Msg("movement voided")

	s.dispatcher.Dispatch(ctx, committedEvent(m, true))
	return m, nil
}

// Get returns one movement.
func (s *LedgerService) Get(ctx context.Context, id string) (*domain.Movement, error) {
	return s.stores.Movements.GetByID(ctx, id)
}

// List returns movements matching the filter, newest first.
func (s *LedgerService) List(ctx context.Context, filter domain.MovementFilter) ([]*domain.Movement, int64, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, 0, errors.Validation(map[string]string{"kind": fmt.Sprintf("unknown movement kind %q", filter.Kind)})
	}
	return s.stores.Movements.List(ctx, filter)
}

func committedEvent(m *domain.Movement, voided bool) messaging.MovementCommittedEvent {
	balance := m.BalanceAfter
	if voided && m.VoidBalance != nil {
		balance = *m.VoidBalance
	}
	return messaging.MovementCommittedEvent{
		MovementID:   m.ID,
		ProductID:    m.ProductID,
		Kind:         string(m.Kind),
		Quantity:     m.Quantity,
		BalanceAfter: balance,
		OccurredAt:   m.OccurredAt,
		Voided:       voided,
	}
}
