package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// TransitionAlertRequest is an operator action on an alert.
type TransitionAlertRequest struct {
	Action     domain.AlertAction `json:"action" validate:"required,oneof=CLAIM RESOLVE ESCALATE IGNORE"`
	Note       *string            `json:"note,omitempty" validate:"omitempty,max=1000"`
	AssignedTo *string            `json:"assigned_to,omitempty"`
}

// AlertService opens alerts from the rule tables and moves them through
// their lifecycle.
type AlertService struct {
	stores    Stores
	demand    *DemandService
	snapshots *SnapshotService
	publisher *events.InventoryEventPublisher
	cfg       config.EngineConfig
	logger    *logger.Logger
	now       func() time.Time
}

// NewAlertService creates the alert engine. publisher may be nil.
func NewAlertService(
	stores Stores,
	demand *DemandService,
	snapshots *SnapshotService,
	publisher *events.InventoryEventPublisher,
	cfg config.EngineConfig,
	log *logger.Logger,
) *AlertService {
	return &AlertService{
		stores:    stores,
		demand:    demand,
		snapshots: snapshots,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.WithComponent("alert_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// condition is one rule that currently holds for a product.
type condition struct {
	alertType domain.AlertType
	message   string
	current   float64
	threshold float64
	reference *string
}

// snapshotConditions applies the snapshot rule table.
func (s *AlertService) snapshotConditions(snap *domain.Snapshot, label string) []condition {
	var out []condition
	avail := float64(snap.Available)

	if snap.Available == 0 {
		out = append(out, condition{
			alertType: domain.AlertCriticalStock,
			message:   fmt.Sprintf("%s is out of stock", label),
			current:   avail,
		})
	}
	if snap.BelowMinimum {
		out = append(out, condition{
			alertType: domain.AlertLowStock,
			message:   fmt.Sprintf("%s is below minimum stock (%d < %d)", label, snap.Available, snap.Minimum),
			current:   avail,
			threshold: float64(snap.Minimum),
		})
	}
	if snap.NeedsReorder {
		out = append(out, condition{
			alertType: domain.AlertReorderPoint,
			message:   fmt.Sprintf("%s reached its reorder point (%d <= %d)", label, snap.Available, snap.EffectiveReorderPoint),
			current:   avail,
			threshold: float64(snap.EffectiveReorderPoint),
		})
	}
	if snap.Maximum != nil && snap.Available >= *snap.Maximum {
		out = append(out, condition{
			alertType: domain.AlertOverstock,
			message:   fmt.Sprintf("%s is overstocked (%d >= %d)", label, snap.Available, *snap.Maximum),
			current:   avail,
			threshold: float64(*snap.Maximum),
		})
	}
	if s.cfg.ObsoleteAfterDays > 0 && snap.DaysSinceLastSale != nil && *snap.DaysSinceLastSale > s.cfg.ObsoleteAfterDays {
		out = append(out, condition{
			alertType: domain.AlertObsolete,
			message:   fmt.Sprintf("%s has not sold for %d days", label, *snap.DaysSinceLastSale),
			current:   float64(*snap.DaysSinceLastSale),
			threshold: float64(s.cfg.ObsoleteAfterDays),
		})
	}
	return out
}

// costCondition applies the HIGH_COST rule to the latest optimization.
func (s *AlertService) costCondition(latest *domain.OptimizationResult, label string) *condition {
	if latest == nil || s.cfg.HighCostThreshold <= 0 || latest.TotalAnnualCost <= s.cfg.HighCostThreshold {
		return nil
	}
	ref := latest.ID
	return &condition{
		alertType: domain.AlertHighCost,
		message:   fmt.Sprintf("%s has a total annual inventory cost of %.2f", label, latest.TotalAnnualCost),
		current:   latest.TotalAnnualCost,
		threshold: s.cfg.HighCostThreshold,
		reference: &ref,
	}
}

// Evaluate compares the product's snapshot and latest optimization against
// the rule tables and opens the alerts that are not already open. It returns
// the alerts it created.
func (s *AlertService) Evaluate(ctx context.Context, productID string) ([]*domain.Alert, error) {
	snap, err := s.stores.Snapshots.Get(ctx, productID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	label := s.productLabel(ctx, productID)
	conditions := s.snapshotConditions(snap, label)

	latest, err := s.stores.Optimizations.Latest(ctx, productID)
	if err != nil {
		return nil, err
	}
	if c := s.costCondition(latest, label); c != nil {
		conditions = append(conditions, *c)
	}

	var created []*domain.Alert
	for _, c := range conditions {
		a, err := s.open(ctx, productID, c)
		if err != nil {
			return created, err
		}
		if a != nil {
			created = append(created, a)
		}
	}
	return created, nil
}

// open creates an alert for c unless one of the same type is already open.
func (s *AlertService) open(ctx context.Context, productID string, c condition) (*domain.Alert, error) {
	now := s.now()
	current, threshold := c.current, c.threshold
	a := &domain.Alert{
		ID:             uuid.New().String(),
		ProductID:      productID,
		Type:           c.alertType,
		Severity:       c.alertType.Severity(),
		State:          domain.AlertPending,
		Message:        c.message,
		ReferenceID:    c.reference,
		CurrentValue:   &current,
		ThresholdValue: &threshold,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.stores.Alerts.CreateIfAbsent(ctx, a)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}

	s.logger.Info().
		Str("alert_id", a.ID).
		Str("product_id", productID).
		Str("alert_type", string(a.Type)).
		Str("severity", string(a.Severity)).
		Msg("alert opened")
	s.publisher.PublishAlertOpened(ctx, a)

	return a, nil
}

func (s *AlertService) productLabel(ctx context.Context, productID string) string {
	p, err := s.stores.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return productID
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.SKU)
}

// HandleMovementCommitted evaluates the moved product.
func (s *AlertService) HandleMovementCommitted(ctx context.Context, evt messaging.MovementCommittedEvent) error {
	if _, err := s.Evaluate(ctx, evt.ProductID); err != nil {
		return fmt.Errorf("evaluate alerts for %s: %w", evt.ProductID, err)
	}
	return nil
}

// HandleSnapshotRecomputed evaluates a product whose snapshot changed
// without a movement, such as a threshold update or an order confirmation.
func (s *AlertService) HandleSnapshotRecomputed(ctx context.Context, productID string) error {
	if _, err := s.Evaluate(ctx, productID); err != nil {
		return fmt.Errorf("evaluate alerts for %s: %w", productID, err)
	}
	return nil
}

// Transition applies an operator action using the alert transition table.
func (s *AlertService) Transition(ctx context.Context, id string, req TransitionAlertRequest) (*domain.Alert, error) {
	if req.Action.SystemOnly() {
		return nil, errors.Validation(map[string]string{"action": fmt.Sprintf("%s is applied by the system only", req.Action)})
	}

	var a *domain.Alert
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.stores.Alerts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.State.Terminal() {
			return errors.AlertAlreadyClosed(id, string(current.State))
		}
		next, ok := current.State.Next(req.Action)
		if !ok {
			return errors.InvalidTransition(string(current.State), string(req.Action))
		}

		from := current.State
		now := s.now()
		by := actor.IDFromContext(ctx)

		current.State = next
		current.UpdatedAt = now
		switch req.Action {
		case domain.ActionClaim:
			assignee := by
			if req.AssignedTo != nil && *req.AssignedTo != "" {
				assignee = *req.AssignedTo
			}
			current.AssignedTo = &assignee
		case domain.ActionResolve, domain.ActionIgnore:
			current.ResolutionNote = req.Note
			current.ResolvedBy = &by
			current.ResolvedAt = &now
		case domain.ActionEscalate:
			if req.Note != nil {
				current.ResolutionNote = req.Note
			}
		}

		if err := s.stores.Alerts.UpdateState(ctx, current, from); err != nil {
			return err
		}
		a = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("alert_id", a.ID).
		Str("action", string(req.Action)).
		Str("state", string(a.State)).
		Msg("alert transitioned")

	return a, nil
}

// Get returns one alert.
func (s *AlertService) Get(ctx context.Context, id string) (*domain.Alert, error) {
	return s.stores.Alerts.GetByID(ctx, id)
}

// List returns alerts matching the filter, newest first.
func (s *AlertService) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, int64, error) {
	details := map[string]string{}
	if filter.Type != "" && !filter.Type.Valid() {
		details["type"] = fmt.Sprintf("unknown alert type %q", filter.Type)
	}
	if len(details) > 0 {
		return nil, 0, errors.Validation(details)
	}
	return s.stores.Alerts.List(ctx, filter)
}
