package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type orderStore struct{ *Store }

func copyOrder(po *domain.PurchaseOrder) *domain.PurchaseOrder {
	c := *po
	c.Lines = make([]*domain.PurchaseOrderLine, len(po.Lines))
	for i, l := range po.Lines {
		lc := *l
		c.Lines[i] = &lc
	}
	return &c
}

func (s *orderStore) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	defer s.acquire(ctx)()
	if err := po.CheckLines(); err != nil {
		return err
	}
	for _, existing := range s.state.orders {
		if existing.OrderNumber == po.OrderNumber {
			return errors.Conflict("order number already exists")
		}
	}
	s.state.orders[po.ID] = copyOrder(po)
	s.state.sequence(po.ID)
	return nil
}

func (s *orderStore) GetByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	defer s.acquire(ctx)()
	po, ok := s.state.orders[id]
	if !ok {
		return nil, errors.NotFoundID("purchase order", id)
	}
	return copyOrder(po), nil
}

// GetForUpdate relies on the store lock held by the unit of work.
func (s *orderStore) GetForUpdate(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return s.GetByID(ctx, id)
}

func (s *orderStore) Update(ctx context.Context, po *domain.PurchaseOrder) error {
	defer s.acquire(ctx)()
	if _, ok := s.state.orders[po.ID]; !ok {
		return errors.NotFoundID("purchase order", po.ID)
	}
	if err := po.CheckLines(); err != nil {
		return err
	}
	s.state.orders[po.ID] = copyOrder(po)
	return nil
}

func hasProduct(po *domain.PurchaseOrder, productID string) bool {
	for _, l := range po.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *orderStore) List(ctx context.Context, f domain.OrderFilter) ([]*domain.PurchaseOrder, int64, error) {
	defer s.acquire(ctx)()

	var matched []*domain.PurchaseOrder
	for _, po := range s.state.orders {
		if f.State != "" && po.State != f.State {
			continue
		}
		if f.SupplierID != "" && po.SupplierID != f.SupplierID {
			continue
		}
		if f.ProductID != "" && !hasProduct(po, f.ProductID) {
			continue
		}
		matched = append(matched, po)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return s.state.seq[matched[i].ID] > s.state.seq[matched[j].ID]
	})

	start, end := f.Window(len(matched))
	out := make([]*domain.PurchaseOrder, 0, end-start)
	for _, po := range matched[start:end] {
		out = append(out, copyOrder(po))
	}
	return out, int64(len(matched)), nil
}

func (s *orderStore) InTransit(ctx context.Context, productID string) (int64, error) {
	defer s.acquire(ctx)()
	var total int64
	for _, po := range s.state.orders {
		if !po.State.Open() {
			continue
		}
		for _, l := range po.Lines {
			if l.ProductID == productID {
				total += l.Remaining()
			}
		}
	}
	return total, nil
}

func (s *orderStore) ListOverdue(ctx context.Context, asOf time.Time) ([]*domain.PurchaseOrder, error) {
	defer s.acquire(ctx)()
	var out []*domain.PurchaseOrder
	for _, po := range s.state.orders {
		if po.State.Open() && po.RequestedDelivery != nil && po.RequestedDelivery.Before(asOf) {
			out = append(out, copyOrder(po))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedDelivery.Before(*out[j].RequestedDelivery) })
	return out, nil
}
