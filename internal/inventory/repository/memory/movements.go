package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type movementStore struct{ *Store }

func copyMovement(m *domain.Movement) *domain.Movement {
	c := *m
	return &c
}

func (s *movementStore) Insert(ctx context.Context, m *domain.Movement) error {
	defer s.acquire(ctx)()
	if m.Quantity <= 0 {
		return errors.InvalidMovement("quantity must be greater than zero")
	}
	if _, ok := s.state.movements[m.ID]; ok {
		return errors.Conflict("movement already exists")
	}
	s.state.movements[m.ID] = copyMovement(m)
	s.state.sequence(m.ID)
	return nil
}

func (s *movementStore) GetByID(ctx context.Context, id string) (*domain.Movement, error) {
	defer s.acquire(ctx)()
	m, ok := s.state.movements[id]
	if !ok {
		return nil, errors.NotFoundID("movement", id)
	}
	return copyMovement(m), nil
}

func (s *movementStore) MarkVoided(ctx context.Context, m *domain.Movement) error {
	defer s.acquire(ctx)()
	stored, ok := s.state.movements[m.ID]
	if !ok {
		return errors.NotFoundID("movement", m.ID)
	}
	if stored.Voided {
		return errors.AlreadyVoided(m.ID)
	}
	c := copyMovement(stored)
	c.Voided = true
	c.VoidedAt = m.VoidedAt
	c.VoidedBy = m.VoidedBy
	c.VoidReason = m.VoidReason
	c.VoidBalance = m.VoidBalance
	s.state.movements[m.ID] = c
	return nil
}

// live returns the non-voided movements of a product.
func (s *movementStore) live(productID string) []*domain.Movement {
	var out []*domain.Movement
	for _, m := range s.state.movements {
		if m.ProductID == productID && !m.Voided {
			out = append(out, m)
		}
	}
	return out
}

func (s *movementStore) List(ctx context.Context, f domain.MovementFilter) ([]*domain.Movement, int64, error) {
	defer s.acquire(ctx)()

	var matched []*domain.Movement
	for _, m := range s.state.movements {
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if f.From != nil && m.OccurredAt.Before(*f.From) {
			continue
		}
		if f.To != nil && m.OccurredAt.After(*f.To) {
			continue
		}
		if m.Voided && !f.IncludeVoided {
			continue
		}
		matched = append(matched, m)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return s.state.seq[matched[i].ID] > s.state.seq[matched[j].ID]
	})

	start, end := f.Window(len(matched))
	out := make([]*domain.Movement, 0, end-start)
	for _, m := range matched[start:end] {
		out = append(out, copyMovement(m))
	}
	return out, int64(len(matched)), nil
}

func (s *movementStore) Balance(ctx context.Context, productID string) (domain.LedgerBalance, error) {
	defer s.acquire(ctx)()
	var b domain.LedgerBalance
	for _, m := range s.live(productID) {
		b = b.Apply(m, 1)
	}
	return b, nil
}

func (s *movementStore) LastMovementAt(ctx context.Context, productID string) (*time.Time, error) {
	defer s.acquire(ctx)()
	return latestOccurrence(s.live(productID), func(*domain.Movement) bool { return true }), nil
}

func (s *movementStore) LastSaleAt(ctx context.Context, productID string) (*time.Time, error) {
	defer s.acquire(ctx)()
	return latestOccurrence(s.live(productID), func(m *domain.Movement) bool { return m.Kind.IsSale() }), nil
}

func latestOccurrence(ms []*domain.Movement, match func(*domain.Movement) bool) *time.Time {
	var latest *time.Time
	for _, m := range ms {
		if !match(m) {
			continue
		}
		if latest == nil || m.OccurredAt.After(*latest) {
			t := m.OccurredAt
			latest = &t
		}
	}
	return latest
}

func kindSet(kinds []domain.MovementKind) map[domain.MovementKind]bool {
	set := make(map[domain.MovementKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

func (s *movementStore) DailyTotals(ctx context.Context, productID string, kinds []domain.MovementKind, from, to time.Time) ([]domain.DailyQuantity, error) {
	defer s.acquire(ctx)()

	set := kindSet(kinds)
	first, last := domain.Day(from), domain.Day(to)
	totals := map[time.Time]int64{}
	for _, m := range s.live(productID) {
		if !set[m.Kind] {
			continue
		}
		day := domain.Day(m.OccurredAt)
		if day.Before(first) || day.After(last) {
			continue
		}
		totals[day] += m.Quantity
	}

	out := make([]domain.DailyQuantity, 0, len(totals))
	for day, qty := range totals {
		out = append(out, domain.DailyQuantity{Day: day, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *movementStore) SumSince(ctx context.Context, productID string, kinds []domain.MovementKind, since time.Time) (int64, error) {
	defer s.acquire(ctx)()

	set := kindSet(kinds)
	var total int64
	for _, m := range s.live(productID) {
		if set[m.Kind] && !m.OccurredAt.Before(since) {
			total += m.Quantity
		}
	}
	return total, nil
}

func (s *movementStore) LotBalances(ctx context.Context) ([]domain.LotBalance, error) {
	defer s.acquire(ctx)()

	type lotKey struct {
		productID string
		lot       string
		expiry    int64
	}
	lots := map[lotKey]*domain.LotBalance{}
	for _, m := range s.state.movements {
		if m.Voided || m.LotNumber == nil || m.ExpiryDate == nil {
			continue
		}
		k := lotKey{m.ProductID, *m.LotNumber, domain.Day(*m.ExpiryDate).Unix()}
		lb, ok := lots[k]
		if !ok {
			lb = &domain.LotBalance{ProductID: m.ProductID, LotNumber: *m.LotNumber, ExpiryDate: domain.Day(*m.ExpiryDate)}
			lots[k] = lb
		}
		lb.Quantity += m.AvailableDelta()
	}

	var out []domain.LotBalance
	for _, lb := range lots {
		if lb.Quantity > 0 {
			out = append(out, *lb)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].LotNumber < out[j].LotNumber
	})
	return out, nil
}
