package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
)

type demandStore struct{ *Store }

func (s *demandStore) Upsert(ctx context.Context, r *domain.DemandRecord) error {
	defer s.acquire(ctx)()
	c := *r
	c.Date = domain.Day(r.Date)
	s.state.demand[demandKey{r.ProductID, c.Date.Unix()}] = &c
	return nil
}

func (s *demandStore) Delete(ctx context.Context, productID string, day time.Time) error {
	defer s.acquire(ctx)()
	delete(s.state.demand, demandKey{productID, domain.Day(day).Unix()})
	return nil
}

func (s *demandStore) ListRange(ctx context.Context, productID string, from, to time.Time) ([]*domain.DemandRecord, error) {
	defer s.acquire(ctx)()

	first, last := domain.Day(from), domain.Day(to)
	var out []*domain.DemandRecord
	for k, r := range s.state.demand {
		if k.productID != productID || r.Date.Before(first) || r.Date.After(last) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *demandStore) DeleteBefore(ctx context.Context, productID string, cutoff time.Time) (int64, error) {
	defer s.acquire(ctx)()

	day := domain.Day(cutoff)
	var n int64
	for k, r := range s.state.demand {
		if k.productID == productID && r.Date.Before(day) {
			delete(s.state.demand, k)
			n++
		}
	}
	return n, nil
}
