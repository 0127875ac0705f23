package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type optimizationStore struct{ *Store }

func copyResult(r *domain.OptimizationResult) *domain.OptimizationResult {
	c := *r
	return &c
}

func (s *optimizationStore) Insert(ctx context.Context, r *domain.OptimizationResult) error {
	defer s.acquire(ctx)()
	s.state.optimizations[r.ID] = copyResult(r)
	s.state.sequence(r.ID)
	return nil
}

func (s *optimizationStore) GetByID(ctx context.Context, id string) (*domain.OptimizationResult, error) {
	defer s.acquire(ctx)()
	r, ok := s.state.optimizations[id]
	if !ok {
		return nil, errors.NotFoundID("optimization result", id)
	}
	return copyResult(r), nil
}

// byProduct returns the results of a product, newest first.
func (s *optimizationStore) byProduct(productID string) []*domain.OptimizationResult {
	var out []*domain.OptimizationResult
	for _, r := range s.state.optimizations {
		if productID == "" || r.ProductID == productID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.state.seq[out[i].ID] > s.state.seq[out[j].ID]
	})
	return out
}

func (s *optimizationStore) Latest(ctx context.Context, productID string) (*domain.OptimizationResult, error) {
	defer s.acquire(ctx)()
	results := s.byProduct(productID)
	if len(results) == 0 {
		return nil, nil
	}
	return copyResult(results[0]), nil
}

func (s *optimizationStore) ListByProduct(ctx context.Context, productID string, limit int) ([]*domain.OptimizationResult, error) {
	defer s.acquire(ctx)()
	results := s.byProduct(productID)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]*domain.OptimizationResult, 0, len(results))
	for _, r := range results {
		out = append(out, copyResult(r))
	}
	return out, nil
}

func (s *optimizationStore) ListSupersededBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	defer s.acquire(ctx)()

	seen := map[string]bool{}
	var ids []string
	for _, r := range s.byProduct("") {
		if !seen[r.ProductID] {
			seen[r.ProductID] = true
			continue
		}
		if r.CreatedAt.Before(cutoff) {
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *optimizationStore) Delete(ctx context.Context, id string) error {
	defer s.acquire(ctx)()
	if _, ok := s.state.optimizations[id]; !ok {
		return errors.NotFoundID("optimization result", id)
	}
	delete(s.state.optimizations, id)
	delete(s.state.seq, id)
	return nil
}
