package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type alertStore struct{ *Store }

func copyAlert(a *domain.Alert) *domain.Alert {
	c := *a
	return &c
}

// CreateIfAbsent mirrors the partial unique index on open alerts.
func (s *alertStore) CreateIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	defer s.acquire(ctx)()
	for _, existing := range s.state.alerts {
		if existing.ProductID == a.ProductID && existing.Type == a.Type && !existing.State.Terminal() {
			return false, nil
		}
	}
	s.state.alerts[a.ID] = copyAlert(a)
	s.state.sequence(a.ID)
	return true, nil
}

func (s *alertStore) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	defer s.acquire(ctx)()
	a, ok := s.state.alerts[id]
	if !ok {
		return nil, errors.NotFoundID("alert", id)
	}
	return copyAlert(a), nil
}

func (s *alertStore) UpdateState(ctx context.Context, a *domain.Alert, from domain.AlertState) error {
	defer s.acquire(ctx)()
	stored, ok := s.state.alerts[a.ID]
	if !ok {
		return errors.NotFoundID("alert", a.ID)
	}
	if stored.State != from {
		return errors.Conflict("alert was modified concurrently")
	}
	s.state.alerts[a.ID] = copyAlert(a)
	return nil
}

func (s *alertStore) List(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int64, error) {
	defer s.acquire(ctx)()

	var matched []*domain.Alert
	for _, a := range s.state.alerts {
		if f.ProductID != "" && a.ProductID != f.ProductID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.State != "" && a.State != f.State {
			continue
		}
		if f.OpenOnly && a.State.Terminal() {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return s.state.seq[matched[i].ID] > s.state.seq[matched[j].ID]
	})

	start, end := f.Window(len(matched))
	out := make([]*domain.Alert, 0, end-start)
	for _, a := range matched[start:end] {
		out = append(out, copyAlert(a))
	}
	return out, int64(len(matched)), nil
}

func (s *alertStore) ListClosedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	defer s.acquire(ctx)()
	var ids []string
	for id, a := range s.state.alerts {
		if a.State.Terminal() && a.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *alertStore) Delete(ctx context.Context, id string) error {
	defer s.acquire(ctx)()
	if _, ok := s.state.alerts[id]; !ok {
		return errors.NotFoundID("alert", id)
	}
	delete(s.state.alerts, id)
	delete(s.state.seq, id)
	return nil
}
