package memory

import (
	"context"
	"sort"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type snapshotStore struct{ *Store }

func copySnapshot(s *domain.Snapshot) *domain.Snapshot {
	c := *s
	return &c
}

// Lock creates the snapshot on first use. Serialization comes from the
// store lock held by the unit of work.
func (s *snapshotStore) Lock(ctx context.Context, productID string) error {
	defer s.acquire(ctx)()
	if _, ok := s.state.snapshots[productID]; !ok {
		s.state.snapshots[productID] = domain.NewSnapshot(productID, s.now())
	}
	return nil
}

func (s *snapshotStore) Get(ctx context.Context, productID string) (*domain.Snapshot, error) {
	defer s.acquire(ctx)()
	snap, ok := s.state.snapshots[productID]
	if !ok {
		return nil, errors.NotFoundID("snapshot", productID)
	}
	return copySnapshot(snap), nil
}

func (s *snapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	defer s.acquire(ctx)()
	if snap.Reserved < 0 || snap.InTransit < 0 {
		return errors.InvalidMovement("snapshot quantities must not be negative")
	}
	s.state.snapshots[snap.ProductID] = copySnapshot(snap)
	return nil
}

func (s *snapshotStore) List(ctx context.Context, f domain.SnapshotFilter) ([]*domain.Snapshot, int64, error) {
	defer s.acquire(ctx)()

	var matched []*domain.Snapshot
	for _, snap := range s.state.snapshots {
		if f.State != "" && snap.State != f.State {
			continue
		}
		if f.NeedsReorder != nil && snap.NeedsReorder != *f.NeedsReorder {
			continue
		}
		matched = append(matched, snap)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ProductID < matched[j].ProductID })

	start, end := f.Window(len(matched))
	out := make([]*domain.Snapshot, 0, end-start)
	for _, snap := range matched[start:end] {
		out = append(out, copySnapshot(snap))
	}
	return out, int64(len(matched)), nil
}
