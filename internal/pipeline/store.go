package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
)

// Store holds the live snapshot. Readers always see a complete snapshot; a
// refresh swaps the pointer atomically.
type Store struct {
	current atomic.Pointer[domain.Snapshot]
	metrics *observability.Metrics
}

// NewStore creates an empty store.
func NewStore(metrics *observability.Metrics) *Store {
	return &Store{metrics: metrics}
}

// Load publishes snap as the current snapshot. It implements Loader.
func (s *Store) Load(_ context.Context, snap *domain.Snapshot) error {
	s.current.Store(snap)
	s.metrics.SnapshotObservations.Set(float64(snap.Stats.Rows))
	s.metrics.SnapshotRegions.Set(float64(snap.Stats.Regions))
	s.metrics.SnapshotLoadedAt.Set(float64(snap.LoadedAt.Unix()))
	return nil
}

// Current returns the live snapshot, or nil before the first load.
func (s *Store) Current() *domain.Snapshot {
	return s.current.Load()
}

// CheckReadiness returns domain.ErrNotReady until a snapshot is loaded.
func (s *Store) CheckReadiness(_ context.Context) error {
	if s.Current() == nil {
		return domain.ErrNotReady
	}
	return nil
}
