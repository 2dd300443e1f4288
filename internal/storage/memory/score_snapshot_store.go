package memory

import (
	"context"
	"sort"
	"sync"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/storage"
)

// ScoreSnapshotStore is an in-memory implementation of storage.ScoreSnapshotStore.
type ScoreSnapshotStore struct {
	mu   sync.RWMutex
	data []*domain.ScoreSnapshot
}

// NewScoreSnapshotStore creates a new in-memory snapshot store.
func NewScoreSnapshotStore() *ScoreSnapshotStore {
	return &ScoreSnapshotStore{}
}

// InsertBulk appends snapshots.
func (s *ScoreSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.ScoreSnapshot) error {
	for _, snap := range snapshots {
		if snap == nil || snap.RunID == "" || snap.Wallet == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		s.data = append(s.data, copySnapshot(snap))
	}
	return nil
}

// GetByWallet retrieves a wallet's snapshots ordered by computed_at ASC.
func (s *ScoreSnapshotStore) GetByWallet(_ context.Context, wallet string) ([]*domain.ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoreSnapshot
	for _, snap := range s.data {
		if snap.Wallet == wallet {
			result = append(result, copySnapshot(snap))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ComputedAt < result[j].ComputedAt
	})
	return result, nil
}

// GetByRun retrieves all snapshots of one cycle ordered by wallet ASC.
func (s *ScoreSnapshotStore) GetByRun(_ context.Context, runID string) ([]*domain.ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoreSnapshot
	for _, snap := range s.data {
		if snap.RunID == runID {
			result = append(result, copySnapshot(snap))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Wallet < result[j].Wallet
	})
	return result, nil
}

func copySnapshot(snap *domain.ScoreSnapshot) *domain.ScoreSnapshot {
	c := *snap
	c.Badges = append([]domain.Badge(nil), snap.Badges...)
	return &c
}

var _ storage.ScoreSnapshotStore = (*ScoreSnapshotStore)(nil)
