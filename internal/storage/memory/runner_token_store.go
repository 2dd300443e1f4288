package memory

import (
	"context"
	"sort"
	"sync"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/storage"
)

// RunnerTokenStore is an in-memory implementation of storage.RunnerTokenStore.
type RunnerTokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunnerToken // keyed by address
}

// NewRunnerTokenStore creates a new in-memory runner token store.
func NewRunnerTokenStore() *RunnerTokenStore {
	return &RunnerTokenStore{
		data: make(map[string]*domain.RunnerToken),
	}
}

// Insert adds a new runner token. Returns ErrDuplicateKey if address exists.
func (s *RunnerTokenStore) Insert(_ context.Context, t *domain.RunnerToken) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Address]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[t.Address] = copyToken(t)
	return nil
}

// GetByAddress retrieves a runner token. Returns ErrNotFound if not exists.
func (s *RunnerTokenStore) GetByAddress(_ context.Context, address string) (*domain.RunnerToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyToken(t), nil
}

// GetAll retrieves all runner tokens ordered by created_at ASC, address ASC.
func (s *RunnerTokenStore) GetAll(_ context.Context) ([]*domain.RunnerToken, error) {
	return s.filter(func(*domain.RunnerToken) bool { return true }), nil
}

// GetUnchecked retrieves runner tokens that have not been scored yet.
func (s *RunnerTokenStore) GetUnchecked(_ context.Context) ([]*domain.RunnerToken, error) {
	return s.filter(func(t *domain.RunnerToken) bool { return !t.Checked }), nil
}

// Count returns the number of runner tokens.
func (s *RunnerTokenStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// MarkChecked sets checked = true. Returns ErrNotFound if not exists.
func (s *RunnerTokenStore) MarkChecked(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[address]
	if !exists {
		return storage.ErrNotFound
	}
	t.Checked = true
	return nil
}

func (s *RunnerTokenStore) filter(keep func(*domain.RunnerToken) bool) []*domain.RunnerToken {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunnerToken
	for _, t := range s.data {
		if keep(t) {
			result = append(result, copyToken(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})
	return result
}

func copyToken(t *domain.RunnerToken) *domain.RunnerToken {
	c := *t
	c.Milestones = domain.Milestones{
		Early:       copyInt64(t.Milestones.Early),
		Late:        copyInt64(t.Milestones.Late),
		TwoMillion:  copyInt64(t.Milestones.TwoMillion),
		FiveMillion: copyInt64(t.Milestones.FiveMillion),
	}
	return &c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var _ storage.RunnerTokenStore = (*RunnerTokenStore)(nil)
