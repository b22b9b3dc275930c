package store

import (
	"context"
	"strings"
	"sync"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

// MemoryStore is a concurrency-safe in-memory Store. Records are copied on the
// way in and out so callers never share maps with it.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]types.Leaderboard
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]types.Leaderboard),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (types.Leaderboard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lb, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return lb.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, lb types.Leaderboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = lb.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) (map[string]types.Leaderboard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.Leaderboard)
	for key, lb := range s.data {
		if strings.HasPrefix(key, prefix) {
			out[key] = lb.Clone()
		}
	}
	return out, nil
}
