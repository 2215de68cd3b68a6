package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

type StateStore struct {
	mu   sync.RWMutex
	data map[string]store.StateEntry
}

func NewStateStore() *StateStore {
	return &StateStore{data: make(map[string]store.StateEntry)}
}

func (s *StateStore) Get(_ context.Context, key string) (store.StateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok {
		return store.StateEntry{}, store.ErrNotFound
	}
	return e, nil
}

func (s *StateStore) Set(_ context.Context, key, value string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = store.StateEntry{Key: key, Value: value, UpdatedAt: at}
	return nil
}

func (s *StateStore) List(_ context.Context, prefix string) ([]store.StateEntry, error) {
	s.mu.RLock()
	out := make([]store.StateEntry, 0)
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
