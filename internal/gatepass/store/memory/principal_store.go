package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

type principalKey struct {
	kind store.PrincipalKind
	id   string
}

type PrincipalStore struct {
	mu         sync.RWMutex
	principals map[principalKey]store.PrincipalRecord
}

func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{principals: make(map[principalKey]store.PrincipalRecord)}
}

func (s *PrincipalStore) Create(_ context.Context, p store.PrincipalRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	k := principalKey{kind: p.Kind, id: p.ID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[k]; ok {
		return store.ErrConflict
	}
	s.principals[k] = p
	return nil
}

func (s *PrincipalStore) Get(_ context.Context, kind store.PrincipalKind, id string) (store.PrincipalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[principalKey{kind: kind, id: id}]
	if !ok {
		return store.PrincipalRecord{}, store.ErrNotFound
	}
	return p, nil
}

func (s *PrincipalStore) List(_ context.Context, kind store.PrincipalKind) ([]store.PrincipalRecord, error) {
	s.mu.RLock()
	out := make([]store.PrincipalRecord, 0)
	for k, p := range s.principals {
		if k.kind == kind {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *PrincipalStore) Count(_ context.Context, kind store.PrincipalKind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for k := range s.principals {
		if k.kind == kind {
			n++
		}
	}
	return n, nil
}
