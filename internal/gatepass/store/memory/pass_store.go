package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

type passEntry struct {
	mu  sync.Mutex
	rec store.PassRecord
}

// PassStore keeps passes in a map. Each pass has its own mutex so updates
// of different passes never contend.
type PassStore struct {
	mu     sync.RWMutex
	passes map[string]*passEntry
}

func NewPassStore() *PassStore {
	return &PassStore{passes: make(map[string]*passEntry)}
}

func (s *PassStore) Create(_ context.Context, p store.PassRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.passes[p.ID]; ok {
		return store.ErrConflict
	}
	s.passes[p.ID] = &passEntry{rec: clonePass(p)}
	return nil
}

func (s *PassStore) Get(_ context.Context, id string) (store.PassRecord, error) {
	e := s.entry(id)
	if e == nil {
		return store.PassRecord{}, store.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePass(e.rec), nil
}

func (s *PassStore) List(_ context.Context, f store.PassFilter) ([]store.PassRecord, error) {
	out := make([]store.PassRecord, 0)
	for _, e := range s.snapshot() {
		e.mu.Lock()
		rec := clonePass(e.rec)
		e.mu.Unlock()

		if f.OwnerID != "" && rec.OwnerID != f.OwnerID {
			continue
		}
		if f.SiteID != "" && rec.SiteID != f.SiteID {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PassStore) Update(_ context.Context, id string, fn store.UpdateFn) (store.PassRecord, error) {
	e := s.entry(id)
	if e == nil {
		return store.PassRecord{}, store.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := clonePass(e.rec)
	if err := fn(&working); err != nil {
		return clonePass(e.rec), err
	}
	working.ID = e.rec.ID
	e.rec = working
	return clonePass(working), nil
}

func (s *PassStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if e.rec.Status == store.StatusPass && !e.rec.Used && e.rec.Expired(now) {
			e.rec.Status = store.StatusExpired
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

func (s *PassStore) CountByStatus(_ context.Context, siteID string) (map[store.Status]int64, error) {
	counts := make(map[store.Status]int64)
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if siteID == "" || e.rec.SiteID == siteID {
			counts[e.rec.Status]++
		}
		e.mu.Unlock()
	}
	return counts, nil
}

func (s *PassStore) entry(id string) *passEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes[id]
}

func (s *PassStore) snapshot() []*passEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*passEntry, 0, len(s.passes))
	for _, e := range s.passes {
		out = append(out, e)
	}
	return out
}

// clonePass copies the timestamp pointers so callers cannot alias stored state.
func clonePass(p store.PassRecord) store.PassRecord {
	p.ApprovedAt = cloneTime(p.ApprovedAt)
	p.UsedAt = cloneTime(p.UsedAt)
	p.ExpiresAt = cloneTime(p.ExpiresAt)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
