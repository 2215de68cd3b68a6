package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

// AuditStore is an in-memory append-only event log.
// It is intended for use in tests and dev environments.
type AuditStore struct {
	mu     sync.Mutex
	nextID int64
	events []store.AuditEvent
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(_ context.Context, ev store.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	s.events = append(s.events, ev)
	return nil
}

func (s *AuditStore) List(_ context.Context, f store.AuditFilter) ([]store.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.AuditEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if f.Result != "" && ev.Result != f.Result {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *AuditStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var n int64
	for _, ev := range s.events {
		if ev.At.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return n, nil
}

// Events returns a copy of all recorded events in append order.  Test-only helper.
func (s *AuditStore) Events() []store.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}
