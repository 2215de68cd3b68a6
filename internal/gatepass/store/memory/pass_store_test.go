package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store/memory"
)

func approvedPass(id string, expiresAt time.Time) store.PassRecord {
	approved := expiresAt.Add(-24 * time.Hour)
	return store.PassRecord{
		ID:         id,
		OwnerID:    "USER001",
		SiteID:     "SITE001",
		PurposeID:  "PURP001",
		VisitAt:    approved,
		Status:     store.StatusPass,
		CreatedAt:  approved,
		ApprovedAt: &approved,
		ExpiresAt:  &expiresAt,
	}
}

// ── Update ───────────────────────────────────────────────────────────────────

func TestPassStore_Update_ErrorLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	if err := s.Create(ctx, approvedPass("P1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sentinel := errors.New("abort")
	_, err := s.Update(ctx, "P1", func(p *store.PassRecord) error {
		p.Status = store.StatusUsed
		p.Used = true
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	got, err := s.Get(ctx, "P1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusPass || got.Used {
		t.Errorf("record mutated by aborted update: %+v", got)
	}
}

func TestPassStore_Update_UnknownPass(t *testing.T) {
	s := memory.NewPassStore()
	_, err := s.Update(context.Background(), "missing", func(*store.PassRecord) error { return nil })
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPassStore_Update_SerializesSamePass(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	if err := s.Create(ctx, approvedPass("P1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	errUsed := errors.New("already used")
	const workers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "P1", func(p *store.PassRecord) error {
				if p.Used {
					return errUsed
				}
				p.Used = true
				p.Status = store.StatusUsed
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly 1 successful update, got %d", wins)
	}
}

// ── ExpireDue ────────────────────────────────────────────────────────────────

func TestPassStore_ExpireDue_SkipsUsedAndFuture(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	now := time.Now().UTC()

	due := approvedPass("DUE", now.Add(-time.Minute))
	future := approvedPass("FUTURE", now.Add(time.Hour))
	used := approvedPass("USED", now.Add(-time.Minute))
	used.Used = true
	used.Status = store.StatusUsed

	for _, p := range []store.PassRecord{due, future, used} {
		if err := s.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", p.ID, err)
		}
	}

	n, err := s.ExpireDue(ctx, now)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	want := map[string]store.Status{
		"DUE":    store.StatusExpired,
		"FUTURE": store.StatusPass,
		"USED":   store.StatusUsed,
	}
	for id, st := range want {
		got, _ := s.Get(ctx, id)
		if got.Status != st {
			t.Errorf("%s: expected %q, got %q", id, st, got.Status)
		}
	}
}

// ── List ─────────────────────────────────────────────────────────────────────

func TestPassStore_List_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	base := time.Now().UTC()

	a := approvedPass("A", base.Add(time.Hour))
	a.CreatedAt = base.Add(-2 * time.Minute)
	b := approvedPass("B", base.Add(time.Hour))
	b.CreatedAt = base.Add(-time.Minute)
	c := approvedPass("C", base.Add(time.Hour))
	c.SiteID = "SITE002"
	c.Status = store.StatusInProcess

	for _, p := range []store.PassRecord{a, b, c} {
		if err := s.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := s.List(ctx, store.PassFilter{SiteID: "SITE001"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "B" || got[1].ID != "A" {
		t.Fatalf("expected [B A], got %+v", got)
	}

	pending, _ := s.List(ctx, store.PassFilter{Status: store.StatusInProcess})
	if len(pending) != 1 || pending[0].ID != "C" {
		t.Fatalf("expected [C], got %+v", pending)
	}
}

func TestPassStore_Create_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	p := approvedPass("P1", time.Now().Add(time.Hour))
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, p); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
