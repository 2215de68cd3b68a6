package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store/sqlite"
)

// ── Create / Get ─────────────────────────────────────────────────────────────

func TestPassStore_CreateGet_RoundTrip(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	want := samplePass("PASSAAAA00000001", time.Now().Add(time.Hour))
	want.DeviceID = "phone-1"
	if err := s.Create(ctx, want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.OwnerID != want.OwnerID || got.SiteID != want.SiteID || got.PurposeID != want.PurposeID {
		t.Errorf("identity fields mismatch: %+v", got)
	}
	if got.Status != store.StatusPass {
		t.Errorf("expected status Pass, got %q", got.Status)
	}
	if got.DeviceID != "phone-1" {
		t.Errorf("expected device_id phone-1, got %q", got.DeviceID)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*want.ExpiresAt) {
		t.Errorf("expires_at mismatch: got %v want %v", got.ExpiresAt, want.ExpiresAt)
	}
	if got.UsedAt != nil {
		t.Errorf("expected used_at nil, got %v", got.UsedAt)
	}
}

func TestPassStore_Get_NotFound(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPassStore_Create_Duplicate(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	p := samplePass("P1", time.Now().Add(time.Hour))
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, p); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// ── Update ───────────────────────────────────────────────────────────────────

func TestPassStore_Update_Persists(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if err := s.Create(ctx, samplePass("P1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	usedAt := time.Now().UTC().Truncate(time.Millisecond)
	updated, err := s.Update(ctx, "P1", func(p *store.PassRecord) error {
		p.Used = true
		p.UsedAt = &usedAt
		p.Status = store.StatusUsed
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != store.StatusUsed {
		t.Errorf("returned record not updated: %+v", updated)
	}

	got, _ := s.Get(ctx, "P1")
	if !got.Used || got.Status != store.StatusUsed {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.UsedAt == nil || !got.UsedAt.Equal(usedAt) {
		t.Errorf("used_at mismatch: %v", got.UsedAt)
	}
}

func TestPassStore_Update_AbortWritesNothing(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if err := s.Create(ctx, samplePass("P1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sentinel := errors.New("reject")
	_, err := s.Update(ctx, "P1", func(p *store.PassRecord) error {
		p.Revoked = true
		p.Status = store.StatusRevoked
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	got, _ := s.Get(ctx, "P1")
	if got.Revoked || got.Status != store.StatusPass {
		t.Errorf("aborted update leaked: %+v", got)
	}
}

func TestPassStore_Update_AtMostOneWinner(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if err := s.Create(ctx, samplePass("P1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	errUsed := errors.New("used")
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
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
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins.Load())
	}
}

// ── ExpireDue / CountByStatus ────────────────────────────────────────────────

func TestPassStore_ExpireDue(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	now := time.Now().UTC()

	used := samplePass("USED", now.Add(-time.Minute))
	used.Used = true
	used.Status = store.StatusUsed
	pending := samplePass("PENDING", now.Add(-time.Minute))
	pending.Status = store.StatusInProcess
	pending.ApprovedAt = nil

	for _, p := range []store.PassRecord{
		samplePass("DUE", now.Add(-time.Minute)),
		samplePass("LATER", now.Add(time.Hour)),
		used,
		pending,
	} {
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

	counts, err := s.CountByStatus(ctx, "")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[store.StatusExpired] != 1 || counts[store.StatusPass] != 1 ||
		counts[store.StatusUsed] != 1 || counts[store.StatusInProcess] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	other, _ := s.CountByStatus(ctx, "SITE999")
	if len(other) != 0 {
		t.Errorf("expected no counts for unknown site, got %v", other)
	}
}

func TestPassStore_List_Filter(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewPassStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	a := samplePass("A", time.Now().Add(time.Hour))
	b := samplePass("B", time.Now().Add(time.Hour))
	b.OwnerID = "USER002"
	b.CreatedAt = a.CreatedAt.Add(time.Second)

	for _, p := range []store.PassRecord{a, b} {
		if err := s.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := s.List(ctx, store.PassFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != "B" {
		t.Fatalf("expected newest first [B A], got %+v", all)
	}

	mine, _ := s.List(ctx, store.PassFilter{OwnerID: "USER001"})
	if len(mine) != 1 || mine[0].ID != "A" {
		t.Fatalf("expected [A], got %+v", mine)
	}
}
