package service_test

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/catalog"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/qr"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store/memory"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx    context.Context
	stores store.Stores
	signer *signing.Ed25519Signer
	tokens *auth.Issuer
	svcs   *service.Services
	clock  *fakeClock
}

const testSecret = "demo123"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stores := memory.New()
	signer := signing.NewEd25519Signer(signing.NewMemoryKeyStore())
	tokens := auth.NewIssuer([]byte("test-jwt-secret"), time.Hour)
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	svcs := service.New(stores, signer, catalog.Default(), tokens, service.Options{
		Pass:        service.PassConfig{QRValidity: time.Minute, DefaultTTLHours: 24},
		Scan:        service.ScanConfig{QRValidity: time.Minute},
		LoginSecret: testSecret,
	}, silentLogger())
	svcs.Passes.WithClock(clock.Now)
	svcs.Scans.WithClock(clock.Now)

	return &fixture{
		ctx:    context.Background(),
		stores: stores,
		signer: signer,
		tokens: tokens,
		svcs:   svcs,
		clock:  clock,
	}
}

func (f *fixture) registerUser(t *testing.T, id string) {
	t.Helper()
	if _, err := f.svcs.Principals.RegisterUser(f.ctx, types.RegisterUserRequest{UserID: id}); err != nil {
		t.Fatalf("RegisterUser(%s): %v", id, err)
	}
}

func (f *fixture) registerGate(t *testing.T, id, site string) {
	t.Helper()
	_, err := f.svcs.Principals.RegisterGate(f.ctx, types.RegisterGateRequest{
		TabletID:    id,
		GPSLocation: "22.3193,114.1694",
		SiteID:      site,
	})
	if err != nil {
		t.Fatalf("RegisterGate(%s): %v", id, err)
	}
}

func (f *fixture) createPass(t *testing.T, owner, site string) types.Pass {
	t.Helper()
	p, err := f.svcs.Passes.Create(f.ctx, owner, types.CreatePassRequest{
		SiteID:        site,
		PurposeID:     "PURP001",
		VisitDateTime: "2025-03-02T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func (f *fixture) approvedPass(t *testing.T, owner, site string) types.Pass {
	t.Helper()
	p := f.createPass(t, owner, site)
	approved, err := f.svcs.Passes.Approve(f.ctx, p.PassID, nil)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	return approved
}

// insertPass stores a pass record directly, bypassing the lifecycle.
func (f *fixture) insertPass(t *testing.T, rec store.PassRecord) {
	t.Helper()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = f.clock.Now()
	}
	if rec.VisitAt.IsZero() {
		rec.VisitAt = f.clock.Now()
	}
	if err := f.stores.Passes.Create(f.ctx, rec); err != nil {
		t.Fatalf("insert pass: %v", err)
	}
}

func (f *fixture) requestQR(t *testing.T, passID, owner string) string {
	t.Helper()
	resp, err := f.svcs.Passes.RequestQR(f.ctx, passID, owner, "")
	if err != nil {
		t.Fatalf("RequestQR: %v", err)
	}
	return resp.QRPayload
}

// signPayload builds a payload signed with the user's key over an
// arbitrary timestamp string.
func (f *fixture) signPayload(t *testing.T, userID, passID, timestamp string) string {
	t.Helper()
	sig, err := f.signer.Sign(f.ctx, "user_"+userID, qr.Message(passID, timestamp))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := qr.EncodeJSON(qr.Payload{PassID: passID, Timestamp: timestamp, Signature: hex.EncodeToString(sig)})
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	return raw
}

func (f *fixture) passStatus(t *testing.T, id string) store.PassRecord {
	t.Helper()
	p, err := f.stores.Passes.Get(f.ctx, id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return p
}

func (f *fixture) auditEvents(t *testing.T, kind store.EventKind) []store.AuditEvent {
	t.Helper()
	evs, err := f.stores.Audit.List(f.ctx, store.AuditFilter{Kind: kind})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	return evs
}

func wantKind(t *testing.T, err error, kind service.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := service.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
