package service_test

import (
	"testing"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// ── User login ───────────────────────────────────────────────────────────────

func TestUserLogin_RegistersOnFirstLogin(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svcs.Logins.UserLogin(f.ctx, types.LoginRequest{
		UserID: "USER001", Password: testSecret, DeviceID: "DEVICE001",
	})
	if err != nil {
		t.Fatalf("UserLogin: %v", err)
	}
	if resp.User == nil || resp.User.ID != "USER001" || resp.User.DeviceID != "DEVICE001" {
		t.Errorf("unexpected user %+v", resp.User)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expected expires_in=3600, got %d", resp.ExpiresIn)
	}

	id, err := f.tokens.Parse(resp.Token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Subject != "USER001" || id.Role != auth.RoleUser {
		t.Errorf("unexpected identity %+v", id)
	}

	first, err := f.stores.Principals.Get(f.ctx, store.KindUser, "USER001")
	if err != nil {
		t.Fatalf("expected user registered: %v", err)
	}

	// A second login reuses the existing key.
	if _, err := f.svcs.Logins.UserLogin(f.ctx, types.LoginRequest{UserID: "USER001", Password: testSecret}); err != nil {
		t.Fatalf("second UserLogin: %v", err)
	}
	again, _ := f.stores.Principals.Get(f.ctx, store.KindUser, "USER001")
	if again.PublicKey != first.PublicKey {
		t.Error("expected public key to survive a second login")
	}

	if n := len(f.auditEvents(t, store.EventRegistration)); n != 1 {
		t.Errorf("expected 1 registration event, got %d", n)
	}
	if n := len(f.auditEvents(t, store.EventLogin)); n != 2 {
		t.Errorf("expected 2 login events, got %d", n)
	}
}

func TestUserLogin_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.svcs.Logins.UserLogin(f.ctx, types.LoginRequest{UserID: "USER001"})
	wantKind(t, err, service.KindValidation)

	_, err = f.svcs.Logins.UserLogin(f.ctx, types.LoginRequest{UserID: "USER001", Password: "wrong"})
	wantKind(t, err, service.KindAuthentication)
	if err.Error() != "Invalid credentials" {
		t.Errorf("unexpected message %q", err.Error())
	}

	if _, err := f.stores.Principals.Get(f.ctx, store.KindUser, "USER001"); err == nil {
		t.Error("expected no user created on failed login")
	}

	evs := f.auditEvents(t, store.EventLogin)
	if len(evs) != 1 || evs[0].Result != service.ResultFailed {
		t.Errorf("expected one failed login event, got %+v", evs)
	}
}

// ── Gate login ───────────────────────────────────────────────────────────────

func TestGateLogin(t *testing.T) {
	f := newFixture(t)
	f.registerGate(t, "GATE001", "SITE001")

	t.Run("exact location", func(t *testing.T) {
		resp, err := f.svcs.Logins.GateLogin(f.ctx, types.GateLoginRequest{
			TabletID: "GATE001", Password: testSecret, GPSLocation: "22.3193,114.1694",
		})
		if err != nil {
			t.Fatalf("GateLogin: %v", err)
		}
		if resp.Gate == nil || resp.Gate.SiteID != "SITE001" {
			t.Errorf("unexpected gate %+v", resp.Gate)
		}
		id, err := f.tokens.Parse(resp.Token)
		if err != nil || id.Role != auth.RoleGate || id.Subject != "GATE001" {
			t.Errorf("unexpected identity %+v (%v)", id, err)
		}
	})

	t.Run("within tolerance", func(t *testing.T) {
		_, err := f.svcs.Logins.GateLogin(f.ctx, types.GateLoginRequest{
			TabletID: "GATE001", Password: testSecret, GPSLocation: "22.3250,114.1650",
		})
		if err != nil {
			t.Fatalf("GateLogin: %v", err)
		}
	})

	t.Run("too far", func(t *testing.T) {
		_, err := f.svcs.Logins.GateLogin(f.ctx, types.GateLoginRequest{
			TabletID: "GATE001", Password: testSecret, GPSLocation: "22.5000,114.1694",
		})
		wantKind(t, err, service.KindForbidden)
	})

	t.Run("unregistered", func(t *testing.T) {
		_, err := f.svcs.Logins.GateLogin(f.ctx, types.GateLoginRequest{TabletID: "GATE404", Password: testSecret})
		wantKind(t, err, service.KindNotFound)
	})

	t.Run("bad secret", func(t *testing.T) {
		_, err := f.svcs.Logins.GateLogin(f.ctx, types.GateLoginRequest{TabletID: "GATE001", Password: "nope"})
		wantKind(t, err, service.KindAuthentication)
	})
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")

	me, err := f.svcs.Logins.Me(f.ctx, auth.Identity{Subject: "USER001", Role: auth.RoleUser})
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Role != "user" || me.Principal.ID != "USER001" || me.Principal.PublicKey == "" {
		t.Errorf("unexpected me %+v", me)
	}

	admin, err := f.svcs.Logins.Me(f.ctx, auth.Identity{Subject: "ops", Role: auth.RoleAdmin})
	if err != nil || admin.Principal.ID != "ops" {
		t.Errorf("unexpected admin me %+v (%v)", admin, err)
	}

	_, err = f.svcs.Logins.Me(f.ctx, auth.Identity{Subject: "GATE404", Role: auth.RoleGate})
	wantKind(t, err, service.KindNotFound)
}
