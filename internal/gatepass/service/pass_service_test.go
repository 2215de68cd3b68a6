package service_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/qr"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// ── Create ───────────────────────────────────────────────────────────────────

func TestCreate_RecordsApplication(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")

	p := f.createPass(t, "USER001", "SITE001")

	if !regexp.MustCompile(`^PASS[0-9A-F]{12}$`).MatchString(p.PassID) {
		t.Errorf("unexpected pass id format %q", p.PassID)
	}
	if p.Status != string(store.StatusInProcess) {
		t.Errorf("expected In Process, got %q", p.Status)
	}
	if p.OwnerID != "USER001" || p.SiteID != "SITE001" || p.PurposeID != "PURP001" {
		t.Errorf("unexpected pass fields: %+v", p)
	}
	if p.ApprovedTimestamp != nil || p.ExpiryTimestamp != nil || p.UsedTimestamp != nil {
		t.Error("expected lifecycle timestamps to be unset")
	}
	if p.VisitDateTime != "2025-03-02T10:00:00Z" {
		t.Errorf("unexpected visit time %q", p.VisitDateTime)
	}

	evs := f.auditEvents(t, store.EventApplication)
	if len(evs) != 1 {
		t.Fatalf("expected 1 application event, got %d", len(evs))
	}
	if evs[0].PassID != p.PassID || evs[0].Result != service.ResultSubmitted {
		t.Errorf("unexpected audit event %+v", evs[0])
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")

	cases := []struct {
		name  string
		owner string
		req   types.CreatePassRequest
		kind  service.Kind
	}{
		{"missing site", "USER001", types.CreatePassRequest{PurposeID: "PURP001", VisitDateTime: "2025-03-02T10:00:00Z"}, service.KindValidation},
		{"missing visit", "USER001", types.CreatePassRequest{SiteID: "SITE001", PurposeID: "PURP001"}, service.KindValidation},
		{"bad date", "USER001", types.CreatePassRequest{SiteID: "SITE001", PurposeID: "PURP001", VisitDateTime: "next tuesday"}, service.KindValidation},
		{"unknown site", "USER001", types.CreatePassRequest{SiteID: "SITE999", PurposeID: "PURP001", VisitDateTime: "2025-03-02T10:00:00Z"}, service.KindValidation},
		{"unknown purpose", "USER001", types.CreatePassRequest{SiteID: "SITE001", PurposeID: "PURP999", VisitDateTime: "2025-03-02T10:00:00Z"}, service.KindValidation},
		{"unregistered owner", "NOBODY", types.CreatePassRequest{SiteID: "SITE001", PurposeID: "PURP001", VisitDateTime: "2025-03-02T10:00:00Z"}, service.KindNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svcs.Passes.Create(f.ctx, tc.owner, tc.req)
			wantKind(t, err, tc.kind)
		})
	}

	if n := len(f.auditEvents(t, store.EventApplication)); n != 0 {
		t.Errorf("expected no application events, got %d", n)
	}
}

func TestCreate_NaiveVisitTimeIsUTC(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")

	p, err := f.svcs.Passes.Create(f.ctx, "USER001", types.CreatePassRequest{
		SiteID:        "SITE002",
		PurposeID:     "PURP002",
		VisitDateTime: "2025-03-02T10:00:00",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.VisitDateTime != "2025-03-02T10:00:00Z" {
		t.Errorf("expected UTC visit time, got %q", p.VisitDateTime)
	}
}

// ── Admin decisions ──────────────────────────────────────────────────────────

func TestApprove_SetsApprovalAndExpiry(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.createPass(t, "USER001", "SITE001")

	ttl := 2
	approved, err := f.svcs.Passes.Approve(f.ctx, p.PassID, &ttl)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != string(store.StatusPass) {
		t.Errorf("expected Pass, got %q", approved.Status)
	}

	rec := f.passStatus(t, p.PassID)
	now := f.clock.Now()
	if rec.ApprovedAt == nil || !rec.ApprovedAt.Equal(now) {
		t.Errorf("expected approved_at=%v, got %v", now, rec.ApprovedAt)
	}
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(now.Add(2*time.Hour)) {
		t.Errorf("expected expiry two hours out, got %v", rec.ExpiresAt)
	}

	evs := f.auditEvents(t, store.EventApproval)
	if len(evs) != 1 || evs[0].Detail != "Expiry: 2h" {
		t.Errorf("unexpected approval audit %+v", evs)
	}
}

func TestApprove_DefaultTTL(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.approvedPass(t, "USER001", "SITE001")

	rec := f.passStatus(t, p.PassID)
	if want := f.clock.Now().Add(24 * time.Hour); !rec.ExpiresAt.Equal(want) {
		t.Errorf("expected 24h expiry %v, got %v", want, rec.ExpiresAt)
	}
}

func TestApprove_RejectsNonPositiveTTL(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.createPass(t, "USER001", "SITE001")

	for _, ttl := range []int{0, -3} {
		_, err := f.svcs.Passes.Approve(f.ctx, p.PassID, &ttl)
		wantKind(t, err, service.KindValidation)
	}
	if got := f.passStatus(t, p.PassID).Status; got != store.StatusInProcess {
		t.Errorf("expected pass untouched, got %q", got)
	}
}

func TestDecisions_UnknownPass(t *testing.T) {
	f := newFixture(t)

	_, err := f.svcs.Passes.Approve(f.ctx, "PASSDOESNOTEXIST", nil)
	wantKind(t, err, service.KindNotFound)
	_, err = f.svcs.Passes.Reject(f.ctx, "PASSDOESNOTEXIST", "")
	wantKind(t, err, service.KindNotFound)
	_, err = f.svcs.Passes.Revoke(f.ctx, "PASSDOESNOTEXIST", "")
	wantKind(t, err, service.KindNotFound)
}

func TestReject_DefaultReason(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.createPass(t, "USER001", "SITE001")

	rejected, err := f.svcs.Passes.Reject(f.ctx, p.PassID, "  ")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != string(store.StatusNoPass) {
		t.Errorf("expected No Pass, got %q", rejected.Status)
	}

	evs := f.auditEvents(t, store.EventRejection)
	if len(evs) != 1 || evs[0].Detail != "No reason provided" {
		t.Errorf("unexpected rejection audit %+v", evs)
	}
}

func TestRevoke_LatchesFlag(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.approvedPass(t, "USER001", "SITE001")

	if _, err := f.svcs.Passes.Revoke(f.ctx, p.PassID, "lost badge"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	rec := f.passStatus(t, p.PassID)
	if rec.Status != store.StatusRevoked || !rec.Revoked {
		t.Errorf("expected Revoked with flag, got %q revoked=%v", rec.Status, rec.Revoked)
	}

	// In Process passes cannot be revoked.
	pending := f.createPass(t, "USER001", "SITE001")
	_, err := f.svcs.Passes.Revoke(f.ctx, pending.PassID, "")
	wantKind(t, err, service.KindInvalidTransition)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	terminal := []store.Status{store.StatusNoPass, store.StatusUsed, store.StatusRevoked, store.StatusExpired}

	for _, st := range terminal {
		t.Run(string(st), func(t *testing.T) {
			f := newFixture(t)
			f.registerUser(t, "USER001")

			exp := f.clock.Now().Add(-time.Hour)
			rec := store.PassRecord{
				ID:        "PASSTERMINAL0001",
				OwnerID:   "USER001",
				SiteID:    "SITE001",
				PurposeID: "PURP001",
				Status:    st,
				Used:      st == store.StatusUsed,
				Revoked:   st == store.StatusRevoked,
				ExpiresAt: &exp,
			}
			f.insertPass(t, rec)

			ops := map[string]func() error{
				"approve": func() error { _, err := f.svcs.Passes.Approve(f.ctx, rec.ID, nil); return err },
				"reject":  func() error { _, err := f.svcs.Passes.Reject(f.ctx, rec.ID, ""); return err },
				"revoke":  func() error { _, err := f.svcs.Passes.Revoke(f.ctx, rec.ID, ""); return err },
			}
			for name, op := range ops {
				err := op()
				wantKind(t, err, service.KindInvalidTransition)

				var se *service.Error
				if !errors.As(err, &se) || se.Status() != st {
					t.Errorf("%s: expected error to carry status %q, got %v", name, st, err)
				}
			}

			if got := f.passStatus(t, rec.ID); got.Status != st {
				t.Errorf("expected status to stay %q, got %q", st, got.Status)
			}
		})
	}
}

// ── QR issuance ──────────────────────────────────────────────────────────────

func TestRequestQR_SignsFreshPayload(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.approvedPass(t, "USER001", "SITE001")

	resp, err := f.svcs.Passes.RequestQR(f.ctx, p.PassID, "USER001", "")
	if err != nil {
		t.Fatalf("RequestQR: %v", err)
	}
	if resp.ExpiresIn != 60 {
		t.Errorf("expected expires_in=60, got %d", resp.ExpiresIn)
	}
	if resp.Timestamp != qr.FormatTimestamp(f.clock.Now()) {
		t.Errorf("expected current timestamp, got %q", resp.Timestamp)
	}

	payload, err := qr.Decode(resp.QRPayload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.PassID != p.PassID || payload.Signature != resp.Signature {
		t.Errorf("payload does not match response: %+v vs %+v", payload, resp)
	}

	owner, err := f.stores.Principals.Get(f.ctx, store.KindUser, "USER001")
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	sig, _ := payload.SignatureBytes()
	if !f.signer.Verify(owner.PublicKey, payload.Message(), sig) {
		t.Error("expected signature to verify under the owner's key")
	}

	if got := f.passStatus(t, p.PassID).QRSignature; got != resp.Signature {
		t.Errorf("expected cached signature %q, got %q", resp.Signature, got)
	}
	if n := len(f.auditEvents(t, store.EventQRIssue)); n != 1 {
		t.Errorf("expected 1 qr_issue event, got %d", n)
	}
}

func TestRequestQR_BinaryFormat(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	p := f.approvedPass(t, "USER001", "SITE001")

	resp, err := f.svcs.Passes.RequestQR(f.ctx, p.PassID, "USER001", service.QRFormatBinary)
	if err != nil {
		t.Fatalf("RequestQR: %v", err)
	}
	payload, err := qr.Decode(resp.QRPayload)
	if err != nil {
		t.Fatalf("Decode binary: %v", err)
	}
	if payload.Signature != resp.Signature {
		t.Error("binary payload signature mismatch")
	}

	_, err = f.svcs.Passes.RequestQR(f.ctx, p.PassID, "USER001", "png")
	wantKind(t, err, service.KindValidation)
}

func TestRequestQR_OtherOwnerSeesNotFound(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	f.registerUser(t, "USER002")
	p := f.approvedPass(t, "USER001", "SITE001")

	_, err := f.svcs.Passes.RequestQR(f.ctx, p.PassID, "USER002", "")
	wantKind(t, err, service.KindNotFound)

	_, err = f.svcs.Passes.RequestQR(f.ctx, "PASSMISSING00000", "USER001", "")
	wantKind(t, err, service.KindNotFound)
}

func TestRequestQR_Guards(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")

	pending := f.createPass(t, "USER001", "SITE001")
	_, err := f.svcs.Passes.RequestQR(f.ctx, pending.PassID, "USER001", "")
	wantKind(t, err, service.KindInvalidTransition)

	revoked := f.approvedPass(t, "USER001", "SITE001")
	if _, err := f.svcs.Passes.Revoke(f.ctx, revoked.PassID, ""); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err = f.svcs.Passes.RequestQR(f.ctx, revoked.PassID, "USER001", "")
	wantKind(t, err, service.KindInvalidTransition)

	// Approved but past expiry, sweep not yet run.
	stale := f.approvedPass(t, "USER001", "SITE001")
	f.clock.Advance(25 * time.Hour)
	_, err = f.svcs.Passes.RequestQR(f.ctx, stale.PassID, "USER001", "")
	wantKind(t, err, service.KindInvalidTransition)
	if err.Error() != "Pass has expired" {
		t.Errorf("unexpected message %q", err.Error())
	}

	if n := len(f.auditEvents(t, store.EventQRIssue)); n != 0 {
		t.Errorf("expected no qr_issue events, got %d", n)
	}
}

// ── Listing, expiry and statistics ───────────────────────────────────────────

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	f.registerUser(t, "USER002")

	f.createPass(t, "USER001", "SITE001")
	f.approvedPass(t, "USER001", "SITE002")
	f.createPass(t, "USER002", "SITE002")

	mine, err := f.svcs.Passes.ListMine(f.ctx, "USER001")
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListMine: %d passes, err=%v", len(mine), err)
	}

	pending, err := f.svcs.Passes.ListPending(f.ctx)
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListPending: %d passes, err=%v", len(pending), err)
	}

	site2, err := f.svcs.Passes.List(f.ctx, "", "SITE002")
	if err != nil || len(site2) != 2 {
		t.Fatalf("List site: %d passes, err=%v", len(site2), err)
	}

	approved, err := f.svcs.Passes.List(f.ctx, "Pass", "SITE002")
	if err != nil || len(approved) != 1 {
		t.Fatalf("List status+site: %d passes, err=%v", len(approved), err)
	}

	_, err = f.svcs.Passes.List(f.ctx, "Maybe", "")
	wantKind(t, err, service.KindValidation)
}

func TestExpireDue_MarksOnlyDuePasses(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")

	short := 1
	p1 := f.createPass(t, "USER001", "SITE001")
	if _, err := f.svcs.Passes.Approve(f.ctx, p1.PassID, &short); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	p2 := f.approvedPass(t, "USER001", "SITE001")

	f.clock.Advance(2 * time.Hour)

	n, err := f.svcs.Passes.ExpireDue(f.ctx)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired, got %d", n)
	}
	if got := f.passStatus(t, p1.PassID).Status; got != store.StatusExpired {
		t.Errorf("expected p1 Expired, got %q", got)
	}
	if got := f.passStatus(t, p2.PassID).Status; got != store.StatusPass {
		t.Errorf("expected p2 still Pass, got %q", got)
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "USER001")
	f.registerGate(t, "GATE001", "SITE001")

	f.createPass(t, "USER001", "SITE001")
	f.approvedPass(t, "USER001", "SITE001")
	revoked := f.approvedPass(t, "USER001", "SITE002")
	if _, err := f.svcs.Passes.Revoke(f.ctx, revoked.PassID, ""); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	stats, err := f.svcs.Passes.Statistics(f.ctx, "")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalUsers != 1 || stats.TotalGates != 1 || stats.TotalPasses != 3 {
		t.Errorf("unexpected totals %+v", stats)
	}
	if stats.ByStatus["Pass"] != 1 || stats.ByStatus["In Process"] != 1 || stats.ByStatus["Revoked"] != 1 {
		t.Errorf("unexpected status counts %+v", stats.ByStatus)
	}
	want := types.SiteStatistics{Approved: 1, Requested: 1}
	if stats.BySite["SITE001"] != want {
		t.Errorf("unexpected SITE001 stats %+v", stats.BySite["SITE001"])
	}
	if stats.BySite["SITE002"].Revoked != 1 {
		t.Errorf("unexpected SITE002 stats %+v", stats.BySite["SITE002"])
	}
	if len(stats.BySite) != 4 {
		t.Errorf("expected every catalog site, got %d", len(stats.BySite))
	}

	site, err := f.svcs.Passes.Statistics(f.ctx, "SITE002")
	if err != nil {
		t.Fatalf("Statistics(site): %v", err)
	}
	if site.SiteID != "SITE002" || site.BySite != nil {
		t.Errorf("expected site-scoped stats, got %+v", site)
	}
	if site.TotalPasses != 3 || site.ByStatus["Revoked"] != 1 || site.ByStatus["Pass"] != 0 {
		t.Errorf("unexpected site counts %+v", site)
	}
}
