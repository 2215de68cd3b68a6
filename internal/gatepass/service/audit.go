package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// Audit results that are not scan codes.
const (
	ResultSuccess   = "SUCCESS"
	ResultFailed    = "FAILED"
	ResultSubmitted = "SUBMITTED"
	ResultApproved  = "APPROVED"
	ResultRejected  = "REJECTED"
	ResultRevoked   = "REVOKED"
	ResultIssued    = "ISSUED"
	ResultCreated   = "CREATED"
)

// AuditLog records tagged events. Writes are best effort: a failed write is
// logged and never fails the operation being audited.
type AuditLog struct {
	store  store.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLog(st store.AuditStore, logger *slog.Logger) *AuditLog {
	return &AuditLog{store: st, logger: logger, now: time.Now}
}

func (a *AuditLog) Record(ctx context.Context, ev store.AuditEvent) {
	if ev.At.IsZero() {
		ev.At = a.now().UTC()
	}

	// The audited operation has already happened; a cancelled request must
	// not drop its record.
	ctx = context.WithoutCancel(ctx)

	if err := a.store.Append(ctx, ev); err != nil {
		a.logger.Error("audit write failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("result", ev.Result),
			slog.String("pass_id", ev.PassID),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.Debug("audit",
		slog.String("kind", string(ev.Kind)),
		slog.String("result", ev.Result),
		slog.String("detail", ev.Detail),
	)
}

// List returns the newest events first, optionally narrowed to one event
// type and one result (for example qr_issue/ISSUED or scan/INVALID_SIGNATURE).
// limit <= 0 means the default of 100; larger values are capped at 1000.
func (a *AuditLog) List(ctx context.Context, limit int, eventType, result string) ([]types.AuditEvent, error) {
	kind := store.EventKind(strings.TrimSpace(eventType))
	if kind != "" && !kind.Valid() {
		return nil, NewValidationError(fmt.Sprintf("unknown event_type %q", eventType))
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	evs, err := a.store.List(ctx, store.AuditFilter{
		Kind:   kind,
		Result: strings.ToUpper(strings.TrimSpace(result)),
		Limit:  limit,
	})
	if err != nil {
		return nil, WrapInternalError(err, "listing audit events")
	}

	out := make([]types.AuditEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, auditToType(ev))
	}
	return out, nil
}

func (a *AuditLog) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return a.store.PruneOlderThan(ctx, cutoff)
}

// ── Event constructors ──────────────────────────────────────────────────────

func userLoginEvent(userID string, ok bool, detail string) store.AuditEvent {
	return store.AuditEvent{Kind: store.EventLogin, UserID: userID, Result: successOrFailure(ok), Detail: detail}
}

func gateLoginEvent(gateID string, ok bool, detail string) store.AuditEvent {
	return store.AuditEvent{Kind: store.EventLogin, GateID: gateID, Result: successOrFailure(ok), Detail: detail}
}

func registrationEvent(p store.PrincipalRecord) store.AuditEvent {
	ev := store.AuditEvent{Kind: store.EventRegistration, Result: ResultCreated}
	switch p.Kind {
	case store.KindGate:
		ev.GateID = p.ID
		ev.Detail = fmt.Sprintf("Site: %s, GPS: %s", p.SiteID, p.GPSLocation)
	default:
		ev.UserID = p.ID
		ev.Detail = fmt.Sprintf("Device: %s", p.DeviceID)
	}
	return ev
}

func applicationEvent(p store.PassRecord) store.AuditEvent {
	return store.AuditEvent{
		Kind:   store.EventApplication,
		UserID: p.OwnerID,
		PassID: p.ID,
		Result: ResultSubmitted,
		Detail: fmt.Sprintf("Site: %s, Purpose: %s", p.SiteID, p.PurposeID),
	}
}

func approvalEvent(p store.PassRecord, ttlHours int) store.AuditEvent {
	return store.AuditEvent{
		Kind:   store.EventApproval,
		UserID: p.OwnerID,
		PassID: p.ID,
		Result: ResultApproved,
		Detail: fmt.Sprintf("Expiry: %dh", ttlHours),
	}
}

func rejectionEvent(p store.PassRecord, reason string) store.AuditEvent {
	return store.AuditEvent{Kind: store.EventRejection, UserID: p.OwnerID, PassID: p.ID, Result: ResultRejected, Detail: reason}
}

func revokeEvent(p store.PassRecord, reason string) store.AuditEvent {
	return store.AuditEvent{Kind: store.EventRevoke, UserID: p.OwnerID, PassID: p.ID, Result: ResultRevoked, Detail: reason}
}

func qrIssueEvent(p store.PassRecord, timestamp string) store.AuditEvent {
	return store.AuditEvent{
		Kind:   store.EventQRIssue,
		UserID: p.OwnerID,
		PassID: p.ID,
		Result: ResultIssued,
		Detail: "Timestamp: " + timestamp,
	}
}

// scanEvent records the outcome of one scan. code is one of the
// types.Code* values.
func scanEvent(gateID, passID, userID, code, detail string) store.AuditEvent {
	return store.AuditEvent{
		Kind:   store.EventScan,
		GateID: gateID,
		PassID: passID,
		UserID: userID,
		Result: code,
		Detail: detail,
	}
}

// pauseEvent: an empty siteID means the global flag.
func pauseEvent(siteID string, paused bool) store.AuditEvent {
	verb := "RESUMED"
	if paused {
		verb = "PAUSED"
	}
	if siteID == "" {
		return store.AuditEvent{Kind: store.EventPause, Result: "SYSTEM_" + verb, Detail: "Global system pause toggled"}
	}
	return store.AuditEvent{Kind: store.EventPause, Result: "SITE_" + verb, Detail: fmt.Sprintf("Site %s pause toggled", siteID)}
}

func successOrFailure(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailed
}
