package service

import (
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func passToType(p store.PassRecord) types.Pass {
	return types.Pass{
		PassID:            p.ID,
		OwnerID:           p.OwnerID,
		SiteID:            p.SiteID,
		PurposeID:         p.PurposeID,
		VisitDateTime:     formatTime(p.VisitAt),
		Status:            string(p.Status),
		UsedFlag:          p.Used,
		RevokedFlag:       p.Revoked,
		CreatedTimestamp:  formatTime(p.CreatedAt),
		ApprovedTimestamp: formatTimePtr(p.ApprovedAt),
		UsedTimestamp:     formatTimePtr(p.UsedAt),
		ExpiryTimestamp:   formatTimePtr(p.ExpiresAt),
		DeviceID:          p.DeviceID,
	}
}

func passesToType(ps []store.PassRecord) []types.Pass {
	out := make([]types.Pass, 0, len(ps))
	for _, p := range ps {
		out = append(out, passToType(p))
	}
	return out
}

func principalToType(p store.PrincipalRecord) types.Principal {
	return types.Principal{
		ID:          p.ID,
		Kind:        string(p.Kind),
		PublicKey:   p.PublicKey,
		KeyID:       signing.KeyID(p.PublicKey),
		DeviceID:    p.DeviceID,
		GPSLocation: p.GPSLocation,
		SiteID:      p.SiteID,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

func auditToType(ev store.AuditEvent) types.AuditEvent {
	return types.AuditEvent{
		ID:        ev.ID,
		Timestamp: formatTime(ev.At),
		EventType: string(ev.Kind),
		UserID:    ev.UserID,
		GateID:    ev.GateID,
		PassID:    ev.PassID,
		Result:    ev.Result,
		Details:   ev.Detail,
	}
}
