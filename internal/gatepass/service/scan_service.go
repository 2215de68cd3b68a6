package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/qr"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

type ScanConfig struct {
	// QRValidity is the maximum age of a QR timestamp.
	QRValidity time.Duration

	// StrictTimestamps rejects payloads whose timestamp cannot be parsed.
	// When false such payloads skip the freshness check.
	StrictTimestamps bool
}

// ScanService validates QR payloads presented at gates and consumes the
// pass on success.
type ScanService struct {
	passes     store.PassStore
	principals *PrincipalRegistry
	signer     signing.Service
	pauses     *PauseRegistry
	audit      *AuditLog
	logger     *slog.Logger
	cfg        ScanConfig
	now        func() time.Time
}

func NewScanService(
	passes store.PassStore,
	principals *PrincipalRegistry,
	signer signing.Service,
	pauses *PauseRegistry,
	audit *AuditLog,
	cfg ScanConfig,
	logger *slog.Logger,
) *ScanService {
	if cfg.QRValidity <= 0 {
		cfg.QRValidity = defaultQRValidity
	}
	return &ScanService{
		passes:     passes,
		principals: principals,
		signer:     signer,
		pauses:     pauses,
		audit:      audit,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *ScanService) WithClock(now func() time.Time) *ScanService {
	s.now = now
	return s
}

// denial is a negative scan outcome.
type denial struct {
	result string
	code   string
	reason string
	detail string
}

func (d *denial) Error() string { return d.reason }

func deny(code, reason, detail string) *denial {
	return &denial{result: types.ResultNoPass, code: code, reason: reason, detail: detail}
}

// Scan runs the gate check for one payload. A rejected pass is a normal
// result; errors are reserved for an unknown gate and infrastructure
// failures. Only a fully successful scan changes the pass.
func (s *ScanService) Scan(ctx context.Context, gateID, raw string) (types.ScanResponse, error) {
	gateID = strings.TrimSpace(gateID)
	if _, err := s.principals.Get(ctx, store.KindGate, gateID); err != nil {
		if KindOf(err) == KindNotFound {
			return types.ScanResponse{}, NewAuthenticationError("Invalid or expired token")
		}
		return types.ScanResponse{}, err
	}

	payload, err := qr.Decode(raw)
	if err != nil {
		return s.reject(ctx, gateID, "", "", deny(types.CodeInvalidFormat, "Invalid QR format", err.Error())), nil
	}
	passID := payload.PassID

	pass, err := s.passes.Get(ctx, passID)
	if errors.Is(err, store.ErrNotFound) {
		return s.reject(ctx, gateID, passID, "", deny(types.CodePassNotFound, "Pass not found", "Pass not found in database")), nil
	}
	if err != nil {
		return types.ScanResponse{}, WrapInternalError(err, "loading pass")
	}

	owner, err := s.principals.store.Get(ctx, store.KindUser, pass.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		return s.reject(ctx, gateID, passID, pass.OwnerID,
			deny(types.CodeUserNotFound, "User not found", fmt.Sprintf("User %s not found", pass.OwnerID))), nil
	}
	if err != nil {
		return types.ScanResponse{}, WrapInternalError(err, "loading pass owner")
	}

	sig, err := payload.SignatureBytes()
	if err != nil || !s.signer.Verify(owner.PublicKey, payload.Message(), sig) {
		return s.reject(ctx, gateID, passID, pass.OwnerID,
			deny(types.CodeInvalidSignature, "Invalid signature", "Signature verification failed")), nil
	}

	if d := s.checkFreshness(payload.Timestamp); d != nil {
		return s.reject(ctx, gateID, passID, pass.OwnerID, d), nil
	}

	paused, err := s.pauses.GlobalPaused(ctx)
	if err != nil {
		return types.ScanResponse{}, WrapInternalError(err, "reading global pause")
	}
	if paused {
		return s.reject(ctx, gateID, passID, pass.OwnerID,
			deny(types.CodeSystemPaused, "System is paused", "Global pause active")), nil
	}

	paused, err = s.pauses.SitePaused(ctx, pass.SiteID)
	if err != nil {
		return types.ScanResponse{}, WrapInternalError(err, "reading site pause")
	}
	if paused {
		return s.reject(ctx, gateID, passID, pass.OwnerID,
			deny(types.CodeSitePaused, "Site is paused", fmt.Sprintf("Site %s paused", pass.SiteID))), nil
	}

	used, err := s.passes.Update(ctx, passID, func(p *store.PassRecord) error {
		now := s.now().UTC()
		switch {
		case p.Used:
			return deny(types.CodeAlreadyUsed, "Pass already used", "Pass already used")
		case p.Revoked:
			return &denial{result: types.ResultRevoked, code: types.CodeRevoked, reason: "Pass has been revoked", detail: "Pass revoked"}
		case p.Status == store.StatusExpired || p.Expired(now):
			return deny(types.CodeExpired, "Pass expired", "Pass expired")
		case p.Status != store.StatusPass:
			return deny(types.CodeNotApproved, "Pass not approved", fmt.Sprintf("Status: %s", p.Status))
		}
		p.Used = true
		p.UsedAt = &now
		p.Status = store.StatusUsed
		return nil
	})
	if err != nil {
		var d *denial
		if errors.As(err, &d) {
			return s.reject(ctx, gateID, passID, pass.OwnerID, d), nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return s.reject(ctx, gateID, passID, "", deny(types.CodePassNotFound, "Pass not found", "Pass not found in database")), nil
		}
		return types.ScanResponse{}, WrapInternalError(err, "consuming pass")
	}

	s.audit.Record(ctx, scanEvent(gateID, passID, used.OwnerID, types.CodeGranted,
		fmt.Sprintf("Site: %s, Purpose: %s", used.SiteID, used.PurposeID)))
	s.logger.Info("access granted",
		slog.String("pass_id", passID),
		slog.String("gate_id", gateID),
	)

	return types.ScanResponse{
		Result: types.ResultPass,
		Code:   types.CodeGranted,
		PassDetails: &types.PassDetails{
			PassID:    used.ID,
			UserID:    used.OwnerID,
			SiteID:    used.SiteID,
			PurposeID: used.PurposeID,
		},
		Message: "Access granted",
	}, nil
}

func (s *ScanService) checkFreshness(timestamp string) *denial {
	issued, err := qr.ParseTimestamp(timestamp)
	if err != nil {
		if s.cfg.StrictTimestamps {
			return deny(types.CodeExpiredQR, "QR code expired", "Unparseable timestamp")
		}
		s.logger.Warn("qr timestamp unparseable, freshness check skipped",
			slog.String("timestamp", timestamp))
		return nil
	}

	age := s.now().UTC().Sub(issued)
	if age > s.cfg.QRValidity {
		return deny(types.CodeExpiredQR, "QR code expired", fmt.Sprintf("QR age: %.1fs", age.Seconds()))
	}
	return nil
}

func (s *ScanService) reject(ctx context.Context, gateID, passID, userID string, d *denial) types.ScanResponse {
	s.audit.Record(ctx, scanEvent(gateID, passID, userID, d.code, d.detail))
	s.logger.Warn("access denied",
		slog.String("code", d.code),
		slog.String("pass_id", passID),
		slog.String("gate_id", gateID),
	)
	return types.ScanResponse{Result: d.result, Reason: d.reason, Code: d.code}
}
