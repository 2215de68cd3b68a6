package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatepass/server/internal/catalog"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/qr"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

const (
	defaultPassTTLHours = 24
	defaultQRValidity   = 60 * time.Second
	defaultReason       = "No reason provided"
)

// QR payload encodings accepted by RequestQR.
const (
	QRFormatJSON   = "json"
	QRFormatBinary = "binary"
)

type PassConfig struct {
	// QRValidity is how long an issued QR payload is accepted at a gate.
	QRValidity time.Duration

	// DefaultTTLHours applies when an approval names no ttl.
	DefaultTTLHours int
}

// PassService drives the pass lifecycle: application, the admin decision,
// QR issuance and expiry.
type PassService struct {
	passes     store.PassStore
	principals *PrincipalRegistry
	signer     signing.Service
	catalog    *catalog.Catalog
	audit      *AuditLog
	logger     *slog.Logger
	cfg        PassConfig
	now        func() time.Time
}

func NewPassService(
	passes store.PassStore,
	principals *PrincipalRegistry,
	signer signing.Service,
	cat *catalog.Catalog,
	audit *AuditLog,
	cfg PassConfig,
	logger *slog.Logger,
) *PassService {
	if cfg.QRValidity <= 0 {
		cfg.QRValidity = defaultQRValidity
	}
	if cfg.DefaultTTLHours <= 0 {
		cfg.DefaultTTLHours = defaultPassTTLHours
	}
	return &PassService{
		passes:     passes,
		principals: principals,
		signer:     signer,
		catalog:    cat,
		audit:      audit,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *PassService) WithClock(now func() time.Time) *PassService {
	s.now = now
	return s
}

func newPassID() string {
	return "PASS" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func (s *PassService) Create(ctx context.Context, ownerID string, req types.CreatePassRequest) (types.Pass, error) {
	site := strings.TrimSpace(req.SiteID)
	purpose := strings.TrimSpace(req.PurposeID)
	visit := strings.TrimSpace(req.VisitDateTime)

	if site == "" || purpose == "" || visit == "" {
		return types.Pass{}, NewValidationError("Missing required fields")
	}
	visitAt, err := qr.ParseTimestamp(visit)
	if err != nil {
		return types.Pass{}, NewValidationError("Invalid date time format")
	}
	if !s.catalog.HasSite(site) {
		return types.Pass{}, NewValidationError(fmt.Sprintf("unknown site_id %q", site))
	}
	if !s.catalog.HasPurpose(purpose) {
		return types.Pass{}, NewValidationError(fmt.Sprintf("unknown purpose_id %q", purpose))
	}

	owner, err := s.principals.Get(ctx, store.KindUser, ownerID)
	if err != nil {
		return types.Pass{}, err
	}

	rec := store.PassRecord{
		ID:        newPassID(),
		OwnerID:   owner.ID,
		SiteID:    site,
		PurposeID: purpose,
		VisitAt:   visitAt,
		Status:    store.StatusInProcess,
		DeviceID:  strings.TrimSpace(req.DeviceID),
		CreatedAt: s.now().UTC(),
	}
	if err := s.passes.Create(ctx, rec); err != nil {
		return types.Pass{}, WrapInternalError(err, "creating pass")
	}

	s.audit.Record(ctx, applicationEvent(rec))
	s.logger.Info("pass created",
		slog.String("pass_id", rec.ID),
		slog.String("owner_id", rec.OwnerID),
		slog.String("site_id", rec.SiteID),
	)

	return passToType(rec), nil
}

func (s *PassService) Get(ctx context.Context, id string) (types.Pass, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return types.Pass{}, err
	}
	return passToType(rec), nil
}

func (s *PassService) ListMine(ctx context.Context, ownerID string) ([]types.Pass, error) {
	return s.list(ctx, store.PassFilter{OwnerID: ownerID})
}

func (s *PassService) ListPending(ctx context.Context) ([]types.Pass, error) {
	return s.list(ctx, store.PassFilter{Status: store.StatusInProcess})
}

// List returns passes filtered by status and site. Empty strings match
// everything.
func (s *PassService) List(ctx context.Context, status, siteID string) ([]types.Pass, error) {
	st := store.Status(strings.TrimSpace(status))
	if st != "" && !st.Valid() {
		return nil, NewValidationError(fmt.Sprintf("unknown status %q", status))
	}
	return s.list(ctx, store.PassFilter{Status: st, SiteID: strings.TrimSpace(siteID)})
}

func (s *PassService) list(ctx context.Context, f store.PassFilter) ([]types.Pass, error) {
	recs, err := s.passes.List(ctx, f)
	if err != nil {
		return nil, WrapInternalError(err, "listing passes")
	}
	return passesToType(recs), nil
}

// Approve moves an In Process pass to Pass. A nil ttlHours means the
// configured default.
func (s *PassService) Approve(ctx context.Context, id string, ttlHours *int) (types.Pass, error) {
	ttl := s.cfg.DefaultTTLHours
	if ttlHours != nil {
		ttl = *ttlHours
	}
	if ttl <= 0 {
		return types.Pass{}, NewValidationError("ttl_hours must be greater than 0")
	}

	rec, err := s.update(ctx, id, func(p *store.PassRecord) error {
		if p.Status != store.StatusInProcess {
			return NewInvalidTransitionError(p.Status,
				fmt.Sprintf("Pass cannot be approved (status: %s)", p.Status))
		}
		now := s.now().UTC()
		expires := now.Add(time.Duration(ttl) * time.Hour)
		p.Status = store.StatusPass
		p.ApprovedAt = &now
		p.ExpiresAt = &expires
		return nil
	})
	if err != nil {
		return types.Pass{}, err
	}

	s.audit.Record(ctx, approvalEvent(rec, ttl))
	s.logger.Info("pass approved", slog.String("pass_id", rec.ID), slog.Int("ttl_hours", ttl))
	return passToType(rec), nil
}

func (s *PassService) Reject(ctx context.Context, id, reason string) (types.Pass, error) {
	reason = reasonOrDefault(reason)

	rec, err := s.update(ctx, id, func(p *store.PassRecord) error {
		if p.Status != store.StatusInProcess {
			return NewInvalidTransitionError(p.Status,
				fmt.Sprintf("Pass cannot be rejected (status: %s)", p.Status))
		}
		p.Status = store.StatusNoPass
		return nil
	})
	if err != nil {
		return types.Pass{}, err
	}

	s.audit.Record(ctx, rejectionEvent(rec, reason))
	s.logger.Info("pass rejected", slog.String("pass_id", rec.ID))
	return passToType(rec), nil
}

// Revoke cancels an approved pass. Only Pass can be revoked: a used,
// expired or already revoked pass is final.
func (s *PassService) Revoke(ctx context.Context, id, reason string) (types.Pass, error) {
	reason = reasonOrDefault(reason)

	rec, err := s.update(ctx, id, func(p *store.PassRecord) error {
		if p.Status != store.StatusPass {
			return NewInvalidTransitionError(p.Status,
				fmt.Sprintf("Pass cannot be revoked (status: %s)", p.Status))
		}
		p.Status = store.StatusRevoked
		p.Revoked = true
		return nil
	})
	if err != nil {
		return types.Pass{}, err
	}

	s.audit.Record(ctx, revokeEvent(rec, reason))
	s.logger.Info("pass revoked", slog.String("pass_id", rec.ID))
	return passToType(rec), nil
}

// RequestQR signs a fresh payload for a pass owned by requester. Passes
// owned by someone else are reported as not found.
func (s *PassService) RequestQR(ctx context.Context, id, requester, format string) (types.QRResponse, error) {
	switch format {
	case "", QRFormatJSON, QRFormatBinary:
	default:
		return types.QRResponse{}, NewValidationError(fmt.Sprintf("unknown format %q", format))
	}

	rec, err := s.get(ctx, id)
	if err != nil {
		return types.QRResponse{}, err
	}
	if rec.OwnerID != requester {
		return types.QRResponse{}, NewNotFoundError("Pass not found")
	}

	owner, err := s.principals.Get(ctx, store.KindUser, rec.OwnerID)
	if err != nil {
		return types.QRResponse{}, err
	}

	var payload qr.Payload
	rec, err = s.update(ctx, id, func(p *store.PassRecord) error {
		now := s.now().UTC()
		switch {
		case p.Status != store.StatusPass:
			return NewInvalidTransitionError(p.Status,
				fmt.Sprintf("Pass not approved (status: %s)", p.Status))
		case p.Used:
			return NewInvalidTransitionError(p.Status, "Pass already used")
		case p.Revoked:
			return NewInvalidTransitionError(p.Status, "Pass has been revoked")
		case p.Expired(now):
			return NewInvalidTransitionError(p.Status, "Pass has expired")
		}

		ts := qr.FormatTimestamp(now)
		sig, err := s.signer.Sign(ctx, owner.KeyRef, qr.Message(p.ID, ts))
		if err != nil {
			return WrapInternalError(err, "signing qr payload")
		}
		payload = qr.Payload{PassID: p.ID, Timestamp: ts, Signature: hex.EncodeToString(sig)}
		p.QRSignature = payload.Signature
		return nil
	})
	if err != nil {
		return types.QRResponse{}, err
	}

	var encoded string
	if format == QRFormatBinary {
		encoded, err = qr.EncodeBinary(payload)
	} else {
		encoded, err = qr.EncodeJSON(payload)
	}
	if err != nil {
		return types.QRResponse{}, WrapInternalError(err, "encoding qr payload")
	}

	s.audit.Record(ctx, qrIssueEvent(rec, payload.Timestamp))

	return types.QRResponse{
		QRPayload: encoded,
		PassID:    payload.PassID,
		Timestamp: payload.Timestamp,
		Signature: payload.Signature,
		ExpiresIn: int(s.cfg.QRValidity / time.Second),
		Message:   "QR code generated",
	}, nil
}

// ExpireDue marks every approved, unused pass past its expiry as Expired.
func (s *PassService) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.passes.ExpireDue(ctx, s.now().UTC())
	if err != nil {
		return 0, WrapInternalError(err, "expiring passes")
	}
	return n, nil
}

// Statistics counts principals and passes. With a siteID the per-status
// counts are restricted to that site; without one a per-site breakdown over
// the catalog is included.
func (s *PassService) Statistics(ctx context.Context, siteID string) (types.Statistics, error) {
	siteID = strings.TrimSpace(siteID)

	users, err := s.principals.Count(ctx, store.KindUser)
	if err != nil {
		return types.Statistics{}, WrapInternalError(err, "counting users")
	}
	gates, err := s.principals.Count(ctx, store.KindGate)
	if err != nil {
		return types.Statistics{}, WrapInternalError(err, "counting gates")
	}

	all, err := s.passes.CountByStatus(ctx, "")
	if err != nil {
		return types.Statistics{}, WrapInternalError(err, "counting passes")
	}
	var total int64
	for _, n := range all {
		total += n
	}

	counts := all
	if siteID != "" {
		if counts, err = s.passes.CountByStatus(ctx, siteID); err != nil {
			return types.Statistics{}, WrapInternalError(err, "counting passes")
		}
	}

	stats := types.Statistics{
		TotalUsers:  users,
		TotalGates:  gates,
		TotalPasses: total,
		ByStatus:    make(map[string]int64, len(store.Statuses)),
		SiteID:      siteID,
	}
	for _, st := range store.Statuses {
		stats.ByStatus[string(st)] = counts[st]
	}

	if siteID == "" {
		stats.BySite = make(map[string]types.SiteStatistics)
		for _, site := range s.catalog.SiteIDs() {
			c, err := s.passes.CountByStatus(ctx, site)
			if err != nil {
				return types.Statistics{}, WrapInternalError(err, "counting passes")
			}
			stats.BySite[site] = types.SiteStatistics{
				Approved:  c[store.StatusPass],
				Requested: c[store.StatusInProcess],
				Used:      c[store.StatusUsed],
				Revoked:   c[store.StatusRevoked],
			}
		}
	}

	return stats, nil
}

func (s *PassService) get(ctx context.Context, id string) (store.PassRecord, error) {
	rec, err := s.passes.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return store.PassRecord{}, NewNotFoundError("Pass not found")
	}
	if err != nil {
		return store.PassRecord{}, WrapInternalError(err, "loading pass")
	}
	return rec, nil
}

// update runs fn under the store's per-pass exclusion and maps store errors
// onto service errors. Errors returned by fn pass through unchanged.
func (s *PassService) update(ctx context.Context, id string, fn store.UpdateFn) (store.PassRecord, error) {
	rec, err := s.passes.Update(ctx, strings.TrimSpace(id), fn)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.PassRecord{}, NewNotFoundError("Pass not found")
	}
	var se *Error
	if errors.As(err, &se) {
		return rec, err
	}
	return store.PassRecord{}, WrapInternalError(err, "updating pass")
}

func reasonOrDefault(reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return defaultReason
}
