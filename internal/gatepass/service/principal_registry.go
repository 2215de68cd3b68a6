package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/catalog"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// gpsTolerance is the maximum per-axis distance, in degrees, between a
// gate's reported and registered location.
const gpsTolerance = 0.01

// PrincipalRegistry registers users and gates and hands each one a signing
// key pair.
type PrincipalRegistry struct {
	store   store.PrincipalStore
	signer  signing.Service
	catalog *catalog.Catalog
	audit   *AuditLog
	now     func() time.Time

	// mu serializes registrations so two requests for the same id cannot
	// both generate a key under the same reference.
	mu sync.Mutex
}

func NewPrincipalRegistry(st store.PrincipalStore, signer signing.Service, cat *catalog.Catalog, audit *AuditLog) *PrincipalRegistry {
	return &PrincipalRegistry{store: st, signer: signer, catalog: cat, audit: audit, now: time.Now}
}

func userKeyRef(id string) string { return "user_" + id }
func gateKeyRef(id string) string { return "gate_" + id }

func (r *PrincipalRegistry) RegisterUser(ctx context.Context, req types.RegisterUserRequest) (types.Principal, error) {
	id := strings.TrimSpace(req.UserID)
	if id == "" {
		return types.Principal{}, NewValidationError("user_id is required")
	}

	rec, created, err := r.register(ctx, store.PrincipalRecord{
		ID:       id,
		Kind:     store.KindUser,
		DeviceID: strings.TrimSpace(req.DeviceID),
	})
	if err != nil {
		return types.Principal{}, err
	}
	if !created {
		return types.Principal{}, NewConflictError("User already registered")
	}
	return principalToType(rec), nil
}

// EnsureUser returns the user, registering it first if needed.
func (r *PrincipalRegistry) EnsureUser(ctx context.Context, id, deviceID string) (store.PrincipalRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.PrincipalRecord{}, NewValidationError("user_id is required")
	}
	rec, _, err := r.register(ctx, store.PrincipalRecord{
		ID:       id,
		Kind:     store.KindUser,
		DeviceID: strings.TrimSpace(deviceID),
	})
	return rec, err
}

func (r *PrincipalRegistry) RegisterGate(ctx context.Context, req types.RegisterGateRequest) (types.Principal, error) {
	id := strings.TrimSpace(req.TabletID)
	gps := strings.TrimSpace(req.GPSLocation)
	site := strings.TrimSpace(req.SiteID)

	if id == "" || gps == "" || site == "" {
		return types.Principal{}, NewValidationError("tablet_id, gps_location and site_id are required")
	}
	if _, _, err := parseGPS(gps); err != nil {
		return types.Principal{}, NewValidationError("gps_location must be \"<lat>,<lng>\"")
	}
	if !r.catalog.HasSite(site) {
		return types.Principal{}, NewValidationError(fmt.Sprintf("unknown site_id %q", site))
	}

	rec, created, err := r.register(ctx, store.PrincipalRecord{
		ID:          id,
		Kind:        store.KindGate,
		GPSLocation: gps,
		SiteID:      site,
	})
	if err != nil {
		return types.Principal{}, err
	}
	if !created {
		return types.Principal{}, NewConflictError("Gate already registered")
	}
	return principalToType(rec), nil
}

// register creates p with a fresh key pair unless a principal with the same
// kind and id already exists, in which case the existing record is returned
// and created is false.
func (r *PrincipalRegistry) register(ctx context.Context, p store.PrincipalRecord) (store.PrincipalRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.Get(ctx, p.Kind, p.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.PrincipalRecord{}, false, WrapInternalError(err, "looking up principal")
	}

	ref := userKeyRef(p.ID)
	if p.Kind == store.KindGate {
		ref = gateKeyRef(p.ID)
	}
	keyRef, pub, err := r.signer.GenerateKeyPair(ctx, ref)
	if err != nil {
		return store.PrincipalRecord{}, false, WrapInternalError(err, "generating key pair")
	}

	p.KeyRef = keyRef
	p.PublicKey = pub
	p.CreatedAt = r.now().UTC()

	if err := r.store.Create(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			existing, gerr := r.store.Get(ctx, p.Kind, p.ID)
			if gerr != nil {
				return store.PrincipalRecord{}, false, WrapInternalError(gerr, "looking up principal")
			}
			return existing, false, nil
		}
		return store.PrincipalRecord{}, false, WrapInternalError(err, "creating principal")
	}

	r.audit.Record(ctx, registrationEvent(p))
	return p, true, nil
}

// Get maps a missing principal to a NotFound error.
func (r *PrincipalRegistry) Get(ctx context.Context, kind store.PrincipalKind, id string) (store.PrincipalRecord, error) {
	p, err := r.store.Get(ctx, kind, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return store.PrincipalRecord{}, NewNotFoundError(fmt.Sprintf("%s not found", kindTitle(kind)))
	}
	if err != nil {
		return store.PrincipalRecord{}, WrapInternalError(err, "looking up principal")
	}
	return p, nil
}

func (r *PrincipalRegistry) Describe(ctx context.Context, kind store.PrincipalKind, id string) (types.Principal, error) {
	p, err := r.Get(ctx, kind, id)
	if err != nil {
		return types.Principal{}, err
	}
	return principalToType(p), nil
}

func (r *PrincipalRegistry) List(ctx context.Context, kind store.PrincipalKind) ([]types.Principal, error) {
	ps, err := r.store.List(ctx, kind)
	if err != nil {
		return nil, WrapInternalError(err, "listing principals")
	}
	out := make([]types.Principal, 0, len(ps))
	for _, p := range ps {
		out = append(out, principalToType(p))
	}
	return out, nil
}

// PublicKey describes the verification key held for a principal.
func (r *PrincipalRegistry) PublicKey(ctx context.Context, kind store.PrincipalKind, id string) (types.PublicKeyResponse, error) {
	p, err := r.Get(ctx, kind, id)
	if err != nil {
		return types.PublicKeyResponse{}, err
	}
	return types.PublicKeyResponse{
		PrincipalID: p.ID,
		Kind:        string(p.Kind),
		Algorithm:   "Ed25519",
		KeyID:       signing.KeyID(p.PublicKey),
		PublicKey:   p.PublicKey,
		CreatedAt:   formatTime(p.CreatedAt),
	}, nil
}

func (r *PrincipalRegistry) Count(ctx context.Context, kind store.PrincipalKind) (int64, error) {
	return r.store.Count(ctx, kind)
}

// parseGPS parses "lat,lng".
func parseGPS(s string) (lat, lng float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lng")
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, err
	}
	if lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, err
	}
	if math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range")
	}
	return lat, lng, nil
}

// gpsMatches reports whether reported is within gpsTolerance of expected
// on both axes. Identical strings always match.
func gpsMatches(reported, expected string) bool {
	if strings.TrimSpace(reported) == strings.TrimSpace(expected) {
		return true
	}
	rlat, rlng, err := parseGPS(reported)
	if err != nil {
		return false
	}
	elat, elng, err := parseGPS(expected)
	if err != nil {
		return false
	}
	return math.Abs(rlat-elat) < gpsTolerance && math.Abs(rlng-elng) < gpsTolerance
}

func kindTitle(k store.PrincipalKind) string {
	if k == store.KindGate {
		return "Gate"
	}
	return "User"
}
