package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

// New returns PostgreSQL-backed stores sharing pool.
func New(pool *pgxpool.Pool) store.Stores {
	return store.Stores{
		Passes:     NewPassStore(pool),
		Principals: NewPrincipalStore(pool),
		Audit:      NewAuditStore(pool),
		State:      NewStateStore(pool),
	}
}

// ── Principals ───────────────────────────────────────────────────────────────

const principalColumns = `principal_id, kind, public_key, key_ref, device_id, gps_location, site_id, created_at`

type PrincipalStore struct {
	pool *pgxpool.Pool
}

func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{pool: pool}
}

func (s *PrincipalStore) Create(ctx context.Context, p store.PrincipalRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO principals(`+principalColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (kind, principal_id) DO NOTHING;
`, p.ID, string(p.Kind), p.PublicKey, p.KeyRef, p.DeviceID, p.GPSLocation, p.SiteID, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("Create principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *PrincipalStore) Get(ctx context.Context, kind store.PrincipalKind, id string) (store.PrincipalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE kind = $1 AND principal_id = $2;`,
		string(kind), id)
	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.PrincipalRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.PrincipalRecord{}, fmt.Errorf("Get principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) List(ctx context.Context, kind store.PrincipalKind) ([]store.PrincipalRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE kind = $1 ORDER BY principal_id;`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("List principals: %w", err)
	}
	defer rows.Close()

	out := make([]store.PrincipalRecord, 0)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("List principals scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PrincipalStore) Count(ctx context.Context, kind store.PrincipalKind) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM principals WHERE kind = $1;`, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count principals: %w", err)
	}
	return n, nil
}

func scanPrincipal(r pgx.Row) (store.PrincipalRecord, error) {
	var (
		p    store.PrincipalRecord
		kind string
	)
	if err := r.Scan(&p.ID, &kind, &p.PublicKey, &p.KeyRef, &p.DeviceID, &p.GPSLocation, &p.SiteID, &p.CreatedAt); err != nil {
		return store.PrincipalRecord{}, err
	}
	p.Kind = store.PrincipalKind(kind)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// ── Audit ────────────────────────────────────────────────────────────────────

type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Append(ctx context.Context, ev store.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO audit_events(at, kind, user_id, gate_id, pass_id, result, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, ev.At.UTC(), string(ev.Kind), ev.UserID, ev.GateID, ev.PassID, ev.Result, ev.Detail); err != nil {
		return fmt.Errorf("Append audit: %w", err)
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, f store.AuditFilter) ([]store.AuditEvent, error) {
	// LIMIT NULL means no limit in PostgreSQL.
	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := s.pool.Query(ctx, `
SELECT event_id, at, kind, user_id, gate_id, pass_id, result, detail
FROM audit_events
WHERE ($1 = '' OR kind = $1) AND ($3 = '' OR result = $3)
ORDER BY at DESC, event_id DESC
LIMIT $2;
`, string(f.Kind), limit, f.Result)
	if err != nil {
		return nil, fmt.Errorf("List audit: %w", err)
	}
	defer rows.Close()

	out := make([]store.AuditEvent, 0)
	for rows.Next() {
		var (
			ev   store.AuditEvent
			kind string
		)
		if err := rows.Scan(&ev.ID, &ev.At, &kind, &ev.UserID, &ev.GateID, &ev.PassID, &ev.Result, &ev.Detail); err != nil {
			return nil, fmt.Errorf("List audit scan: %w", err)
		}
		ev.At = ev.At.UTC()
		ev.Kind = store.EventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *AuditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_events WHERE at < $1;`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("PruneOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ── State ────────────────────────────────────────────────────────────────────

type StateStore struct {
	pool *pgxpool.Pool
}

func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

func (s *StateStore) Get(ctx context.Context, key string) (store.StateEntry, error) {
	var e store.StateEntry
	err := s.pool.QueryRow(ctx,
		`SELECT state_key, state_value, updated_at FROM system_state WHERE state_key = $1;`, key,
	).Scan(&e.Key, &e.Value, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.StateEntry{}, store.ErrNotFound
	}
	if err != nil {
		return store.StateEntry{}, fmt.Errorf("Get state: %w", err)
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO system_state(state_key, state_value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (state_key) DO UPDATE SET
  state_value = EXCLUDED.state_value,
  updated_at  = EXCLUDED.updated_at;
`, key, value, at.UTC()); err != nil {
		return fmt.Errorf("Set state: %w", err)
	}
	return nil
}

func (s *StateStore) List(ctx context.Context, prefix string) ([]store.StateEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT state_key, state_value, updated_at FROM system_state
WHERE left(state_key, length($1)) = $1
ORDER BY state_key;
`, prefix)
	if err != nil {
		return nil, fmt.Errorf("List state: %w", err)
	}
	defer rows.Close()

	out := make([]store.StateEntry, 0)
	for rows.Next() {
		var e store.StateEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("List state scan: %w", err)
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
