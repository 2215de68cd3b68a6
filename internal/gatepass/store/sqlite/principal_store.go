package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/gatepass/server/internal/db"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

const principalColumns = `principal_id, kind, public_key, key_ref, device_id, gps_location, site_id, created_at_ms`

type PrincipalStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewPrincipalStore(db *sql.DB, writer *dbpkg.Worker) *PrincipalStore {
	return &PrincipalStore{db: db, writer: writer}
}

func (s *PrincipalStore) Create(ctx context.Context, p store.PrincipalRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO principals(`+principalColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			p.ID, string(p.Kind), p.PublicKey, p.KeyRef, p.DeviceID, p.GPSLocation, p.SiteID,
			toMs(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("Create principal: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Create principal rows: %w", err)
		}
		if n == 0 {
			return store.ErrConflict
		}
		return nil
	})
}

func (s *PrincipalStore) Get(ctx context.Context, kind store.PrincipalKind, id string) (store.PrincipalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE kind = ? AND principal_id = ?;`,
		string(kind), id)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.PrincipalRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.PrincipalRecord{}, fmt.Errorf("Get principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) List(ctx context.Context, kind store.PrincipalKind) ([]store.PrincipalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE kind = ? ORDER BY principal_id;`,
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
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals WHERE kind = ?;`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("Count principals: %w", err)
	}
	return n, nil
}

func scanPrincipal(r rowScanner) (store.PrincipalRecord, error) {
	var (
		p         store.PrincipalRecord
		kind      string
		createdMs int64
	)
	if err := r.Scan(&p.ID, &kind, &p.PublicKey, &p.KeyRef, &p.DeviceID, &p.GPSLocation, &p.SiteID, &createdMs); err != nil {
		return store.PrincipalRecord{}, err
	}
	p.Kind = store.PrincipalKind(kind)
	p.CreatedAt = fromMs(createdMs)
	return p, nil
}
