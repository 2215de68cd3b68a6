package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/gatepass/server/internal/db"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

const passColumns = `pass_id, owner_id, site_id, purpose_id, visit_at_ms, status, used, revoked,
  device_id, qr_signature, created_at_ms, approved_at_ms, used_at_ms, expires_at_ms`

// PassStore reads on the shared connection and funnels every write through
// the single-writer worker. Update runs its read-modify-write inside one
// worker transaction, which is what makes it exclusive.
type PassStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewPassStore(db *sql.DB, writer *dbpkg.Worker) *PassStore {
	return &PassStore{db: db, writer: writer}
}

func (s *PassStore) Create(ctx context.Context, p store.PassRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM passes WHERE pass_id = ?;`, p.ID).Scan(&exists)
		if err == nil {
			return store.ErrConflict
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("Create check: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO passes(`+passColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			p.ID, p.OwnerID, p.SiteID, p.PurposeID, toMs(p.VisitAt), string(p.Status),
			boolInt(p.Used), boolInt(p.Revoked), p.DeviceID, p.QRSignature,
			toMs(p.CreatedAt), nullMs(p.ApprovedAt), nullMs(p.UsedAt), nullMs(p.ExpiresAt),
		); err != nil {
			return fmt.Errorf("Create insert: %w", err)
		}
		return nil
	})
}

func (s *PassStore) Get(ctx context.Context, id string) (store.PassRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+passColumns+` FROM passes WHERE pass_id = ?;`, id)
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.PassRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.PassRecord{}, fmt.Errorf("Get pass: %w", err)
	}
	return p, nil
}

func (s *PassStore) List(ctx context.Context, f store.PassFilter) ([]store.PassRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.SiteID != "" {
		where = append(where, "site_id = ?")
		args = append(args, f.SiteID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	q := `SELECT ` + passColumns + ` FROM passes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at_ms DESC, pass_id ASC;`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("List passes: %w", err)
	}
	defer rows.Close()

	out := make([]store.PassRecord, 0)
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("List passes scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PassStore) Update(ctx context.Context, id string, fn store.UpdateFn) (store.PassRecord, error) {
	var result store.PassRecord

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+passColumns+` FROM passes WHERE pass_id = ?;`, id)
		current, err := scanPass(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("Update load: %w", err)
		}

		result = current
		working := current
		if err := fn(&working); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE passes
SET status         = ?,
    used           = ?,
    revoked        = ?,
    qr_signature   = ?,
    approved_at_ms = ?,
    used_at_ms     = ?,
    expires_at_ms  = ?
WHERE pass_id = ?;
`,
			string(working.Status), boolInt(working.Used), boolInt(working.Revoked),
			working.QRSignature, nullMs(working.ApprovedAt), nullMs(working.UsedAt),
			nullMs(working.ExpiresAt), id,
		); err != nil {
			return fmt.Errorf("Update write: %w", err)
		}

		working.ID = current.ID
		result = working
		return nil
	})

	return result, err
}

func (s *PassStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE passes
SET status = ?
WHERE status = ? AND used = 0 AND expires_at_ms IS NOT NULL AND expires_at_ms <= ?;
`, string(store.StatusExpired), string(store.StatusPass), toMs(now))
		if err != nil {
			return fmt.Errorf("ExpireDue: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *PassStore) CountByStatus(ctx context.Context, siteID string) (map[store.Status]int64, error) {
	q := `SELECT status, COUNT(*) FROM passes`
	var args []any
	if siteID != "" {
		q += ` WHERE site_id = ?`
		args = append(args, siteID)
	}
	q += ` GROUP BY status;`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	defer rows.Close()

	counts := make(map[store.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountByStatus scan: %w", err)
		}
		counts[store.Status(status)] = n
	}
	return counts, rows.Err()
}

func scanPass(r rowScanner) (store.PassRecord, error) {
	var (
		p                        store.PassRecord
		status                   string
		used, revoked            int
		visitMs, createdMs       int64
		approved, usedAt, expiry sql.NullInt64
	)
	if err := r.Scan(
		&p.ID, &p.OwnerID, &p.SiteID, &p.PurposeID, &visitMs, &status, &used, &revoked,
		&p.DeviceID, &p.QRSignature, &createdMs, &approved, &usedAt, &expiry,
	); err != nil {
		return store.PassRecord{}, err
	}

	p.Status = store.Status(status)
	p.Used = used == 1
	p.Revoked = revoked == 1
	p.VisitAt = fromMs(visitMs)
	p.CreatedAt = fromMs(createdMs)
	p.ApprovedAt = fromNullMs(approved)
	p.UsedAt = fromNullMs(usedAt)
	p.ExpiresAt = fromNullMs(expiry)
	return p, nil
}
