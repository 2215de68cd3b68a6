package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

const passColumns = `pass_id, owner_id, site_id, purpose_id, visit_at, status, used, revoked,
  device_id, qr_signature, created_at, approved_at, used_at, expires_at`

// PassStore keeps passes in PostgreSQL. Update locks the row with
// SELECT ... FOR UPDATE so concurrent updates of one pass serialize across
// every server process sharing the database.
type PassStore struct {
	pool *pgxpool.Pool
}

func NewPassStore(pool *pgxpool.Pool) *PassStore {
	return &PassStore{pool: pool}
}

func (s *PassStore) Create(ctx context.Context, p store.PassRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO passes(`+passColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (pass_id) DO NOTHING;
`,
		p.ID, p.OwnerID, p.SiteID, p.PurposeID, p.VisitAt.UTC(), string(p.Status),
		p.Used, p.Revoked, p.DeviceID, p.QRSignature,
		p.CreatedAt.UTC(), p.ApprovedAt, p.UsedAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("Create pass: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *PassStore) Get(ctx context.Context, id string) (store.PassRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+passColumns+` FROM passes WHERE pass_id = $1;`, id)
	p, err := scanPass(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, col+" = $"+strconv.Itoa(len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id", f.OwnerID)
	}
	if f.SiteID != "" {
		add("site_id", f.SiteID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}

	q := `SELECT ` + passColumns + ` FROM passes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, pass_id ASC;`

	rows, err := s.pool.Query(ctx, q, args...)
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

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+passColumns+` FROM passes WHERE pass_id = $1 FOR UPDATE;`, id)
		current, err := scanPass(row)
		if errors.Is(err, pgx.ErrNoRows) {
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

		if _, err := tx.Exec(ctx, `
UPDATE passes
SET status       = $1,
    used         = $2,
    revoked      = $3,
    qr_signature = $4,
    approved_at  = $5,
    used_at      = $6,
    expires_at   = $7
WHERE pass_id = $8;
`,
			string(working.Status), working.Used, working.Revoked, working.QRSignature,
			working.ApprovedAt, working.UsedAt, working.ExpiresAt, id,
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
	tag, err := s.pool.Exec(ctx, `
UPDATE passes
SET status = $1
WHERE status = $2 AND NOT used AND expires_at IS NOT NULL AND expires_at <= $3;
`, string(store.StatusExpired), string(store.StatusPass), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("ExpireDue: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PassStore) CountByStatus(ctx context.Context, siteID string) (map[store.Status]int64, error) {
	rows, err := s.pool.Query(ctx, `
SELECT status, COUNT(*) FROM passes
WHERE $1 = '' OR site_id = $1
GROUP BY status;
`, siteID)
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

func scanPass(r pgx.Row) (store.PassRecord, error) {
	var (
		p      store.PassRecord
		status string
	)
	if err := r.Scan(
		&p.ID, &p.OwnerID, &p.SiteID, &p.PurposeID, &p.VisitAt, &status, &p.Used, &p.Revoked,
		&p.DeviceID, &p.QRSignature, &p.CreatedAt, &p.ApprovedAt, &p.UsedAt, &p.ExpiresAt,
	); err != nil {
		return store.PassRecord{}, err
	}
	p.Status = store.Status(status)
	p.VisitAt = p.VisitAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.ApprovedAt = utcPtr(p.ApprovedAt)
	p.UsedAt = utcPtr(p.UsedAt)
	p.ExpiresAt = utcPtr(p.ExpiresAt)
	return p, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
