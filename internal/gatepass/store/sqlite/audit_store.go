package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/gatepass/server/internal/db"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

func (s *AuditStore) Append(ctx context.Context, ev store.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_events(at_ms, kind, user_id, gate_id, pass_id, result, detail)
VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			toMs(ev.At), string(ev.Kind), ev.UserID, ev.GateID, ev.PassID, ev.Result, ev.Detail,
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *AuditStore) List(ctx context.Context, f store.AuditFilter) ([]store.AuditEvent, error) {
	q := `SELECT event_id, at_ms, kind, user_id, gate_id, pass_id, result, detail FROM audit_events`
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, `kind = ?`)
		args = append(args, string(f.Kind))
	}
	if f.Result != "" {
		where = append(where, `result = ?`)
		args = append(args, f.Result)
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY at_ms DESC, event_id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, fmt.Errorf("List audit: %w", err)
	}
	defer rows.Close()

	out := make([]store.AuditEvent, 0)
	for rows.Next() {
		var (
			ev   store.AuditEvent
			atMs int64
			kind string
		)
		if err := rows.Scan(&ev.ID, &atMs, &kind, &ev.UserID, &ev.GateID, &ev.PassID, &ev.Result, &ev.Detail); err != nil {
			return nil, fmt.Errorf("List audit scan: %w", err)
		}
		ev.At = fromMs(atMs)
		ev.Kind = store.EventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes audit events recorded before cutoff and returns
// the number of rows removed.
func (s *AuditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM audit_events WHERE at_ms < ?;`, toMs(cutoff))
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})

	return deleted, err
}
