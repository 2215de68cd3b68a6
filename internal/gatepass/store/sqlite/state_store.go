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

type StateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewStateStore(db *sql.DB, writer *dbpkg.Worker) *StateStore {
	return &StateStore{db: db, writer: writer}
}

func (s *StateStore) Get(ctx context.Context, key string) (store.StateEntry, error) {
	var (
		e  store.StateEntry
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state_key, state_value, updated_at_ms FROM system_state WHERE state_key = ?;`, key,
	).Scan(&e.Key, &e.Value, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return store.StateEntry{}, store.ErrNotFound
	}
	if err != nil {
		return store.StateEntry{}, fmt.Errorf("Get state: %w", err)
	}
	e.UpdatedAt = fromMs(ms)
	return e, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO system_state(state_key, state_value, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT(state_key) DO UPDATE SET
  state_value   = excluded.state_value,
  updated_at_ms = excluded.updated_at_ms;
`, key, value, toMs(at)); err != nil {
			return fmt.Errorf("Set state: %w", err)
		}
		return nil
	})
}

func (s *StateStore) List(ctx context.Context, prefix string) ([]store.StateEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT state_key, state_value, updated_at_ms FROM system_state
WHERE substr(state_key, 1, ?) = ?
ORDER BY state_key;
`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("List state: %w", err)
	}
	defer rows.Close()

	out := make([]store.StateEntry, 0)
	for rows.Next() {
		var (
			e  store.StateEntry
			ms int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &ms); err != nil {
			return nil, fmt.Errorf("List state scan: %w", err)
		}
		e.UpdatedAt = fromMs(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}
