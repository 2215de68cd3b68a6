package store

import (
	"context"
	"time"
)

type StateEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// StateStore is a small key/value table for system flags.
type StateStore interface {
	// Get returns ErrNotFound if key was never set.
	Get(ctx context.Context, key string) (StateEntry, error)
	Set(ctx context.Context, key, value string, at time.Time) error
	// List returns every entry whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]StateEntry, error)
}
