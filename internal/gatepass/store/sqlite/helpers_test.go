package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/gatepass/server/internal/db"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// The shared-cache URI keeps the database alive for the lifetime of the
	// pool; the test name makes each database unique.
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if err := db.MigrateSQLite(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

// samplePass returns an approved, unused pass expiring at expiresAt.
func samplePass(id string, expiresAt time.Time) store.PassRecord {
	expiresAt = expiresAt.UTC().Truncate(time.Millisecond)
	approved := expiresAt.Add(-24 * time.Hour)
	return store.PassRecord{
		ID:         id,
		OwnerID:    "USER001",
		SiteID:     "SITE001",
		PurposeID:  "PURP001",
		VisitAt:    approved.Add(time.Hour),
		Status:     store.StatusPass,
		CreatedAt:  approved.Add(-time.Hour),
		ApprovedAt: &approved,
		ExpiresAt:  &expiresAt,
	}
}
