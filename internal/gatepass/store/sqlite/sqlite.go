package sqlite

import (
	"database/sql"

	dbpkg "github.com/BrandonDHaskell/gatepass/server/internal/db"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

// New returns SQLite-backed stores sharing one connection and one writer.
func New(db *sql.DB, writer *dbpkg.Worker) store.Stores {
	return store.Stores{
		Passes:     NewPassStore(db, writer),
		Principals: NewPrincipalStore(db, writer),
		Audit:      NewAuditStore(db, writer),
		State:      NewStateStore(db, writer),
	}
}
