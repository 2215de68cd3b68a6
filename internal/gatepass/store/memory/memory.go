package memory

import "github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"

// New returns a fresh set of in-memory stores.
func New() store.Stores {
	return store.Stores{
		Passes:     NewPassStore(),
		Principals: NewPrincipalStore(),
		Audit:      NewAuditStore(),
		State:      NewStateStore(),
	}
}
