package store

import (
	"context"
	"time"
)

type PrincipalKind string

const (
	KindUser PrincipalKind = "user"
	KindGate PrincipalKind = "gate"
)

// PrincipalRecord is a user or gate. PublicKey is a JWK JSON document;
// KeyRef names the private half inside the signing key store.
type PrincipalRecord struct {
	ID          string
	Kind        PrincipalKind
	PublicKey   string
	KeyRef      string
	DeviceID    string
	GPSLocation string
	SiteID      string
	CreatedAt   time.Time
}

type PrincipalStore interface {
	// Create returns ErrConflict if a principal of the same kind and id exists.
	Create(ctx context.Context, p PrincipalRecord) error
	Get(ctx context.Context, kind PrincipalKind, id string) (PrincipalRecord, error)
	List(ctx context.Context, kind PrincipalKind) ([]PrincipalRecord, error)
	Count(ctx context.Context, kind PrincipalKind) (int64, error)
}
