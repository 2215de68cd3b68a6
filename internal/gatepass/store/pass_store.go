package store

import (
	"context"
	"time"
)

// Status is the lifecycle state of a pass.
type Status string

const (
	StatusInProcess Status = "In Process"
	StatusPass      Status = "Pass"
	StatusNoPass    Status = "No Pass"
	StatusUsed      Status = "Used"
	StatusRevoked   Status = "Revoked"
	StatusExpired   Status = "Expired"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusInProcess, StatusPass, StatusNoPass, StatusUsed, StatusRevoked, StatusExpired,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusNoPass, StatusUsed, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

type PassRecord struct {
	ID          string
	OwnerID     string
	SiteID      string
	PurposeID   string
	VisitAt     time.Time
	Status      Status
	Used        bool
	Revoked     bool
	DeviceID    string
	QRSignature string

	CreatedAt  time.Time
	ApprovedAt *time.Time
	UsedAt     *time.Time
	ExpiresAt  *time.Time
}

// Expired reports whether the pass has an expiry at or before now.
func (p PassRecord) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// PassFilter narrows List results. Zero values match everything.
type PassFilter struct {
	OwnerID string
	SiteID  string
	Status  Status
}

// UpdateFn mutates a pass in place. Returning an error aborts the update
// and nothing is written. fn must not call back into any store: the SQLite
// back-end runs it while holding the only connection.
type UpdateFn func(p *PassRecord) error

// PassStore persists passes.
//
// Update is the only mutation path after Create. Implementations hold the
// pass exclusively for the duration of fn, so concurrent updates of the same
// pass are serialized and each observes the previous one's result.
type PassStore interface {
	Create(ctx context.Context, p PassRecord) error
	Get(ctx context.Context, id string) (PassRecord, error)
	List(ctx context.Context, f PassFilter) ([]PassRecord, error)
	Update(ctx context.Context, id string, fn UpdateFn) (PassRecord, error)

	// ExpireDue moves every approved, unused pass whose expiry is at or
	// before now to StatusExpired and returns how many changed.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// CountByStatus returns pass counts keyed by status, optionally
	// restricted to one site.
	CountByStatus(ctx context.Context, siteID string) (map[Status]int64, error)
}
