package store

import (
	"context"
	"time"
)

// EventKind tags an audit event.
type EventKind string

const (
	EventLogin        EventKind = "login"
	EventRegistration EventKind = "registration"
	EventApplication  EventKind = "application"
	EventApproval     EventKind = "approval"
	EventRejection    EventKind = "rejection"
	EventRevoke       EventKind = "revoke"
	EventQRIssue      EventKind = "qr_issue"
	EventScan         EventKind = "scan"
	EventPause        EventKind = "pause"
)

var EventKinds = []EventKind{
	EventLogin, EventRegistration, EventApplication, EventApproval,
	EventRejection, EventRevoke, EventQRIssue, EventScan, EventPause,
}

func (k EventKind) Valid() bool {
	for _, v := range EventKinds {
		if k == v {
			return true
		}
	}
	return false
}

// AuditEvent is immutable once appended. ID is assigned by the store.
type AuditEvent struct {
	ID     int64
	At     time.Time
	Kind   EventKind
	UserID string
	GateID string
	PassID string
	Result string
	Detail string
}

// AuditFilter narrows List. Zero fields match everything.
type AuditFilter struct {
	Kind   EventKind
	Result string
	Limit  int
}

// AuditStore is an append-only event log. List returns newest first.
type AuditStore interface {
	Append(ctx context.Context, ev AuditEvent) error
	List(ctx context.Context, f AuditFilter) ([]AuditEvent, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
