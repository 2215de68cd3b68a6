package service

import (
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

// Kind classifies a service error for the transport layer.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindAuthentication    Kind = "authentication"
	KindForbidden         Kind = "forbidden"
	KindSignature         Kind = "signature"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// Error is the structured error returned by service operations.
type Error struct {
	kind    Kind
	message string

	// status is the pass status that blocked an invalid transition.
	status store.Status

	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *Error) Kind() Kind           { return e.kind }
func (e *Error) Message() string      { return e.message }
func (e *Error) Status() store.Status { return e.status }
func (e *Error) Unwrap() error        { return e.wrapped }

func NewValidationError(msg string) error {
	return &Error{kind: KindValidation, message: msg}
}

func NewNotFoundError(msg string) error {
	return &Error{kind: KindNotFound, message: msg}
}

// NewInvalidTransitionError reports an operation not allowed from status.
func NewInvalidTransitionError(status store.Status, msg string) error {
	return &Error{kind: KindInvalidTransition, message: msg, status: status}
}

// NewAuthenticationError never says which check failed.
func NewAuthenticationError(msg string) error {
	return &Error{kind: KindAuthentication, message: msg}
}

func NewForbiddenError(msg string) error {
	return &Error{kind: KindForbidden, message: msg}
}

func NewSignatureError(msg string) error {
	return &Error{kind: KindSignature, message: msg}
}

func NewConflictError(msg string) error {
	return &Error{kind: KindConflict, message: msg}
}

// WrapInternalError hides err behind a generic message. The wrapped error
// is kept for logging.
func WrapInternalError(err error, msg string) error {
	return &Error{kind: KindInternal, message: msg, wrapped: err}
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}
