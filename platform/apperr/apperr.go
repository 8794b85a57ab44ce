// Package apperr defines the typed domain errors shared by all bounded
// contexts. Services return these instead of raw errors so the HTTP layer
// can map every failure onto a status class without inspecting messages.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind classifies a domain failure.
type Kind int

const (
	// KindUnknown is the zero value used for untyped errors.
	KindUnknown Kind = iota
	// KindNotFound indicates the referenced entity does not resolve.
	KindNotFound
	// KindValidation indicates malformed or missing input.
	KindValidation
	// KindConflict indicates the operation is not legal from the current
	// state: invalid stage transitions, already-finalized approvals,
	// double deletes, missing pending edits.
	KindConflict
	// KindForbidden indicates the actor lacks a capability or ownership.
	KindForbidden
	// KindUnauthorized indicates there is no valid actor.
	KindUnauthorized
	// KindInternal indicates an unexpected store or infrastructure failure.
	KindInternal
)

// Error is a domain error carrying a Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string // operation identifier, e.g. "cases.service.mark_discharge"
	Err     error  // wrapped cause, optional
	Details any    // extra payload surfaced to the client, optional
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to a status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// New creates a domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a domain error around an underlying cause.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation identifier and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches a details payload and returns the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// NotFound creates a not-found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a state-conflict error. Used for illegal stage
// transitions and idempotency guards (already finalized, already deleted,
// no pending edit).
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return New(KindInternal, fmt.Sprintf(format, args...))
}

// GetKind extracts the kind from an error, KindUnknown for untyped errors.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
