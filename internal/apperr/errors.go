// Package apperr classifies failures into the error kinds from the
// design's error-handling section: transient transport, permanent
// transport, parse/validation, idempotency conflict, deadline
// exceeded, and configuration. Retryable-vs-terminal is a property of
// the Kind, never of the call site.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of error categories the system reasons about.
type Kind string

const (
	KindTransientTransport Kind = "transient_transport"
	KindPermanentTransport Kind = "permanent_transport"
	KindParseValidation    Kind = "parse_validation"
	KindIdempotencyConflict Kind = "idempotency_conflict"
	KindDeadlineExceeded   Kind = "deadline_exceeded"
	KindConfiguration      Kind = "configuration"
)

// Error is a typed, wrapped application error.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "fetch.Get"
	Message string
	Cause   error
	At      time.Time
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause, At: time.Now().UTC()}
}

// Transient wraps err as a retryable transport failure.
func Transient(op, message string, cause error) *Error {
	return New(KindTransientTransport, op, message, cause)
}

// Permanent wraps err as a non-retryable transport failure.
func Permanent(op, message string, cause error) *Error {
	return New(KindPermanentTransport, op, message, cause)
}

// Parse wraps err as a parse/validation failure. Never crashes a task.
func Parse(op, message string, cause error) *Error {
	return New(KindParseValidation, op, message, cause)
}

// Conflict wraps err as an idempotency conflict, resolved as a no-op.
func Conflict(op, message string, cause error) *Error {
	return New(KindIdempotencyConflict, op, message, cause)
}

// Deadline wraps err as a hard deadline exceeded failure.
func Deadline(op, message string, cause error) *Error {
	return New(KindDeadlineExceeded, op, message, cause)
}

// Configuration wraps err as a fatal startup configuration failure.
func Configuration(op, message string, cause error) *Error {
	return New(KindConfiguration, op, message, cause)
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err should be retried within the task
// that produced it (transient transport only — permanent transport,
// parse failures, conflicts, deadlines, and configuration errors are
// all resolved by other means, never by blind retry).
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTransientTransport
}

// IsPermanent reports whether err should bump the Health Ledger
// straight to a hard failure without retrying in-task.
func IsPermanent(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindPermanentTransport
}

// IsConflict reports whether err is an idempotency conflict that
// should resolve as a no-op with an INFO log, not an error.
func IsConflict(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindIdempotencyConflict
}
