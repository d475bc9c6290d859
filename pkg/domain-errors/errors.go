// Package domainerrors carries coded errors across layer boundaries.
//
// Services translate infrastructure sentinels (pkg/platform/sentinel) into
// coded errors here; transport maps codes onto HTTP statuses. Codes mirror
// the externally visible error kinds of the trust core: not-found, conflict,
// precondition, validation, and storage failures.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure independent of transport.
type Code string

const (
	// CodeNotFound — referenced party, entity, challenge, endpoint, request,
	// or grant is absent or tombstoned.
	CodeNotFound Code = "not_found"
	// CodeConflict — a uniqueness invariant was violated (duplicate pending
	// challenge or access request, second live entity for a party).
	CodeConflict Code = "conflict"
	// CodePrecondition — the operation is not legal in the aggregate's
	// current state (publishing for a non-active owner, deciding a
	// non-pending request, revoking an inactive grant).
	CodePrecondition Code = "precondition_failed"
	// CodeValidation — malformed input (scopes not a subset, empty denial
	// reason, bad identifiers).
	CodeValidation Code = "validation_failed"
	// CodeStorage — the transactional store failed; idempotent operations
	// may be retried, non-idempotent ones must not be retried blindly.
	CodeStorage Code = "storage_failure"
	// CodeInvariantViolation — a domain constructor or transition guard was
	// asked to break a model invariant. Services usually rewrap these as
	// CodeValidation or CodePrecondition before returning to callers.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnauthorized / CodeForbidden are transport-surface codes used by
	// the middleware stack, not by the core services.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable via errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// ToHTTPStatus keeps the code → status mapping in one place so every
// transport handler produces the same envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePrecondition:
		return http.StatusUnprocessableEntity
	case CodeValidation, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
