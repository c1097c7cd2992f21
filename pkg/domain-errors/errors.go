// Package domainerrors carries coded errors across layer boundaries so
// transports can map failures without string matching. Stores return
// sentinel errors (pkg/platform/sentinel); services translate them into
// coded errors here.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers.
type Code string

const (
	// CodeInvalidArgument marks caller mistakes: out-of-range week,
	// missing required field. Never retried.
	CodeInvalidArgument Code = "invalid_argument"

	// CodeNotFound marks a missing student, serial, or register so
	// callers can offer "create it" flows.
	CodeNotFound Code = "not_found"

	// CodeUnavailable marks transport-level or server-side backend
	// failures. The core does not retry; a caller may.
	CodeUnavailable Code = "backend_unavailable"

	// CodeConflict marks ambiguous provisioning state observed during a
	// race (e.g. two registers with the same title).
	CodeConflict Code = "schema_conflict"

	// CodeUnauthorized marks a missing or invalid caller identity.
	CodeUnauthorized Code = "unauthorized"

	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is the structured error returned to callers. Message is safe to
// surface to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with a client-facing message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf extracts the outermost code, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the outermost client-facing message.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps codes to HTTP statuses for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusBadGateway
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
