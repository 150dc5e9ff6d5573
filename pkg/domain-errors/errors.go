// Package domainerrors provides code-carrying errors for domain logic.
//
// Services create these at the boundary between domain rules and callers so
// transports can translate them into protocol responses without string
// matching. Stores return sentinel errors (pkg/platform/sentinel) instead;
// services translate sentinels into domain errors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation covers malformed or disallowed request parameters
	// (missing OAuth parameters, unsupported PKCE method, redirect mismatch).
	CodeValidation Code = "validation"

	// CodeInvalidInput covers unparseable values at trust boundaries
	// (bad UUIDs, empty identifiers).
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest covers structurally invalid requests (missing body,
	// unsupported operation).
	CodeBadRequest Code = "bad_request"

	// CodeUnauthorized covers failed authentication (bad credentials,
	// invalid or expired session token).
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden covers missing authorization (no role grant, caller is
	// not an admin of the application).
	CodeForbidden Code = "forbidden"

	// CodeNotFound covers unknown applications, requests, and users.
	CodeNotFound Code = "not_found"

	// CodeConflict covers duplicate pending requests and transitions on
	// already-resolved requests.
	CodeConflict Code = "conflict"

	// CodeReplay covers redemption failures. It is deliberately
	// undifferentiated: reused, expired, and PKCE-mismatched codes all map
	// here so redemption gives no oracle to an attacker.
	CodeReplay Code = "invalid_grant"

	// CodeInvariantViolation covers aggregate constructor and state machine
	// violations. Services convert these to CodeValidation at API edges.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeInternal covers infrastructure failures.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a classification code.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is matches another domain error by code and message, so tests can compare
// against a freshly constructed error with errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Message == "" {
		return e.Code == other.Code
	}
	return e.Code == other.Code && e.Message == other.Message
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the chain.
// Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, wrapped: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
