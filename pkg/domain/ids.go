// Package domain holds domain primitives shared across bounded contexts.
//
// Typed IDs wrap uuid.UUID so the compiler rejects cross-type assignment
// (a UserID can never be passed where an ApplicationID is expected). Construct
// via the Parse helpers at trust boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "devportal/pkg/domain-errors"
)

// UserID identifies a portal account.
type UserID uuid.UUID

// ApplicationID identifies a registered application.
type ApplicationID uuid.UUID

// RequestID identifies an access request.
type RequestID uuid.UUID

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewApplicationID returns a fresh random ApplicationID.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// NewRequestID returns a fresh random RequestID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseUserID validates and returns a UserID.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

// ParseApplicationID validates and returns an ApplicationID.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s)
	return ApplicationID(u), err
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s)
	return RequestID(u), err
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id RequestID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps the canonical UUID string form in JSON and logs.

func (id UserID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id ApplicationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ApplicationID) UnmarshalText(text []byte) error {
	parsed, err := ParseApplicationID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequestID) UnmarshalText(text []byte) error {
	parsed, err := ParseRequestID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
