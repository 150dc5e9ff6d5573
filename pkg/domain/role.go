package domain

import dErrors "devportal/pkg/domain-errors"

// Role is a role name defined by an application.
// Invariant: non-empty, at most 64 characters. Role names are free-form per
// application; membership in a specific application's role set is checked by
// the grants service, not here.
type Role string

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or too long.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	if len(s) > 64 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role must be 64 characters or less")
	}
	return Role(s), nil
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}
