// Package store provides application persistence. Stores are pure I/O: they
// return sentinel errors and leave policy (ownership, status checks) to the
// service layer.
package store

import "devportal/pkg/platform/sentinel"

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested application does not exist
// - Return ErrConflict when a uniqueness constraint would be violated
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)
