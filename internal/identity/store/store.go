// Package store holds user persistence implementations.
//
// Error contract: implementations return errors wrapping sentinel.ErrNotFound
// for missing users and sentinel.ErrConflict for duplicate emails or
// usernames. The identity service translates these into domain errors.
package store

import "devportal/pkg/platform/sentinel"

var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)
