// Package store holds access request and role grant persistence.
//
// Error contract: implementations return errors wrapping sentinel.ErrNotFound
// for missing records, sentinel.ErrConflict for a duplicate pending request,
// and sentinel.ErrInvalidState when a transition targets an already-resolved
// request. The grants service translates these into domain errors.
package store

import "devportal/pkg/platform/sentinel"

var (
	ErrNotFound     = sentinel.ErrNotFound
	ErrConflict     = sentinel.ErrConflict
	ErrInvalidState = sentinel.ErrInvalidState
)
