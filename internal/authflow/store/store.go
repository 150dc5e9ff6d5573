// Package store holds authorization code persistence.
//
// Error contract: implementations return errors wrapping sentinel.ErrNotFound
// for unknown codes, sentinel.ErrAlreadyUsed for consumed codes, and
// sentinel.ErrExpired for codes past their lifetime. The engine collapses all
// of these into one undifferentiated redemption failure.
package store

import "devportal/pkg/platform/sentinel"

var (
	ErrNotFound    = sentinel.ErrNotFound
	ErrAlreadyUsed = sentinel.ErrAlreadyUsed
	ErrExpired     = sentinel.ErrExpired
)
