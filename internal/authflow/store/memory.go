package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"devportal/internal/authflow/models"
)

// MemoryCodeStore stores authorization codes in memory for tests and
// development.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]*models.AuthorizationCode
}

// NewMemoryCodes constructs an empty in-memory code store.
func NewMemoryCodes() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[string]*models.AuthorizationCode)}
}

func (s *MemoryCodeStore) Create(_ context.Context, code *models.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *code
	s.codes[code.Code] = &copied
	return nil
}

// Consume atomically validates and spends a code. The lookup, the used and
// expiry checks, and the used flip all happen under one lock so two racing
// redemptions cannot both win.
func (s *MemoryCodeStore) Consume(_ context.Context, code string, now time.Time) (*models.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", ErrNotFound)
	}
	if record.Used {
		return nil, fmt.Errorf("authorization code already used: %w", ErrAlreadyUsed)
	}
	if !now.Before(record.ExpiresAt) {
		return nil, fmt.Errorf("authorization code expired: %w", ErrExpired)
	}
	record.MarkUsed()

	copied := *record
	return &copied, nil
}

// PruneExpired drops codes past their lifetime. The clock is injected so
// tests control expiry.
func (s *MemoryCodeStore) PruneExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for code, record := range s.codes {
		if record.ExpiresAt.Before(now) {
			delete(s.codes, code)
			pruned++
		}
	}
	return pruned, nil
}
