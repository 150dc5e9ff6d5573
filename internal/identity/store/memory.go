package store

import (
	"context"
	"fmt"
	"sync"

	"devportal/internal/identity/models"
	id "devportal/pkg/domain"
)

// MemoryStore stores users in memory for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

// NewMemory constructs an empty in-memory user store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *MemoryStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[user.Email]; exists {
		return fmt.Errorf("email already registered: %w", ErrConflict)
	}
	copied := *user
	s.users[user.ID] = &copied
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	copied := *s.users[userID]
	return &copied, nil
}
