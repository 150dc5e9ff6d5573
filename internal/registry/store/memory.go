package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"devportal/internal/registry/models"
	id "devportal/pkg/domain"
)

// MemoryStore stores applications in memory for tests and development.
type MemoryStore struct {
	mu         sync.RWMutex
	apps       map[id.ApplicationID]*models.Application
	byClientID map[string]id.ApplicationID
}

// NewMemory constructs an empty in-memory application store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		apps:       make(map[id.ApplicationID]*models.Application),
		byClientID: make(map[string]id.ApplicationID),
	}
}

func (s *MemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byClientID[app.ClientID]; exists {
		return fmt.Errorf("clientId already registered: %w", ErrConflict)
	}
	copied := *app
	s.apps[app.ID] = &copied
	s.byClientID[app.ClientID] = app.ID
	return nil
}

func (s *MemoryStore) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apps[app.ID]
	if !ok {
		return fmt.Errorf("application not found: %w", ErrNotFound)
	}
	// ClientID is immutable; keep the stored value authoritative.
	copied := *app
	copied.ClientID = existing.ClientID
	copied.ClientSecretHash = existing.ClientSecretHash
	s.apps[app.ID] = &copied
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, appID id.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return fmt.Errorf("application not found: %w", ErrNotFound)
	}
	delete(s.byClientID, app.ClientID)
	delete(s.apps, appID)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", ErrNotFound)
	}
	copied := *app
	return &copied, nil
}

func (s *MemoryStore) FindByClientID(_ context.Context, clientID string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appID, ok := s.byClientID[clientID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", ErrNotFound)
	}
	copied := *s.apps[appID]
	return &copied, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID id.UserID, offset, limit int) ([]*models.Application, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var owned []*models.Application
	for _, app := range s.apps {
		if app.OwnerID == ownerID {
			copied := *app
			owned = append(owned, &copied)
		}
	}
	return paginate(owned, offset, limit)
}

func (s *MemoryStore) ListAll(_ context.Context, offset, limit int) ([]*models.Application, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*models.Application, 0, len(s.apps))
	for _, app := range s.apps {
		copied := *app
		all = append(all, &copied)
	}
	return paginate(all, offset, limit)
}

func (s *MemoryStore) StatsByOwner(_ context.Context, ownerID id.UserID) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.Stats
	for _, app := range s.apps {
		if app.OwnerID != ownerID {
			continue
		}
		stats.Total++
		switch app.Status {
		case models.StatusActive:
			stats.Active++
		case models.StatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

// paginate sorts newest-first for stable pages, then slices.
func paginate(apps []*models.Application, offset, limit int) ([]*models.Application, int, error) {
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID.String() < apps[j].ID.String()
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	total := len(apps)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return apps[offset:end], total, nil
}
