package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devportal/internal/grants/models"
	id "devportal/pkg/domain"
)

// MemoryRequestStore stores access requests in memory for tests and
// development.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.AccessRequest
}

// NewMemoryRequests constructs an empty in-memory access request store.
func NewMemoryRequests() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[id.RequestID]*models.AccessRequest),
	}
}

func (s *MemoryRequestStore) Create(_ context.Context, request *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.UserID == request.UserID &&
			existing.ApplicationID == request.ApplicationID &&
			existing.Status == models.StatusPending {
			return fmt.Errorf("pending request already exists: %w", ErrConflict)
		}
	}
	copied := *request
	s.requests[request.ID] = &copied
	return nil
}

func (s *MemoryRequestStore) FindByID(_ context.Context, requestID id.RequestID) (*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("access request not found: %w", ErrNotFound)
	}
	copied := *request
	return &copied, nil
}

func (s *MemoryRequestStore) ListPendingByApplication(_ context.Context, appID id.ApplicationID) ([]*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []*models.AccessRequest
	for _, request := range s.requests {
		if request.ApplicationID == appID && request.Status == models.StatusPending {
			copied := *request
			pending = append(pending, &copied)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// Transition atomically moves a pending request to a terminal status. The
// status check and the write happen under one lock so two racing decisions
// cannot both win; the loser gets ErrInvalidState.
func (s *MemoryRequestStore) Transition(
	_ context.Context,
	requestID id.RequestID,
	to models.RequestStatus,
	actor id.UserID,
	now time.Time,
) (*models.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("access request not found: %w", ErrNotFound)
	}
	if request.Status != models.StatusPending {
		return nil, fmt.Errorf("request already %s: %w", request.Status, ErrInvalidState)
	}

	request.Status = to
	resolvedAt := now
	request.ResolvedAt = &resolvedAt
	resolvedBy := actor
	request.ResolvedBy = &resolvedBy

	copied := *request
	return &copied, nil
}

type grantKey struct {
	userID id.UserID
	appID  id.ApplicationID
}

// MemoryGrantStore stores role grants in memory for tests and development.
type MemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[grantKey]*models.RoleGrant
}

// NewMemoryGrants constructs an empty in-memory grant store.
func NewMemoryGrants() *MemoryGrantStore {
	return &MemoryGrantStore{grants: make(map[grantKey]*models.RoleGrant)}
}

func (s *MemoryGrantStore) Upsert(_ context.Context, grant *models.RoleGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *grant
	s.grants[grantKey{userID: grant.UserID, appID: grant.ApplicationID}] = &copied
	return nil
}

func (s *MemoryGrantStore) Delete(_ context.Context, appID id.ApplicationID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{userID: userID, appID: appID}
	if _, ok := s.grants[key]; !ok {
		return fmt.Errorf("grant not found: %w", ErrNotFound)
	}
	delete(s.grants, key)
	return nil
}

func (s *MemoryGrantStore) Find(_ context.Context, appID id.ApplicationID, userID id.UserID) (*models.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[grantKey{userID: userID, appID: appID}]
	if !ok {
		return nil, fmt.Errorf("grant not found: %w", ErrNotFound)
	}
	copied := *grant
	return &copied, nil
}

func (s *MemoryGrantStore) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*models.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var grants []*models.RoleGrant
	for _, grant := range s.grants {
		if grant.ApplicationID == appID {
			copied := *grant
			grants = append(grants, &copied)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].GrantedAt.Before(grants[j].GrantedAt)
	})
	return grants, nil
}
