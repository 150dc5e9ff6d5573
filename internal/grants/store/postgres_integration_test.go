//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"devportal/internal/grants/models"
	id "devportal/pkg/domain"
	"devportal/pkg/testutil/containers"
)

type PostgresGrantsSuite struct {
	suite.Suite
	ctx      context.Context
	pg       *containers.PostgresContainer
	requests *PostgresRequestStore
	grants   *PostgresGrantStore
	now      time.Time
}

func (s *PostgresGrantsSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.requests = NewPostgresRequests(s.pg.DB)
	s.grants = NewPostgresGrants(s.pg.DB)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresGrantsSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx))
}

func (s *PostgresGrantsSuite) newRequest() *models.AccessRequest {
	request, err := models.NewAccessRequest(
		id.NewRequestID(), id.NewApplicationID(), id.NewUserID(), "viewer", "please", s.now)
	s.Require().NoError(err)
	return request
}

func (s *PostgresGrantsSuite) TestRequestRoundTrip() {
	request := s.newRequest()
	s.Require().NoError(s.requests.Create(s.ctx, request))

	found, err := s.requests.FindByID(s.ctx, request.ID)
	s.Require().NoError(err)
	s.Equal(request.ID, found.ID)
	s.Equal(models.StatusPending, found.Status)
	s.Equal("please", found.Message)
	s.Nil(found.ResolvedAt)
}

func (s *PostgresGrantsSuite) TestOnePendingPerUserAndApplication() {
	request := s.newRequest()
	s.Require().NoError(s.requests.Create(s.ctx, request))

	dup, err := models.NewAccessRequest(
		id.NewRequestID(), request.ApplicationID, request.UserID, "editor", "", s.now)
	s.Require().NoError(err)
	s.Require().ErrorIs(s.requests.Create(s.ctx, dup), ErrConflict)

	s.Run("resolved request frees the slot", func() {
		_, err := s.requests.Transition(s.ctx, request.ID, models.StatusDenied, id.NewUserID(), s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.requests.Create(s.ctx, dup))
	})
}

func (s *PostgresGrantsSuite) TestTransitionCompareAndSet() {
	request := s.newRequest()
	s.Require().NoError(s.requests.Create(s.ctx, request))
	actor := id.NewUserID()

	resolved, err := s.requests.Transition(s.ctx, request.ID, models.StatusApproved, actor, s.now)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, resolved.Status)
	s.Require().NotNil(resolved.ResolvedAt)
	s.Require().NotNil(resolved.ResolvedBy)
	s.Equal(actor, *resolved.ResolvedBy)

	_, err = s.requests.Transition(s.ctx, request.ID, models.StatusDenied, actor, s.now)
	s.Require().ErrorIs(err, ErrInvalidState)

	_, err = s.requests.Transition(s.ctx, id.NewRequestID(), models.StatusApproved, actor, s.now)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *PostgresGrantsSuite) TestTransitionRace() {
	request := s.newRequest()
	s.Require().NoError(s.requests.Create(s.ctx, request))
	actor := id.NewUserID()

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			to := models.StatusApproved
			if i%2 == 1 {
				to = models.StatusDenied
			}
			_, errs[i] = s.requests.Transition(s.ctx, request.ID, to, actor, s.now)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			s.Require().ErrorIs(err, ErrInvalidState)
		}
	}
	s.Equal(1, wins)
}

func (s *PostgresGrantsSuite) TestGrantLifecycle() {
	appID := id.NewApplicationID()
	userID := id.NewUserID()
	admin := id.NewUserID()

	grant := &models.RoleGrant{
		UserID:        userID,
		ApplicationID: appID,
		Role:          "viewer",
		GrantedBy:     admin,
		GrantedAt:     s.now,
	}
	s.Require().NoError(s.grants.Upsert(s.ctx, grant))

	found, err := s.grants.Find(s.ctx, appID, userID)
	s.Require().NoError(err)
	s.Equal(id.Role("viewer"), found.Role)

	s.Run("upsert replaces the role", func() {
		grant.Role = "editor"
		grant.GrantedAt = s.now.Add(time.Hour)
		s.Require().NoError(s.grants.Upsert(s.ctx, grant))

		found, err := s.grants.Find(s.ctx, appID, userID)
		s.Require().NoError(err)
		s.Equal(id.Role("editor"), found.Role)

		all, err := s.grants.ListByApplication(s.ctx, appID)
		s.Require().NoError(err)
		s.Len(all, 1)
	})

	s.Run("delete removes the grant", func() {
		s.Require().NoError(s.grants.Delete(s.ctx, appID, userID))
		_, err := s.grants.Find(s.ctx, appID, userID)
		s.Require().ErrorIs(err, ErrNotFound)
		s.Require().ErrorIs(s.grants.Delete(s.ctx, appID, userID), ErrNotFound)
	})
}

func TestPostgresGrantsSuite(t *testing.T) {
	suite.Run(t, new(PostgresGrantsSuite))
}
