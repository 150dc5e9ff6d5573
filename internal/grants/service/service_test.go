package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"devportal/internal/grants/models"
	"devportal/internal/grants/store"
	identitymodels "devportal/internal/identity/models"
	identitystore "devportal/internal/identity/store"
	registrymodels "devportal/internal/registry/models"
	registrystore "devportal/internal/registry/store"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	"devportal/pkg/requestcontext"
)

type GrantsServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	service   *Service
	apps      *registrystore.MemoryStore
	users     *identitystore.MemoryStore
	admin     id.UserID
	requester id.UserID
	app       *registrymodels.Application
}

func (s *GrantsServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.apps = registrystore.NewMemory()
	s.users = identitystore.NewMemory()
	s.service = New(store.NewMemoryRequests(), store.NewMemoryGrants(), s.apps, s.users)

	s.admin = id.NewUserID()
	s.requester = s.addUser("alice", "alice@example.com")

	app, err := registrymodels.NewApplication(
		id.NewApplicationID(), s.admin, "Dashboard", "client-1", "hash",
		"https://example.com/callback", []id.Role{"viewer", "editor"}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.apps.Create(s.ctx, app))
	s.app = app
}

func (s *GrantsServiceSuite) addUser(username, email string) id.UserID {
	user, err := identitymodels.NewUser(id.NewUserID(), username, email, "hash", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(s.ctx, user))
	return user.ID
}

func (s *GrantsServiceSuite) submit() *models.AccessRequest {
	request, err := s.service.Submit(s.ctx, &models.CreateAccessRequest{
		UserID:        s.requester,
		ApplicationID: s.app.ID.String(),
		RequestedRole: "viewer",
		Message:       "need dashboards",
	})
	s.Require().NoError(err)
	return request
}

func (s *GrantsServiceSuite) TestSubmit() {
	request := s.submit()

	s.Equal(models.StatusPending, request.Status)
	s.Equal(id.Role("viewer"), request.RequestedRole)
	s.Equal(s.now, request.CreatedAt)
	s.Nil(request.ResolvedAt)

	s.Run("role not offered by the application", func() {
		_, err := s.service.Submit(s.ctx, &models.CreateAccessRequest{
			UserID:        s.requester,
			ApplicationID: s.app.ID.String(),
			RequestedRole: "owner",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown application", func() {
		_, err := s.service.Submit(s.ctx, &models.CreateAccessRequest{
			UserID:        s.requester,
			ApplicationID: id.NewApplicationID().String(),
			RequestedRole: "viewer",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("second pending request conflicts", func() {
		_, err := s.service.Submit(s.ctx, &models.CreateAccessRequest{
			UserID:        s.requester,
			ApplicationID: s.app.ID.String(),
			RequestedRole: "editor",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *GrantsServiceSuite) TestApprove() {
	request := s.submit()

	resolved, err := s.service.Approve(s.ctx, request.ID, s.admin)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, resolved.Status)
	s.Require().NotNil(resolved.ResolvedAt)
	s.Equal(s.now, *resolved.ResolvedAt)
	s.Require().NotNil(resolved.ResolvedBy)
	s.Equal(s.admin, *resolved.ResolvedBy)

	s.Run("grant is recorded", func() {
		grant, err := s.service.Grant(s.ctx, s.app.ID, s.requester)
		s.Require().NoError(err)
		s.Equal(id.Role("viewer"), grant.Role)
		s.Equal(s.admin, grant.GrantedBy)
	})

	s.Run("approving again conflicts", func() {
		_, err := s.service.Approve(s.ctx, request.ID, s.admin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("denying after approval conflicts", func() {
		_, err := s.service.Deny(s.ctx, request.ID, s.admin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("any existing grant blocks a new request", func() {
		for _, role := range []string{"viewer", "editor"} {
			_, err := s.service.Submit(s.ctx, &models.CreateAccessRequest{
				UserID:        s.requester,
				ApplicationID: s.app.ID.String(),
				RequestedRole: role,
			})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		}
	})

	s.Run("revocation reopens the request path", func() {
		s.Require().NoError(s.service.Revoke(s.ctx, s.app.ID, s.requester, s.admin))

		upgrade, err := s.service.Submit(s.ctx, &models.CreateAccessRequest{
			UserID:        s.requester,
			ApplicationID: s.app.ID.String(),
			RequestedRole: "editor",
		})
		s.Require().NoError(err)
		_, err = s.service.Approve(s.ctx, upgrade.ID, s.admin)
		s.Require().NoError(err)

		grant, err := s.service.Grant(s.ctx, s.app.ID, s.requester)
		s.Require().NoError(err)
		s.Equal(id.Role("editor"), grant.Role)
	})
}

func (s *GrantsServiceSuite) TestDeny() {
	request := s.submit()

	resolved, err := s.service.Deny(s.ctx, request.ID, s.admin)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, resolved.Status)

	s.Run("no grant is created", func() {
		_, err := s.service.Grant(s.ctx, s.app.ID, s.requester)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("denied request allows a fresh submission", func() {
		again := s.submit()
		s.Equal(models.StatusPending, again.Status)
	})
}

func (s *GrantsServiceSuite) TestOnlyAdminResolves() {
	request := s.submit()
	stranger := id.NewUserID()

	_, err := s.service.Approve(s.ctx, request.ID, stranger)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Deny(s.ctx, request.ID, stranger)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.ListPending(s.ctx, s.app.ID, stranger)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.ListUsers(s.ctx, s.app.ID, stranger)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.service.Revoke(s.ctx, s.app.ID, s.requester, stranger)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// TestConcurrentResolution races an approve against a deny on the same
// pending request. Exactly one decision must win.
func (s *GrantsServiceSuite) TestConcurrentResolution() {
	request := s.submit()

	var wg sync.WaitGroup
	var approveErr, denyErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = s.service.Approve(s.ctx, request.ID, s.admin)
	}()
	go func() {
		defer wg.Done()
		_, denyErr = s.service.Deny(s.ctx, request.ID, s.admin)
	}()
	wg.Wait()

	if approveErr == nil {
		s.Require().Error(denyErr)
		s.True(dErrors.HasCode(denyErr, dErrors.CodeConflict))
	} else {
		s.Require().NoError(denyErr)
		s.True(dErrors.HasCode(approveErr, dErrors.CodeConflict))
	}

	final, err := s.service.requests.FindByID(s.ctx, request.ID)
	s.Require().NoError(err)
	s.True(final.Status.IsTerminal())
}

func (s *GrantsServiceSuite) TestListPending() {
	bob := s.addUser("bob", "bob@example.com")
	s.submit()
	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	_, err := s.service.Submit(later, &models.CreateAccessRequest{
		UserID:        bob,
		ApplicationID: s.app.ID.String(),
		RequestedRole: "editor",
	})
	s.Require().NoError(err)

	pending, err := s.service.ListPending(s.ctx, s.app.ID, s.admin)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("alice", pending[0].Username)
	s.Equal("alice@example.com", pending[0].Email)
	s.Equal("bob", pending[1].Username)
}

func (s *GrantsServiceSuite) TestRevoke() {
	request := s.submit()
	_, err := s.service.Approve(s.ctx, request.ID, s.admin)
	s.Require().NoError(err)

	users, err := s.service.ListUsers(s.ctx, s.app.ID, s.admin)
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal("alice", users[0].Username)
	s.Equal(id.Role("viewer"), users[0].Role)

	s.Require().NoError(s.service.Revoke(s.ctx, s.app.ID, s.requester, s.admin))

	_, err = s.service.Grant(s.ctx, s.app.ID, s.requester)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Run("revoking twice reports not found", func() {
		err := s.service.Revoke(s.ctx, s.app.ID, s.requester, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("request record stays approved after revocation", func() {
		final, err := s.service.requests.FindByID(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, final.Status)
	})
}

func TestGrantsServiceSuite(t *testing.T) {
	suite.Run(t, new(GrantsServiceSuite))
}
