package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"devportal/internal/registry/models"
	"devportal/internal/registry/store"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	"devportal/pkg/requestcontext"
	"devportal/pkg/secrets"
)

type RegistryServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	service *Service
	owner   id.UserID
}

func (s *RegistryServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = New(store.NewMemory())
	s.owner = id.NewUserID()
}

func (s *RegistryServiceSuite) register(name string) (*models.Application, string) {
	app, secret, err := s.service.Register(s.ctx, &models.CreateApplicationRequest{
		OwnerID:     s.owner,
		Name:        name,
		RedirectURI: "https://example.com/callback",
		Roles:       []string{"viewer", "editor"},
	})
	s.Require().NoError(err)
	return app, secret
}

func (s *RegistryServiceSuite) TestRegister() {
	app, secret := s.register("Dashboard")

	s.Equal("Dashboard", app.Name)
	s.Equal(s.owner, app.OwnerID)
	s.Equal(models.StatusActive, app.Status)
	s.NotEmpty(app.ClientID)
	s.NotEmpty(secret)
	s.Equal(s.now, app.CreatedAt)

	s.Run("secret is stored hashed, cleartext verifies once", func() {
		s.NotEqual(secret, app.ClientSecretHash)
		s.NoError(secrets.Verify(secret, app.ClientSecretHash))
	})

	s.Run("roles are deduplicated", func() {
		dup, _, err := s.service.Register(s.ctx, &models.CreateApplicationRequest{
			OwnerID:     s.owner,
			Name:        "Dup Roles",
			RedirectURI: "https://example.com/cb",
			Roles:       []string{"viewer", "viewer", "editor"},
		})
		s.Require().NoError(err)
		s.Equal([]id.Role{"viewer", "editor"}, dup.Roles)
	})
}

func (s *RegistryServiceSuite) TestRegisterValidation() {
	tests := []struct {
		name string
		req  models.CreateApplicationRequest
	}{
		{
			name: "missing name",
			req: models.CreateApplicationRequest{
				OwnerID:     s.owner,
				RedirectURI: "https://example.com/cb",
				Roles:       []string{"viewer"},
			},
		},
		{
			name: "missing redirect",
			req: models.CreateApplicationRequest{
				OwnerID: s.owner,
				Name:    "App",
				Roles:   []string{"viewer"},
			},
		},
		{
			name: "relative redirect",
			req: models.CreateApplicationRequest{
				OwnerID:     s.owner,
				Name:        "App",
				RedirectURI: "/callback",
				Roles:       []string{"viewer"},
			},
		},
		{
			name: "no roles",
			req: models.CreateApplicationRequest{
				OwnerID:     s.owner,
				Name:        "App",
				RedirectURI: "https://example.com/cb",
			},
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.service.Register(s.ctx, &tt.req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *RegistryServiceSuite) TestGetOwnerOnly() {
	app, _ := s.register("Dashboard")

	found, err := s.service.Get(s.ctx, app.ID, s.owner)
	s.Require().NoError(err)
	s.Equal(app.ID, found.ID)

	s.Run("non-owner gets not found, not forbidden", func() {
		_, err := s.service.Get(s.ctx, app.ID, id.NewUserID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown id", func() {
		_, err := s.service.Get(s.ctx, id.NewApplicationID(), s.owner)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistryServiceSuite) TestUpdate() {
	app, secret := s.register("Dashboard")

	name := "Renamed"
	status := "pending"
	roles := []string{"viewer"}
	updated, err := s.service.Update(s.ctx, app.ID, s.owner, &models.UpdateApplicationRequest{
		Name:   &name,
		Roles:  &roles,
		Status: &status,
	})
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Name)
	s.Equal(models.StatusPending, updated.Status)
	s.Equal([]id.Role{"viewer"}, updated.Roles)

	s.Run("clientId and secret survive updates", func() {
		stored, err := s.service.Get(s.ctx, app.ID, s.owner)
		s.Require().NoError(err)
		s.Equal(app.ClientID, stored.ClientID)
		s.NoError(secrets.Verify(secret, stored.ClientSecretHash))
	})

	s.Run("non-owner cannot update", func() {
		_, err := s.service.Update(s.ctx, app.ID, id.NewUserID(), &models.UpdateApplicationRequest{Name: &name})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid status rejected", func() {
		bad := "disabled"
		_, err := s.service.Update(s.ctx, app.ID, s.owner, &models.UpdateApplicationRequest{Status: &bad})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistryServiceSuite) TestDelete() {
	app, _ := s.register("Dashboard")

	s.Run("non-owner cannot delete", func() {
		err := s.service.Delete(s.ctx, app.ID, id.NewUserID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Require().NoError(s.service.Delete(s.ctx, app.ID, s.owner))

	_, err := s.service.Get(s.ctx, app.ID, s.owner)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Lookup(s.ctx, app.ClientID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistryServiceSuite) TestLookup() {
	app, _ := s.register("Dashboard")

	found, err := s.service.Lookup(s.ctx, app.ClientID)
	s.Require().NoError(err)
	s.Equal(app.ID, found.ID)

	s.Run("empty clientId", func() {
		_, err := s.service.Lookup(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown clientId", func() {
		_, err := s.service.Lookup(s.ctx, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("inactive application resolves like unknown", func() {
		status := "pending"
		_, err := s.service.Update(s.ctx, app.ID, s.owner, &models.UpdateApplicationRequest{Status: &status})
		s.Require().NoError(err)

		_, err = s.service.Lookup(s.ctx, app.ClientID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistryServiceSuite) TestListOwnedAndBrowse() {
	for i, name := range []string{"First", "Second", "Third"} {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Minute))
		_, _, err := s.service.Register(ctx, &models.CreateApplicationRequest{
			OwnerID:     s.owner,
			Name:        name,
			RedirectURI: "https://example.com/cb",
			Roles:       []string{"viewer"},
		})
		s.Require().NoError(err)
	}
	other := id.NewUserID()
	_, _, err := s.service.Register(s.ctx, &models.CreateApplicationRequest{
		OwnerID:     other,
		Name:        "Theirs",
		RedirectURI: "https://example.com/cb",
		Roles:       []string{"viewer"},
	})
	s.Require().NoError(err)

	page, err := s.service.ListOwned(s.ctx, s.owner, 1, 2)
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Equal(2, page.Pages)
	s.Require().Len(page.Applications, 2)
	s.Equal("Third", page.Applications[0].Name)
	s.Equal("Second", page.Applications[1].Name)

	page, err = s.service.ListOwned(s.ctx, s.owner, 2, 2)
	s.Require().NoError(err)
	s.Require().Len(page.Applications, 1)
	s.Equal("First", page.Applications[0].Name)

	browse, err := s.service.Browse(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.Equal(4, browse.Total)
	s.Equal(1, browse.Pages)
}

func (s *RegistryServiceSuite) TestStats() {
	app, _ := s.register("Active One")
	s.register("Active Two")

	status := "pending"
	_, err := s.service.Update(s.ctx, app.ID, s.owner, &models.UpdateApplicationRequest{Status: &status})
	s.Require().NoError(err)

	stats, err := s.service.Stats(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Equal(models.Stats{Total: 2, Active: 1, Pending: 1}, stats)

	s.Run("owner with no applications", func() {
		stats, err := s.service.Stats(s.ctx, id.NewUserID())
		s.Require().NoError(err)
		s.Equal(models.Stats{}, stats)
	})
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}
