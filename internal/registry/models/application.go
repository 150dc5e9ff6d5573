package models

import (
	"net/url"
	"time"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
)

// ApplicationStatus is the lifecycle state of a registered application.
type ApplicationStatus string

const (
	StatusActive  ApplicationStatus = "active"
	StatusPending ApplicationStatus = "pending"
)

// IsValid checks if the status is one of the supported enum values.
func (s ApplicationStatus) IsValid() bool {
	return s == StatusActive || s == StatusPending
}

// Application is the aggregate root for a registered third-party application.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - ClientID is non-empty and immutable after construction
//   - ClientSecretHash is generated once at creation and never re-exposed
//   - RedirectURI is a single absolute URL; redirect targets match it exactly
//   - Roles is non-empty; removing a role later does not revoke existing grants
//   - Status is either active or pending; only active applications authorize
type Application struct {
	ID               id.ApplicationID  `json:"id"`
	OwnerID          id.UserID         `json:"ownerId"`
	Name             string            `json:"name"`
	ClientID         string            `json:"clientId"`
	ClientSecretHash string            `json:"-"` // Never serialize - contains bcrypt hash
	RedirectURI      string            `json:"redirectUri"`
	Roles            []id.Role         `json:"roles"`
	Status           ApplicationStatus `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func NewApplication(
	appID id.ApplicationID,
	ownerID id.UserID,
	name string,
	clientID string,
	clientSecretHash string,
	redirectURI string,
	roles []id.Role,
	now time.Time,
) (*Application, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application name must be 128 characters or less")
	}
	if clientID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "clientId cannot be empty")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner is required")
	}
	if err := validateRedirectURI(redirectURI); err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "roles cannot be empty")
	}
	return &Application{
		ID:               appID,
		OwnerID:          ownerID,
		Name:             name,
		ClientID:         clientID,
		ClientSecretHash: clientSecretHash,
		RedirectURI:      redirectURI,
		Roles:            roles,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func validateRedirectURI(raw string) error {
	if raw == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "redirectUri cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "redirectUri must be an absolute URL")
	}
	return nil
}

func (a *Application) IsActive() bool {
	return a.Status == StatusActive
}

// IsRedirectAllowed reports whether the presented redirect target equals the
// registered URI. Exact string comparison: no prefix matching, no wildcard
// expansion, a trailing slash or extra query string is a mismatch.
func (a *Application) IsRedirectAllowed(redirectURL string) bool {
	return redirectURL != "" && redirectURL == a.RedirectURI
}

// HasRole reports whether the role is currently in the application's role set.
func (a *Application) HasRole(role id.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user may manage this application.
func (a *Application) IsAdmin(userID id.UserID) bool {
	return a.OwnerID == userID
}

// Descriptor is the public shape of an application shown on the authorization
// page. It carries no secret material.
type Descriptor struct {
	ID       id.ApplicationID `json:"id"`
	Name     string           `json:"name"`
	ClientID string           `json:"clientId"`
}

// Descriptor returns the application's public descriptor.
func (a *Application) Descriptor() Descriptor {
	return Descriptor{ID: a.ID, Name: a.Name, ClientID: a.ClientID}
}

// Stats aggregates application counts for an owner's dashboard.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Pending int `json:"pending"`
}
