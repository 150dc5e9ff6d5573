package models

import (
	"strings"

	"github.com/asaskevich/govalidator"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	platformstrings "devportal/pkg/platform/strings"
)

// CreateApplicationRequest carries the registration form fields.
type CreateApplicationRequest struct {
	OwnerID     id.UserID `json:"-"`
	Name        string    `json:"name"`
	RedirectURI string    `json:"redirectUri"`
	Roles       []string  `json:"roles"`
}

func (r *CreateApplicationRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.RedirectURI = strings.TrimSpace(r.RedirectURI)
	for i := range r.Roles {
		r.Roles[i] = strings.TrimSpace(r.Roles[i])
	}
}

func (r *CreateApplicationRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if !govalidator.StringLength(r.RedirectURI, "1", "2048") || !govalidator.IsURL(r.RedirectURI) {
		return dErrors.New(dErrors.CodeValidation, "redirectUri must be a valid URL")
	}
	if len(r.Roles) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one role is required")
	}
	for _, role := range r.Roles {
		if _, err := id.ParseRole(role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid role")
		}
	}
	return nil
}

// ParsedRoles returns the request roles as domain values, deduplicated while
// preserving order. Call only after Validate.
func (r *CreateApplicationRequest) ParsedRoles() []id.Role {
	deduped := platformstrings.DedupeAndTrim(r.Roles)
	roles := make([]id.Role, 0, len(deduped))
	for _, raw := range deduped {
		roles = append(roles, id.Role(raw))
	}
	return roles
}

// UpdateApplicationRequest carries mutable application fields. Nil pointers
// mean "leave unchanged". ClientID and the secret hash are not updatable.
type UpdateApplicationRequest struct {
	Name        *string   `json:"name"`
	RedirectURI *string   `json:"redirectUri"`
	Roles       *[]string `json:"roles"`
	Status      *string   `json:"status"`
}

func (r *UpdateApplicationRequest) Normalize() {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
	if r.RedirectURI != nil {
		trimmed := strings.TrimSpace(*r.RedirectURI)
		r.RedirectURI = &trimmed
	}
	if r.Roles != nil {
		for i := range *r.Roles {
			(*r.Roles)[i] = strings.TrimSpace((*r.Roles)[i])
		}
	}
}

func (r *UpdateApplicationRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name cannot be empty")
	}
	if r.RedirectURI != nil && (!govalidator.StringLength(*r.RedirectURI, "1", "2048") || !govalidator.IsURL(*r.RedirectURI)) {
		return dErrors.New(dErrors.CodeValidation, "redirectUri must be a valid URL")
	}
	if r.Roles != nil {
		if len(*r.Roles) == 0 {
			return dErrors.New(dErrors.CodeValidation, "at least one role is required")
		}
		for _, role := range *r.Roles {
			if _, err := id.ParseRole(role); err != nil {
				return dErrors.Wrap(err, dErrors.CodeValidation, "invalid role")
			}
		}
	}
	if r.Status != nil && !ApplicationStatus(*r.Status).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be active or pending")
	}
	return nil
}
