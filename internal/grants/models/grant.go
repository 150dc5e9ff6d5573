package models

import (
	"time"

	id "devportal/pkg/domain"
)

// RoleGrant records that a user holds a role on an application. A user holds
// at most one role per application; a new request while a grant exists is
// rejected, so the role changes only through revoke-then-request.
type RoleGrant struct {
	UserID        id.UserID        `json:"userId"`
	ApplicationID id.ApplicationID `json:"applicationId"`
	Role          id.Role          `json:"role"`
	GrantedBy     id.UserID        `json:"grantedBy"`
	GrantedAt     time.Time        `json:"grantedAt"`
}

// GrantedUser is the admin-facing view of a grant joined with account info.
type GrantedUser struct {
	UserID    id.UserID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      id.Role   `json:"role"`
	GrantedAt time.Time `json:"grantedAt"`
}

// PendingRequest is the admin-facing view of an access request joined with
// the requester's account info.
type PendingRequest struct {
	ID            id.RequestID `json:"id"`
	Username      string       `json:"username"`
	Email         string       `json:"email"`
	RequestedRole id.Role      `json:"requestedRole"`
	Message       string       `json:"message,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}
