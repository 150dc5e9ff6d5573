package models

import (
	"strings"
	"time"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
)

// RequestStatus is the lifecycle state of an access request.
//
// The machine is pending -> approved | denied. Approved and denied are
// terminal: a resolved request never transitions again, no matter how many
// concurrent decisions race on it.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// AccessRequest is a user's petition for a role on an application.
type AccessRequest struct {
	ID            id.RequestID     `json:"id"`
	ApplicationID id.ApplicationID `json:"applicationId"`
	UserID        id.UserID        `json:"userId"`
	RequestedRole id.Role          `json:"requestedRole"`
	Message       string           `json:"message,omitempty"`
	Status        RequestStatus    `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	ResolvedAt    *time.Time       `json:"resolvedAt,omitempty"`
	ResolvedBy    *id.UserID       `json:"resolvedBy,omitempty"`
}

func NewAccessRequest(
	requestID id.RequestID,
	applicationID id.ApplicationID,
	userID id.UserID,
	role id.Role,
	message string,
	now time.Time,
) (*AccessRequest, error) {
	if applicationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application is required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user is required")
	}
	if role == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requested role cannot be empty")
	}
	if len(message) > 500 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message must be 500 characters or less")
	}
	return &AccessRequest{
		ID:            requestID,
		ApplicationID: applicationID,
		UserID:        userID,
		RequestedRole: role,
		Message:       message,
		Status:        StatusPending,
		CreatedAt:     now,
	}, nil
}

// CreateAccessRequest carries the request form fields.
type CreateAccessRequest struct {
	UserID        id.UserID `json:"-"`
	ApplicationID string    `json:"applicationId"`
	RequestedRole string    `json:"requestedRole"`
	Message       string    `json:"message"`
}

func (r *CreateAccessRequest) Normalize() {
	r.ApplicationID = strings.TrimSpace(r.ApplicationID)
	r.RequestedRole = strings.TrimSpace(r.RequestedRole)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *CreateAccessRequest) Validate() error {
	if r.ApplicationID == "" {
		return dErrors.New(dErrors.CodeValidation, "applicationId is required")
	}
	if r.RequestedRole == "" {
		return dErrors.New(dErrors.CodeValidation, "requestedRole is required")
	}
	if len(r.Message) > 500 {
		return dErrors.New(dErrors.CodeValidation, "message must be 500 characters or less")
	}
	return nil
}
