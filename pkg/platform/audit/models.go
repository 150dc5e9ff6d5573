// Package audit captures key portal actions as events. Services emit events
// through a Publisher; a worker drains them into a Store, and an optional
// Kafka publisher mirrors them to an external topic.
package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"userId,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Action        string    `json:"action"`
	ApplicationID string    `json:"applicationId,omitempty"`
	Role          string    `json:"role,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
	// ActorID tracks who performed the action when different from UserID,
	// e.g. an application admin approving another user's access request.
	ActorID string `json:"actorId,omitempty"`
}

type AuditEvent string

const (
	// Identity events
	EventUserCreated AuditEvent = "user_created"
	EventLogin       AuditEvent = "login"
	EventLoginFailed AuditEvent = "login_failed"

	// Application events
	EventApplicationCreated AuditEvent = "application_created"
	EventApplicationUpdated AuditEvent = "application_updated"
	EventApplicationDeleted AuditEvent = "application_deleted"

	// Access grant events
	EventAccessRequested AuditEvent = "access_requested"
	EventAccessApproved  AuditEvent = "access_approved"
	EventAccessDenied    AuditEvent = "access_denied"
	EventAccessRevoked   AuditEvent = "access_revoked"

	// Authorization flow events
	EventCodeIssued     AuditEvent = "code_issued"
	EventCodeRedeemed   AuditEvent = "code_redeemed"
	EventReplayRejected AuditEvent = "replay_rejected"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher accepts events from domain services. Implementations must not
// block request handling; buffered channels or fire-and-forget produces only.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
