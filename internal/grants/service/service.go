package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"devportal/internal/grants/models"
	"devportal/internal/grants/store"
	identitymodels "devportal/internal/identity/models"
	"devportal/internal/platform/metrics"
	registrymodels "devportal/internal/registry/models"
	"devportal/pkg/attrs"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	audit "devportal/pkg/platform/audit"
	"devportal/pkg/requestcontext"
)

type RequestStore interface {
	Create(ctx context.Context, request *models.AccessRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.AccessRequest, error)
	ListPendingByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.AccessRequest, error)
	Transition(ctx context.Context, requestID id.RequestID, to models.RequestStatus, actor id.UserID, now time.Time) (*models.AccessRequest, error)
}

type GrantStore interface {
	Upsert(ctx context.Context, grant *models.RoleGrant) error
	Delete(ctx context.Context, appID id.ApplicationID, userID id.UserID) error
	Find(ctx context.Context, appID id.ApplicationID, userID id.UserID) (*models.RoleGrant, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.RoleGrant, error)
}

// ApplicationDirectory resolves applications without owner scoping; the
// grants service applies its own admin checks.
type ApplicationDirectory interface {
	FindByID(ctx context.Context, appID id.ApplicationID) (*registrymodels.Application, error)
}

// UserDirectory resolves account info for admin-facing views.
type UserDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the access request state machine and manages role grants.
type Service struct {
	requests       RequestStore
	grants         GrantStore
	apps           ApplicationDirectory
	users          UserDirectory
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(requests RequestStore, grants GrantStore, apps ApplicationDirectory, users UserDirectory, opts ...Option) *Service {
	s := &Service{requests: requests, grants: grants, apps: apps, users: users}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files an access request for a role on an application.
func (s *Service) Submit(ctx context.Context, req *models.CreateAccessRequest) (*models.AccessRequest, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	appID, err := id.ParseApplicationID(req.ApplicationID)
	if err != nil {
		return nil, err
	}
	role, err := id.ParseRole(req.RequestedRole)
	if err != nil {
		return nil, err
	}

	app, err := s.findApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !app.HasRole(role) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "application does not offer role %q", role)
	}

	if _, err := s.grants.Find(ctx, appID, req.UserID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "access already granted")
	}

	request, err := models.NewAccessRequest(
		id.NewRequestID(), appID, req.UserID, role, req.Message, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a pending request for this application already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create access request")
	}

	s.logAudit(ctx, string(audit.EventAccessRequested),
		"user_id", req.UserID.String(),
		"application_id", appID.String(),
		"role", string(role),
		"access_request_id", request.ID.String(),
	)
	if s.metrics != nil {
		s.metrics.AccessRequestsCreated.Inc()
	}
	return request, nil
}

// ListPending returns an application's pending requests joined with requester
// account info. Only the application admin may list them.
func (s *Service) ListPending(ctx context.Context, appID id.ApplicationID, callerID id.UserID) ([]*models.PendingRequest, error) {
	if _, err := s.requireAdmin(ctx, appID, callerID); err != nil {
		return nil, err
	}

	pending, err := s.requests.ListPendingByApplication(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending requests")
	}

	views := make([]*models.PendingRequest, 0, len(pending))
	for _, request := range pending {
		view := &models.PendingRequest{
			ID:            request.ID,
			RequestedRole: request.RequestedRole,
			Message:       request.Message,
			CreatedAt:     request.CreatedAt,
		}
		if user, err := s.users.FindByID(ctx, request.UserID); err == nil {
			view.Username = user.Username
			view.Email = user.Email
		}
		views = append(views, view)
	}
	return views, nil
}

// Approve resolves a pending request in the requester's favor and grants the
// role. The status transition is the atomic gate: of two racing decisions
// exactly one wins, and only the winner touches the grant.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID, callerID id.UserID) (*models.AccessRequest, error) {
	request, err := s.resolve(ctx, requestID, models.StatusApproved, callerID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	grant := &models.RoleGrant{
		UserID:        request.UserID,
		ApplicationID: request.ApplicationID,
		Role:          request.RequestedRole,
		GrantedBy:     callerID,
		GrantedAt:     now,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record grant")
	}

	s.logAudit(ctx, string(audit.EventAccessApproved),
		"user_id", request.UserID.String(),
		"actor_id", callerID.String(),
		"application_id", request.ApplicationID.String(),
		"role", string(request.RequestedRole),
		"access_request_id", request.ID.String(),
	)
	if s.metrics != nil {
		s.metrics.AccessRequestsApproved.Inc()
	}
	return request, nil
}

// Deny resolves a pending request against the requester.
func (s *Service) Deny(ctx context.Context, requestID id.RequestID, callerID id.UserID) (*models.AccessRequest, error) {
	request, err := s.resolve(ctx, requestID, models.StatusDenied, callerID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventAccessDenied),
		"user_id", request.UserID.String(),
		"actor_id", callerID.String(),
		"application_id", request.ApplicationID.String(),
		"role", string(request.RequestedRole),
		"access_request_id", request.ID.String(),
	)
	if s.metrics != nil {
		s.metrics.AccessRequestsDenied.Inc()
	}
	return request, nil
}

func (s *Service) resolve(ctx context.Context, requestID id.RequestID, to models.RequestStatus, callerID id.UserID) (*models.AccessRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "access request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access request")
	}
	if _, err := s.requireAdmin(ctx, request.ApplicationID, callerID); err != nil {
		return nil, err
	}

	resolved, err := s.requests.Transition(ctx, requestID, to, callerID, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "request already resolved")
		case errors.Is(err, store.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "access request not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve access request")
		}
	}
	return resolved, nil
}

// Revoke removes a user's grant on an application.
func (s *Service) Revoke(ctx context.Context, appID id.ApplicationID, userID id.UserID, callerID id.UserID) error {
	if _, err := s.requireAdmin(ctx, appID, callerID); err != nil {
		return err
	}

	grant, err := s.grants.Find(ctx, appID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grant")
	}
	if err := s.grants.Delete(ctx, appID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke grant")
	}

	s.logAudit(ctx, string(audit.EventAccessRevoked),
		"user_id", userID.String(),
		"actor_id", callerID.String(),
		"application_id", appID.String(),
		"role", string(grant.Role),
	)
	if s.metrics != nil {
		s.metrics.GrantsRevoked.Inc()
	}
	return nil
}

// ListUsers returns an application's granted users joined with account info.
func (s *Service) ListUsers(ctx context.Context, appID id.ApplicationID, callerID id.UserID) ([]*models.GrantedUser, error) {
	if _, err := s.requireAdmin(ctx, appID, callerID); err != nil {
		return nil, err
	}

	grants, err := s.grants.ListByApplication(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}

	users := make([]*models.GrantedUser, 0, len(grants))
	for _, grant := range grants {
		view := &models.GrantedUser{
			UserID:    grant.UserID,
			Role:      grant.Role,
			GrantedAt: grant.GrantedAt,
		}
		if user, err := s.users.FindByID(ctx, grant.UserID); err == nil {
			view.Username = user.Username
			view.Email = user.Email
		}
		users = append(users, view)
	}
	return users, nil
}

// Grant returns the user's grant on an application. The authorization flow
// engine calls this to decide whether a login may proceed.
func (s *Service) Grant(ctx context.Context, appID id.ApplicationID, userID id.UserID) (*models.RoleGrant, error) {
	grant, err := s.grants.Find(ctx, appID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "no access grant for this application")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grant")
	}
	return grant, nil
}

func (s *Service) requireAdmin(ctx context.Context, appID id.ApplicationID, callerID id.UserID) (*registrymodels.Application, error) {
	app, err := s.findApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !app.IsAdmin(callerID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the application admin may do this")
	}
	return app, nil
}

func (s *Service) findApp(ctx context.Context, appID id.ApplicationID) (*registrymodels.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		UserID:        attrs.ExtractString(attributes, "user_id"),
		Subject:       attrs.ExtractString(attributes, "user_id"),
		Action:        event,
		ApplicationID: attrs.ExtractString(attributes, "application_id"),
		Role:          attrs.ExtractString(attributes, "role"),
		RequestID:     attrs.ExtractString(attributes, "request_id"),
		ActorID:       attrs.ExtractString(attributes, "actor_id"),
	})
}
