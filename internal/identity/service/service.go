package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"devportal/internal/identity/models"
	"devportal/internal/identity/store"
	"devportal/internal/identity/token"
	"devportal/internal/platform/metrics"
	"devportal/pkg/attrs"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	audit "devportal/pkg/platform/audit"
	"devportal/pkg/requestcontext"
	"devportal/pkg/secrets"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages portal accounts and session tokens.
type Service struct {
	users          UserStore
	tokens         *token.Manager
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
func New(users UserStore, tokens *token.Manager, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates an account and logs the new user in.
func (s *Service) Signup(ctx context.Context, req *models.SignupRequest) (*models.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := secrets.Hash(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user, err := models.NewUser(id.NewUserID(), req.Username, req.Email, hash, now)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, string(audit.EventUserCreated), "user_id", user.ID.String())
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
	return s.issueSession(ctx, user, now)
}

// Login authenticates by email and password. Unknown email and wrong password
// fail identically so login gives no account-existence oracle.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, s.failLogin(ctx, req.Email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	if err := secrets.Verify(req.Password, user.PasswordHash); err != nil {
		return nil, s.failLogin(ctx, req.Email)
	}

	s.logAudit(ctx, string(audit.EventLogin), "user_id", user.ID.String())
	if s.metrics != nil {
		s.metrics.LoginsSucceeded.Inc()
	}
	return s.issueSession(ctx, user, requestcontext.Now(ctx))
}

func (s *Service) failLogin(ctx context.Context, email string) error {
	s.logAudit(ctx, string(audit.EventLoginFailed), "email", email)
	if s.metrics != nil {
		s.metrics.LoginsFailed.Inc()
	}
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

func (s *Service) issueSession(ctx context.Context, user *models.User, now time.Time) (*models.Session, error) {
	signed, err := s.tokens.Issue(user.ID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session token")
	}
	return &models.Session{
		Token:     signed,
		User:      user,
		ExpiresAt: now.Add(s.tokens.TTL()),
	}, nil
}

// VerifySession is the authoritative session check used by the request
// middleware.
func (s *Service) VerifySession(sessionToken string, now time.Time) (id.UserID, error) {
	return s.tokens.Verify(sessionToken, now)
}

// VerifySessionWithMargin additionally requires the session to stay valid for
// at least margin past now.
func (s *Service) VerifySessionWithMargin(sessionToken string, now time.Time, margin time.Duration) (id.UserID, error) {
	return s.tokens.VerifyWithMargin(sessionToken, now, margin)
}

// GetUser loads a user by ID.
func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
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
	userID := attrs.ExtractString(attributes, "user_id")
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		UserID:    userID,
		Subject:   userID,
		Action:    event,
		RequestID: attrs.ExtractString(attributes, "request_id"),
	})
}
