package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"devportal/internal/authflow/models"
	"devportal/internal/authflow/pkce"
	grantsmodels "devportal/internal/grants/models"
	identitymodels "devportal/internal/identity/models"
	"devportal/internal/platform/metrics"
	registrymodels "devportal/internal/registry/models"
	"devportal/pkg/attrs"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	audit "devportal/pkg/platform/audit"
	"devportal/pkg/requestcontext"
	"devportal/pkg/secrets"
)

// SessionMargin is the minimum remaining session lifetime required for
// silent authorization. A session expiring sooner falls back to the
// interactive flow instead of risking expiry mid-handshake.
const SessionMargin = 30 * time.Second

// ErrNoSilentAuth signals that silent authorization is not possible and the
// caller should fall back to the interactive flow. It is a routing signal,
// not a failure: an expired session or a missing grant at the silent stage is
// the common case.
var ErrNoSilentAuth = errors.New("no silent authorization possible")

// Applications is the registry read path the engine consults.
type Applications interface {
	Lookup(ctx context.Context, clientID string) (*registrymodels.Application, error)
}

// Credentials authenticates a user and issues a fresh session.
type Credentials interface {
	Login(ctx context.Context, req *identitymodels.LoginRequest) (*identitymodels.Session, error)
}

// Sessions is the authoritative session check. Any expiry hint a client
// derived locally never substitutes for this.
type Sessions interface {
	VerifySessionWithMargin(token string, now time.Time, margin time.Duration) (id.UserID, error)
}

// Grants resolves a user's role grant on an application.
type Grants interface {
	Grant(ctx context.Context, appID id.ApplicationID, userID id.UserID) (*grantsmodels.RoleGrant, error)
}

// CodeStore persists one-time authorization codes. Consume must be atomic:
// at most one caller per code value ever succeeds.
type CodeStore interface {
	Create(ctx context.Context, code *models.AuthorizationCode) error
	Consume(ctx context.Context, code string, now time.Time) (*models.AuthorizationCode, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the authorization flow engine. It validates incoming OAuth
// parameters, decides between silent and interactive authorization, and
// mints and redeems one-time PKCE-bound codes.
type Service struct {
	apps           Applications
	credentials    Credentials
	sessions       Sessions
	grants         Grants
	codes          CodeStore
	codeTTL        time.Duration
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

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.codeTTL = ttl
	}
}

// New constructs a Service. The default code lifetime is 60 seconds.
func New(apps Applications, credentials Credentials, sessions Sessions, grants Grants, codes CodeStore, opts ...Option) *Service {
	s := &Service{
		apps:        apps,
		credentials: credentials,
		sessions:    sessions,
		grants:      grants,
		codes:       codes,
		codeTTL:     time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks the four OAuth parameters against the registry and the
// PKCE rules, and returns the application's public descriptor for the
// authorization page. No secret material leaves this function.
func (s *Service) Validate(ctx context.Context, params *models.AuthorizeParams) (*registrymodels.Descriptor, error) {
	app, err := s.validate(ctx, params)
	if err != nil {
		return nil, err
	}
	descriptor := app.Descriptor()
	return &descriptor, nil
}

func (s *Service) validate(ctx context.Context, params *models.AuthorizeParams) (*registrymodels.Application, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := pkce.AcceptMethod(params.CodeChallengeMethod); err != nil {
		return nil, err
	}
	if err := pkce.ValidateChallenge(params.CodeChallenge); err != nil {
		return nil, err
	}

	app, err := s.apps.Lookup(ctx, params.ClientID)
	if err != nil {
		return nil, err
	}
	if !app.IsRedirectAllowed(params.RedirectURL) {
		return nil, dErrors.New(dErrors.CodeValidation, "redirectUrl does not match the registered redirect URI")
	}
	return app, nil
}

// AutoAuthorize attempts silent authorization with an existing session
// token. Parameter and client failures are hard errors; an unusable session
// or a missing grant returns ErrNoSilentAuth so the caller degrades to the
// interactive flow instead of showing a fatal page.
func (s *Service) AutoAuthorize(ctx context.Context, req *models.TokenAuthorizeRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}
	app, err := s.validate(ctx, &req.AuthorizeParams)
	if err != nil {
		return "", err
	}

	now := requestcontext.Now(ctx)
	userID, err := s.sessions.VerifySessionWithMargin(req.Token, now, SessionMargin)
	if err != nil {
		return "", s.fallback(ctx, "session not usable for silent auth", err)
	}

	grant, err := s.grants.Grant(ctx, app.ID, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			return "", s.fallback(ctx, "no grant for silent auth", err)
		}
		return "", err
	}

	code, err := s.mint(ctx, app, userID, grant.Role, &req.AuthorizeParams, "auto")
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.AutoAuthorized.Inc()
	}
	return code, nil
}

func (s *Service) fallback(ctx context.Context, reason string, cause error) error {
	if s.logger != nil {
		s.logger.DebugContext(ctx, "silent authorization fallback", "reason", reason, "cause", cause)
	}
	if s.metrics != nil {
		s.metrics.AutoAuthFallback.Inc()
	}
	return ErrNoSilentAuth
}

// AuthorizeWithCredentials runs the interactive flow: authenticate, check
// the grant, mint a code. A fresh portal session is issued alongside the
// code so the browser can silently authorize next time.
func (s *Service) AuthorizeWithCredentials(ctx context.Context, req *models.CredentialAuthorizeRequest) (string, *identitymodels.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", nil, err
	}
	app, err := s.validate(ctx, &req.AuthorizeParams)
	if err != nil {
		return "", nil, err
	}

	session, err := s.credentials.Login(ctx, &identitymodels.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return "", nil, err
	}

	grant, err := s.grants.Grant(ctx, app.ID, session.User.ID)
	if err != nil {
		return "", nil, err
	}

	code, err := s.mint(ctx, app, session.User.ID, grant.Role, &req.AuthorizeParams, "credentials")
	if err != nil {
		return "", nil, err
	}
	return code, session, nil
}

func (s *Service) mint(ctx context.Context, app *registrymodels.Application, userID id.UserID, role id.Role, params *models.AuthorizeParams, flow string) (string, error) {
	value, err := secrets.Generate()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate authorization code")
	}

	record, err := models.NewAuthorizationCode(
		value, app.ID, userID, role, params.RedirectURL, params.CodeChallenge,
		requestcontext.Now(ctx), s.codeTTL)
	if err != nil {
		return "", err
	}
	if err := s.codes.Create(ctx, record); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store authorization code")
	}

	s.logAudit(ctx, string(audit.EventCodeIssued),
		"user_id", userID.String(),
		"application_id", app.ID.String(),
		"role", string(role),
		"flow", flow,
	)
	if s.metrics != nil {
		s.metrics.CodesIssued.Inc()
	}
	return value, nil
}

// Redeem spends a code exactly once. Unknown, expired, consumed, and
// PKCE-mismatched codes all fail with the same undifferentiated error so
// redemption gives no oracle for code guessing.
func (s *Service) Redeem(ctx context.Context, req *models.RedeemRequest) (*models.AccessCredential, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record, err := s.codes.Consume(ctx, req.Code, now)
	if err != nil {
		return nil, s.rejectRedemption(ctx, "")
	}
	if !pkce.Verify(req.Verifier, record.CodeChallenge) {
		return nil, s.rejectRedemption(ctx, record.UserID.String())
	}

	s.logAudit(ctx, string(audit.EventCodeRedeemed),
		"user_id", record.UserID.String(),
		"application_id", record.ApplicationID.String(),
		"role", string(record.Role),
	)
	if s.metrics != nil {
		s.metrics.CodesRedeemed.Inc()
	}
	return &models.AccessCredential{
		UserID:        record.UserID,
		ApplicationID: record.ApplicationID,
		Role:          record.Role,
	}, nil
}

func (s *Service) rejectRedemption(ctx context.Context, userID string) error {
	s.logAudit(ctx, string(audit.EventReplayRejected), "user_id", userID)
	if s.metrics != nil {
		s.metrics.RedeemRejected.Inc()
	}
	return dErrors.New(dErrors.CodeReplay, "invalid or expired authorization code")
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
		Timestamp:     requestcontext.Now(ctx),
		UserID:        userID,
		Subject:       userID,
		Action:        event,
		ApplicationID: attrs.ExtractString(attributes, "application_id"),
		Role:          attrs.ExtractString(attributes, "role"),
		RequestID:     attrs.ExtractString(attributes, "request_id"),
	})
}
