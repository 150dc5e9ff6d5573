package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"devportal/internal/platform/metrics"
	"devportal/internal/registry/models"
	"devportal/internal/registry/store"
	"devportal/pkg/attrs"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	audit "devportal/pkg/platform/audit"
	platformstrings "devportal/pkg/platform/strings"
	"devportal/pkg/requestcontext"
	"devportal/pkg/secrets"
)

type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	Update(ctx context.Context, app *models.Application) error
	Delete(ctx context.Context, appID id.ApplicationID) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FindByClientID(ctx context.Context, clientID string) (*models.Application, error)
	ListByOwner(ctx context.Context, ownerID id.UserID, offset, limit int) ([]*models.Application, int, error)
	ListAll(ctx context.Context, offset, limit int) ([]*models.Application, int, error)
	StatsByOwner(ctx context.Context, ownerID id.UserID) (models.Stats, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages the application registry: owner-facing CRUD plus the
// read path the authorization flow engine consults.
type Service struct {
	apps           ApplicationStore
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
func New(apps ApplicationStore, opts ...Option) *Service {
	s := &Service{apps: apps}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an application owned by the caller.
// Returns the created application and the cleartext client secret, which is
// only available at creation time: the store keeps a bcrypt hash.
func (s *Service) Register(ctx context.Context, req *models.CreateApplicationRequest) (*models.Application, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	secret, err := secrets.Generate()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate client secret")
	}
	secretHash, err := secrets.Hash(secret)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash client secret")
	}

	now := requestcontext.Now(ctx)
	app, err := models.NewApplication(
		id.NewApplicationID(),
		req.OwnerID,
		req.Name,
		uuid.NewString(),
		secretHash,
		req.RedirectURI,
		req.ParsedRoles(),
		now,
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, "", dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, "", err
	}

	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", dErrors.New(dErrors.CodeConflict, "clientId already registered")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
	}

	s.logAudit(ctx, string(audit.EventApplicationCreated),
		"user_id", req.OwnerID.String(),
		"application_id", app.ID.String(),
	)
	if s.metrics != nil {
		s.metrics.ApplicationsCreated.Inc()
	}
	return app, secret, nil
}

// Get returns an application for its admin. Non-admins get NotFound rather
// than Forbidden so application existence is not probeable by ID.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID, callerID id.UserID) (*models.Application, error) {
	app, err := s.findApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !app.IsAdmin(callerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return app, nil
}

// Update modifies mutable fields. ClientID and the secret hash never change.
func (s *Service) Update(ctx context.Context, appID id.ApplicationID, callerID id.UserID, req *models.UpdateApplicationRequest) (*models.Application, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	app, err := s.Get(ctx, appID, callerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.RedirectURI != nil {
		app.RedirectURI = *req.RedirectURI
	}
	if req.Roles != nil {
		// Shrinking the role set does not revoke existing grants; grants are
		// independent of the current role catalog.
		deduped := platformstrings.DedupeAndTrim(*req.Roles)
		roles := make([]id.Role, 0, len(deduped))
		for _, raw := range deduped {
			roles = append(roles, id.Role(raw))
		}
		app.Roles = roles
	}
	if req.Status != nil {
		app.Status = models.ApplicationStatus(*req.Status)
	}
	app.UpdatedAt = requestcontext.Now(ctx)

	if err := s.apps.Update(ctx, app); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update application")
	}

	s.logAudit(ctx, string(audit.EventApplicationUpdated),
		"user_id", callerID.String(),
		"application_id", app.ID.String(),
	)
	return app, nil
}

// Delete removes an application. Existing grants and historical access
// requests are left to the grants service to clean up, or to retain.
func (s *Service) Delete(ctx context.Context, appID id.ApplicationID, callerID id.UserID) error {
	app, err := s.Get(ctx, appID, callerID)
	if err != nil {
		return err
	}
	if err := s.apps.Delete(ctx, app.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete application")
	}
	s.logAudit(ctx, string(audit.EventApplicationDeleted),
		"user_id", callerID.String(),
		"application_id", app.ID.String(),
	)
	return nil
}

// Page is a paginated application listing.
type Page struct {
	Applications []*models.Application
	Total        int
	Page         int
	Pages        int
}

// ListOwned returns the caller's applications, newest first.
func (s *Service) ListOwned(ctx context.Context, callerID id.UserID, page, limit int) (*Page, error) {
	page, limit = normalizePage(page, limit)
	apps, total, err := s.apps.ListByOwner(ctx, callerID, (page-1)*limit, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return newPage(apps, total, page, limit), nil
}

// Browse returns all registered applications for the access-request catalog.
func (s *Service) Browse(ctx context.Context, page, limit int) (*Page, error) {
	page, limit = normalizePage(page, limit)
	apps, total, err := s.apps.ListAll(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to browse applications")
	}
	return newPage(apps, total, page, limit), nil
}

// Stats returns dashboard counts for the caller's applications.
func (s *Service) Stats(ctx context.Context, callerID id.UserID) (models.Stats, error) {
	stats, err := s.apps.StatsByOwner(ctx, callerID)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute stats")
	}
	return stats, nil
}

// Lookup maps clientId -> application as a single choke point for the
// authorization flow engine. Inactive applications resolve like unknown ones.
func (s *Service) Lookup(ctx context.Context, clientID string) (*models.Application, error) {
	if clientID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "clientId is required")
	}
	app, err := s.apps.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve application")
	}
	if !app.IsActive() {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return app, nil
}

func (s *Service) findApp(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
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
	userID := attrs.ExtractString(attributes, "user_id")
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		UserID:        userID,
		Subject:       userID,
		Action:        event,
		ApplicationID: attrs.ExtractString(attributes, "application_id"),
		RequestID:     attrs.ExtractString(attributes, "request_id"),
	})
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}

func newPage(apps []*models.Application, total, page, limit int) *Page {
	pages := (total + limit - 1) / limit
	if pages == 0 {
		pages = 1
	}
	return &Page{Applications: apps, Total: total, Page: page, Pages: pages}
}
