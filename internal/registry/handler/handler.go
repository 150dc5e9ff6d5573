package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"devportal/internal/registry/models"
	"devportal/internal/registry/service"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	"devportal/pkg/platform/httputil"
	"devportal/pkg/requestcontext"
)

// Service defines the application registry operations the HTTP layer needs.
type Service interface {
	Register(ctx context.Context, req *models.CreateApplicationRequest) (*models.Application, string, error)
	Get(ctx context.Context, appID id.ApplicationID, callerID id.UserID) (*models.Application, error)
	Update(ctx context.Context, appID id.ApplicationID, callerID id.UserID, req *models.UpdateApplicationRequest) (*models.Application, error)
	Delete(ctx context.Context, appID id.ApplicationID, callerID id.UserID) error
	ListOwned(ctx context.Context, callerID id.UserID, page, limit int) (*service.Page, error)
	Browse(ctx context.Context, page, limit int) (*service.Page, error)
	Stats(ctx context.Context, callerID id.UserID) (models.Stats, error)
}

// Handler wires application registry endpoints to the registry service.
// All routes require an authenticated session.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registry handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the application management endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleCreate)
	r.Get("/applications", h.HandleList)
	r.Get("/applications/stats", h.HandleStats)
	r.Get("/applications/browse/all", h.HandleBrowse)
	r.Get("/applications/{appID}", h.HandleGet)
	r.Put("/applications/{appID}", h.HandleUpdate)
	r.Delete("/applications/{appID}", h.HandleDelete)
}

// registerResponse carries the one-time cleartext client secret alongside the
// stored application. The secret is never retrievable again.
type registerResponse struct {
	Application  *models.Application `json:"application"`
	ClientSecret string              `json:"clientSecret"`
}

// pageResponse is the paginated listing envelope.
type pageResponse struct {
	Applications []*models.Application `json:"applications"`
	Total        int                   `json:"total"`
	Page         int                   `json:"page"`
	Pages        int                   `json:"pages"`
}

func fromPage(p *service.Page) pageResponse {
	return pageResponse{
		Applications: p.Applications,
		Total:        p.Total,
		Page:         p.Page,
		Pages:        p.Pages,
	}
}

// HandleCreate handles POST /applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.CreateApplicationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.OwnerID = userID

	app, secret, err := h.service.Register(ctx, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "application registration failed",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "application registered",
		"request_id", requestID,
		"user_id", userID,
		"application_id", app.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, registerResponse{Application: app, ClientSecret: secret})
}

// HandleList handles GET /applications for the caller's own applications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	page, limit := pagination(r)
	result, err := h.service.ListOwned(ctx, userID, page, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromPage(result))
}

// HandleBrowse handles GET /applications/browse/all, the catalog developers
// pick from when requesting access.
func (h *Handler) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.requireUser(w, ctx); !ok {
		return
	}

	page, limit := pagination(r)
	result, err := h.service.Browse(ctx, page, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromPage(result))
}

// HandleStats handles GET /applications/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	stats, err := h.service.Stats(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleGet handles GET /applications/{appID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	app, err := h.service.Get(ctx, appID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleUpdate handles PUT /applications/{appID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.UpdateApplicationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.service.Update(ctx, appID, userID, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "application update failed",
			"request_id", requestID,
			"user_id", userID,
			"application_id", appID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleDelete handles DELETE /applications/{appID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, appID, userID); err != nil {
		h.logger.WarnContext(ctx, "application deletion failed",
			"request_id", requestID,
			"user_id", userID,
			"application_id", appID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) appID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "appID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid application id"))
		return id.ApplicationID{}, false
	}
	return appID, true
}

// pagination reads the optional page and limit query parameters. The service
// clamps out-of-range values.
func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
