package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"devportal/internal/grants/models"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	"devportal/pkg/platform/httputil"
	"devportal/pkg/requestcontext"
)

// Service defines the access grant operations the HTTP layer needs.
type Service interface {
	Submit(ctx context.Context, req *models.CreateAccessRequest) (*models.AccessRequest, error)
	ListPending(ctx context.Context, appID id.ApplicationID, callerID id.UserID) ([]*models.PendingRequest, error)
	Approve(ctx context.Context, requestID id.RequestID, callerID id.UserID) (*models.AccessRequest, error)
	Deny(ctx context.Context, requestID id.RequestID, callerID id.UserID) (*models.AccessRequest, error)
	Revoke(ctx context.Context, appID id.ApplicationID, userID id.UserID, callerID id.UserID) error
	ListUsers(ctx context.Context, appID id.ApplicationID, callerID id.UserID) ([]*models.GrantedUser, error)
}

// Handler wires access request and grant endpoints to the grants service.
// All routes require an authenticated session.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a grants handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the access request and grant management endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/access-requests", h.HandleSubmit)
	r.Get("/access-requests/pending/{appID}", h.HandleListPending)
	r.Put("/access-requests/{requestID}/approve", h.HandleApprove)
	r.Put("/access-requests/{requestID}/deny", h.HandleDeny)

	r.Get("/applications/{appID}/users", h.HandleListUsers)
	r.Delete("/applications/{appID}/users/{userID}", h.HandleRevoke)
}

type pendingResponse struct {
	Requests []*models.PendingRequest `json:"requests"`
}

type usersResponse struct {
	Users []*models.GrantedUser `json:"users"`
}

// HandleSubmit handles POST /access-requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.CreateAccessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.UserID = userID

	request, err := h.service.Submit(ctx, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "access request rejected",
			"request_id", requestID,
			"user_id", userID,
			"application_id", req.ApplicationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "access request submitted",
		"request_id", requestID,
		"user_id", userID,
		"application_id", request.ApplicationID,
		"requested_role", request.RequestedRole,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, request)
}

// HandleListPending handles GET /access-requests/pending/{appID}.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListPending(ctx, appID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pendingResponse{Requests: requests})
}

// HandleApprove handles PUT /access-requests/{requestID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Approve, "access request approved")
}

// HandleDeny handles PUT /access-requests/{requestID}/deny.
func (h *Handler) HandleDeny(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Deny, "access request denied")
}

func (h *Handler) resolve(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, requestID id.RequestID, callerID id.UserID) (*models.AccessRequest, error),
	msg string,
) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}

	accessRequestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request id"))
		return
	}

	request, err := op(ctx, accessRequestID, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "access request resolution failed",
			"request_id", requestID,
			"user_id", userID,
			"access_request_id", accessRequestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, msg,
		"request_id", requestID,
		"user_id", userID,
		"access_request_id", accessRequestID,
	)
	httputil.WriteJSON(w, http.StatusOK, request)
}

// HandleListUsers handles GET /applications/{appID}/users.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListUsers(ctx, appID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, usersResponse{Users: users})
}

// HandleRevoke handles DELETE /applications/{appID}/users/{userID}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	callerID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid user id"))
		return
	}

	if err := h.service.Revoke(ctx, appID, userID, callerID); err != nil {
		h.logger.WarnContext(ctx, "grant revocation failed",
			"request_id", requestID,
			"user_id", callerID,
			"application_id", appID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "grant revoked",
		"request_id", requestID,
		"actor_id", callerID,
		"user_id", userID,
		"application_id", appID,
	)
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
