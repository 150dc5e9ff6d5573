package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"devportal/internal/identity/models"
	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	"devportal/pkg/platform/httputil"
	"devportal/pkg/platform/middleware/metadata"
	"devportal/pkg/requestcontext"
)

// Service defines the identity operations the HTTP layer needs.
type Service interface {
	Signup(ctx context.Context, req *models.SignupRequest) (*models.Session, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.Session, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
}

// Handler wires account endpoints to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an identity handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public account endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/signup", h.HandleSignup)
	r.Post("/auth/login", h.HandleLogin)
}

// RegisterProtected mounts endpoints that require an authenticated session.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
}

// HandleSignup handles POST /auth/signup.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.SignupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Signup(ctx, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "signup failed",
			"request_id", requestID,
			"email", req.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user signed up",
		"request_id", requestID,
		"user_id", session.User.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, session)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Login(ctx, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"client_ip", metadata.ClientIP(ctx),
			"user_agent", metadata.UserAgent(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user logged in",
		"request_id", requestID,
		"user_id", session.User.ID,
		"client_ip", metadata.ClientIP(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, session)
}

// HandleMe handles GET /auth/me for the authenticated user.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
