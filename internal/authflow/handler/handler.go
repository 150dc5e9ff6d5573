package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"devportal/internal/authflow/models"
	"devportal/internal/authflow/service"
	identitymodels "devportal/internal/identity/models"
	registrymodels "devportal/internal/registry/models"
	"devportal/pkg/platform/httputil"
	"devportal/pkg/requestcontext"
)

// Service defines the authorization flow operations the HTTP layer needs.
type Service interface {
	Validate(ctx context.Context, params *models.AuthorizeParams) (*registrymodels.Descriptor, error)
	AuthorizeWithCredentials(ctx context.Context, req *models.CredentialAuthorizeRequest) (string, *identitymodels.Session, error)
	AutoAuthorize(ctx context.Context, req *models.TokenAuthorizeRequest) (string, error)
	Redeem(ctx context.Context, req *models.RedeemRequest) (*models.AccessCredential, error)
}

// Handler wires the OAuth endpoints to the authorization flow service. These
// endpoints are unauthenticated at the transport level: credentials or a
// session token travel in the request body.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an authorization flow handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the OAuth endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/oauth/validate", h.HandleValidate)
	r.Post("/oauth/authorize", h.HandleAuthorize)
	r.Post("/oauth/authorize-with-token", h.HandleAutoAuthorize)
	r.Post("/oauth/token", h.HandleRedeem)
}

// validateResponse wraps the public application descriptor shown on the
// authorization page.
type validateResponse struct {
	Application *registrymodels.Descriptor `json:"application"`
}

// authorizeResponse carries the freshly minted authorization code together
// with the fully composed redirect target. Token is set only on the
// credential path so the frontend can keep the session.
type authorizeResponse struct {
	Code        string `json:"code"`
	RedirectURL string `json:"redirectUrl"`
	Token       string `json:"token,omitempty"`
}

// loginRequiredResponse tells the client to fall back to the interactive
// login form.
type loginRequiredResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// HandleValidate handles GET /oauth/validate. Parameters arrive in the query
// string because the authorization page loads them from its redirect URL.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	params := paramsFromQuery(r)
	descriptor, err := h.service.Validate(ctx, params)
	if err != nil {
		h.logger.WarnContext(ctx, "authorization request rejected",
			"request_id", requestID,
			"client_id", params.ClientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, validateResponse{Application: descriptor})
}

// HandleAuthorize handles POST /oauth/authorize, the interactive flow where
// the user signs in on the authorization page.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.CredentialAuthorizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	code, session, err := h.service.AuthorizeWithCredentials(ctx, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "authorization failed",
			"request_id", requestID,
			"client_id", req.ClientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "authorization code issued",
		"request_id", requestID,
		"client_id", req.ClientID,
		"user_id", session.User.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, authorizeResponse{
		Code:        code,
		RedirectURL: models.AppendCode(req.RedirectURL, code),
		Token:       session.Token,
	})
}

// HandleAutoAuthorize handles POST /oauth/authorize-with-token, the silent
// flow backed by an existing portal session. When the session cannot carry
// the authorization the client gets 401 login_required and shows the form.
func (h *Handler) HandleAutoAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.TokenAuthorizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	code, err := h.service.AutoAuthorize(ctx, &req)
	if errors.Is(err, service.ErrNoSilentAuth) {
		httputil.WriteJSON(w, http.StatusUnauthorized, loginRequiredResponse{
			Error:       "login_required",
			Description: "interactive login is required",
		})
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "silent authorization failed",
			"request_id", requestID,
			"client_id", req.ClientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "silent authorization code issued",
		"request_id", requestID,
		"client_id", req.ClientID,
	)
	httputil.WriteJSON(w, http.StatusOK, authorizeResponse{
		Code:        code,
		RedirectURL: models.AppendCode(req.RedirectURL, code),
	})
}

// HandleRedeem handles POST /oauth/token, exchanging a code plus PKCE
// verifier for the granted credential.
func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RedeemRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	credential, err := h.service.Redeem(ctx, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "code redemption rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "authorization code redeemed",
		"request_id", requestID,
		"user_id", credential.UserID,
		"application_id", credential.ApplicationID,
	)
	httputil.WriteJSON(w, http.StatusOK, credential)
}

func paramsFromQuery(r *http.Request) *models.AuthorizeParams {
	q := r.URL.Query()
	return &models.AuthorizeParams{
		ClientID:            q.Get("clientId"),
		RedirectURL:         q.Get("redirectUrl"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}
