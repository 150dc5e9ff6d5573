package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authflowhandler "devportal/internal/authflow/handler"
	authflowservice "devportal/internal/authflow/service"
	authflowstore "devportal/internal/authflow/store"
	grantshandler "devportal/internal/grants/handler"
	grantsservice "devportal/internal/grants/service"
	grantsstore "devportal/internal/grants/store"
	identityhandler "devportal/internal/identity/handler"
	identityservice "devportal/internal/identity/service"
	identitystore "devportal/internal/identity/store"
	"devportal/internal/identity/token"
	registryhandler "devportal/internal/registry/handler"
	registryservice "devportal/internal/registry/service"
	registrystore "devportal/internal/registry/store"
)

// Verifier and challenge pair from RFC 7636 appendix B.
const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

const redirectURI = "https://app.example.com/callback"

func newPortalRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := identitystore.NewMemory()
	apps := registrystore.NewMemory()
	requests := grantsstore.NewMemoryRequests()
	grants := grantsstore.NewMemoryGrants()
	codes := authflowstore.NewMemoryCodes()

	tokens := token.NewManager("router-test-signing-key", 24*time.Hour)
	identitySvc := identityservice.New(users, tokens, identityservice.WithLogger(logger))
	registrySvc := registryservice.New(apps, registryservice.WithLogger(logger))
	grantsSvc := grantsservice.New(requests, grants, apps, users, grantsservice.WithLogger(logger))
	authflowSvc := authflowservice.New(registrySvc, identitySvc, identitySvc, grantsSvc, codes,
		authflowservice.WithLogger(logger))

	return NewRouter(Handlers{
		Identity: identityhandler.New(identitySvc, logger),
		Registry: registryhandler.New(registrySvc, logger),
		Grants:   grantshandler.New(grantsSvc, logger),
		AuthFlow: authflowhandler.New(authflowSvc, logger),
	}, identitySvc, logger)
}

func doJSON(t *testing.T, router http.Handler, method, path, sessionToken string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

type sessionResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

type appResponse struct {
	Application struct {
		ID          string   `json:"id"`
		ClientID    string   `json:"clientId"`
		Name        string   `json:"name"`
		RedirectURI string   `json:"redirectUri"`
		Roles       []string `json:"roles"`
	} `json:"application"`
	ClientSecret string `json:"clientSecret"`
}

func signup(t *testing.T, router http.Handler, username, email string) sessionResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from signup, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[sessionResponse](t, rec)
}

func registerApp(t *testing.T, router http.Handler, sessionToken string) appResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/applications", sessionToken, map[string]any{
		"name":        "Inventory Dashboard",
		"redirectUri": redirectURI,
		"roles":       []string{"viewer", "editor"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering application, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[appResponse](t, rec)
	if resp.ClientSecret == "" {
		t.Fatalf("expected one-time client secret in registration response")
	}
	return resp
}

func oauthParams(clientID string) map[string]any {
	return map[string]any{
		"clientId":              clientID,
		"redirectUrl":           redirectURI,
		"code_challenge":        testChallenge,
		"code_challenge_method": "S256",
	}
}

func TestFullAuthorizationFlow(t *testing.T) {
	router := newPortalRouter(t)

	owner := signup(t, router, "owner", "owner@example.com")
	app := registerApp(t, router, owner.Token)
	dev := signup(t, router, "devon", "devon@example.com")

	// Developer requests viewer access.
	rec := doJSON(t, router, http.MethodPost, "/access-requests", dev.Token, map[string]string{
		"applicationId": app.Application.ID,
		"requestedRole": "viewer",
		"message":       "need read access for reporting",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 submitting access request, got %d: %s", rec.Code, rec.Body.String())
	}

	// The owner sees the pending request with the requester's account info.
	rec = doJSON(t, router, http.MethodGet, "/access-requests/pending/"+app.Application.ID, owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing pending requests, got %d", rec.Code)
	}
	pending := decode[struct {
		Requests []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			RequestedRole string `json:"requestedRole"`
		} `json:"requests"`
	}](t, rec)
	if len(pending.Requests) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending.Requests))
	}
	if pending.Requests[0].Username != "devon" {
		t.Fatalf("expected pending request joined with username, got %q", pending.Requests[0].Username)
	}

	rec = doJSON(t, router, http.MethodPut, "/access-requests/"+pending.Requests[0].ID+"/approve", owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 approving request, got %d: %s", rec.Code, rec.Body.String())
	}

	// The granted user appears on the application's user list.
	rec = doJSON(t, router, http.MethodGet, "/applications/"+app.Application.ID+"/users", owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing granted users, got %d", rec.Code)
	}
	granted := decode[struct {
		Users []struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"users"`
	}](t, rec)
	if len(granted.Users) != 1 || granted.Users[0].Role != "viewer" {
		t.Fatalf("expected one viewer grant, got %+v", granted.Users)
	}

	// The authorization page validates the request and shows the app name.
	validateURL := "/oauth/validate?clientId=" + app.Application.ClientID +
		"&redirectUrl=" + redirectURI +
		"&code_challenge=" + testChallenge +
		"&code_challenge_method=S256"
	rec = doJSON(t, router, http.MethodGet, validateURL, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 validating oauth params, got %d: %s", rec.Code, rec.Body.String())
	}
	validated := decode[struct {
		Application struct {
			Name string `json:"name"`
		} `json:"application"`
	}](t, rec)
	if validated.Application.Name != "Inventory Dashboard" {
		t.Fatalf("expected application descriptor, got %+v", validated)
	}

	// The developer signs in on the authorization page and gets a code.
	body := oauthParams(app.Application.ClientID)
	body["email"] = "devon@example.com"
	body["password"] = "correct-horse-battery"
	rec = doJSON(t, router, http.MethodPost, "/oauth/authorize", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 authorizing, got %d: %s", rec.Code, rec.Body.String())
	}
	authorized := decode[struct {
		Code        string `json:"code"`
		RedirectURL string `json:"redirectUrl"`
		Token       string `json:"token"`
	}](t, rec)
	if authorized.Code == "" || authorized.Token == "" {
		t.Fatalf("expected code and session token, got %+v", authorized)
	}
	if authorized.RedirectURL != redirectURI+"?code="+authorized.Code {
		t.Fatalf("unexpected composed redirect %q", authorized.RedirectURL)
	}

	// The application's backend exchanges the code with the PKCE verifier.
	rec = doJSON(t, router, http.MethodPost, "/oauth/token", "", map[string]string{
		"code":     authorized.Code,
		"verifier": testVerifier,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 redeeming code, got %d: %s", rec.Code, rec.Body.String())
	}
	credential := decode[struct {
		Role          string `json:"role"`
		ApplicationID string `json:"applicationId"`
	}](t, rec)
	if credential.Role != "viewer" || credential.ApplicationID != app.Application.ID {
		t.Fatalf("unexpected credential %+v", credential)
	}

	// Replaying the same code is rejected with the generic grant error.
	rec = doJSON(t, router, http.MethodPost, "/oauth/token", "", map[string]string{
		"code":     authorized.Code,
		"verifier": testVerifier,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on code replay, got %d", rec.Code)
	}
	replay := decode[struct {
		Error string `json:"error"`
	}](t, rec)
	if replay.Error != "invalid_grant" {
		t.Fatalf("expected invalid_grant error, got %q", replay.Error)
	}
}

func TestSilentAuthorization(t *testing.T) {
	router := newPortalRouter(t)

	owner := signup(t, router, "owner", "owner@example.com")
	app := registerApp(t, router, owner.Token)
	dev := signup(t, router, "devon", "devon@example.com")

	rec := doJSON(t, router, http.MethodPost, "/access-requests", dev.Token, map[string]string{
		"applicationId": app.Application.ID,
		"requestedRole": "editor",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 submitting access request, got %d", rec.Code)
	}
	pending := decode[struct {
		Requests []struct {
			ID string `json:"id"`
		} `json:"requests"`
	}](t, doJSON(t, router, http.MethodGet, "/access-requests/pending/"+app.Application.ID, owner.Token, nil))
	rec = doJSON(t, router, http.MethodPut, "/access-requests/"+pending.Requests[0].ID+"/approve", owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 approving request, got %d", rec.Code)
	}

	// A fresh portal session authorizes silently.
	body := oauthParams(app.Application.ClientID)
	body["token"] = dev.Token
	rec = doJSON(t, router, http.MethodPost, "/oauth/authorize-with-token", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from silent authorization, got %d: %s", rec.Code, rec.Body.String())
	}
	silent := decode[struct {
		Code string `json:"code"`
	}](t, rec)
	if silent.Code == "" {
		t.Fatalf("expected authorization code from silent flow")
	}

	// A garbage token falls back to the interactive flow instead of erroring.
	body = oauthParams(app.Application.ClientID)
	body["token"] = "not-a-session-token"
	rec = doJSON(t, router, http.MethodPost, "/oauth/authorize-with-token", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 fallback, got %d", rec.Code)
	}
	fallback := decode[struct {
		Error string `json:"error"`
	}](t, rec)
	if fallback.Error != "login_required" {
		t.Fatalf("expected login_required, got %q", fallback.Error)
	}

	// A user without a grant also falls back rather than leaking a 403.
	outsider := signup(t, router, "mallory", "mallory@example.com")
	body = oauthParams(app.Application.ClientID)
	body["token"] = outsider.Token
	rec = doJSON(t, router, http.MethodPost, "/oauth/authorize-with-token", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 fallback for ungranted user, got %d", rec.Code)
	}
}

func TestApplicationManagement(t *testing.T) {
	router := newPortalRouter(t)

	owner := signup(t, router, "owner", "owner@example.com")
	app := registerApp(t, router, owner.Token)

	rec := doJSON(t, router, http.MethodGet, "/auth/me", owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", rec.Code)
	}
	me := decode[struct {
		Username string `json:"username"`
	}](t, rec)
	if me.Username != "owner" {
		t.Fatalf("expected own profile, got %+v", me)
	}

	// Owners see their application; everyone else gets a 404, not a 403.
	rec = doJSON(t, router, http.MethodGet, "/applications/"+app.Application.ID, owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching own application, got %d", rec.Code)
	}
	stranger := signup(t, router, "stranger", "stranger@example.com")
	rec = doJSON(t, router, http.MethodGet, "/applications/"+app.Application.ID, stranger.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owner, got %d", rec.Code)
	}

	newName := "Inventory Dashboard v2"
	rec = doJSON(t, router, http.MethodPut, "/applications/"+app.Application.ID, owner.Token, map[string]any{
		"name": newName,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating application, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[struct {
		Name     string `json:"name"`
		ClientID string `json:"clientId"`
	}](t, rec)
	if updated.Name != newName || updated.ClientID != app.Application.ClientID {
		t.Fatalf("expected rename with stable clientId, got %+v", updated)
	}

	rec = doJSON(t, router, http.MethodGet, "/applications/stats", owner.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from stats, got %d", rec.Code)
	}
	stats := decode[struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	}](t, rec)
	if stats.Total != 1 || stats.Active != 1 {
		t.Fatalf("expected one active application, got %+v", stats)
	}

	rec = doJSON(t, router, http.MethodGet, "/applications/not-a-uuid", owner.Token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/applications/"+app.Application.ID, owner.Token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting application, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/applications/"+app.Application.ID, owner.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after deletion, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	router := newPortalRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/applications", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/applications", "bogus-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus session, got %d", rec.Code)
	}
}

func TestValidateRejectsUnknownClient(t *testing.T) {
	router := newPortalRouter(t)

	rec := doJSON(t, router, http.MethodGet,
		"/oauth/validate?clientId=nope&redirectUrl="+redirectURI+
			"&code_challenge="+testChallenge+"&code_challenge_method=S256", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown client, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newPortalRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rec.Code)
	}
}
