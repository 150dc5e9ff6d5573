package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
	"devportal/pkg/platform/httputil"
	"devportal/pkg/requestcontext"
)

// SessionVerifier is the authoritative session check: signature plus expiry
// against the server clock. Handlers must never substitute a client-side
// reading of the token for this.
type SessionVerifier interface {
	VerifySession(token string, now time.Time) (id.UserID, error)
}

// RequireSession authenticates requests carrying a Bearer session token and
// injects the verified user ID into the request context.
func RequireSession(verifier SessionVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}

			userID, err := verifier.VerifySession(token, requestcontext.Now(r.Context()))
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "session verification failed",
						"request_id", requestcontext.RequestID(r.Context()),
						"error", err,
					)
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired session"))
				return
			}

			ctx := requestcontext.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
