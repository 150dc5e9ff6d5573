package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"devportal/pkg/requestcontext"
)

// RequestMeta stamps each request with a correlation ID and the ingress time.
// Downstream code reads both through pkg/requestcontext, which keeps clock
// usage injectable in tests.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
