// Package httputil centralizes JSON encoding and domain error translation for
// HTTP handlers so every endpoint produces the same error envelope.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "devportal/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeReplay:             http.StatusBadRequest,
	dErrors.CodeInvariantViolation: http.StatusUnprocessableEntity,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

// errorEnvelope is the JSON error body. Internal errors omit the description
// so infrastructure details never leak to callers.
type errorEnvelope struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Message     string `json:"message,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP response.
// Unknown errors map to 500 with no description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		code = dErrors.CodeInternal
	}

	envelope := errorEnvelope{Error: string(code)}
	if code != dErrors.CodeInternal {
		envelope.Description = err.Error()
		envelope.Message = err.Error()
	}
	WriteJSON(w, status, envelope)
}

// Preparer is implemented by request DTOs that normalize and validate
// themselves after decoding.
type Preparer interface {
	Normalize()
	Validate() error
}

// DecodeAndPrepare decodes a JSON body into T, then normalizes and validates
// it when T implements Preparer. On failure it writes the error response and
// returns ok=false; the handler should return immediately.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return req, false
	}

	if p, ok := any(&req).(Preparer); ok {
		p.Normalize()
		if err := p.Validate(); err != nil {
			WriteError(w, err)
			return req, false
		}
	}
	return req, true
}
