// Package httpserver contains HTTP handlers and middleware.
//
// Every JSON response uses one envelope. Failures carry a stable machine
// code from domain.APIError; successes carry a human message next to the data.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sharow/sharow/internal/domain"
)

const internalMessage = "Something went wrong, please try again later"

type errorEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// codeStatus overrides the kind-derived status for codes with their own HTTP semantics.
var codeStatus = map[string]int{
	"UNSUPPORTED_MEDIA_TYPE": http.StatusUnsupportedMediaType,
	"FILE_TOO_LARGE":         http.StatusRequestEntityTooLarge,
	"OAUTH_FAILED":           http.StatusBadGateway,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess merges data into the success envelope.
func writeSuccess(w http.ResponseWriter, status int, message string, data map[string]any) {
	body := make(map[string]any, len(data)+2)
	for k, v := range data {
		body[k] = v
	}
	body["success"] = true
	body["message"] = message
	writeJSON(w, status, body)
}

func statusForKind(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrGuardrail),
		errors.Is(err, domain.ErrSchemaInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGone):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstreamRateLimit),
		errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err. Errors without an APIError in the chain are logged
// and answered with a generic 500 so internals never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		LoggerFrom(r).Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Code: "INTERNAL", Message: internalMessage})
		return
	}
	status, ok := codeStatus[apiErr.Code]
	if !ok {
		status = statusForKind(apiErr)
	}
	if status >= http.StatusInternalServerError {
		LoggerFrom(r).Warn("upstream failure", slog.String("code", apiErr.Code), slog.Any("error", err))
	}
	writeJSON(w, status, errorEnvelope{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details})
}
