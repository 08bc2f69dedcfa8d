package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// RespondWithError writes err as a JSON error response. Application errors keep
// their status and message; anything else is logged and reported as internal.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("internal error", err)
	}

	status := appErr.HTTPStatus()
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	case status == http.StatusTooManyRequests:
		logger.Debug().Str("path", r.URL.Path).Msg("request rate limited")
	}

	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
	}

	message := appErr.Message
	if appErr.Type == apperrors.ErrorTypeInternal {
		message = "internal error"
	}
	respondWithJSON(w, status, errorResponse{
		Error: message,
		Type:  string(appErr.Type),
		Field: appErr.Field,
	})
}
