package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	apierrors "odoomaster/internal/errors"
)

// APIKeyHeader authenticates admin requests
const APIKeyHeader = "X-API-Key"

var errAdminDisabled = apierrors.Unavailable("Admin API is disabled: no admin API key configured")

// APIKeyAuth admits requests whose X-API-Key equals apiKey. An empty apiKey
// closes the routes entirely.
func APIKeyAuth(apiKey string, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "api_key_auth"))
	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				errorHandler.HandleError(w, r, errAdminDisabled)
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				logger.WarnContext(r.Context(), "admin authentication failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.Bool("key_present", provided != ""),
				)
				errorHandler.HandleError(w, r, apierrors.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
