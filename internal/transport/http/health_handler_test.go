package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apierrors "odoomaster/internal/errors"
	"odoomaster/internal/license"
	"odoomaster/internal/services"
	"odoomaster/internal/shared/testutil"
)

func TestHealthHandler(t *testing.T) {
	verifier := license.NewVerifier(&testutil.NewTestKeyPair(t).PublicKey, nil)

	tests := []struct {
		name       string
		deps       services.HealthDeps
		handler    func(*HealthHandler) http.HandlerFunc
		wantStatus int
		wantBody   string
	}{
		{
			name:       "health",
			handler:    func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck },
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "verify-only installation is ready",
			deps:       services.HealthDeps{Verifier: verifier},
			handler:    func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck },
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:       "not ready without verifier",
			handler:    func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not_ready",
		},
		{
			name:       "live",
			handler:    func(h *HealthHandler) http.HandlerFunc { return h.LivenessCheck },
			wantStatus: http.StatusOK,
			wantBody:   "alive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(services.NewHealthService("2.0.0", tt.deps, discardLogger()), discardLogger())
			w := httptest.NewRecorder()

			tt.handler(h)(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.Equal(t, tt.wantBody, decodeBody(t, w)["status"])
		})
	}
}

func TestHealthHandler_Version(t *testing.T) {
	h := NewHealthHandler(services.NewHealthService("2.0.0", services.HealthDeps{}, discardLogger()), discardLogger())
	w := httptest.NewRecorder()

	h.Version(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["version"])
}

func TestMetricsHandler(t *testing.T) {
	errorHandler := apierrors.NewErrorHandler(discardLogger(), false)

	t.Run("exporter disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewMetricsHandler(nil, errorHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delegates", func(t *testing.T) {
		exporter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("license_verifications_total 3\n"))
		})
		w := httptest.NewRecorder()
		NewMetricsHandler(exporter, errorHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "license_verifications_total")
	})
}
