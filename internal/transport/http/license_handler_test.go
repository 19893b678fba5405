package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	licenseErrors "odoomaster/internal/errors"
	"odoomaster/internal/license"
	"odoomaster/internal/middleware"
	"odoomaster/internal/services"
	api "odoomaster/pkg/contracts/api/v1"
	"odoomaster/pkg/contracts/domain"
)

func newLicenseRouter(h *LicenseHandler) chi.Router {
	r := chi.NewRouter()
	r.Mount("/api/admin", h.AdminRoutes())
	r.Post("/api/licenses/verify", h.Verify)
	r.Mount("/api/license", h.LocalRoutes())
	return r
}

func serve(router http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestLicenseHandler_Issue(t *testing.T) {
	issued := &domain.IssuedLicense{
		LicenseID: "abc123",
		FileName:  "license_abc123.oml",
		ExpiresAt: "2030-01-01T00:00:00Z",
		Bundle:    json.RawMessage(`{"license_data":{"license_id":"abc123"},"signature":"c2ln"}`),
	}
	req := api.IssueLicenseRequest{Plan: "professional", IssuedTo: "shop@example.com", Days: 365}
	body := `{"plan":"professional","issued_to":"shop@example.com","days":365}`

	t.Run("json envelope", func(t *testing.T) {
		svc := new(MockLicenseService)
		svc.On("Issue", mock.Anything, req).Return(issued, nil).Once()
		router := newLicenseRouter(newTestLicenseHandler(svc))

		w := serve(router, http.MethodPost, "/api/admin/licenses", body, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		got := decodeBody(t, w)
		assert.Equal(t, "abc123", got["license_id"])
		assert.Equal(t, "license_abc123.oml", got["file_name"])
		assert.NotNil(t, got["bundle"])
		svc.AssertExpectations(t)
	})

	t.Run("download", func(t *testing.T) {
		svc := new(MockLicenseService)
		svc.On("Issue", mock.Anything, req).Return(issued, nil).Once()
		router := newLicenseRouter(newTestLicenseHandler(svc))

		w := serve(router, http.MethodPost, "/api/admin/licenses?download=1", body, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, `attachment; filename="license_abc123.oml"`, w.Header().Get("Content-Disposition"))
		assert.JSONEq(t, string(issued.Bundle), w.Body.String())
	})
}

func TestLicenseHandler_IssueErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{
			name:       "missing plan",
			body:       `{"days":30}`,
			wantStatus: http.StatusBadRequest,
			wantType:   licenseErrors.TypeValidation,
		},
		{
			name:       "no expiry selector",
			body:       `{"plan":"basic"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   licenseErrors.TypeValidation,
		},
		{
			name:       "signing unavailable",
			body:       `{"plan":"basic","days":30}`,
			serviceErr: fmt.Errorf("%w: no private key loaded", licenseErrors.ErrSigningUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   licenseErrors.TypeLicenseSigning,
		},
		{
			name:       "bad expiry text",
			body:       `{"plan":"basic","days":30}`,
			serviceErr: fmt.Errorf("%w: expires_at: unrecognized format", licenseErrors.ErrEncoding),
			wantStatus: http.StatusBadRequest,
			wantType:   licenseErrors.TypeLicenseEncoding,
			wantDetail: "license payload encoding error: expires_at: unrecognized format",
		},
		{
			name:       "ledger down",
			body:       `{"plan":"basic","days":30}`,
			serviceErr: services.ErrLedgerUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   licenseErrors.TypeServiceDown,
		},
		{
			name:       "invalid input",
			body:       `{"plan":"basic","days":30}`,
			serviceErr: fmt.Errorf("%w: bad", services.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantType:   licenseErrors.TypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockLicenseService)
			if tt.serviceErr != nil {
				svc.On("Issue", mock.Anything, mock.Anything).Return(nil, tt.serviceErr).Once()
			}
			router := newLicenseRouter(newTestLicenseHandler(svc))

			w := serve(router, http.MethodPost, "/api/admin/licenses", tt.body, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			got := decodeBody(t, w)
			assert.Equal(t, tt.wantType, got["type"])
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, got["detail"])
			}
			if tt.serviceErr == nil {
				svc.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestLicenseHandler_GetLedgerEntry(t *testing.T) {
	svc := new(MockLicenseService)
	svc.On("LedgerEntry", mock.Anything, "abc123").Return(&domain.LedgerEntry{
		LicenseID: "abc123",
		Plan:      "basic",
		Bundle:    json.RawMessage(`{}`),
	}, nil)
	svc.On("LedgerEntry", mock.Anything, "missing").Return(nil, services.ErrLicenseNotFound)
	router := newLicenseRouter(newTestLicenseHandler(svc))

	w := serve(router, http.MethodGet, "/api/admin/licenses/abc123", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "basic", decodeBody(t, w)["plan"])

	w = serve(router, http.MethodGet, "/api/admin/licenses/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, licenseErrors.TypeNotFound, decodeBody(t, w)["type"])
}

func TestLicenseHandler_Revoke(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     *domain.RevocationResult
		wantStatus int
	}{
		{
			name:       "new entry",
			body:       `{"license_id":"abc123","reason":"refund"}`,
			result:     &domain.RevocationResult{Added: true, KeyHash: "deadbeef", Ledger: true},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "already revoked",
			body:       `{"hardware_id":"a1b2c3d4e5f60718"}`,
			result:     &domain.RevocationResult{HardwareID: "a1b2c3d4e5f60718"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "nothing to revoke",
			body:       `{"reason":"why"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockLicenseService)
			if tt.result != nil {
				svc.On("Revoke", mock.Anything, mock.Anything).Return(tt.result, nil).Once()
			}
			router := newLicenseRouter(newTestLicenseHandler(svc))

			w := serve(router, http.MethodPost, "/api/admin/revocations", tt.body, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.result == nil {
				svc.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
				return
			}
			assert.Equal(t, tt.result.Added, decodeBody(t, w)["added"])
			svc.AssertExpectations(t)
		})
	}
}

func TestLicenseHandler_VerifyLanguage(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    language.Tag
	}{
		{"default", "/api/licenses/verify", nil, language.English},
		{"accept-language", "/api/licenses/verify", map[string]string{"Accept-Language": "fa-IR,fa;q=0.9"}, license.Persian},
		{"query wins", "/api/licenses/verify?lang=en", map[string]string{"Accept-Language": "fa"}, language.English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockLicenseService)
			req := api.VerifyLicenseRequest{License: "{}", HardwareID: "a1b2c3d4e5f60718"}
			svc.On("Verify", mock.Anything, req, tt.want).Return(domain.VerificationResult{
				Code:   "malformed",
				Reason: "Invalid license format",
			}).Once()
			router := newLicenseRouter(newTestLicenseHandler(svc))

			w := serve(router, http.MethodPost, tt.target, `{"license":"{}","hardware_id":"a1b2c3d4e5f60718"}`, tt.headers)

			assert.Equal(t, http.StatusOK, w.Code)
			got := decodeBody(t, w)
			assert.Equal(t, false, got["ok"])
			assert.Equal(t, "malformed", got["code"])
			svc.AssertExpectations(t)
		})
	}
}

func TestLicenseHandler_Activate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockLicenseService)
		svc.On("Activate", mock.Anything, "bundle", language.English).Return(domain.LicenseStatus{
			VerificationResult: domain.VerificationResult{OK: true, Code: "valid", DaysRemaining: 10},
			Source:             "v2_cache",
		}, nil).Once()
		gate := &countingInvalidator{}
		router := newLicenseRouter(newTestLicenseHandler(svc).WithGate(gate))

		w := serve(router, http.MethodPost, "/api/license/activate", `{"license":"bundle"}`, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		got := decodeBody(t, w)
		assert.Equal(t, true, got["ok"])
		assert.Equal(t, "v2_cache", got["source"])
		assert.Equal(t, 1, gate.calls)
	})

	t.Run("wrong device localized", func(t *testing.T) {
		svc := new(MockLicenseService)
		reason := "این لایسنس برای این دستگاه معتبر نیست"
		svc.On("Activate", mock.Anything, "bundle", license.Persian).Return(domain.LicenseStatus{
			VerificationResult: domain.VerificationResult{Code: "wrong_device", Reason: reason},
		}, fmt.Errorf("%w: %s", licenseErrors.ErrWrongDevice, reason)).Once()
		gate := &countingInvalidator{}
		router := newLicenseRouter(newTestLicenseHandler(svc).WithGate(gate))

		w := serve(router, http.MethodPost, "/api/license/activate", `{"license":"bundle"}`, map[string]string{"Accept-Language": "fa"})

		assert.Equal(t, http.StatusForbidden, w.Code)
		got := decodeBody(t, w)
		assert.Equal(t, licenseErrors.TypeLicenseMismatch, got["type"])
		assert.Equal(t, reason, got["detail"])
		assert.Equal(t, "wrong_device", got["code"])
		assert.Equal(t, 1, gate.calls)
	})

	t.Run("verify-only installation", func(t *testing.T) {
		svc := new(MockLicenseService)
		svc.On("Activate", mock.Anything, "bundle", language.English).
			Return(domain.LicenseStatus{}, services.ErrLocalStoreDisabled).Once()
		router := newLicenseRouter(newTestLicenseHandler(svc))

		w := serve(router, http.MethodPost, "/api/license/activate", `{"license":"bundle"}`, nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestLicenseHandler_LocalRoutes(t *testing.T) {
	svc := new(MockLicenseService)
	svc.On("Status", mock.Anything, language.English).Return(domain.LicenseStatus{
		VerificationResult: domain.VerificationResult{Code: "not_activated", Reason: "No license found - please activate"},
		DeviceHardwareID:   "a1b2c3d4e5f60718",
		CheckedAt:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	svc.On("HardwareInfo", mock.Anything).Return(domain.HardwareInfo{HardwareID: "a1b2c3d4e5f60718", Source: "board_serial"})
	svc.On("Deactivate", mock.Anything).Return(nil).Once()
	gate := &countingInvalidator{}
	router := newLicenseRouter(newTestLicenseHandler(svc).WithGate(gate))

	w := serve(router, http.MethodGet, "/api/license/status", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "not_activated", got["code"])
	assert.Equal(t, "a1b2c3d4e5f60718", got["device_hardware_id"])

	w = serve(router, http.MethodGet, "/api/license/hardware-id", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "board_serial", decodeBody(t, w)["source"])

	w = serve(router, http.MethodDelete, "/api/license", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, gate.calls)

	svc.On("Deactivate", mock.Anything).Return(errors.New("remove .license_v2.json: permission denied")).Once()
	w = serve(router, http.MethodDelete, "/api/license", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	svc.AssertExpectations(t)
}

type fixedChecker struct{ res license.Result }

func (f fixedChecker) CheckLicense(context.Context) license.Result { return f.res }

func TestLicenseHandler_Entitlement(t *testing.T) {
	h := newTestLicenseHandler(new(MockLicenseService))

	t.Run("admitted", func(t *testing.T) {
		gate := middleware.NewLicenseGate(fixedChecker{license.Result{
			Code:          license.CodeValid,
			Format:        license.FormatV2,
			LicenseID:     "abc123",
			Plan:          "enterprise",
			DaysRemaining: 42,
		}}, discardLogger())
		r := chi.NewRouter()
		r.With(gate.Handler).Get("/api/app/entitlement", h.Entitlement)

		w := serve(r, http.MethodGet, "/api/app/entitlement", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		got := decodeBody(t, w)
		assert.Equal(t, "enterprise", got["plan"])
		assert.Equal(t, float64(42), got["days_remaining"])
	})

	t.Run("without gate", func(t *testing.T) {
		r := chi.NewRouter()
		r.Get("/api/app/entitlement", h.Entitlement)

		w := serve(r, http.MethodGet, "/api/app/entitlement", "", nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, licenseErrors.TypeLicenseNotActivated, decodeBody(t, w)["type"])
	})
}
