package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"

	apierrors "odoomaster/internal/errors"
	"odoomaster/internal/license"
)

type fakeChecker struct {
	mu     sync.Mutex
	calls  int
	result license.Result
}

func (f *fakeChecker) CheckLicense(context.Context) license.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

func (f *fakeChecker) set(res license.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = res
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type steppingClock struct{ now time.Time }

func (c *steppingClock) Now() time.Time { return c.now }

func validResult() license.Result {
	return license.Result{Code: license.CodeValid, Format: license.FormatV2, LicenseID: "lic-1", Plan: "professional", DaysRemaining: 40}
}

func gateRequest(t *testing.T, handler http.Handler, accept string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/app/entitlement", nil)
	if accept != "" {
		r.Header.Set("Accept-Language", accept)
	}
	handler.ServeHTTP(w, r)
	return w
}

func TestLicenseGate_Decisions(t *testing.T) {
	tests := []struct {
		name       string
		result     license.Result
		accept     string
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{
			name:       "valid",
			result:     validResult(),
			wantStatus: http.StatusOK,
		},
		{
			name:       "not activated",
			result:     license.Result{Code: license.CodeNotActivated},
			wantStatus: http.StatusForbidden,
			wantType:   apierrors.TypeLicenseNotActivated,
			wantDetail: "No license found - please activate",
		},
		{
			name:       "expired in persian",
			result:     license.Result{Code: license.CodeExpired, ExpiryText: "2025-01-01"},
			accept:     "fa-IR,fa;q=0.9",
			wantStatus: http.StatusForbidden,
			wantType:   apierrors.TypeLicenseExpired,
			wantDetail: "لایسنس منقضی شده است (تاریخ انقضا: 2025-01-01)",
		},
		{
			name:       "revoked",
			result:     license.Result{Code: license.CodeRevoked},
			wantStatus: http.StatusForbidden,
			wantType:   apierrors.TypeLicenseRevoked,
			wantDetail: "This license has been revoked by the administrator",
		},
		{
			name:       "no public key",
			result:     license.Result{Code: license.CodeNoPublicKey},
			wantStatus: http.StatusServiceUnavailable,
			wantType:   apierrors.TypeLicenseNoKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewLicenseGate(&fakeChecker{result: tt.result}, discardLogger(),
				WithGateMeter(noop.NewMeterProvider().Meter("test")))

			var admitted license.Result
			handler := gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				admitted, _ = GateResult(r.Context())
			}))

			w := gateRequest(t, handler, tt.accept)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "lic-1", admitted.LicenseID)
				return
			}

			body := decodeBody(t, w)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, string(tt.result.Code), body["code"])
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, body["detail"])
			}
		})
	}
}

func TestLicenseGate_Memo(t *testing.T) {
	checker := &fakeChecker{result: validResult()}
	clock := &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	gate := NewLicenseGate(checker, discardLogger(), WithGateTTL(time.Minute), WithGateClock(clock.Now))
	handler := gate.Handler(okHandler)

	assert.Equal(t, http.StatusOK, gateRequest(t, handler, "").Code)
	assert.Equal(t, http.StatusOK, gateRequest(t, handler, "").Code)
	assert.Equal(t, 1, checker.count(), "second request served from memo")

	checker.set(license.Result{Code: license.CodeRevoked})
	clock.now = clock.now.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, gateRequest(t, handler, "").Code)

	clock.now = clock.now.Add(31 * time.Second)
	assert.Equal(t, http.StatusForbidden, gateRequest(t, handler, "").Code)
	assert.Equal(t, 2, checker.count())

	checker.set(validResult())
	gate.Invalidate()
	assert.Equal(t, http.StatusOK, gateRequest(t, handler, "").Code)
	assert.Equal(t, 3, checker.count())
}

func TestLicenseGate_ConcurrentMiss(t *testing.T) {
	checker := &fakeChecker{result: validResult()}
	gate := NewLicenseGate(checker, discardLogger(), WithGateTTL(time.Hour))
	handler := gate.Handler(okHandler)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/app/entitlement", nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, checker.count())
}

func TestGateResult_Absent(t *testing.T) {
	_, ok := GateResult(context.Background())
	assert.False(t, ok)
}
