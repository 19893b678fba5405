package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "odoomaster/internal/errors"
	api "odoomaster/pkg/contracts/api/v1"
)

func TestRequestValidator_DecodeJSON(t *testing.T) {
	v := NewRequestValidator(256)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"valid days", `{"plan":"basic","days":30}`, 0, "", ""},
		{"valid unlimited", `{"plan":"basic","unlimited":true}`, 0, "", ""},
		{"empty body", ``, http.StatusBadRequest, "INVALID_REQUEST", ""},
		{"broken json", `{"plan":`, http.StatusBadRequest, "INVALID_JSON", ""},
		{"missing plan", `{"days":30}`, http.StatusBadRequest, "VALIDATION_FAILED", "plan"},
		{"no expiry", `{"plan":"basic"}`, http.StatusBadRequest, "VALIDATION_FAILED", "expires_at"},
		{"hardware id too long", `{"plan":"basic","days":0,"expires_at":"2030-01-01","hardware_id":"` + strings.Repeat("a", 129) + `"}`, http.StatusBadRequest, "VALIDATION_FAILED", "hardware_id"},
		{"too large", `{"plan":"` + strings.Repeat("x", 300) + `"}`, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/admin/licenses", strings.NewReader(tt.body))
			var req api.IssueLicenseRequest
			err := v.DecodeJSON(r, &req)

			if tt.wantStatus == 0 {
				require.NoError(t, err)
				assert.Equal(t, "basic", req.Plan)
				return
			}

			var apiErr *apierrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			if tt.wantField != "" {
				details, ok := apiErr.Details.([]apierrors.ValidationError)
				require.True(t, ok)
				require.NotEmpty(t, details)
				assert.Equal(t, tt.wantField, details[0].Field)
			}
		})
	}
}

func TestRequestValidator_RevokeMessage(t *testing.T) {
	v := NewRequestValidator(0)

	err := v.ValidateStruct(api.RevokeLicenseRequest{Reason: "fraud"})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)

	details := apiErr.Details.([]apierrors.ValidationError)
	require.Len(t, details, 1)
	assert.Equal(t, "license_id", details[0].Field)
	assert.Equal(t, "license_id is required unless one of key, hardware_id is given", details[0].Message)

	assert.NoError(t, v.ValidateStruct(api.RevokeLicenseRequest{HardwareID: "a1b2"}))
}
