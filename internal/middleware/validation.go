package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "odoomaster/internal/errors"
)

// RequestValidator decodes JSON request bodies and validates them with
// struct tags. Field names in messages are the JSON names.
type RequestValidator struct {
	validator   *validator.Validate
	maxBodySize int64
}

// NewRequestValidator creates a validator limiting bodies to maxBodySize bytes
func NewRequestValidator(maxBodySize int64) *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &RequestValidator{validator: v, maxBodySize: maxBodySize}
}

// DecodeJSON reads r's body into dst and validates it. Errors are
// *apierrors.APIError values ready for the error handler.
func (m *RequestValidator) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apierrors.New(http.StatusBadRequest, "INVALID_REQUEST", "Request body is required")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBodySize+1))
	if err != nil {
		return apierrors.InvalidRequestWithError(err)
	}
	if int64(len(body)) > m.maxBodySize {
		return apierrors.NewWithDetails(
			http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE",
			"Request body exceeds maximum allowed size",
			map[string]interface{}{"max_size": m.maxBodySize},
		)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return apierrors.New(http.StatusBadRequest, "INVALID_REQUEST", "Request body is required")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return apierrors.New(http.StatusBadRequest, "INVALID_JSON", "Request body contains invalid JSON")
	}

	return m.ValidateStruct(dst)
}

// ValidateStruct validates a struct and returns validation errors
func (m *RequestValidator) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apierrors.InvalidRequestWithError(err)
	}

	validationErrors := make([]apierrors.ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		validationErrors = append(validationErrors, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(validationErrors)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without_all":
		return fmt.Sprintf("%s is required unless one of %s is given", field, strings.Join(jsonNames(param), ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "printascii":
		return fmt.Sprintf("%s must contain printable ASCII only", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// jsonNames lowers Go field names such as HardwareID to hardware_id for messages
func jsonNames(param string) []string {
	fields := strings.Fields(param)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		var b strings.Builder
		runes := []rune(f)
		for i, r := range runes {
			upper := r >= 'A' && r <= 'Z'
			if upper && i > 0 {
				prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if prevLower || nextLower {
					b.WriteByte('_')
				}
			}
			if upper {
				r += 'a' - 'A'
			}
			b.WriteRune(r)
		}
		out = append(out, b.String())
	}
	return out
}
