package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// License verification and issuance errors.
var (
	ErrUnsupportedVersion  = errors.New("unsupported license format version")
	ErrMissingSignature    = errors.New("license signature missing or not base64")
	ErrNoPublicKey         = errors.New("no license public key configured")
	ErrBadSignature        = errors.New("license signature mismatch")
	ErrWrongDevice         = errors.New("license bound to a different device")
	ErrExpired             = errors.New("license expired")
	ErrRevoked             = errors.New("license revoked")
	ErrBadDateFormat       = errors.New("invalid license expiry date format")
	ErrEncoding            = errors.New("license payload encoding error")
	ErrSigningUnavailable  = errors.New("license signing unavailable")
	ErrStorage             = errors.New("license storage error")
	ErrMalformedLicense    = errors.New("malformed license")
	ErrLegacyDisabled      = errors.New("legacy license keys are disabled")
	ErrLicenseNotActivated = errors.New("license not activated")
)

// Problem types for license failures
const (
	TypeLicenseUnsupported  = "/errors/license/unsupported-version"
	TypeLicenseSignature    = "/errors/license/bad-signature"
	TypeLicenseNoKey        = "/errors/license/no-public-key"
	TypeLicenseMismatch     = "/errors/license/machine-mismatch"
	TypeLicenseExpired      = "/errors/license/expired"
	TypeLicenseRevoked      = "/errors/license/revoked"
	TypeLicenseMalformed    = "/errors/license/malformed"
	TypeLicenseLegacy       = "/errors/license/legacy-disabled"
	TypeLicenseNotActivated = "/errors/license/not-activated"
	TypeLicenseEncoding     = "/errors/license/encoding"
	TypeLicenseSigning      = "/errors/license/signing-unavailable"
	TypeLicenseStorage      = "/errors/license/storage"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions next to the standard members
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, len(pd.Extensions)+5)

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

type licenseProblem struct {
	err    error
	status int
	typ    string
	title  string
}

var licenseProblems = []licenseProblem{
	{ErrUnsupportedVersion, http.StatusForbidden, TypeLicenseUnsupported, "Unsupported License Version"},
	{ErrMissingSignature, http.StatusForbidden, TypeLicenseSignature, "License Signature Missing"},
	{ErrNoPublicKey, http.StatusServiceUnavailable, TypeLicenseNoKey, "License Public Key Missing"},
	{ErrBadSignature, http.StatusForbidden, TypeLicenseSignature, "License Signature Mismatch"},
	{ErrWrongDevice, http.StatusForbidden, TypeLicenseMismatch, "License Machine Mismatch"},
	{ErrExpired, http.StatusForbidden, TypeLicenseExpired, "License Expired"},
	{ErrRevoked, http.StatusForbidden, TypeLicenseRevoked, "License Revoked"},
	{ErrBadDateFormat, http.StatusForbidden, TypeLicenseMalformed, "Invalid License Date"},
	{ErrMalformedLicense, http.StatusForbidden, TypeLicenseMalformed, "Malformed License"},
	{ErrLegacyDisabled, http.StatusForbidden, TypeLicenseLegacy, "Legacy License Disabled"},
	{ErrLicenseNotActivated, http.StatusForbidden, TypeLicenseNotActivated, "License Not Activated"},
	{ErrEncoding, http.StatusBadRequest, TypeLicenseEncoding, "License Encoding Error"},
	{ErrSigningUnavailable, http.StatusServiceUnavailable, TypeLicenseSigning, "License Signing Unavailable"},
	{ErrStorage, http.StatusInternalServerError, TypeLicenseStorage, "License Storage Error"},
}

// LicenseProblem maps a license sentinel error to problem details.
// The second return value is false when err is not a license error.
func LicenseProblem(err error, detail, instance string) (*ProblemDetails, bool) {
	for _, p := range licenseProblems {
		if errors.Is(err, p.err) {
			if detail == "" {
				detail = p.err.Error()
			}
			return NewProblemDetails(p.status, p.typ, p.title, detail, instance), true
		}
	}
	return nil, false
}
