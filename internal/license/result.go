package license

import (
	"time"

	"golang.org/x/text/language"

	licenseErrors "odoomaster/internal/errors"
)

// Code is the machine-readable outcome of a license check
type Code string

const (
	CodeValid              Code = "valid"
	CodeUnsupportedVersion Code = "unsupported_version"
	CodeMissingSignature   Code = "missing_signature"
	CodeNoPublicKey        Code = "no_public_key"
	CodeBadSignature       Code = "bad_signature"
	CodeWrongDevice        Code = "wrong_device"
	CodeHardwareChanged    Code = "hardware_changed"
	CodeExpired            Code = "expired"
	CodeInvalidExpiry      Code = "invalid_expiry"
	CodeRevoked            Code = "revoked"
	CodeBadDateFormat      Code = "bad_date_format"
	CodeMalformed          Code = "malformed"
	CodeLegacyDisabled     Code = "legacy_disabled"
	CodeNotActivated       Code = "not_activated"
	CodeStorage            Code = "storage_error"
)

var codeErrors = map[Code]error{
	CodeUnsupportedVersion: licenseErrors.ErrUnsupportedVersion,
	CodeMissingSignature:   licenseErrors.ErrMissingSignature,
	CodeNoPublicKey:        licenseErrors.ErrNoPublicKey,
	CodeBadSignature:       licenseErrors.ErrBadSignature,
	CodeWrongDevice:        licenseErrors.ErrWrongDevice,
	CodeHardwareChanged:    licenseErrors.ErrWrongDevice,
	CodeExpired:            licenseErrors.ErrExpired,
	CodeInvalidExpiry:      licenseErrors.ErrExpired,
	CodeRevoked:            licenseErrors.ErrRevoked,
	CodeBadDateFormat:      licenseErrors.ErrBadDateFormat,
	CodeMalformed:          licenseErrors.ErrMalformedLicense,
	CodeLegacyDisabled:     licenseErrors.ErrLegacyDisabled,
	CodeNotActivated:       licenseErrors.ErrLicenseNotActivated,
	CodeStorage:            licenseErrors.ErrStorage,
}

// Err maps the code to its sentinel error, nil for CodeValid
func (c Code) Err() error {
	if c == CodeValid {
		return nil
	}
	if err, ok := codeErrors[c]; ok {
		return err
	}
	return licenseErrors.ErrMalformedLicense
}

// Result is the outcome of verifying one license. A zero DaysRemaining on
// a failed result carries no meaning.
type Result struct {
	Code          Code
	Format        Format
	LicenseID     string
	Plan          string
	IssuedTo      string
	HardwareID    string
	ExpiresAt     time.Time
	ExpiryText    string
	DaysRemaining int
	Lifetime      bool

	// Source is the file a cached or imported license was read from
	Source string
	// Detail is diagnostic text for logs, never shown to end users
	Detail string
}

// OK reports whether the license is valid
func (r Result) OK() bool { return r.Code == CodeValid }

// Err returns nil for a valid result and the matching sentinel otherwise
func (r Result) Err() error { return r.Code.Err() }

// Message renders the localized user-facing message
func (r Result) Message(tag language.Tag) string {
	return Message(tag, r.Code, r.DaysRemaining, r.ExpiryText)
}

// Reason is the English message
func (r Result) Reason() string {
	return r.Message(language.English)
}

func failure(code Code, format Format, detail string) Result {
	return Result{Code: code, Format: format, Detail: detail}
}
