// Package api contains the request contracts of the licensing HTTP API.
package api

// IssueLicenseRequest asks the issuing service for a signed bundle. Exactly
// one of ExpiresAt, Days and Unlimited selects the expiry.
type IssueLicenseRequest struct {
	Plan       string `json:"plan" validate:"required,max=64,printascii"`
	IssuedTo   string `json:"issued_to" validate:"max=256"`
	HardwareID string `json:"hardware_id,omitempty" validate:"omitempty,max=128,printascii"`
	LicenseID  string `json:"license_id,omitempty" validate:"omitempty,max=128,printascii"`
	ExpiresAt  string `json:"expires_at,omitempty" validate:"required_without_all=Days Unlimited"`
	Days       int    `json:"days,omitempty" validate:"omitempty,min=1,max=36500"`
	Unlimited  bool   `json:"unlimited,omitempty"`
}

// VerifyLicenseRequest checks a bundle or legacy key against a fingerprint
type VerifyLicenseRequest struct {
	License    string `json:"license" validate:"required,max=65536"`
	HardwareID string `json:"hardware_id" validate:"max=128"`
}

// ActivateLicenseRequest installs a license on this machine
type ActivateLicenseRequest struct {
	License string `json:"license" validate:"required,max=65536"`
}

// RevokeLicenseRequest adds a revocation entry. At least one of LicenseID,
// Key and HardwareID is required.
type RevokeLicenseRequest struct {
	LicenseID  string `json:"license_id,omitempty" validate:"required_without_all=Key HardwareID,max=128"`
	Key        string `json:"key,omitempty" validate:"max=65536"`
	HardwareID string `json:"hardware_id,omitempty" validate:"max=128"`
	Reason     string `json:"reason,omitempty" validate:"max=512"`
}
