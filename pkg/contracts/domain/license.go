// Package domain contains the license views shared by the HTTP API and the CLI.
package domain

import (
	"encoding/json"
	"time"
)

// LicenseFormat names the two accepted license encodings
type LicenseFormat string

const (
	LicenseFormatV2     LicenseFormat = "v2"
	LicenseFormatLegacy LicenseFormat = "legacy"
)

// VerificationResult is the outcome of one license check
type VerificationResult struct {
	OK            bool          `json:"ok"`
	Code          string        `json:"code"`
	Reason        string        `json:"reason"`
	Format        LicenseFormat `json:"format,omitempty"`
	LicenseID     string        `json:"license_id,omitempty"`
	Plan          string        `json:"plan,omitempty"`
	IssuedTo      string        `json:"issued_to,omitempty"`
	HardwareID    string        `json:"hardware_id,omitempty"`
	ExpiresAt     string        `json:"expires_at,omitempty"`
	DaysRemaining int           `json:"days_remaining"`
	IsLifetime    bool          `json:"is_lifetime"`
}

// LicenseStatus describes the license installed on this machine
type LicenseStatus struct {
	VerificationResult
	DeviceHardwareID string    `json:"device_hardware_id"`
	KeyPartial       string    `json:"key_partial,omitempty"`
	Source           string    `json:"source,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// IssuedLicense is a freshly signed bundle
type IssuedLicense struct {
	LicenseID string          `json:"license_id"`
	FileName  string          `json:"file_name"`
	ExpiresAt string          `json:"expires_at"`
	Bundle    json.RawMessage `json:"bundle"`
}

// LedgerEntry is the issuing side's record of a license
type LedgerEntry struct {
	LicenseID     string          `json:"license_id"`
	Plan          string          `json:"plan"`
	IssuedTo      string          `json:"issued_to"`
	HardwareID    string          `json:"hardware_id,omitempty"`
	ExpiresAt     string          `json:"expires_at"`
	IssuedAt      string          `json:"issued_at"`
	Revoked       bool            `json:"revoked"`
	RevokedReason string          `json:"revoked_reason,omitempty"`
	RevokedAt     *time.Time      `json:"revoked_at,omitempty"`
	Bundle        json.RawMessage `json:"bundle"`
}

// RevocationResult reports what a revoke request changed
type RevocationResult struct {
	Added      bool   `json:"added"`
	KeyHash    string `json:"key_hash,omitempty"`
	HardwareID string `json:"hardware_id,omitempty"`
	Ledger     bool   `json:"ledger_updated"`
}

// HardwareInfo is the device fingerprint and the strategy that produced it
type HardwareInfo struct {
	HardwareID string `json:"hardware_id"`
	Source     string `json:"source"`
}
