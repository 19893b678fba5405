package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// FormatVersion is the only bundle version this package issues and accepts
const FormatVersion = 2

// Format names the license representation a result came from
type Format string

const (
	FormatV2     Format = "v2"
	FormatLegacy Format = "legacy"
)

// Field names of a signed bundle
const (
	FieldVersion    = "v"
	FieldLicenseID  = "license_id"
	FieldPlan       = "plan"
	FieldIssuedTo   = "issued_to"
	FieldHardwareID = "hardware_id"
	FieldExpiresAt  = "expires_at"
	FieldIssuedAt   = "issued_at"
	FieldNonce      = "nonce"
	FieldSignature  = "sig"
)

// IssuedAtLayout is the UTC layout of issued_at
const IssuedAtLayout = "2006-01-02T15:04:05Z"

// ExpiryLayout is the wire form of expires_at: naive wall time in the
// issuer's location. Deployed verifiers compare it against a naive local
// clock and reject zone offsets.
const ExpiryLayout = "2006-01-02T15:04:05"

// Payload is the signed part of a v2 bundle
type Payload struct {
	V          int    `json:"v"`
	LicenseID  string `json:"license_id"`
	Plan       string `json:"plan"`
	IssuedTo   string `json:"issued_to"`
	HardwareID string `json:"hardware_id"`
	ExpiresAt  string `json:"expires_at"`
	IssuedAt   string `json:"issued_at"`
	Nonce      string `json:"nonce"`
}

// Fields returns the payload as the generic object that gets canonicalized
func (p Payload) Fields() map[string]any {
	return map[string]any{
		FieldVersion:    p.V,
		FieldLicenseID:  p.LicenseID,
		FieldPlan:       p.Plan,
		FieldIssuedTo:   p.IssuedTo,
		FieldHardwareID: p.HardwareID,
		FieldExpiresAt:  p.ExpiresAt,
		FieldIssuedAt:   p.IssuedAt,
		FieldNonce:      p.Nonce,
	}
}

// Bundle is a payload with its base64 RSA-PSS signature
type Bundle struct {
	Payload
	Sig string `json:"sig"`
}

// Fields returns the bundle, signature included, as a generic object
func (b *Bundle) Fields() map[string]any {
	fields := b.Payload.Fields()
	fields[FieldSignature] = b.Sig
	return fields
}

// File renders the bundle as an indented .oml document
func (b *Bundle) File() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the default download name of the bundle
func (b *Bundle) FileName() string {
	return fmt.Sprintf("license_%s.oml", b.LicenseID)
}

// DecodeObject parses a single JSON object, keeping numbers as json.Number
// so that re-canonicalization reproduces them exactly.
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

// naiveLayouts are tried after RFC 3339 and interpreted in the caller's location.
// Fractional seconds after the seconds field are accepted by time.Parse.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the naive ISO forms bundles have
// historically carried. Naive values are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// DaysBetween returns the whole days from now until t, floored
func DaysBetween(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
