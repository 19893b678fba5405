package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// LegacyDateLayout is the expiry layout written by GenerateLegacyKey
const LegacyDateLayout = "2006-01-02"

var legacyDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	LegacyDateLayout,
}

// LegacyFields are the parts of a decoded legacy key
type LegacyFields struct {
	HardwareID string
	Expiry     string
	Signature  string
}

// LegacyAdapter checks and mints keys of the pre-signature format
// base64("hwid:expiry:hmac16"). The shared secret ships with every
// verifier, so a valid HMAC proves only that someone had a copy.
type LegacyAdapter struct {
	secret []byte
}

// NewLegacyAdapter binds the adapter to the shared secret
func NewLegacyAdapter(secret string) *LegacyAdapter {
	return &LegacyAdapter{secret: []byte(secret)}
}

// ParseLegacyKey decodes a key and splits it from the right, so the expiry
// may itself contain colons.
func ParseLegacyKey(key string) (LegacyFields, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
	if err != nil {
		return LegacyFields{}, fmt.Errorf("legacy key is not base64: %w", err)
	}
	if !utf8.Valid(raw) {
		return LegacyFields{}, errors.New("legacy key is not UTF-8 text")
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) < 3 {
		return LegacyFields{}, fmt.Errorf("legacy key has %d segments, want at least 3", len(parts))
	}
	return LegacyFields{
		HardwareID: parts[0],
		Expiry:     strings.Join(parts[1:len(parts)-1], ":"),
		Signature:  parts[len(parts)-1],
	}, nil
}

// ParseLegacyExpiry parses an expiry segment in loc
func ParseLegacyExpiry(expiry string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.ParseInLocation(layout, expiry, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized legacy expiry %q", expiry)
}

// Sign returns the 16 hex character HMAC of "hwid:expiry"
func (a *LegacyAdapter) Sign(hardwareID, expiry string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(hardwareID + ":" + expiry))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// Generate mints a key for hardwareID expiring at expiry, which must be in
// one of the accepted layouts
func (a *LegacyAdapter) Generate(hardwareID, expiry string) (string, error) {
	hardwareID = strings.TrimSpace(hardwareID)
	if hardwareID == "" || strings.Contains(hardwareID, ":") {
		return "", fmt.Errorf("invalid hardware id %q", hardwareID)
	}
	if _, err := ParseLegacyExpiry(expiry, time.UTC); err != nil {
		return "", err
	}
	data := hardwareID + ":" + expiry + ":" + a.Sign(hardwareID, expiry)
	return base64.StdEncoding.EncodeToString([]byte(data)), nil
}

// Check runs format, signature, device, date and expiry checks in that
// order. Revocation and the legacy gate are the Verifier's concern.
func (a *LegacyAdapter) Check(key, fingerprint string, now time.Time, loc *time.Location) Result {
	fields, err := ParseLegacyKey(key)
	if err != nil {
		return failure(CodeMalformed, FormatLegacy, err.Error())
	}

	expected := a.Sign(fields.HardwareID, fields.Expiry)
	if !hmac.Equal([]byte(expected), []byte(fields.Signature)) {
		return failure(CodeBadSignature, FormatLegacy, "legacy hmac mismatch")
	}

	if fields.HardwareID != fingerprint {
		return failure(CodeWrongDevice, FormatLegacy, "legacy key bound to "+fields.HardwareID)
	}

	res := Result{
		Format:     FormatLegacy,
		HardwareID: fields.HardwareID,
		ExpiryText: fields.Expiry,
	}

	expiresAt, err := ParseLegacyExpiry(fields.Expiry, loc)
	if err != nil {
		res.Code, res.Detail = CodeBadDateFormat, err.Error()
		return res
	}
	res.ExpiresAt = expiresAt

	if now.After(expiresAt) {
		res.Code = CodeExpired
		return res
	}

	res.Code = CodeValid
	res.DaysRemaining = DaysBetween(now, expiresAt)
	res.Lifetime = res.DaysRemaining > lifetimeThresholdDays
	return res
}
