package license

import "strings"

// LicenseInput is either a V2Bundle or a LegacyKey
type LicenseInput interface {
	Format() Format
	isLicenseInput()
}

// V2Bundle is input that looked like a JSON bundle. Fields is nil when the
// text did not parse, which fails the structure check.
type V2Bundle struct {
	Fields   map[string]any
	Raw      string
	ParseErr error
}

// Format implements LicenseInput
func (V2Bundle) Format() Format { return FormatV2 }

func (V2Bundle) isLicenseInput() {}

// LegacyKey is an opaque base64 key of the pre-signature format
type LegacyKey struct {
	Key string
}

// Format implements LicenseInput
func (LegacyKey) Format() Format { return FormatLegacy }

func (LegacyKey) isLicenseInput() {}

// Classify decides the format from the text alone: anything starting with
// "{" is a bundle, the rest is a legacy key.
func Classify(text string) LicenseInput {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		fields, err := DecodeObject([]byte(trimmed))
		return V2Bundle{Fields: fields, Raw: trimmed, ParseErr: err}
	}
	return LegacyKey{Key: trimmed}
}
