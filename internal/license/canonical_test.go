package license

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licenseErrors "odoomaster/internal/errors"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{
			name:  "keys sorted without whitespace",
			input: map[string]any{"b": 2, "a": 1},
			want:  `{"a":1,"b":2}`,
		},
		{
			name: "non-ascii and html characters stay raw",
			input: map[string]any{
				"v":           2,
				"plan":        "professional",
				"issued_to":   "آرش <a&b>",
				"hardware_id": "",
				"note":        "x\n\u0001 \"\\",
			},
			want: `{"hardware_id":"","issued_to":"آرش <a&b>","note":"x\n\u0001 \"\\","plan":"professional","v":2}`,
		},
		{
			name:  "line separators are not escaped",
			input: "a b",
			want:  "\"a b\"",
		},
		{
			name:  "short escapes",
			input: "\b\f\r\t\x1f",
			want:  `"\b\f\r\t\u001f"`,
		},
		{
			name:  "json numbers verbatim",
			input: map[string]any{"v": json.Number("2"), "f": json.Number("1.50")},
			want:  `{"f":1.50,"v":2}`,
		},
		{
			name:  "floats",
			input: []any{1.0, 1.5, -0.25, 1e21},
			want:  `[1,1.5,-0.25,1e+21]`,
		},
		{
			name:  "nested values",
			input: map[string]any{"z": []any{nil, true, false}, "m": map[string]string{"y": "1", "x": "2"}},
			want:  `{"m":{"x":"2","y":"1"},"z":[null,true,false]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	a, err := Canonicalize(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Canonicalize(map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCanonicalize_EncodingErrors(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"NaN", math.NaN()},
		{"infinity", map[string]any{"x": math.Inf(1)}},
		{"invalid utf-8 value", "\xff"},
		{"invalid utf-8 key", map[string]any{"\xfe": 1}},
		{"unsupported type", struct{ A int }{1}},
		{"bad json number", json.Number("abc")},
		{"nested unsupported", []any{1, make(chan int)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.input)
			assert.ErrorIs(t, err, licenseErrors.ErrEncoding)
		})
	}
}

func TestCanonicalize_DecodedMatchesTyped(t *testing.T) {
	p := Payload{
		V:          FormatVersion,
		LicenseID:  "abc",
		Plan:       "professional",
		IssuedTo:   "user@example.com",
		HardwareID: "aa11bb22cc33dd44",
		ExpiresAt:  "2030-01-01T00:00:00Z",
		IssuedAt:   "2026-01-01T00:00:00Z",
		Nonce:      "0011223344556677",
	}
	typed, err := Canonicalize(p.Fields())
	require.NoError(t, err)

	decoded, err := DecodeObject(typed)
	require.NoError(t, err)
	again, err := Canonicalize(decoded)
	require.NoError(t, err)

	assert.Equal(t, string(typed), string(again))
}
