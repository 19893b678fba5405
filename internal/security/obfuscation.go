package security

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrEmptyObfuscationKey is returned when XOR obfuscation is asked to use an empty key
var ErrEmptyObfuscationKey = errors.New("obfuscation key cannot be empty")

// XORObfuscate XORs data byte-wise with a repeating key. Applying it twice
// with the same key restores the input. It hides plain text from casual
// inspection and nothing more.
func XORObfuscate(data []byte, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyObfuscationKey
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out, nil
}

// EncodeObfuscated XORs data with key and base64-encodes the result
func EncodeObfuscated(data []byte, key string) ([]byte, error) {
	xored, err := XORObfuscate(data, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(xored)))
	base64.StdEncoding.Encode(out, xored)
	return out, nil
}

// DecodeObfuscated reverses EncodeObfuscated
func DecodeObfuscated(encoded []byte, key string) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(raw, encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid obfuscated data: %w", err)
	}
	return XORObfuscate(raw[:n], key)
}
