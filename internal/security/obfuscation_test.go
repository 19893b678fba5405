package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXORObfuscate_RoundTrip(t *testing.T) {
	data := []byte(`{"key":"abc","hardware_id":"0123456789abcdef"}`)

	xored, err := XORObfuscate(data, "0123456789abcdef")
	require.NoError(t, err)
	assert.NotEqual(t, data, xored)

	back, err := XORObfuscate(xored, "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestXORObfuscate_EmptyKey(t *testing.T) {
	_, err := XORObfuscate([]byte("data"), "")
	assert.ErrorIs(t, err, ErrEmptyObfuscationKey)
}

func TestEncodeDecodeObfuscated(t *testing.T) {
	data := []byte("hello license")
	encoded, err := EncodeObfuscated(data, "k3y")
	require.NoError(t, err)

	decoded, err := DecodeObfuscated(encoded, "k3y")
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	wrong, err := DecodeObfuscated(encoded, "other")
	require.NoError(t, err)
	assert.NotEqual(t, data, wrong)

	_, err = DecodeObfuscated([]byte("%%%not base64"), "k3y")
	assert.Error(t, err)
}
