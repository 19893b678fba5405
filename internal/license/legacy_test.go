package license

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odoomaster/internal/config"
)

const legacyKey2030 = "YWExMWJiMjJjYzMzZGQ0NDoyMDMwLTAxLTAxOmVkYzlhZTdlMDZkMDkyOGI="

func TestLegacyAdapter_KnownVectors(t *testing.T) {
	a := NewLegacyAdapter(config.DefaultLegacySecret)

	assert.Equal(t, "edc9ae7e06d0928b", a.Sign(device, "2030-01-01"))
	assert.Equal(t, "324a7396c6bc73b4", a.Sign(device, "2030-01-01 09:14"))

	key, err := a.Generate(device, "2030-01-01")
	require.NoError(t, err)
	assert.Equal(t, legacyKey2030, key)
}

func TestParseLegacyKey(t *testing.T) {
	fields, err := ParseLegacyKey(legacyKey2030)
	require.NoError(t, err)
	assert.Equal(t, LegacyFields{HardwareID: device, Expiry: "2030-01-01", Signature: "edc9ae7e06d0928b"}, fields)

	timed := base64.StdEncoding.EncodeToString([]byte(device + ":2030-01-01 09:14:324a7396c6bc73b4"))
	fields, err = ParseLegacyKey(timed)
	require.NoError(t, err)
	assert.Equal(t, "2030-01-01 09:14", fields.Expiry)
	assert.Equal(t, "324a7396c6bc73b4", fields.Signature)

	for _, bad := range []string{"", "not base64!!", base64.StdEncoding.EncodeToString([]byte("a:b")), base64.StdEncoding.EncodeToString([]byte{0xff, ':', 0xfe, ':', 'x'})} {
		_, err := ParseLegacyKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestLegacyAdapter_Check(t *testing.T) {
	a := NewLegacyAdapter(config.DefaultLegacySecret)
	encode := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	expiredKey, err := a.Generate(device, "2020-01-01")
	require.NoError(t, err)
	timedKey, err := a.Generate(device, "2030-01-01 09:14")
	require.NoError(t, err)

	tests := []struct {
		name        string
		key         string
		fingerprint string
		want        Code
	}{
		{"valid", legacyKey2030, device, CodeValid},
		{"valid with time", timedKey, device, CodeValid},
		{"not base64", "%%%", device, CodeMalformed},
		{"too few segments", encode("onlyone:two"), device, CodeMalformed},
		{"flipped signature", encode(device + ":2030-01-01:edc9ae7e06d0928c"), device, CodeBadSignature},
		{"edited expiry", encode(device + ":2099-01-01:edc9ae7e06d0928b"), device, CodeBadSignature},
		{"signature before device", encode("ff00ff00ff00ff00:2030-01-01:0000000000000000"), device, CodeBadSignature},
		{"other device", legacyKey2030, "ff00ff00ff00ff00", CodeWrongDevice},
		{"bad date", encode(device + ":notadate:88dd25920e7a81c2"), device, CodeBadDateFormat},
		{"expired", expiredKey, device, CodeExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Check(tt.key, tt.fingerprint, testNow, time.UTC)
			assert.Equal(t, tt.want, res.Code, res.Detail)
			assert.Equal(t, FormatLegacy, res.Format)
		})
	}
}

func TestLegacyAdapter_CheckValidResult(t *testing.T) {
	a := NewLegacyAdapter(config.DefaultLegacySecret)
	res := a.Check(legacyKey2030, device, testNow, time.UTC)

	require.True(t, res.OK())
	assert.Equal(t, device, res.HardwareID)
	assert.Equal(t, "2030-01-01", res.ExpiryText)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), res.ExpiresAt)
	assert.Equal(t, DaysBetween(testNow, res.ExpiresAt), res.DaysRemaining)
	assert.False(t, res.Lifetime)

	expired := a.Check(mustGenerate(t, a, "2020-01-01"), device, testNow, time.UTC)
	assert.Contains(t, expired.Reason(), "2020-01-01")
}

func TestLegacyAdapter_GenerateErrors(t *testing.T) {
	a := NewLegacyAdapter(config.DefaultLegacySecret)
	for _, tt := range []struct{ hwid, expiry string }{
		{"", "2030-01-01"},
		{"aa:bb", "2030-01-01"},
		{device, "01/01/2030"},
	} {
		_, err := a.Generate(tt.hwid, tt.expiry)
		assert.Error(t, err, "%s %s", tt.hwid, tt.expiry)
	}
}

func TestVerifyLegacy_GateAndRevocation(t *testing.T) {
	a := newTestAuthority(t)
	ctx := context.Background()

	gated := newTestVerifier(t, a.PublicKey(), nil)
	assert.False(t, gated.LegacyAllowed())
	assert.Equal(t, CodeLegacyDisabled, gated.VerifyLegacy(ctx, legacyKey2030, device).Code)

	allowed := newTestVerifier(t, a.PublicKey(), nil, WithAllowLegacy(true))
	assert.True(t, allowed.VerifyLegacy(ctx, legacyKey2030, device).OK())

	registry := newTestRegistry(t)
	keyless := newTestVerifier(t, nil, registry)
	assert.True(t, keyless.LegacyAllowed())
	require.True(t, keyless.VerifyLegacy(ctx, " "+legacyKey2030+"\n", device).OK())

	_, err := registry.Add(ctx, legacyKey2030, "", "chargeback")
	require.NoError(t, err)
	assert.Equal(t, CodeRevoked, keyless.VerifyLegacy(ctx, legacyKey2030, device).Code)

	otherSecret := newTestVerifier(t, nil, nil, WithLegacySecret("another-secret"))
	assert.Equal(t, CodeBadSignature, otherSecret.VerifyLegacy(ctx, legacyKey2030, device).Code)
}

func mustGenerate(t *testing.T, a *LegacyAdapter, expiry string) string {
	t.Helper()
	key, err := a.Generate(device, expiry)
	require.NoError(t, err)
	return key
}
