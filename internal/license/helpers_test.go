package license

import (
	"context"
	"crypto/rsa"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"odoomaster/internal/revocation"
	"odoomaster/internal/shared/testutil"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	a, err := NewAuthority(testutil.NewTestKeyPair(t),
		WithAuthorityClock(testutil.FixedClock(testNow)),
		WithAuthorityLocation(time.UTC),
		WithAuthorityLogger(quietLogger()),
	)
	require.NoError(t, err)
	return a
}

func newTestRegistry(t *testing.T) *revocation.Registry {
	t.Helper()
	return revocation.NewRegistry(filepath.Join(t.TempDir(), ".license_blacklist.json"),
		revocation.WithLogger(quietLogger()))
}

func newTestVerifier(t *testing.T, pub *rsa.PublicKey, registry RevocationChecker, opts ...VerifierOption) *Verifier {
	t.Helper()
	base := []VerifierOption{
		WithVerifierClock(testutil.FixedClock(testNow)),
		WithLocation(time.UTC),
		WithVerifierLogger(quietLogger()),
	}
	return NewVerifier(pub, registry, append(base, opts...)...)
}

func issueTestBundle(t *testing.T, a *Authority, hardwareID string, expiresAt time.Time) *Bundle {
	t.Helper()
	b, err := a.Issue(context.Background(), IssueRequest{
		Plan:       "professional",
		IssuedTo:   "user@example.com",
		HardwareID: hardwareID,
		ExpiresAt:  expiresAt,
	})
	require.NoError(t, err)
	return b
}

func signFields(t *testing.T, a *Authority, fields map[string]any) map[string]any {
	t.Helper()
	delete(fields, FieldSignature)
	sig, err := a.Sign(fields)
	require.NoError(t, err)
	fields[FieldSignature] = sig
	return fields
}
