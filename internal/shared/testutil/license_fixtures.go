package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// TestKeyBits keeps key generation fast in tests
const TestKeyBits = 2048

// TestHardwareID is the fingerprint used by fixtures that need a bound device
const TestHardwareID = "aa11bb22cc33dd44"

var (
	keyOnce   sync.Once
	sharedKey *rsa.PrivateKey
	keyErr    error

	otherKeyOnce sync.Once
	otherKey     *rsa.PrivateKey
	otherKeyErr  error
)

// NewTestKeyPair returns a 2048-bit RSA key shared across the test binary
func NewTestKeyPair(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		sharedKey, keyErr = rsa.GenerateKey(rand.Reader, TestKeyBits)
	})
	if keyErr != nil {
		t.Fatalf("generate test key: %v", keyErr)
	}
	return sharedKey
}

// NewOtherTestKeyPair returns a second key, distinct from NewTestKeyPair
func NewOtherTestKeyPair(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	otherKeyOnce.Do(func() {
		otherKey, otherKeyErr = rsa.GenerateKey(rand.Reader, TestKeyBits)
	})
	if otherKeyErr != nil {
		t.Fatalf("generate second test key: %v", otherKeyErr)
	}
	return otherKey
}

// PrivateKeyPEM encodes key as PKCS#8 PEM
func PrivateKeyPEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// PublicKeyPEM encodes the public half of key as SubjectPublicKeyInfo PEM
func PublicKeyPEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// WriteFile writes data to dir/name and returns the path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// StaticFingerprint is a fixed device fingerprint
type StaticFingerprint string

// Fingerprint returns the fixed value
func (f StaticFingerprint) Fingerprint(_ context.Context) string {
	return string(f)
}

// FixedClock returns a clock function stuck at t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
