package license

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	licenseErrors "odoomaster/internal/errors"
	"odoomaster/internal/security"
)

// MinKeyBits is the smallest RSA modulus accepted for signing keys
const MinKeyBits = 2048

// GenerateKeyPair creates a fresh RSA signing key
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf("key size %d below minimum %d", bits, MinKeyBits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// EncodePrivateKeyPEM encodes key as a PKCS#8 "PRIVATE KEY" block
func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM encodes pub as a SubjectPublicKeyInfo "PUBLIC KEY" block
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM reads a PKCS#8 key, falling back to PKCS#1
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA", key)
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported private key encoding: %w", err)
	}
	return key, nil
}

// ParsePublicKeyPEM reads a SubjectPublicKeyInfo RSA key. Input carrying any
// private key block is refused so a signing key is never deployed by mistake.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	if strings.Contains(string(data), "PRIVATE KEY") {
		return nil, errors.New("public key material contains a private key")
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", key)
	}
	return rsaKey, nil
}

// LoadPublicKey resolves the verification key from PEM text, else from file.
// It returns (nil, nil) when neither is configured or the file is absent.
func LoadPublicKey(pemText, file string) (*rsa.PublicKey, error) {
	var data []byte
	switch {
	case strings.TrimSpace(pemText) != "":
		data = []byte(strings.TrimSpace(pemText))
	case file != "":
		raw, err := os.ReadFile(file)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", licenseErrors.ErrNoPublicKey, err)
		}
		data = raw
	default:
		return nil, nil
	}

	key, err := ParsePublicKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", licenseErrors.ErrNoPublicKey, err)
	}
	return key, nil
}

// LoadPrivateKey resolves the signing key from PEM text, else from file.
// Sealed envelopes are opened with passphrase. Every failure, including an
// absent key, is ErrSigningUnavailable.
func LoadPrivateKey(pemText, file, passphrase string) (*rsa.PrivateKey, error) {
	var data []byte
	switch {
	case strings.TrimSpace(pemText) != "":
		data = []byte(strings.TrimSpace(pemText))
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", licenseErrors.ErrSigningUnavailable, err)
		}
		data = raw
	default:
		return nil, fmt.Errorf("%w: no private key configured", licenseErrors.ErrSigningUnavailable)
	}

	if security.IsSealedKey(data) {
		if passphrase == "" {
			return nil, fmt.Errorf("%w: private key is sealed and no passphrase was given", licenseErrors.ErrSigningUnavailable)
		}
		opened, err := security.OpenSealedKey(data, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", licenseErrors.ErrSigningUnavailable, err)
		}
		data = opened
	}

	key, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", licenseErrors.ErrSigningUnavailable, err)
	}
	return key, nil
}

// KeyFiles are the paths written by WriteKeyPair
type KeyFiles struct {
	PrivateKey string
	PublicKey  string
	Sealed     bool
}

// WriteKeyPair stores key under dir with the given file names. The private
// key is written 0600 and sealed when passphrase is set.
func WriteKeyPair(dir, privateName, publicName string, key *rsa.PrivateKey, passphrase string, seal security.SealConfig) (*KeyFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	privPEM, err := EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}
	pubPEM, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	files := &KeyFiles{
		PrivateKey: filepath.Join(dir, privateName),
		PublicKey:  filepath.Join(dir, publicName),
	}

	privData := privPEM
	if passphrase != "" {
		privData, err = security.SealPrivateKey(privPEM, []byte(passphrase), seal)
		if err != nil {
			return nil, fmt.Errorf("failed to seal private key: %w", err)
		}
		files.Sealed = true
	}

	if err := os.WriteFile(files.PrivateKey, privData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(files.PublicKey, pubPEM, 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}
	return files, nil
}
