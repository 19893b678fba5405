package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrEmptyPassphrase is returned when sealing or opening without a passphrase
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
	// ErrWrongPassphrase is returned when the envelope fails authentication
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted sealed key")
)

const (
	sealedKeyVersion = 1
	sealedKeyKDF     = "scrypt"
)

// SealConfig holds the scrypt cost parameters for a sealed key
type SealConfig struct {
	N int
	R int
	P int
}

// DefaultSealConfig returns OWASP-minimum scrypt parameters
func DefaultSealConfig() SealConfig {
	return SealConfig{N: 32768, R: 8, P: 1}
}

// SealedKey is the on-disk envelope of a passphrase-protected private key.
// Byte fields are base64 in JSON.
type SealedKey struct {
	Version    uint8  `json:"version"`
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealPrivateKey encrypts PEM key material with AES-256-GCM under a scrypt-derived key
func SealPrivateKey(keyPEM, passphrase []byte, cfg SealConfig) ([]byte, error) {
	if len(keyPEM) == 0 {
		return nil, errors.New("key material cannot be empty")
	}
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := sealCipher(passphrase, salt, cfg)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	envelope := SealedKey{
		Version:    sealedKeyVersion,
		KDF:        sealedKeyKDF,
		N:          cfg.N,
		R:          cfg.R,
		P:          cfg.P,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, keyPEM, []byte(sealedKeyKDF)),
	}

	return json.MarshalIndent(envelope, "", "  ")
}

// OpenSealedKey reverses SealPrivateKey and returns the PEM bytes
func OpenSealedKey(data, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	var envelope SealedKey
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid sealed key: %w", err)
	}
	if envelope.Version != sealedKeyVersion || envelope.KDF != sealedKeyKDF {
		return nil, fmt.Errorf("unsupported sealed key version %d/%s", envelope.Version, envelope.KDF)
	}

	gcm, err := sealCipher(passphrase, envelope.Salt, SealConfig{N: envelope.N, R: envelope.R, P: envelope.P})
	if err != nil {
		return nil, err
	}
	if len(envelope.Nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	plaintext, err := gcm.Open(nil, envelope.Nonce, envelope.Ciphertext, []byte(sealedKeyKDF))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// IsSealedKey reports whether data looks like a SealedKey envelope rather than PEM
func IsSealedKey(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var header struct {
		KDF string `json:"kdf"`
	}
	return json.Unmarshal(trimmed, &header) == nil && header.KDF == sealedKeyKDF
}

func sealCipher(passphrase, salt []byte, cfg SealConfig) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, cfg.N, cfg.R, cfg.P, 32)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
