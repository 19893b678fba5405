// Package revocation keeps the local list of revoked licenses and devices.
//
// The registry is a JSON array on disk. Reads fail open: a missing or
// corrupt file behaves as an empty registry. Writes replace the whole file.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	licenseErrors "odoomaster/internal/errors"
)

// ErrEmptyEntry is returned by Add when neither a key nor a hardware id is given
var ErrEmptyEntry = errors.New("revocation needs a license key or a hardware id")

const timestampLayout = "2006-01-02T15:04:05"

// Entry is one revoked license or device. Either field alone revokes.
type Entry struct {
	KeyHash    string `json:"key_hash"`
	HardwareID string `json:"hardware_id"`
	Reason     string `json:"reason"`
	RevokedAt  string `json:"revoked_at"`
}

// HashKey returns the registry hash of a license key or license id.
// Empty input hashes to "".
func HashKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// Registry is the revocation list stored at a single path
type Registry struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// Option customizes a Registry
type Option func(*Registry)

// WithClock overrides the time source used for revoked_at
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry returns a registry backed by path. The file need not exist.
func NewRegistry(path string, opts ...Option) *Registry {
	r := &Registry{
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "revocation"))
	return r
}

// Path returns the backing file
func (r *Registry) Path() string { return r.path }

// Add revokes a key (license key or license id), a hardware id, or both.
// It reports false without writing when a non-empty key hash or hardware id
// is already listed.
func (r *Registry) Add(ctx context.Context, key, hardwareID, reason string) (bool, error) {
	keyHash := HashKey(strings.TrimSpace(key))
	hardwareID = strings.TrimSpace(hardwareID)
	if keyHash == "" && hardwareID == "" {
		return false, ErrEmptyEntry
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.load(ctx)
	for _, e := range entries {
		if e.matches(keyHash, hardwareID) {
			r.logger.DebugContext(ctx, "revocation already present",
				slog.String("key_hash", keyHash),
				slog.String("hardware_id", hardwareID),
			)
			return false, nil
		}
	}

	entries = append(entries, Entry{
		KeyHash:    keyHash,
		HardwareID: hardwareID,
		Reason:     reason,
		RevokedAt:  r.now().Format(timestampLayout),
	})
	if err := r.save(entries); err != nil {
		r.logger.ErrorContext(ctx, "failed to write revocation registry",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	r.logger.InfoContext(ctx, "license revoked",
		slog.String("key_hash", keyHash),
		slog.String("hardware_id", hardwareID),
		slog.String("reason", reason),
	)
	return true, nil
}

// Contains reports whether the key or the hardware id is revoked
func (r *Registry) Contains(ctx context.Context, key, hardwareID string) bool {
	keyHash := HashKey(strings.TrimSpace(key))
	hardwareID = strings.TrimSpace(hardwareID)
	if keyHash == "" && hardwareID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.load(ctx) {
		if e.matches(keyHash, hardwareID) {
			return true
		}
	}
	return false
}

// List returns every entry in file order
func (r *Registry) List(ctx context.Context) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (e Entry) matches(keyHash, hardwareID string) bool {
	if keyHash != "" && e.KeyHash == keyHash {
		return true
	}
	return hardwareID != "" && e.HardwareID == hardwareID
}

// load never fails; unreadable state is an empty registry
func (r *Registry) load(ctx context.Context) []Entry {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.WarnContext(ctx, "revocation registry unreadable, treating as empty",
				slog.String("path", r.path),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.WarnContext(ctx, "revocation registry corrupt, treating as empty",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return entries
}

func (r *Registry) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", licenseErrors.ErrStorage, err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", licenseErrors.ErrStorage, err)
	}
	return nil
}
