package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"odoomaster/internal/config"
	"odoomaster/internal/security"
)

// maxImportSize bounds files read during auto-import
const maxImportSize = 1 << 20

// FingerprintSource yields the current device fingerprint
type FingerprintSource interface {
	Fingerprint(ctx context.Context) string
}

// StorePaths locates the local license state
type StorePaths struct {
	V2Cache     string
	LegacyCache string
	// ImportDir is scanned for dropped license files; empty disables auto-import
	ImportDir string
}

// PathsFromConfig maps the license configuration onto StorePaths
func PathsFromConfig(cfg config.LicenseConfig) StorePaths {
	return StorePaths{
		V2Cache:     cfg.V2CacheFile,
		LegacyCache: cfg.LegacyCacheFile,
		ImportDir:   cfg.ImportDir,
	}
}

// legacyRecord is the plaintext of the obfuscated legacy cache
type legacyRecord struct {
	Key         string `json:"key"`
	HardwareID  string `json:"hardware_id"`
	ActivatedAt string `json:"activated_at"`
}

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithStoreMetrics sets the instruments
func WithStoreMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// Store is the local license cache. It keeps the raw license, never a
// verdict, and re-verifies on every Load.
type Store struct {
	verifier *Verifier
	hardware FingerprintSource
	paths    StorePaths
	logger   *slog.Logger
	metrics  *Metrics
}

// NewStore creates a Store over the given files
func NewStore(verifier *Verifier, hardware FingerprintSource, paths StorePaths, opts ...StoreOption) *Store {
	s := &Store{
		verifier: verifier,
		hardware: hardware,
		paths:    paths,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = componentLogger(s.logger)
	if s.metrics == nil {
		s.metrics = NoopMetrics()
	}
	return s
}

// HardwareID returns the fingerprint licenses are checked against
func (s *Store) HardwareID(ctx context.Context) string {
	return s.hardware.Fingerprint(ctx)
}

// Load finds and verifies the current license: the v2 cache first, then
// dropped files in the import directory, then the legacy cache. A present
// legacy cache answers with its own verdict; otherwise the v2 cache failure
// is reported if there was one, then NotActivated.
func (s *Store) Load(ctx context.Context) Result {
	fingerprint := s.hardware.Fingerprint(ctx)

	var cacheFailure *Result
	if fields, ok := s.readV2Cache(ctx); ok {
		res := s.verifier.VerifyBundle(ctx, fields, fingerprint)
		res.Source = s.paths.V2Cache
		if res.OK() {
			return res
		}
		cacheFailure = &res
		logAction(ctx, s.logger, slog.LevelWarn, "load", "cached license no longer valid", resultAttrs(res)...)
	}

	if res, ok := s.autoImport(ctx, fingerprint); ok {
		return res
	}

	if res, ok := s.loadLegacy(ctx, fingerprint); ok {
		return res
	}

	if cacheFailure != nil {
		return *cacheFailure
	}
	return failure(CodeNotActivated, "", "no license found")
}

// Activate verifies text and persists it only when valid
func (s *Store) Activate(ctx context.Context, text string) Result {
	ctx, span := s.metrics.startSpan(ctx, "license.activate")
	defer span.End()

	fingerprint := s.hardware.Fingerprint(ctx)
	input := Classify(text)
	res := s.verifier.Verify(ctx, input, fingerprint)

	if res.OK() {
		var err error
		switch in := input.(type) {
		case V2Bundle:
			err = s.writeV2Cache([]byte(in.Raw))
			res.Source = s.paths.V2Cache
		case LegacyKey:
			err = s.writeLegacyCache(in.Key, fingerprint)
			res.Source = s.paths.LegacyCache
		}
		if err != nil {
			logAction(ctx, s.logger, slog.LevelError, "activate", "failed to persist license",
				slog.String("error", err.Error()))
			res = failure(CodeStorage, res.Format, err.Error())
		}
	}

	s.metrics.recordActivation(ctx, res)
	level := slog.LevelInfo
	if !res.OK() {
		level = slog.LevelWarn
	}
	logAction(ctx, s.logger, level, "activate", "license activation finished", resultAttrs(res)...)
	return res
}

// Deactivate removes both cache files. Missing files are not an error.
func (s *Store) Deactivate(ctx context.Context) error {
	var errs []error
	for _, path := range []string{s.paths.V2Cache, s.paths.LegacyCache} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", codeErrors[CodeStorage], err)
	}
	logAction(ctx, s.logger, slog.LevelInfo, "deactivate", "local license removed")
	return nil
}

// Info summarizes the current license for display
type Info struct {
	Result     Result
	HardwareID string
	KeyPartial string
}

// Info loads the current license and decorates it for display
func (s *Store) Info(ctx context.Context) Info {
	res := s.Load(ctx)
	info := Info{
		Result:     res,
		HardwareID: s.hardware.Fingerprint(ctx),
	}
	if !res.OK() {
		return info
	}

	switch res.Format {
	case FormatV2:
		info.KeyPartial = partialKey(res.LicenseID)
	case FormatLegacy:
		if rec, ok := s.readLegacyRecord(ctx, info.HardwareID); ok {
			info.KeyPartial = partialKey(rec.Key)
		}
	}
	return info
}

func (s *Store) readV2Cache(ctx context.Context) (map[string]any, bool) {
	if s.paths.V2Cache == "" {
		return nil, false
	}
	data, err := os.ReadFile(s.paths.V2Cache)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logAction(ctx, s.logger, slog.LevelWarn, "load", "license cache unreadable",
				slog.String("path", s.paths.V2Cache), slog.String("error", err.Error()))
		}
		return nil, false
	}
	fields, err := DecodeObject(data)
	if err != nil {
		logAction(ctx, s.logger, slog.LevelWarn, "load", "license cache corrupt",
			slog.String("path", s.paths.V2Cache), slog.String("error", err.Error()))
		return nil, false
	}
	return fields, true
}

func (s *Store) writeV2Cache(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return os.WriteFile(s.paths.V2Cache, buf.Bytes(), 0600)
}

// autoImport promotes the first dropped bundle that verifies
func (s *Store) autoImport(ctx context.Context, fingerprint string) (Result, bool) {
	if s.paths.ImportDir == "" {
		return Result{}, false
	}

	for _, path := range importCandidates(s.paths.ImportDir) {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || info.Size() > maxImportSize {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		bundle, ok := Classify(string(data)).(V2Bundle)
		if !ok || bundle.Fields == nil {
			continue
		}

		res := s.verifier.VerifyBundle(ctx, bundle.Fields, fingerprint)
		if !res.OK() {
			logAction(ctx, s.logger, slog.LevelDebug, "import", "skipping license file",
				append(resultAttrs(res), slog.String("path", path))...)
			continue
		}

		res.Source = path
		if err := s.writeV2Cache([]byte(bundle.Raw)); err != nil {
			logAction(ctx, s.logger, slog.LevelWarn, "import", "imported license could not be cached",
				slog.String("path", path), slog.String("error", err.Error()))
		} else {
			logAction(ctx, s.logger, slog.LevelInfo, "import", "license file imported",
				slog.String("path", path), slog.String("license_id", res.LicenseID))
		}
		return res, true
	}
	return Result{}, false
}

// importCandidates lists well-known names first, then glob matches, without repeats
func importCandidates(dir string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	for _, name := range config.AutoImportFileNames {
		add(filepath.Join(dir, name))
	}
	for _, pattern := range config.AutoImportPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out
}

func (s *Store) loadLegacy(ctx context.Context, fingerprint string) (Result, bool) {
	rec, ok := s.readLegacyRecord(ctx, fingerprint)
	if !ok {
		return Result{}, false
	}
	if rec.HardwareID != fingerprint {
		res := failure(CodeHardwareChanged, FormatLegacy, "stored hardware id differs from fingerprint")
		res.Source = s.paths.LegacyCache
		return res, true
	}

	res := s.verifier.VerifyLegacy(ctx, rec.Key, fingerprint)
	res.Source = s.paths.LegacyCache
	return res, true
}

func (s *Store) readLegacyRecord(ctx context.Context, fingerprint string) (legacyRecord, bool) {
	if s.paths.LegacyCache == "" {
		return legacyRecord{}, false
	}
	data, err := os.ReadFile(s.paths.LegacyCache)
	if err != nil {
		return legacyRecord{}, false
	}

	plain, err := security.DecodeObfuscated(bytes.TrimSpace(data), fingerprint)
	if err != nil {
		logAction(ctx, s.logger, slog.LevelWarn, "load", "legacy cache unreadable", slog.String("error", err.Error()))
		return legacyRecord{}, false
	}

	var rec legacyRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		// a different fingerprint garbles the plaintext
		logAction(ctx, s.logger, slog.LevelWarn, "load", "legacy cache does not decode on this device")
		return legacyRecord{}, false
	}
	return rec, true
}

func (s *Store) writeLegacyCache(key, fingerprint string) error {
	rec := legacyRecord{
		Key:         key,
		HardwareID:  fingerprint,
		ActivatedAt: s.verifier.Now().Format("2006-01-02T15:04:05.000000"),
	}
	plain, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	encoded, err := security.EncodeObfuscated(plain, fingerprint)
	if err != nil {
		return err
	}
	return os.WriteFile(s.paths.LegacyCache, encoded, 0600)
}
