package license

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odoomaster/internal/security"
	"odoomaster/internal/shared/testutil"
)

type storeFixture struct {
	dir       string
	paths     StorePaths
	authority *Authority
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0755))
	return &storeFixture{
		dir: dir,
		paths: StorePaths{
			V2Cache:     filepath.Join(dir, ".license_v2.json"),
			LegacyCache: filepath.Join(dir, ".license"),
			ImportDir:   importDir,
		},
		authority: newTestAuthority(t),
	}
}

// store builds a Store on the fixture files; withKey configures the public key
func (f *storeFixture) store(t *testing.T, withKey bool, fingerprint string) *Store {
	t.Helper()
	var verifier *Verifier
	if withKey {
		verifier = newTestVerifier(t, f.authority.PublicKey(), nil)
	} else {
		verifier = newTestVerifier(t, nil, nil)
	}
	return NewStore(verifier, testutil.StaticFingerprint(fingerprint), f.paths, WithStoreLogger(quietLogger()))
}

func (f *storeFixture) bundleText(t *testing.T, hardwareID string, expiresAt time.Time) (*Bundle, string) {
	t.Helper()
	b := issueTestBundle(t, f.authority, hardwareID, expiresAt)
	data, err := b.File()
	require.NoError(t, err)
	return b, string(data)
}

func TestStore_NothingActivated(t *testing.T) {
	f := newStoreFixture(t)
	s := f.store(t, true, device)

	res := s.Load(context.Background())
	assert.Equal(t, CodeNotActivated, res.Code)
	assert.Equal(t, device, s.HardwareID(context.Background()))
}

func TestStore_ActivateLoadDeactivate(t *testing.T) {
	f := newStoreFixture(t)
	s := f.store(t, true, device)
	ctx := context.Background()
	b, text := f.bundleText(t, device, testNow.AddDate(1, 0, 0))

	res := s.Activate(ctx, text)
	require.True(t, res.OK(), res.Detail)
	assert.Equal(t, f.paths.V2Cache, res.Source)

	data, err := os.ReadFile(f.paths.V2Cache)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \""+FieldLicenseID+"\": ")
	if runtime.GOOS != "windows" {
		info, err := os.Stat(f.paths.V2Cache)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded := s.Load(ctx)
	require.True(t, loaded.OK())
	assert.Equal(t, b.LicenseID, loaded.LicenseID)
	assert.Equal(t, f.paths.V2Cache, loaded.Source)

	info := s.Info(ctx)
	assert.True(t, info.Result.OK())
	assert.Equal(t, device, info.HardwareID)
	assert.Equal(t, b.LicenseID[:20]+"...", info.KeyPartial)

	require.NoError(t, s.Deactivate(ctx))
	assert.NoFileExists(t, f.paths.V2Cache)
	assert.Equal(t, CodeNotActivated, s.Load(ctx).Code)
	assert.NoError(t, s.Deactivate(ctx))
}

func TestStore_ActivateRejectsInvalid(t *testing.T) {
	f := newStoreFixture(t)
	s := f.store(t, true, device)
	ctx := context.Background()

	_, text := f.bundleText(t, "ff00ff00ff00ff00", testNow.AddDate(1, 0, 0))
	res := s.Activate(ctx, text)
	assert.Equal(t, CodeWrongDevice, res.Code)
	assert.NoFileExists(t, f.paths.V2Cache)

	assert.Equal(t, CodeLegacyDisabled, s.Activate(ctx, legacyKey2030).Code)
	assert.NoFileExists(t, f.paths.LegacyCache)

	assert.Equal(t, CodeUnsupportedVersion, s.Activate(ctx, "{").Code)
}

func TestStore_ActivateStorageFailure(t *testing.T) {
	f := newStoreFixture(t)
	f.paths.V2Cache = filepath.Join(f.dir, "missing", "dir", ".license_v2.json")
	s := f.store(t, true, device)
	_, text := f.bundleText(t, "", testNow.AddDate(1, 0, 0))

	res := s.Activate(context.Background(), text)
	assert.Equal(t, CodeStorage, res.Code)
	assert.Equal(t, FormatV2, res.Format)
}

func TestStore_AutoImport(t *testing.T) {
	f := newStoreFixture(t)
	s := f.store(t, true, device)
	ctx := context.Background()

	_, wrongDevice := f.bundleText(t, "ff00ff00ff00ff00", testNow.AddDate(1, 0, 0))
	good, goodText := f.bundleText(t, device, testNow.AddDate(1, 0, 0))

	testutil.WriteFile(t, f.paths.ImportDir, "license.oml", []byte(wrongDevice))
	testutil.WriteFile(t, f.paths.ImportDir, "license.json", []byte("{not json"))
	testutil.WriteFile(t, f.paths.ImportDir, "notes.lic", []byte(legacyKey2030))
	goodPath := testutil.WriteFile(t, f.paths.ImportDir, good.FileName(), []byte(goodText))

	res := s.Load(ctx)
	require.True(t, res.OK(), res.Detail)
	assert.Equal(t, good.LicenseID, res.LicenseID)
	assert.Equal(t, goodPath, res.Source)

	require.FileExists(t, f.paths.V2Cache)
	require.NoError(t, os.Remove(goodPath))

	cached := s.Load(ctx)
	require.True(t, cached.OK())
	assert.Equal(t, f.paths.V2Cache, cached.Source)
}

func TestImportCandidates_Order(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.oml", "license_a.oml", "license.oml", "license_x.lic", "readme.txt"} {
		testutil.WriteFile(t, dir, name, []byte("x"))
	}

	got := importCandidates(dir)
	rel := make([]string, 0, len(got))
	for _, p := range got {
		rel = append(rel, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"license.oml", "license.lic", "license.json", "license_v2.json",
		"license_a.oml", "b.oml", "license_x.lic",
	}, rel)
}

func TestStore_CacheReverifiedOnLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("expired cache reports expiry", func(t *testing.T) {
		f := newStoreFixture(t)
		_, text := f.bundleText(t, device, testNow.Add(-time.Minute))
		require.NoError(t, os.WriteFile(f.paths.V2Cache, []byte(text), 0600))

		res := f.store(t, true, device).Load(ctx)
		assert.Equal(t, CodeExpired, res.Code)
		assert.Equal(t, f.paths.V2Cache, res.Source)
	})

	t.Run("moved to another device", func(t *testing.T) {
		f := newStoreFixture(t)
		_, text := f.bundleText(t, device, testNow.AddDate(1, 0, 0))
		require.True(t, f.store(t, true, device).Activate(ctx, text).OK())

		assert.Equal(t, CodeWrongDevice, f.store(t, true, "ff00ff00ff00ff00").Load(ctx).Code)
	})

	t.Run("public key removed", func(t *testing.T) {
		f := newStoreFixture(t)
		_, text := f.bundleText(t, "", testNow.AddDate(1, 0, 0))
		require.True(t, f.store(t, true, device).Activate(ctx, text).OK())

		assert.Equal(t, CodeNoPublicKey, f.store(t, false, device).Load(ctx).Code)
	})

	t.Run("corrupt cache is absent", func(t *testing.T) {
		f := newStoreFixture(t)
		require.NoError(t, os.WriteFile(f.paths.V2Cache, []byte("{corrupt"), 0600))

		assert.Equal(t, CodeNotActivated, f.store(t, true, device).Load(ctx).Code)
	})
}

func TestStore_FailingV2CacheFallsThroughToLegacy(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	require.True(t, f.store(t, false, device).Activate(ctx, legacyKey2030).OK())
	_, text := f.bundleText(t, device, testNow.Add(-time.Minute))
	require.NoError(t, os.WriteFile(f.paths.V2Cache, []byte(text), 0600))

	verifier := newTestVerifier(t, f.authority.PublicKey(), nil, WithAllowLegacy(true))
	s := NewStore(verifier, testutil.StaticFingerprint(device), f.paths, WithStoreLogger(quietLogger()))

	res := s.Load(ctx)
	require.True(t, res.OK(), res.Detail)
	assert.Equal(t, FormatLegacy, res.Format)
	assert.Equal(t, f.paths.LegacyCache, res.Source)

	require.NoError(t, os.Remove(f.paths.LegacyCache))
	assert.Equal(t, CodeExpired, s.Load(ctx).Code)
}

func TestStore_LegacyCache(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	s := f.store(t, false, device)

	res := s.Activate(ctx, legacyKey2030)
	require.True(t, res.OK(), res.Detail)
	assert.Equal(t, f.paths.LegacyCache, res.Source)

	data, err := os.ReadFile(f.paths.LegacyCache)
	require.NoError(t, err)
	assert.NotContains(t, string(data), legacyKey2030)

	plain, err := security.DecodeObfuscated(data, device)
	require.NoError(t, err)
	var rec legacyRecord
	require.NoError(t, json.Unmarshal(plain, &rec))
	assert.Equal(t, legacyKey2030, rec.Key)
	assert.Equal(t, device, rec.HardwareID)
	assert.Equal(t, "2026-01-15T12:00:00.000000", rec.ActivatedAt)

	loaded := s.Load(ctx)
	require.True(t, loaded.OK())
	assert.Equal(t, FormatLegacy, loaded.Format)

	info := s.Info(ctx)
	assert.Equal(t, "YWExMWJiMjJjYzMzZGQ0...", info.KeyPartial)

	assert.Equal(t, CodeLegacyDisabled, f.store(t, true, device).Load(ctx).Code)
	assert.Equal(t, CodeNotActivated, f.store(t, false, "ff00ff00ff00ff00").Load(ctx).Code)

	require.NoError(t, s.Deactivate(ctx))
	assert.NoFileExists(t, f.paths.LegacyCache)
}

func TestStore_LegacyHardwareChanged(t *testing.T) {
	f := newStoreFixture(t)
	plain, err := json.Marshal(legacyRecord{Key: legacyKey2030, HardwareID: "0000111122223333", ActivatedAt: "2026-01-01T00:00:00.000000"})
	require.NoError(t, err)
	encoded, err := security.EncodeObfuscated(plain, device)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.paths.LegacyCache, encoded, 0600))

	res := f.store(t, false, device).Load(context.Background())
	assert.Equal(t, CodeHardwareChanged, res.Code)
	assert.Equal(t, f.paths.LegacyCache, res.Source)
}

func TestStore_V2CacheBeatsLegacy(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	legacyStore := f.store(t, false, device)
	require.True(t, legacyStore.Activate(ctx, legacyKey2030).OK())

	s := f.store(t, true, device)
	b, text := f.bundleText(t, device, testNow.AddDate(1, 0, 0))
	require.True(t, s.Activate(ctx, text).OK())

	res := s.Load(ctx)
	assert.Equal(t, FormatV2, res.Format)
	assert.Equal(t, b.LicenseID, res.LicenseID)
}
