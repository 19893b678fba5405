package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(paths.BaseDir), "BaseDir should be absolute")
	assert.Equal(t, filepath.Join(paths.BaseDir, PublicKeyFileName), paths.PublicKeyFile)
}

func TestPathsFor(t *testing.T) {
	base := t.TempDir()
	paths := PathsFor(base)

	assert.Equal(t, filepath.Join(base, ".license_v2.json"), paths.V2CacheFile)
	assert.Equal(t, filepath.Join(base, ".license"), paths.LegacyCacheFile)
	assert.Equal(t, filepath.Join(base, ".license_blacklist.json"), paths.RevocationFile)
	assert.Equal(t, filepath.Join(base, "license_private_key.pem"), paths.PrivateKeyFile)

	require.NoError(t, paths.EnsureDirectories())
	assert.True(t, FileExists(paths.DataDir))
	assert.True(t, FileExists(paths.LogsDir))
	assert.False(t, FileExists(paths.V2CacheFile))
}
