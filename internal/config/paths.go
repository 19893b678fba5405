package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every file location used by the licensing engine.
// All of them hang off a single base directory, normally the one holding
// the executable.
type Paths struct {
	BaseDir         string
	LogsDir         string
	DataDir         string
	V2CacheFile     string
	LegacyCacheFile string
	RevocationFile  string
	PublicKeyFile   string
	PrivateKeyFile  string
	LedgerFile      string
}

// GetPaths returns the application paths relative to the executable location.
// Never the current working directory.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	exeDir := filepath.Dir(exe)
	slog.Debug("Resolved executable directory",
		slog.String("exe_path", exe),
		slog.String("exe_dir", exeDir))

	return PathsFor(exeDir), nil
}

// PathsFor lays out the well-known files under baseDir.
//
//	baseDir/
//	  ├── .license_v2.json          (verified v2 bundle)
//	  ├── .license                  (obfuscated legacy key)
//	  ├── .license_blacklist.json   (revocation registry)
//	  ├── license_public_key.pem
//	  ├── data/issued_licenses.db   (issuer ledger)
//	  └── logs/
func PathsFor(baseDir string) *Paths {
	dataDir := filepath.Join(baseDir, "data")
	return &Paths{
		BaseDir:         baseDir,
		LogsDir:         filepath.Join(baseDir, "logs"),
		DataDir:         dataDir,
		V2CacheFile:     filepath.Join(baseDir, LicenseV2CacheFileName),
		LegacyCacheFile: filepath.Join(baseDir, LegacyCacheFileName),
		RevocationFile:  filepath.Join(baseDir, RevocationFileName),
		PublicKeyFile:   filepath.Join(baseDir, PublicKeyFileName),
		PrivateKeyFile:  filepath.Join(baseDir, PrivateKeyFileName),
		LedgerFile:      filepath.Join(dataDir, LedgerFileName),
	}
}

// EnsureDirectories creates the directories the engine writes into
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.BaseDir, p.DataDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
