package config

import "time"

// Application constants
const (
	AppName    = "OdooMaster Licensing"
	AppVersion = "2.0.0"
	EnvPrefix  = "ODOMASTER"

	// Files kept next to the executable
	LicenseV2CacheFileName = ".license_v2.json"
	LegacyCacheFileName    = ".license"
	RevocationFileName     = ".license_blacklist.json"
	PublicKeyFileName      = "license_public_key.pem"
	PrivateKeyFileName     = "license_private_key.pem"
	LedgerFileName         = "issued_licenses.db"
	ConfigFileName         = "config.yaml"

	// Shared secret of the pre-signature key format. It ships with every
	// installation, so it authenticates nothing against a motivated user.
	DefaultLegacySecret = "OdooInstallerSecretKey2025"

	DefaultPlan        = "professional"
	DefaultKeyBits     = 3072
	LifetimeThreshold  = 3650 // days
	UnlimitedYears     = 100
	DefaultGateTTL     = 30 * time.Second
	DefaultMaxBodySize = 64 << 10
)

// AutoImportFileNames are checked, in order, before AutoImportPatterns.
var AutoImportFileNames = []string{
	"license.oml",
	"license.lic",
	"license.json",
	"license_v2.json",
}

// AutoImportPatterns are globbed in order after AutoImportFileNames.
var AutoImportPatterns = []string{
	"license_*.oml",
	"*.oml",
	"license_*.lic",
	"*.lic",
}
