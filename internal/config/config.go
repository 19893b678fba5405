package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	// AdminAPIKey guards issuance and revocation endpoints. Empty disables them.
	AdminAPIKey string          `yaml:"admin_api_key" envconfig:"ADMIN_API_KEY"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig selects OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// LicenseConfig holds key material locations and the local license state files.
// Empty paths are filled from PathsFor(BaseDir).
type LicenseConfig struct {
	BaseDir   string `yaml:"base_dir" envconfig:"BASE_DIR"`
	ImportDir string `yaml:"import_dir" envconfig:"IMPORT_DIR"`

	// PublicKeyPEM takes priority over PublicKeyFile.
	PublicKeyPEM  string `yaml:"public_key_pem" envconfig:"PUBLIC_KEY_PEM"`
	PublicKeyFile string `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE"`

	// Issuer side only.
	PrivateKeyPEM        string `yaml:"private_key_pem" envconfig:"PRIVATE_KEY_PEM"`
	PrivateKeyFile       string `yaml:"private_key_file" envconfig:"PRIVATE_KEY_FILE"`
	PrivateKeyPassphrase string `yaml:"private_key_passphrase" envconfig:"PRIVATE_KEY_PASSPHRASE"`

	AllowLegacy  bool   `yaml:"allow_legacy" envconfig:"ALLOW_LEGACY"`
	LegacySecret string `yaml:"legacy_secret" envconfig:"LEGACY_SECRET"`

	RevocationFile  string        `yaml:"revocation_file" envconfig:"REVOCATION_FILE"`
	V2CacheFile     string        `yaml:"v2_cache_file" envconfig:"V2_CACHE_FILE"`
	LegacyCacheFile string        `yaml:"legacy_cache_file" envconfig:"LEGACY_CACHE_FILE"`
	LedgerPath      string        `yaml:"ledger_path" envconfig:"LEDGER_PATH"`
	GateTTL         time.Duration `yaml:"gate_ttl" envconfig:"GATE_TTL"`
}

// Load builds the configuration from defaults, an optional YAML file and
// ODOMASTER_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadWithBaseDir("")
}

// LoadWithBaseDir is Load with License.BaseDir forced to baseDir when it is
// not empty. Paths derived from the base directory follow it.
func LoadWithBaseDir(baseDir string) (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if baseDir != "" {
		cfg.License.BaseDir = baseDir
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file keep their value
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolvePaths anchors the license files on BaseDir, defaulting to the executable directory
func (c *Config) resolvePaths() error {
	if c.License.BaseDir == "" {
		paths, err := GetPaths()
		if err != nil {
			return err
		}
		c.License.BaseDir = paths.BaseDir
	}
	c.ApplyPathDefaults()
	return nil
}

// ApplyPathDefaults fills empty license paths from PathsFor(License.BaseDir)
func (c *Config) ApplyPathDefaults() {
	lc := &c.License
	paths := PathsFor(lc.BaseDir)

	setDefault := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	setDefault(&lc.ImportDir, paths.BaseDir)
	setDefault(&lc.PublicKeyFile, paths.PublicKeyFile)
	setDefault(&lc.PrivateKeyFile, paths.PrivateKeyFile)
	setDefault(&lc.RevocationFile, paths.RevocationFile)
	setDefault(&lc.V2CacheFile, paths.V2CacheFile)
	setDefault(&lc.LegacyCacheFile, paths.LegacyCacheFile)
	setDefault(&lc.LedgerPath, paths.LedgerFile)

	if c.Logging.FilePath != "" && !filepath.IsAbs(c.Logging.FilePath) {
		c.Logging.FilePath = filepath.Join(lc.BaseDir, c.Logging.FilePath)
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive rps and burst")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("unsupported logging output: %q", c.Logging.Output)
	}

	if c.License.LegacySecret == "" {
		return fmt.Errorf("legacy secret must not be empty")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be within [0,1]: %v", c.Telemetry.SampleRatio)
	}

	return nil
}

// getConfigFilePath returns the path to the config file, or "" when none exists
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		return explicit
	}

	locations := []string{
		ConfigFileName,
		filepath.Join("configs", ConfigFileName),
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    DefaultMaxBodySize,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/licensing.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "odoomaster-licensing",
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		License: LicenseConfig{
			LegacySecret: DefaultLegacySecret,
			GateTTL:      DefaultGateTTL,
		},
	}
}
