// ABOUTME: Configuration loading and parsing for ember-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ember-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	SecretStore SecretStoreConfig `yaml:"secret_store"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Health      HealthConfig      `yaml:"health"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds listening socket configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	// PreferredPort is tried first; 0 means no preference
	PreferredPort int `yaml:"preferred_port"`
	// PortRangeMin/Max bound the scan when the preferred port is taken
	PortRangeMin int `yaml:"port_range_min"`
	PortRangeMax int `yaml:"port_range_max"`
	// BindProbes caps bind attempts before startup fails
	BindProbes int `yaml:"bind_probes"`
}

// DatabaseConfig holds configuration store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	MinTokenLength int `yaml:"min_token_length"`
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	Points        int           `yaml:"points"`
	Duration      time.Duration `yaml:"-"`
	BlockDuration time.Duration `yaml:"-"`
	// PenaltyPoints is deducted per invalid-auth attempt
	PenaltyPoints int `yaml:"penalty_points"`

	// Raw string values for YAML unmarshaling
	DurationRaw      string `yaml:"duration"`
	BlockDurationRaw string `yaml:"block_duration"`
}

// SecretStoreConfig selects the secret facility holding the auth token
type SecretStoreConfig struct {
	// Driver is one of auto, keychain, file
	Driver string `yaml:"driver"`
	// Service is the keychain service name
	Service string `yaml:"service"`
	// FallbackEnabled permits the encrypted file store when no keychain exists
	FallbackEnabled bool `yaml:"fallback_enabled"`
	// FilePath and Passphrase parameterize the file fallback
	FilePath   string `yaml:"file_path"`
	Passphrase string `yaml:"passphrase"`
}

// ProvidersConfig holds tool provider configuration
type ProvidersConfig struct {
	ManifestDir    string        `yaml:"manifest_dir"`
	InvokeTimeout  time.Duration `yaml:"-"`
	ConnectTimeout time.Duration `yaml:"-"`

	InvokeTimeoutRaw  string `yaml:"invoke_timeout"`
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
}

// HealthConfig holds health polling configuration
type HealthConfig struct {
	CheckTimeout time.Duration `yaml:"-"`

	CheckTimeoutRaw string `yaml:"check_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.BindProbes <= 0 {
		c.Server.BindProbes = 10
	}
	if c.Auth.MinTokenLength <= 0 {
		c.Auth.MinTokenLength = 32
	}
	if c.RateLimit.Points <= 0 {
		c.RateLimit.Points = 60
	}
	if c.RateLimit.Duration <= 0 {
		c.RateLimit.Duration = time.Minute
	}
	if c.RateLimit.PenaltyPoints <= 0 {
		c.RateLimit.PenaltyPoints = 5
	}
	if c.SecretStore.Driver == "" {
		c.SecretStore.Driver = "auto"
	}
	if c.Providers.InvokeTimeout <= 0 {
		c.Providers.InvokeTimeout = 30 * time.Second
	}
	if c.Providers.ConnectTimeout <= 0 {
		c.Providers.ConnectTimeout = 10 * time.Second
	}
	if c.Health.CheckTimeout <= 0 {
		c.Health.CheckTimeout = 2 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Server.PortRangeMin < 0 || c.Server.PortRangeMax < 0 {
		return fmt.Errorf("server port range must be non-negative")
	}
	if c.Server.PortRangeMin > 0 && c.Server.PortRangeMax < c.Server.PortRangeMin {
		return fmt.Errorf("server.port_range_max must be >= server.port_range_min")
	}

	switch c.SecretStore.Driver {
	case "auto", "keychain", "file":
	default:
		return fmt.Errorf("secret_store.driver must be auto, keychain or file, got %q", c.SecretStore.Driver)
	}
	if c.SecretStore.Driver == "file" || c.SecretStore.FallbackEnabled {
		if c.SecretStore.FilePath == "" {
			return fmt.Errorf("secret_store.file_path is required for the file driver/fallback")
		}
		if c.SecretStore.Passphrase == "" {
			return fmt.Errorf("secret_store.passphrase is required for the file driver/fallback")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.RateLimit.DurationRaw, &cfg.RateLimit.Duration, "rate_limit.duration"},
		{cfg.RateLimit.BlockDurationRaw, &cfg.RateLimit.BlockDuration, "rate_limit.block_duration"},
		{cfg.Providers.InvokeTimeoutRaw, &cfg.Providers.InvokeTimeout, "providers.invoke_timeout"},
		{cfg.Providers.ConnectTimeoutRaw, &cfg.Providers.ConnectTimeout, "providers.connect_timeout"},
		{cfg.Health.CheckTimeoutRaw, &cfg.Health.CheckTimeout, "health.check_timeout"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
