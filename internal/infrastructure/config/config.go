package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Identity Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServiceConfig contains service identification settings.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains token signing and two-factor settings.
//
// Token TTLs are duration expressions of the form <integer><unit> where
// unit is one of s, m, h, d (e.g. "15m", "30d").
type SecurityConfig struct {
	AccessSecret    string `yaml:"access_secret"`
	RefreshSecret   string `yaml:"refresh_secret"`
	AccessTokenTTL  string `yaml:"access_token_ttl"`
	RefreshTokenTTL string `yaml:"refresh_token_ttl"`
	TOTPIssuer      string `yaml:"totp_issuer"`
	SeedDeveloper   bool   `yaml:"seed_developer"`
}

// AuditConfig contains audit recorder settings.
type AuditConfig struct {
	// BufferSize is the capacity of the asynchronous audit queue.
	// When the queue is full, events are dropped rather than blocking
	// the operation that produced them.
	BufferSize int `yaml:"buffer_size"`
}

// ttlPattern matches duration expressions like "15m", "30d", "90s", "12h".
var ttlPattern = regexp.MustCompile(`^(\d+)\s*([smhd])$`)

// ParseTTL parses a duration expression of the form <integer><unit>,
// unit ∈ {s, m, h, d}. Matching is case-insensitive.
func ParseTTL(expr string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if m == nil {
		return 0, fmt.Errorf("invalid duration expression %q (want <integer><unit>, unit one of s/m/h/d)", expr)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration expression %q: %w", expr, err)
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	return time.Duration(n) * unit, nil
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IDCORE_SECTION_KEY
// For example: IDCORE_DATABASE_PATH, IDCORE_ACCESS_SECRET
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "identity-core",
		},
		Database: DatabaseConfig{
			Path:        "./data/identity.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "30d",
			TOTPIssuer:      "PlayerPortal",
			SeedDeveloper:   true,
		},
		Audit: AuditConfig{
			BufferSize: 256,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IDCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("IDCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("IDCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("IDCORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Security - signing secrets (IMPORTANT: always override in production)
	if v := os.Getenv("IDCORE_ACCESS_SECRET"); v != "" {
		cfg.Security.AccessSecret = v
	}
	if v := os.Getenv("IDCORE_REFRESH_SECRET"); v != "" {
		cfg.Security.RefreshSecret = v
	}
	if v := os.Getenv("IDCORE_ACCESS_TOKEN_TTL"); v != "" {
		cfg.Security.AccessTokenTTL = v
	}
	if v := os.Getenv("IDCORE_REFRESH_TOKEN_TTL"); v != "" {
		cfg.Security.RefreshTokenTTL = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - both signing secrets are REQUIRED.
	// Empty or weak secrets would let an attacker forge tokens offline.
	const minSecretLength = 32
	switch {
	case c.Security.AccessSecret == "":
		errs = append(errs, "security.access_secret is required (set IDCORE_ACCESS_SECRET environment variable)")
	case len(c.Security.AccessSecret) < minSecretLength:
		errs = append(errs, "security.access_secret must be at least 32 characters")
	}
	switch {
	case c.Security.RefreshSecret == "":
		errs = append(errs, "security.refresh_secret is required (set IDCORE_REFRESH_SECRET environment variable)")
	case len(c.Security.RefreshSecret) < minSecretLength:
		errs = append(errs, "security.refresh_secret must be at least 32 characters")
	}

	// The access and refresh keys must differ: a token signed with one key
	// must never verify under the other.
	if c.Security.AccessSecret != "" && c.Security.AccessSecret == c.Security.RefreshSecret {
		errs = append(errs, "security.access_secret and security.refresh_secret must differ")
	}

	if _, err := ParseTTL(c.Security.AccessTokenTTL); err != nil {
		errs = append(errs, fmt.Sprintf("security.access_token_ttl: %v", err))
	}
	if _, err := ParseTTL(c.Security.RefreshTokenTTL); err != nil {
		errs = append(errs, fmt.Sprintf("security.refresh_token_ttl: %v", err))
	}

	if c.Audit.BufferSize < 1 {
		errs = append(errs, "audit.buffer_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AccessTTL returns the parsed access token lifetime.
// Validate must have succeeded first.
func (c *Config) AccessTTL() time.Duration {
	d, _ := ParseTTL(c.Security.AccessTokenTTL) //nolint:errcheck // checked by Validate
	return d
}

// RefreshTTL returns the parsed refresh token lifetime.
// Validate must have succeeded first.
func (c *Config) RefreshTTL() time.Duration {
	d, _ := ParseTTL(c.Security.RefreshTokenTTL) //nolint:errcheck // checked by Validate
	return d
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
