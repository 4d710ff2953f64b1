package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Preview  PreviewConfig  `yaml:"preview"`
	Seed     SeedConfig     `yaml:"seed"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// PublicOrigin is the scheme://host[:port] the admin UI is served from.
	// Preview messages from any other origin are discarded.
	PublicOrigin string `yaml:"public_origin"`
}

// DatabaseConfig selects and configures the config document backend.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// AuthConfig contains the single admin credential and session settings.
type AuthConfig struct {
	Password      string   `yaml:"-"` // env-only, never in YAML
	SessionSecret string   `yaml:"-"` // env-only, never in YAML
	SessionTTL    Duration `yaml:"session_ttl"`
	SecureCookie  bool     `yaml:"secure_cookie"`
}

// CacheConfig controls the public read view of the site config.
type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

// SnapshotConfig controls last-known-good snapshots of the config document.
type SnapshotConfig struct {
	Path     string                `yaml:"path"`
	Schedule string                `yaml:"schedule"`
	Storage  SnapshotStorageConfig `yaml:"storage"`
}

// SnapshotStorageConfig configures optional S3-compatible snapshot upload.
// An empty Bucket disables upload.
type SnapshotStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"`
	SecretKey string   `yaml:"-"`
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// PreviewConfig controls the live preview bridge timings.
type PreviewConfig struct {
	Debounce  Duration `yaml:"debounce"`
	Highlight Duration `yaml:"highlight"`
}

// SeedConfig points at the initial site config document.
type SeedConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("SITECMS_CONFIG_PATH", "config/sitecms.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			PublicOrigin:    "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Driver:        DriverSQLite,
			Path:          "data/sitecms.db",
			MongoDatabase: "sitecms",
		},
		Auth: AuthConfig{
			SessionTTL:   Duration(24 * time.Hour),
			SecureCookie: true,
		},
		Cache: CacheConfig{
			TTL: Duration(60 * time.Second),
		},
		Snapshot: SnapshotConfig{
			Path:     "data/snapshot/site_config.json",
			Schedule: "@every 10m",
			Storage: SnapshotStorageConfig{
				URLExpiry: Duration(15 * time.Minute),
			},
		},
		Preview: PreviewConfig{
			Debounce:  Duration(300 * time.Millisecond),
			Highlight: Duration(2 * time.Second),
		},
		Seed: SeedConfig{
			Path: "data/siteConfig.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("SITECMS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SITECMS_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SITECMS_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SITECMS_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SITECMS_PUBLIC_ORIGIN"); v != "" {
		cfg.Server.PublicOrigin = v
	}

	// Database
	if v := os.Getenv("SITECMS_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SITECMS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SITECMS_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SITECMS_MONGO_URI"); v != "" {
		cfg.Database.MongoURI = v
	}
	if v := os.Getenv("SITECMS_MONGO_DATABASE"); v != "" {
		cfg.Database.MongoDatabase = v
	}

	// Auth (CMS_* names are shared with the site deployment)
	if v := os.Getenv("CMS_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("CMS_SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("SITECMS_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.SessionTTL = Duration(d)
		}
	}
	if v := os.Getenv("SITECMS_SECURE_COOKIE"); v != "" {
		cfg.Auth.SecureCookie = v == "true" || v == "1"
	}

	// Cache
	if v := os.Getenv("SITECMS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = Duration(d)
		}
	}

	// Snapshot
	if v := os.Getenv("SITECMS_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
	if v := os.Getenv("SITECMS_SNAPSHOT_SCHEDULE"); v != "" {
		cfg.Snapshot.Schedule = v
	}
	if v := os.Getenv("SITECMS_SNAPSHOT_BUCKET"); v != "" {
		cfg.Snapshot.Storage.Bucket = v
	}
	if v := os.Getenv("SITECMS_S3_ENDPOINT"); v != "" {
		cfg.Snapshot.Storage.Endpoint = v
	}
	if v := os.Getenv("SITECMS_S3_REGION"); v != "" {
		cfg.Snapshot.Storage.Region = v
	}
	if v := os.Getenv("SITECMS_S3_ACCESS_KEY"); v != "" {
		cfg.Snapshot.Storage.AccessKey = v
	}
	if v := os.Getenv("SITECMS_S3_SECRET_KEY"); v != "" {
		cfg.Snapshot.Storage.SecretKey = v
	}
	if v := os.Getenv("SITECMS_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Snapshot.Storage.UseSSL = &useSSL
	}

	// Preview
	if v := os.Getenv("SITECMS_PREVIEW_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Preview.Debounce = Duration(d)
		}
	}

	// Seed
	if v := os.Getenv("SITECMS_SEED_PATH"); v != "" {
		cfg.Seed.Path = v
	}

	// Log
	if v := os.Getenv("SITECMS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SITECMS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (SITECMS_DEV_MODE=true), credential validation is skipped.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("SITECMS_DB_DSN is required for the postgres driver")
		}
	case DriverMongo:
		if c.Database.MongoURI == "" {
			return errors.New("SITECMS_MONGO_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}

	if os.Getenv("SITECMS_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.Password == "" {
		return errors.New("CMS_PASSWORD is required")
	}
	if c.Auth.SessionSecret == "" {
		return errors.New("CMS_SESSION_SECRET is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
