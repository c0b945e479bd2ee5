package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// installationKeyFile is the file under the storage directory that records
// the generated persistence key for this installation.
const installationKeyFile = "installation-id"

// Permission modes for the storage directory and installation key file.
const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// Config is the root configuration structure for driftdb.
// All configuration is loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig identifies the client installation and its backing database.
type ClientConfig struct {
	// PersistenceKey is stable per logical installation. Leave empty to
	// have one generated and persisted under the storage directory.
	PersistenceKey string `yaml:"persistence_key"`

	// ProjectID is the project this client belongs to. Required.
	ProjectID string `yaml:"project_id"`

	// DatabaseID selects the database within the project.
	// Default: "(default)"
	DatabaseID string `yaml:"database_id"`
}

// StorageConfig contains local storage settings.
type StorageConfig struct {
	// Dir is the directory holding database files. Created if missing.
	Dir string `yaml:"dir"`

	// BusyTimeout is the maximum time to wait for an engine lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DRIFTDB_SECTION_KEY
// For example: DRIFTDB_STORAGE_DIR, DRIFTDB_CLIENT_PROJECT_ID
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			DatabaseID: "(default)",
		},
		Storage: StorageConfig{
			Dir:         "./data",
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern:
// DRIFTDB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Client
	if v := os.Getenv("DRIFTDB_CLIENT_PERSISTENCE_KEY"); v != "" {
		cfg.Client.PersistenceKey = v
	}
	if v := os.Getenv("DRIFTDB_CLIENT_PROJECT_ID"); v != "" {
		cfg.Client.ProjectID = v
	}
	if v := os.Getenv("DRIFTDB_CLIENT_DATABASE_ID"); v != "" {
		cfg.Client.DatabaseID = v
	}

	// Storage
	if v := os.Getenv("DRIFTDB_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("DRIFTDB_STORAGE_BUSY_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			cfg.Storage.BusyTimeout = timeout
		}
	}

	// Logging
	if v := os.Getenv("DRIFTDB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Client.ProjectID == "" {
		errs = append(errs, "client.project_id is required")
	}
	if c.Client.DatabaseID == "" {
		errs = append(errs, "client.database_id is required")
	}

	if c.Storage.Dir == "" {
		errs = append(errs, "storage.dir is required")
	}
	if c.Storage.BusyTimeout < 0 {
		errs = append(errs, "storage.busy_timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// EnsurePersistenceKey returns the installation's persistence key.
//
// If the configuration carries one, it is used as-is. Otherwise the key is
// read from the installation-id file under the storage directory, generating
// and persisting a fresh one on first run. The key must stay stable across
// runs: it is part of the database name, and a changed key would strand the
// installation's existing data.
//
// Returns:
//   - string: The stable persistence key
//   - error: If the key file cannot be read or written
func EnsurePersistenceKey(cfg *Config) (string, error) {
	if cfg.Client.PersistenceKey != "" {
		return cfg.Client.PersistenceKey, nil
	}

	path := filepath.Join(cfg.Storage.Dir, installationKeyFile)

	data, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(data))
		if key != "" {
			return key, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading installation key: %w", err)
	}

	key := uuid.NewString()
	if err := os.MkdirAll(cfg.Storage.Dir, dirPermissions); err != nil {
		return "", fmt.Errorf("creating storage directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), filePermissions); err != nil {
		return "", fmt.Errorf("writing installation key: %w", err)
	}

	return key, nil
}
