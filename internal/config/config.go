// Package config loads the YAML configuration with PLCLOG_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// PLCLOG_SERVER_PORT or PLCLOG_PARSING_WORKERS.
const EnvPrefix = "PLCLOG"

// AppConfig is the root configuration.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Parsing  ParsingConfig  `mapstructure:"parsing" yaml:"parsing"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Sessions SessionsConfig `mapstructure:"sessions" yaml:"sessions"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `mapstructure:"port" yaml:"port"`
	BindAddress          string `mapstructure:"bind_address" yaml:"bind_address"`
	ReadTimeout          int    `mapstructure:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout         int    `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	BodyLimit            string `mapstructure:"body_limit" yaml:"body_limit"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging" yaml:"enable_request_logging"`
	EnableCompression    bool   `mapstructure:"enable_compression" yaml:"enable_compression"`
}

// ParsingConfig contains parse defaults
type ParsingConfig struct {
	DefaultDialect string `mapstructure:"default_dialect" yaml:"default_dialect"`
	Workers        int    `mapstructure:"workers" yaml:"workers"`
	MaxLineBytes   int    `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
}

// StorageConfig contains DuckDB persistence settings
type StorageConfig struct {
	DataDirectory     string `mapstructure:"data_directory" yaml:"data_directory"`
	DuckDBPath        string `mapstructure:"duckdb_path" yaml:"duckdb_path"`
	EnablePersistence bool   `mapstructure:"enable_persistence" yaml:"enable_persistence"`
}

// SessionsConfig bounds the API's parse sessions
type SessionsConfig struct {
	MaxSessions            int `mapstructure:"max_sessions" yaml:"max_sessions"`
	TimeoutMinutes         int `mapstructure:"timeout_minutes" yaml:"timeout_minutes"`
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
}

// LoggingConfig selects the log level and format
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			ReadTimeout:          30,
			WriteTimeout:         30,
			BodyLimit:            "2G",
			EnableRequestLogging: true,
			EnableCompression:    true,
		},
		Parsing: ParsingConfig{
			DefaultDialect: "plc_debug",
			Workers:        4,
			MaxLineBytes:   1024 * 1024,
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			DuckDBPath:        "./data/plclog.duckdb",
			EnablePersistence: false,
		},
		Sessions: SessionsConfig{
			MaxSessions:            100,
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// newViper returns a viper instance seeded with the defaults, so every key
// is known to AutomaticEnv.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.read_timeout_seconds", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout_seconds", d.Server.WriteTimeout)
	v.SetDefault("server.body_limit", d.Server.BodyLimit)
	v.SetDefault("server.enable_request_logging", d.Server.EnableRequestLogging)
	v.SetDefault("server.enable_compression", d.Server.EnableCompression)
	v.SetDefault("parsing.default_dialect", d.Parsing.DefaultDialect)
	v.SetDefault("parsing.workers", d.Parsing.Workers)
	v.SetDefault("parsing.max_line_bytes", d.Parsing.MaxLineBytes)
	v.SetDefault("storage.data_directory", d.Storage.DataDirectory)
	v.SetDefault("storage.duckdb_path", d.Storage.DuckDBPath)
	v.SetDefault("storage.enable_persistence", d.Storage.EnablePersistence)
	v.SetDefault("sessions.max_sessions", d.Sessions.MaxSessions)
	v.SetDefault("sessions.timeout_minutes", d.Sessions.TimeoutMinutes)
	v.SetDefault("sessions.cleanup_interval_minutes", d.Sessions.CleanupIntervalMinutes)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
	return v
}

// LoadConfig loads configuration from a YAML file. If the file does not
// exist a default one is written there first. An empty path skips the file
// and uses defaults plus environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	v := newViper()

	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			if err := DefaultConfig().Save(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if configPath != "" {
		cfg.resolvePaths(filepath.Dir(configPath))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# PLC log parser configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Parsing.Workers < 1 {
		errs = append(errs, fmt.Errorf("parsing.workers must be at least 1, got %d", c.Parsing.Workers))
	}
	if c.Parsing.MaxLineBytes < 1 {
		errs = append(errs, fmt.Errorf("parsing.max_line_bytes must be positive, got %d", c.Parsing.MaxLineBytes))
	}
	if c.Sessions.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions must be at least 1, got %d", c.Sessions.MaxSessions))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Storage.DataDirectory != "" && !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if c.Storage.DuckDBPath != "" && !filepath.IsAbs(c.Storage.DuckDBPath) {
		c.Storage.DuckDBPath = filepath.Join(configDir, c.Storage.DuckDBPath)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// UploadDir is where the API keeps uploaded log files.
func (c *AppConfig) UploadDir() string {
	return filepath.Join(c.Storage.DataDirectory, "uploads")
}

// SessionTimeout returns the idle lifetime of a parse session.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Sessions.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often expired sessions are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDirectory}
	if c.Storage.EnablePersistence && c.Storage.DuckDBPath != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.DuckDBPath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
