// Package config handles configuration management for ctxpack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Git     GitConfig     `mapstructure:"git"`
	Diff    DiffConfig    `mapstructure:"diff"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Logging LoggingConfig `mapstructure:"logging"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Exclude []string      `mapstructure:"exclude"`
}

// ServerConfig holds HTTP server configuration for serve mode.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path string `mapstructure:"path"` // SQLite database path
}

// GitConfig holds source-control configuration.
type GitConfig struct {
	Command string `mapstructure:"command"`
}

// DiffConfig holds diff aggregation configuration.
type DiffConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// WatcherConfig holds stale-entry watcher configuration.
type WatcherConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	DebounceMS int  `mapstructure:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LimitsConfig holds size limits.
type LimitsConfig struct {
	MaxFileSizeKB int `mapstructure:"max_file_size_kb"`
	MaxDiffSizeKB int `mapstructure:"max_diff_size_kb"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ctxpack")
		v.AddConfigPath("/etc/ctxpack")
	}

	v.SetEnvPrefix("CTXPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8930)

	v.SetDefault("storage.path", "")

	v.SetDefault("git.command", "git")

	v.SetDefault("diff.concurrency", 4)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce_ms", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("limits.max_file_size_kb", 200)
	v.SetDefault("limits.max_diff_size_kb", 500)

	v.SetDefault("exclude", DefaultExcludePatterns)
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	if cfg.Storage.Path == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config dir: %w", err)
		}
		cfg.Storage.Path = filepath.Join(dir, "ctxpack.db")
	}

	absPath, err := filepath.Abs(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve storage path: %w", err)
	}
	cfg.Storage.Path = absPath

	return nil
}

// ExcludeFunc returns a predicate over locations matching the
// configured exclusion globs against each path component.
func (cfg *Config) ExcludeFunc() func(string) bool {
	patterns := cfg.Exclude
	if len(patterns) == 0 {
		return nil
	}
	return func(location string) bool {
		return matchesAny(patterns, location)
	}
}

// matchesAny reports whether any pattern matches the base name or a
// path component of path.
func matchesAny(patterns []string, path string) bool {
	base := filepath.Base(path)
	parts := splitPath(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		for _, part := range parts {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	var parts []string
	for path != "" && path != "/" && path != "." {
		dir, file := filepath.Split(path)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		path = filepath.Clean(dir)
	}
	return parts
}

// GetConfigDir returns the user config directory for ctxpack.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".ctxpack"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
