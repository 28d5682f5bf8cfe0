package config

import (
	"fmt"
	"strings"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateGit(&cfg.Git); err != nil {
		return err
	}

	if err := validateDiff(&cfg.Diff); err != nil {
		return err
	}

	if err := validateWatcher(&cfg.Watcher); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	if err := validateLimits(&cfg.Limits); err != nil {
		return err
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	return nil
}

func validateGit(cfg *GitConfig) error {
	if strings.TrimSpace(cfg.Command) == "" {
		return fmt.Errorf("git.command cannot be empty")
	}
	return nil
}

func validateDiff(cfg *DiffConfig) error {
	if cfg.Concurrency < 1 {
		return fmt.Errorf("diff.concurrency must be at least 1")
	}
	if cfg.Concurrency > 64 {
		return fmt.Errorf("diff.concurrency must be at most 64")
	}
	return nil
}

func validateWatcher(cfg *WatcherConfig) error {
	if cfg.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms cannot be negative")
	}
	if cfg.DebounceMS > 10000 {
		return fmt.Errorf("watcher.debounce_ms cannot exceed 10000")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error")
	}
	switch cfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) error {
	if cfg.MaxFileSizeKB < 1 {
		return fmt.Errorf("limits.max_file_size_kb must be at least 1")
	}
	if cfg.MaxDiffSizeKB < 1 {
		return fmt.Errorf("limits.max_diff_size_kb must be at least 1")
	}
	return nil
}
