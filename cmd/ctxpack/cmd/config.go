package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ctxpack/ctxpack/internal/config"
)

// configCmd groups configuration subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Current Configuration:")
		fmt.Println("----------------------")
		fmt.Printf("Server:          %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("Storage Path:    %s\n", cfg.Storage.Path)
		fmt.Printf("Git Command:     %s\n", cfg.Git.Command)
		fmt.Printf("Diff Workers:    %d\n", cfg.Diff.Concurrency)
		fmt.Printf("Watcher Enabled: %t\n", cfg.Watcher.Enabled)
		fmt.Printf("Log Level:       %s\n", cfg.Logging.Level)
		fmt.Printf("Log Format:      %s\n", cfg.Logging.Format)
		fmt.Printf("Exclude:         %v\n", cfg.Exclude)
		return nil
	},
}

const defaultConfigTemplate = `# ctxpack configuration
server:
  host: 127.0.0.1
  port: 8930

storage:
  # path: /custom/path/ctxpack.db

git:
  command: git

diff:
  concurrency: 4

watcher:
  enabled: true
  debounce_ms: 100

logging:
  level: info
  format: console

limits:
  max_file_size_kb: 200
  max_diff_size_kb: 500

# exclude:
#   - node_modules
#   - "*.log"
`

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to ~/.ctxpack/config.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}

		path := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}

		if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
