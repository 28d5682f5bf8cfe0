// Package config provides centralized default configuration values.
package config

// DefaultExcludePatterns is the canonical list of patterns excluded
// from insertion and block generation. Users can override via
// config.yaml: exclude.
var DefaultExcludePatterns = []string{
	".git",
	".svn",
	".hg",
	".ctxpack",
	"node_modules",
	"vendor",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".venv",
	"venv",
	".idea",
	".vscode",
	"dist",
	"build",
	"target",
	"coverage",
	".cache",
	"*.pyc",
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
}
