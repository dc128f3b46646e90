// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/binal-re/binal/internal/constants"
)

// Loader handles loading and saving configuration files.
type Loader struct {
	homeDir string
}

// NewLoader creates a new config loader.
// The base directory is resolved in this order:
//  1. BINAL_CONFIG environment variable.
//  2. User home directory (~/).
//  3. /tmp/binal-fallback (containers without a home directory).
//
// In the fallback case no config file exists, so LoadGlobalConfig returns
// defaults with environment overrides applied.
func NewLoader() *Loader {
	if baseDir := os.Getenv("BINAL_CONFIG"); baseDir != "" {
		return &Loader{homeDir: baseDir}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return &Loader{homeDir: homeDir}
	}

	return &Loader{homeDir: "/tmp/binal-fallback"}
}

// NewLoaderAt creates a loader rooted at baseDir.
func NewLoaderAt(baseDir string) *Loader {
	return &Loader{homeDir: baseDir}
}

// BaseDir returns the directory that holds the binal directory.
func (l *Loader) BaseDir() string {
	return l.homeDir
}

// GlobalConfigPath returns the path to the global config file.
func (l *Loader) GlobalConfigPath() string {
	return filepath.Join(l.homeDir, constants.DefaultDir, constants.ConfigFile)
}

// ResolvePath makes a configured path absolute. Relative paths are taken
// relative to the base directory.
func (l *Loader) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.homeDir, path)
}

// LoadGlobalConfig loads the global configuration.
// Fields missing from the file keep their defaults, and environment variables
// override both. Returns the default config if the file doesn't exist.
func (l *Loader) LoadGlobalConfig() (*GlobalConfig, error) {
	path := l.GlobalConfigPath()

	config := DefaultGlobalConfig()

	//nolint:gosec // G304: Path is from trusted config directory.
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read global config: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse global config: %w", err)
		}
	}

	if err := MergeFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return config, nil
}

// SaveGlobalConfig saves the global configuration.
func (l *Loader) SaveGlobalConfig(config *GlobalConfig) error {
	path := l.GlobalConfigPath()

	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal global config: %w", err)
	}

	//nolint:gosec // G306: Global config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write global config: %w", err)
	}

	return nil
}
