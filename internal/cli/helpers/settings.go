package helpers

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/binal-re/binal/internal/config"
	"github.com/binal-re/binal/internal/logging"
)

// LoadConfig loads the global config with environment overrides, then applies
// the root --log-level flag when it was given. The config is not validated;
// commands validate after applying their own flags.
func LoadConfig(cmd *cobra.Command) (*config.Loader, *config.GlobalConfig, error) {
	loader := config.NewLoader()

	cfg, err := loader.LoadGlobalConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}

	return loader, cfg, nil
}

// NewLogger builds a component logger from the logging section of cfg.
func NewLogger(cfg *config.GlobalConfig, component string) zerolog.Logger {
	return logging.NewWithComponent(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	}, component)
}
