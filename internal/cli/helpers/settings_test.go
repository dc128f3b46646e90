package helpers

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_LogLevelFlag(t *testing.T) {
	t.Setenv("BINAL_CONFIG", t.TempDir())
	t.Setenv("BINAL_LOG_LEVEL", "warn")

	root := &cobra.Command{Use: "binal"}
	root.PersistentFlags().String("log-level", "", "")
	child := &cobra.Command{Use: "serve", RunE: func(*cobra.Command, []string) error { return nil }}
	root.AddCommand(child)

	require.NoError(t, root.ParseFlags(nil))
	_, cfg, err := LoadConfig(child)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)

	require.NoError(t, root.PersistentFlags().Set("log-level", "debug"))
	_, cfg, err = LoadConfig(child)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
