package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/binal-re/binal/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "binal", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("log-level", "", "")
	root.AddCommand(NewConfigCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewConfigCmd(t *testing.T) {
	cmd := NewConfigCmd()
	assert.Equal(t, "config", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"view", "validate", "init", "path"}, names)
}

func TestConfigInitAndView(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	path := filepath.Join(dir, ".binal", "config.yaml")
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)

	t.Setenv("BINAL_BATCH_SIZE", "7")
	out, err = execute(t, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "(present)")

	var cfg config.GlobalConfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 7, cfg.Server.BatchSize)
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)

	out, err := execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid.")

	t.Setenv("BINAL_BATCH_SIZE", "0")
	_, err = execute(t, "config", "validate")
	assert.ErrorContains(t, err, "server.batch_size")
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".binal", "config.yaml")+"\n", out)

	_, err = os.Stat(filepath.Join(dir, ".binal"))
	assert.True(t, os.IsNotExist(err), "path does not create anything")
}
