package project

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binal-re/binal/internal/object"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "binal", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("log-level", "", "")
	root.AddCommand(NewProjectCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func writeObjects(t *testing.T, path string, objs *object.Objects) {
	t.Helper()
	data, err := json.Marshal(objs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestProjectImportListExport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)
	db := filepath.Join(dir, "p.duckdb")

	input := filepath.Join(dir, "objects.json")
	writeObjects(t, input, object.NewObjects(
		object.NewType("int32_t", 4, 4, object.Int{Signed: true}),
		object.NewFunction("main", 0x1000, "int32_t"),
		object.NewGlobal("g_count", 0x2000, "int32_t"),
	))

	out, err := execute(t, "", "project", "import", input, "-p", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 objects")

	out, err = execute(t, "", "project", "ls", "-p", db)
	require.NoError(t, err)
	for _, want := range []string{"NAME", "DIGEST", "int32_t", "main", "g_count"} {
		assert.Contains(t, out, want)
	}

	out, err = execute(t, "", "project", "ls", "-p", db, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "3 objects in "+db)

	out, err = execute(t, "", "project", "ls", "-p", db, "--kind", "function", "-o", "json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "main", rows[0]["name"])
	assert.Equal(t, "function", rows[0]["kind"])

	exported := filepath.Join(dir, "export.json")
	_, err = execute(t, "", "project", "export", "-p", db, "-f", exported)
	require.NoError(t, err)

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	objs := object.NewObjects()
	require.NoError(t, json.Unmarshal(data, objs))
	assert.Equal(t, []string{"int32_t", "main", "g_count"}, objs.Names())
}

func TestProjectImportReplaceFromStdin(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)
	db := filepath.Join(dir, "p.duckdb")

	input := filepath.Join(dir, "objects.json")
	writeObjects(t, input, object.NewObjects(
		object.NewType("bool", 1, 1, object.Bool{}),
		object.NewGlobal("flag", 0x10, "bool"),
	))
	_, err := execute(t, "", "project", "import", input, "-p", db)
	require.NoError(t, err)

	data, err := json.Marshal(object.NewObjects(object.NewType("bool", 1, 1, object.Bool{})))
	require.NoError(t, err)
	_, err = execute(t, string(data), "project", "import", "-", "--replace", "-p", db)
	require.NoError(t, err)

	out, err := execute(t, "", "project", "ls", "-p", db, "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "bool,type")
	assert.NotContains(t, out, "flag")
}

func TestProjectImportRejectsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)
	db := filepath.Join(dir, "p.duckdb")

	_, err := execute(t, `["not", "a", "map"]`, "project", "import", "-", "-p", db)
	assert.Error(t, err)

	_, err = execute(t, `{"odd":{"kind":"type","size":3,"alignment":3,"info":{"kind":"int"}}}`, "project", "import", "-", "-p", db)
	assert.ErrorIs(t, err, object.ErrInvalidObject)

	_, err = os.Stat(db)
	assert.True(t, os.IsNotExist(err), "nothing is written for rejected input")
}

func TestProjectListErrors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)

	_, err := execute(t, "", "project", "ls", "-p", filepath.Join(dir, "missing.duckdb"))
	assert.Error(t, err)

	_, err = execute(t, "", "project", "ls", "--kind", "macro")
	assert.ErrorContains(t, err, "unknown kind")

	_, err = execute(t, "", "project", "ls", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestProjectListEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BINAL_CONFIG", dir)
	db := filepath.Join(dir, "p.duckdb")

	_, err := execute(t, "{}", "project", "import", "-", "-p", db)
	require.NoError(t, err)

	out, err := execute(t, "", "project", "ls", "-p", db)
	require.NoError(t, err)
	assert.Equal(t, "No objects stored.\n", out)

	out, err = execute(t, "", "project", "ls", "-p", db, "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "NAME,KIND,DIGEST,UPDATED\n", out)
}
