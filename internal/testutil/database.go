package testutil

import (
	"path/filepath"
	"testing"

	"github.com/binal-re/binal/internal/project"
)

// NewTestProject creates a project database in a temporary directory.
// The database is automatically closed when the test completes.
func NewTestProject(t testing.TB) *project.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.duckdb")

	store, err := project.Open(path, NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test project: %v", err)
		}
	})

	return store
}
