// Package testutil provides testing utilities for binal.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context that expires after 30 seconds and is
// cancelled when the test completes.
func NewTestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
