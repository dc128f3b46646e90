package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger creates a test logger. Output is discarded unless BINAL_TEST_LOG
// is set, in which case it goes to t.Log().
func NewTestLogger(t testing.TB) zerolog.Logger {
	if os.Getenv("BINAL_TEST_LOG") != "" {
		return NewTestLoggerWithOutput(t)
	}
	return zerolog.New(io.Discard)
}

// NewTestLoggerWithOutput creates a debug-level test logger that logs to t.Log().
func NewTestLoggerWithOutput(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: &testLogWriter{t: t}, NoColor: true}).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
}

// testLogWriter wraps testing.TB to implement io.Writer.
type testLogWriter struct {
	t testing.TB
}

func (w *testLogWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
