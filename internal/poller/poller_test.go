package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPoller struct {
	mu           sync.Mutex
	pollCount    int
	cleanupCount int
	pollErr      error
}

func (m *mockPoller) PollOnce(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCount++
	return m.pollErr
}

func (m *mockPoller) RunCleanup(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCount++
	return nil
}

func (m *mockPoller) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCount, m.cleanupCount
}

func TestBasePoller_StartStop(t *testing.T) {
	mock := &mockPoller{}
	base := NewBasePoller(context.Background(), Config{
		Name:         "test_poller",
		PollInterval: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	assert.False(t, base.IsRunning())
	require.NoError(t, base.Start(mock))
	assert.True(t, base.IsRunning())
	require.NoError(t, base.Start(mock))

	assert.Eventually(t, func() bool {
		polls, _ := mock.counts()
		return polls >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, base.Stop())
	assert.False(t, base.IsRunning())
	require.NoError(t, base.Stop())
}

func TestBasePoller_CleanupRuns(t *testing.T) {
	mock := &mockPoller{}
	base := NewBasePoller(context.Background(), Config{
		Name:            "test_poller",
		PollInterval:    10 * time.Millisecond,
		CleanupInterval: 15 * time.Millisecond,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, base.Start(mock))
	defer base.Stop()

	assert.Eventually(t, func() bool {
		_, cleanups := mock.counts()
		return cleanups >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestBasePoller_ErrorsDoNotStopPolling(t *testing.T) {
	mock := &mockPoller{pollErr: errors.New("disk full")}
	base := NewBasePoller(context.Background(), Config{PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, base.Start(mock))
	defer base.Stop()

	assert.Eventually(t, func() bool {
		polls, _ := mock.counts()
		return polls >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestBasePoller_ParentContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockPoller{}
	base := NewBasePoller(ctx, Config{PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, base.Start(mock))

	cancel()
	time.Sleep(20 * time.Millisecond)
	before, _ := mock.counts()
	time.Sleep(30 * time.Millisecond)
	after, _ := mock.counts()
	assert.Equal(t, before, after)

	require.NoError(t, base.Stop())
}

func TestBasePoller_DefaultCleanupInterval(t *testing.T) {
	base := NewBasePoller(context.Background(), Config{PollInterval: time.Second, Logger: zerolog.Nop()})
	assert.Equal(t, defaultCleanupInterval, base.cleanupInterval)
}
