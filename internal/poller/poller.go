// Package poller runs periodic background work, such as saving a project, on a
// fixed interval with a slower cleanup pass alongside.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Poller is the work a BasePoller drives.
type Poller interface {
	// PollOnce performs a single cycle.
	PollOnce(ctx context.Context) error

	// RunCleanup performs the slower maintenance pass.
	RunCleanup(ctx context.Context) error
}

// Config contains configuration for a poller.
type Config struct {
	// Name is the poller name for logging (e.g., "project_checkpoint").
	Name string

	// PollInterval is how often PollOnce runs.
	PollInterval time.Duration

	// CleanupInterval is how often RunCleanup runs (default: 5 minutes).
	CleanupInterval time.Duration

	Logger zerolog.Logger
}

const defaultCleanupInterval = 5 * time.Minute

// BasePoller manages the poll loop, the cleanup loop and their lifecycle.
type BasePoller struct {
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
	pollInterval    time.Duration
	cleanupInterval time.Duration
	logger          zerolog.Logger
}

// NewBasePoller creates a new base poller. Cancelling parentCtx stops it.
func NewBasePoller(parentCtx context.Context, config Config) *BasePoller {
	ctx, cancel := context.WithCancel(parentCtx)

	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = defaultCleanupInterval
	}

	return &BasePoller{
		ctx:             ctx,
		cancel:          cancel,
		pollInterval:    config.PollInterval,
		cleanupInterval: cleanupInterval,
		logger:          config.Logger.With().Str("poller", config.Name).Logger(),
	}
}

// Start runs PollOnce immediately and then on every tick. Starting a running
// poller is a no-op.
func (b *BasePoller) Start(poller Poller) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	b.logger.Debug().
		Dur("poll_interval", b.pollInterval).
		Dur("cleanup_interval", b.cleanupInterval).
		Msg("Starting poller")

	b.wg.Add(2)
	go b.pollLoop(poller)
	go b.cleanupLoop(poller)

	b.running = true
	return nil
}

// Stop stops both loops and waits for them to return.
func (b *BasePoller) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}

	b.logger.Debug().Msg("Stopping poller")

	b.cancel()
	b.wg.Wait()

	b.running = false
	return nil
}

// IsRunning returns whether the poller is currently running.
func (b *BasePoller) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *BasePoller) pollLoop(poller Poller) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	if err := poller.PollOnce(b.ctx); err != nil {
		b.logger.Error().Err(err).Msg("Initial poll failed")
	}

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if err := poller.PollOnce(b.ctx); err != nil {
				b.logger.Error().Err(err).Msg("Poll failed")
			}
		}
	}
}

func (b *BasePoller) cleanupLoop(poller Poller) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if err := poller.RunCleanup(b.ctx); err != nil {
				b.logger.Error().Err(err).Msg("Cleanup failed")
			}
		}
	}
}
