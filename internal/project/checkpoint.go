package project

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/poller"
)

// Checkpointer saves a view to its project whenever the view has changed since
// the last save. It is driven by a poller.BasePoller.
type Checkpointer struct {
	store  *Store
	view   native.View
	logger zerolog.Logger

	dirty atomic.Bool
	sub   native.Subscription
}

var _ poller.Poller = (*Checkpointer)(nil)

// NewCheckpointer starts tracking changes to view.
func NewCheckpointer(store *Store, view native.View, logger zerolog.Logger) *Checkpointer {
	c := &Checkpointer{store: store, view: view, logger: logger}
	c.sub = view.Subscribe(native.ObserverFunc(func(native.Event) {
		c.dirty.Store(true)
	}))
	return c
}

// Dirty reports whether the view changed since the last save.
func (c *Checkpointer) Dirty() bool {
	return c.dirty.Load()
}

// PollOnce saves the view if it changed.
func (c *Checkpointer) PollOnce(ctx context.Context) error {
	if !c.dirty.Swap(false) {
		return nil
	}
	n, err := c.store.SaveView(ctx, c.view)
	if err != nil {
		c.dirty.Store(true)
		return err
	}
	c.logger.Info().Int("objects", n).Str("path", c.store.Path()).Msg("Project saved")
	return nil
}

// RunCleanup flushes the database write-ahead log.
func (c *Checkpointer) RunCleanup(ctx context.Context) error {
	return c.store.Checkpoint(ctx)
}

// Flush saves unconditionally and stops tracking changes. Call it on shutdown.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.sub.Unsubscribe()
	c.dirty.Store(true)
	if err := c.PollOnce(ctx); err != nil {
		return err
	}
	return c.store.Checkpoint(ctx)
}
