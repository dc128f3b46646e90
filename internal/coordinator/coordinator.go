// Package coordinator serves one native view to any number of sync clients.
//
// A single goroutine (Run) owns the connection table. Accept loops and per
// connection readers only translate blocking I/O into channel events, and native
// change notifications are appended to an unbounded queue, so the table is never
// touched from a foreign goroutine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/binal-re/binal/internal/constants"
	"github.com/binal-re/binal/internal/lift"
	"github.com/binal-re/binal/internal/lower"
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/object"
	"github.com/binal-re/binal/internal/wire"
)

// Config tunes a Coordinator.
type Config struct {
	// BatchSize bounds the number of objects per push frame.
	BatchSize int
	// InboundQueue is the capacity of the channel carrying frames from readers.
	InboundQueue int
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:    constants.DefaultBatchSize,
		InboundQueue: constants.DefaultInboundQueue,
	}
}

// queuedEvent is a native notification addressed to one connection.
type queuedEvent struct {
	target string
	event  native.Event
}

type inboundFrame struct {
	conn  *conn
	frame []byte
	err   error
}

// Coordinator relays changes between a native view and its clients.
type Coordinator struct {
	view      native.View
	cfg       Config
	logger    zerolog.Logger
	lifter    *lift.Lifter
	lowerer   *lower.Lowerer
	listeners []wire.Listener

	accepted chan wire.Transport
	inbound  chan inboundFrame
	events   *native.Queue[queuedEvent]

	// origin is the id of the connection whose batch is being lowered. Native
	// notifications raised meanwhile are not echoed back to it.
	origin atomic.Value

	mu    sync.RWMutex
	conns map[string]*conn

	wg sync.WaitGroup
}

// New creates a Coordinator serving view on listeners.
func New(view native.View, cfg Config, logger zerolog.Logger, listeners ...wire.Listener) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultBatchSize
	}
	if cfg.InboundQueue <= 0 {
		cfg.InboundQueue = constants.DefaultInboundQueue
	}

	c := &Coordinator{
		view:      view,
		cfg:       cfg,
		logger:    logger.With().Str("component", "coordinator").Logger(),
		lifter:    lift.New(view),
		lowerer:   lower.New(view, logger),
		listeners: listeners,
		accepted:  make(chan wire.Transport),
		inbound:   make(chan inboundFrame, cfg.InboundQueue),
		events:    native.NewQueue[queuedEvent](),
		conns:     make(map[string]*conn),
	}
	c.origin.Store("")
	return c
}

// Run serves clients until ctx is cancelled, then closes every listener and
// connection. It returns nil on cancellation.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.listeners) == 0 {
		return errors.New("coordinator has no listeners")
	}

	for _, ln := range c.listeners {
		c.wg.Add(1)
		go c.acceptLoop(ctx, ln)
		c.logger.Info().Str("addr", ln.Addr()).Msg("Listening for sync clients")
	}

	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case t := <-c.accepted:
			c.open(ctx, t)

		case in := <-c.inbound:
			c.handleInbound(in)

		case <-c.events.Ready():
			c.dispatchEvents()
		}
	}
}

func (c *Coordinator) acceptLoop(ctx context.Context, ln wire.Listener) {
	defer c.wg.Done()

	for {
		t, err := ln.Accept()
		if err != nil {
			if errors.Is(err, wire.ErrClosed) || ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Str("addr", ln.Addr()).Msg("Accept failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		select {
		case c.accepted <- t:
		case <-ctx.Done():
			_ = t.Close()
			return
		}
	}
}

// open registers a new connection, performs its initial sync and starts its
// reader.
func (c *Coordinator) open(ctx context.Context, t wire.Transport) {
	cn := newConn(uuid.NewString(), t)
	logger := c.connLogger(cn)

	c.mu.Lock()
	c.conns[cn.id] = cn
	c.mu.Unlock()

	logger.Info().Msg("Client connected")

	// Subscribe before enumerating so that nothing changed during the initial
	// sync is lost. Anything sent twice is caught by the digest check.
	cn.sub = c.view.Subscribe(native.ObserverFunc(func(ev native.Event) {
		if origin, _ := c.origin.Load().(string); origin == cn.id {
			return
		}
		c.events.Push(queuedEvent{target: cn.id, event: ev})
	}))

	c.setState(cn, StateInitialSync)
	if err := c.initialSync(cn); err != nil {
		logger.Warn().Err(err).Msg("Initial sync failed")
		c.teardown(cn)
		return
	}
	c.setState(cn, StateSteady)

	c.wg.Add(1)
	go c.readLoop(ctx, cn)
}

func (c *Coordinator) initialSync(cn *conn) error {
	all := c.lifter.All()
	if err := c.send(cn, all); err != nil {
		return err
	}
	c.connLogger(cn).Debug().Int("objects", all.Len()).Msg("Initial sync complete")
	return nil
}

func (c *Coordinator) readLoop(ctx context.Context, cn *conn) {
	defer c.wg.Done()

	for {
		frame, err := cn.transport.ReadFrame()
		select {
		case c.inbound <- inboundFrame{conn: cn, frame: frame, err: err}:
		case <-cn.done:
			return
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Coordinator) handleInbound(in inboundFrame) {
	cn := in.conn
	if cn.state == StateClosed {
		return
	}

	if in.err != nil {
		c.connLogger(cn).Info().Err(in.err).Msg("Client disconnected")
		c.teardown(cn)
		return
	}

	cn.framesIn.Add(1)
	if err := c.handleMessage(cn, in.frame); err != nil {
		c.connLogger(cn).Warn().Err(err).Msg("Dropping client after failed message")
		c.teardown(cn)
	}
}

// handleMessage applies one inbound frame. A returned error closes the
// connection; no failure here may affect other connections.
func (c *Coordinator) handleMessage(cn *conn, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling message: %v", r)
		}
	}()

	msg, err := wire.Decode(frame)
	if err != nil {
		return err
	}

	logger := c.connLogger(cn)

	switch msg.Kind {
	case wire.KindPush:
		cn.remember(msg.Objects)
		err = c.asOrigin(cn, func() error { return c.lowerer.Lower(msg.Objects) })
		if lower.IsUnresolved(err) {
			logger.Warn().Err(err).Int("objects", msg.Objects.Len()).Msg("Batch left unresolved entries")
			return nil
		}
		if err != nil {
			return fmt.Errorf("lower push: %w", err)
		}
		logger.Debug().Int("objects", msg.Objects.Len()).Msg("Applied push")

	case wire.KindDelete:
		delete(cn.sent, msg.Name)
		_ = c.asOrigin(cn, func() error {
			c.lowerer.Remove(msg.Name)
			return nil
		})
		logger.Debug().Str("name", msg.Name).Msg("Applied delete")

	default:
		logger.Debug().Str("kind", msg.Kind).Msg("Ignoring unknown message kind")
	}
	return nil
}

func (c *Coordinator) asOrigin(cn *conn, fn func() error) error {
	c.origin.Store(cn.id)
	defer c.origin.Store("")
	return fn()
}

// dispatchEvents forwards queued native notifications to their connections.
func (c *Coordinator) dispatchEvents() {
	for _, qe := range c.events.Drain() {
		c.mu.RLock()
		cn, ok := c.conns[qe.target]
		c.mu.RUnlock()
		if !ok || cn.state == StateClosed {
			continue
		}

		var err error
		if qe.event.Op == native.OpRemoved {
			delete(cn.sent, qe.event.Name)
			err = c.write(cn, wire.Delete(qe.event.Name))
		} else {
			err = c.send(cn, c.lifter.Event(qe.event))
		}

		if err != nil {
			c.connLogger(cn).Warn().Err(err).Msg("Dropping client after failed send")
			c.teardown(cn)
		}
	}
}

// send pushes the unsent part of objs in batches.
func (c *Coordinator) send(cn *conn, objs *object.Objects) error {
	pending, digests := cn.unsent(objs)
	for _, batch := range object.Batch(pending, c.cfg.BatchSize) {
		if err := c.write(cn, wire.Push(batch)); err != nil {
			return err
		}
		for _, name := range batch.Names() {
			if d, ok := digests[name]; ok {
				cn.sent[name] = d
			}
		}
	}
	return nil
}

func (c *Coordinator) write(cn *conn, m wire.Message) error {
	if err := wire.Send(cn.transport, m); err != nil {
		return err
	}
	cn.framesOut.Add(1)
	return nil
}

// teardown closes cn and forgets it. It is safe to call more than once.
func (c *Coordinator) teardown(cn *conn) {
	if cn.state == StateClosed {
		return
	}
	c.setState(cn, StateClosed)

	if cn.sub != nil {
		cn.sub.Unsubscribe()
	}
	close(cn.done)
	if err := cn.transport.Close(); err != nil {
		c.connLogger(cn).Debug().Err(err).Msg("Close transport")
	}

	c.mu.Lock()
	delete(c.conns, cn.id)
	c.mu.Unlock()
}

func (c *Coordinator) shutdown() {
	for _, ln := range c.listeners {
		if err := ln.Close(); err != nil {
			c.logger.Debug().Err(err).Str("addr", ln.Addr()).Msg("Close listener")
		}
	}

	c.mu.RLock()
	live := make([]*conn, 0, len(c.conns))
	for _, cn := range c.conns {
		live = append(live, cn)
	}
	c.mu.RUnlock()

	for _, cn := range live {
		c.teardown(cn)
	}

	c.wg.Wait()
	c.logger.Info().Int("closed", len(live)).Msg("Coordinator stopped")
}

func (c *Coordinator) setState(cn *conn, s State) {
	c.mu.Lock()
	cn.state = s
	c.mu.Unlock()
}

func (c *Coordinator) connLogger(cn *conn) *zerolog.Logger {
	l := c.logger.With().
		Str("conn_id", cn.id).
		Str("remote", cn.transport.RemoteAddr()).
		Logger()
	return &l
}

// ConnStats describes one live connection.
type ConnStats struct {
	ID        string
	Remote    string
	State     State
	FramesIn  uint64
	FramesOut uint64
}

// Stats is a point-in-time snapshot of the coordinator.
type Stats struct {
	Active int
	Conns  []ConnStats
}

// Stats returns a snapshot of the live connections ordered by id.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Active: len(c.conns)}
	for _, cn := range c.conns {
		s.Conns = append(s.Conns, ConnStats{
			ID:        cn.id,
			Remote:    cn.transport.RemoteAddr(),
			State:     cn.state,
			FramesIn:  cn.framesIn.Load(),
			FramesOut: cn.framesOut.Load(),
		})
	}
	sort.Slice(s.Conns, func(i, j int) bool { return s.Conns[i].ID < s.Conns[j].ID })
	return s
}
