// Package peer implements the dialing side of a sync session.
//
// A Peer connects to a coordinator, lowers everything the coordinator pushes into
// its own view, and pushes its own view's changes back. It is the counterpart of
// coordinator.Coordinator for a decompiler instance that does not host the server.
package peer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/binal-re/binal/internal/constants"
	"github.com/binal-re/binal/internal/lift"
	"github.com/binal-re/binal/internal/lower"
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/object"
	"github.com/binal-re/binal/internal/retry"
	"github.com/binal-re/binal/internal/wire"
)

// Config tunes a Peer.
type Config struct {
	// Endpoint is host:port, tcp://host:port or ws://host:port/path.
	Endpoint string
	// BatchSize bounds the number of objects per push frame.
	BatchSize int
	// SyncOnConnect pushes the whole local view right after connecting.
	SyncOnConnect bool
	Retry         retry.Config
	Transport     wire.Options
}

// DefaultConfig returns the default peer settings for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:  endpoint,
		BatchSize: constants.DefaultBatchSize,
		Retry: retry.Config{
			MaxRetries:     constants.DefaultMaxRetries,
			InitialBackoff: constants.DefaultInitialBackoff,
			MaxBackoff:     constants.DefaultMaxBackoff,
			Jitter:         0.1,
		},
		Transport: wire.DefaultOptions(),
	}
}

type inbound struct {
	frame []byte
	err   error
}

// Peer is one connected client session.
type Peer struct {
	view      native.View
	cfg       Config
	logger    zerolog.Logger
	transport wire.Transport
	lifter    *lift.Lifter
	lowerer   *lower.Lowerer

	// applying is set while an inbound message is lowered; native notifications
	// raised meanwhile are the peer's own doing and are not sent back.
	applying atomic.Bool
	queue    *native.Queue[native.Event]
	sub      native.Subscription
	sent     map[string]uint64
}

// Dial connects to cfg.Endpoint, retrying with backoff until it answers.
func Dial(ctx context.Context, view native.View, cfg Config, logger zerolog.Logger) (*Peer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultBatchSize
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultConfig(cfg.Endpoint).Retry
	}

	logger = logger.With().Str("component", "peer").Str("endpoint", cfg.Endpoint).Logger()

	var transport wire.Transport
	err := retry.Do(ctx, cfg.Retry, func() error {
		t, err := dialEndpoint(ctx, cfg.Endpoint, cfg.Transport)
		if err != nil {
			logger.Debug().Err(err).Msg("Dial failed")
			return err
		}
		transport = t
		return nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Endpoint, err)
	}

	logger.Info().Msg("Connected to sync server")
	return New(view, transport, cfg, logger), nil
}

// New wraps an already connected transport. Local changes are tracked from this
// point on and forwarded once Run starts.
func New(view native.View, transport wire.Transport, cfg Config, logger zerolog.Logger) *Peer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultBatchSize
	}
	p := &Peer{
		view:      view,
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		lifter:    lift.New(view),
		lowerer:   lower.New(view, logger),
		queue:     native.NewQueue[native.Event](),
		sent:      make(map[string]uint64),
	}
	p.sub = view.Subscribe(native.ObserverFunc(func(ev native.Event) {
		if p.applying.Load() {
			return
		}
		p.queue.Push(ev)
	}))
	return p
}

func dialEndpoint(ctx context.Context, endpoint string, opts wire.Options) (wire.Transport, error) {
	if !strings.Contains(endpoint, "://") {
		return wire.DialTCP(ctx, endpoint, opts)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse endpoint: %w", err))
	}
	switch u.Scheme {
	case "tcp":
		return wire.DialTCP(ctx, u.Host, opts)
	case "ws", "wss":
		return wire.DialWebSocket(ctx, endpoint, opts)
	default:
		return nil, retry.Permanent(fmt.Errorf("unsupported endpoint scheme %q", u.Scheme))
	}
}

// Run exchanges changes until ctx is cancelled or the connection drops. It
// returns nil on cancellation and the transport error otherwise. The transport is
// closed on return.
//
// Run may be called once.
func (p *Peer) Run(ctx context.Context) error {
	defer p.sub.Unsubscribe()

	frames := make(chan inbound, constants.DefaultInboundQueue)
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			frame, err := p.transport.ReadFrame()
			select {
			case frames <- inbound{frame: frame, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer func() {
		close(stop)
		if err := p.transport.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Close transport")
		}
		<-readerDone
	}()

	if p.cfg.SyncOnConnect {
		if err := p.send(p.lifter.All()); err != nil {
			return fmt.Errorf("initial push: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case in := <-frames:
			if in.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("connection lost: %w", in.err)
			}
			if err := p.handleFrame(in.frame); err != nil {
				return err
			}

		case <-p.queue.Ready():
			for _, ev := range p.queue.Drain() {
				if err := p.forward(ev); err != nil {
					return err
				}
			}
		}
	}
}

func (p *Peer) handleFrame(frame []byte) error {
	msg, err := wire.Decode(frame)
	if err != nil {
		return err
	}

	switch msg.Kind {
	case wire.KindPush:
		p.remember(msg.Objects)
		p.applying.Store(true)
		err := p.lowerer.Lower(msg.Objects)
		p.applying.Store(false)
		if lower.IsUnresolved(err) {
			p.logger.Warn().Err(err).Msg("Push left unresolved entries")
			return nil
		}
		if err != nil {
			return fmt.Errorf("lower push: %w", err)
		}
		p.logger.Debug().Int("objects", msg.Objects.Len()).Msg("Applied push")

	case wire.KindDelete:
		delete(p.sent, msg.Name)
		p.applying.Store(true)
		p.lowerer.Remove(msg.Name)
		p.applying.Store(false)
		p.logger.Debug().Str("name", msg.Name).Msg("Applied delete")

	default:
		p.logger.Debug().Str("kind", msg.Kind).Msg("Ignoring unknown message kind")
	}
	return nil
}

func (p *Peer) forward(ev native.Event) error {
	if ev.Op == native.OpRemoved {
		delete(p.sent, ev.Name)
		return wire.Send(p.transport, wire.Delete(ev.Name))
	}
	return p.send(p.lifter.Event(ev))
}

// send pushes the part of objs whose content the server has not seen yet.
func (p *Peer) send(objs *object.Objects) error {
	pending := objs.Filter(func(o object.Object) bool {
		d, err := object.Digest(o)
		if err != nil {
			return true
		}
		prev, ok := p.sent[o.Name]
		return !ok || prev != d
	})

	for _, batch := range object.Batch(pending, p.cfg.BatchSize) {
		if err := wire.Send(p.transport, wire.Push(batch)); err != nil {
			return err
		}
		p.remember(batch)
	}
	return nil
}

func (p *Peer) remember(objs *object.Objects) {
	for _, o := range objs.Slice() {
		if d, err := object.Digest(o); err == nil {
			p.sent[o.Name] = d
		}
	}
}

// Push sends objs as-is, bypassing change tracking.
func (p *Peer) Push(objs *object.Objects) error {
	for _, batch := range object.Batch(objs, p.cfg.BatchSize) {
		if err := wire.Send(p.transport, wire.Push(batch)); err != nil {
			return err
		}
	}
	return nil
}

// Delete asks the server to remove name.
func (p *Peer) Delete(name string) error {
	return wire.Send(p.transport, wire.Delete(name))
}

// Close drops the connection and stops tracking local changes. Run returns once
// it notices.
func (p *Peer) Close() error {
	p.sub.Unsubscribe()
	return p.transport.Close()
}
