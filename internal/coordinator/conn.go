package coordinator

import (
	"sync/atomic"

	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/object"
	"github.com/binal-re/binal/internal/wire"
)

// State is the lifecycle state of a connection.
type State string

const (
	StateAccepted    State = "accepted"
	StateInitialSync State = "initial-sync"
	StateSteady      State = "steady-state"
	StateClosed      State = "closed"
)

// conn is one accepted client. Every field except the counters is owned by the
// coordinator loop.
type conn struct {
	id        string
	transport wire.Transport
	state     State
	sub       native.Subscription

	// sent holds the digest of the last object pushed per name, so unchanged
	// content is not re-sent.
	sent map[string]uint64

	done chan struct{}

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
}

func newConn(id string, t wire.Transport) *conn {
	return &conn{
		id:        id,
		transport: t,
		state:     StateAccepted,
		sent:      make(map[string]uint64),
		done:      make(chan struct{}),
	}
}

// unsent filters objs down to the entries whose content differs from what was last
// sent on this connection. The digests are returned so they can be recorded once
// the send succeeds.
func (c *conn) unsent(objs *object.Objects) (*object.Objects, map[string]uint64) {
	out := object.NewObjects()
	digests := make(map[string]uint64, objs.Len())
	for _, o := range objs.Slice() {
		d, err := object.Digest(o)
		if err != nil {
			out.Add(o)
			continue
		}
		if prev, ok := c.sent[o.Name]; ok && prev == d {
			continue
		}
		out.Add(o)
		digests[o.Name] = d
	}
	return out, digests
}

// remember records objs as known to the peer on this connection.
func (c *conn) remember(objs *object.Objects) {
	for _, o := range objs.Slice() {
		if d, err := object.Digest(o); err == nil {
			c.sent[o.Name] = d
		}
	}
}
