package wire

import (
	"errors"
	"time"

	"github.com/binal-re/binal/internal/constants"
)

var (
	// ErrFrameTooLarge is returned when an inbound frame exceeds Options.MaxFrameBytes.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrClosed is returned by Accept after the listener has been closed.
	ErrClosed = errors.New("listener closed")
)

// Transport moves whole frames over one connection.
//
// ReadFrame is called from a single goroutine. WriteFrame may be called
// concurrently with ReadFrame but not with itself unless the implementation says
// otherwise. Both implementations in this package serialize writes internally.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

// Listener yields inbound transports.
type Listener interface {
	Accept() (Transport, error)
	Close() error
	Addr() string
}

// Options tunes a transport.
type Options struct {
	// MaxFrameBytes bounds a single inbound frame. Zero means the default.
	MaxFrameBytes int
	// WriteTimeout bounds a single frame write. Zero disables the deadline.
	WriteTimeout time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		MaxFrameBytes: constants.DefaultMaxFrameBytes,
		WriteTimeout:  constants.DefaultWriteTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = constants.DefaultMaxFrameBytes
	}
	return o
}

// Send encodes m and writes it as one frame.
func Send(t Transport, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	return t.WriteFrame(frame)
}
