package testutil

import (
	"errors"
	"io"
	"sync"

	"github.com/binal-re/binal/internal/wire"
)

// ErrInjected is returned by a MockTransport configured to fail writes.
var ErrInjected = errors.New("injected failure")

// MockTransport is an in-memory wire.Transport. Frames queued with Feed are
// returned by ReadFrame in order; written frames are recorded.
type MockTransport struct {
	mu        sync.Mutex
	written   [][]byte
	failWrite bool
	closed    bool

	inbox chan []byte
	done  chan struct{}
	once  sync.Once
}

var _ wire.Transport = (*MockTransport)(nil)

// NewMockTransport creates an open transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		inbox: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
}

// Feed queues frame for the reader.
func (m *MockTransport) Feed(frame []byte) {
	m.inbox <- frame
}

// FailWrites makes every following WriteFrame fail with ErrInjected.
func (m *MockTransport) FailWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = true
}

// Written returns a copy of every frame written so far.
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTransport) ReadFrame() ([]byte, error) {
	select {
	case frame := <-m.inbox:
		return frame, nil
	case <-m.done:
		return nil, io.EOF
	}
}

func (m *MockTransport) WriteFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	if m.failWrite {
		return ErrInjected
	}
	m.written = append(m.written, append([]byte(nil), frame...))
	return nil
}

func (m *MockTransport) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
	return nil
}

func (m *MockTransport) RemoteAddr() string {
	return "mock"
}

// MockListener hands out transports passed to Offer.
type MockListener struct {
	conns chan wire.Transport
	done  chan struct{}
	once  sync.Once
}

var _ wire.Listener = (*MockListener)(nil)

// NewMockListener creates an open listener.
func NewMockListener() *MockListener {
	return &MockListener{conns: make(chan wire.Transport), done: make(chan struct{})}
}

// Offer blocks until t is accepted or the listener is closed.
func (l *MockListener) Offer(t wire.Transport) bool {
	select {
	case l.conns <- t:
		return true
	case <-l.done:
		return false
	}
}

func (l *MockListener) Accept() (wire.Transport, error) {
	select {
	case t := <-l.conns:
		return t, nil
	case <-l.done:
		return nil, wire.ErrClosed
	}
}

func (l *MockListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *MockListener) Addr() string {
	return "mock"
}
