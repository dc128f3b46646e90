package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const closeGracePeriod = time.Second

// WSConn carries one frame per WebSocket text message.
type WSConn struct {
	ws   *websocket.Conn
	opts Options

	writeMu sync.Mutex
}

var _ Transport = (*WSConn)(nil)

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(ws *websocket.Conn, opts Options) *WSConn {
	opts = opts.withDefaults()
	ws.SetReadLimit(int64(opts.MaxFrameBytes))
	return &WSConn{ws: ws, opts: opts}
}

// ReadFrame returns the payload of the next data message.
func (c *WSConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, fmt.Errorf("%w: limit %d bytes", ErrFrameTooLarge, c.opts.MaxFrameBytes)
			}
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			return data, nil
		}
	}
}

// WriteFrame sends frame as one text message.
func (c *WSConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a close message and closes the connection.
func (c *WSConn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// RemoteAddr returns the peer address.
func (c *WSConn) RemoteAddr() string {
	if addr := c.ws.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

type wsListener struct {
	ln       net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	opts     Options
	logger   zerolog.Logger

	accepted  chan Transport
	done      chan struct{}
	closeOnce sync.Once
}

// ListenWebSocket serves a WebSocket upgrade endpoint at path on addr. Every
// upgraded connection is handed out by Accept.
func ListenWebSocket(addr, path string, opts Options, logger zerolog.Logger) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	l := &wsListener{
		ln:   ln,
		opts: opts,
		upgrader: websocket.Upgrader{
			// Sync peers are local tools, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:   logger,
		accepted: make(chan Transport),
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error().Err(err).Str("addr", addr).Msg("WebSocket server stopped")
		}
	}()

	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	t := NewWSConn(ws, l.opts)
	select {
	case l.accepted <- t:
	case <-l.done:
		_ = t.Close()
	}
}

func (l *wsListener) Accept() (Transport, error) {
	select {
	case t := <-l.accepted:
		return t, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}

// DialWebSocket connects to a WebSocket endpoint such as ws://127.0.0.1:12008/sync.
func DialWebSocket(ctx context.Context, url string, opts Options) (Transport, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSConn(ws, opts), nil
}
