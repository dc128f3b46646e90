package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type tcpListener struct {
	ln   net.Listener
	opts Options
}

// ListenTCP listens on addr for newline framed connections.
func ListenTCP(addr string, opts Options) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &tcpListener{ln: ln, opts: opts}, nil
}

func (l *tcpListener) Accept() (Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return NewLineConn(conn, l.opts), nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

// DialTCP connects to a newline framed endpoint.
func DialTCP(ctx context.Context, addr string, opts Options) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewLineConn(conn, opts), nil
}
