package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// LineConn frames messages as newline terminated lines over a stream connection.
// Empty lines are skipped.
type LineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	opts    Options

	writeMu sync.Mutex
}

var _ Transport = (*LineConn)(nil)

// NewLineConn wraps conn.
func NewLineConn(conn net.Conn, opts Options) *LineConn {
	opts = opts.withDefaults()

	scanner := bufio.NewScanner(conn)
	initial := 64 * 1024
	if initial > opts.MaxFrameBytes {
		initial = opts.MaxFrameBytes
	}
	// The scanner counts the delimiter against the buffer.
	scanner.Buffer(make([]byte, 0, initial), opts.MaxFrameBytes+1)

	return &LineConn{conn: conn, scanner: scanner, opts: opts}
}

// ReadFrame returns the next non-empty line without its terminator.
func (c *LineConn) ReadFrame() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimRight(c.scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}

	err := c.scanner.Err()
	switch {
	case err == nil:
		return nil, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return nil, fmt.Errorf("%w: limit %d bytes", ErrFrameTooLarge, c.opts.MaxFrameBytes)
	default:
		return nil, err
	}
}

// WriteFrame writes frame followed by a newline. frame must not contain a newline.
func (c *LineConn) WriteFrame(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return fmt.Errorf("frame contains a newline")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}
	}

	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *LineConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *LineConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
