package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gossipmesh/gossipmesh"
)

// MaxFrameSize bounds a single inbound frame.  A peer that sends more than
// this without a newline is not speaking the protocol.
const MaxFrameSize = 64 * 1024

var (
	// ErrFrameTooLong is returned by ReadFrame when a peer exceeds MaxFrameSize.
	ErrFrameTooLong = errors.New("frame exceeds maximum size")
	// ErrEmbeddedNewline is returned by WriteFrame for payloads that would split
	// into multiple frames on the wire.
	ErrEmbeddedNewline = errors.New("frame contains a newline")
)

// Conn is a newline framed connection.  Reads must come from a single
// goroutine, writes are serialized internally and may come from any.
type Conn struct {
	conn    net.Conn
	scanner *bufio.Scanner

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu          sync.Mutex
	declared    gossipmesh.Address
	hasDeclared bool
}

// NewConn wraps a net.Conn with newline framing.
func NewConn(nc net.Conn) *Conn {
	sc := bufio.NewScanner(nc)
	sc.Buffer(make([]byte, 0, 4096), MaxFrameSize)
	return &Conn{
		conn:    nc,
		scanner: sc,
	}
}

// ReadFrame returns the next frame without its newline terminator.  It blocks
// until a frame arrives, the peer closes, or Close is called.  A clean close
// by the peer is reported as io.EOF.
func (c *Conn) ReadFrame() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return "", ErrFrameTooLong
			}
			return "", err
		}
		return "", io.EOF
	}
	return c.scanner.Text(), nil
}

// WriteFrame writes a single frame with its newline terminator.  Safe for
// concurrent use.
func (c *Conn) WriteFrame(frame string) error {
	if strings.IndexByte(frame, '\n') >= 0 {
		return ErrEmbeddedNewline
	}
	buf := make([]byte, len(frame)+1)
	copy(buf, frame)
	buf[len(frame)] = '\n'
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(buf)
	return err
}

// SetDeclared records the listen address the peer announced on this
// connection.  The remote endpoint of an inbound connection carries an
// ephemeral port, so the announced address is the only usable identity.
func (c *Conn) SetDeclared(addr gossipmesh.Address) {
	c.mu.Lock()
	c.declared = addr
	c.hasDeclared = true
	c.mu.Unlock()
}

// Declared returns the listen address the peer announced, if it has.
func (c *Conn) Declared() (gossipmesh.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.declared, c.hasDeclared
}

// RemoteEndpoint returns the remote address of the underlying connection.
func (c *Conn) RemoteEndpoint() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the underlying connection, unblocking any pending ReadFrame.
// It is safe to call multiple times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
