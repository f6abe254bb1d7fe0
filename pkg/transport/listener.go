package transport

import (
	"net"

	"github.com/libp2p/go-reuseport"
)

// Listener accepts framed connections.
type Listener struct {
	ln net.Listener
}

// ListenerFactory is an indirection layer over Listen to allow for different implementations.
type ListenerFactory func() (*Listener, error)

// Listen opens a TCP listener on addr with address reuse, so a restarted
// node can rebind its fixed port without waiting out TIME_WAIT.
func Listen(addr string) (*Listener, error) {
	ln, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Accept waits for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// Addr returns the bound address.  Useful when listening on port zero.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close closes the listener, unblocking any pending Accept.
func (l *Listener) Close() error {
	return l.ln.Close()
}
