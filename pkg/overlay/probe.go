package overlay

import (
	"context"
	"fmt"
	"net"
	"os/exec"

	"github.com/gossipmesh/gossipmesh"
)

const (
	probeDial = "dial"
	probePing = "ping"
)

// LivenessProbe checks whether a peer is still alive.  Implementations must
// honor the context deadline.
type LivenessProbe interface {
	Probe(ctx context.Context, addr gossipmesh.Address) error
}

// DialProbe checks liveness by opening and closing a TCP connection to the
// peer's listen address.  A reachable listener is proof the process is up.
type DialProbe struct{}

func (DialProbe) Probe(ctx context.Context, addr gossipmesh.Address) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return err
	}
	return conn.Close()
}

// PingProbe checks liveness with a single ICMP echo via the system ping
// binary, so the process doesn't need raw socket privileges.  It only proves
// the host is up, not the peer process.
type PingProbe struct{}

func (PingProbe) Probe(ctx context.Context, addr gossipmesh.Address) error {
	return exec.CommandContext(ctx, "ping", "-c", "1", addr.Host).Run()
}

// NewProbe returns the LivenessProbe known by the given name.
func NewProbe(name string) (LivenessProbe, error) {
	switch name {
	case probeDial:
		return DialProbe{}, nil
	case probePing:
		return PingProbe{}, nil
	default:
		return nil, fmt.Errorf("probe (%s) not one of %s or %s", name, probeDial, probePing)
	}
}
