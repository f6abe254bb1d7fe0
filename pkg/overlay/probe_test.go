package overlay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gossipmesh/gossipmesh"
)

func TestNewProbe(t *testing.T) {
	t.Parallel()
	tests := map[string]LivenessProbe{
		"dial": DialProbe{},
		"ping": PingProbe{},
	}
	for name, expected := range tests {
		name := name
		expected := expected
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			probe, err := NewProbe(name)
			require.NoError(t, err)
			require.Equal(t, expected, probe)
		})
	}
}

func TestNewProbeUnknown(t *testing.T) {
	t.Parallel()
	_, err := NewProbe("carrier-pigeon")
	require.Error(t, err)
}

func TestDialProbe(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr, err := gossipmesh.ParseAddress(ln.Addr().String())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probe := DialProbe{}
	require.NoError(t, probe.Probe(ctx, addr))

	require.NoError(t, ln.Close())
	require.Error(t, probe.Probe(ctx, addr))
}
