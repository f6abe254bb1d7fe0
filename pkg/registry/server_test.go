package registry

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/fixtures"
	"github.com/gossipmesh/gossipmesh/pkg/transport"
)

func startServer(t *testing.T, maxConns int) (gossipmesh.Address, *Server) {
	ln, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	addr, err := gossipmesh.ParseAddress(ln.Addr().String())
	require.NoError(t, err)

	srv, err := NewServer(fixtures.NewTestLogger(t), addr.String(), maxConns, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunWithCustomListener(ctx, func() (*transport.Listener, error) {
			return ln, nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return addr, srv
}

func dial(t *testing.T, addr gossipmesh.Address) *transport.Conn {
	d := transport.NewDialer(fixtures.NewTestLogger(t), time.Second, func() backoff.BackOff {
		return &backoff.StopBackOff{}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func TestServerSendsSnapshotOnConnect(t *testing.T) {
	t.Parallel()
	addr, srv := startServer(t, 0)
	require.True(t, srv.Registry().Register(gossipmesh.Address{Host: "127.0.0.1", Port: 9001}, time.Unix(1, 0)))

	conn := dial(t, addr)
	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "PEERS:127.0.0.1:9001", frame)
}

func TestServerSendsEmptySnapshot(t *testing.T) {
	t.Parallel()
	addr, _ := startServer(t, 0)

	conn := dial(t, addr)
	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "PEERS:", frame)
}

func TestServerRegistersStore(t *testing.T) {
	t.Parallel()
	addr, srv := startServer(t, 0)

	conn := dial(t, addr)
	_, err := conn.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9001"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Repeated announcements are a no-op.
	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9001"))
	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9002"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []gossipmesh.Address{
		{Host: "127.0.0.1", Port: 9001},
		{Host: "127.0.0.1", Port: 9002},
	}, srv.Registry().Snapshot())
}

func TestServerRemovesDeadNode(t *testing.T) {
	t.Parallel()
	addr, srv := startServer(t, 0)

	conn := dial(t, addr)
	_, err := conn.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9001"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteFrame("Dead Node:127.0.0.1:9001:2024-03-05 17:28:19:127.0.0.1"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// A later incarnation may come back.
	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9001"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerKeepsConnOnMalformedFrame(t *testing.T) {
	t.Parallel()
	addr, srv := startServer(t, 0)

	conn := dial(t, addr)
	_, err := conn.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, conn.WriteFrame("garbage without any separator"))
	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:bogus"))
	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9001"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerIgnoresGossip(t *testing.T) {
	t.Parallel()
	addr, srv := startServer(t, 0)

	conn := dial(t, addr)
	_, err := conn.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, conn.WriteFrame("some:gossip payload"))
	require.NoError(t, conn.WriteFrame("STORE-127.0.0.1:9001"))
	require.Eventually(t, func() bool {
		return srv.Registry().Size() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []gossipmesh.Address{{Host: "127.0.0.1", Port: 9001}}, srv.Registry().Snapshot())
}

func TestServerMaxConns(t *testing.T) {
	t.Parallel()
	addr, _ := startServer(t, 1)

	a := dial(t, addr)
	_, err := a.ReadFrame()
	require.NoError(t, err)

	b := dial(t, addr)
	got := make(chan error, 1)
	go func() {
		_, err := b.ReadFrame()
		got <- err
	}()

	// b is accepted by the kernel but must not be served while a holds the
	// only slot.
	select {
	case err := <-got:
		t.Fatalf("second connection served before slot freed: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, a.Close())
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second connection never served after slot freed")
	}
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()
	logger := fixtures.NewTestLogger(t)

	_, err := NewServer(logger, "", 0, 0)
	require.Error(t, err)
	_, err = NewServer(logger, "127.0.0.1:6000", -1, 0)
	require.Error(t, err)
	_, err = NewServer(logger, "127.0.0.1:6000", 0, -1)
	require.Error(t, err)
}
