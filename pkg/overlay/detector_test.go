package overlay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/fixtures"
)

var errProbeRefused = errors.New("connection refused")

func testDetector(t *testing.T, probe LivenessProbe, onDead func(gossipmesh.Address)) *detector {
	return &detector{
		logger:   fixtures.NewTestLogger(t),
		probe:    probe,
		addr:     gossipmesh.Address{Host: "127.0.0.1", Port: 8001},
		interval: time.Second,
		timeout:  10 * time.Second,
		limit:    3,
		onDead:   onDead,
	}
}

func TestDetectorDeclaresDeadAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	clck := clock.NewMock(time.Unix(1, 0))
	ctx, cancel := context.WithCancel(clock.Context(context.Background(), clck))
	defer cancel()

	probed := make(chan struct{})
	probe := &fixtures.MockProbe{
		TB: t,
		FnProbe: func(ctx context.Context, addr gossipmesh.Address) error {
			probed <- struct{}{}
			return errProbeRefused
		},
	}
	dead := make(chan gossipmesh.Address, 1)
	det := testDetector(t, probe, func(addr gossipmesh.Address) {
		dead <- addr
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		det.run(ctx)
	}()

	stepCtx, stepCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stepCancel()
	fixtures.EnsureAttachedTimers(t, clck, 1)
	for i := 0; i < 3; i++ {
		fixtures.NextStep(stepCtx, clck)
		select {
		case <-probed:
		case <-stepCtx.Done():
			t.Fatalf("timed out waiting for probe %d", i+1)
		}
	}

	select {
	case addr := <-dead:
		require.Equal(t, det.addr, addr)
	case <-time.After(5 * time.Second):
		t.Fatal("peer was never declared dead")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("detector did not stop after declaring death")
	}
}

func TestDetectorResetsOnRecovery(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stopClock := fixtures.NewAdvancingClock(ctx)
	defer stopClock()

	// Two failures, a recovery, then three more failures.  Only the final
	// run of three is consecutive, so death comes on the sixth probe.
	var probes int64
	probe := &fixtures.MockProbe{
		TB: t,
		FnProbe: func(ctx context.Context, addr gossipmesh.Address) error {
			if atomic.AddInt64(&probes, 1) == 3 {
				return nil
			}
			return errProbeRefused
		},
	}
	dead := make(chan gossipmesh.Address, 1)
	det := testDetector(t, probe, func(addr gossipmesh.Address) {
		dead <- addr
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		det.run(ctx)
	}()

	select {
	case addr := <-dead:
		require.Equal(t, det.addr, addr)
	case <-time.After(5 * time.Second):
		t.Fatal("peer was never declared dead")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("detector did not stop after declaring death")
	}
	require.EqualValues(t, 6, atomic.LoadInt64(&probes))
}

func TestDetectorStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stopClock := fixtures.NewAdvancingClock(ctx)
	defer stopClock()

	var probes int64
	probe := &fixtures.MockProbe{
		TB: t,
		FnProbe: func(ctx context.Context, addr gossipmesh.Address) error {
			atomic.AddInt64(&probes, 1)
			return nil
		},
	}
	det := testDetector(t, probe, func(addr gossipmesh.Address) {
		assert.Fail(t, "a healthy peer must not be declared dead")
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		det.run(ctx)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&probes) >= 2
	}, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("detector did not stop on cancel")
	}
}
