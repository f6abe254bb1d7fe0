package fixtures

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tilinna/clock"
)

// NewAdvancingClock attaches a mock clock to the context and spins it
// forward as fast as timers are armed, so tests run in virtual time rather
// than wall time. The returned stop func halts the advancing; cancelling the
// context does too.
func NewAdvancingClock(ctx context.Context) (context.Context, func()) {
	clck := clock.NewMock(time.Unix(1, 0))
	stop := make(chan struct{})
	go func() {
		for ctx.Err() == nil {
			select {
			case <-stop:
				return
			default:
				if _, d := clck.AddNext(); d == 0 {
					time.Sleep(1) // Lets the runtime actually idle, runtime.Gosched() does not.
				}
			}
		}
	}()
	var once sync.Once
	return clock.Context(ctx, clck), func() {
		once.Do(func() { close(stop) })
	}
}

// NextStep advances clck to its next armed timer, spinning in wall time
// until the code under test has actually armed one or ctx expires. Code in
// other goroutines arms its timers with no happens-before edge to the test,
// so the first attempts may find nothing to fire.
func NextStep(ctx context.Context, clck *clock.Mock) {
	for ctx.Err() == nil {
		if _, d := clck.AddNext(); d != 0 {
			return
		}
		time.Sleep(1) // Lets the runtime actually idle, runtime.Gosched() does not.
	}
}

// EnsureAttachedTimers waits in wall time until at least n timers are
// attached to clck, failing the test if they don't show up. Useful before
// the first NextStep when the goroutines under test arm several timers at
// startup.
func EnsureAttachedTimers(tb testing.TB, clck *clock.Mock, n int) {
	deadline := time.Now().Add(5 * time.Second)
	for clck.Len() < n {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %d attached timers, have %d", n, clck.Len())
			return
		}
		time.Sleep(time.Millisecond)
	}
}
