// Package ready reports listener readiness to whoever arranged the start.
// An orchestrator that must sequence components (a test harness bringing up
// seeds before nodes) attaches a WaitGroup to the context it starts them
// with; each component signals once it is accepting traffic. Components
// started without one signal into the void, which is the normal daemon case.
package ready

import (
	"context"
	"sync"
)

type ctxKey struct{}

// WithWaitGroup returns a context carrying wg. The caller must have already
// done the Add for every component it intends to wait on.
func WithWaitGroup(ctx context.Context, wg *sync.WaitGroup) context.Context {
	return context.WithValue(ctx, ctxKey{}, wg)
}

// SignalReady marks one component ready. Call it exactly once, after the
// listener is bound but before blocking in the serve loop. A no-op when ctx
// carries no WaitGroup.
func SignalReady(ctx context.Context) {
	if wg, ok := ctx.Value(ctxKey{}).(*sync.WaitGroup); ok {
		wg.Done()
	}
}
