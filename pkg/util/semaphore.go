package util

import (
	"context"
)

// Semaphore caps how many holders a resource has at once.
type Semaphore interface {
	// Acquire takes a slot, reporting false if the context was done first.
	Acquire(ctx context.Context) bool
	// Release returns a slot taken by a previous successful Acquire.
	Release()
}

// NewSemaphore creates a Semaphore with count slots.  A count of zero means
// no cap at all.
func NewSemaphore(count int) Semaphore {
	if count == 0 {
		return unlimited{}
	}
	return make(semaphore, count)
}

type semaphore chan struct{}

func (s semaphore) Acquire(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case s <- struct{}{}:
		return true
	}
}

func (s semaphore) Release() {
	<-s
}

type unlimited struct{}

func (unlimited) Acquire(ctx context.Context) bool { return true }
func (unlimited) Release()                         {}
