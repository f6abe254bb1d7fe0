package util

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemaphoreUnlimitedWhenZero(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(0)
	for i := 0; i < 10; i++ {
		require.True(t, s.Acquire(context.Background()))
	}
	for i := 0; i < 10; i++ {
		s.Release()
	}
}

func TestSemaphoreCapsConcurrency(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(5)
	var held, peak int64
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			s.Acquire(context.Background())
			h := atomic.AddInt64(&held, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if h <= p || atomic.CompareAndSwapInt64(&peak, p, h) {
					break
				}
			}
			atomic.AddInt64(&held, -1)
			s.Release()
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(5))
	require.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestSemaphoreAcquireHonorsContext(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(1)
	done, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, s.Acquire(context.Background()))
	require.False(t, s.Acquire(done))
	s.Release()
}
