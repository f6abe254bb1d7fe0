package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossipmesh/gossipmesh"
)

var (
	nodeA = gossipmesh.Address{Host: "127.0.0.1", Port: 8000}
	nodeB = gossipmesh.Address{Host: "127.0.0.1", Port: 8001}
	nodeC = gossipmesh.Address{Host: "10.0.0.1", Port: 8000}
)

func TestRegisterIdempotent(t *testing.T) {
	t.Parallel()
	r := New()

	first := time.Unix(100, 0)
	require.True(t, r.Register(nodeA, first))
	require.False(t, r.Register(nodeA, time.Unix(200, 0)))
	require.Equal(t, 1, r.Size())

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, first, entries[0].RegisteredAt)
}

func TestRemoveDead(t *testing.T) {
	t.Parallel()
	r := New()

	require.False(t, r.RemoveDead(nodeA))
	require.True(t, r.Register(nodeA, time.Unix(100, 0)))
	require.True(t, r.RemoveDead(nodeA))
	require.False(t, r.RemoveDead(nodeA))
	require.Equal(t, 0, r.Size())
}

func TestReregisterAfterDead(t *testing.T) {
	t.Parallel()
	r := New()

	require.True(t, r.Register(nodeA, time.Unix(100, 0)))
	require.True(t, r.RemoveDead(nodeA))
	require.True(t, r.Register(nodeA, time.Unix(200, 0)))

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Unix(200, 0), entries[0].RegisteredAt)
}

func TestSnapshotSorted(t *testing.T) {
	t.Parallel()
	r := New()

	now := time.Unix(100, 0)
	require.True(t, r.Register(nodeB, now))
	require.True(t, r.Register(nodeC, now))
	require.True(t, r.Register(nodeA, now))

	assert.Equal(t, []gossipmesh.Address{nodeC, nodeA, nodeB}, r.Snapshot())
}

func TestEntriesSorted(t *testing.T) {
	t.Parallel()
	r := New()

	require.True(t, r.Register(nodeB, time.Unix(2, 0)))
	require.True(t, r.Register(nodeA, time.Unix(1, 0)))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, nodeA, entries[0].Addr)
	assert.Equal(t, nodeB, entries[1].Addr)
}
