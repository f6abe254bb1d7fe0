package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gossipmesh/gossipmesh"
)

func TestGossipLogRecordsNewMessages(t *testing.T) {
	t.Parallel()
	gl := newGossipLog(4)

	msg := gossipmesh.ReceivedMessage("payload one", "127.0.0.1:8001")
	require.True(t, gl.record(msg, time.Unix(10, 0)))
	require.False(t, gl.record(msg, time.Unix(11, 0)))
	require.Equal(t, 1, gl.size())

	other := gossipmesh.ReceivedMessage("payload two", "127.0.0.1:8001")
	require.True(t, gl.record(other, time.Unix(12, 0)))
	require.Equal(t, 2, gl.size())
}

func TestGossipLogFoldsProvenance(t *testing.T) {
	t.Parallel()
	gl := newGossipLog(4)

	require.True(t, gl.record(gossipmesh.ReceivedMessage("payload", "127.0.0.1:8001"), time.Unix(10, 0)))
	require.False(t, gl.record(gossipmesh.ReceivedMessage("payload", "127.0.0.1:8002"), time.Unix(11, 0)))

	entries := gl.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, []string{"127.0.0.1:8001", "127.0.0.1:8002"}, entries[0].Message.Provenance)
	require.Equal(t, time.Unix(10, 0), entries[0].ReceivedAt)
}

func TestGossipLogEvictsOldest(t *testing.T) {
	t.Parallel()
	gl := newGossipLog(2)

	first := gossipmesh.ReceivedMessage("first", "127.0.0.1:8001")
	second := gossipmesh.ReceivedMessage("second", "127.0.0.1:8001")
	third := gossipmesh.ReceivedMessage("third", "127.0.0.1:8001")
	require.True(t, gl.record(first, time.Unix(10, 0)))
	require.True(t, gl.record(second, time.Unix(11, 0)))
	require.True(t, gl.record(third, time.Unix(12, 0)))
	require.Equal(t, 2, gl.size())

	entries := gl.snapshot()
	require.Len(t, entries, 2)
	require.Equal(t, "second", entries[0].Message.Payload)
	require.Equal(t, "third", entries[1].Message.Payload)

	// The evicted message counts as new again.
	require.True(t, gl.record(first, time.Unix(13, 0)))
}

func TestGossipLogSnapshotOldestFirst(t *testing.T) {
	t.Parallel()
	gl := newGossipLog(8)

	require.True(t, gl.record(gossipmesh.ReceivedMessage("a", "s"), time.Unix(10, 0)))
	require.True(t, gl.record(gossipmesh.ReceivedMessage("b", "s"), time.Unix(11, 0)))
	require.True(t, gl.record(gossipmesh.ReceivedMessage("c", "s"), time.Unix(12, 0)))

	entries := gl.snapshot()
	require.Len(t, entries, 3)
	require.Equal(t, "a", entries[0].Message.Payload)
	require.Equal(t, "b", entries[1].Message.Payload)
	require.Equal(t, "c", entries[2].Message.Payload)
}

func TestGossipLogSnapshotIsIsolated(t *testing.T) {
	t.Parallel()
	gl := newGossipLog(4)
	require.True(t, gl.record(gossipmesh.ReceivedMessage("payload", "127.0.0.1:8001"), time.Unix(10, 0)))

	before := gl.snapshot()
	require.False(t, gl.record(gossipmesh.ReceivedMessage("payload", "127.0.0.1:8002"), time.Unix(11, 0)))

	require.Equal(t, []string{"127.0.0.1:8001"}, before[0].Message.Provenance)
	after := gl.snapshot()
	require.Equal(t, []string{"127.0.0.1:8001", "127.0.0.1:8002"}, after[0].Message.Provenance)
}
