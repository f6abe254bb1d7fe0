package overlay

import (
	"sync"
	"time"

	"github.com/gossipmesh/gossipmesh"
)

// GossipEntry is a message the node has seen, and when it first saw it.
type GossipEntry struct {
	Message    gossipmesh.Message `json:"message"`
	ReceivedAt time.Time          `json:"received_at"`
}

// gossipLog remembers recently seen messages for deduplication.  Capacity is
// fixed, the oldest entry is evicted when a new one needs the slot.
type gossipLog struct {
	mu      sync.Mutex
	ring    []gossipmesh.MessageID
	next    int
	entries map[gossipmesh.MessageID]*GossipEntry
}

func newGossipLog(capacity int) *gossipLog {
	return &gossipLog{
		ring:    make([]gossipmesh.MessageID, capacity),
		entries: make(map[gossipmesh.MessageID]*GossipEntry, capacity),
	}
}

// record stores msg if it hasn't been seen, reporting whether it was new.
// A duplicate folds its provenance into the stored entry, keeping the record
// of which senders delivered the message.
func (gl *gossipLog) record(msg gossipmesh.Message, at time.Time) bool {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	if entry, ok := gl.entries[msg.ID]; ok {
		entry.Message.Provenance = append(entry.Message.Provenance, msg.Provenance...)
		return false
	}
	if evict := gl.ring[gl.next]; evict != "" {
		delete(gl.entries, evict)
	}
	gl.ring[gl.next] = msg.ID
	gl.next = (gl.next + 1) % len(gl.ring)
	gl.entries[msg.ID] = &GossipEntry{Message: msg, ReceivedAt: at}
	return true
}

// snapshot returns the remembered messages, oldest first.
func (gl *gossipLog) snapshot() []GossipEntry {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	out := make([]GossipEntry, 0, len(gl.entries))
	for i := 0; i < len(gl.ring); i++ {
		id := gl.ring[(gl.next+i)%len(gl.ring)]
		if id == "" {
			continue
		}
		entry, ok := gl.entries[id]
		if !ok {
			continue
		}
		// Copy provenance, the entry keeps growing as duplicates arrive.
		e := *entry
		e.Message.Provenance = append([]string(nil), entry.Message.Provenance...)
		out = append(out, e)
	}
	return out
}

func (gl *gossipLog) size() int {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	return len(gl.entries)
}
