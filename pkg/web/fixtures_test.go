package web_test

import (
	"context"
	"time"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/pkg/overlay"
	"github.com/gossipmesh/gossipmesh/pkg/registry"
)

// staticStatus serves canned mesh state to the status endpoints.
type staticStatus struct {
	self         gossipmesh.Address
	peers        []gossipmesh.Address
	bootstrapped time.Time
	entries      []registry.Entry
	log          []overlay.GossipEntry
}

func (ss *staticStatus) Self() gossipmesh.Address {
	return ss.self
}

func (ss *staticStatus) Peers() []gossipmesh.Address {
	return ss.peers
}

func (ss *staticStatus) BootstrappedAt() time.Time {
	return ss.bootstrapped
}

func (ss *staticStatus) Entries() []registry.Entry {
	return ss.entries
}

func (ss *staticStatus) GossipLog() []overlay.GossipEntry {
	return ss.log
}

func testContext() (context.Context, func()) {
	ctxTest, completeTest := context.WithTimeout(context.Background(), 1100*time.Millisecond)
	go func() {
		after := time.NewTimer(1 * time.Second)
		select {
		case <-ctxTest.Done():
			after.Stop()
		case <-after.C:
			panic("test timed out")
		}
	}()
	return ctxTest, completeTest
}
