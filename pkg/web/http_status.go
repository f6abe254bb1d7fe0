package web

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/pkg/overlay"
	"github.com/gossipmesh/gossipmesh/pkg/registry"
)

// PeerLister reports the overlay links a node currently holds.
type PeerLister interface {
	Self() gossipmesh.Address
	Peers() []gossipmesh.Address
	BootstrappedAt() time.Time
}

// RegistryViewer reports the membership a registry currently holds.
type RegistryViewer interface {
	Entries() []registry.Entry
}

// GossipViewer reports the messages a node has seen, oldest first.
type GossipViewer interface {
	GossipLog() []overlay.GossipEntry
}

type statusHandler struct {
	logger   logrus.FieldLogger
	peers    PeerLister
	registry RegistryViewer
	gossip   GossipViewer
}

func respondJSON(resp http.ResponseWriter, body interface{}) {
	resp.Header().Set("content-type", "application/json")
	enc := jsoniter.NewEncoder(resp)
	_ = enc.Encode(body)
}

func (sh *statusHandler) peersHandler(resp http.ResponseWriter, req *http.Request) {
	peers := sh.peers.Peers()
	if peers == nil {
		// Force it to render as an array, not null
		peers = []gossipmesh.Address{}
	}
	respondJSON(resp, map[string]interface{}{
		"self":            sh.peers.Self(),
		"peers":           peers,
		"bootstrapped_at": sh.peers.BootstrappedAt(),
	})
}

func (sh *statusHandler) registryHandler(resp http.ResponseWriter, req *http.Request) {
	entries := sh.registry.Entries()
	if entries == nil {
		entries = []registry.Entry{}
	}
	respondJSON(resp, map[string]interface{}{
		"nodes": entries,
	})
}

func (sh *statusHandler) gossipHandler(resp http.ResponseWriter, req *http.Request) {
	entries := sh.gossip.GossipLog()
	if entries == nil {
		entries = []overlay.GossipEntry{}
	}
	respondJSON(resp, map[string]interface{}{
		"messages": entries,
	})
}
