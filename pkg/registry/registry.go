package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/gossipmesh/gossipmesh"
)

// Entry is a registered node.
type Entry struct {
	Addr         gossipmesh.Address `json:"addr"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// Registry is the membership table of a seed.  Registration is idempotent and
// keeps the earliest registration time.  Removal carries no tombstone, a node
// that was reported dead may register again as a new incarnation.
type Registry struct {
	mu      sync.Mutex
	entries map[gossipmesh.Address]time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: map[gossipmesh.Address]time.Time{},
	}
}

// Register adds addr, reporting whether it was new.
func (r *Registry) Register(addr gossipmesh.Address, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[addr]; ok {
		return false
	}
	r.entries[addr] = at
	return true
}

// RemoveDead removes addr, reporting whether it was present.
func (r *Registry) RemoveDead(addr gossipmesh.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[addr]; !ok {
		return false
	}
	delete(r.entries, addr)
	return true
}

// Snapshot returns the registered addresses, sorted.
func (r *Registry) Snapshot() []gossipmesh.Address {
	r.mu.Lock()
	addrs := make([]gossipmesh.Address, 0, len(r.entries))
	for addr := range r.entries {
		addrs = append(addrs, addr)
	}
	r.mu.Unlock()
	gossipmesh.SortAddresses(addrs)
	return addrs
}

// Entries returns the registered nodes with their registration times, sorted
// by address.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.entries))
	for addr, at := range r.entries {
		entries = append(entries, Entry{Addr: addr, RegisteredAt: at})
	}
	r.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Addr.Host != entries[j].Addr.Host {
			return entries[i].Addr.Host < entries[j].Addr.Host
		}
		return entries[i].Addr.Port < entries[j].Addr.Port
	})
	return entries
}

// Size returns the number of registered nodes.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
