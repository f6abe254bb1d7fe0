package overlay

import (
	"math/rand"

	"github.com/gossipmesh/gossipmesh"
)

// quorum is the number of seeds a node contacts, a strict majority of the
// seed list.  Contacting a majority guarantees any two nodes share at least
// one seed, so every node is discoverable through some common seed.
func quorum(n int) int {
	return n/2 + 1
}

// pickSeeds returns a random majority quorum of the seed list.
func pickSeeds(rng *rand.Rand, seeds []gossipmesh.Address) []gossipmesh.Address {
	q := quorum(len(seeds))
	picked := make([]gossipmesh.Address, 0, q)
	for _, i := range rng.Perm(len(seeds))[:q] {
		picked = append(picked, seeds[i])
	}
	return picked
}

// samplePeers returns up to sampleSize candidates chosen at random, never
// including self.
func samplePeers(rng *rand.Rand, candidates []gossipmesh.Address, self gossipmesh.Address, sampleSize int) []gossipmesh.Address {
	eligible := make([]gossipmesh.Address, 0, len(candidates))
	for _, addr := range candidates {
		if addr == self {
			continue
		}
		eligible = append(eligible, addr)
	}
	if sampleSize > len(eligible) {
		sampleSize = len(eligible)
	}
	sampled := make([]gossipmesh.Address, 0, sampleSize)
	for _, i := range rng.Perm(len(eligible))[:sampleSize] {
		sampled = append(sampled, eligible[i])
	}
	return sampled
}
