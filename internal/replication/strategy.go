// Package replication computes the ordered natural-endpoint list for a
// token, including the rack-aware variant that uses per-rack sub-rings.
//
// See coordinator/internal/algorithm/consistent_hash.go
// (ring-as-sorted-slice + wraparound search via sort.Search, endpoint
// memoization under a mutex) generalized from virtual-node uint64 hashing
// to ordered-token, rack-diverse placement.
package replication

import (
	"sync"

	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/ring"
)

// Strategy is the sealed set of replication-strategy variants,
// expressed as a single interface rather than an inheritance hierarchy.
type Strategy interface {
	// GetNaturalEndpoints returns the ordered, deduplicated list of
	// length RF(table) for token.
	GetNaturalEndpoints(token partition.Token, table ring.Table) ([]ring.Endpoint, error)

	// CalculateNaturalEndpoints is the pure function form used by the
	// ring controller, operating over an explicit TokenMetadata instead
	// of the strategy's own (possibly cached) view.
	CalculateNaturalEndpoints(token partition.Token, tm *ring.TokenMetadata, table ring.Table) ([]ring.Endpoint, error)

	// GetAddressRanges returns, for each endpoint, the ranges it is a
	// natural replica for.
	GetAddressRanges(table ring.Table) (map[ring.Endpoint][]partition.Range, error)

	// GetRangeAddresses returns, for each range, its natural replica
	// endpoints.
	GetRangeAddresses(table ring.Table) (map[partition.Range][]ring.Endpoint, error)

	// ClearEndpointCache invalidates any memoized token->replicas table;
	// must be called whenever the underlying TokenMetadata changes.
	ClearEndpointCache()

	// ReplicationFactor returns RF(table).
	ReplicationFactor(table ring.Table) int
}

// replicationFactors maps table -> RF, shared by both strategy variants.
type replicationFactors struct {
	mu  sync.RWMutex
	rfs map[ring.Table]int
}

func newReplicationFactors(rfs map[ring.Table]int) *replicationFactors {
	cp := make(map[ring.Table]int, len(rfs))
	for k, v := range rfs {
		cp[k] = v
	}
	return &replicationFactors{rfs: cp}
}

func (r *replicationFactors) Get(table ring.Table) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rf, ok := r.rfs[table]; ok {
		return rf
	}
	return 1
}

func (r *replicationFactors) Set(table ring.Table, rf int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rfs[table] = rf
}

// endpointCache memoizes token -> ordered replica list, cleared on every
// ring mutation via ClearEndpointCache.
type endpointCache struct {
	mu    sync.RWMutex
	byTok map[partition.Token][]ring.Endpoint
}

func newEndpointCache() *endpointCache {
	return &endpointCache{byTok: make(map[partition.Token][]ring.Endpoint)}
}

func (c *endpointCache) get(t partition.Token) ([]ring.Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	eps, ok := c.byTok[t]
	return eps, ok
}

func (c *endpointCache) put(t partition.Token, eps []ring.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTok[t] = eps
}

func (c *endpointCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTok = make(map[partition.Token][]ring.Endpoint)
}

// ownedRanges derives, from a sorted-token vector, the range each token
// owns: (predecessor, token].
func ownedRanges(sorted []partition.Token) map[partition.Token]partition.Range {
	out := make(map[partition.Token]partition.Range, len(sorted))
	n := len(sorted)
	for i, t := range sorted {
		var left partition.Token
		if n == 1 {
			left = t
		} else if i == 0 {
			left = sorted[n-1]
		} else {
			left = sorted[i-1]
		}
		out[t] = partition.Range{Left: left, Right: t}
	}
	return out
}

func dedupe(eps []ring.Endpoint) []ring.Endpoint {
	seen := make(map[ring.Endpoint]bool, len(eps))
	out := make([]ring.Endpoint, 0, len(eps))
	for _, ep := range eps {
		if seen[ep] {
			continue
		}
		seen[ep] = true
		out = append(out, ep)
	}
	return out
}
