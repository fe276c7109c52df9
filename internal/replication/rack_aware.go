package replication

import (
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/ringerr"
	"github.com/ringdb/ringdb/internal/snitch"
)

// RackAwareOdklEven requires the number of distinct racks to equal
// RF(table); it places one replica per rack by walking the ring and,
// between replicas, jumping to the domain-shuffled token and restricting
// the search to the sub-ring of any rack not yet used. Per.
type RackAwareOdklEven struct {
	tm     *ring.TokenMetadata
	snitch snitch.Snitch
	rfs    *replicationFactors
	cache  *endpointCache
}

// NewRackAwareOdklEven constructs the rack-aware strategy.
func NewRackAwareOdklEven(tm *ring.TokenMetadata, sn snitch.Snitch, rfs map[ring.Table]int) *RackAwareOdklEven {
	return &RackAwareOdklEven{
		tm:     tm,
		snitch: sn,
		rfs:    newReplicationFactors(rfs),
		cache:  newEndpointCache(),
	}
}

func (r *RackAwareOdklEven) ReplicationFactor(table ring.Table) int { return r.rfs.Get(table) }

func (r *RackAwareOdklEven) SetReplicationFactor(table ring.Table, rf int) { r.rfs.Set(table, rf) }

func (r *RackAwareOdklEven) GetNaturalEndpoints(token partition.Token, table ring.Table) ([]ring.Endpoint, error) {
	if eps, ok := r.cache.get(token); ok {
		return eps, nil
	}
	eps, err := r.CalculateNaturalEndpoints(token, r.tm, table)
	if err != nil {
		return nil, err
	}
	r.cache.put(token, eps)
	return eps, nil
}

func (r *RackAwareOdklEven) CalculateNaturalEndpoints(token partition.Token, tm *ring.TokenMetadata, table ring.Table) ([]ring.Endpoint, error) {
	rf := r.rfs.Get(table)
	sorted := tm.SortedTokens()
	if len(sorted) == 0 {
		return nil, nil
	}

	distinctRacks := r.distinctRacks(sorted, tm)
	if len(distinctRacks) != rf {
		return nil, ringerr.Configuration(
			"rack-aware strategy requires distinct racks (%d) to equal replication factor (%d) for table %q",
			len(distinctRacks), rf, table)
	}

	remainingRacks := make(map[string]bool, len(distinctRacks))
	for _, rk := range distinctRacks {
		remainingRacks[rk] = true
	}

	var replicas []ring.Endpoint
	candidateRing := sorted
	searchToken := token

	for len(replicas) < rf {
		tok, ok := pickFirstAtOrAfter(candidateRing, searchToken)
		if !ok {
			break
		}
		ep, ok := tm.EndpointFor(tok)
		if !ok {
			break
		}
		replicas = append(replicas, ep)

		rack := r.snitch.GetRack(ep)
		delete(remainingRacks, rack)

		if len(replicas) >= rf {
			break
		}

		next, ok := partition.NextDomainToken(searchToken)
		if ok {
			searchToken = next
		}

		candidateRing = subRingForAnyRemainingRack(sorted, tm, r.snitch, remainingRacks)
		if len(candidateRing) == 0 {
			break
		}
	}

	return replicas, nil
}

// distinctRacks reports every distinct rack currently represented among
// normal endpoints on the ring.
func (r *RackAwareOdklEven) distinctRacks(sorted []partition.Token, tm *ring.TokenMetadata) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range sorted {
		ep, ok := tm.EndpointFor(tok)
		if !ok {
			continue
		}
		rack := r.snitch.GetRack(ep)
		if !seen[rack] {
			seen[rack] = true
			out = append(out, rack)
		}
	}
	return out
}

// pickFirstAtOrAfter chooses the first token in sorted (which is itself
// globally sorted) that is >= from, wrapping to sorted[0]. Tie-break on
// same rack is this natural token order.
func pickFirstAtOrAfter(sorted []partition.Token, from partition.Token) (partition.Token, bool) {
	return ring.FirstToken(sorted, from)
}

// subRingForAnyRemainingRack restricts the token vector to the sub-ring
// of any rack still present in remainingRacks.5 step 3.
func subRingForAnyRemainingRack(sorted []partition.Token, tm *ring.TokenMetadata, sn snitch.Snitch, remainingRacks map[string]bool) []partition.Token {
	var out []partition.Token
	for _, tok := range sorted {
		ep, ok := tm.EndpointFor(tok)
		if !ok {
			continue
		}
		if remainingRacks[sn.GetRack(ep)] {
			out = append(out, tok)
		}
	}
	return out
}

func (r *RackAwareOdklEven) GetAddressRanges(table ring.Table) (map[ring.Endpoint][]partition.Range, error) {
	sorted := r.tm.SortedTokens()
	owned := ownedRanges(sorted)
	out := make(map[ring.Endpoint][]partition.Range)
	for _, tok := range sorted {
		eps, err := r.GetNaturalEndpoints(tok, table)
		if err != nil {
			return nil, err
		}
		rng := owned[tok]
		for _, ep := range eps {
			out[ep] = append(out[ep], rng)
		}
	}
	return out, nil
}

func (r *RackAwareOdklEven) GetRangeAddresses(table ring.Table) (map[partition.Range][]ring.Endpoint, error) {
	sorted := r.tm.SortedTokens()
	owned := ownedRanges(sorted)
	out := make(map[partition.Range][]ring.Endpoint)
	for _, tok := range sorted {
		eps, err := r.GetNaturalEndpoints(tok, table)
		if err != nil {
			return nil, err
		}
		out[owned[tok]] = eps
	}
	return out, nil
}

func (r *RackAwareOdklEven) ClearEndpointCache() { r.cache.clear() }

// FailoverIndex implements a deterministic secondary-pick formula for
// per-request failover when the primary replica is down or
// latency-excluded: index = (cycle + tryCount + sh(sh(partition))) mod
// (n-1), using the same Shuffle permutation as natural-endpoint placement.
func FailoverIndex(cycle, tryCount int, partitionDomain byte, n int) int {
	if n <= 1 {
		return 0
	}
	shuffled := partition.Shuffle(partition.Shuffle(partitionDomain))
	idx := (cycle + tryCount + int(shuffled)) % (n - 1)
	if idx < 0 {
		idx += n - 1
	}
	return idx
}
