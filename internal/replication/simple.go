package replication

import (
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/ring"
)

// Simple is the default, rack-unaware strategy: natural endpoints are the
// RF distinct owners walking clockwise from the first token >= the key
// token, following the ring-walk pattern in
// ConsistentHasher.GetNodes.
type Simple struct {
	tm    *ring.TokenMetadata
	rfs   *replicationFactors
	cache *endpointCache
}

// NewSimple constructs the default strategy over tm with the given
// per-table replication factors.
func NewSimple(tm *ring.TokenMetadata, rfs map[ring.Table]int) *Simple {
	return &Simple{
		tm:    tm,
		rfs:   newReplicationFactors(rfs),
		cache: newEndpointCache(),
	}
}

func (s *Simple) ReplicationFactor(table ring.Table) int { return s.rfs.Get(table) }

func (s *Simple) SetReplicationFactor(table ring.Table, rf int) { s.rfs.Set(table, rf) }

func (s *Simple) GetNaturalEndpoints(token partition.Token, table ring.Table) ([]ring.Endpoint, error) {
	if eps, ok := s.cache.get(token); ok {
		return eps, nil
	}
	eps, err := s.CalculateNaturalEndpoints(token, s.tm, table)
	if err != nil {
		return nil, err
	}
	s.cache.put(token, eps)
	return eps, nil
}

func (s *Simple) CalculateNaturalEndpoints(token partition.Token, tm *ring.TokenMetadata, table ring.Table) ([]ring.Endpoint, error) {
	rf := s.rfs.Get(table)
	sorted := tm.SortedTokens()
	if len(sorted) == 0 {
		return nil, nil
	}

	start, ok := ring.FirstToken(sorted, token)
	if !ok {
		return nil, nil
	}
	startIdx := indexOfToken(sorted, start)

	var eps []ring.Endpoint
	for i := 0; i < len(sorted) && len(eps) < rf; i++ {
		tok := sorted[(startIdx+i)%len(sorted)]
		ep, ok := tm.EndpointFor(tok)
		if !ok {
			continue
		}
		if containsEndpoint(eps, ep) {
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

func (s *Simple) GetAddressRanges(table ring.Table) (map[ring.Endpoint][]partition.Range, error) {
	sorted := s.tm.SortedTokens()
	owned := ownedRanges(sorted)
	out := make(map[ring.Endpoint][]partition.Range)
	for _, tok := range sorted {
		eps, err := s.GetNaturalEndpoints(tok, table)
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

func (s *Simple) GetRangeAddresses(table ring.Table) (map[partition.Range][]ring.Endpoint, error) {
	sorted := s.tm.SortedTokens()
	owned := ownedRanges(sorted)
	out := make(map[partition.Range][]ring.Endpoint)
	for _, tok := range sorted {
		eps, err := s.GetNaturalEndpoints(tok, table)
		if err != nil {
			return nil, err
		}
		out[owned[tok]] = eps
	}
	return out, nil
}

func (s *Simple) ClearEndpointCache() { s.cache.clear() }

func indexOfToken(sorted []partition.Token, t partition.Token) int {
	for i, v := range sorted {
		if v == t {
			return i
		}
	}
	return 0
}

func containsEndpoint(eps []ring.Endpoint, ep ring.Endpoint) bool {
	for _, e := range eps {
		if e == ep {
			return true
		}
	}
	return false
}
