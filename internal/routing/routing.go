// Package routing resolves a (table, key) pair to the endpoints a
// coordinator must talk to, composing the Partitioner, ReplicationStrategy,
// and TokenMetadata layers and filtering by FailureDetector liveness.
//
// See coordinator/internal/service/routing_service.go's
// GetReplicas — generalized from a composite tenant:key hash ring lookup
// to the Partitioner → Strategy → TokenMetadata pipeline, and from a
// metadata-store liveness filter to FailureDetector.isAlive.
package routing

import (
	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
)

// Router resolves keys to endpoints for the read and write coordinators.
type Router struct {
	partitioner partition.Partitioner
	strategy    replication.Strategy
	tm          *ring.TokenMetadata
	detector    failuredetector.FailureDetector
}

// New constructs a Router over the given partitioner, placement strategy,
// ring, and failure detector.
func New(p partition.Partitioner, strategy replication.Strategy, tm *ring.TokenMetadata, fd failuredetector.FailureDetector) *Router {
	return &Router{partitioner: p, strategy: strategy, tm: tm, detector: fd}
}

// Plan is the resolved endpoint set for one key: natural replicas in
// placement order, plus any pending endpoints receiving streamed data
// for a range that currently contains the key.
type Plan struct {
	Token       partition.Token
	Natural     []ring.Endpoint
	Pending     []ring.Endpoint
	AliveAll    []ring.Endpoint // Natural ∪ Pending, alive only, de-duplicated, natural-first
	DeadCount   int
	TotalTarget int // len(Natural) + len(Pending), the denominator for blockFor
}

// Resolve computes the Plan for table/key.
func (r *Router) Resolve(table ring.Table, key []byte) (Plan, error) {
	token := r.partitioner.GetToken(key)

	natural, err := r.strategy.GetNaturalEndpoints(token, table)
	if err != nil {
		return Plan{}, err
	}

	pending := r.pendingEndpointsFor(table, token)

	total := len(natural) + len(pending)
	alive := make([]ring.Endpoint, 0, total)
	dead := 0

	seen := make(map[ring.Endpoint]bool, total)
	for _, ep := range natural {
		seen[ep] = true
		if r.detector.IsAlive(ep) {
			alive = append(alive, ep)
		} else {
			dead++
		}
	}
	for _, ep := range pending {
		if seen[ep] {
			continue
		}
		seen[ep] = true
		if r.detector.IsAlive(ep) {
			alive = append(alive, ep)
		} else {
			dead++
		}
	}

	return Plan{
		Token:       token,
		Natural:     natural,
		Pending:     pending,
		AliveAll:    alive,
		DeadCount:   dead,
		TotalTarget: total,
	}, nil
}

func (r *Router) pendingEndpointsFor(table ring.Table, token partition.Token) []ring.Endpoint {
	return r.tm.PendingEndpointsForToken(table, token, r.partitioner.GetMinimumToken())
}
