// Package membership implements the ring state machine: it reacts to
// gossip state-change messages, drives TokenMetadata transitions, and
// recomputes pending ranges whenever the bootstrapping or leaving sets
// change.
//
// See coordinator/internal/model's NodeState lifecycle and
// storage-node/internal/service/gossip_service.go's join/leave
// handling, generalized from a fixed join/leave pair of events to the
// full BOOT/NORMAL/LEAVING/LEFT/hibernate gossip vocabulary.
package membership

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/gossip"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
)

// moveState is the parsed form of a gossip MOVE application-state value:
// "state,token[,extra,token]".
type moveState struct {
	State ring.NodeState
	Token partition.Token
	Extra string // e.g. "remove"
	Token2 partition.Token
}

func parseMove(value string) (moveState, error) {
	parts := strings.Split(value, ",")
	if len(parts) == 0 {
		return moveState{}, fmt.Errorf("membership: empty MOVE value")
	}

	if parts[0] == "hibernate" {
		return moveState{State: "hibernate"}, nil
	}

	if len(parts) < 2 {
		return moveState{}, fmt.Errorf("membership: malformed MOVE value %q", value)
	}

	ms := moveState{State: ring.NodeState(parts[0]), Token: partition.Token(parts[1])}
	if len(parts) >= 4 {
		ms.Extra = parts[2]
		ms.Token2 = partition.Token(parts[3])
	}
	return ms, nil
}

// endpointRecord tracks what this controller currently believes about
// one remote endpoint, used for collision resolution and state-jump
// detection.
type endpointRecord struct {
	state      ring.NodeState
	token      partition.Token
	generation int64
}

// RingController is the membership state-machine driver: it owns no
// network I/O of its own, receiving state changes from a Gossiper and
// mutating a TokenMetadata plus the per-table replication Strategy
// caches that must be invalidated on every topology change.
type RingController struct {
	mu          sync.Mutex
	tm          *ring.TokenMetadata
	strategies  map[ring.Table]replication.Strategy
	tables      []ring.Table
	partitioner partition.Partitioner
	endpoints   map[ring.Endpoint]*endpointRecord
	self        ring.Endpoint
	logger      *zap.Logger

	pending map[ring.Endpoint]*PendingChange
	streams map[string]*StreamProgress
}

// New constructs a RingController over tm, tracking pending-range math
// for the given strategies (one per table).
func New(self ring.Endpoint, tm *ring.TokenMetadata, strategies map[ring.Table]replication.Strategy, partitioner partition.Partitioner, logger *zap.Logger) *RingController {
	tables := make([]ring.Table, 0, len(strategies))
	for t := range strategies {
		tables = append(tables, t)
	}
	return &RingController{
		tm:          tm,
		strategies:  strategies,
		tables:      tables,
		partitioner: partitioner,
		endpoints:   make(map[ring.Endpoint]*endpointRecord),
		self:        self,
		logger:      logger,
		pending:     make(map[ring.Endpoint]*PendingChange),
		streams:     make(map[string]*StreamProgress),
	}
}

// TokenMetadata returns the ring state this controller drives, for
// read-only callers like the admin surface's ring dump.
func (c *RingController) TokenMetadata() *ring.TokenMetadata {
	return c.tm
}

// Self returns the endpoint this controller acts on behalf of.
func (c *RingController) Self() ring.Endpoint {
	return c.self
}

// Streams returns a copy of the currently tracked replica-restoration
// progress records, for the `streams` CLI verb.
func (c *RingController) Streams() []StreamProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]StreamProgress, 0, len(c.streams))
	for _, sp := range c.streams {
		out = append(out, *sp)
	}
	return out
}

// OnStateChange implements gossip.Listener: it applies one remote
// endpoint's MOVE transition to TokenMetadata and recomputes pending
// ranges.
func (c *RingController) OnStateChange(sc gossip.StateChange) {
	ms, err := parseMove(sc.Value)
	if err != nil {
		c.logger.Warn("dropping unparseable gossip state", zap.String("endpoint", string(sc.Endpoint)), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ms.State == "hibernate" {
		c.logger.Info("endpoint hibernating for replacement", zap.String("endpoint", string(sc.Endpoint)))
		if rec, ok := c.endpoints[sc.Endpoint]; ok {
			rec.state = "hibernate"
		}
		return
	}

	prev, known := c.endpoints[sc.Endpoint]

	switch ms.State {
	case ring.NodeStateBootstrapping:
		c.tm.AddBootstrapToken(ms.Token, sc.Endpoint)
		c.endpoints[sc.Endpoint] = &endpointRecord{state: ring.NodeStateBootstrapping, token: ms.Token, generation: sc.Generation}

	case ring.NodeStateNormal:
		if ms.Extra == "remove" {
			c.applyRemoveToken(ms.Token2)
		}

		if !known {
			c.logger.Info("state jump to NORMAL without prior BOOT", zap.String("endpoint", string(sc.Endpoint)), zap.String("token", string(ms.Token)))
		}

		if winner, ok := c.resolveCollision(sc.Endpoint, ms.Token, sc.Generation); !ok {
			c.logger.Warn("losing NORMAL-token collision, endpoint marked replaced",
				zap.String("endpoint", string(sc.Endpoint)), zap.String("token", string(ms.Token)), zap.String("winner", string(winner)))
			return
		}

		c.tm.RemoveBootstrapToken(ms.Token)
		c.tm.UpdateNormalToken(ms.Token, sc.Endpoint)
		c.endpoints[sc.Endpoint] = &endpointRecord{state: ring.NodeStateNormal, token: ms.Token, generation: sc.Generation}

	case ring.NodeStateLeaving:
		c.tm.AddLeavingEndpoint(sc.Endpoint)
		if prev != nil {
			prev.state = ring.NodeStateLeaving
		}

	case ring.NodeStateLeft:
		c.tm.RemoveEndpoint(sc.Endpoint)
		delete(c.endpoints, sc.Endpoint)

	default:
		c.logger.Warn("unrecognized MOVE state", zap.String("endpoint", string(sc.Endpoint)), zap.String("state", string(ms.State)))
		return
	}

	c.invalidateCaches()
	c.recomputePendingRangesLocked()
}

// resolveCollision decides who owns ms.Token when two endpoints both
// advertise NORMAL at it: the larger gossip startup generation wins.
// Returns the winning endpoint and whether candidate won.
func (c *RingController) resolveCollision(candidate ring.Endpoint, token partition.Token, generation int64) (ring.Endpoint, bool) {
	holder, held := c.tm.EndpointFor(token)
	if !held || holder == candidate {
		return candidate, true
	}

	holderRec, ok := c.endpoints[holder]
	if !ok || generation > holderRec.generation {
		return candidate, true
	}
	return holder, false
}

func (c *RingController) applyRemoveToken(token partition.Token) {
	ep, ok := c.tm.EndpointFor(token)
	if !ok {
		return
	}
	c.tm.AddLeavingEndpoint(ep)
	c.logger.Info("initiating replica restoration after remote removal", zap.String("endpoint", string(ep)), zap.String("token", string(token)))
}

func (c *RingController) invalidateCaches() {
	for _, s := range c.strategies {
		s.ClearEndpointCache()
	}
}

// recomputePendingRangesLocked implements the three-step algorithm: it
// must be called with c.mu held.
func (c *RingController) recomputePendingRangesLocked() {
	allLeft := c.tm.CloneAfterAllLeft()

	for _, table := range c.tables {
		strategy := c.strategies[table]
		pending := make(map[partition.Range][]ring.Endpoint)

		for _, leavingEp := range c.tm.LeavingEndpoints() {
			tok, ok := c.tm.TokenFor(leavingEp)
			if !ok {
				continue
			}
			rng, ok := c.ownedRange(tok)
			if !ok {
				continue
			}

			current, err := strategy.CalculateNaturalEndpoints(tok, c.tm, table)
			if err != nil {
				c.logger.Warn("pending-range calc failed for leaving endpoint", zap.Error(err))
				continue
			}
			postLeave, err := strategy.CalculateNaturalEndpoints(tok, allLeft, table)
			if err != nil {
				c.logger.Warn("pending-range calc failed for post-leave projection", zap.Error(err))
				continue
			}

			diff := setDifference(postLeave, current)
			if len(diff) > 0 {
				pending[rng] = append(pending[rng], diff...)
			}
		}

		for tok, bootstrapEp := range c.tm.BootstrapTokens() {
			withBoot := allLeft.CloneWithBootstrapApplied(tok, bootstrapEp)
			rng, ok := c.ownedRangeIn(withBoot, tok)
			if !ok {
				continue
			}
			endpoints, err := strategy.CalculateNaturalEndpoints(tok, withBoot, table)
			if err != nil {
				c.logger.Warn("pending-range calc failed for bootstrapping endpoint", zap.Error(err))
				continue
			}
			for _, ep := range endpoints {
				if ep == bootstrapEp {
					pending[rng] = appendUnique(pending[rng], bootstrapEp)
				}
			}
		}

		strategy.ClearEndpointCache()
		c.tm.SetPendingRanges(table, pending)
	}
}

func (c *RingController) ownedRange(t partition.Token) (partition.Range, bool) {
	return c.ownedRangeIn(c.tm, t)
}

func (c *RingController) ownedRangeIn(tm *ring.TokenMetadata, t partition.Token) (partition.Range, bool) {
	pred, ok := tm.GetPredecessor(t)
	if !ok {
		return partition.Range{}, false
	}
	return partition.Range{Left: pred, Right: t}, true
}

func setDifference(a, b []ring.Endpoint) []ring.Endpoint {
	inB := make(map[ring.Endpoint]bool, len(b))
	for _, ep := range b {
		inB[ep] = true
	}
	var out []ring.Endpoint
	for _, ep := range a {
		if !inB[ep] {
			out = append(out, ep)
		}
	}
	return out
}

func appendUnique(eps []ring.Endpoint, ep ring.Endpoint) []ring.Endpoint {
	for _, e := range eps {
		if e == ep {
			return eps
		}
	}
	return append(eps, ep)
}
