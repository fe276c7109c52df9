package membership

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/gossip"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/snitch"
)

// ChangeType distinguishes the two pending-change kinds.
type ChangeType string

const (
	ChangeBootstrap     ChangeType = "bootstrap"
	ChangeDecommission  ChangeType = "decommission"
)

// ChangeStatus mirrors coordinator/internal/model/topology.go's
// PendingChangeStatus lifecycle.
type ChangeStatus string

const (
	ChangeInProgress ChangeStatus = "in_progress"
	ChangeCompleted  ChangeStatus = "completed"
	ChangeFailed     ChangeStatus = "failed"
)

// PendingChange records an in-flight bootstrap or decommission in the
// controller's in-memory pending map. It is not persisted, so it does not
// survive a process restart.
//
// See coordinator/internal/model/topology.go's PendingChange,
// generalized from a uint64 TokenRange to this repository's own
// partition.Range.
type PendingChange struct {
	Type      ChangeType
	Endpoint  ring.Endpoint
	Ranges    []partition.Range
	StartedAt time.Time
	Status    ChangeStatus
	Error     string
}

// StreamProgress names the source, target, and range of one
// replica-restoration stream. Nothing in this package updates KeysMoved,
// BytesMoved, or Done after the record is created, so they stay zero.
//
// See coordinator/internal/model/topology.go's StreamingProgress.
type StreamProgress struct {
	Source     ring.Endpoint
	Target     ring.Endpoint
	Range      partition.Range
	KeysMoved  int64
	BytesMoved int64
	Done       bool
}

// Bootstrap begins this node joining the ring at token t: it advertises
// BOOT,t via gossip and records a PendingChange so pending-range math
// routes writes here before the transition to NORMAL completes.
func (c *RingController) Bootstrap(g *gossip.Gossiper, t partition.Token) {
	c.mu.Lock()
	c.pending[c.self] = &PendingChange{Type: ChangeBootstrap, Endpoint: c.self, StartedAt: time.Now(), Status: ChangeInProgress}
	c.mu.Unlock()

	g.SetMoveState(fmt.Sprintf("%s,%s", ring.NodeStateBootstrapping, t))
	c.OnStateChange(gossip.StateChange{Endpoint: c.self, Value: fmt.Sprintf("%s,%s", ring.NodeStateBootstrapping, t)})
}

// ResumeBootstrap re-announces NORMAL for the token this node already
// holds, completing a bootstrap a prior process exit interrupted before
// the NORMAL transition landed.
func (c *RingController) ResumeBootstrap(g *gossip.Gossiper) error {
	tok, ok := c.tm.TokenFor(c.self)
	if !ok {
		return fmt.Errorf("membership: no bootstrap token recorded for resume")
	}
	c.completeBootstrap(g, tok)
	return nil
}

func (c *RingController) completeBootstrap(g *gossip.Gossiper, t partition.Token) {
	value := fmt.Sprintf("%s,%s", ring.NodeStateNormal, t)
	g.SetMoveState(value)
	c.OnStateChange(gossip.StateChange{Endpoint: c.self, Value: value})

	c.mu.Lock()
	if pc, ok := c.pending[c.self]; ok {
		pc.Status = ChangeCompleted
	}
	c.mu.Unlock()
}

// Move relocates this node to token t (or, if t is empty, to
// loadBalanceTarget: the midpoint of the range preceding this node's
// current token; the load of other ranges is not consulted), by leaving
// its current token and bootstrapping into the new one.
func (c *RingController) Move(g *gossip.Gossiper, t partition.Token) error {
	if t == "" {
		var ok bool
		t, ok = c.loadBalanceTarget()
		if !ok {
			return fmt.Errorf("membership: no candidate range for load balance")
		}
	}
	c.Bootstrap(g, t)
	c.completeBootstrap(g, t)
	return nil
}

// loadBalanceTarget picks the midpoint of the range preceding this
// node's current token. There is no load-statistics collaborator wired
// in yet, so this does not actually find the most-loaded range in the
// ring; it rebalances against this node's immediate predecessor, which
// is the one range an unassisted node can always name.
func (c *RingController) loadBalanceTarget() (partition.Token, bool) {
	self, ok := c.tm.TokenFor(c.self)
	if !ok {
		return "", false
	}
	pred, ok := c.tm.GetPredecessor(self)
	if !ok {
		return "", false
	}
	return c.partitioner.Midpoint(pred, self), true
}

// Decommission announces LEAVING then LEFT for this node's token,
// blocking only on the local state transitions — actual data streaming
// to inheriting replicas is the LocalStore collaborator's concern.
func (c *RingController) Decommission(g *gossip.Gossiper) error {
	tok, ok := c.tm.TokenFor(c.self)
	if !ok {
		return fmt.Errorf("membership: node holds no token to decommission")
	}

	c.mu.Lock()
	c.pending[c.self] = &PendingChange{Type: ChangeDecommission, Endpoint: c.self, StartedAt: time.Now(), Status: ChangeInProgress}
	c.mu.Unlock()

	leaving := fmt.Sprintf("%s,%s", ring.NodeStateLeaving, tok)
	g.SetMoveState(leaving)
	c.OnStateChange(gossip.StateChange{Endpoint: c.self, Value: leaving})

	left := fmt.Sprintf("%s,%s", ring.NodeStateLeft, tok)
	g.SetMoveState(left)
	c.OnStateChange(gossip.StateChange{Endpoint: c.self, Value: left})

	c.mu.Lock()
	if pc, ok := c.pending[c.self]; ok {
		pc.Status = ChangeCompleted
	}
	c.mu.Unlock()
	return nil
}

// RemoveToken gossips the removal of a dead node's token on behalf of the
// operator, using the "NORMAL,t,remove,t2" wire encoding a live peer
// would otherwise have to originate. The endpoint owning the dead token
// is marked leaving; its token stays in the ring until it is removed.
func (c *RingController) RemoveToken(g *gossip.Gossiper, dead partition.Token) error {
	selfTok, ok := c.tm.TokenFor(c.self)
	if !ok {
		return fmt.Errorf("membership: local node holds no token to gossip the removal from")
	}
	value := fmt.Sprintf("%s,%s,remove,%s", ring.NodeStateNormal, selfTok, dead)
	g.SetMoveState(value)
	c.OnStateChange(gossip.StateChange{Endpoint: c.self, Value: value})
	return nil
}

// RestoreReplicas records, for every table and every range for which this
// node is a natural replica, a StreamProgress naming the nearest live
// source, and returns those records; it starts no transfer itself —
// invoked after an unexpected removeToken shrinks the natural-endpoint
// set elsewhere in the ring.
func (c *RingController) RestoreReplicas(sn snitch.Snitch, liveSources func(ring.Table, partition.Range) []ring.Endpoint) []StreamProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []StreamProgress
	for _, table := range c.tables {
		strategy := c.strategies[table]
		for _, t := range c.tm.SortedTokens() {
			eps, err := strategy.CalculateNaturalEndpoints(t, c.tm, table)
			if err != nil {
				continue
			}
			if !containsEndpoint(eps, c.self) {
				continue
			}
			rng, ok := c.ownedRange(t)
			if !ok {
				continue
			}

			sources := liveSources(table, rng)
			if len(sources) == 0 {
				continue
			}
			nearest := sn.SortByProximity(c.self, sources)[0]
			sp := StreamProgress{Source: nearest, Target: c.self, Range: rng}
			key := fmt.Sprintf("%s/%s", table, rng)
			c.streams[key] = &sp
			out = append(out, sp)
		}
	}
	return out
}

func containsEndpoint(eps []ring.Endpoint, target ring.Endpoint) bool {
	for _, ep := range eps {
		if ep == target {
			return true
		}
	}
	return false
}

// Drain quiesces the mutation stage: a real node would stop accepting
// new writes, flush its memtables, and roll a fresh commit-log segment;
// since the LocalStore collaborator owns those internals, this just logs
// the drain and calls Flush; the controller keeps no drain state.
func (c *RingController) Drain(flush func() error) error {
	c.logger.Info("draining", zap.String("endpoint", string(c.self)))
	return flush()
}
