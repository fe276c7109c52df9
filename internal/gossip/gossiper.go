// Package gossip wraps hashicorp/memberlist to implement the Gossiper
// external collaborator names
// (Gossiper.getLive/Dead/UpdateTimestamp), and to deliver
// (endpoint, applicationState) tuples to the membership state machine.
//
// See storage-node/internal/service/gossip_service.go for the
// memberlist.Config wiring and Delegate/EventDelegate split this
// generalizes from a single health-status payload to the MOVE
// application state the membership state machine consumes.
package gossip

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/ring"
)

// StateChange is delivered to the membership state machine whenever a
// remote endpoint's MOVE application state changes.
type StateChange struct {
	Endpoint   ring.Endpoint
	Value      string // e.g. "BOOT,t" or "NORMAL,t,remove,t2"
	Generation int64  // gossip startup generation, used to break NORMAL-token collisions
}

// Listener receives state changes as they arrive.
type Listener interface {
	OnStateChange(sc StateChange)
}

// Config mirrors GossipConfig.
type Config struct {
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// payload is the application-state blob gossiped per node, carrying the
// MOVE value plus a generation counter used to break NORMAL-token
// collisions on rejoin.
type payload struct {
	NodeID     string `json:"node_id"`
	MoveState  string `json:"move_state"`
	Generation int64  `json:"generation"`
}

// Gossiper drives cluster membership via memberlist and exposes the
// isAlive/getLive/getDead/updateTimestamp surface the membership state
// machine and failure detector depend on.
type Gossiper struct {
	mu         sync.RWMutex
	memberlist *memberlist.Memberlist
	self       ring.Endpoint
	generation int64
	moveState  string
	logger     *zap.Logger
	detector   *failuredetector.Heartbeat
	listener   Listener
}

// New constructs a Gossiper for self, joining cfg.SeedNodes.
func New(cfg Config, self ring.Endpoint, detector *failuredetector.Heartbeat, logger *zap.Logger) (*Gossiper, error) {
	g := &Gossiper{
		self:       self,
		generation: time.Now().Unix(),
		logger:     logger,
		detector:   detector,
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = string(self)
	mlConfig.BindPort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = g
	mlConfig.Events = &eventDelegate{g: g}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("gossip: create memberlist: %w", err)
	}
	g.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	detector.UpdateTimestamp(self)
	return g, nil
}

// SetListener registers the membership state machine to receive state
// changes.
func (g *Gossiper) SetListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listener = l
}

// SetMoveState updates this node's advertised MOVE application state. No
// broadcast is queued (GetBroadcasts returns nil); peers see the new value
// through NodeMeta and the LocalState push/pull exchange.
func (g *Gossiper) SetMoveState(value string) {
	g.mu.Lock()
	g.moveState = value
	g.mu.Unlock()
}

// GetLive returns every endpoint memberlist currently considers alive.
func (g *Gossiper) GetLive() []ring.Endpoint {
	members := g.memberlist.Members()
	out := make([]ring.Endpoint, 0, len(members))
	for _, m := range members {
		out = append(out, ring.Endpoint(m.Name))
	}
	return out
}

// GetDead returns endpoints this node has previously seen but which the
// failure detector no longer considers alive.
func (g *Gossiper) GetDead(known []ring.Endpoint) []ring.Endpoint {
	var dead []ring.Endpoint
	for _, ep := range known {
		if !g.detector.IsAlive(ep) {
			dead = append(dead, ep)
		}
	}
	return dead
}

// UpdateTimestamp records a fresh heartbeat for ep.
func (g *Gossiper) UpdateTimestamp(ep ring.Endpoint) {
	g.detector.UpdateTimestamp(ep)
}

// NodeMeta implements memberlist.Delegate.
func (g *Gossiper) NodeMeta(limit int) []byte {
	g.mu.RLock()
	p := payload{NodeID: string(g.self), MoveState: g.moveState, Generation: g.generation}
	g.mu.RUnlock()

	data, _ := json.Marshal(p)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (g *Gossiper) NotifyMsg(data []byte) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		g.logger.Warn("failed to unmarshal gossip message", zap.Error(err))
		return
	}
	g.deliver(p)
}

// GetBroadcasts implements memberlist.Delegate.
func (g *Gossiper) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements memberlist.Delegate.
func (g *Gossiper) LocalState(join bool) []byte {
	return g.NodeMeta(1 << 20)
}

// MergeRemoteState implements memberlist.Delegate.
func (g *Gossiper) MergeRemoteState(buf []byte, join bool) {
	var p payload
	if err := json.Unmarshal(buf, &p); err != nil {
		return
	}
	g.deliver(p)
}

func (g *Gossiper) deliver(p payload) {
	g.detector.UpdateTimestamp(ring.Endpoint(p.NodeID))

	g.mu.RLock()
	listener := g.listener
	g.mu.RUnlock()

	if listener != nil && p.MoveState != "" {
		listener.OnStateChange(StateChange{
			Endpoint:   ring.Endpoint(p.NodeID),
			Value:      p.MoveState,
			Generation: p.Generation,
		})
	}
}

// Shutdown leaves the memberlist cluster.
func (g *Gossiper) Shutdown() error {
	return g.memberlist.Shutdown()
}

// eventDelegate mirrors GossipEventDelegate.
type eventDelegate struct {
	g *Gossiper
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	ep := ring.Endpoint(node.Name)
	d.g.detector.UpdateTimestamp(ep)
	d.g.logger.Info("node joined", zap.String("endpoint", string(ep)), zap.String("addr", node.Addr.String()))
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	ep := ring.Endpoint(node.Name)
	d.g.detector.MarkDead(ep)
	d.g.logger.Info("node left", zap.String("endpoint", string(ep)))
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.g.logger.Debug("node updated", zap.String("endpoint", node.Name))
}
