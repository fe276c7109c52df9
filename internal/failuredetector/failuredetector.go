// Package failuredetector defines the FailureDetector external
// collaborator names (FailureDetector.isAlive) plus a simple
// heartbeat-timeout implementation.
//
// See storage-node/internal/health/health_check.go and
// coordinator/internal/health/health_check.go for the liveness-probe
// vocabulary this generalizes from HTTP probes to the heartbeat-timestamp
// model gossip feeds.
package failuredetector

import (
	"sync"
	"time"

	"github.com/ringdb/ringdb/internal/ring"
)

// FailureDetector reports whether an endpoint is currently alive.
type FailureDetector interface {
	IsAlive(ep ring.Endpoint) bool
}

// Heartbeat is a failure detector driven by UpdateTimestamp calls (from
// Gossiper.updateTimestamp); an endpoint is alive if it
// has been heard from within the configured timeout.
type Heartbeat struct {
	mu       sync.RWMutex
	lastSeen map[ring.Endpoint]time.Time
	timeout  time.Duration
	clockNow func() time.Time
}

// NewHeartbeat constructs a Heartbeat detector with the given
// liveness timeout.
func NewHeartbeat(timeout time.Duration) *Heartbeat {
	return &Heartbeat{
		lastSeen: make(map[ring.Endpoint]time.Time),
		timeout:  timeout,
		clockNow: time.Now,
	}
}

// UpdateTimestamp records that ep was heard from now.
func (h *Heartbeat) UpdateTimestamp(ep ring.Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSeen[ep] = h.clockNow()
}

// MarkDead immediately forgets ep, making it report not-alive until the
// next UpdateTimestamp.
func (h *Heartbeat) MarkDead(ep ring.Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastSeen, ep)
}

func (h *Heartbeat) IsAlive(ep ring.Endpoint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	last, ok := h.lastSeen[ep]
	if !ok {
		return false
	}
	return h.clockNow().Sub(last) <= h.timeout
}
