// Package hints implements the hint store and event-driven replay the
// write coordinator relies on for transient-failure convergence: an
// append-only, per-endpoint, durable-shaped queue, drained by a
// single-flight delivery task whenever the endpoint is reported alive.
//
// See coordinator/internal/service/hintedhandoff_service.go and
// coordinator/internal/store/hint_store.go's HintStore
// interface vocabulary (StoreHint/GetHintsForNode/DeleteHint/
// GetHintCount), reworked from a periodic-ticker replay loop to a
// liveness-triggered single-flight drain.
package hints

import (
	"context"
	"sync"
	"time"

	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/ring"
)

// Hint is an opaque serialized mutation addressed to a destination
// endpoint, durable until successfully replayed and acknowledged.
type Hint struct {
	Sequence  int64
	Endpoint  ring.Endpoint
	Mutation  localstore.Mutation
	CreatedAt time.Time
	Retries   int
}

// Store is the append-only, per-endpoint hint queue.
type Store interface {
	StoreHint(ep ring.Endpoint, mut localstore.Mutation) Hint
	GetHintsForEndpoint(ep ring.Endpoint) []Hint
	DeleteHint(ep ring.Endpoint, sequence int64) error
	DeleteHintsForEndpoint(ep ring.Endpoint) error
	ListEndpointsWithHints() []ring.Endpoint
	GetHintCount(ep ring.Endpoint) int
	GetTotalHintCount() int
	CleanupExpired(maxAge time.Duration) int
}

// Memory is an in-memory Store; durability across restarts is out of
// scope for the reference implementation, matching LocalStore.Memory.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	byNode map[ring.Endpoint][]Hint
}

// NewMemory constructs an empty in-memory hint store.
func NewMemory() *Memory {
	return &Memory{byNode: make(map[ring.Endpoint][]Hint)}
}

func (m *Memory) StoreHint(ep ring.Endpoint, mut localstore.Mutation) Hint {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	h := Hint{Sequence: m.nextID, Endpoint: ep, Mutation: mut, CreatedAt: time.Now()}
	m.byNode[ep] = append(m.byNode[ep], h)
	return h
}

func (m *Memory) GetHintsForEndpoint(ep ring.Endpoint) []Hint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Hint, len(m.byNode[ep]))
	copy(out, m.byNode[ep])
	return out
}

func (m *Memory) DeleteHint(ep ring.Endpoint, sequence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hints := m.byNode[ep]
	out := make([]Hint, 0, len(hints))
	for _, h := range hints {
		if h.Sequence != sequence {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		delete(m.byNode, ep)
	} else {
		m.byNode[ep] = out
	}
	return nil
}

func (m *Memory) DeleteHintsForEndpoint(ep ring.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byNode, ep)
	return nil
}

func (m *Memory) ListEndpointsWithHints() []ring.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ring.Endpoint, 0, len(m.byNode))
	for ep, hints := range m.byNode {
		if len(hints) > 0 {
			out = append(out, ep)
		}
	}
	return out
}

func (m *Memory) GetHintCount(ep ring.Endpoint) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byNode[ep])
}

func (m *Memory) GetTotalHintCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, hints := range m.byNode {
		total += len(hints)
	}
	return total
}

func (m *Memory) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for ep, hints := range m.byNode {
		out := make([]Hint, 0, len(hints))
		for _, h := range hints {
			if h.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			out = append(out, h)
		}
		if len(out) == 0 {
			delete(m.byNode, ep)
		} else {
			m.byNode[ep] = out
		}
	}
	return removed
}

// Sender delivers a single hint's mutation to its endpoint, returning
// nil only once the destination has acknowledged it.
type Sender interface {
	SendHint(ctx context.Context, h Hint) error
}
