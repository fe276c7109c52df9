package write

import (
	"sync"
	"time"
)

// idempotencyCache holds the last Result for a recently used
// idempotency key so a client retry after a timeout observes the
// original outcome instead of re-dispatching the mutation.
//
// See coordinator/internal/service/idempotency_service.go's
// Get/Store pair, collapsed from a Redis-backed store to an in-process
// TTL map since durability across restarts is not part of this package's
// contract.
type idempotencyCache struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
	now     func() time.Time
}

type idempotencyEntry struct {
	result    Result
	expiresAt time.Time
}

const defaultIdempotencyTTL = 5 * time.Minute

func newIdempotencyCache() *idempotencyCache {
	return &idempotencyCache{
		entries: make(map[string]idempotencyEntry),
		ttl:     defaultIdempotencyTTL,
		now:     time.Now,
	}
}

func (c *idempotencyCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return Result{}, false
	}
	return e.result, true
}

func (c *idempotencyCache) put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = idempotencyEntry{result: result, expiresAt: c.now().Add(c.ttl)}
}
