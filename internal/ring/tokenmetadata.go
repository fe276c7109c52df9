package ring

import (
	"sort"
	"sync"

	"github.com/ringdb/ringdb/internal/partition"
)

// snapshot is the immutable, copy-on-write state TokenMetadata swaps on
// every mutation. Readers hold a reference to one snapshot for the
// duration of their operation and never observe a partial mutation.
type snapshot struct {
	sortedTokens     []partition.Token
	normalTokens     map[partition.Token]Endpoint
	normalEndpoints  map[Endpoint]partition.Token
	bootstrapTokens  map[partition.Token]Endpoint
	leavingEndpoints map[Endpoint]bool
	pendingRanges    map[Table]map[partition.Range]map[Endpoint]bool
}

func newSnapshot() *snapshot {
	return &snapshot{
		normalTokens:     make(map[partition.Token]Endpoint),
		normalEndpoints:  make(map[Endpoint]partition.Token),
		bootstrapTokens:  make(map[partition.Token]Endpoint),
		leavingEndpoints: make(map[Endpoint]bool),
		pendingRanges:    make(map[Table]map[partition.Range]map[Endpoint]bool),
	}
}

// clone makes a shallow-but-independent copy: every map and slice is
// rebuilt so mutating the clone never affects the original.
func (s *snapshot) clone() *snapshot {
	out := newSnapshot()
	out.sortedTokens = append(out.sortedTokens, s.sortedTokens...)
	for k, v := range s.normalTokens {
		out.normalTokens[k] = v
	}
	for k, v := range s.normalEndpoints {
		out.normalEndpoints[k] = v
	}
	for k, v := range s.bootstrapTokens {
		out.bootstrapTokens[k] = v
	}
	for k, v := range s.leavingEndpoints {
		out.leavingEndpoints[k] = v
	}
	for table, ranges := range s.pendingRanges {
		rc := make(map[partition.Range]map[Endpoint]bool, len(ranges))
		for rng, eps := range ranges {
			ec := make(map[Endpoint]bool, len(eps))
			for ep := range eps {
				ec[ep] = true
			}
			rc[rng] = ec
		}
		out.pendingRanges[table] = rc
	}
	return out
}

func (s *snapshot) resort() {
	tokens := make([]partition.Token, 0, len(s.normalTokens))
	for t := range s.normalTokens {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Less(tokens[j]) })
	s.sortedTokens = tokens
}

// TokenMetadata is the authoritative in-memory ring. All mutations are
// serialized by a single write lock; readers observe a consistent
// snapshot without blocking writers.
type TokenMetadata struct {
	mu  sync.RWMutex
	cur *snapshot
}

// New returns an empty TokenMetadata.
func New() *TokenMetadata {
	return &TokenMetadata{cur: newSnapshot()}
}

// Snapshot returns the current immutable view. Callers must not mutate
// the returned slices/maps directly; TokenMetadata never does after
// publishing a snapshot, so sharing is safe.
func (tm *TokenMetadata) snapshotRef() *snapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.cur
}

// mutate runs fn against a clone of the current snapshot under the write
// lock, then publishes the clone as the new current snapshot.
func (tm *TokenMetadata) mutate(fn func(s *snapshot)) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	next := tm.cur.clone()
	fn(next)
	next.resort()
	tm.cur = next
}

// UpdateNormalToken inserts/moves (t, ep); any existing binding for
// either t or ep is removed atomically first.
func (tm *TokenMetadata) UpdateNormalToken(t partition.Token, ep Endpoint) {
	tm.mutate(func(s *snapshot) {
		if oldEp, ok := s.normalTokens[t]; ok {
			delete(s.normalEndpoints, oldEp)
		}
		if oldTok, ok := s.normalEndpoints[ep]; ok {
			delete(s.normalTokens, oldTok)
		}
		delete(s.bootstrapTokens, t)
		s.normalTokens[t] = ep
		s.normalEndpoints[ep] = t
	})
}

// AddBootstrapToken marks ep as bootstrapping into token t.
func (tm *TokenMetadata) AddBootstrapToken(t partition.Token, ep Endpoint) {
	tm.mutate(func(s *snapshot) {
		s.bootstrapTokens[t] = ep
	})
}

// RemoveBootstrapToken removes a bootstrap-token entry.
func (tm *TokenMetadata) RemoveBootstrapToken(t partition.Token) {
	tm.mutate(func(s *snapshot) {
		delete(s.bootstrapTokens, t)
	})
}

// AddLeavingEndpoint marks ep as leaving. ep must already be a normal
// member.
func (tm *TokenMetadata) AddLeavingEndpoint(ep Endpoint) {
	tm.mutate(func(s *snapshot) {
		s.leavingEndpoints[ep] = true
	})
}

// RemoveEndpoint fully removes ep: its normal token binding and its
// leaving-set membership.
func (tm *TokenMetadata) RemoveEndpoint(ep Endpoint) {
	tm.mutate(func(s *snapshot) {
		if tok, ok := s.normalEndpoints[ep]; ok {
			delete(s.normalTokens, tok)
			delete(s.normalEndpoints, ep)
		}
		delete(s.leavingEndpoints, ep)
	})
}

// SortedTokens returns the current sorted-token vector. The returned
// slice is owned by the snapshot and must not be mutated.
func (tm *TokenMetadata) SortedTokens() []partition.Token {
	return tm.snapshotRef().sortedTokens
}

// EndpointFor returns the endpoint owning a normal token.
func (tm *TokenMetadata) EndpointFor(t partition.Token) (Endpoint, bool) {
	ep, ok := tm.snapshotRef().normalTokens[t]
	return ep, ok
}

// TokenFor returns the normal token owned by ep.
func (tm *TokenMetadata) TokenFor(ep Endpoint) (partition.Token, bool) {
	t, ok := tm.snapshotRef().normalEndpoints[ep]
	return t, ok
}

// IsLeaving reports whether ep is in the leaving set.
func (tm *TokenMetadata) IsLeaving(ep Endpoint) bool {
	return tm.snapshotRef().leavingEndpoints[ep]
}

// BootstrapEndpoint returns the endpoint bootstrapping into token t.
func (tm *TokenMetadata) BootstrapEndpoint(t partition.Token) (Endpoint, bool) {
	ep, ok := tm.snapshotRef().bootstrapTokens[t]
	return ep, ok
}

// BootstrapTokens returns a copy of the current bootstrap-token map.
func (tm *TokenMetadata) BootstrapTokens() map[partition.Token]Endpoint {
	s := tm.snapshotRef()
	out := make(map[partition.Token]Endpoint, len(s.bootstrapTokens))
	for k, v := range s.bootstrapTokens {
		out[k] = v
	}
	return out
}

// LeavingEndpoints returns a copy of the current leaving set.
func (tm *TokenMetadata) LeavingEndpoints() []Endpoint {
	s := tm.snapshotRef()
	out := make([]Endpoint, 0, len(s.leavingEndpoints))
	for ep := range s.leavingEndpoints {
		out = append(out, ep)
	}
	return out
}

// FirstToken returns the smallest token in sorted that is >= key,
// wrapping to sorted[0] at the end.
func FirstToken(sorted []partition.Token, key partition.Token) (partition.Token, bool) {
	if len(sorted) == 0 {
		return "", false
	}
	idx := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Less(key) })
	if idx == len(sorted) {
		idx = 0
	}
	return sorted[idx], true
}

// GetPredecessor returns the token immediately before t in sorted order,
// wrapping to the last entry.
func (tm *TokenMetadata) GetPredecessor(t partition.Token) (partition.Token, bool) {
	sorted := tm.SortedTokens()
	if len(sorted) == 0 {
		return "", false
	}
	idx := indexOf(sorted, t)
	if idx < 0 {
		return "", false
	}
	if idx == 0 {
		return sorted[len(sorted)-1], true
	}
	return sorted[idx-1], true
}

// GetSuccessor returns the token immediately after t in sorted order,
// wrapping to the first entry.
func (tm *TokenMetadata) GetSuccessor(t partition.Token) (partition.Token, bool) {
	sorted := tm.SortedTokens()
	if len(sorted) == 0 {
		return "", false
	}
	idx := indexOf(sorted, t)
	if idx < 0 {
		return "", false
	}
	if idx == len(sorted)-1 {
		return sorted[0], true
	}
	return sorted[idx+1], true
}

func indexOf(sorted []partition.Token, t partition.Token) int {
	for i, v := range sorted {
		if v == t {
			return i
		}
	}
	return -1
}

// CloneAfterAllLeft returns a projection where every leavingEndpoint has
// been removed, used for pending-range math.
func (tm *TokenMetadata) CloneAfterAllLeft() *TokenMetadata {
	s := tm.snapshotRef()
	next := s.clone()
	for ep := range next.leavingEndpoints {
		if tok, ok := next.normalEndpoints[ep]; ok {
			delete(next.normalTokens, tok)
			delete(next.normalEndpoints, ep)
		}
	}
	next.leavingEndpoints = make(map[Endpoint]bool)
	next.resort()
	return &TokenMetadata{cur: next}
}

// CloneWithBootstrapApplied returns a projection where a single
// bootstrapping (t, ep) pair has been promoted to normal, used one at a
// time by pending-range recomputation.8 step 3.
func (tm *TokenMetadata) CloneWithBootstrapApplied(t partition.Token, ep Endpoint) *TokenMetadata {
	s := tm.snapshotRef()
	next := s.clone()
	next.normalTokens[t] = ep
	next.normalEndpoints[ep] = t
	delete(next.bootstrapTokens, t)
	next.resort()
	return &TokenMetadata{cur: next}
}

// SetPendingRanges replaces the pending-range map for table.
func (tm *TokenMetadata) SetPendingRanges(table Table, ranges map[partition.Range][]Endpoint) {
	tm.mutate(func(s *snapshot) {
		rc := make(map[partition.Range]map[Endpoint]bool, len(ranges))
		for rng, eps := range ranges {
			ec := make(map[Endpoint]bool, len(eps))
			for _, ep := range eps {
				ec[ep] = true
			}
			rc[rng] = ec
		}
		if len(rc) == 0 {
			delete(s.pendingRanges, table)
			return
		}
		s.pendingRanges[table] = rc
	})
}

// GetPendingRanges returns the ranges for which ep is a pending
// destination in table.
func (tm *TokenMetadata) GetPendingRanges(table Table, ep Endpoint) []partition.Range {
	s := tm.snapshotRef()
	var out []partition.Range
	for rng, eps := range s.pendingRanges[table] {
		if eps[ep] {
			out = append(out, rng)
		}
	}
	return out
}

// PendingEndpointsFor returns the pending endpoints for a specific range
// in table.
func (tm *TokenMetadata) PendingEndpointsFor(table Table, rng partition.Range) []Endpoint {
	s := tm.snapshotRef()
	eps := s.pendingRanges[table][rng]
	out := make([]Endpoint, 0, len(eps))
	for ep := range eps {
		out = append(out, ep)
	}
	return out
}

// PendingEndpointsForToken returns the union of pending endpoints across
// every pending range in table that contains token. minToken must be the
// active partitioner's minimum token, needed to resolve wraparound ranges.
func (tm *TokenMetadata) PendingEndpointsForToken(table Table, token, minToken partition.Token) []Endpoint {
	s := tm.snapshotRef()
	seen := make(map[Endpoint]bool)
	var out []Endpoint
	for rng, eps := range s.pendingRanges[table] {
		if !rng.Contains(token, minToken) {
			continue
		}
		for ep := range eps {
			if !seen[ep] {
				seen[ep] = true
				out = append(out, ep)
			}
		}
	}
	return out
}

// Clone returns an independent copy of the current TokenMetadata, safe to
// mutate without affecting tm.
func (tm *TokenMetadata) Clone() *TokenMetadata {
	s := tm.snapshotRef()
	return &TokenMetadata{cur: s.clone()}
}
