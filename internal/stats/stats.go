// Package stats is the explicit StatsSink collaborator spec.md §9 calls
// for in place of aspect-woven statistics: callers that want a counter
// bumped or a gauge set take a *StatsSink as a constructor argument
// instead of reaching for a package-level recorder.
//
// Grounded on the CompactionStats/ThreadPoolStats shape in
// (storage-node/internal/metrics/prometheus.go's compaction and gossip
// gauge/counter groups), collapsed here into one plain in-memory sink
// that the admin surface reads back for the `cfstats`/`tpstats` CLI
// verbs, independent of whatever Prometheus registers.
package stats

import "sync"

// CompactionStats mirrors the operator-facing `cfstats` snapshot.
type CompactionStats struct {
	PendingTasks     int64
	CompletedTasks   int64
	BytesCompacted   int64
	ActiveCompactions int64
}

// ThreadPoolStats mirrors the operator-facing `tpstats` snapshot: one
// entry per named pool (read, write, gossip, hint-replay, compaction).
type ThreadPoolStats struct {
	Active    int64
	Pending   int64
	Completed int64
}

// Sink accumulates counters and gauges that the admin surface and CLI
// read back; every method is safe for concurrent use.
type Sink struct {
	mu sync.Mutex

	reads  int64
	writes int64
	hintsStored   int64
	hintsReplayed int64
	digestMismatches int64
	repairsIssued int64

	compaction CompactionStats
	pools      map[string]ThreadPoolStats

	cacheCapacity        int64
	compactionThreshold  int
	streamThroughputMBps int
}

// New constructs an empty Sink.
func New() *Sink {
	return &Sink{pools: make(map[string]ThreadPoolStats)}
}

func (s *Sink) IncReads()  { s.mu.Lock(); s.reads++; s.mu.Unlock() }
func (s *Sink) IncWrites() { s.mu.Lock(); s.writes++; s.mu.Unlock() }
func (s *Sink) IncHintsStored()   { s.mu.Lock(); s.hintsStored++; s.mu.Unlock() }
func (s *Sink) IncHintsReplayed() { s.mu.Lock(); s.hintsReplayed++; s.mu.Unlock() }
func (s *Sink) IncDigestMismatches() { s.mu.Lock(); s.digestMismatches++; s.mu.Unlock() }
func (s *Sink) IncRepairsIssued()    { s.mu.Lock(); s.repairsIssued++; s.mu.Unlock() }

// SetPoolStats records a snapshot for a named worker pool (e.g.
// "read-coordinator", "hint-replay").
func (s *Sink) SetPoolStats(name string, st ThreadPoolStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[name] = st
}

// ThreadPools returns a copy of every recorded pool snapshot, for the
// `tpstats` verb.
func (s *Sink) ThreadPools() map[string]ThreadPoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ThreadPoolStats, len(s.pools))
	for k, v := range s.pools {
		out[k] = v
	}
	return out
}

// SetCompactionStats records a snapshot for the `cfstats` verb.
func (s *Sink) SetCompactionStats(st CompactionStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compaction = st
}

func (s *Sink) Compaction() CompactionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compaction
}

// Counters returns the coarse request/hint/repair counters, for
// `Admin.Info()`.
func (s *Sink) Counters() (reads, writes, hintsStored, hintsReplayed, digestMismatches, repairsIssued int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes, s.hintsStored, s.hintsReplayed, s.digestMismatches, s.repairsIssued
}

// SetCacheCapacity, SetCompactionThreshold, SetStreamThroughput record
// the operator-set values; the subsystems they would otherwise tune are
// out of scope, so these are bookkeeping only, read back by the
// corresponding `get*`/`set*` CLI verbs.
func (s *Sink) SetCacheCapacity(bytes int64) {
	s.mu.Lock()
	s.cacheCapacity = bytes
	s.mu.Unlock()
}

func (s *Sink) CacheCapacity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheCapacity
}

func (s *Sink) SetCompactionThreshold(threshold int) {
	s.mu.Lock()
	s.compactionThreshold = threshold
	s.mu.Unlock()
}

func (s *Sink) CompactionThreshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactionThreshold
}

func (s *Sink) SetStreamThroughput(mbps int) {
	s.mu.Lock()
	s.streamThroughputMBps = mbps
	s.mu.Unlock()
}

func (s *Sink) StreamThroughput() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamThroughputMBps
}
