// Package admin is the Glue/Admin component (C9): the thin operator
// surface that ties the RingController, StatsSink, and LocalStore
// collaborators together behind the verb list spec.md §6 names.
package admin

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/gossip"
	"github.com/ringdb/ringdb/internal/membership"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/snitch"
	"github.com/ringdb/ringdb/internal/stats"
)

// OperationMode mirrors the RingController state machine from this
// node's own point of view, for the `info` verb.
type OperationMode string

const (
	ModeNormal         OperationMode = "NORMAL"
	ModeJoining        OperationMode = "JOINING"
	ModeLeaving        OperationMode = "LEAVING"
	ModeDecommissioned OperationMode = "DECOMMISSIONED"
	ModeClientOnly     OperationMode = "CLIENT_ONLY"
	ModeDraining       OperationMode = "DRAINING"
)

// Info is the `info` verb's response shape.
type Info struct {
	Mode  OperationMode
	Token string
	Load  int // number of ranges owned, a stand-in for on-disk load
}

// RingEntry is one line of the `ring` verb's dump.
type RingEntry struct {
	Token    partition.Token
	Endpoint ring.Endpoint
	State    string // "Normal" | "Bootstrapping" | "Leaving"
}

// Admin implements the operator-facing operations named in spec.md §6,
// delegating ring mutations to RingController and read-only snapshots to
// StatsSink, grounded on coordinator/internal/handler's request-dispatch
// shape and api-gateway/internal/middleware's HTTP-facing conventions.
type Admin struct {
	controller *membership.RingController
	gossiper   *gossip.Gossiper
	snitch     snitch.Snitch
	stats      *stats.Sink
	flush      func() error
	mode       OperationMode
	logger     *zap.Logger
}

// New constructs an Admin over controller, wired to gossiper for state
// transitions, sn for replica-restoration proximity, sink for
// statistics, and flush for the drain verb's LocalStore hook.
func New(controller *membership.RingController, gossiper *gossip.Gossiper, sn snitch.Snitch, sink *stats.Sink, flush func() error, logger *zap.Logger) *Admin {
	return &Admin{
		controller: controller,
		gossiper:   gossiper,
		snitch:     sn,
		stats:      sink,
		flush:      flush,
		mode:       ModeNormal,
		logger:     logger,
	}
}

// Ring returns every known token assignment, sorted, for the `ring`
// verb's dump.
func (a *Admin) Ring() []RingEntry {
	tm := a.controller.TokenMetadata()

	bootstrapping := tm.BootstrapTokens()
	leaving := make(map[ring.Endpoint]bool)
	for _, ep := range tm.LeavingEndpoints() {
		leaving[ep] = true
	}

	var entries []RingEntry
	for _, tok := range tm.SortedTokens() {
		ep, ok := tm.EndpointFor(tok)
		if !ok {
			continue
		}
		state := "Normal"
		if leaving[ep] {
			state = "Leaving"
		}
		entries = append(entries, RingEntry{Token: tok, Endpoint: ep, State: state})
	}
	for tok, ep := range bootstrapping {
		entries = append(entries, RingEntry{Token: tok, Endpoint: ep, State: "Bootstrapping"})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Token.Less(entries[j].Token) })
	return entries
}

// Info returns this node's own operation mode and token, for the `info`
// verb.
func (a *Admin) Info() Info {
	tm := a.controller.TokenMetadata()
	self := a.controller.Self()

	tok, owns := tm.TokenFor(self)
	load := 0
	if owns {
		load = 1
	}

	return Info{Mode: a.mode, Token: string(tok), Load: load}
}

// CompactionStats returns the `cfstats` verb's snapshot.
func (a *Admin) CompactionStats() stats.CompactionStats { return a.stats.Compaction() }

// ThreadPoolStats returns the `tpstats` verb's snapshot.
func (a *Admin) ThreadPoolStats() map[string]stats.ThreadPoolStats { return a.stats.ThreadPools() }

// Drain quiesces the mutation stage via the LocalStore flush hook.
func (a *Admin) Drain() error {
	a.mode = ModeDraining
	return a.controller.Drain(a.flush)
}

// Decommission leaves the ring in an orderly fashion.
func (a *Admin) Decommission() error {
	a.mode = ModeLeaving
	err := a.controller.Decommission(a.gossiper)
	if err == nil {
		a.mode = ModeDecommissioned
	}
	return err
}

// Move relocates this node to token, or to the load-balance target if
// token is empty.
func (a *Admin) Move(token string) error {
	return a.controller.Move(a.gossiper, partition.Token(token))
}

// LoadBalance moves this node to the midpoint of the range preceding its
// own token (see RingController.Move); the load of other ranges in the
// ring is not consulted.
func (a *Admin) LoadBalance() error {
	return a.controller.Move(a.gossiper, "")
}

// RemoveToken gossips the removal of a dead endpoint's token on the
// operator's behalf; the endpoint owning it is marked leaving in the ring.
func (a *Admin) RemoveToken(token string) error {
	return a.controller.RemoveToken(a.gossiper, partition.Token(token))
}

// ResumeBootstrap re-announces NORMAL after an interrupted bootstrap.
func (a *Admin) ResumeBootstrap() error {
	return a.controller.ResumeBootstrap(a.gossiper)
}

// Streams triggers a round of replica restoration against liveSources
// and returns the resulting per-range progress records.
func (a *Admin) Streams(liveSources func(ring.Table, partition.Range) []ring.Endpoint) []membership.StreamProgress {
	return a.controller.RestoreReplicas(a.snitch, liveSources)
}

// CurrentStreams reports the progress of whatever replica-restoration
// streams are already tracked, without triggering a new round, for the
// `streams` CLI verb over HTTP.
func (a *Admin) CurrentStreams() []membership.StreamProgress {
	return a.controller.Streams()
}

// CancelStreamOut is a no-op acknowledgement: streaming itself is driven
// by the LocalStore collaborator, out of this repository's scope, so
// there is no in-flight transfer here to actually cancel.
func (a *Admin) CancelStreamOut(rangeKey string) error {
	a.logger.Info("stream-out cancel requested", zap.String("range", rangeKey))
	return nil
}

// Flush runs the same LocalStore.Flush hook Drain uses, for the
// `flush` verb's per-keyspace invocation outside of a full drain.
func (a *Admin) Flush(keyspace string) error {
	a.logger.Info("flush requested", zap.String("keyspace", keyspace))
	return a.flush()
}

// Repair, Cleanup, and Compact are acknowledgement-only: on-disk
// compaction and anti-entropy repair belong to the LocalStore engine,
// out of this repository's scope (read-repair is already automatic on
// the read path, see internal/coordinator/read), so these verbs just
// log the operator's request rather than silently rejecting it.
func (a *Admin) Repair(keyspace string) error {
	a.logger.Info("repair requested", zap.String("keyspace", keyspace))
	return nil
}

func (a *Admin) Cleanup(keyspace string) error {
	a.logger.Info("cleanup requested", zap.String("keyspace", keyspace))
	return nil
}

func (a *Admin) Compact(keyspace string) error {
	a.logger.Info("compact requested", zap.String("keyspace", keyspace))
	return nil
}

// CfHistograms reports the closest available proxy for the `cfhistograms`
// verb: this repository has no per-SSTable read/write latency histograms,
// so it surfaces the coordination-level compaction snapshot instead.
func (a *Admin) CfHistograms() stats.CompactionStats { return a.stats.Compaction() }

// Snapshot and ClearSnapshot are acknowledgement-only: on-disk snapshots
// belong to the LocalStore engine, out of scope here.
func (a *Admin) Snapshot(tag string) error {
	a.logger.Info("snapshot requested", zap.String("tag", tag))
	return nil
}

func (a *Admin) ClearSnapshot() error {
	a.logger.Info("clear-snapshot requested")
	return nil
}

// GossipStop, GossipStart, and GossipPurge are acknowledgement-only:
// this repository's Gossiper wraps hashicorp/memberlist directly and
// does not expose a pause/resume/purge control surface, matching
// spec.md's explicit exclusion of the gossip transport from this
// repository's implementation scope.
func (a *Admin) GossipStop() error {
	a.logger.Info("gossip stop requested")
	return nil
}

func (a *Admin) GossipStart() error {
	a.logger.Info("gossip start requested")
	return nil
}

func (a *Admin) GossipPurge() error {
	a.logger.Info("gossip purge requested")
	return nil
}

// SetCacheCapacity, SetCompactionThreshold, and SetStreamThroughput
// record operator-set values via the StatsSink; see stats.Sink's doc
// comment for why these are bookkeeping only.
func (a *Admin) SetCacheCapacity(bytes int64) { a.stats.SetCacheCapacity(bytes) }

func (a *Admin) SetCompactionThreshold(threshold int) { a.stats.SetCompactionThreshold(threshold) }

func (a *Admin) GetCompactionThreshold() int { return a.stats.CompactionThreshold() }

func (a *Admin) SetStreamThroughput(mbps int) { a.stats.SetStreamThroughput(mbps) }

// GossipInfo renders a human-readable line per known endpoint, for the
// `gossipinfo` verb.
func (a *Admin) GossipInfo() string {
	live := a.gossiper.GetLive()
	lines := make([]string, 0, len(live))
	for _, ep := range live {
		lines = append(lines, fmt.Sprintf("%s: NORMAL", ep))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
