// Package read implements the per-key read coordinator: parallel
// data+digest dispatch, digest verification, per-column version merge,
// and asynchronous read-repair scheduling.
//
// See coordinator/internal/service/coordinator_service_v2.go's
// readFromReplicasWithRepair/performReadRepair for the parallel-dispatch-
// then-repair shape this generalizes from a single-response-per-replica
// model to the data-vs-digest split and byte-for-byte digest comparison.
package read

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ringdb/ringdb/internal/consistency"
	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/ringerr"
	"github.com/ringdb/ringdb/internal/routing"
	"github.com/ringdb/ringdb/internal/snitch"
	"github.com/ringdb/ringdb/internal/transport"
	"github.com/ringdb/ringdb/internal/wire"
)

// Result is the resolved row returned to the client.
type Result struct {
	Found   bool
	Version localstore.Version
}

// Coordinator resolves (table, key, consistencyLevel) reads against the
// natural/pending replica set.
type Coordinator struct {
	router    *routing.Router
	transport transport.Transport
	snitch    snitch.Snitch
	self      ring.Endpoint
	readDead  time.Duration
	logger    *zap.Logger
}

// New constructs a read Coordinator.
func New(router *routing.Router, tr transport.Transport, sn snitch.Snitch, self ring.Endpoint, readDeadline time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{router: router, transport: tr, snitch: sn, self: self, readDead: readDeadline, logger: logger}
}

type reply struct {
	endpoint ring.Endpoint
	data     bool
	version  localstore.Version
	digest   []byte
}

// Read resolves table/key at the given consistency level.
func (c *Coordinator) Read(ctx context.Context, table ring.Table, key string, level consistency.Level) (Result, error) {
	plan, err := c.router.Resolve(table, []byte(key))
	if err != nil {
		return Result{}, err
	}

	blockFor := consistency.BlockFor(level, plan.TotalTarget)
	if len(plan.AliveAll) < blockFor {
		return Result{}, ringerr.Unavailable("read %s/%s: need %d live replicas, have %d", table, key, blockFor, len(plan.AliveAll))
	}

	replies, err := c.dispatch(ctx, table, key, plan.AliveAll, blockFor, false)
	if err != nil {
		return Result{}, err
	}

	resolved, mismatch := c.resolve(replies)
	if mismatch {
		// Second pass: full data from every responder.
		replies, err = c.dispatch(ctx, table, key, plan.AliveAll, blockFor, true)
		if err != nil {
			return Result{}, err
		}
		resolved, mismatch = c.resolve(replies)
		if mismatch {
			return Result{}, ringerr.DigestMismatch("read %s/%s: digest disagreement persisted after full-data retry", table, key)
		}
	}

	if resolved.IsEmpty() {
		return Result{Found: false}, nil
	}

	c.scheduleRepairs(table, key, replies, resolved)
	return Result{Found: true, Version: resolved}, nil
}

// dispatch sends one full-data read to the snitch-closest endpoint and
// digest-only reads to the rest, unless forceFullData requests full data
// from every endpoint (the digest-mismatch second pass).
func (c *Coordinator) dispatch(ctx context.Context, table ring.Table, key string, endpoints []ring.Endpoint, blockFor int, forceFullData bool) ([]reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readDead)
	defer cancel()

	ordered := c.snitch.SortByProximity(c.self, endpoints)

	var mu sync.Mutex
	replies := make(map[ring.Endpoint]reply, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range ordered {
		ep := ep
		digestOnly := !forceFullData && i != 0
		g.Go(func() error {
			r, err := c.readOne(gctx, ep, table, key, digestOnly)
			if err != nil {
				c.logger.Warn("read failed", zap.String("endpoint", string(ep)), zap.Error(err))
				return nil
			}
			mu.Lock()
			replies[ep] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(replies) < blockFor {
		if ctx.Err() != nil {
			return nil, ringerr.Timeout("read %s/%s: only %d/%d replicas responded before deadline", table, key, len(replies), blockFor)
		}
		return nil, ringerr.Unavailable("read %s/%s: only %d/%d replicas responded", table, key, len(replies), blockFor)
	}
	out := make([]reply, 0, len(replies))
	for _, r := range replies {
		out = append(out, r)
	}
	return out, nil
}

func (c *Coordinator) readOne(ctx context.Context, ep ring.Endpoint, table ring.Table, key string, digestOnly bool) (reply, error) {
	body, err := wire.Encode(wire.ReadRequest{Table: string(table), Key: key, DigestOnly: digestOnly})
	if err != nil {
		return reply{}, err
	}

	resp, err := c.transport.SendRR(ctx, ep, transport.Message{Verb: transport.VerbRead, Body: body}, c.readDead)
	if err != nil {
		return reply{}, err
	}

	var rr wire.ReadReply
	if err := wire.Decode(resp.Body, &rr); err != nil {
		return reply{}, err
	}

	r := reply{endpoint: ep, data: !rr.DigestOnly}
	if rr.DigestOnly {
		r.digest = rr.Digest
	} else {
		r.version = localstore.Version{Columns: rr.Columns}
	}
	return r, nil
}

// resolve implements the two-phase resolution rule: if any responder
// returned data, its digest must byte-for-byte match every digest
// response; a mismatch is reported for a second, full-data pass. With no
// mismatch, the resolved row is the reduce(merge, versions) superset.
func (c *Coordinator) resolve(replies []reply) (localstore.Version, bool) {
	var dataReplies []reply
	var digestReplies []reply
	for _, r := range replies {
		if r.data {
			dataReplies = append(dataReplies, r)
		} else {
			digestReplies = append(digestReplies, r)
		}
	}

	if len(dataReplies) > 0 && len(digestReplies) > 0 {
		reference := dataReplies[0].version.Digest()
		for _, d := range digestReplies {
			if !digestsEqual(reference, d.digest) {
				return localstore.Version{}, true
			}
		}
	}

	resolved := localstore.Version{Columns: map[string]localstore.Mutation{}}
	for _, r := range dataReplies {
		resolved = resolved.Merge(r.version)
	}
	return resolved, false
}

func digestsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// scheduleRepairs fires read-repair mutations, one-way, to every
// responder whose version is a strict subset of resolved. Repairs never
// block the client reply.
func (c *Coordinator) scheduleRepairs(table ring.Table, key string, replies []reply, resolved localstore.Version) {
	for _, r := range replies {
		if !r.data {
			continue
		}
		diff := r.version.Diff(resolved)
		if diff.IsEmpty() {
			continue
		}
		go c.repairOne(table, key, r.endpoint, diff)
	}
}

func (c *Coordinator) repairOne(table ring.Table, key string, ep ring.Endpoint, diff localstore.Version) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for col, mut := range diff.Columns {
		body, err := wire.Encode(wire.MutationRequest{Mutation: mut})
		if err != nil {
			c.logger.Warn("read repair encode failed", zap.String("endpoint", string(ep)), zap.String("column", col), zap.Error(err))
			continue
		}
		if err := c.transport.SendOneWay(ctx, ep, transport.Message{Verb: transport.VerbReadRepair, Body: body}); err != nil {
			c.logger.Warn("read repair dispatch failed", zap.String("endpoint", string(ep)), zap.String("column", col), zap.Error(err))
		}
	}
}
