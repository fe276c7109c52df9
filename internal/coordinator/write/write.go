// Package write implements the per-key write coordinator: mutation
// serialization, natural+pending endpoint dispatch, liveness-gated
// send-or-hint, and quorum blocking.
//
// See coordinator/internal/service/coordinator_service_v2.go's
// writeToReplicasWithHints for the parallel-dispatch-with-hint-on-failure
// shape this generalizes from a per-node hint call keyed by tenant/key to
// the Hint store's own Mutation-addressed queue.
package write

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ringdb/ringdb/internal/consistency"
	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/hints"
	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/ringerr"
	"github.com/ringdb/ringdb/internal/routing"
	"github.com/ringdb/ringdb/internal/transport"
	"github.com/ringdb/ringdb/internal/wire"
)

// Result reports how a mutation fared across the replica set.
type Result struct {
	AckCount  int
	HintCount int
	Endpoints []ring.Endpoint
}

// Coordinator resolves the replica set for a mutation's key and drives
// the quorum-or-hint write path.
type Coordinator struct {
	router     *routing.Router
	transport  transport.Transport
	hints      hints.Store
	detector   failuredetector.FailureDetector
	writeDead  time.Duration
	logger     *zap.Logger
	idempotent *idempotencyCache
}

// New constructs a write Coordinator.
func New(router *routing.Router, tr transport.Transport, hintStore hints.Store, fd failuredetector.FailureDetector, writeDeadline time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		router:     router,
		transport:  tr,
		hints:      hintStore,
		detector:   fd,
		writeDead:  writeDeadline,
		logger:     logger,
		idempotent: newIdempotencyCache(),
	}
}

// Write serializes mut once and dispatches it to every natural and
// pending endpoint for (mut.Table, mut.Key), storing a hint for any
// endpoint that is down or that fails to ack, and blocking for
// blockFor(level) acknowledgements before returning.
//
// idempotencyKey, when non-empty, short-circuits to the last recorded
// Result for the same key instead of re-dispatching — a write retried
// after a client-side timeout must not double-apply side effects beyond
// what the underlying LocalStore.Apply already tolerates by timestamp.
func (c *Coordinator) Write(ctx context.Context, mut localstore.Mutation, level consistency.Level, idempotencyKey string) (Result, error) {
	if idempotencyKey != "" {
		if cached, ok := c.idempotent.get(idempotencyKey); ok {
			return cached, nil
		}
	}

	plan, err := c.router.Resolve(ring.Table(mut.Table), []byte(mut.Key))
	if err != nil {
		return Result{}, err
	}

	blockFor := consistency.BlockFor(level, plan.TotalTarget)
	targets := mergeEndpoints(plan.Natural, plan.Pending)
	if len(targets) == 0 {
		return Result{}, ringerr.Unavailable("write %s/%s: no replicas own this key", mut.Table, mut.Key)
	}

	body, err := wire.Encode(wire.MutationRequest{Mutation: mut})
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeDead)
	defer cancel()

	var mu sync.Mutex
	acked := make([]ring.Endpoint, 0, len(targets))
	hinted := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range targets {
		ep := ep
		g.Go(func() error {
			if !c.detector.IsAlive(ep) {
				c.hints.StoreHint(ep, mut)
				mu.Lock()
				hinted++
				mu.Unlock()
				return nil
			}

			ok, err := c.sendOne(gctx, ep, body)
			if err != nil || !ok {
				c.logger.Warn("write failed, storing hint", zap.String("endpoint", string(ep)), zap.Error(err))
				c.hints.StoreHint(ep, mut)
				mu.Lock()
				hinted++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			acked = append(acked, ep)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := Result{AckCount: len(acked), HintCount: hinted, Endpoints: acked}
	if len(acked) < blockFor {
		if ctx.Err() != nil {
			return Result{}, ringerr.Timeout("write %s/%s: only %d/%d replicas acked before deadline", mut.Table, mut.Key, len(acked), blockFor)
		}
		return Result{}, ringerr.Unavailable("write %s/%s: only %d/%d replicas acked", mut.Table, mut.Key, len(acked), blockFor)
	}

	if idempotencyKey != "" {
		c.idempotent.put(idempotencyKey, result)
	}
	return result, nil
}

func (c *Coordinator) sendOne(ctx context.Context, ep ring.Endpoint, body []byte) (bool, error) {
	resp, err := c.transport.SendRR(ctx, ep, transport.Message{Verb: transport.VerbMutation, Body: body}, c.writeDead)
	if err != nil {
		return false, err
	}
	var ack wire.MutationAck
	if err := wire.Decode(resp.Body, &ack); err != nil {
		return false, err
	}
	return ack.Success, nil
}

// mergeEndpoints returns natural followed by any pending endpoint not
// already present, de-duplicated.
func mergeEndpoints(natural, pending []ring.Endpoint) []ring.Endpoint {
	seen := make(map[ring.Endpoint]bool, len(natural)+len(pending))
	out := make([]ring.Endpoint, 0, len(natural)+len(pending))
	for _, ep := range natural {
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	for _, ep := range pending {
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	return out
}
