package hints

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/ring"
)

// Replayer drains an endpoint's hint queue as soon as it is reported
// alive, using a single-flight task per endpoint so at most one delivery
// loop ever runs concurrently for a given destination.
type Replayer struct {
	store      Store
	sender     Sender
	detector   failuredetector.FailureDetector
	rpcTimeout time.Duration
	throttle   time.Duration
	group      singleflight.Group
	logger     *zap.Logger
}

// NewReplayer constructs a Replayer. throttle may be zero to disable the
// optional inter-hint sleep (hinted_handoff_throttle).
func NewReplayer(store Store, sender Sender, detector failuredetector.FailureDetector, rpcTimeout, throttle time.Duration, logger *zap.Logger) *Replayer {
	return &Replayer{store: store, sender: sender, detector: detector, rpcTimeout: rpcTimeout, throttle: throttle, logger: logger}
}

// NotifyAlive is called whenever the gossiper/failure detector reports ep
// alive; it triggers a single-flight drain of ep's hint queue and returns
// immediately. Safe to call repeatedly while a drain is already running.
func (r *Replayer) NotifyAlive(ep ring.Endpoint) {
	key := string(ep)
	r.group.DoChan(key, func() (interface{}, error) {
		r.drain(ep)
		return nil, nil
	})
}

// drain sends each queued hint in order, expecting one ack per mutation.
// On timeout it sleeps rpcTimeout and re-checks liveness before retrying
// the same hint; on success it removes the hint and moves to the next.
func (r *Replayer) drain(ep ring.Endpoint) {
	for {
		hints := r.store.GetHintsForEndpoint(ep)
		if len(hints) == 0 {
			return
		}

		h := hints[0]
		if !r.detector.IsAlive(ep) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.rpcTimeout)
		err := r.sender.SendHint(ctx, h)
		cancel()

		if err != nil {
			r.logger.Debug("hint replay failed", zap.String("endpoint", string(ep)), zap.Int64("sequence", h.Sequence), zap.Error(err))
			time.Sleep(r.rpcTimeout)
			if !r.detector.IsAlive(ep) {
				return
			}
			continue
		}

		if delErr := r.store.DeleteHint(ep, h.Sequence); delErr != nil {
			r.logger.Warn("failed to delete replayed hint", zap.String("endpoint", string(ep)), zap.Error(delErr))
		}
		if r.throttle > 0 {
			time.Sleep(r.throttle)
		}
	}
}
