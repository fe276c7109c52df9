package hints

import (
	"context"
	"fmt"
	"time"

	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/transport"
	"github.com/ringdb/ringdb/internal/wire"
)

// TransportSender delivers a hint's mutation over a Transport, matching
// the VerbMutation request/ack shape the write coordinator itself uses.
//
// See coordinator/internal/service/hintedhandoff_service.go's
// replayHint, generalized from a dedicated replay RPC to the same
// mutation-ack round trip normal writes use.
type TransportSender struct {
	transport transport.Transport
	timeout   time.Duration
}

// NewTransportSender constructs a Sender over tr; timeout bounds each
// per-hint round trip, matching the Replayer's rpcTimeout.
func NewTransportSender(tr transport.Transport, timeout time.Duration) *TransportSender {
	return &TransportSender{transport: tr, timeout: timeout}
}

func (s *TransportSender) SendHint(ctx context.Context, h Hint) error {
	body, err := wire.Encode(wire.MutationRequest{Mutation: h.Mutation})
	if err != nil {
		return err
	}

	resp, err := s.transport.SendRR(ctx, h.Endpoint, transport.Message{Verb: transport.VerbMutation, Body: body}, s.timeout)
	if err != nil {
		return err
	}

	var ack wire.MutationAck
	if err := wire.Decode(resp.Body, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return &hintRejected{endpoint: h.Endpoint, reason: ack.Error}
	}
	return nil
}

type hintRejected struct {
	endpoint ring.Endpoint
	reason   string
}

func (e *hintRejected) Error() string {
	return fmt.Sprintf("hint rejected by %s: %s", e.endpoint, e.reason)
}
