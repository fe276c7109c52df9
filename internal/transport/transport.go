// Package transport defines the wire-message abstraction used by the
// Transport external collaborator (Transport.sendOneWay/sendRR) plus a
// grpc-backed implementation.
//
// See coordinator/internal/client/storagenode_client.go
// and storage_client.go: one grpc.ClientConn per destination endpoint,
// cached in a map, with a configurable per-call timeout.
package transport

import (
	"context"
	"time"

	"github.com/ringdb/ringdb/internal/ring"
)

// Verb enumerates the wire message types. New verbs must be appended
// to preserve wire-ordinal compatibility.
type Verb int

const (
	VerbMutation Verb = iota
	VerbBinary
	VerbReadRepair
	VerbRead
	VerbReadResponse
	VerbStreamInitiate
	VerbStreamInitiateDone
	VerbStreamFinished
	VerbStreamRequest
	VerbRangeSlice
	VerbBootstrapToken
	VerbTreeRequest
	VerbTreeResponse
	VerbJoin
	VerbGossipDigestSyn
	VerbGossipDigestAck
	VerbGossipDigestAck2
)

func (v Verb) String() string {
	names := [...]string{
		"MUTATION", "BINARY", "READ_REPAIR", "READ", "READ_RESPONSE",
		"STREAM_INITIATE", "STREAM_INITIATE_DONE", "STREAM_FINISHED",
		"STREAM_REQUEST", "RANGE_SLICE", "BOOTSTRAP_TOKEN", "TREE_REQUEST",
		"TREE_RESPONSE", "JOIN", "GOSSIP_DIGEST_SYN", "GOSSIP_DIGEST_ACK",
		"GOSSIP_DIGEST_ACK2",
	}
	if int(v) < 0 || int(v) >= len(names) {
		return "UNKNOWN_VERB"
	}
	return names[v]
}

// Message is a (verb, from, body) wire envelope.
type Message struct {
	Verb Verb
	From ring.Endpoint
	Body []byte
}

// Transport sends one-way (fire-and-forget) and request/response
// messages to a destination endpoint.
type Transport interface {
	// SendOneWay dispatches msg to dest without waiting for a reply;
	// used for read repair and hint replay acks-not-required paths.
	SendOneWay(ctx context.Context, dest ring.Endpoint, msg Message) error

	// SendRR dispatches msg to dest and blocks for a reply or ctx's
	// deadline.
	SendRR(ctx context.Context, dest ring.Endpoint, msg Message, timeout time.Duration) (Message, error)
}
