// Package datanode implements the server side of the data path: a
// transport.Handler that answers VerbRead, VerbMutation, and
// VerbReadRepair messages against a local LocalStore collaborator.
//
// See storage-node/internal/service/commitlog_service.go and
// storage-node/internal/storage/memtable for the apply-then-ack shape
// this generalizes from the storage node's own RPC surface to the
// Transport.Handler signature the coordinators dial into.
package datanode

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/transport"
	"github.com/ringdb/ringdb/internal/wire"
)

// Handler answers inbound data-path messages using a LocalStore.
type Handler struct {
	store  localstore.LocalStore
	logger *zap.Logger
}

// New constructs a data-path handler over store.
func New(store localstore.LocalStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Handle implements transport.Handler, dispatching by verb.
func (h *Handler) Handle(ctx context.Context, from ring.Endpoint, msg transport.Message) (transport.Message, error) {
	switch msg.Verb {
	case transport.VerbRead:
		return h.handleRead(ctx, msg)
	case transport.VerbMutation:
		return h.handleMutation(ctx, msg)
	case transport.VerbReadRepair:
		// Fire-and-forget: apply and discard any error upward, logging
		// instead, per the read coordinator's "never block on repairs"
		// contract.
		if _, err := h.handleMutation(ctx, msg); err != nil {
			h.logger.Warn("read repair apply failed", zap.String("from", string(from)), zap.Error(err))
		}
		return transport.Message{}, nil
	default:
		return transport.Message{}, fmt.Errorf("datanode: unsupported verb %s", msg.Verb)
	}
}

func (h *Handler) handleRead(ctx context.Context, msg transport.Message) (transport.Message, error) {
	var req wire.ReadRequest
	if err := wire.Decode(msg.Body, &req); err != nil {
		return transport.Message{}, err
	}

	version, err := h.store.Read(ctx, req.Table, req.Key)
	if err != nil {
		return transport.Message{}, err
	}

	reply := wire.ReadReply{Found: !version.IsEmpty(), DigestOnly: req.DigestOnly}
	if req.DigestOnly {
		reply.Digest = version.Digest()
	} else {
		reply.Columns = version.Columns
	}

	body, err := wire.Encode(reply)
	if err != nil {
		return transport.Message{}, err
	}
	return transport.Message{Verb: transport.VerbReadResponse, Body: body}, nil
}

func (h *Handler) handleMutation(ctx context.Context, msg transport.Message) (transport.Message, error) {
	var req wire.MutationRequest
	if err := wire.Decode(msg.Body, &req); err != nil {
		return transport.Message{}, err
	}

	ack := wire.MutationAck{Success: true}
	if err := h.store.Apply(ctx, req.Mutation); err != nil {
		ack.Success = false
		ack.Error = err.Error()
	}

	body, err := wire.Encode(ack)
	if err != nil {
		return transport.Message{}, err
	}
	return transport.Message{Verb: transport.VerbMutation, Body: body}, nil
}
