package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/ringerr"
)

const serviceName = "ringdb.Transport"

// envelope is the wire struct carried through the gob codec for both
// SendOneWay and SendRR.
type envelope struct {
	Verb int32
	From string
	Body []byte
}

func toEnvelope(m Message) *envelope {
	return &envelope{Verb: int32(m.Verb), From: string(m.From), Body: m.Body}
}

func fromEnvelope(e *envelope) Message {
	return Message{Verb: Verb(e.Verb), From: ring.Endpoint(e.From), Body: e.Body}
}

// Handler processes an inbound message and optionally returns a reply
// (for SendRR); SendOneWay deliveries ignore the return value.
type Handler func(ctx context.Context, from ring.Endpoint, msg Message) (Message, error)

// GRPCTransport implements Transport over grpc.ClientConn, one connection
// per destination endpoint, cached in a map, following the
// StorageNodeClient/StorageClient connection-caching pattern.
type GRPCTransport struct {
	mu      sync.Mutex
	conns   map[ring.Endpoint]*grpc.ClientConn
	self    ring.Endpoint
	logger  *zap.Logger
	handler Handler
}

// NewGRPCTransport constructs a transport identifying outbound messages
// as coming from self.
func NewGRPCTransport(self ring.Endpoint, logger *zap.Logger) *GRPCTransport {
	return &GRPCTransport{
		conns:  make(map[ring.Endpoint]*grpc.ClientConn),
		self:   self,
		logger: logger,
	}
}

// SetHandler registers the inbound-message callback used by the server
// side (ServiceDesc) returned from NewServiceDesc.
func (t *GRPCTransport) SetHandler(h Handler) { t.handler = h }

func (t *GRPCTransport) connFor(dest ring.Endpoint) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[dest]; ok {
		return c, nil
	}

	c, err := grpc.NewClient(string(dest),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodecName)),
	)
	if err != nil {
		return nil, ringerr.Transport(err, "dial %s", dest)
	}
	t.conns[dest] = c
	return c, nil
}

func (t *GRPCTransport) SendOneWay(ctx context.Context, dest ring.Endpoint, msg Message) error {
	msg.From = t.self
	conn, err := t.connFor(dest)
	if err != nil {
		return err
	}

	req := toEnvelope(msg)
	reply := new(envelope)
	err = conn.Invoke(ctx, fmt.Sprintf("/%s/Deliver", serviceName), req, reply)
	if err != nil {
		return ringerr.Transport(err, "send one-way %s to %s", msg.Verb, dest)
	}
	return nil
}

func (t *GRPCTransport) SendRR(ctx context.Context, dest ring.Endpoint, msg Message, timeout time.Duration) (Message, error) {
	msg.From = t.self
	conn, err := t.connFor(dest)
	if err != nil {
		return Message{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := toEnvelope(msg)
	reply := new(envelope)
	if err := conn.Invoke(callCtx, fmt.Sprintf("/%s/DeliverRR", serviceName), req, reply); err != nil {
		if callCtx.Err() != nil {
			return Message{}, ringerr.Timeout("waiting for reply to %s from %s", msg.Verb, dest)
		}
		return Message{}, ringerr.Transport(err, "send RR %s to %s", msg.Verb, dest)
	}
	return fromEnvelope(reply), nil
}

// Close tears down all cached connections.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ep, c := range t.conns {
		if err := c.Close(); err != nil {
			t.logger.Warn("failed to close connection", zap.String("endpoint", string(ep)), zap.Error(err))
		}
	}
	t.conns = make(map[ring.Endpoint]*grpc.ClientConn)
	return nil
}

// deliverOneWay is the server-side unary handler for "/ringdb.Transport/Deliver".
func (t *GRPCTransport) deliverOneWay(ctx context.Context, req interface{}) (interface{}, error) {
	in := req.(*envelope)
	msg := fromEnvelope(in)
	if t.handler != nil {
		go func() {
			if _, err := t.handler(ctx, msg.From, msg); err != nil {
				t.logger.Warn("one-way handler error", zap.String("verb", msg.Verb.String()), zap.Error(err))
			}
		}()
	}
	return new(envelope), nil
}

// deliverRR is the server-side unary handler for "/ringdb.Transport/DeliverRR".
func (t *GRPCTransport) deliverRR(ctx context.Context, req interface{}) (interface{}, error) {
	in := req.(*envelope)
	msg := fromEnvelope(in)
	if t.handler == nil {
		return new(envelope), nil
	}
	reply, err := t.handler(ctx, msg.From, msg)
	if err != nil {
		return nil, err
	}
	return toEnvelope(reply), nil
}

// NewServiceDesc returns a hand-written grpc.ServiceDesc (no protoc
// step) binding the two unary methods this transport exposes.
func (t *GRPCTransport) NewServiceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*GRPCTransport)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Deliver",
				Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
					in := new(envelope)
					if err := dec(in); err != nil {
						return nil, err
					}
					return srv.(*GRPCTransport).deliverOneWay(ctx, in)
				},
			},
			{
				MethodName: "DeliverRR",
				Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
					in := new(envelope)
					if err := dec(in); err != nil {
						return nil, err
					}
					return srv.(*GRPCTransport).deliverRR(ctx, in)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "internal/transport/grpc.go",
	}
}
