package write

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/consistency"
	"github.com/ringdb/ringdb/internal/datanode"
	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/hints"
	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/routing"
	"github.com/ringdb/ringdb/internal/transport"
)

type fakeTransport struct {
	handlers map[ring.Endpoint]transport.Handler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[ring.Endpoint]transport.Handler)}
}

func (f *fakeTransport) register(ep ring.Endpoint, h transport.Handler) {
	f.handlers[ep] = h
}

func (f *fakeTransport) SendOneWay(ctx context.Context, dest ring.Endpoint, msg transport.Message) error {
	h, ok := f.handlers[dest]
	if !ok {
		return nil
	}
	_, err := h(ctx, "", msg)
	return err
}

func (f *fakeTransport) SendRR(ctx context.Context, dest ring.Endpoint, msg transport.Message, timeout time.Duration) (transport.Message, error) {
	h, ok := f.handlers[dest]
	if !ok {
		return transport.Message{}, nil
	}
	return h(ctx, "", msg)
}

type testCluster struct {
	tr     *fakeTransport
	stores map[ring.Endpoint]*localstore.Memory
	fd     *failuredetector.Heartbeat
	hints  hints.Store
	coord  *Coordinator
}

func newTestCluster(t *testing.T, endpoints []ring.Endpoint, rf int) *testCluster {
	t.Helper()

	tm := ring.New()
	for i, ep := range endpoints {
		tm.UpdateNormalToken(partition.Token([]byte{byte(i * (256 / len(endpoints)))}), ep)
	}

	tr := newFakeTransport()
	stores := make(map[ring.Endpoint]*localstore.Memory)
	fd := failuredetector.NewHeartbeat(time.Minute)
	logger := zap.NewNop()

	for _, ep := range endpoints {
		store := localstore.NewMemory()
		stores[ep] = store
		tr.register(ep, datanode.New(store, logger).Handle)
		fd.UpdateTimestamp(ep)
	}

	strategy := replication.NewSimple(tm, map[ring.Table]int{"t": rf})
	router := routing.New(partition.NewOrderPreserving(), strategy, tm, fd)
	hintStore := hints.NewMemory()
	coord := New(router, tr, hintStore, fd, time.Second, logger)

	return &testCluster{tr: tr, stores: stores, fd: fd, hints: hintStore, coord: coord}
}

func TestWriteSucceedsAtQuorumWithAllReplicasUp(t *testing.T) {
	endpoints := []ring.Endpoint{"R1", "R2", "R3"}
	cl := newTestCluster(t, endpoints, 3)

	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	result, err := cl.coord.Write(context.Background(), mut, consistency.Quorum, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.AckCount, 2)
	require.Equal(t, 0, result.HintCount)
}

func TestHintedHandoffScenario(t *testing.T) {
	// S5: RF=3, one replica C marked down. Write succeeds at quorum with
	// a hint stored for C. C returns alive; within one hint-delivery
	// cycle C receives the mutation, and a subsequent read from C
	// returns the written value.
	endpoints := []ring.Endpoint{"R1", "R2", "C"}
	cl := newTestCluster(t, endpoints, 3)
	cl.fd.MarkDead("C")

	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	result, err := cl.coord.Write(context.Background(), mut, consistency.Quorum, "")
	require.NoError(t, err)
	require.Equal(t, 2, result.AckCount)
	require.Equal(t, 1, result.HintCount)
	require.Equal(t, 1, cl.hints.GetHintCount("C"))

	sender := hints.NewTransportSender(cl.tr, time.Second)
	replayer := hints.NewReplayer(cl.hints, sender, cl.fd, 50*time.Millisecond, 0, zap.NewNop())

	cl.fd.UpdateTimestamp("C")
	replayer.NotifyAlive("C")

	require.Eventually(t, func() bool {
		return cl.hints.GetHintCount("C") == 0
	}, time.Second, 5*time.Millisecond)

	version, err := cl.stores["C"].Read(context.Background(), "t", "k")
	require.NoError(t, err)
	require.Equal(t, "v1", string(version.Columns["c1"].Value))
}

func TestWriteUnavailableWhenTooFewReplicasAlive(t *testing.T) {
	endpoints := []ring.Endpoint{"R1", "R2", "R3"}
	cl := newTestCluster(t, endpoints, 3)
	cl.fd.MarkDead("R2")
	cl.fd.MarkDead("R3")

	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	_, err := cl.coord.Write(context.Background(), mut, consistency.Quorum, "")
	require.Error(t, err)
	require.Equal(t, 2, cl.hints.GetHintCount("R2")+cl.hints.GetHintCount("R3"))
}

func TestWriteIdempotencyKeyShortCircuitsRetry(t *testing.T) {
	endpoints := []ring.Endpoint{"R1", "R2", "R3"}
	cl := newTestCluster(t, endpoints, 3)

	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}
	first, err := cl.coord.Write(context.Background(), mut, consistency.Quorum, "idem-1")
	require.NoError(t, err)

	second, err := cl.coord.Write(context.Background(), mut, consistency.Quorum, "idem-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
}
