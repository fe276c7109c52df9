package read

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/consistency"
	"github.com/ringdb/ringdb/internal/datanode"
	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/routing"
	"github.com/ringdb/ringdb/internal/snitch"
	"github.com/ringdb/ringdb/internal/transport"
)

// fakeTransport dispatches directly to an in-process handler per
// endpoint, skipping grpc entirely, so the coordinator can be exercised
// without a network.
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
	tm     *ring.TokenMetadata
	tr     *fakeTransport
	stores map[ring.Endpoint]*localstore.Memory
	fd     *failuredetector.Heartbeat
	router *routing.Router
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
	sn := snitch.NewStatic(nil, nil)
	router := routing.New(partition.NewOrderPreserving(), strategy, tm, fd)
	coord := New(router, tr, sn, endpoints[0], time.Second, logger)

	return &testCluster{tm: tm, tr: tr, stores: stores, fd: fd, router: router, coord: coord}
}

func TestReadRepairScenario(t *testing.T) {
	// S3: RF=3, three replicas respond with columns
	// {c1:t=10}, {c1:t=10, c2:t=5}, {c1:t=10}; resolve should produce
	// {c1:t=10, c2:t=5} and repair replicas 1 and 3.
	endpoints := []ring.Endpoint{"R1", "R2", "R3"}
	cl := newTestCluster(t, endpoints, 3)
	ctx := context.Background()

	seed := func(ep ring.Endpoint, cols map[string]localstore.Mutation) {
		for _, m := range cols {
			if err := cl.stores[ep].Apply(ctx, m); err != nil {
				t.Fatal(err)
			}
		}
	}

	seed("R1", map[string]localstore.Mutation{
		"c1": {Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10},
	})
	seed("R2", map[string]localstore.Mutation{
		"c1": {Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10},
		"c2": {Table: "t", Key: "k", Column: "c2", Value: []byte("v2"), Timestamp: 5},
	})
	seed("R3", map[string]localstore.Mutation{
		"c1": {Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10},
	})

	result, err := cl.coord.Read(ctx, "t", "k", consistency.Quorum)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Found {
		t.Fatal("expected row to be found")
	}
	if len(result.Version.Columns) != 2 {
		t.Fatalf("want 2 resolved columns, got %d: %v", len(result.Version.Columns), result.Version.Columns)
	}

	// Repairs are fire-and-forget goroutines; give them a moment.
	time.Sleep(50 * time.Millisecond)

	v1, _ := cl.stores["R1"].Read(ctx, "t", "k")
	if _, ok := v1.Columns["c2"]; !ok {
		t.Fatal("expected R1 to be repaired with c2")
	}
	v3, _ := cl.stores["R3"].Read(ctx, "t", "k")
	if _, ok := v3.Columns["c2"]; !ok {
		t.Fatal("expected R3 to be repaired with c2")
	}
}

func TestUnavailableWhenTooFewAlive(t *testing.T) {
	endpoints := []ring.Endpoint{"R1", "R2", "R3"}
	cl := newTestCluster(t, endpoints, 3)
	cl.fd.MarkDead("R2")
	cl.fd.MarkDead("R3")

	_, err := cl.coord.Read(context.Background(), "t", "k", consistency.Quorum)
	if err == nil {
		t.Fatal("expected Unavailable error")
	}
}

func TestDigestMismatchRecoveredBySecondPass(t *testing.T) {
	// S4: one data reply D, one digest reply Y != h(D). R2 holds an older
	// value for c1, so whichever replica answers with a digest disagrees
	// with the data reply and the first pass raises a mismatch internally;
	// the second, full-data pass merges both versions and the newer value
	// (v1, timestamp 10) wins.
	endpoints := []ring.Endpoint{"R1", "R2"}
	cl := newTestCluster(t, endpoints, 2)
	ctx := context.Background()

	if err := cl.stores["R1"].Apply(ctx, localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v1"), Timestamp: 10}); err != nil {
		t.Fatal(err)
	}
	if err := cl.stores["R2"].Apply(ctx, localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v0"), Timestamp: 5}); err != nil {
		t.Fatal(err)
	}

	result, err := cl.coord.Read(ctx, "t", "k", consistency.All)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Found || string(result.Version.Columns["c1"].Value) != "v1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestResolveDetectsDigestMismatch(t *testing.T) {
	c := &Coordinator{logger: zap.NewNop()}

	dataVersion := localstore.Version{Columns: map[string]localstore.Mutation{
		"c1": {Column: "c1", Value: []byte("v1"), Timestamp: 10},
	}}

	replies := []reply{
		{endpoint: "R1", data: true, version: dataVersion},
		{endpoint: "R2", data: false, digest: []byte("not-the-real-digest")},
	}

	_, mismatch := c.resolve(replies)
	if !mismatch {
		t.Fatal("expected digest mismatch to be detected")
	}
}

func TestResolveAgreesOnMatchingDigest(t *testing.T) {
	c := &Coordinator{logger: zap.NewNop()}

	dataVersion := localstore.Version{Columns: map[string]localstore.Mutation{
		"c1": {Column: "c1", Value: []byte("v1"), Timestamp: 10},
	}}

	replies := []reply{
		{endpoint: "R1", data: true, version: dataVersion},
		{endpoint: "R2", data: false, digest: dataVersion.Digest()},
	}

	resolved, mismatch := c.resolve(replies)
	if mismatch {
		t.Fatal("did not expect a mismatch")
	}
	if string(resolved.Columns["c1"].Value) != "v1" {
		t.Fatalf("unexpected resolved row: %+v", resolved)
	}
}
