package membership

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/gossip"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
)

func newTestController(t *testing.T, self ring.Endpoint, tm *ring.TokenMetadata, rf int) *RingController {
	t.Helper()
	strategies := map[ring.Table]replication.Strategy{
		"t": replication.NewSimple(tm, map[ring.Table]int{"t": rf}),
	}
	return New(self, tm, strategies, partition.NewOrderPreserving(), zap.NewNop())
}

func TestBootstrapThenNormalTransitionsPendingRanges(t *testing.T) {
	// S6: endpoint E gossips BOOT,t, then NORMAL,t. After the
	// first transition E must appear as a bootstrap token with pending
	// ranges routed to it; after the second, E owns the token as a
	// normal replica and no longer appears in pending ranges.
	tm := ring.New()
	tm.UpdateNormalToken("10", "R1")
	tm.UpdateNormalToken("50", "R2")
	tm.UpdateNormalToken("90", "R3")

	c := newTestController(t, "R1", tm, 3)

	c.OnStateChange(gossip.StateChange{Endpoint: "E", Value: "BOOT,30", Generation: 1})

	ep, ok := tm.BootstrapEndpoint("30")
	require.True(t, ok)
	require.Equal(t, ring.Endpoint("E"), ep)
	require.NotEmpty(t, tm.GetPendingRanges("t", "E"))

	c.OnStateChange(gossip.StateChange{Endpoint: "E", Value: "NORMAL,30", Generation: 1})

	normalTok, ok := tm.TokenFor("E")
	require.True(t, ok)
	require.Equal(t, partition.Token("30"), normalTok)

	_, stillBootstrapping := tm.BootstrapEndpoint("30")
	require.False(t, stillBootstrapping)
	require.Empty(t, tm.GetPendingRanges("t", "E"))
}

func TestNormalTokenCollisionResolvedByLargerGeneration(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("10", "R1")

	c := newTestController(t, "R1", tm, 1)

	c.OnStateChange(gossip.StateChange{Endpoint: "A", Value: "NORMAL,50", Generation: 5})
	holder, ok := tm.EndpointFor("50")
	require.True(t, ok)
	require.Equal(t, ring.Endpoint("A"), holder)

	// B claims the same token with a smaller generation: A keeps it.
	c.OnStateChange(gossip.StateChange{Endpoint: "B", Value: "NORMAL,50", Generation: 3})
	holder, ok = tm.EndpointFor("50")
	require.True(t, ok)
	require.Equal(t, ring.Endpoint("A"), holder)

	// C claims it with a larger generation: C wins.
	c.OnStateChange(gossip.StateChange{Endpoint: "C", Value: "NORMAL,50", Generation: 9})
	holder, ok = tm.EndpointFor("50")
	require.True(t, ok)
	require.Equal(t, ring.Endpoint("C"), holder)
}

func TestLeavingEndpointRemovedOnLeft(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("10", "R1")
	tm.UpdateNormalToken("50", "R2")
	tm.UpdateNormalToken("90", "R3")

	c := newTestController(t, "R1", tm, 3)

	c.OnStateChange(gossip.StateChange{Endpoint: "R2", Value: "LEAVING,50", Generation: 1})
	require.True(t, tm.IsLeaving("R2"))

	c.OnStateChange(gossip.StateChange{Endpoint: "R2", Value: "LEFT,50", Generation: 1})
	require.False(t, tm.IsLeaving("R2"))
	_, ok := tm.TokenFor("R2")
	require.False(t, ok)
}

func TestRemoveTokenMarksDeadEndpointLeaving(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("10", "R1")
	tm.UpdateNormalToken("50", "R2")
	tm.UpdateNormalToken("90", "R3")

	c := newTestController(t, "R1", tm, 3)

	// R1 gossips that it is evicting R2's token on R2's behalf.
	c.OnStateChange(gossip.StateChange{Endpoint: "R1", Value: "NORMAL,10,remove,50", Generation: 1})

	require.True(t, tm.IsLeaving("R2"))
}
