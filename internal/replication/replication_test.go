package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/snitch"
)

const table ring.Table = "ks1"

func TestS1RingTwoTokens(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("0000", "A")
	tm.UpdateNormalToken("8000", "B")

	strat := NewSimple(tm, map[ring.Table]int{table: 2})

	// FirstToken picks the smallest sorted token >= the key, wrapping at
	// the end: "0001" lands on "8000" (B), "8001" wraps to "0000" (A).
	eps, err := strat.GetNaturalEndpoints("0001", table)
	require.NoError(t, err)
	assert.Equal(t, []ring.Endpoint{"B", "A"}, eps)

	eps, err = strat.GetNaturalEndpoints("8001", table)
	require.NoError(t, err)
	assert.Equal(t, []ring.Endpoint{"A", "B"}, eps)
}

func TestS2RackAwarePlacement(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("00", "X1")
	tm.UpdateNormalToken("2a", "Y1")
	tm.UpdateNormalToken("55", "Z1")
	tm.UpdateNormalToken("80", "X2")
	tm.UpdateNormalToken("aa", "Y2")
	tm.UpdateNormalToken("d5", "Z2")

	racks := map[ring.Endpoint]string{
		"X1": "RACK1", "X2": "RACK1",
		"Y1": "RACK2", "Y2": "RACK2",
		"Z1": "RACK3", "Z2": "RACK3",
	}
	sn := snitch.NewStatic(racks, nil)
	strat := NewRackAwareOdklEven(tm, sn, map[ring.Table]int{table: 3})

	eps, err := strat.GetNaturalEndpoints("16", table)
	require.NoError(t, err)
	require.Len(t, eps, 3)

	seenRacks := map[string]bool{}
	for _, ep := range eps {
		seenRacks[racks[ep]] = true
	}
	assert.Len(t, seenRacks, 3, "expected 3 distinct racks, got endpoints %v", eps)
}

func TestRackAwareRequiresRacksEqualRF(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("00", "A")
	tm.UpdateNormalToken("80", "B")

	racks := map[ring.Endpoint]string{"A": "RACK1", "B": "RACK1"}
	sn := snitch.NewStatic(racks, nil)
	strat := NewRackAwareOdklEven(tm, sn, map[ring.Table]int{table: 3})

	_, err := strat.GetNaturalEndpoints("10", table)
	assert.Error(t, err)
}

func TestInvariantAllNaturalEndpointsDistinct(t *testing.T) {
	tm := ring.New()
	for _, pair := range []struct{ tok partition.Token; ep ring.Endpoint }{
		{"10", "A"}, {"30", "B"}, {"50", "C"}, {"70", "D"}, {"90", "E"},
	} {
		tm.UpdateNormalToken(pair.tok, pair.ep)
	}
	strat := NewSimple(tm, map[ring.Table]int{table: 3})

	eps, err := strat.GetNaturalEndpoints("20", table)
	require.NoError(t, err)
	assert.Len(t, eps, 3)
	seen := map[ring.Endpoint]bool{}
	for _, ep := range eps {
		assert.False(t, seen[ep], "duplicate endpoint %s", ep)
		seen[ep] = true
	}
}

func TestClearEndpointCacheInvalidatesMemo(t *testing.T) {
	tm := ring.New()
	tm.UpdateNormalToken("00", "A")
	strat := NewSimple(tm, map[ring.Table]int{table: 1})

	eps1, _ := strat.GetNaturalEndpoints("10", table)
	assert.Equal(t, []ring.Endpoint{"A"}, eps1)

	tm.UpdateNormalToken("15", "B")
	strat.ClearEndpointCache()

	eps2, _ := strat.GetNaturalEndpoints("10", table)
	assert.Equal(t, []ring.Endpoint{"B"}, eps2)
}

func TestFailoverIndexDistinctAcrossTries(t *testing.T) {
	seen := map[int]bool{}
	for tryCount := 0; tryCount < 4; tryCount++ {
		idx := FailoverIndex(0, tryCount, 0x2a, 5)
		seen[idx] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}
