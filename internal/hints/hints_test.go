package hints

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/ring"
)

func TestMemoryStoreHintAssignsIncreasingSequence(t *testing.T) {
	m := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v"), Timestamp: 1}

	h1 := m.StoreHint("C", mut)
	h2 := m.StoreHint("C", mut)

	require.Less(t, h1.Sequence, h2.Sequence)
	require.Equal(t, 2, m.GetHintCount("C"))
	require.Equal(t, 2, m.GetTotalHintCount())
}

func TestMemoryDeleteHintRemovesOnlyThatSequence(t *testing.T) {
	m := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v"), Timestamp: 1}

	h1 := m.StoreHint("C", mut)
	h2 := m.StoreHint("C", mut)

	require.NoError(t, m.DeleteHint("C", h1.Sequence))
	remaining := m.GetHintsForEndpoint("C")
	require.Len(t, remaining, 1)
	require.Equal(t, h2.Sequence, remaining[0].Sequence)
}

func TestMemoryDeleteHintsForEndpointClearsQueue(t *testing.T) {
	m := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v"), Timestamp: 1}
	m.StoreHint("C", mut)
	m.StoreHint("C", mut)

	require.NoError(t, m.DeleteHintsForEndpoint("C"))
	require.Equal(t, 0, m.GetHintCount("C"))
	require.Empty(t, m.ListEndpointsWithHints())
}

func TestMemoryListEndpointsWithHintsOmitsEmpty(t *testing.T) {
	m := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v"), Timestamp: 1}

	h := m.StoreHint("C", mut)
	m.StoreHint("D", mut)
	require.NoError(t, m.DeleteHint("C", h.Sequence))

	eps := m.ListEndpointsWithHints()
	require.Equal(t, []ring.Endpoint{"D"}, eps)
}

func TestMemoryCleanupExpiredRemovesOldHints(t *testing.T) {
	m := NewMemory()
	mut := localstore.Mutation{Table: "t", Key: "k", Column: "c1", Value: []byte("v"), Timestamp: 1}

	h := m.StoreHint("C", mut)
	// Backdate the stored hint past the cutoff.
	hints := m.byNode["C"]
	hints[0].CreatedAt = time.Now().Add(-time.Hour)
	m.byNode["C"] = hints

	removed := m.CleanupExpired(time.Minute)
	require.Equal(t, 1, removed)
	require.Equal(t, 0, m.GetHintCount("C"))
	_ = h
}
