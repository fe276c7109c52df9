package bitset

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetClear(t *testing.T) {
	b := New(10000)
	require.False(t, b.Get(42))
	b.Set(42)
	assert.True(t, b.Get(42))
	b.Clear(42)
	assert.False(t, b.Get(42))
}

func TestFlip(t *testing.T) {
	b := New(100)
	b.Flip(7)
	assert.True(t, b.Get(7))
	b.Flip(7)
	assert.False(t, b.Get(7))
}

func TestCardinalityMatchesDistinctSetIndices(t *testing.T) {
	b := New(1000)
	indices := []int64{1, 2, 3, 500, 999, 2}
	seen := map[int64]bool{}
	for _, i := range indices {
		b.Set(i)
		seen[i] = true
	}
	assert.EqualValues(t, len(seen), b.Cardinality())
}

func TestNextSetBit(t *testing.T) {
	b := New(500)
	b.Set(10)
	b.Set(300)
	assert.EqualValues(t, 10, b.NextSetBit(0))
	assert.EqualValues(t, 300, b.NextSetBit(11))
	assert.EqualValues(t, -1, b.NextSetBit(301))
}

func TestRangeOpsStaySinglePage(t *testing.T) {
	b := New(minPageSize * 64)
	b.SetRange(0, 128)
	for i := int64(0); i < 128; i++ {
		assert.True(t, b.Get(i))
	}
	b.ClearRange(0, 64)
	for i := int64(0); i < 64; i++ {
		assert.False(t, b.Get(i))
	}
	for i := int64(64); i < 128; i++ {
		assert.True(t, b.Get(i))
	}
}

func TestIntersect(t *testing.T) {
	a := New(1000)
	b := New(1000)
	a.Set(5)
	assert.False(t, a.Intersect(b))
	b.Set(5)
	assert.True(t, a.Intersect(b))
}

func TestEqualAndHash(t *testing.T) {
	a := New(1000)
	b := New(1000)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())

	a.Set(99)
	assert.False(t, a.Equal(b))
}

func TestSerializationRoundTrip(t *testing.T) {
	b := New(2000)
	b.Set(3)
	b.Set(17)
	b.Set(1999)

	var buf bytes.Buffer
	require.NoError(t, b.WriteTo(&buf, 4))

	back, hashCount, err := ReadFrom(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 4, hashCount)
	assert.True(t, back.Get(3))
	assert.True(t, back.Get(17))
	assert.True(t, back.Get(1999))
	assert.False(t, back.Get(4))
}

func TestMinimumPageSize(t *testing.T) {
	b := New(1)
	assert.GreaterOrEqual(t, b.pageSize, minPageSize)
}
