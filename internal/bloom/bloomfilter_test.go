package bloom

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddContains(t *testing.T) {
	f := NewByBucketsPerElement(1000, 15)
	f.Add("hello")
	assert.True(t, f.Contains("hello"))
}

func TestFalsePositiveRateBound(t *testing.T) {
	const n = 100000
	f := NewByFalsePositiveRate(n, 0.01)
	for i := 0; i < n; i++ {
		f.Add(fmt.Sprintf("key-%d", i))
	}

	falsePositives := 0
	trials := 10000
	for i := 0; i < trials; i++ {
		k := fmt.Sprintf("absent-%d", i)
		if f.Contains(k) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	assert.LessOrEqual(t, rate, 0.011, "false positive rate %.4f exceeds 1.1x bound", rate)
}

func TestAlwaysMatching(t *testing.T) {
	f := AlwaysMatching()
	assert.True(t, f.Contains("anything"))
	assert.True(t, f.Contains(""))
}

func TestSerializationRoundTrip(t *testing.T) {
	f := NewByBucketsPerElement(100, 10)
	f.Add("alpha")
	f.Add("beta")

	var buf bytes.Buffer
	require.NoError(t, f.WriteTo(&buf))

	back, err := ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.HashCount(), back.HashCount())
	assert.True(t, back.Contains("alpha"))
	assert.True(t, back.Contains("beta"))
}

func TestHashCountAtLeastOne(t *testing.T) {
	f := NewByBucketsPerElement(10, 0)
	assert.GreaterOrEqual(t, f.HashCount(), 1)
}
