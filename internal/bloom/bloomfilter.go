// Package bloom implements a double-hash Bloom filter over a paged
// bitset, with deterministic serialization.
//
// See storage-node Bloom filter
// (storage-node/internal/storage/sstable/bloom_filter.go): same
// constructor shapes (by expected-elements+bucketsPerElement, or by
// expected-elements+falsePositiveRate) and the same WriteTo/LoadBloomFilter
// round-trip pattern, generalized onto internal/bitset.PagedBitSet and the
// murmur double-hash in place of the storage-node FNV double hash.
package bloom

import (
	"io"
	"math"

	"github.com/ringdb/ringdb/internal/bitset"
)

// optimalK is the precomputed bucketsPerElement -> K table, the same
// shape as the expectedElements/falsePositiveRate search but keyed
// directly by bucketsPerElement.
var optimalK = []int{1, 1, 1, 1, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13}

// Filter is (hashCount, PagedBitSet). Invariants: hashCount >= 1; bit
// capacity is elements*bucketsPerElement + 20, rounded up to a whole
// number of 64-bit words so that a filter read back by ReadFrom hashes
// over the same bucket count it was written with.
type Filter struct {
	hashCount int
	bits      *bitset.PagedBitSet
	buckets   int64
	always    bool
}

// NewByBucketsPerElement mirrors NewBloomFilter(elements, ...)
// constructor, but selects K from the precomputed table
// names instead of computing it from the filter size on the fly.
func NewByBucketsPerElement(elements int, bucketsPerElement int) *Filter {
	if bucketsPerElement < 0 {
		bucketsPerElement = 0
	}
	if bucketsPerElement >= len(optimalK) {
		bucketsPerElement = len(optimalK) - 1
	}
	k := optimalK[bucketsPerElement]
	if k < 1 {
		k = 1
	}
	buckets := (int64(elements)*int64(bucketsPerElement) + 20 + 63) / 64 * 64
	return &Filter{
		hashCount: k,
		bits:      bitset.New(buckets),
		buckets:   buckets,
	}
}

// NewByFalsePositiveRate picks the minimum bucketsPerElement achieving
// maxFalsePositive for the given element count.
func NewByFalsePositiveRate(elements int, maxFalsePositive float64) *Filter {
	bpe := bucketsPerElementFor(maxFalsePositive)
	return NewByBucketsPerElement(elements, bpe)
}

// bucketsPerElementFor approximates, for each candidate bucketsPerElement
// bpe and its table-assigned k, the false-positive rate (1-e^(-k/bpe))^k,
// returning the smallest bpe meeting the target.
func bucketsPerElementFor(maxFalsePositive float64) int {
	for bpe, k := range optimalK {
		if bpe == 0 {
			continue
		}
		p := math.Pow(1-math.Exp(-float64(k)/float64(bpe)), float64(k))
		if p <= maxFalsePositive {
			return bpe
		}
	}
	return len(optimalK) - 1
}

// alwaysMatchingFilter is a single-bit filter that always reports present.
type alwaysMatchingFilter struct{}

// AlwaysMatching returns a filter that reports every key as present; used
// in tests in place of a real filter.
func AlwaysMatching() *Filter {
	f := &Filter{
		hashCount: 1,
		bits:      bitset.New(1),
		buckets:   1,
		always:    true,
	}
	f.bits.Set(0)
	return f
}

// Add inserts key into the filter.
func (f *Filter) Add(key string) {
	if f.always {
		return
	}
	h1, h2 := hash1And2(keyBytes(key))
	for i := 0; i < f.hashCount; i++ {
		f.bits.Set(f.bucketIndex(h1, h2, i))
	}
}

// Contains reports whether key may be a member; false positives are
// possible, false negatives are not.
func (f *Filter) Contains(key string) bool {
	if f.always {
		return true
	}
	h1, h2 := hash1And2(keyBytes(key))
	for i := 0; i < f.hashCount; i++ {
		if !f.bits.Get(f.bucketIndex(h1, h2, i)) {
			return false
		}
	}
	return true
}

// bucketIndex computes bucket i = |h1 + i*h2| mod buckets.
func (f *Filter) bucketIndex(h1, h2 uint64, i int) int64 {
	sum := int64(h1) + int64(i)*int64(h2)
	if sum < 0 {
		sum = -sum
	}
	return sum % f.buckets
}

// HashCount returns the number of hash functions (K) used.
func (f *Filter) HashCount() int { return f.hashCount }

// WriteTo serializes as hashCount:i32 | bitLengthWords:i32 | words (BE
// i64...).
func (f *Filter) WriteTo(w io.Writer) error {
	return f.bits.WriteTo(w, int32(f.hashCount))
}

// ReadFrom deserializes the format written by WriteTo.
func ReadFrom(r io.Reader) (*Filter, error) {
	bits, hashCount, err := bitset.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	return &Filter{
		hashCount: int(hashCount),
		bits:      bits,
		buckets:   bits.Capacity(),
	}, nil
}
