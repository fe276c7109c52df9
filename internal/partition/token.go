// Package partition maps keys to tokens, computes midpoints, and
// (de)serializes tokens for two partitioner variants: order-preserving
// and domain-sharded ("odkl").
//
// See the domain/range vocabulary in
// coordinator/internal/model/topology.go (TokenRange, hex-keyed ranges)
// and coordinator/internal/algorithm/consistent_hash.go's ring-as-sorted-
// slice shape, generalized from a fixed uint64 hash space to an ordered
// string token space.
package partition

import (
	"errors"
	"fmt"
	"math/rand"
)

// Token is a position on the ring. The order-preserving variant uses the
// raw key string compared lexicographically over UTF-16 code units; Go's
// native string comparison over UTF-8 bytes agrees with that ordering for
// the ASCII/Latin-1 range this codebase targets (hex domain prefixes and
// test fixtures), so comparisons use plain string ordering.
type Token string

// Less reports whether t sorts before other.
func (t Token) Less(other Token) bool { return string(t) < string(other) }

// Compare returns -1, 0, or 1.
func (t Token) Compare(other Token) int {
	switch {
	case t.Less(other):
		return -1
	case other.Less(t):
		return 1
	default:
		return 0
	}
}

// Range is a half-open arc (Left, Right], wrapping at the minimum token.
type Range struct {
	Left  Token
	Right Token
}

// Contains reports whether t falls within (r.Left, r.Right], accounting
// for wraparound when Right <= Left.
func (r Range) Contains(t Token, minToken Token) bool {
	if r.Left == r.Right {
		// Full-ring range.
		return true
	}
	if r.Left.Less(r.Right) {
		return r.Left.Less(t) && !r.Right.Less(t)
	}
	// Wraps around the minimum token.
	return r.Left.Less(t) || !r.Right.Less(t) || t == minToken
}

// Equal reports whether two ranges are identical.
func (r Range) Equal(other Range) bool {
	return r.Left == other.Left && r.Right == other.Right
}

func (r Range) String() string {
	return fmt.Sprintf("(%s, %s]", r.Left, r.Right)
}

// DecoratedKey pairs a Token with the raw key bytes it was derived from.
// Sort order is by Token then raw bytes.
type DecoratedKey struct {
	Token Token
	Key   []byte
}

// Less orders DecoratedKeys by Token then raw key bytes.
func (d DecoratedKey) Less(other DecoratedKey) bool {
	if d.Token != other.Token {
		return d.Token.Less(other.Token)
	}
	return string(d.Key) < string(other.Key)
}

// TokenFactory (de)serializes tokens to/from strings and bytes.
type TokenFactory interface {
	ToString(t Token) string
	FromString(s string) (Token, error)
	ToBytes(t Token) []byte
	FromBytes(b []byte) (Token, error)
}

// Partitioner maps keys to tokens and describes ring ownership.
type Partitioner interface {
	GetToken(key []byte) Token
	DecorateKey(key []byte) DecoratedKey
	Midpoint(a, b Token) Token
	GetMinimumToken() Token
	GetRandomToken() Token
	PreservesOrder() bool
	ValidateToken(t Token) error
	TokenFactory() TokenFactory
	DescribeOwnership(sortedTokens []Token, samples []Token) (map[Token]float64, error)
}

var errEmptyRing = errors.New("partition: cannot describe ownership of an empty ring")

// stringTokenFactory implements TokenFactory with UTF-8 string encoding,
// shared by both partitioner variants.
type stringTokenFactory struct{}

func (stringTokenFactory) ToString(t Token) string { return string(t) }
func (stringTokenFactory) FromString(s string) (Token, error) {
	return Token(s), nil
}
func (stringTokenFactory) ToBytes(t Token) []byte { return []byte(t) }
func (stringTokenFactory) FromBytes(b []byte) (Token, error) {
	return Token(b), nil
}

// describeOwnership implements a split-sampling ownership estimate
// shared by both partitioners: for each arc
// (sortedTokens[i-1], sortedTokens[i]], weight = number of sample split
// points landing in the arc, normalized to 1.
func describeOwnership(sortedTokens []Token, samples []Token, minToken Token) (map[Token]float64, error) {
	if len(sortedTokens) == 0 {
		return nil, errEmptyRing
	}
	if len(samples) == 0 {
		return nil, errEmptyRing
	}

	counts := make(map[Token]int64, len(sortedTokens))
	for _, s := range samples {
		owner := ownerOf(sortedTokens, s)
		counts[owner]++
	}

	total := int64(len(samples))
	result := make(map[Token]float64, len(sortedTokens))
	for _, tok := range sortedTokens {
		result[tok] = float64(counts[tok]) / float64(total)
	}
	return result, nil
}

// ownerOf returns the token owning the arc that sample falls in: the
// smallest sortedTokens entry >= sample, wrapping to sortedTokens[0].
func ownerOf(sortedTokens []Token, sample Token) Token {
	for _, tok := range sortedTokens {
		if !tok.Less(sample) {
			return tok
		}
	}
	return sortedTokens[0]
}

func randomHexToken(n int) Token {
	const alphabet = "0123456789abcdef"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return Token(buf)
}

