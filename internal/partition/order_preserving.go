package partition

import (
	"math/big"
	"unicode/utf16"
)

// OrderPreserving is the order-preserving partitioner: Token = string,
// compared lexicographically over UTF-16 code units (approximated here by
// UTF-8 byte order, which agrees for this codebase's token alphabet), and
// Midpoint treats both tokens as unsigned big integers packed from 16-bit
// code units.
type OrderPreserving struct{}

// NewOrderPreserving constructs the order-preserving partitioner.
func NewOrderPreserving() *OrderPreserving { return &OrderPreserving{} }

func (p *OrderPreserving) GetToken(key []byte) Token {
	if len(key) == 0 {
		return p.GetMinimumToken()
	}
	return Token(key)
}

func (p *OrderPreserving) DecorateKey(key []byte) DecoratedKey {
	return DecoratedKey{Token: p.GetToken(key), Key: key}
}

// Midpoint packs a and b as unsigned big integers built from their UTF-16
// code units (length = max(len(a), len(b))) and averages them.
func (p *OrderPreserving) Midpoint(a, b Token) Token {
	ua := utf16Units(string(a))
	ub := utf16Units(string(b))

	n := len(ua)
	if len(ub) > n {
		n = len(ub)
	}

	ai := packUnits(ua, n)
	bi := packUnits(ub, n)

	sum := new(big.Int).Add(ai, bi)
	mid := sum.Rsh(sum, 1)

	return Token(unpackUnits(mid, n))
}

func packUnits(units []uint16, n int) *big.Int {
	result := new(big.Int)
	base := big.NewInt(0x10000)
	for i := 0; i < n; i++ {
		var u uint16
		if i < len(units) {
			u = units[i]
		}
		result.Mul(result, base)
		result.Add(result, big.NewInt(int64(u)))
	}
	return result
}

func unpackUnits(v *big.Int, n int) string {
	base := big.NewInt(0x10000)
	units := make([]uint16, n)
	tmp := new(big.Int).Set(v)
	mod := new(big.Int)
	for i := n - 1; i >= 0; i-- {
		tmp.DivMod(tmp, base, mod)
		units[i] = uint16(mod.Int64())
	}
	return utf16ToString(units)
}

func (p *OrderPreserving) GetMinimumToken() Token { return Token("") }

func (p *OrderPreserving) GetRandomToken() Token {
	// Non-cryptographic RNG, acceptable for test fixtures only;
	// production token generation uses the balancer.
	return randomHexToken(16)
}

func (p *OrderPreserving) PreservesOrder() bool { return true }

func (p *OrderPreserving) ValidateToken(t Token) error { return nil }

func (p *OrderPreserving) TokenFactory() TokenFactory { return stringTokenFactory{} }

func (p *OrderPreserving) DescribeOwnership(sortedTokens []Token, samples []Token) (map[Token]float64, error) {
	return describeOwnership(sortedTokens, samples, p.GetMinimumToken())
}

func utf16Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func utf16ToString(units []uint16) string {
	// Reassemble surrogate pairs back into runes; plain-ASCII/Latin
	// tokens (the common case here) round-trip through a direct cast.
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xd800 && u <= 0xdbff && i+1 < len(units) {
			lo := units[i+1]
			if lo >= 0xdc00 && lo <= 0xdfff {
				r := (rune(u-0xd800)<<10 | rune(lo-0xdc00)) + 0x10000
				runes = append(runes, r)
				i++
				continue
			}
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}
