package partition

import (
	"encoding/hex"
	"fmt"
)

// OdklDomain is the domain-sharded variant: the first two hex characters
// of the key define a domain byte (0..255), and ToStringToken prepends a
// hex-encoded domain byte to the remaining key bytes so ranges shard by
// domain.
//
// Grounded on the "domain" vocabulary already present in
// coordinator/internal/model/topology.go's TokenRange/hex-addressed
// ranges, generalized into the explicit domain-prefix token scheme.
type OdklDomain struct{}

// NewOdklDomain constructs the domain-sharded partitioner.
func NewOdklDomain() *OdklDomain { return &OdklDomain{} }

// DomainOf extracts the two-hex-char domain prefix of a token as a byte
// 0-255, or ok=false if the token is too short or not valid hex.
func DomainOf(t Token) (domain byte, ok bool) {
	s := string(t)
	if len(s) < 2 {
		return 0, false
	}
	b, err := hex.DecodeString(s[:2])
	if err != nil || len(b) != 1 {
		return 0, false
	}
	return b[0], true
}

// ToStringToken prepends a hex-encoded domain byte to the remaining key
// bytes.
func (p *OdklDomain) ToStringToken(domain byte, key []byte) Token {
	return Token(fmt.Sprintf("%02x%s", domain, key))
}

func (p *OdklDomain) GetToken(key []byte) Token {
	if len(key) == 0 {
		return p.GetMinimumToken()
	}
	domain, ok := DomainOf(Token(key))
	if !ok {
		domain = key[0]
	} else {
		key = key[2:]
	}
	return p.ToStringToken(domain, key)
}

func (p *OdklDomain) DecorateKey(key []byte) DecoratedKey {
	return DecoratedKey{Token: p.GetToken(key), Key: key}
}

// Midpoint delegates to the order-preserving rule over the domain-prefixed
// representation; the domain prefix participates in the averaging like
// any other leading code units.
func (p *OdklDomain) Midpoint(a, b Token) Token {
	return (&OrderPreserving{}).Midpoint(a, b)
}

func (p *OdklDomain) GetMinimumToken() Token { return Token("00") }

func (p *OdklDomain) GetRandomToken() Token {
	return randomHexToken(2) + randomHexToken(14)
}

func (p *OdklDomain) PreservesOrder() bool { return false }

func (p *OdklDomain) ValidateToken(t Token) error {
	if _, ok := DomainOf(t); !ok {
		return fmt.Errorf("partition: token %q has no valid two-hex-char domain prefix", t)
	}
	return nil
}

func (p *OdklDomain) TokenFactory() TokenFactory { return stringTokenFactory{} }

// DescribeOwnership reports fraction per node from split sampling. When
// total == 0 (empty ring) callers must treat ownership as undefined,
// signalled here by returning errEmptyRing.
func (p *OdklDomain) DescribeOwnership(sortedTokens []Token, samples []Token) (map[Token]float64, error) {
	return describeOwnership(sortedTokens, samples, p.GetMinimumToken())
}

// Shuffle applies the fixed bit-permutation used for deriving the
// "next domain" from a key token's two-hex-char prefix: a
// rotate-right-by-1 of the domain byte, with four hard-coded fixed points
// to avoid pathological cycles. No bit swap is applied besides the
// rotation. These constants are load-bearing and must not be
// second-guessed.
func Shuffle(domain byte) byte {
	switch domain {
	case 0x00:
		return 0x55
	case 0xaa:
		return 0x00
	case 0xff:
		return 0xaa
	case 0x55:
		return 0xff
	default:
		return rotateRight1(domain)
	}
}

func rotateRight1(b byte) byte {
	return (b >> 1) | ((b & 1) << 7)
}

// NextDomainToken rebuilds the key token with the shuffled domain.
func NextDomainToken(t Token) (Token, bool) {
	domain, ok := DomainOf(t)
	if !ok {
		return t, false
	}
	next := Shuffle(domain)
	s := string(t)
	return Token(fmt.Sprintf("%02x%s", next, s[2:])), true
}
