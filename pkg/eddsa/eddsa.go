// Package eddsa implements Schnorr-style EdDSA signatures over Baby Jubjub with
// a Poseidon challenge, as used by Loopring layer-2 accounts, together with
// the deterministic key derivation from an Ethereum wallet signature.
package eddsa

import (
	"crypto/sha512"
	"fmt"
	"hash"
	"math/big"
	"strings"

	"github.com/dchest/blake512"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/poseidon"
)

// Scheme selects how the per-signature nonce r is derived. The two schemes
// produce different signatures for the same inputs and are not interchangeable.
type Scheme uint8

const (
	// SchemeBlake512 derives r from BLAKE-512 of the key, then of the key digest
	// tail and message. It is the default.
	SchemeBlake512 Scheme = iota
	// SchemeSHA512 derives r from SHA-512 of key and message. Legacy.
	SchemeSHA512
)

func (s Scheme) String() string {
	switch s {
	case SchemeBlake512:
		return "blake512"
	case SchemeSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// ParseScheme maps a configuration value to a Scheme. Empty selects the default.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "blake512":
		return SchemeBlake512, nil
	case "sha512":
		return SchemeSHA512, nil
	default:
		return 0, fmt.Errorf("unknown nonce scheme %q", name)
	}
}

// KeyPair is a layer-2 signing key. Secret is always reduced modulo the
// subgroup order and Public is Secret·Base8.
type KeyPair struct {
	Secret *big.Int
	Public *babyjub.Point
}

// NewKeyPair reduces secret modulo the subgroup order and computes the public point.
func NewKeyPair(secret *big.Int) *KeyPair {
	s := new(big.Int).Mod(secret, babyjub.SubOrder())
	return &KeyPair{
		Secret: s,
		Public: babyjub.NewPoint().ScalarMul(babyjub.Base8(), s),
	}
}

// Signature is the pair (R, s).
type Signature struct {
	R *babyjub.Point
	S *big.Int
}

// Sign signs msg with the default nonce scheme.
func (k *KeyPair) Sign(msg *big.Int) (*Signature, error) {
	return k.SignWith(SchemeBlake512, msg)
}

// SignWith signs msg using the given nonce scheme. msg is reduced into the
// field before use. The only failure is an unknown scheme.
func (k *KeyPair) SignWith(scheme Scheme, msg *big.Int) (*Signature, error) {
	m := new(big.Int).Mod(msg, babyjub.FieldModulus())
	order := babyjub.SubOrder()

	r, err := nonce(scheme, k.Secret, m)
	if err != nil {
		return nil, err
	}
	r.Mod(r, order)

	R := babyjub.NewPoint().ScalarMul(babyjub.Base8(), r)

	c, err := challenge(R, k.Public, m)
	if err != nil {
		return nil, err
	}

	s := new(big.Int).Mul(c, k.Secret)
	s.Add(s, r)
	s.Mod(s, order)

	return &Signature{R: R, S: s}, nil
}

// Verify reports whether sig is a valid signature of msg under pub. It never
// fails loudly: malformed input, off-curve points and s >= L all yield false.
func Verify(msg *big.Int, sig *Signature, pub *babyjub.Point) bool {
	if msg == nil || sig == nil || sig.R == nil || sig.S == nil || pub == nil {
		return false
	}
	if !sig.R.IsOnCurve() || !pub.IsOnCurve() {
		return false
	}
	if sig.S.Sign() < 0 || sig.S.Cmp(babyjub.SubOrder()) >= 0 {
		return false
	}

	m := new(big.Int).Mod(msg, babyjub.FieldModulus())
	c, err := challenge(sig.R, pub, m)
	if err != nil {
		return false
	}

	left := babyjub.NewPoint().ScalarMul(babyjub.Base8(), sig.S)
	right := babyjub.NewPoint().ScalarMul(pub, c)
	right.Add(sig.R, right)

	return left.Equal(right)
}

func challenge(R, A *babyjub.Point, msg *big.Int) (*big.Int, error) {
	return poseidon.Hash([]*big.Int{R.XBig(), R.YBig(), A.XBig(), A.YBig(), msg})
}

func nonce(scheme Scheme, secret, msg *big.Int) (*big.Int, error) {
	key := le32(secret)
	m := le32(msg)

	switch scheme {
	case SchemeBlake512:
		h1 := digest(blake512.New(), key)
		return leToInt(digest(blake512.New(), h1[32:64], m)), nil
	case SchemeSHA512:
		return leToInt(digest(sha512.New(), key, m)), nil
	default:
		return nil, fmt.Errorf("eddsa: unsupported nonce scheme %d", scheme)
	}
}

func digest(h hash.Hash, parts ...[]byte) []byte {
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// le32 encodes a non-negative integer below 2^256 as 32 little-endian bytes.
func le32(v *big.Int) []byte {
	out := make([]byte, 32)
	be := v.Bytes()
	for i := 0; i < len(be) && i < 32; i++ {
		out[i] = be[len(be)-1-i]
	}
	return out
}

func leToInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}
