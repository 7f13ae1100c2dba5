// Package poseidon implements the Poseidon permutation hash with the parameter
// set used by Loopring and early circomlib EdDSA: width 6, 6 full rounds,
// 52 partial rounds and an x^5 S-box over the BN254 scalar field.
//
// Round constants and the MDS matrix are derived from blake2b-256 chains seeded
// with "poseidon_constants" and "poseidon_matrix_0000"; they are generated on
// first use and shared read-only afterwards.
package poseidon

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/blake2b"
)

const (
	// Width is the permutation state size. At most Width-1 inputs are absorbed.
	Width = 6

	roundsFull    = 6
	roundsPartial = 52
	seed          = "poseidon"
)

// ErrInputLength is returned when the number of inputs is outside [1, Width-1].
var ErrInputLength = errors.New("poseidon: invalid number of inputs")

type params struct {
	constants []fr.Element
	mds       [Width][Width]fr.Element
}

var (
	defaultOnce   sync.Once
	defaultParams *params
)

func loadParams() *params {
	defaultOnce.Do(func() {
		defaultParams = newParams()
	})
	return defaultParams
}

func newParams() *params {
	p := &params{
		constants: pseudoRandom(seed+"_constants", roundsFull+roundsPartial),
	}

	c := pseudoRandom(seed+"_matrix_0000", 2*Width)
	for i := 0; i < Width; i++ {
		for j := 0; j < Width; j++ {
			var diff fr.Element
			diff.Sub(&c[i], &c[Width+j])
			p.mds[i][j].Inverse(&diff)
		}
	}
	return p
}

// pseudoRandom returns n field elements from the blake2b-256 chain rooted at
// the given label. Each digest is read as a little-endian integer mod q.
func pseudoRandom(label string, n int) []fr.Element {
	out := make([]fr.Element, n)
	h := blake2b.Sum256([]byte(label))
	for i := 0; i < n; i++ {
		out[i].SetBigInt(leBytesToInt(h[:]))
		h = blake2b.Sum256(h[:])
	}
	return out
}

func leBytesToInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

// Hash absorbs 1 to Width-1 integers and returns the first state element after
// the permutation. Inputs are reduced modulo the field order.
func Hash(inputs []*big.Int) (*big.Int, error) {
	elems := make([]fr.Element, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("poseidon: input %d is nil", i)
		}
		elems[i].SetBigInt(in)
	}
	out, err := HashElements(elems)
	if err != nil {
		return nil, err
	}
	return out.BigInt(new(big.Int)), nil
}

// HashElements is Hash over field elements.
func HashElements(inputs []fr.Element) (fr.Element, error) {
	if len(inputs) == 0 || len(inputs) >= Width {
		return fr.Element{}, fmt.Errorf("%w: got %d, want 1..%d", ErrInputLength, len(inputs), Width-1)
	}

	p := loadParams()

	var state [Width]fr.Element
	copy(state[:], inputs)

	for r := 0; r < roundsFull+roundsPartial; r++ {
		for i := range state {
			state[i].Add(&state[i], &p.constants[r])
		}

		if r < roundsFull/2 || r >= roundsPartial+roundsFull/2 {
			for i := range state {
				sbox(&state[i])
			}
		} else {
			sbox(&state[0])
		}

		state = p.mix(&state)
	}

	return state[0], nil
}

func sbox(x *fr.Element) {
	var x2, x4 fr.Element
	x2.Square(x)
	x4.Square(&x2)
	x.Mul(x, &x4)
}

func (p *params) mix(state *[Width]fr.Element) [Width]fr.Element {
	var out [Width]fr.Element
	var term fr.Element
	for i := 0; i < Width; i++ {
		for j := 0; j < Width; j++ {
			term.Mul(&p.mds[i][j], &state[j])
			out[i].Add(&out[i], &term)
		}
	}
	return out
}
