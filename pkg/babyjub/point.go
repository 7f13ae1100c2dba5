package babyjub

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// PackedSize is the length of a compressed point.
const PackedSize = 32

var (
	// ErrCoordinateRange is returned when a coordinate is not a canonical field element.
	ErrCoordinateRange = errors.New("babyjub: coordinate out of field range")
	// ErrNotOnCurve is returned when a packed point does not decompress to a curve point.
	ErrNotOnCurve = errors.New("babyjub: point is not on the curve")
)

var (
	curveA fr.Element
	curveD fr.Element

	base8X fr.Element
	base8Y fr.Element

	// subOrder is the order of the subgroup generated by Base8.
	subOrder, _ = new(big.Int).SetString("2736030358979909402780800718157159386076813972158567259200215660948447373041", 10)
)

func init() {
	curveA.SetUint64(168700)
	curveD.SetUint64(168696)

	x, _ := new(big.Int).SetString("5299619240641551281634865583518297030282874472190772894086521144482721001553", 10)
	y, _ := new(big.Int).SetString("16950150798460657717958625567821834550301663161624707787222815936182638968203", 10)
	base8X.SetBigInt(x)
	base8Y.SetBigInt(y)
}

// SubOrder returns a copy of L, the prime order of the Base8 subgroup.
func SubOrder() *big.Int {
	return new(big.Int).Set(subOrder)
}

// FieldModulus returns a copy of the modulus of the coordinate field.
func FieldModulus() *big.Int {
	return fr.Modulus()
}

// Point is an affine point on Baby Jubjub.
type Point struct {
	X fr.Element
	Y fr.Element
}

// NewPoint returns the identity element (0, 1).
func NewPoint() *Point {
	p := &Point{}
	p.Y.SetOne()
	return p
}

// Base8 returns a fresh copy of the subgroup generator.
func Base8() *Point {
	return &Point{X: base8X, Y: base8Y}
}

// PointFromBigInts builds a point from integer coordinates. Coordinates must be
// canonical field elements; the curve equation is not checked.
func PointFromBigInts(x, y *big.Int) (*Point, error) {
	if x == nil || y == nil {
		return nil, ErrCoordinateRange
	}
	q := fr.Modulus()
	if x.Sign() < 0 || y.Sign() < 0 || x.Cmp(q) >= 0 || y.Cmp(q) >= 0 {
		return nil, ErrCoordinateRange
	}
	p := &Point{}
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return p, nil
}

// Set copies q into p and returns p.
func (p *Point) Set(q *Point) *Point {
	p.X = q.X
	p.Y = q.Y
	return p
}

// Add sets p = a + b and returns p.
func (p *Point) Add(a, b *Point) *Point {
	var x1y2, y1x2, y1y2, x1x2, dxy, num, den fr.Element

	x1y2.Mul(&a.X, &b.Y)
	y1x2.Mul(&a.Y, &b.X)
	y1y2.Mul(&a.Y, &b.Y)
	x1x2.Mul(&a.X, &b.X)

	// d·x1·x2·y1·y2
	dxy.Mul(&x1x2, &y1y2)
	dxy.Mul(&dxy, &curveD)

	var one fr.Element
	one.SetOne()

	var x3, y3 fr.Element

	num.Add(&x1y2, &y1x2)
	den.Add(&one, &dxy)
	den.Inverse(&den)
	x3.Mul(&num, &den)

	var ax1x2 fr.Element
	ax1x2.Mul(&curveA, &x1x2)
	num.Sub(&y1y2, &ax1x2)
	den.Sub(&one, &dxy)
	den.Inverse(&den)
	y3.Mul(&num, &den)

	p.X = x3
	p.Y = y3
	return p
}

// ScalarMul sets p = k·a using double-and-add and returns p. Negative scalars
// are reduced modulo SubOrder first.
func (p *Point) ScalarMul(a *Point, k *big.Int) *Point {
	e := new(big.Int).Set(k)
	if e.Sign() < 0 {
		e.Mod(e, subOrder)
	}

	acc := NewPoint()
	exp := new(Point).Set(a)
	for i := 0; i < e.BitLen(); i++ {
		if e.Bit(i) == 1 {
			acc.Add(acc, exp)
		}
		exp.Add(exp, exp)
	}
	return p.Set(acc)
}

// IsOnCurve reports whether p satisfies a·x² + y² = 1 + d·x²·y².
func (p *Point) IsOnCurve() bool {
	if p == nil {
		return false
	}
	var x2, y2, lhs, rhs fr.Element
	x2.Square(&p.X)
	y2.Square(&p.Y)

	lhs.Mul(&curveA, &x2)
	lhs.Add(&lhs, &y2)

	rhs.Mul(&x2, &y2)
	rhs.Mul(&rhs, &curveD)
	var one fr.Element
	one.SetOne()
	rhs.Add(&rhs, &one)

	return lhs.Equal(&rhs)
}

// IsIdentity reports whether p is (0, 1).
func (p *Point) IsIdentity() bool {
	var one fr.Element
	one.SetOne()
	return p.X.IsZero() && p.Y.Equal(&one)
}

// Equal compares both coordinates.
func (p *Point) Equal(q *Point) bool {
	if p == nil || q == nil {
		return p == q
	}
	return p.X.Equal(&q.X) && p.Y.Equal(&q.Y)
}

// XBig returns the x coordinate as an integer.
func (p *Point) XBig() *big.Int {
	return p.X.BigInt(new(big.Int))
}

// YBig returns the y coordinate as an integer.
func (p *Point) YBig() *big.Int {
	return p.Y.BigInt(new(big.Int))
}

func (p *Point) String() string {
	return fmt.Sprintf("(%s, %s)", p.XBig(), p.YBig())
}

// Pack compresses p into 32 bytes: y little-endian with the top bit carrying
// the sign of x (set when x > (q-1)/2).
func (p *Point) Pack() [PackedSize]byte {
	var out [PackedSize]byte
	be := p.Y.Bytes()
	for i := 0; i < PackedSize; i++ {
		out[i] = be[PackedSize-1-i]
	}
	if p.X.LexicographicallyLargest() {
		out[PackedSize-1] |= 0x80
	}
	return out
}

// Unpack decompresses a point produced by Pack.
func Unpack(packed [PackedSize]byte) (*Point, error) {
	negative := packed[PackedSize-1]&0x80 != 0
	packed[PackedSize-1] &= 0x7f

	be := make([]byte, PackedSize)
	for i := 0; i < PackedSize; i++ {
		be[i] = packed[PackedSize-1-i]
	}
	yBig := new(big.Int).SetBytes(be)
	if yBig.Cmp(fr.Modulus()) >= 0 {
		return nil, ErrCoordinateRange
	}

	p := &Point{}
	p.Y.SetBigInt(yBig)

	// x² = (1 - y²) / (a - d·y²)
	var y2, num, den, one fr.Element
	one.SetOne()
	y2.Square(&p.Y)
	num.Sub(&one, &y2)
	den.Mul(&curveD, &y2)
	den.Sub(&curveA, &den)
	if den.IsZero() {
		return nil, ErrNotOnCurve
	}
	den.Inverse(&den)
	num.Mul(&num, &den)

	if p.X.Sqrt(&num) == nil {
		return nil, ErrNotOnCurve
	}
	if p.X.LexicographicallyLargest() != negative {
		p.X.Neg(&p.X)
	}
	if !p.IsOnCurve() {
		return nil, ErrNotOnCurve
	}
	return p, nil
}
