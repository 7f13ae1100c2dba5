// Package babyjub implements point arithmetic on the Baby Jubjub twisted Edwards
// curve used by circom-based rollups.
//
// The curve is defined over the BN254 scalar field
//
//	a·x² + y² = 1 + d·x²·y²   (a = 168700, d = 168696)
//
// and its prime-order subgroup is generated by Base8. Coordinates are kept as
// gnark-crypto fr.Element values; scalars are plain *big.Int values that callers
// reduce modulo SubOrder.
//
// Points produced by ScalarMul on Base8 are trusted. Points received from the
// outside world (a signature's R, a counterparty public key) must be checked with
// IsOnCurve before use.
//
// Usage
//
//	pub := babyjub.NewPoint().ScalarMul(babyjub.Base8(), secret)
//	packed := pub.Pack()
//	back, err := babyjub.Unpack(packed)
package babyjub
