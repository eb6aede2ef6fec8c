package crypto

// BLS12-381 group and field arithmetic used by the KZG verifier and the
// ceremony tooling. Points are carried as affine big.Int coordinates at the
// package boundary; the group operations themselves are delegated to
// gnark-crypto's bls12-381 implementation, the same curve backend the EVM
// precompiles use.

import (
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
)

// BLS12-381 curve constants.
var (
	// blsP is the base field modulus p.
	blsP, _ = new(big.Int).SetString(
		"1a0111ea397fe69a4b1ba7b6434bacd764774b84f38512bf6730d2a0f6b0f6241eabfffeb153ffffb9feffffffffaaab", 16)

	// blsR is the order r of the G1/G2 subgroups (the KZG scalar field).
	blsR, _ = new(big.Int).SetString(
		"73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001", 16)

	// blsB is the curve coefficient in y^2 = x^3 + b.
	blsB = big.NewInt(4)

	// bn254N is the BN254 scalar field order, used by HashToFieldBN254.
	bn254N, _ = new(big.Int).SetString(
		"30644e72e131a029b85045b68181585d2833e84879b9709143e1f593f0000001", 16)
)

// blsFp2 is an element of Fp2, c0 + c1*u.
type blsFp2 struct {
	c0, c1 *big.Int
}

// BlsG1Point is a point on the BLS12-381 G1 curve. The zero value is not
// usable; construct points via BlsG1Generator, BlsG1Infinity or
// blsG1FromAffine.
type BlsG1Point struct {
	p bls12381.G1Affine
}

// BlsG2Point is a point on the BLS12-381 G2 twist.
type BlsG2Point struct {
	p bls12381.G2Affine
}

// --- construction ---

// BlsG1Generator returns the standard G1 generator.
func BlsG1Generator() *BlsG1Point {
	_, _, g1, _ := bls12381.Generators()
	return &BlsG1Point{p: g1}
}

// BlsG2Generator returns the standard G2 generator.
func BlsG2Generator() *BlsG2Point {
	_, _, _, g2 := bls12381.Generators()
	return &BlsG2Point{p: g2}
}

// BlsG1Infinity returns the G1 point at infinity.
func BlsG1Infinity() *BlsG1Point {
	return &BlsG1Point{}
}

// BlsG2Infinity returns the G2 point at infinity.
func BlsG2Infinity() *BlsG2Point {
	return &BlsG2Point{}
}

// blsG1FromAffine builds a G1 point from affine coordinates. The caller is
// responsible for curve membership checks (blsG1IsOnCurve).
func blsG1FromAffine(x, y *big.Int) *BlsG1Point {
	var p bls12381.G1Affine
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return &BlsG1Point{p: p}
}

// blsG2FromAffine builds a G2 point from affine Fp2 coordinates.
func blsG2FromAffine(x, y *blsFp2) *BlsG2Point {
	var p bls12381.G2Affine
	p.X.A0.SetBigInt(x.c0)
	p.X.A1.SetBigInt(x.c1)
	p.Y.A0.SetBigInt(y.c0)
	p.Y.A1.SetBigInt(y.c1)
	return &BlsG2Point{p: p}
}

// --- accessors ---

func (p *BlsG1Point) blsG1IsInfinity() bool {
	return p.p.IsInfinity()
}

func (p *BlsG1Point) blsG1ToAffine() (x, y *big.Int) {
	x = new(big.Int)
	y = new(big.Int)
	p.p.X.BigInt(x)
	p.p.Y.BigInt(y)
	return x, y
}

func (p *BlsG2Point) blsG2IsInfinity() bool {
	return p.p.X.IsZero() && p.p.Y.IsZero()
}

func (p *BlsG2Point) blsG2ToAffine() (x, y *blsFp2) {
	x = &blsFp2{c0: new(big.Int), c1: new(big.Int)}
	y = &blsFp2{c0: new(big.Int), c1: new(big.Int)}
	p.p.X.A0.BigInt(x.c0)
	p.p.X.A1.BigInt(x.c1)
	p.p.Y.A0.BigInt(y.c0)
	p.p.Y.A1.BigInt(y.c1)
	return x, y
}

// --- G1 group operations ---

func blsG1Add(a, b *BlsG1Point) *BlsG1Point {
	var r bls12381.G1Affine
	r.Add(&a.p, &b.p)
	return &BlsG1Point{p: r}
}

func blsG1Neg(a *BlsG1Point) *BlsG1Point {
	var r bls12381.G1Affine
	r.Neg(&a.p)
	return &BlsG1Point{p: r}
}

func blsG1ScalarMul(a *BlsG1Point, k *big.Int) *BlsG1Point {
	var r bls12381.G1Affine
	r.ScalarMultiplication(&a.p, new(big.Int).Mod(k, blsR))
	return &BlsG1Point{p: r}
}

// blsG1IsOnCurve reports whether the affine coordinates (x, y) satisfy
// y^2 = x^3 + 4 over Fp. Coordinates must already be reduced mod p.
func blsG1IsOnCurve(x, y *big.Int) bool {
	if x.Sign() < 0 || x.Cmp(blsP) >= 0 || y.Sign() < 0 || y.Cmp(blsP) >= 0 {
		return false
	}
	var p bls12381.G1Affine
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return p.IsOnCurve()
}

// blsG1InSubgroup reports whether the point is in the r-order subgroup.
func blsG1InSubgroup(a *BlsG1Point) bool {
	return a.p.IsInSubGroup()
}

// --- G2 group operations ---

func blsG2Add(a, b *BlsG2Point) *BlsG2Point {
	var r bls12381.G2Affine
	r.Add(&a.p, &b.p)
	return &BlsG2Point{p: r}
}

func blsG2Neg(a *BlsG2Point) *BlsG2Point {
	var r bls12381.G2Affine
	r.Neg(&a.p)
	return &BlsG2Point{p: r}
}

func blsG2ScalarMul(a *BlsG2Point, k *big.Int) *BlsG2Point {
	var r bls12381.G2Affine
	r.ScalarMultiplication(&a.p, new(big.Int).Mod(k, blsR))
	return &BlsG2Point{p: r}
}

// --- pairing ---

// blsMultiPairing evaluates the product of pairings e(g1s[i], g2s[i]) and
// reports whether it equals the identity in GT. Infinity operands contribute
// the identity and are skipped.
func blsMultiPairing(g1s []*BlsG1Point, g2s []*BlsG2Point) bool {
	if len(g1s) != len(g2s) {
		return false
	}
	var ps []bls12381.G1Affine
	var qs []bls12381.G2Affine
	for i := range g1s {
		if g1s[i].blsG1IsInfinity() || g2s[i].blsG2IsInfinity() {
			continue
		}
		ps = append(ps, g1s[i].p)
		qs = append(qs, g2s[i].p)
	}
	if len(ps) == 0 {
		return true
	}
	ok, err := bls12381.PairingCheck(ps, qs)
	return err == nil && ok
}

// --- base field helpers ---

// The KZG decompressor works on big.Int coordinates directly; these helpers
// keep that code free of gnark-crypto's montgomery representation.

func blsFpAdd(a, b *big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	return r.Mod(r, blsP)
}

func blsFpMul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Mod(r, blsP)
}

func blsFpSqr(a *big.Int) *big.Int {
	return blsFpMul(a, a)
}

func blsFpNeg(a *big.Int) *big.Int {
	r := new(big.Int).Neg(a)
	return r.Mod(r, blsP)
}

// blsFpSqrt returns a square root of a mod p, or nil if a is a non-residue.
func blsFpSqrt(a *big.Int) *big.Int {
	return new(big.Int).ModSqrt(a, blsP)
}

// --- compressed serialization ---

// blsG1FromCompressed parses the 48-byte ZCash compressed form, with
// gnark enforcing curve and subgroup membership.
func blsG1FromCompressed(data []byte) (*BlsG1Point, error) {
	var p bls12381.G1Affine
	if _, err := p.SetBytes(data); err != nil {
		return nil, err
	}
	return &BlsG1Point{p: p}, nil
}

// blsG1Compress emits the 48-byte ZCash compressed form.
func blsG1Compress(p *BlsG1Point) []byte {
	b := p.p.Bytes()
	return b[:]
}

// blsFpElement converts a reduced big.Int into a gnark field element.
// Kept close to the helpers above for the odd caller that needs to cross
// into gnark territory directly.
func blsFpElement(a *big.Int) fp.Element {
	var e fp.Element
	e.SetBigInt(a)
	return e
}
