package vm

import (
	"errors"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
)

// EIP-2537 BLS12-381 precompile addresses (0x0b - 0x13).
// These precompiles provide native support for BLS12-381 curve operations,
// enabling efficient BLS signature verification and other pairing-based
// cryptographic schemes on-chain.

var (
	ErrBLS12InvalidInput  = errors.New("bls12-381: invalid input length")
	ErrBLS12InvalidPoint  = errors.New("bls12-381: invalid point encoding")
	ErrBLS12NotOnCurve    = errors.New("bls12-381: point not on curve")
	ErrBLS12NotInSubgroup = errors.New("bls12-381: point not in correct subgroup")
)

// BLS12-381 field constants.
var (
	// BLS12-381 field modulus p.
	bls12Modulus, _ = new(big.Int).SetString(
		"1a0111ea397fe69a4b1ba7b6434bacd764774b84f38512bf6730d2a0f6b0f6241eabfffeb153ffffb9feffffffffaaab", 16)
	// BLS12-381 subgroup order r.
	bls12Order, _ = new(big.Int).SetString(
		"73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001", 16)
)

// BLS12-381 precompile gas costs per EIP-2537.
const (
	bls12G1AddGas          = 500
	bls12G1MulGas          = 12000
	bls12G2AddGas          = 800
	bls12G2MulGas          = 45000
	bls12PairingBaseGas    = 65000
	bls12PairingPerPairGas = 43000
	bls12MapG1Gas          = 5500
	bls12MapG2Gas          = 75000
	bls12G1MSMBaseGas      = 12000
	bls12G2MSMBaseGas      = 45000
)

// Point sizes for BLS12-381 (uncompressed, zero-padded to 64/128 bytes).
const (
	bls12G1PointSize = 128 // 2 * 64 bytes (Fp padded to 64)
	bls12G2PointSize = 256 // 2 * 128 bytes (Fp2 elements padded to 128)
	bls12ScalarSize  = 32  // Fr scalar
	bls12FpSize      = 64  // field element padded to 64 bytes
	bls12Fp2Size     = 128 // Fp2 element (2 * 64 bytes)
)

// bls12FpFromBytes parses a 64-byte zero-padded big-endian field element
// (the EIP-2537 wire format) into a gnark-crypto fp.Element, rejecting
// values >= the field modulus.
func bls12FpFromBytes(b []byte) (fp.Element, error) {
	var e fp.Element
	v := new(big.Int).SetBytes(b)
	if v.Cmp(bls12Modulus) >= 0 {
		return e, ErrBLS12InvalidPoint
	}
	e.SetBigInt(v)
	return e, nil
}

// bls12FpToBytes serializes a field element back to the 64-byte EIP-2537
// wire format.
func bls12FpToBytes(e *fp.Element) []byte {
	var v big.Int
	e.BigInt(&v)
	out := make([]byte, bls12FpSize)
	b := v.Bytes()
	copy(out[bls12FpSize-len(b):], b)
	return out
}

// bls12DecodeG1 parses a 128-byte EIP-2537 G1 point (two 64-byte coordinates).
// An all-zero input decodes to the point at infinity.
func bls12DecodeG1(data []byte) (bls12381.G1Affine, bool, error) {
	var p bls12381.G1Affine
	if isZeroBytes(data) {
		return p, true, nil
	}
	x, err := bls12FpFromBytes(data[:bls12FpSize])
	if err != nil {
		return p, false, err
	}
	y, err := bls12FpFromBytes(data[bls12FpSize:])
	if err != nil {
		return p, false, err
	}
	p.X, p.Y = x, y
	if !p.IsOnCurve() {
		return p, false, ErrBLS12NotOnCurve
	}
	if !p.IsInSubGroup() {
		return p, false, ErrBLS12NotInSubgroup
	}
	return p, false, nil
}

// bls12EncodeG1 serializes a G1 point to the 128-byte EIP-2537 wire format.
func bls12EncodeG1(p *bls12381.G1Affine) []byte {
	out := make([]byte, bls12G1PointSize)
	if p.X.IsZero() && p.Y.IsZero() {
		return out
	}
	copy(out[:bls12FpSize], bls12FpToBytes(&p.X))
	copy(out[bls12FpSize:], bls12FpToBytes(&p.Y))
	return out
}

// bls12DecodeG2 parses a 256-byte EIP-2537 G2 point (two Fp2 coordinates,
// each itself two 64-byte field elements, c1 || c0 per EIP-2537 ordering).
func bls12DecodeG2(data []byte) (bls12381.G2Affine, bool, error) {
	var p bls12381.G2Affine
	if isZeroBytes(data) {
		return p, true, nil
	}
	xc0, err := bls12FpFromBytes(data[0:64])
	if err != nil {
		return p, false, err
	}
	xc1, err := bls12FpFromBytes(data[64:128])
	if err != nil {
		return p, false, err
	}
	yc0, err := bls12FpFromBytes(data[128:192])
	if err != nil {
		return p, false, err
	}
	yc1, err := bls12FpFromBytes(data[192:256])
	if err != nil {
		return p, false, err
	}
	p.X.A0, p.X.A1 = xc0, xc1
	p.Y.A0, p.Y.A1 = yc0, yc1
	if !p.IsOnCurve() {
		return p, false, ErrBLS12NotOnCurve
	}
	if !p.IsInSubGroup() {
		return p, false, ErrBLS12NotInSubgroup
	}
	return p, false, nil
}

// bls12EncodeG2 serializes a G2 point to the 256-byte EIP-2537 wire format.
func bls12EncodeG2(p *bls12381.G2Affine) []byte {
	out := make([]byte, bls12G2PointSize)
	if p.X.IsZero() && p.Y.IsZero() {
		return out
	}
	copy(out[0:64], bls12FpToBytes(&p.X.A0))
	copy(out[64:128], bls12FpToBytes(&p.X.A1))
	copy(out[128:192], bls12FpToBytes(&p.Y.A0))
	copy(out[192:256], bls12FpToBytes(&p.Y.A1))
	return out
}

// --- bls12G1Add (address 0x0b) ---
// BLS12-381 G1 point addition.

type bls12G1Add struct{}

func (c *bls12G1Add) RequiredGas(input []byte) uint64 {
	return bls12G1AddGas
}

func (c *bls12G1Add) Run(input []byte) ([]byte, error) {
	if len(input) != 2*bls12G1PointSize {
		return nil, ErrBLS12InvalidInput
	}
	p0, _, err := bls12DecodeG1(input[:bls12G1PointSize])
	if err != nil {
		return nil, err
	}
	p1, _, err := bls12DecodeG1(input[bls12G1PointSize:])
	if err != nil {
		return nil, err
	}
	var j0, j1 bls12381.G1Jac
	j0.FromAffine(&p0)
	j1.FromAffine(&p1)
	j0.AddAssign(&j1)
	var res bls12381.G1Affine
	res.FromJacobian(&j0)
	return bls12EncodeG1(&res), nil
}

// --- bls12G1Mul (address 0x0c) ---
// BLS12-381 G1 scalar multiplication.

type bls12G1Mul struct{}

func (c *bls12G1Mul) RequiredGas(input []byte) uint64 {
	return bls12G1MulGas
}

func (c *bls12G1Mul) Run(input []byte) ([]byte, error) {
	if len(input) != bls12G1PointSize+bls12ScalarSize {
		return nil, ErrBLS12InvalidInput
	}
	p, _, err := bls12DecodeG1(input[:bls12G1PointSize])
	if err != nil {
		return nil, err
	}
	scalar := new(big.Int).SetBytes(input[bls12G1PointSize:])
	var pJac bls12381.G1Jac
	pJac.FromAffine(&p)
	var res bls12381.G1Jac
	res.ScalarMultiplication(&pJac, scalar)
	var affine bls12381.G1Affine
	affine.FromJacobian(&res)
	return bls12EncodeG1(&affine), nil
}

// --- bls12G1MSM (address 0x0d) ---
// BLS12-381 G1 multi-scalar multiplication (MSM).

type bls12G1MSM struct{}

func (c *bls12G1MSM) RequiredGas(input []byte) uint64 {
	pairSize := bls12G1PointSize + bls12ScalarSize
	k := uint64(len(input)) / uint64(pairSize)
	if k == 0 {
		return 0
	}
	discount := msmDiscount(k)
	return (bls12G1MSMBaseGas * k * discount) / 1000
}

func (c *bls12G1MSM) Run(input []byte) ([]byte, error) {
	pairSize := bls12G1PointSize + bls12ScalarSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, ErrBLS12InvalidInput
	}

	k := len(input) / pairSize
	var acc bls12381.G1Jac
	for i := 0; i < k; i++ {
		offset := i * pairSize
		p, _, err := bls12DecodeG1(input[offset : offset+bls12G1PointSize])
		if err != nil {
			return nil, err
		}
		scalar := new(big.Int).SetBytes(input[offset+bls12G1PointSize : offset+pairSize])
		var term bls12381.G1Jac
		term.ScalarMultiplication(&p, scalar)
		acc.AddAssign(&term)
	}
	var res bls12381.G1Affine
	res.FromJacobian(&acc)
	return bls12EncodeG1(&res), nil
}

// --- bls12G2Add (address 0x0e) ---
// BLS12-381 G2 point addition.

type bls12G2Add struct{}

func (c *bls12G2Add) RequiredGas(input []byte) uint64 {
	return bls12G2AddGas
}

func (c *bls12G2Add) Run(input []byte) ([]byte, error) {
	if len(input) != 2*bls12G2PointSize {
		return nil, ErrBLS12InvalidInput
	}
	p0, _, err := bls12DecodeG2(input[:bls12G2PointSize])
	if err != nil {
		return nil, err
	}
	p1, _, err := bls12DecodeG2(input[bls12G2PointSize:])
	if err != nil {
		return nil, err
	}
	var j0, j1 bls12381.G2Jac
	j0.FromAffine(&p0)
	j1.FromAffine(&p1)
	j0.AddAssign(&j1)
	var res bls12381.G2Affine
	res.FromJacobian(&j0)
	return bls12EncodeG2(&res), nil
}

// --- bls12G2Mul (address 0x0f) ---
// BLS12-381 G2 scalar multiplication.

type bls12G2Mul struct{}

func (c *bls12G2Mul) RequiredGas(input []byte) uint64 {
	return bls12G2MulGas
}

func (c *bls12G2Mul) Run(input []byte) ([]byte, error) {
	if len(input) != bls12G2PointSize+bls12ScalarSize {
		return nil, ErrBLS12InvalidInput
	}
	p, _, err := bls12DecodeG2(input[:bls12G2PointSize])
	if err != nil {
		return nil, err
	}
	scalar := new(big.Int).SetBytes(input[bls12G2PointSize:])
	var res bls12381.G2Jac
	res.ScalarMultiplication(&p, scalar)
	var affine bls12381.G2Affine
	affine.FromJacobian(&res)
	return bls12EncodeG2(&affine), nil
}

// --- bls12G2MSM (address 0x10) ---
// BLS12-381 G2 multi-scalar multiplication.

type bls12G2MSM struct{}

func (c *bls12G2MSM) RequiredGas(input []byte) uint64 {
	pairSize := bls12G2PointSize + bls12ScalarSize
	k := uint64(len(input)) / uint64(pairSize)
	if k == 0 {
		return 0
	}
	discount := msmDiscount(k)
	return (bls12G2MSMBaseGas * k * discount) / 1000
}

func (c *bls12G2MSM) Run(input []byte) ([]byte, error) {
	pairSize := bls12G2PointSize + bls12ScalarSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, ErrBLS12InvalidInput
	}

	k := len(input) / pairSize
	var acc bls12381.G2Jac
	for i := 0; i < k; i++ {
		offset := i * pairSize
		p, _, err := bls12DecodeG2(input[offset : offset+bls12G2PointSize])
		if err != nil {
			return nil, err
		}
		scalar := new(big.Int).SetBytes(input[offset+bls12G2PointSize : offset+pairSize])
		var term bls12381.G2Jac
		term.ScalarMultiplication(&p, scalar)
		acc.AddAssign(&term)
	}
	var res bls12381.G2Affine
	res.FromJacobian(&acc)
	return bls12EncodeG2(&res), nil
}

// --- bls12Pairing (address 0x11) ---
// BLS12-381 pairing check.

type bls12Pairing struct{}

func (c *bls12Pairing) RequiredGas(input []byte) uint64 {
	pairSize := bls12G1PointSize + bls12G2PointSize
	k := uint64(len(input)) / uint64(pairSize)
	return bls12PairingBaseGas + bls12PairingPerPairGas*k
}

func (c *bls12Pairing) Run(input []byte) ([]byte, error) {
	pairSize := bls12G1PointSize + bls12G2PointSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, ErrBLS12InvalidInput
	}

	k := len(input) / pairSize
	g1s := make([]bls12381.G1Affine, 0, k)
	g2s := make([]bls12381.G2Affine, 0, k)
	for i := 0; i < k; i++ {
		offset := i * pairSize
		p1, inf1, err := bls12DecodeG1(input[offset : offset+bls12G1PointSize])
		if err != nil {
			return nil, err
		}
		p2, inf2, err := bls12DecodeG2(input[offset+bls12G1PointSize : offset+pairSize])
		if err != nil {
			return nil, err
		}
		if inf1 || inf2 {
			// A pairing with either operand at infinity contributes the
			// GT identity and can be dropped from the product.
			continue
		}
		g1s = append(g1s, p1)
		g2s = append(g2s, p2)
	}

	result := make([]byte, 32)
	if len(g1s) == 0 {
		result[31] = 1
		return result, nil
	}

	ok, err := bls12381.PairingCheck(g1s, g2s)
	if err != nil {
		return nil, err
	}
	if ok {
		result[31] = 1
	}
	return result, nil
}

// --- bls12MapFpToG1 (address 0x12) ---
// BLS12-381 map field element to G1 point.

type bls12MapFpToG1 struct{}

func (c *bls12MapFpToG1) RequiredGas(input []byte) uint64 {
	return bls12MapG1Gas
}

func (c *bls12MapFpToG1) Run(input []byte) ([]byte, error) {
	if len(input) != bls12FpSize {
		return nil, ErrBLS12InvalidInput
	}

	fe, err := bls12FpFromBytes(input)
	if err != nil {
		return nil, err
	}

	p := bls12381.MapToG1(fe)
	return bls12EncodeG1(&p), nil
}

// --- bls12MapFp2ToG2 (address 0x13) ---
// BLS12-381 map Fp2 element to G2 point.

type bls12MapFp2ToG2 struct{}

func (c *bls12MapFp2ToG2) RequiredGas(input []byte) uint64 {
	return bls12MapG2Gas
}

func (c *bls12MapFp2ToG2) Run(input []byte) ([]byte, error) {
	if len(input) != bls12Fp2Size {
		return nil, ErrBLS12InvalidInput
	}

	c0, err := bls12FpFromBytes(input[:bls12FpSize])
	if err != nil {
		return nil, err
	}
	c1, err := bls12FpFromBytes(input[bls12FpSize:])
	if err != nil {
		return nil, err
	}

	p := bls12381.MapToG2(bls12381.E2{A0: c0, A1: c1})
	return bls12EncodeG2(&p), nil
}

// --- helpers ---

// isZeroBytes checks if all bytes are zero.
func isZeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// msmDiscount returns the MSM discount factor (per 1000) for k pairs.
// From EIP-2537 discount table.
func msmDiscount(k uint64) uint64 {
	if k == 0 {
		return 0
	}
	// Pippenger discount table from EIP-2537.
	discountTable := []uint64{
		0, 1200, 888, 764, 641, 594, 547, 500, 453, 438,
		423, 408, 394, 379, 364, 349, 334, 330, 326, 322,
		318, 314, 310, 306, 302, 298, 294, 289, 285, 281,
		277, 273, 269, 265, 261, 257, 253, 249, 245, 241,
		237, 234, 230, 226, 222, 218, 214, 210, 206, 202,
		199, 195, 191, 187, 183, 179, 176, 172, 168, 164,
		160, 157, 153, 149, 145, 141, 138, 134, 130, 126,
		123, 119, 115, 111, 107, 104, 100, 96, 92, 89,
		85, 81, 77, 73, 70, 66, 62, 58, 55, 51,
		47, 43, 39, 36, 32, 28, 24, 21, 17, 13,
		9, 6, 2, 2, 2, 2, 2, 2, 2, 2,
		2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
		2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	}
	if k >= uint64(len(discountTable)) {
		return 2 // minimum discount
	}
	return discountTable[k]
}
