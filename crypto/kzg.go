package crypto

// KZG opening-proof verification for the EIP-4844 point evaluation
// precompile. A commitment C = [p(s)]_1 and proof pi = [(p(s)-y)/(s-z)]_1
// verify through one pairing equation:
//
//	e(C - [y]G1, G2) * e(-pi, [s]G2 - [z]G2) == 1
//
// Points travel in the 48-byte ZCash compressed form (compression bit,
// infinity bit, y-sort bit, then the x coordinate); the group arithmetic
// and (de)serialization run on the gnark-crypto backend via bls12381.go.

import (
	"errors"
	"math/big"
)

var (
	errKZGInvalidProof      = errors.New("kzg: invalid proof")
	errKZGInvalidCommitment = errors.New("kzg: invalid commitment")
	errKZGInvalidPoint      = errors.New("kzg: point not on curve")
	errKZGVerifyFailed      = errors.New("kzg: proof verification failed")
)

// kzgCompressedG1Size is the compressed G1 wire size.
const kzgCompressedG1Size = 48

// kzgTrustedSetupG2 is [s]G2. The default is a test setup over the known
// secret s=42 so unit tests can construct proofs; a production deployment
// swaps in the ceremony output via KZGSetTrustedSetupG2.
var kzgTrustedSetupG2 *BlsG2Point

func init() {
	kzgTrustedSetupG2 = blsG2ScalarMul(BlsG2Generator(), big.NewInt(42))
}

// KZGSetTrustedSetupG2 replaces the [s]G2 point. Intended for wiring a
// real ceremony output or a test setup.
func KZGSetTrustedSetupG2(p *BlsG2Point) {
	kzgTrustedSetupG2 = p
}

// KZGGetTrustedSetupG2 returns the active [s]G2 point.
func KZGGetTrustedSetupG2() *BlsG2Point {
	return kzgTrustedSetupG2
}

// KZGVerifyProof checks the opening (z, y) of commitment against proof
// with the pairing equation above. Out-of-range scalars fail outright.
func KZGVerifyProof(commitment *BlsG1Point, z, y *big.Int, proof *BlsG1Point) bool {
	if z.Sign() < 0 || z.Cmp(blsR) >= 0 {
		return false
	}
	if y.Sign() < 0 || y.Cmp(blsR) >= 0 {
		return false
	}

	g1Gen := BlsG1Generator()
	g2Gen := BlsG2Generator()

	// C - [y]G1 on the left, [s]G2 - [z]G2 paired against -pi on the right.
	lhsG1 := blsG1Add(commitment, blsG1Neg(blsG1ScalarMul(g1Gen, y)))
	rhsG2 := blsG2Add(kzgTrustedSetupG2, blsG2Neg(blsG2ScalarMul(g2Gen, z)))

	return blsMultiPairing(
		[]*BlsG1Point{lhsG1, blsG1Neg(proof)},
		[]*BlsG2Point{g2Gen, rhsG2},
	)
}

// KZGDecompressG1 parses a 48-byte compressed G1 point, enforcing curve
// and subgroup membership. gnark's deserializer implements the same ZCash
// flag conventions the ceremony files use, so it is the parser here.
func KZGDecompressG1(data []byte) (*BlsG1Point, error) {
	if len(data) != kzgCompressedG1Size {
		return nil, errKZGInvalidPoint
	}
	p, err := blsG1FromCompressed(data)
	if err != nil {
		return nil, errKZGInvalidPoint
	}
	return p, nil
}

// KZGCompressG1 serializes a point back to the 48-byte compressed form.
func KZGCompressG1(p *BlsG1Point) []byte {
	return blsG1Compress(p)
}

// KZGVerifyFromBytes runs the precompile-shaped verification: 48-byte
// commitment and proof, 32-byte scalars z and y.
func KZGVerifyFromBytes(commitment []byte, z, y *big.Int, proof []byte) error {
	commitPoint, err := KZGDecompressG1(commitment)
	if err != nil {
		return errKZGInvalidCommitment
	}
	proofPoint, err := KZGDecompressG1(proof)
	if err != nil {
		return errKZGInvalidProof
	}
	if !KZGVerifyProof(commitPoint, z, y, proofPoint) {
		return errKZGVerifyFailed
	}
	return nil
}

// KZGCommit builds [v]G1 for a polynomial evaluation v = p(s). Test
// tooling: the prover side normally commits from coefficients.
func KZGCommit(polyAtS *big.Int) *BlsG1Point {
	return blsG1ScalarMul(BlsG1Generator(), polyAtS)
}

// KZGComputeProof derives the opening proof [(p(s)-y)/(s-z)]G1 directly
// from the secret. Test tooling only; a real prover never holds s.
func KZGComputeProof(secret, z, polyAtS, y *big.Int) *BlsG1Point {
	num := new(big.Int).Sub(polyAtS, y)
	num.Mod(num, blsR)
	den := new(big.Int).Sub(secret, z)
	den.Mod(den, blsR)
	denInv := new(big.Int).ModInverse(den, blsR)
	if denInv == nil {
		// s == z cannot produce a quotient; the degenerate case only
		// arises in hand-built fixtures.
		return BlsG1Infinity()
	}
	quotient := num.Mul(num, denInv)
	quotient.Mod(quotient, blsR)
	return blsG1ScalarMul(BlsG1Generator(), quotient)
}
