package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"
)

// P256Verify checks an ECDSA signature over the NIST P-256 curve, the
// operation behind the 0x0100 precompile. The public key (x, y) must be a
// curve point; the stdlib verifier handles the scalar range checks.
func P256Verify(hash []byte, r, s, x, y *big.Int) bool {
	if x == nil || y == nil || !elliptic.P256().IsOnCurve(x, y) {
		return false
	}
	pk := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	return ecdsa.Verify(pk, hash, r, s)
}
