package vm

// EIP-7951 secp256r1 signature verification precompile at address 0x0100.

import (
	"math/big"

	"github.com/ethstate/execution-core/crypto"
)

// p256VerifyGas is the flat cost of a P-256 verification.
const p256VerifyGas uint64 = 6900

// p256Verify implements the secp256r1 (NIST P-256) verifier. Input is
// hash(32) || r(32) || s(32) || x(32) || y(32); output is a 32-byte 1 on
// success and empty output on any failure, per the EIP.
type p256Verify struct{}

func (c *p256Verify) RequiredGas(input []byte) uint64 {
	return p256VerifyGas
}

func (c *p256Verify) Run(input []byte) ([]byte, error) {
	if len(input) != 160 {
		return nil, nil
	}

	hash := input[0:32]
	r := new(big.Int).SetBytes(input[32:64])
	s := new(big.Int).SetBytes(input[64:96])
	x := new(big.Int).SetBytes(input[96:128])
	y := new(big.Int).SetBytes(input[128:160])

	if !crypto.P256Verify(hash, r, s, x, y) {
		return nil, nil
	}

	out := make([]byte, 32)
	out[31] = 1
	return out, nil
}
