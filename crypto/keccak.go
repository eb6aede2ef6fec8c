// Package crypto wraps the primitives the state transition depends on:
// Keccak-256, secp256k1 recovery, P-256 verification, and the BLS12-381
// and KZG machinery behind the precompiles.
package crypto

import (
	"github.com/ethstate/execution-core/core/types"
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of the given byte slices.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash is Keccak256 delivered as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}
