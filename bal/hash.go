package bal

import (
	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
	"github.com/ethstate/execution-core/rlp"
)

// EncodeRLP returns the canonical RLP encoding of the list, matching the
// field order declared on BlockAccessList/AccessEntry.
func (l *BlockAccessList) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(l)
}

// Hash returns keccak256 of the RLP encoding; this value is what forks that
// carry EIP-7928 bind into the block header. A marshaling failure (which
// should not occur for a well-formed list) yields the zero hash rather than
// a panic, leaving header comparison to report the mismatch.
func (l *BlockAccessList) Hash() types.Hash {
	enc, err := l.EncodeRLP()
	if err != nil {
		return types.Hash{}
	}
	return crypto.Keccak256Hash(enc)
}
