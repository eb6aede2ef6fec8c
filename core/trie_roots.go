package core

// Trie-root derivation for the block body commitments: transactions,
// receipts and withdrawals are each committed as a Merkle Patricia Trie
// keyed by RLP(index), with the item's canonical encoding as the value.

import (
	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/rlp"
	"github.com/ethstate/execution-core/trie"
)

// DeriveTxsRoot computes the transactions root over the canonical
// (type-prefixed) transaction encodings.
func DeriveTxsRoot(txs []*types.Transaction) types.Hash {
	if len(txs) == 0 {
		return types.EmptyRootHash
	}
	t := trie.New()
	for i, tx := range txs {
		key, _ := rlp.EncodeToBytes(uint64(i))
		enc, err := tx.EncodeRLP()
		if err != nil {
			continue
		}
		t.Put(key, enc)
	}
	return t.Hash()
}

// DeriveReceiptsRoot computes the receipts root over the canonical
// (type-prefixed) receipt encodings.
func DeriveReceiptsRoot(receipts []*types.Receipt) types.Hash {
	if len(receipts) == 0 {
		return types.EmptyRootHash
	}
	t := trie.New()
	for i, r := range receipts {
		key, _ := rlp.EncodeToBytes(uint64(i))
		enc, err := r.EncodeRLP()
		if err != nil {
			continue
		}
		t.Put(key, enc)
	}
	return t.Hash()
}

// deriveWithdrawalsRoot computes the EIP-4895 withdrawals root: a trie
// keyed by RLP(index) with RLP([index, validatorIndex, address, amount])
// values.
func deriveWithdrawalsRoot(ws []*types.Withdrawal) types.Hash {
	if len(ws) == 0 {
		return types.EmptyRootHash
	}
	t := trie.New()
	for i, w := range ws {
		key, _ := rlp.EncodeToBytes(uint64(i))
		t.Put(key, types.EncodeWithdrawal(w))
	}
	return t.Hash()
}
