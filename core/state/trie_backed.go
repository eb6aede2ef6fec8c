package state

import (
	"github.com/ethstate/execution-core/core/types"
)

// TrieBackedStateDB wraps a MemoryStateDB with explicit intermediate-root
// computation. All state operations delegate to the embedded MemoryStateDB;
// the wrapper adds IntermediateRoot, which optionally applies EIP-161
// empty-account deletion before hashing, matching the root a full client
// would produce between transactions.
type TrieBackedStateDB struct {
	*MemoryStateDB
}

// NewTrieBackedStateDB creates a TrieBackedStateDB over a fresh MemoryStateDB.
func NewTrieBackedStateDB() *TrieBackedStateDB {
	return &TrieBackedStateDB{MemoryStateDB: NewMemoryStateDB()}
}

// NewTrieBackedFromMemory wraps an existing MemoryStateDB.
func NewTrieBackedFromMemory(mem *MemoryStateDB) *TrieBackedStateDB {
	return &TrieBackedStateDB{MemoryStateDB: mem}
}

// IntermediateRoot computes the current state root. When deleteEmpty is set
// (EIP-161), accounts with zero nonce, zero balance and empty code are
// dropped from the state first.
//
// Account trie: key = keccak256(address), value = RLP([nonce, balance,
// storageRoot, codeHash]). Storage tries hash each slot as
// keccak256(slot) -> RLP(value with leading zeros trimmed).
func (s *TrieBackedStateDB) IntermediateRoot(deleteEmpty bool) types.Hash {
	if deleteEmpty {
		s.deleteEmptyAccounts()
	}
	return s.MemoryStateDB.GetRoot()
}

// deleteEmptyAccounts removes every live account that is empty per EIP-161.
func (s *TrieBackedStateDB) deleteEmptyAccounts() {
	for addr, obj := range s.accounts {
		if obj.selfDestructed {
			continue
		}
		if s.Empty(addr) {
			delete(s.accounts, addr)
		}
	}
}

// Copy returns a deep copy sharing no mutable state with the receiver.
func (s *TrieBackedStateDB) Copy() *TrieBackedStateDB {
	return &TrieBackedStateDB{MemoryStateDB: s.MemoryStateDB.Copy()}
}

var _ StateDB = (*TrieBackedStateDB)(nil)
