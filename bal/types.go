// Package bal builds the EIP-7928 Block Access List: a per-block,
// per-account inventory of every storage read/write, balance change, nonce
// change, and code change observed during execution, tagged with the
// transaction index that produced it.
package bal

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// BlockAccessList is the ordered set of per-account change records for one
// block, sorted by address at build time.
type BlockAccessList struct {
	Entries []AccessEntry
}

// AccessEntry gathers everything observed for a single address during a
// single access phase. AccessIndex 0 is the pre-transaction system calls,
// 1..n are transactions in block order, and n+1 is the post-execution
// phase (withdrawals and system requests).
type AccessEntry struct {
	Address        types.Address
	AccessIndex    uint64
	StorageReads   []StorageAccess
	StorageChanges []StorageChange
	BalanceChange  *BalanceChange
	NonceChange    *NonceChange
	CodeChange     *CodeChange
}

// StorageAccess is a slot read that did not change the slot's value.
type StorageAccess struct {
	Slot  types.Hash
	Value types.Hash
}

// StorageChange is a slot write, recording both sides of the transition.
type StorageChange struct {
	Slot     types.Hash
	OldValue types.Hash
	NewValue types.Hash
}

// BalanceChange records a wei-balance transition.
type BalanceChange struct {
	OldValue *big.Int
	NewValue *big.Int
}

// NonceChange records a nonce transition.
type NonceChange struct {
	OldValue uint64
	NewValue uint64
}

// CodeChange records a code transition (contract deployment or, under
// EIP-7702, delegation designator installation).
type CodeChange struct {
	OldCode []byte
	NewCode []byte
}

// NewBlockAccessList returns an empty list ready for AddEntry calls.
func NewBlockAccessList() *BlockAccessList {
	return &BlockAccessList{}
}

// AddEntry appends e to the list in whatever order the caller supplies;
// ordering guarantees are established by AccessTracker.Build, not here.
func (l *BlockAccessList) AddEntry(e AccessEntry) {
	l.Entries = append(l.Entries, e)
}

// Len reports how many per-address entries the list holds.
func (l *BlockAccessList) Len() int {
	return len(l.Entries)
}
