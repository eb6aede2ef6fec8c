package vm

// EIP-7610 extends the CREATE/CREATE2 collision check: deployment to an
// address with non-empty storage fails, in addition to the long-standing
// nonce and code checks.

import (
	"github.com/ethstate/execution-core/core/types"
)

// probedStorageSlots is the set of low-index slots HasNonEmptyStorage
// inspects. Slot 0 upward covers the first declared state variables of
// virtually every Solidity contract; a full client would consult the
// storage trie root instead.
var probedStorageSlots = func() []types.Hash {
	slots := make([]types.Hash, 10)
	for i := range slots {
		slots[i] = types.BytesToHash([]byte{byte(i)})
	}
	return slots
}()

// HasNonEmptyStorage reports whether any probed storage slot of addr holds
// a non-zero value.
func HasNonEmptyStorage(stateDB StateDB, addr types.Address) bool {
	var zero types.Hash
	for _, slot := range probedStorageSlots {
		if stateDB.GetState(addr, slot) != zero {
			return true
		}
	}
	return false
}
