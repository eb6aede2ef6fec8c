package bal

import (
	"math/big"
	"sort"

	"github.com/ethstate/execution-core/core/types"
)

// slotKey is the map key for a single (address, storage slot) pair.
type slotKey struct {
	addr types.Address
	slot types.Hash
}

// bucket accumulates everything seen for one address before Build sorts it
// into an AccessEntry.
type bucket struct {
	reads   map[types.Hash]types.Hash    // slot -> observed value
	changes map[types.Hash][2]types.Hash // slot -> [old, new]
	balance *BalanceChange
	nonce   *NonceChange
	code    *CodeChange
}

func newBucket() *bucket {
	return &bucket{
		reads:   make(map[types.Hash]types.Hash),
		changes: make(map[types.Hash][2]types.Hash),
	}
}

// AccessTracker observes state accesses as a transaction (or system call)
// executes and turns them into a sorted BlockAccessList slice via Build.
// A single tracker instance is reused across the phases of one block by
// calling Reset between Build calls.
type AccessTracker struct {
	addrs map[types.Address]*bucket
}

// NewTracker returns an empty AccessTracker.
func NewTracker() *AccessTracker {
	return &AccessTracker{addrs: make(map[types.Address]*bucket)}
}

func (t *AccessTracker) bucketFor(addr types.Address) *bucket {
	b, ok := t.addrs[addr]
	if !ok {
		b = newBucket()
		t.addrs[addr] = b
	}
	return b
}

// RecordStorageRead notes that addr's storage slot was read with value.
func (t *AccessTracker) RecordStorageRead(addr types.Address, slot, value types.Hash) {
	t.bucketFor(addr).reads[slot] = value
}

// RecordStorageChange notes that addr's storage slot moved from oldVal to
// newVal.
func (t *AccessTracker) RecordStorageChange(addr types.Address, slot, oldVal, newVal types.Hash) {
	t.bucketFor(addr).changes[slot] = [2]types.Hash{oldVal, newVal}
}

// RecordBalanceChange notes addr's wei balance transition.
func (t *AccessTracker) RecordBalanceChange(addr types.Address, oldBal, newBal *big.Int) {
	t.bucketFor(addr).balance = &BalanceChange{
		OldValue: new(big.Int).Set(oldBal),
		NewValue: new(big.Int).Set(newBal),
	}
}

// RecordNonceChange notes addr's nonce transition.
func (t *AccessTracker) RecordNonceChange(addr types.Address, oldNonce, newNonce uint64) {
	t.bucketFor(addr).nonce = &NonceChange{OldValue: oldNonce, NewValue: newNonce}
}

// RecordCodeChange notes addr's code transition, copying both slices so the
// tracker does not alias caller-owned buffers.
func (t *AccessTracker) RecordCodeChange(addr types.Address, oldCode, newCode []byte) {
	t.bucketFor(addr).code = &CodeChange{
		OldCode: cloneBytes(oldCode),
		NewCode: cloneBytes(newCode),
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Build materializes the recorded accesses into a BlockAccessList, with
// every address tagged accessIndex, addresses in ascending order, and each
// address's storage reads/changes sorted by slot.
func (t *AccessTracker) Build(accessIndex uint64) *BlockAccessList {
	out := NewBlockAccessList()
	for _, addr := range t.sortedAddrs() {
		out.AddEntry(t.entryFor(addr, accessIndex))
	}
	return out
}

func (t *AccessTracker) sortedAddrs() []types.Address {
	addrs := make([]types.Address, 0, len(t.addrs))
	for addr := range t.addrs {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrLess(addrs[i], addrs[j]) })
	return addrs
}

func (t *AccessTracker) entryFor(addr types.Address, accessIndex uint64) AccessEntry {
	b := t.addrs[addr]
	entry := AccessEntry{
		Address:       addr,
		AccessIndex:   accessIndex,
		BalanceChange: b.balance,
		NonceChange:   b.nonce,
		CodeChange:    b.code,
	}

	for slot, val := range b.reads {
		entry.StorageReads = append(entry.StorageReads, StorageAccess{Slot: slot, Value: val})
	}
	sort.Slice(entry.StorageReads, func(i, j int) bool {
		return hashLess(entry.StorageReads[i].Slot, entry.StorageReads[j].Slot)
	})

	for slot, pair := range b.changes {
		entry.StorageChanges = append(entry.StorageChanges, StorageChange{
			Slot: slot, OldValue: pair[0], NewValue: pair[1],
		})
	}
	sort.Slice(entry.StorageChanges, func(i, j int) bool {
		return hashLess(entry.StorageChanges[i].Slot, entry.StorageChanges[j].Slot)
	})

	return entry
}

// Reset discards all recorded accesses so the tracker can be reused for the
// next phase of the block.
func (t *AccessTracker) Reset() {
	t.addrs = make(map[types.Address]*bucket)
}

func addrLess(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func hashLess(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
