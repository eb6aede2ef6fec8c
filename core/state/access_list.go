package state

import "github.com/ethstate/execution-core/core/types"

// accessList is the EIP-2929 warm set: every address maps to its warmed
// storage slots, a nil slot set meaning the address is warm but no slot
// under it is. Membership only ever grows during execution; the journal
// deletes entries on revert.
type accessList struct {
	addresses map[types.Address]map[types.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[types.Address]map[types.Hash]struct{}),
	}
}

// AddAddress warms addr, reporting whether it already was.
func (al *accessList) AddAddress(addr types.Address) bool {
	if _, ok := al.addresses[addr]; ok {
		return true
	}
	al.addresses[addr] = nil
	return false
}

// AddSlot warms (addr, slot), reporting the prior warmth of each.
func (al *accessList) AddSlot(addr types.Address, slot types.Hash) (addrPresent bool, slotPresent bool) {
	slots, addrPresent := al.addresses[addr]
	if slots == nil {
		slots = make(map[types.Hash]struct{})
		al.addresses[addr] = slots
	}
	if _, ok := slots[slot]; ok {
		return true, true
	}
	slots[slot] = struct{}{}
	return addrPresent, false
}

// ContainsAddress reports whether addr is warm.
func (al *accessList) ContainsAddress(addr types.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

// ContainsSlot reports the warmth of addr and of (addr, slot).
func (al *accessList) ContainsSlot(addr types.Address, slot types.Hash) (addressOk bool, slotOk bool) {
	slots, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	if slots == nil {
		return true, false
	}
	_, slotOk = slots[slot]
	return true, slotOk
}

// Copy deep-copies the warm set for snapshotting.
func (al *accessList) Copy() *accessList {
	cp := &accessList{
		addresses: make(map[types.Address]map[types.Hash]struct{}, len(al.addresses)),
	}
	for addr, slots := range al.addresses {
		if slots == nil {
			cp.addresses[addr] = nil
			continue
		}
		dup := make(map[types.Hash]struct{}, len(slots))
		for slot := range slots {
			dup[slot] = struct{}{}
		}
		cp.addresses[addr] = dup
	}
	return cp
}

// DeleteAddress reverts a warm address (journal rollback).
func (al *accessList) DeleteAddress(addr types.Address) {
	delete(al.addresses, addr)
}

// DeleteSlot reverts a warm slot (journal rollback).
func (al *accessList) DeleteSlot(addr types.Address, slot types.Hash) {
	if slots := al.addresses[addr]; slots != nil {
		delete(slots, slot)
	}
}
