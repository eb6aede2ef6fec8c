package state

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// changeRecord undoes one mutation previously applied to a MemoryStateDB.
type changeRecord interface {
	revert(s *MemoryStateDB)
}

// changeLog is an append-only record of every reversible mutation applied to
// a MemoryStateDB, indexed by named marks so a caller can unwind back to any
// earlier point (a transaction boundary, a call frame boundary, ...).
type changeLog struct {
	records []changeRecord
	marks   map[int]int // mark ID -> record index at the time it was taken
	nextID  int
}

func newChangeLog() *changeLog {
	return &changeLog{marks: make(map[int]int)}
}

// record appends a mutation's undo information.
func (l *changeLog) record(r changeRecord) {
	l.records = append(l.records, r)
}

// size reports how many records are currently held.
func (l *changeLog) size() int {
	return len(l.records)
}

// mark captures the current record count under a fresh ID, returning that ID
// for a later rollback call.
func (l *changeLog) mark() int {
	id := l.nextID
	l.nextID++
	l.marks[id] = len(l.records)
	return id
}

// rollback undoes every record taken since mark id, in reverse order, then
// discards both the records and any marks taken after id (they no longer
// point at a valid position).
func (l *changeLog) rollback(id int, s *MemoryStateDB) {
	at, ok := l.marks[id]
	if !ok {
		return
	}
	for i := len(l.records) - 1; i >= at; i-- {
		l.records[i].revert(s)
	}
	l.records = l.records[:at]

	for mid := range l.marks {
		if mid >= id {
			delete(l.marks, mid)
		}
	}
}

// --- concrete records, one per kind of reversible mutation ---

type acctCreatedEntry struct {
	addr types.Address
	prev *acctState // nil if the account did not exist before
}

func (e acctCreatedEntry) revert(s *MemoryStateDB) {
	if e.prev == nil {
		delete(s.accounts, e.addr)
	} else {
		s.accounts[e.addr] = e.prev
	}
}

type balanceEntry struct {
	addr types.Address
	prev *big.Int
}

func (e balanceEntry) revert(s *MemoryStateDB) {
	if obj := s.fetchObject(e.addr); obj != nil {
		obj.account.Balance = e.prev
	}
}

type nonceEntry struct {
	addr types.Address
	prev uint64
}

func (e nonceEntry) revert(s *MemoryStateDB) {
	if obj := s.fetchObject(e.addr); obj != nil {
		obj.account.Nonce = e.prev
	}
}

type codeEntry struct {
	addr     types.Address
	prevCode []byte
	prevHash []byte
}

func (e codeEntry) revert(s *MemoryStateDB) {
	if obj := s.fetchObject(e.addr); obj != nil {
		obj.code = e.prevCode
		obj.account.CodeHash = e.prevHash
	}
}

type storageEntry struct {
	addr       types.Address
	key        types.Hash
	prev       types.Hash
	prevExists bool // whether key was present in dirtyStorage before the write
}

func (e storageEntry) revert(s *MemoryStateDB) {
	obj := s.fetchObject(e.addr)
	if obj == nil {
		return
	}
	if e.prevExists {
		obj.dirtyStorage[e.key] = e.prev
		return
	}
	// The slot had no dirty entry before this write; clearing it makes the
	// committed value visible again rather than leaving a stale dirty zero.
	delete(obj.dirtyStorage, e.key)
}

type selfDestructEntry struct {
	addr           types.Address
	prevDestructed bool
	prevBalance    *big.Int
}

func (e selfDestructEntry) revert(s *MemoryStateDB) {
	if obj := s.fetchObject(e.addr); obj != nil {
		obj.selfDestructed = e.prevDestructed
		obj.account.Balance = e.prevBalance
	}
}

type alAcctEntry struct {
	addr types.Address
}

func (e alAcctEntry) revert(s *MemoryStateDB) {
	s.accessList.DeleteAddress(e.addr)
}

type alSlotEntry struct {
	addr types.Address
	slot types.Hash
}

func (e alSlotEntry) revert(s *MemoryStateDB) {
	s.accessList.DeleteSlot(e.addr, e.slot)
}

type transientEntry struct {
	addr types.Address
	key  types.Hash
	prev types.Hash
}

func (e transientEntry) revert(s *MemoryStateDB) {
	if e.prev == (types.Hash{}) {
		delete(s.transientStorage[e.addr], e.key)
		if len(s.transientStorage[e.addr]) == 0 {
			delete(s.transientStorage, e.addr)
		}
		return
	}
	s.transientStorage[e.addr][e.key] = e.prev
}

type logsEntry struct {
	txHash  types.Hash
	prevLen int
}

func (e logsEntry) revert(s *MemoryStateDB) {
	remaining := s.logs[e.txHash][:e.prevLen]
	if e.prevLen == 0 {
		delete(s.logs, e.txHash)
		return
	}
	s.logs[e.txHash] = remaining
}

type refundEntry struct {
	prev uint64
}

func (e refundEntry) revert(s *MemoryStateDB) {
	s.refund = e.prev
}
