// Package state's manager.go tracks the sequence of state roots a chain
// produces block-by-block and a separate pool of named snapshots, so a
// caller can answer "what was the root after block N" and "restore to an
// earlier root" without re-deriving either from the trie.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrBlockNotFound    = errors.New("block not found in journal")
	ErrJournalEmpty     = errors.New("journal is empty")
)

// StateManagerConfig bounds how much history StateManager retains.
type StateManagerConfig struct {
	// CacheSize is kept in the config; StateManager holds no root cache and
	// does not read it.
	CacheSize int

	// JournalLimit caps the number of retained block->root entries; zero
	// means no limit.
	JournalLimit int

	// SnapshotInterval is kept in the config; StateManager takes no
	// automatic snapshots and does not read it.
	SnapshotInterval uint64
}

// rootAtBlock is one entry of the block->root history.
type rootAtBlock struct {
	block uint64
	root  types.Hash
}

// namedSnapshot is a previously captured root, addressable by its ID.
type namedSnapshot struct {
	id   types.Hash
	root types.Hash
}

// StateManager tracks the current state root, a bounded history of
// block->root mappings, and a pool of restorable snapshots. All exported
// methods are safe for concurrent use.
type StateManager struct {
	config StateManagerConfig

	mu        sync.RWMutex
	root      types.Hash
	history   []rootAtBlock
	byBlock   map[uint64]int // block number -> index into history
	snapshots map[types.Hash]namedSnapshot
}

// NewStateManager builds a StateManager with the given retention config.
func NewStateManager(config StateManagerConfig) *StateManager {
	return &StateManager{
		config:    config,
		byBlock:   make(map[uint64]int),
		snapshots: make(map[types.Hash]namedSnapshot),
	}
}

// SetRoot overwrites the current state root.
func (m *StateManager) SetRoot(root types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = root
}

// GetRoot returns the current state root.
func (m *StateManager) GetRoot() types.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// AddJournalEntry records blockNumber's resulting root, trimming the oldest
// entries if this pushes history past JournalLimit.
func (m *StateManager) AddJournalEntry(blockNumber uint64, root types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byBlock[blockNumber] = len(m.history)
	m.history = append(m.history, rootAtBlock{block: blockNumber, root: root})

	if limit := m.config.JournalLimit; limit > 0 && len(m.history) > limit {
		m.dropOldest(len(m.history) - limit)
	}
}

// GetJournalEntry returns the root recorded for blockNumber, or nil if no
// such entry exists.
func (m *StateManager) GetJournalEntry(blockNumber uint64) *types.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byBlock[blockNumber]
	if !ok || idx >= len(m.history) {
		return nil
	}
	root := m.history[idx].root
	return &root
}

// JournalSize reports how many block->root entries are retained.
func (m *StateManager) JournalSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// TakeSnapshot records the current root under a fresh ID derived from the
// root itself and how many snapshots already exist, and returns that ID.
func (m *StateManager) TakeSnapshot() types.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordinal := []byte(fmt.Sprintf("%d", len(m.snapshots)))
	id := crypto.Keccak256Hash(m.root[:], ordinal)
	m.snapshots[id] = namedSnapshot{id: id, root: m.root}
	return id
}

// RestoreSnapshot sets the current root back to the one captured under id.
func (m *StateManager) RestoreSnapshot(id types.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[id]
	if !ok {
		return ErrSnapshotNotFound
	}
	m.root = snap.root
	return nil
}

// PruneJournal keeps only the most recent keepLast history entries. A
// negative keepLast is treated as zero; a keepLast at or beyond the current
// size is a no-op.
func (m *StateManager) PruneJournal(keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keepLast < 0 {
		keepLast = 0
	}
	if keepLast >= len(m.history) {
		return
	}
	m.dropOldest(len(m.history) - keepLast)
}

// RevertToBlock rolls the current root back to the one recorded for
// blockNumber and discards every history entry recorded after it.
func (m *StateManager) RevertToBlock(blockNumber uint64) (*types.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byBlock[blockNumber]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrBlockNotFound, blockNumber)
	}
	if idx >= len(m.history) {
		return nil, fmt.Errorf("%w: block %d (stale index)", ErrBlockNotFound, blockNumber)
	}

	root := m.history[idx].root
	m.root = root

	for _, stale := range m.history[idx+1:] {
		delete(m.byBlock, stale.block)
	}
	m.history = m.history[:idx+1]

	return &root, nil
}

// LatestBlock returns the highest block number retained, or 0 if history is
// empty. History is append-ordered, not necessarily block-number-ordered
// (a reorg can append an earlier block number after a later one).
func (m *StateManager) LatestBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) == 0 {
		return 0
	}
	max := m.history[0].block
	for _, e := range m.history[1:] {
		if e.block > max {
			max = e.block
		}
	}
	return max
}

// BlockNumbers returns every retained block number, ascending.
func (m *StateManager) BlockNumbers() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uint64, len(m.history))
	for i, e := range m.history {
		out[i] = e.block
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dropOldest removes the oldest n history entries and rebuilds the block
// index. Callers must hold m.mu.
func (m *StateManager) dropOldest(n int) {
	if n <= 0 || n > len(m.history) {
		return
	}
	for _, stale := range m.history[:n] {
		delete(m.byBlock, stale.block)
	}

	remaining := make([]rootAtBlock, len(m.history)-n)
	copy(remaining, m.history[n:])
	m.history = remaining

	m.byBlock = make(map[uint64]int, len(m.history))
	for i, e := range m.history {
		m.byBlock[e.block] = i
	}
}
