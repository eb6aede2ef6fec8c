package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/log"
)

var chainLog = log.Default().Module("core/blockchain")

var (
	ErrNoGenesis     = errors.New("genesis block not provided")
	ErrBlockNotFound = errors.New("block not found")
	ErrStateNotFound = errors.New("state not found for block")
)

// Blockchain maintains an in-memory canonical chain: it validates and
// executes incoming blocks against the state at their parent and indexes
// them by hash and number. State is kept purely in memory (the state at any
// block is re-derived by re-executing from genesis), matching this module's
// no-persistence scope.
type Blockchain struct {
	// mu serializes chain mutation; cacheMu guards the two index maps so
	// the BLOCKHASH lookup can run while an insert (holding mu) executes.
	mu      sync.Mutex
	cacheMu sync.RWMutex

	config    *ChainConfig
	processor *StateProcessor
	validator *BlockValidator

	blockCache map[types.Hash]*types.Block
	canonCache map[uint64]types.Hash

	genesisState *state.MemoryStateDB
	currentState *state.MemoryStateDB

	genesis      *types.Block
	currentBlock *types.Block
}

// NewBlockchain creates a chain rooted at genesis. The statedb carries the
// genesis allocation and is the base every later state is re-derived from.
func NewBlockchain(config *ChainConfig, genesis *types.Block, statedb *state.MemoryStateDB) (*Blockchain, error) {
	if genesis == nil {
		return nil, ErrNoGenesis
	}

	bc := &Blockchain{
		config:       config,
		processor:    NewStateProcessor(config),
		validator:    NewBlockValidator(config),
		blockCache:   make(map[types.Hash]*types.Block),
		canonCache:   make(map[uint64]types.Hash),
		genesisState: statedb,
		currentState: statedb.Copy(),
		genesis:      genesis,
		currentBlock: genesis,
	}
	bc.processor.SetGetHash(bc.GetHashFn())

	hash := genesis.Hash()
	bc.blockCache[hash] = genesis
	bc.canonCache[genesis.NumberU64()] = hash

	return bc, nil
}

// InsertBlock validates, executes, and inserts a single block.
func (bc *Blockchain) InsertBlock(block *types.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.insertBlock(block)
}

func (bc *Blockchain) insertBlock(block *types.Block) error {
	hash := block.Hash()
	if bc.GetBlock(hash) != nil {
		return nil
	}

	header := block.Header()

	parent := bc.GetBlock(header.ParentHash)
	if parent == nil {
		return fmt.Errorf("%w: parent %v", ErrUnknownParent, header.ParentHash)
	}

	if err := bc.validator.ValidateHeader(header, parent.Header()); err != nil {
		chainLog.Warn("rejecting block with invalid header", "number", block.NumberU64(), "hash", hash.Hex(), "err", err)
		return err
	}
	if err := bc.validator.ValidateBody(block); err != nil {
		return err
	}

	statedb, err := bc.stateAt(parent)
	if err != nil {
		return fmt.Errorf("state at parent %d: %w", parent.NumberU64(), err)
	}

	receipts, err := bc.execute(block, statedb)
	if err != nil {
		return err
	}
	if err := bc.verifyCommitments(block, statedb, receipts); err != nil {
		return err
	}

	num := block.NumberU64()
	chainLog.Debug("inserted block", "number", num, "hash", hash.Hex(), "txs", len(block.Transactions()), "gasUsed", header.GasUsed)
	bc.cacheMu.Lock()
	bc.blockCache[hash] = block
	if num > bc.currentBlock.NumberU64() {
		bc.canonCache[num] = hash
		bc.currentBlock = block
		bc.currentState = statedb
	}
	bc.cacheMu.Unlock()

	return nil
}

// execute runs a block's transactions (and system hooks, withdrawals)
// against statedb.
func (bc *Blockchain) execute(block *types.Block, statedb *state.MemoryStateDB) ([]*types.Receipt, error) {
	receipts, err := bc.processor.Process(block, statedb)
	if err != nil {
		return nil, fmt.Errorf("process block %d: %w", block.NumberU64(), err)
	}
	return receipts, nil
}

// verifyCommitments compares everything execution derived against the
// block's own header claims: gas used, logs bloom, state root, receipts
// root, transactions root, and the withdrawals root when present. Any
// mismatch rejects the block.
func (bc *Blockchain) verifyCommitments(block *types.Block, statedb *state.MemoryStateDB, receipts []*types.Receipt) error {
	header := block.Header()

	var gasUsed uint64
	if n := len(receipts); n > 0 {
		gasUsed = receipts[n-1].CumulativeGasUsed
	}
	if gasUsed != header.GasUsed {
		return fmt.Errorf("gas used mismatch: header %d, computed %d", header.GasUsed, gasUsed)
	}

	if bloom := types.CreateBloom(receipts); bloom != header.Bloom {
		return errors.New("bloom mismatch")
	}

	stateRoot, err := statedb.Commit()
	if err != nil {
		return fmt.Errorf("state commit failed: %w", err)
	}
	if stateRoot != header.Root {
		return fmt.Errorf("state root mismatch: header %s, computed %s", header.Root.Hex(), stateRoot.Hex())
	}

	if receiptsRoot := DeriveReceiptsRoot(receipts); receiptsRoot != header.ReceiptHash {
		return fmt.Errorf("receipts root mismatch: header %s, computed %s", header.ReceiptHash.Hex(), receiptsRoot.Hex())
	}

	if txsRoot := DeriveTxsRoot(block.Transactions()); txsRoot != header.TxHash {
		return fmt.Errorf("transactions root mismatch: header %s, computed %s", header.TxHash.Hex(), txsRoot.Hex())
	}

	if header.WithdrawalsHash != nil {
		if wdRoot := deriveWithdrawalsRoot(block.Withdrawals()); wdRoot != *header.WithdrawalsHash {
			return fmt.Errorf("withdrawals root mismatch: header %s, computed %s", header.WithdrawalsHash.Hex(), wdRoot.Hex())
		}
	}

	return nil
}

// InsertChain inserts blocks in order, stopping at the first failure and
// returning how many were inserted.
func (bc *Blockchain) InsertChain(blocks []*types.Block) (int, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for i, block := range blocks {
		if err := bc.insertBlock(block); err != nil {
			return i, err
		}
	}
	return len(blocks), nil
}

// GetBlock retrieves a block by hash, or nil.
func (bc *Blockchain) GetBlock(hash types.Hash) *types.Block {
	bc.cacheMu.RLock()
	defer bc.cacheMu.RUnlock()
	return bc.blockCache[hash]
}

// GetBlockByNumber retrieves the canonical block at the given height.
func (bc *Blockchain) GetBlockByNumber(number uint64) *types.Block {
	bc.cacheMu.RLock()
	defer bc.cacheMu.RUnlock()
	hash, ok := bc.canonCache[number]
	if !ok {
		return nil
	}
	return bc.blockCache[hash]
}

// CurrentBlock returns the head of the canonical chain.
func (bc *Blockchain) CurrentBlock() *types.Block {
	bc.cacheMu.RLock()
	defer bc.cacheMu.RUnlock()
	return bc.currentBlock
}

// HasBlock reports whether a block with the given hash is known.
func (bc *Blockchain) HasBlock(hash types.Hash) bool {
	bc.cacheMu.RLock()
	defer bc.cacheMu.RUnlock()
	_, ok := bc.blockCache[hash]
	return ok
}

// SetHead rewinds the canonical chain to the given height, dropping
// everything above it.
func (bc *Blockchain) SetHead(number uint64) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.cacheMu.RLock()
	target, ok := bc.canonCache[number]
	bc.cacheMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no canonical block at %d", ErrBlockNotFound, number)
	}

	bc.cacheMu.Lock()
	current := bc.currentBlock.NumberU64()
	for n := current; n > number; n-- {
		if hash, ok := bc.canonCache[n]; ok {
			delete(bc.canonCache, n)
			delete(bc.blockCache, hash)
		}
	}
	bc.currentBlock = bc.blockCache[target]
	bc.cacheMu.Unlock()
	chainLog.Info("chain head rewound", "number", number, "hash", target.Hex())

	statedb, err := bc.stateAt(bc.currentBlock)
	if err != nil {
		return fmt.Errorf("re-derive state at %d: %w", number, err)
	}
	bc.currentState = statedb

	return nil
}

// GetHashFn resolves block number to canonical hash for the BLOCKHASH
// opcode.
func (bc *Blockchain) GetHashFn() func(uint64) types.Hash {
	return func(number uint64) types.Hash {
		bc.cacheMu.RLock()
		defer bc.cacheMu.RUnlock()
		if hash, ok := bc.canonCache[number]; ok {
			return hash
		}
		return types.Hash{}
	}
}

// Genesis returns the genesis block.
func (bc *Blockchain) Genesis() *types.Block {
	return bc.genesis
}

// Config returns the chain configuration.
func (bc *Blockchain) Config() *ChainConfig {
	return bc.config
}

// State returns a copy of the state at the current head.
func (bc *Blockchain) State() *state.MemoryStateDB {
	bc.cacheMu.RLock()
	defer bc.cacheMu.RUnlock()
	return bc.currentState.Copy()
}

// ChainLength is the canonical chain length including genesis.
func (bc *Blockchain) ChainLength() uint64 {
	bc.cacheMu.RLock()
	defer bc.cacheMu.RUnlock()
	return bc.currentBlock.NumberU64() + 1
}

// stateAt returns the state after executing up to and including block,
// re-deriving it from genesis through the ancestor chain.
func (bc *Blockchain) stateAt(block *types.Block) (*state.MemoryStateDB, error) {
	if block.Hash() == bc.genesis.Hash() {
		return bc.genesisState.Copy(), nil
	}

	var chain []*types.Block
	current := block
	for current.Hash() != bc.genesis.Hash() {
		chain = append(chain, current)
		parent := bc.GetBlock(current.ParentHash())
		if parent == nil {
			return nil, fmt.Errorf("%w: missing ancestor at %v", ErrStateNotFound, current.ParentHash())
		}
		current = parent
	}

	statedb := bc.genesisState.Copy()
	for i := len(chain) - 1; i >= 0; i-- {
		b := chain[i]
		if _, err := bc.processor.Process(b, statedb); err != nil {
			return nil, fmt.Errorf("re-execute block %d: %w", b.NumberU64(), err)
		}
		if _, err := statedb.Commit(); err != nil {
			return nil, fmt.Errorf("commit block %d: %w", b.NumberU64(), err)
		}
	}
	return statedb, nil
}
