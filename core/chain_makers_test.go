package core

// Shared helpers for the block validation and chain insertion tests: a
// genesis-rooted in-memory chain with an empty allocation, plus header and
// block constructors that fill in every consensus-checked field.

import (
	"math/big"
	"testing"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
)

// makeValidParent returns a parent header that satisfies the post-merge
// constraints and carries blob gas fields, suitable as the anchor for
// ValidateHeader tests.
func makeValidParent() *types.Header {
	zero := uint64(0)
	return &types.Header{
		Number:        big.NewInt(100),
		Time:          1000,
		GasLimit:      30_000_000,
		GasUsed:       0,
		Difficulty:    new(big.Int),
		UncleHash:     types.EmptyUncleHash,
		BaseFee:       big.NewInt(1_000_000_000),
		BlobGasUsed:   &zero,
		ExcessBlobGas: &zero,
	}
}

// makeValidChild builds a header that ValidateHeader accepts as parent's
// direct successor.
func makeValidChild(parent *types.Header) *types.Header {
	var parentExcess, parentUsed uint64
	if parent.ExcessBlobGas != nil {
		parentExcess = *parent.ExcessBlobGas
	}
	if parent.BlobGasUsed != nil {
		parentUsed = *parent.BlobGasUsed
	}
	excess := CalcExcessBlobGas(parentExcess, parentUsed)
	used := uint64(0)

	return &types.Header{
		ParentHash:    parent.Hash(),
		Number:        new(big.Int).Add(parent.Number, big.NewInt(1)),
		Time:          parent.Time + 12,
		GasLimit:      parent.GasLimit,
		GasUsed:       0,
		Difficulty:    new(big.Int),
		UncleHash:     types.EmptyUncleHash,
		BaseFee:       CalcBaseFee(parent),
		BlobGasUsed:   &used,
		ExcessBlobGas: &excess,
	}
}

// testGenesis builds the genesis block testChain roots at: empty
// allocation, all TestConfig forks active.
func testGenesis() *types.Block {
	zero := uint64(0)
	header := &types.Header{
		Number:        big.NewInt(0),
		Time:          0,
		GasLimit:      30_000_000,
		Difficulty:    new(big.Int),
		UncleHash:     types.EmptyUncleHash,
		BaseFee:       big.NewInt(1_000_000_000),
		BlobGasUsed:   &zero,
		ExcessBlobGas: &zero,
	}
	return types.NewBlock(header, &types.Body{Withdrawals: []*types.Withdrawal{}})
}

// testChain creates an in-memory chain over an empty genesis state.
func testChain(t *testing.T) (*Blockchain, *state.MemoryStateDB) {
	t.Helper()
	genesisState := state.NewMemoryStateDB()
	bc, err := NewBlockchain(TestConfig, testGenesis(), genesisState)
	if err != nil {
		t.Fatalf("NewBlockchain: %v", err)
	}
	return bc, genesisState
}

// makeBlock builds a fully-committed block on top of parent: it executes
// the transactions against the state testChain's genesis implies (an empty
// allocation) and fills in gas used, bloom, state root, and the
// transaction, receipt, and withdrawals roots. Only blocks directly on top
// of the test genesis are supported.
func makeBlock(parent *types.Block, txs []*types.Transaction) *types.Block {
	header := makeValidChild(parent.Header())
	body := &types.Body{
		Transactions: txs,
		Withdrawals:  []*types.Withdrawal{},
	}

	statedb := state.NewMemoryStateDB()
	proc := NewStateProcessor(TestConfig)
	receipts, err := proc.Process(types.NewBlock(header, body), statedb)
	if err != nil {
		panic("makeBlock: execution failed: " + err.Error())
	}

	var gasUsed uint64
	if n := len(receipts); n > 0 {
		gasUsed = receipts[n-1].CumulativeGasUsed
	}
	header.GasUsed = gasUsed
	header.Bloom = types.CreateBloom(receipts)

	root, err := statedb.Commit()
	if err != nil {
		panic("makeBlock: state commit failed: " + err.Error())
	}
	header.Root = root
	header.ReceiptHash = DeriveReceiptsRoot(receipts)
	header.TxHash = DeriveTxsRoot(txs)
	wdRoot := deriveWithdrawalsRoot(body.Withdrawals)
	header.WithdrawalsHash = &wdRoot

	return types.NewBlock(header, body)
}
