// Package core's state_transition.go drives one block through the execution
// layer's state transition function: each transaction is validated then
// applied in order, gas and blob-gas usage accumulate across the block, and
// the resulting header fields (state root, gas used, logs bloom) are checked
// against what the block claims.
package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
)

var (
	ErrSTBlobGasExceeded     = errors.New("blob gas limit exceeded")
	ErrSTBlobGasUsedInvalid  = errors.New("blob gas used mismatch")
	ErrSTStateRootMismatch   = errors.New("post-state root mismatch")
	ErrSTReceiptRootMismatch = errors.New("receipt root mismatch")
	ErrSTBloomMismatch       = errors.New("logs bloom mismatch")
	ErrSTGasUsedMismatch     = errors.New("gas used mismatch")
	ErrSTInvalidSender       = errors.New("transaction sender not set")
	ErrSTMaxBlobGas          = errors.New("max blob gas per block exceeded")
)

const (
	stBlobGasPerBlob      = 131072 // EIP-4844 gas charged per blob
	stMaxBlobGasPerBlock  = 6 * stBlobGasPerBlob
	accessListAddrCost    = 2400 // EIP-2930 per-address access list entry
	accessListStorageCost = 1900 // EIP-2930 per-storage-key access list entry
)

// StateTransition applies a block's transactions against the world state one
// at a time, in order, accumulating gas, blob gas and logs as it goes. A
// single instance may be reused across blocks; its mutex only serializes
// concurrent ApplyBlock calls against each other, not against the state it's
// handed (callers own that).
type StateTransition struct {
	mu     sync.Mutex
	config *ChainConfig
}

// NewStateTransition builds a StateTransition bound to config's fork schedule.
func NewStateTransition(config *ChainConfig) *StateTransition {
	return &StateTransition{config: config}
}

// TransitionResult holds everything ApplyBlock derived while running a
// block, for comparison against the block's own claimed header fields in
// ValidatePostBlock.
type TransitionResult struct {
	Receipts    []*types.Receipt
	GasUsed     uint64
	BlobGasUsed uint64
	LogsBloom   types.Bloom
	StateRoot   types.Hash
}

// blockAccumulator collects the running totals ApplyBlock builds up as it
// walks a block's transactions.
type blockAccumulator struct {
	receipts []*types.Receipt
	gasUsed  uint64
	blobGas  uint64
	logs     []*types.Log
}

func (acc *blockAccumulator) addReceipt(r *types.Receipt, usedGas uint64) {
	acc.gasUsed += usedGas
	r.CumulativeGasUsed = acc.gasUsed
	acc.receipts = append(acc.receipts, r)
	acc.logs = append(acc.logs, r.Logs...)
}

func (acc *blockAccumulator) addBlobGas(tx *types.Transaction) error {
	blobGas := tx.BlobGas()
	if blobGas == 0 {
		return nil
	}
	acc.blobGas += blobGas
	if acc.blobGas > stMaxBlobGasPerBlock {
		return fmt.Errorf("%w: cumulative %d exceeds max %d",
			ErrSTMaxBlobGas, acc.blobGas, stMaxBlobGasPerBlock)
	}
	return nil
}

// assignLogIndices numbers every log across the block's receipts in
// execution order, not per-transaction order.
func assignLogIndices(receipts []*types.Receipt) {
	var idx uint
	for _, r := range receipts {
		for _, l := range r.Logs {
			l.Index = idx
			idx++
		}
	}
}

// ApplyBlock runs every transaction in block against statedb in order,
// validating each before execution, then processes withdrawals and checks
// the accumulated blob gas against the header before committing state.
func (st *StateTransition) ApplyBlock(block *types.Block, statedb state.StateDB) (*TransitionResult, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	header := block.Header()

	if st.config != nil && st.config.IsLondon(header.Number) && header.BaseFee == nil {
		return nil, ErrInvalidBaseFee
	}

	acc := &blockAccumulator{}
	if err := st.runTransactions(block, statedb, acc); err != nil {
		return nil, err
	}
	assignLogIndices(acc.receipts)

	if st.config != nil && st.config.IsShanghai(header.Time) {
		ProcessWithdrawals(statedb, block.Withdrawals())
	}

	if header.BlobGasUsed != nil && *header.BlobGasUsed != acc.blobGas {
		return nil, fmt.Errorf("%w: header %d, computed %d",
			ErrSTBlobGasUsedInvalid, *header.BlobGasUsed, acc.blobGas)
	}

	stateRoot, err := statedb.Commit()
	if err != nil {
		return nil, fmt.Errorf("state commit failed: %w", err)
	}

	return &TransitionResult{
		Receipts:    acc.receipts,
		GasUsed:     acc.gasUsed,
		BlobGasUsed: acc.blobGas,
		LogsBloom:   types.CreateBloom(acc.receipts),
		StateRoot:   stateRoot,
	}, nil
}

// runTransactions executes every transaction in block in order, validating
// each first, and folds the resulting receipts and gas/blob-gas totals into
// acc.
func (st *StateTransition) runTransactions(block *types.Block, statedb state.StateDB, acc *blockAccumulator) error {
	header := block.Header()
	gasPool := new(GasPool).AddGas(header.GasLimit)

	for i, tx := range block.Transactions() {
		if err := ValidateTransaction(tx, statedb, header, st.config); err != nil {
			return fmt.Errorf("tx %d validation failed: %w", i, err)
		}

		statedb.SetTxContext(tx.Hash(), i)

		receipt, usedGas, err := applyTransaction(st.config, nil, statedb, header, tx, gasPool)
		if err != nil {
			return fmt.Errorf("tx %d [%s] execution failed: %w", i, tx.Hash().Hex(), err)
		}

		receipt.TransactionIndex = uint(i)
		receipt.BlockHash = block.Hash()
		receipt.BlockNumber = new(big.Int).Set(header.Number)
		for _, log := range receipt.Logs {
			log.BlockNumber = header.Number.Uint64()
			log.BlockHash = block.Hash()
		}

		if err := acc.addBlobGas(tx); err != nil {
			return err
		}
		acc.addReceipt(receipt, usedGas)
	}
	return nil
}

// ValidateTransaction checks tx against the sender's current on-chain state
// and header before it may be executed: nonce, block gas-limit headroom,
// intrinsic gas, the EIP-1559 fee-cap/base-fee relationship, sender balance,
// and (for blob transactions) the EIP-4844 constraints.
func ValidateTransaction(tx *types.Transaction, statedb state.StateDB, header *types.Header, config *ChainConfig) error {
	sender := tx.Sender()
	if sender == nil {
		return ErrSTInvalidSender
	}
	from := *sender

	if err := checkNonce(tx, statedb, from); err != nil {
		return err
	}

	if tx.Gas() > header.GasLimit {
		return fmt.Errorf("%w: tx gas %d > block limit %d",
			ErrGasLimitExceeded, tx.Gas(), header.GasLimit)
	}

	if igas := computeIntrinsicGas(tx); tx.Gas() < igas {
		return fmt.Errorf("%w: have %d, want %d",
			ErrIntrinsicGasTooLow, tx.Gas(), igas)
	}

	if header.BaseFee != nil && header.BaseFee.Sign() > 0 {
		if feeCap := tx.GasFeeCap(); feeCap != nil && feeCap.Cmp(header.BaseFee) < 0 {
			return fmt.Errorf("max fee per gas (%s) < base fee (%s)",
				feeCap.String(), header.BaseFee.String())
		}
	}

	cost := TxCost(tx, header.BaseFee)
	if balance := statedb.GetBalance(from); balance.Cmp(cost) < 0 {
		return fmt.Errorf("%w: have %s, want %s",
			ErrInsufficientBalance, balance.String(), cost.String())
	}

	if tx.Type() == types.BlobTxType {
		if err := checkBlobConstraints(tx, header); err != nil {
			return err
		}
	}

	return nil
}

// checkNonce requires tx's nonce to match from's current account nonce
// exactly — gaps and replays are both rejected, not just replays.
func checkNonce(tx *types.Transaction, statedb state.StateDB, from types.Address) error {
	stateNonce := statedb.GetNonce(from)
	if tx.Nonce() < stateNonce {
		return fmt.Errorf("%w: tx %d, state %d", ErrNonceTooLow, tx.Nonce(), stateNonce)
	}
	if tx.Nonce() > stateNonce {
		return fmt.Errorf("%w: tx %d, state %d", ErrNonceTooHigh, tx.Nonce(), stateNonce)
	}
	return nil
}

// checkBlobConstraints enforces the EIP-4844 rules specific to blob
// transactions: at least one blob, the per-block blob gas ceiling, the blob
// fee cap covering the header's blob base fee, and no contract creation.
func checkBlobConstraints(tx *types.Transaction, header *types.Header) error {
	blobHashes := tx.BlobHashes()
	if len(blobHashes) == 0 {
		return errors.New("blob tx must have at least one blob")
	}
	if uint64(len(blobHashes))*stBlobGasPerBlob > stMaxBlobGasPerBlock {
		return fmt.Errorf("%w: %d blobs", ErrSTBlobGasExceeded, len(blobHashes))
	}
	if header.ExcessBlobGas != nil {
		blobBaseFee := calcBlobBaseFee(*header.ExcessBlobGas)
		if blobFeeCap := tx.BlobGasFeeCap(); blobFeeCap != nil && blobFeeCap.Cmp(blobBaseFee) < 0 {
			return fmt.Errorf("blob fee cap (%s) < blob base fee (%s)",
				blobFeeCap.String(), blobBaseFee.String())
		}
	}
	if tx.To() == nil {
		return errors.New("blob tx must not be contract creation")
	}
	return nil
}

// computeIntrinsicGas totals the gas a transaction owes before the EVM runs
// a single instruction: the flat per-transaction base, contract-creation
// overhead, calldata byte costs, EIP-2930 access list entries, and EIP-7702
// authorization tuples.
func computeIntrinsicGas(tx *types.Transaction) uint64 {
	gas := TxGas
	if tx.To() == nil {
		gas += TxCreateGas
	}
	gas += calldataGas(tx.Data())

	for _, tuple := range tx.AccessList() {
		gas += accessListAddrCost
		gas += uint64(len(tuple.StorageKeys)) * accessListStorageCost
	}
	if auths := tx.AuthorizationList(); len(auths) > 0 {
		gas += uint64(len(auths)) * PerAuthBaseCost
	}
	return gas
}

// calldataGas prices a transaction's data payload at the zero/non-zero byte
// rates.
func calldataGas(data []byte) uint64 {
	var gas uint64
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGas
		}
	}
	return gas
}

// TxCost computes the most a transaction could possibly debit from its
// sender: the value transferred, plus gas-limit*fee-cap, plus (for blob
// transactions) blob-gas*blob-fee-cap. This is a ceiling used for balance
// checks, not the amount actually charged — EffectiveGasPrice governs that.
func TxCost(tx *types.Transaction, baseFee *big.Int) *big.Int {
	cost := new(big.Int)
	if v := tx.Value(); v != nil {
		cost.Set(v)
	}

	gasPrice := tx.GasFeeCap()
	if gasPrice == nil {
		gasPrice = tx.GasPrice()
	}
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	cost.Add(cost, new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(tx.Gas())))

	if blobFeeCap := tx.BlobGasFeeCap(); blobFeeCap != nil {
		cost.Add(cost, new(big.Int).Mul(blobFeeCap, new(big.Int).SetUint64(tx.BlobGas())))
	}

	return cost
}

// EffectiveGasPrice is the price per gas actually charged: GasPrice for
// legacy transactions, or min(GasFeeCap, BaseFee+GasTipCap) once a base fee
// applies (EIP-1559).
func EffectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil || baseFee.Sign() <= 0 {
		if p := tx.GasPrice(); p != nil {
			return new(big.Int).Set(p)
		}
		return new(big.Int)
	}

	feeCap := tx.GasFeeCap()
	if feeCap == nil {
		return new(big.Int).Set(baseFee)
	}
	tip := tx.GasTipCap()
	if tip == nil {
		tip = new(big.Int)
	}

	effective := new(big.Int).Add(baseFee, tip)
	if effective.Cmp(feeCap) > 0 {
		return new(big.Int).Set(feeCap)
	}
	return effective
}

// ValidatePostBlock checks a block's claimed gas-used, state root, and logs
// bloom against what executing it actually produced.
func ValidatePostBlock(header *types.Header, result *TransitionResult) error {
	if header.GasUsed != result.GasUsed {
		return fmt.Errorf("%w: header %d, computed %d",
			ErrSTGasUsedMismatch, header.GasUsed, result.GasUsed)
	}
	if header.Root != result.StateRoot {
		return fmt.Errorf("%w: header %s, computed %s",
			ErrSTStateRootMismatch, header.Root.Hex(), result.StateRoot.Hex())
	}
	if header.Bloom != result.LogsBloom {
		return ErrSTBloomMismatch
	}
	return nil
}

// NextBlockBaseFee is a thin forwarding wrapper to CalcBaseFee, kept so
// callers reasoning about "the next block" don't need to know the EIP-1559
// math lives elsewhere in the package.
func NextBlockBaseFee(parent *types.Header) *big.Int {
	return CalcBaseFee(parent)
}

// NextExcessBlobGas forwards to CalcExcessBlobGas for the same reason
// NextBlockBaseFee forwards to CalcBaseFee.
func NextExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed uint64) uint64 {
	return CalcExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed)
}

// BlockReward computes the static block reward for the given block number.
// Post-merge (PoS) blocks have zero block reward; the validator is
// compensated through the consensus layer.
func BlockReward(config *ChainConfig, header *types.Header) *big.Int {
	if config != nil && config.IsMerge() {
		return new(big.Int) // no block reward post-merge
	}
	// Pre-merge: 2 ETH per block (post-Constantinople).
	reward := new(big.Int).Mul(big.NewInt(2), new(big.Int).SetUint64(1e18))
	return reward
}
