package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/bal"
	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/core/vm"
)

const (
	// TxGas is the base gas cost of a transaction (21000).
	TxGas uint64 = 21000
	// TxDataZeroGas is the gas cost per zero byte of transaction data.
	TxDataZeroGas uint64 = 4
	// TxDataNonZeroGas is the gas cost per non-zero byte of transaction data.
	TxDataNonZeroGas uint64 = 16
	// TxCreateGas is the extra gas for contract creation transactions.
	TxCreateGas uint64 = 32000

	// PerAuthBaseCost is the EIP-7702 per-authorization base gas cost charged
	// for every entry in the authorization list, regardless of whether the
	// target account is empty.
	PerAuthBaseCost uint64 = 12500

	// PerEmptyAccountCost is the additional EIP-7702 gas charged per
	// authorization entry that targets an account not yet present in state.
	PerEmptyAccountCost uint64 = 25000
)

var (
	ErrNonceTooLow         = errors.New("nonce too low")
	ErrNonceTooHigh        = errors.New("nonce too high")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrGasLimitExceeded    = errors.New("gas limit exceeded")
	ErrIntrinsicGasTooLow  = errors.New("intrinsic gas too low")
	ErrContractCreation    = errors.New("contract creation failed")
	ErrContractCall        = errors.New("contract call failed")
)

// StateProcessor walks a block's transactions against a StateDB in order,
// producing receipts and, where the block access list feature is active,
// a Block Access List (EIP-7928).
type StateProcessor struct {
	config  *ChainConfig
	getHash vm.GetHashFunc
}

// NewStateProcessor creates a new state processor.
func NewStateProcessor(config *ChainConfig) *StateProcessor {
	return &StateProcessor{config: config}
}

// SetGetHash sets the block hash lookup function used by the BLOCKHASH opcode.
func (p *StateProcessor) SetGetHash(fn vm.GetHashFunc) {
	p.getHash = fn
}

// Process executes every transaction in a block and returns the receipts.
func (p *StateProcessor) Process(block *types.Block, statedb state.StateDB) ([]*types.Receipt, error) {
	result, err := p.ProcessWithBAL(block, statedb)
	if err != nil {
		return nil, err
	}
	return result.Receipts, nil
}

// blockPass carries the running state a StateProcessor accumulates while it
// walks a block's transaction list: cumulative gas, the receipts produced so
// far, and (when active) the in-progress Block Access List.
type blockPass struct {
	header            *types.Header
	gasPool           *GasPool
	receipts          []*types.Receipt
	cumulativeGas     uint64
	cumulativeCdGas   uint64
	calldataGasActive bool
	calldataGasLimit  uint64
	balActive         bool
	bal               *bal.BlockAccessList
}

// ProcessWithBAL executes every transaction in a block and returns the
// receipts together with the computed Block Access List (EIP-7928). The BAL
// is populated only once the Amsterdam fork is active; otherwise it is nil.
func (p *StateProcessor) ProcessWithBAL(block *types.Block, statedb state.StateDB) (*ProcessResult, error) {
	header := block.Header()
	pass := &blockPass{
		header:  header,
		gasPool: new(GasPool).AddGas(block.GasLimit()),
	}

	p.runSystemHooks(statedb, header)

	pass.balActive = p.config != nil && p.config.IsAmsterdam(header.Time)
	if pass.balActive {
		pass.bal = bal.NewBlockAccessList()
	}

	pass.calldataGasActive = p.config != nil && p.config.IsGlamsterdan(header.Time) && header.CalldataExcessGas != nil
	if pass.calldataGasActive {
		pass.calldataGasLimit = CalcCalldataGasLimit(header.GasLimit)
	}

	for i, tx := range block.Transactions() {
		if err := p.runOne(statedb, block, pass, i, tx); err != nil {
			return nil, err
		}
	}

	stampLogIndices(pass.receipts)

	if p.config != nil && p.config.IsShanghai(header.Time) {
		ProcessWithdrawals(statedb, block.Withdrawals())
	}

	return &ProcessResult{
		Receipts:        pass.receipts,
		BlockAccessList: pass.bal,
	}, nil
}

// runSystemHooks runs the pre-transaction system-level state mutations that
// activate at specific forks: EIP-4788 beacon root storage, EIP-2935 parent
// hash history, and the EIP-7997 CREATE2 factory deployment.
func (p *StateProcessor) runSystemHooks(statedb state.StateDB, header *types.Header) {
	if p.config == nil {
		return
	}
	if p.config.IsCancun(header.Time) {
		ProcessBeaconBlockRoot(statedb, header)
	}
	if p.config.IsPrague(header.Time) && header.Number.Uint64() > 0 {
		ProcessParentBlockHash(statedb, header.Number.Uint64()-1, header.ParentHash)
	}
	if p.config.IsGlamsterdan(header.Time) {
		ApplyEIP7997(statedb)
	}
}

// runOne applies a single transaction within a block pass: it executes the
// transaction, folds its gas and calldata-gas usage into the running totals,
// stamps receipt fields that depend on block position, and (when BAL
// tracking is active) records the resulting state deltas.
func (p *StateProcessor) runOne(statedb state.StateDB, block *types.Block, pass *blockPass, i int, tx *types.Transaction) error {
	statedb.SetTxContext(tx.Hash(), i)

	var pre *preState
	if pass.balActive {
		pre = snapshotPreState(statedb, tx)
	}

	receipt, usedGas, err := applyTransaction(p.config, p.getHash, statedb, pass.header, tx, pass.gasPool)
	if err != nil {
		return fmt.Errorf("could not apply tx %d [%v]: %w", i, tx, err)
	}

	pass.cumulativeGas += usedGas
	receipt.CumulativeGasUsed = pass.cumulativeGas

	if pass.calldataGasActive {
		txCdGas := tx.CalldataGas()
		if pass.cumulativeCdGas+txCdGas > pass.calldataGasLimit {
			return fmt.Errorf("calldata gas limit exceeded: used %d + tx %d > limit %d",
				pass.cumulativeCdGas, txCdGas, pass.calldataGasLimit)
		}
		pass.cumulativeCdGas += txCdGas
	}

	receipt.TransactionIndex = uint(i)
	receipt.BlockHash = block.Hash()
	receipt.BlockNumber = new(big.Int).Set(pass.header.Number)
	stampLogContext(receipt, pass.header, block.Hash())

	pass.receipts = append(pass.receipts, receipt)

	if pass.balActive {
		tracker := bal.NewTracker()
		recordTrackerDeltas(tracker, statedb, pre)
		txBAL := tracker.Build(uint64(i + 1)) // AccessIndex 1..n for transactions
		for _, entry := range txBAL.Entries {
			pass.bal.AddEntry(entry)
		}
	}
	return nil
}

// preState is a snapshot of the balance and nonce of the addresses a
// transaction touches directly, captured before it runs so the BAL tracker
// can diff against the post-execution state.
type preState struct {
	balances map[types.Address]*big.Int
	nonces   map[types.Address]uint64
}

// snapshotPreState captures balance and nonce values for the sender and
// recipient of a transaction before it is applied.
func snapshotPreState(statedb state.StateDB, tx *types.Transaction) *preState {
	pre := &preState{
		balances: make(map[types.Address]*big.Int),
		nonces:   make(map[types.Address]uint64),
	}
	if sender := tx.Sender(); sender != nil {
		pre.balances[*sender] = new(big.Int).Set(statedb.GetBalance(*sender))
		pre.nonces[*sender] = statedb.GetNonce(*sender)
	}
	if to := tx.To(); to != nil {
		pre.balances[*to] = new(big.Int).Set(statedb.GetBalance(*to))
		pre.nonces[*to] = statedb.GetNonce(*to)
	}
	return pre
}

// recordTrackerDeltas compares a preState snapshot against current state and
// records any balance or nonce changes into the BAL tracker.
func recordTrackerDeltas(tracker *bal.AccessTracker, statedb state.StateDB, pre *preState) {
	for addr, preBal := range pre.balances {
		if postBal := statedb.GetBalance(addr); preBal.Cmp(postBal) != 0 {
			tracker.RecordBalanceChange(addr, preBal, postBal)
		}
	}
	for addr, preNonce := range pre.nonces {
		if postNonce := statedb.GetNonce(addr); preNonce != postNonce {
			tracker.RecordNonceChange(addr, preNonce, postNonce)
		}
	}
}

// stampLogIndices assigns a block-wide, sequential Index to every log across
// a set of receipts, in receipt order.
func stampLogIndices(receipts []*types.Receipt) {
	var idx uint
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			log.Index = idx
			idx++
		}
	}
}

// ProcessResult holds the output of block processing: receipts, EIP-7685
// requests, and the Block Access List (EIP-7928) when Amsterdam is active.
type ProcessResult struct {
	Receipts        []*types.Receipt
	Requests        types.Requests
	BlockAccessList *bal.BlockAccessList
}

// ProcessWithdrawals applies EIP-4895 beacon chain withdrawals to the state.
// Each withdrawal credits the given address with its amount, denominated in
// Gwei and converted to Wei (1 Gwei = 1e9 Wei). Withdrawals consume no gas
// and run after all transactions. A nil or empty slice is a no-op.
func ProcessWithdrawals(statedb state.StateDB, withdrawals []*types.Withdrawal) {
	for _, w := range withdrawals {
		if w == nil {
			continue
		}
		amount := new(big.Int).SetUint64(w.Amount)
		amount.Mul(amount, big.NewInt(1_000_000_000))
		statedb.AddBalance(w.Address, amount)
	}
}

// CalcWithdrawalsHash computes the withdrawals root hash from a slice of
// withdrawals. Each withdrawal is RLP-encoded as [index, validatorIndex,
// address, amount] and inserted into a trie keyed by its position index.
// Returns EmptyRootHash for a nil or empty slice.
func CalcWithdrawalsHash(withdrawals []*types.Withdrawal) types.Hash {
	return deriveWithdrawalsRoot(withdrawals)
}

// ProcessWithRequests executes all transactions in a block and then collects
// EIP-7685 execution layer requests from system contracts. Use this for
// post-Prague blocks carrying a requests_hash field.
func (p *StateProcessor) ProcessWithRequests(block *types.Block, statedb state.StateDB) (*ProcessResult, error) {
	receipts, err := p.Process(block, statedb)
	if err != nil {
		return nil, err
	}

	requests, err := ProcessRequests(p.config, statedb, block.Header())
	if err != nil {
		return nil, fmt.Errorf("processing execution requests: %w", err)
	}

	return &ProcessResult{
		Receipts: receipts,
		Requests: requests,
	}, nil
}

// requestSource pairs a system contract address with the request type it
// produces, driving the EIP-7685 collection loop in ProcessRequests.
type requestSource struct {
	addr    types.Address
	reqType byte
}

// ProcessRequests collects execution layer requests from system contracts
// after all transactions are processed. This implements EIP-7685: requests
// are read from well-known system contracts using a fixed storage
// convention (see decodeSystemRequests) rather than from a user-initiated
// transaction, and do not consume block gas.
func ProcessRequests(config *ChainConfig, statedb state.StateDB, header *types.Header) (types.Requests, error) {
	if config == nil || !config.IsPrague(header.Time) {
		return nil, nil
	}

	sources := []requestSource{
		{types.DepositContractAddress, types.DepositRequestType},
		{types.WithdrawalRequestAddress, types.WithdrawalRequestType},
		{types.ConsolidationRequestAddress, types.ConsolidationRequestType},
	}

	var requests types.Requests
	for _, src := range sources {
		if !statedb.Exist(src.addr) {
			continue
		}
		collected, err := decodeSystemRequests(statedb, src.addr, src.reqType)
		if err != nil {
			return nil, fmt.Errorf("request type 0x%02x: %w", src.reqType, err)
		}
		requests = append(requests, collected...)
	}
	return requests, nil
}

// reqCountSlot is the well-known storage slot (slot 0) where system
// contracts store the count of pending requests.
var reqCountSlot = types.Hash{}

// reqDataSlotBase is the base storage slot (slot 1) where system contracts
// store request data sequentially.
var reqDataSlotBase = types.BytesToHash([]byte{0x01})

// decodeSystemRequests reads pending requests out of a system contract's
// storage.
//
// Convention: slot 0 holds the request count as a uint256; slots 1..N each
// hold one request's data as a raw 32-byte word. After reading, the count
// slot is cleared so the requests are not read again.
func decodeSystemRequests(statedb state.StateDB, addr types.Address, reqType byte) (types.Requests, error) {
	count := uint64FromHash(statedb.GetState(addr, reqCountSlot))
	if count == 0 {
		return nil, nil
	}

	var requests types.Requests
	for i := uint64(0); i < count; i++ {
		slot := offsetSlot(reqDataSlotBase, i)
		data := statedb.GetState(addr, slot)
		if data == (types.Hash{}) {
			continue
		}
		if trimmed := trimZeroSuffix(data[:]); len(trimmed) > 0 {
			requests = append(requests, types.NewRequest(reqType, trimmed))
		}
	}

	statedb.SetState(addr, reqCountSlot, types.Hash{})
	return requests, nil
}

// uint64FromHash extracts a uint64 from the low 8 bytes of a big-endian
// uint256 storage word.
func uint64FromHash(val types.Hash) uint64 {
	var count uint64
	for i := 24; i < 32; i++ {
		count = (count << 8) | uint64(val[i])
	}
	return count
}

// offsetSlot computes a sequential storage slot address: base + offset.
func offsetSlot(base types.Hash, offset uint64) types.Hash {
	var result types.Hash
	copy(result[:], base[:])
	carry := offset
	for i := 31; i >= 0 && carry > 0; i-- {
		sum := uint64(result[i]) + (carry & 0xFF)
		result[i] = byte(sum & 0xFF)
		carry = (carry >> 8) + (sum >> 8)
	}
	return result
}

// trimZeroSuffix removes trailing zero bytes from a slice, returning nil if
// every byte is zero.
func trimZeroSuffix(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	if end == 0 {
		return nil
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out
}

// ApplyTransaction applies a single transaction to the state and returns its
// receipt. It is a convenience wrapper around applyTransaction that runs
// without a BLOCKHASH lookup function.
func ApplyTransaction(config *ChainConfig, statedb state.StateDB, header *types.Header, tx *types.Transaction, gp *GasPool) (*types.Receipt, uint64, error) {
	return applyTransaction(config, nil, statedb, header, tx, gp)
}

// applyTransaction runs a transaction's message against the EVM, builds its
// receipt, and rolls back all state changes on failure via a snapshot.
func applyTransaction(config *ChainConfig, getHash vm.GetHashFunc, statedb state.StateDB, header *types.Header, tx *types.Transaction, gp *GasPool) (*types.Receipt, uint64, error) {
	msg := TransactionToMessage(tx)

	snapshot := statedb.Snapshot()
	result, err := runMessage(config, getHash, statedb, header, &msg, gp)
	if err != nil {
		statedb.RevertToSnapshot(snapshot)
		return nil, 0, err
	}

	receipt := buildReceipt(tx, header, &msg, result, statedb)
	return receipt, result.UsedGas, nil
}

// buildReceipt assembles a transaction's receipt from its execution result.
// CumulativeGasUsed is left as the single-tx usage; the caller (ProcessWithBAL)
// folds it into the block-wide running total.
func buildReceipt(tx *types.Transaction, header *types.Header, msg *Message, result *ExecutionResult, statedb state.StateDB) *types.Receipt {
	status := types.ReceiptStatusSuccessful
	if result.Failed() {
		status = types.ReceiptStatusFailed
	}

	receipt := types.NewReceipt(status, result.UsedGas)
	receipt.TxHash = tx.Hash()
	receipt.GasUsed = result.UsedGas
	receipt.EffectiveGasPrice = messageGasPrice(msg, header.BaseFee)
	receipt.Type = tx.Type()

	if msg.To == nil {
		receipt.ContractAddress = result.ContractAddress
	}

	if blobGas := tx.BlobGas(); blobGas > 0 {
		receipt.BlobGasUsed = blobGas
		if header.ExcessBlobGas != nil {
			receipt.BlobGasPrice = calcBlobBaseFee(*header.ExcessBlobGas)
		}
	}

	if cdGas := tx.CalldataGas(); cdGas > 0 && header.CalldataExcessGas != nil {
		receipt.CalldataGasUsed = cdGas
		receipt.CalldataGasPrice = CalcCalldataBaseFeeFromHeader(header)
	}

	receipt.Logs = statedb.GetLogs(tx.Hash())
	receipt.Bloom = types.LogsBloom(receipt.Logs)
	return receipt
}

// stampLogContext fills in the block-level fields on each log attached to a
// receipt: BlockNumber and BlockHash. TxHash/TxIndex are set earlier by
// StateDB.AddLog, and the global Index is assigned later by stampLogIndices.
func stampLogContext(receipt *types.Receipt, header *types.Header, blockHash types.Hash) {
	for _, log := range receipt.Logs {
		log.BlockNumber = header.Number.Uint64()
		log.BlockHash = blockHash
	}
}

// baseIntrinsicGas computes the base gas cost of a transaction before EVM
// execution, pre-Glamsterdam. For EIP-7702 SetCode transactions, authCount
// is the number of authorization entries and emptyAuthCount counts those
// targeting accounts not yet present in state.
func baseIntrinsicGas(data []byte, isCreate, isShanghai bool, authCount, emptyAuthCount uint64) uint64 {
	gas := TxGas
	if isCreate {
		gas += TxCreateGas
	}
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGas
		}
	}
	// EIP-3860: init code word gas for contract creations (Shanghai+).
	if isCreate && isShanghai {
		words := (uint64(len(data)) + 31) / 32
		gas += words * vm.InitCodeWordGas
	}
	gas += authCount * PerAuthBaseCost
	gas += emptyAuthCount * PerEmptyAccountCost
	return gas
}

// EIP-7623 calldata gas cost floor constants: a higher floor cost for
// calldata to incentivize blob usage. The actual gas charged is
// max(standard_cost, floor_cost).
const (
	// TotalCostFloorPerToken is the floor gas cost per calldata token.
	TotalCostFloorPerToken uint64 = 10
	// StandardTokenCost is the standard EIP-2028 cost for non-zero bytes.
	StandardTokenCost uint64 = 16
	// FloorTokenCost is the EIP-7623 floor cost applied after execution.
	FloorTokenCost uint64 = 10
)

// TotalCostFloorPerTokenGlamst is the EIP-7976 Glamsterdam replacement for
// TotalCostFloorPerToken: it rises from 10 to 16, while floor tokens are
// counted as (zero_bytes + nonzero_bytes) * 4 instead of being weighted by
// byte value.
const TotalCostFloorPerTokenGlamst uint64 = 16

// calldataFloor computes the EIP-7623 calldata floor gas cost:
// floor_gas = TxGas + tokens * TotalCostFloorPerToken, tokens weighted
// 1 per zero byte and 4 per non-zero byte.
func calldataFloor(data []byte, isCreate bool) uint64 {
	floor := TxGas + calldataTokens(data)*TotalCostFloorPerToken
	if isCreate {
		floor += TxCreateGas
	}
	return floor
}

// calldataFloorGlamst computes the EIP-7976 calldata floor gas cost, folding
// in the EIP-7981 access list floor.
func calldataFloorGlamst(data []byte, accessList types.AccessList, isCreate bool) uint64 {
	// EIP-7976: floor tokens count every byte equally, unlike the standard path.
	tokens := uint64(len(data))*4 + accessListDataTokens(accessList)
	floor := vm.TxBaseGlamsterdam + tokens*TotalCostFloorPerTokenGlamst
	if isCreate {
		floor += TxCreateGas
	}
	return floor
}

// calldataTokens computes calldata tokens for the standard path:
// zero bytes count 1, non-zero bytes count 4.
func calldataTokens(data []byte) uint64 {
	var tokens uint64
	for _, b := range data {
		if b == 0 {
			tokens++
		} else {
			tokens += 4
		}
	}
	return tokens
}

// accessListDataTokens computes EIP-7981 data tokens for access list
// entries: zero bytes count 1, non-zero bytes count 4, across every address
// and storage key in the list.
func accessListDataTokens(accessList types.AccessList) uint64 {
	var zero, nonzero uint64
	countBytes := func(b []byte) {
		for _, v := range b {
			if v == 0 {
				zero++
			} else {
				nonzero++
			}
		}
	}
	for _, tuple := range accessList {
		countBytes(tuple.Address[:])
		for _, key := range tuple.StorageKeys {
			countBytes(key[:])
		}
	}
	return zero + nonzero*4
}

// alGasStandard computes the EIP-2930 access list gas cost: 2400 gas per
// address plus 1900 gas per storage key.
func alGasStandard(accessList types.AccessList) uint64 {
	var gas uint64
	for _, tuple := range accessList {
		gas += accessListAddrCost
		gas += uint64(len(tuple.StorageKeys)) * accessListStorageCost
	}
	return gas
}

// alGasGlamst computes access list gas under Glamsterdam: EIP-8038 raises
// the per-entry costs, and EIP-7981 adds a data-token surcharge on top.
func alGasGlamst(accessList types.AccessList) uint64 {
	var gas uint64
	for _, tuple := range accessList {
		gas += vm.AccessListAddressGlamst
		gas += uint64(len(tuple.StorageKeys)) * vm.AccessListStorageGlamst
	}
	gas += accessListDataTokens(accessList) * TotalCostFloorPerTokenGlamst
	return gas
}

// baseIntrinsicGasGlamst computes intrinsic gas under Glamsterdam per
// EIP-2780: a reduced 4500 base cost, unchanged calldata pricing, a
// new-account surcharge (EIP-2780), and the EIP-7702 authorization costs.
func baseIntrinsicGasGlamst(data []byte, isCreate, hasValue, toExists bool, authCount, emptyAuthCount uint64) uint64 {
	gas := vm.TxBaseGlamsterdam
	if isCreate {
		gas += TxCreateGas
	}
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGas
		}
	}
	if !isCreate && hasValue && !toExists {
		gas += vm.GasNewAccount
	}
	gas += authCount * PerAuthBaseCost
	gas += emptyAuthCount * PerEmptyAccountCost
	return gas
}

// txExecPlan holds the values computed from a message before the EVM runs:
// the effective gas price, intrinsic gas charge, and gas remaining after
// intrinsic gas is deducted from the gas limit.
type txExecPlan struct {
	gasPrice    *big.Int
	intrinsic   uint64
	gasLeft     uint64
	glamsterdan bool
}

// runMessage executes a transaction message against the state: it validates
// the sender's nonce, code status, and balance, charges intrinsic gas,
// builds and runs the EVM, then settles refunds, the gas pool, and the
// coinbase tip.
func runMessage(config *ChainConfig, getHash vm.GetHashFunc, statedb state.StateDB, header *types.Header, msg *Message, gp *GasPool) (*ExecutionResult, error) {
	if err := gp.SubGas(msg.GasLimit); err != nil {
		return nil, err
	}

	if err := validateSenderState(statedb, msg, header); err != nil {
		gp.AddGas(msg.GasLimit)
		return nil, err
	}

	plan, err := chargeUpfrontCosts(config, statedb, header, msg)
	if err != nil {
		gp.AddGas(msg.GasLimit)
		return nil, err
	}

	isCreate := msg.To == nil
	if !isCreate {
		statedb.SetNonce(msg.From, msg.Nonce+1)
	}

	evm, precompileAddrs := buildEVM(config, getHash, statedb, header, msg, plan.gasPrice)
	warmAccessList(statedb, msg, header, precompileAddrs)

	if msg.TxType == types.SetCodeTxType && len(msg.AuthList) > 0 {
		var chainID *big.Int
		if config != nil {
			chainID = config.ChainID
		}
		if err := ProcessAuthorizations(statedb, msg.AuthList, chainID); err != nil {
			return nil, fmt.Errorf("processing EIP-7702 authorizations: %w", err)
		}
	}

	var (
		execErr      error
		returnData   []byte
		gasRemaining uint64
		contractAddr types.Address
	)
	if isCreate {
		returnData, contractAddr, gasRemaining, execErr = evm.Create(msg.From, msg.Data, plan.gasLeft, msg.Value)
	} else {
		returnData, gasRemaining, execErr = evm.Call(msg.From, *msg.To, msg.Data, plan.gasLeft, msg.Value)
	}

	gasUsed := plan.intrinsic + (plan.gasLeft - gasRemaining)
	gasUsedBeforeRefund := gasUsed
	gasUsed -= computeRefund(statedb, gasUsed)
	gasUsed, gasUsedBeforeRefund = applyCalldataFloor(config, header, msg, isCreate, plan.glamsterdan, gasUsed, gasUsedBeforeRefund)

	settleGas(statedb, gp, header, evm, msg, plan.gasPrice, gasUsed, gasUsedBeforeRefund, plan.glamsterdan)

	return &ExecutionResult{
		UsedGas:         gasUsed,
		BlockGasUsed:    gasUsedBeforeRefund,
		Err:             execErr,
		ReturnData:      returnData,
		ContractAddress: contractAddr,
	}, nil
}

// validateSenderState checks the sender's nonce against the state, rejects
// non-EOA senders (EIP-3607, with an EIP-7702 delegation exception), and
// rejects dynamic-fee transactions whose fee caps are inconsistent with the
// block's base fee.
func validateSenderState(statedb state.StateDB, msg *Message, header *types.Header) error {
	stateNonce := statedb.GetNonce(msg.From)
	if msg.Nonce < stateNonce {
		return fmt.Errorf("%w: address %v, tx nonce: %d, state nonce: %d", ErrNonceTooLow, msg.From, msg.Nonce, stateNonce)
	}
	if msg.Nonce > stateNonce {
		return fmt.Errorf("%w: address %v, tx nonce: %d, state nonce: %d", ErrNonceTooHigh, msg.From, msg.Nonce, stateNonce)
	}

	if codeHash := statedb.GetCodeHash(msg.From); codeHash != (types.Hash{}) && codeHash != types.EmptyCodeHash {
		if code := statedb.GetCode(msg.From); !types.HasDelegationPrefix(code) {
			return fmt.Errorf("sender not an EOA: address %v, codehash: %v", msg.From, codeHash)
		}
	}

	isEIP1559Tx := msg.TxType >= types.DynamicFeeTxType
	if isEIP1559Tx && header.BaseFee != nil && header.BaseFee.Sign() > 0 && msg.GasFeeCap != nil && msg.GasTipCap != nil {
		if msg.GasFeeCap.Cmp(msg.GasTipCap) < 0 {
			return fmt.Errorf("max priority fee per gas higher than max fee per gas: tip %s, cap %s", msg.GasTipCap, msg.GasFeeCap)
		}
		if msg.GasFeeCap.Cmp(header.BaseFee) < 0 {
			return fmt.Errorf("max fee per gas less than block base fee: fee %s, baseFee %s", msg.GasFeeCap, header.BaseFee)
		}
	}
	return nil
}

// chargeUpfrontCosts computes the message's effective gas price and
// intrinsic gas, checks the sender's balance covers the worst-case gas and
// calldata cost plus value, then deducts the actual gas and calldata cost
// from the sender's balance.
func chargeUpfrontCosts(config *ChainConfig, statedb state.StateDB, header *types.Header, msg *Message) (*txExecPlan, error) {
	isEIP1559Tx := msg.TxType >= types.DynamicFeeTxType
	gasPrice := messageGasPrice(msg, header.BaseFee)
	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(msg.GasLimit))

	var calldataGasCost *big.Int
	if config != nil && config.IsGlamsterdan(header.Time) && header.CalldataExcessGas != nil {
		calldataBaseFee := CalcCalldataBaseFeeFromHeader(header)
		calldataGasCost = CalldataGasCost(types.CalldataTokenGas(msg.Data), calldataBaseFee)
	} else {
		calldataGasCost = new(big.Int)
	}

	// Balance check uses GasFeeCap (worst case) for EIP-1559 txs, the
	// effective price for legacy txs.
	balanceGasCost := gasCost
	if isEIP1559Tx && msg.GasFeeCap != nil {
		balanceGasCost = new(big.Int).Mul(msg.GasFeeCap, new(big.Int).SetUint64(msg.GasLimit))
	}
	totalCost := new(big.Int).Add(msg.Value, balanceGasCost)
	totalCost.Add(totalCost, calldataGasCost)
	if balance := statedb.GetBalance(msg.From); balance.Cmp(totalCost) < 0 {
		return nil, fmt.Errorf("%w: address %v have %v want %v", ErrInsufficientBalance, msg.From, balance, totalCost)
	}

	statedb.SubBalance(msg.From, new(big.Int).Add(gasCost, calldataGasCost))

	isCreate := msg.To == nil
	isGlamsterdan := config != nil && config.IsGlamsterdan(header.Time)

	var authCount, emptyAuthCount uint64
	if msg.TxType == types.SetCodeTxType {
		authCount = uint64(len(msg.AuthList))
		for _, auth := range msg.AuthList {
			if !statedb.Exist(auth.Address) || statedb.Empty(auth.Address) {
				emptyAuthCount++
			}
		}
	}

	var igas uint64
	if isGlamsterdan {
		hasValue := msg.Value != nil && msg.Value.Sign() > 0
		toExists := msg.To != nil && statedb.Exist(*msg.To)
		igas = baseIntrinsicGasGlamst(msg.Data, isCreate, hasValue, toExists, authCount, emptyAuthCount)
		igas += alGasGlamst(msg.AccessList)
	} else {
		isShanghai := config != nil && config.IsMerge() && config.IsShanghai(header.Time)
		igas = baseIntrinsicGas(msg.Data, isCreate, isShanghai, authCount, emptyAuthCount)
		igas += alGasStandard(msg.AccessList)
	}

	// EIP-7623/7976: the gas limit must cover the calldata floor too (Prague+),
	// so a post-execution floor bump can never exceed the limit.
	if config != nil && config.IsPrague(header.Time) {
		if floor := txCalldataFloor(msg, isCreate, isGlamsterdan); floor > igas {
			igas = floor
		}
	}
	if igas > msg.GasLimit {
		return nil, fmt.Errorf("intrinsic gas too low: have %d, want %d", msg.GasLimit, igas)
	}

	return &txExecPlan{
		gasPrice:    gasPrice,
		intrinsic:   igas,
		gasLeft:     msg.GasLimit - igas,
		glamsterdan: isGlamsterdan,
	}, nil
}

// txCalldataFloor picks the standard or Glamsterdam calldata floor
// calculation for a message, per the active fork.
func txCalldataFloor(msg *Message, isCreate, isGlamsterdan bool) uint64 {
	if isGlamsterdan {
		return calldataFloorGlamst(msg.Data, msg.AccessList, isCreate)
	}
	return calldataFloor(msg.Data, isCreate)
}

// buildEVM constructs an EVM for the message's block/tx context and, when a
// chain config is present, selects the fork-appropriate jump table and
// precompile set.
func buildEVM(config *ChainConfig, getHash vm.GetHashFunc, statedb state.StateDB, header *types.Header, msg *Message, gasPrice *big.Int) (*vm.EVM, map[types.Address]vm.PrecompiledContract) {
	blockCtx := vm.BlockContext{
		GetHash:     getHash,
		BlockNumber: header.Number,
		Time:        header.Time,
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		BaseFee:     header.BaseFee,
		PrevRandao:  header.MixDigest,
	}
	txCtx := vm.TxContext{
		Origin:     msg.From,
		GasPrice:   gasPrice,
		BlobHashes: msg.BlobHashes,
	}
	evm := vm.NewEVMWithState(blockCtx, txCtx, vm.Config{}, statedb)

	var precompileAddrs map[types.Address]vm.PrecompiledContract
	if config != nil {
		rules := config.Rules(header.Number, config.IsMerge(), header.Time)
		forkRules := vm.ForkRules{
			IsGlamsterdan:    rules.IsGlamsterdan,
			IsPrague:         rules.IsPrague,
			IsCancun:         rules.IsCancun,
			IsShanghai:       rules.IsShanghai,
			IsMerge:          rules.IsMerge,
			IsLondon:         rules.IsLondon,
			IsBerlin:         rules.IsBerlin,
			IsIstanbul:       rules.IsIstanbul,
			IsConstantinople: rules.IsConstantinople,
			IsByzantium:      rules.IsByzantium,
			IsHomestead:      rules.IsHomestead,
			IsEIP158:         rules.IsEIP158,
			IsEIP7708:        rules.IsEIP7708,
			IsEIP7954:        rules.IsEIP7954,
		}
		evm.SetJumpTable(vm.SelectJumpTable(forkRules))
		precompileAddrs = vm.SelectPrecompiles(forkRules)
		evm.SetPrecompiles(precompileAddrs)
		evm.SetForkRules(forkRules)
	}
	return evm, precompileAddrs
}

// warmAccessList pre-warms EIP-2929 access: sender, destination, coinbase,
// active precompiles, and every entry of the message's EIP-2930 access list.
func warmAccessList(statedb state.StateDB, msg *Message, header *types.Header, precompileAddrs map[types.Address]vm.PrecompiledContract) {
	statedb.AddAddressToAccessList(msg.From)
	if msg.To != nil {
		statedb.AddAddressToAccessList(*msg.To)
	}
	statedb.AddAddressToAccessList(header.Coinbase)
	for addr := range precompileAddrs {
		statedb.AddAddressToAccessList(addr)
	}
	for _, tuple := range msg.AccessList {
		statedb.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			statedb.AddSlotToAccessList(tuple.Address, key)
		}
	}
}

// computeRefund applies the EIP-3529 refund cap (gasUsed / 5) to the
// StateDB's accumulated refund counter.
func computeRefund(statedb state.StateDB, gasUsed uint64) uint64 {
	refund := statedb.GetRefund()
	if maxRefund := gasUsed / 5; refund > maxRefund {
		refund = maxRefund
	}
	return refund
}

// applyCalldataFloor bumps gasUsed (and, separately, the pre-refund block
// accounting value) up to the EIP-7623/7976 calldata floor when the floor
// exceeds what execution and refunds would otherwise charge.
func applyCalldataFloor(config *ChainConfig, header *types.Header, msg *Message, isCreate, isGlamsterdan bool, gasUsed, gasUsedBeforeRefund uint64) (uint64, uint64) {
	if config == nil || !config.IsPrague(header.Time) {
		return gasUsed, gasUsedBeforeRefund
	}
	floor := txCalldataFloor(msg, isCreate, isGlamsterdan)
	if floor > gasUsed {
		gasUsed = floor
	}
	// EIP-7778: block-level accounting also observes the floor.
	if floor > gasUsedBeforeRefund {
		gasUsedBeforeRefund = floor
	}
	return gasUsed, gasUsedBeforeRefund
}

// settleGas refunds unused gas to the sender, returns unused gas to the
// block's gas pool (using pre-refund accounting under Glamsterdam per
// EIP-7778), and pays the coinbase its tip (or, pre-EIP-1559, the full gas
// payment), emitting an EIP-7708 burn log for the base fee portion where active.
func settleGas(statedb state.StateDB, gp *GasPool, header *types.Header, evm *vm.EVM, msg *Message, gasPrice *big.Int, gasUsed, gasUsedBeforeRefund uint64, isGlamsterdan bool) {
	remainingGas := msg.GasLimit - gasUsed
	if remainingGas > 0 {
		refundAmount := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(remainingGas))
		statedb.AddBalance(msg.From, refundAmount)
	}

	if isGlamsterdan {
		gp.AddGas(msg.GasLimit - gasUsedBeforeRefund)
	} else {
		gp.AddGas(remainingGas)
	}

	if header.BaseFee != nil && header.BaseFee.Sign() > 0 {
		if tip := new(big.Int).Sub(gasPrice, header.BaseFee); tip.Sign() > 0 {
			statedb.AddBalance(header.Coinbase, new(big.Int).Mul(tip, new(big.Int).SetUint64(gasUsed)))
		}
		if evm.GetForkRules().IsEIP7708 {
			burnAmount := new(big.Int).Mul(header.BaseFee, new(big.Int).SetUint64(gasUsed))
			vm.EmitBurnLog(statedb, msg.From, burnAmount)
		}
	} else {
		statedb.AddBalance(header.Coinbase, new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasUsed)))
	}
}

// messageGasPrice computes the actual gas price paid per EIP-1559: for
// legacy transactions it returns GasPrice directly; for EIP-1559 transactions
// it returns min(GasFeeCap, BaseFee + GasTipCap).
func messageGasPrice(msg *Message, baseFee *big.Int) *big.Int {
	if msg.GasFeeCap != nil && baseFee != nil && baseFee.Sign() > 0 {
		tip := msg.GasTipCap
		if tip == nil {
			tip = new(big.Int)
		}
		price := new(big.Int).Add(baseFee, tip)
		if price.Cmp(msg.GasFeeCap) > 0 {
			price = new(big.Int).Set(msg.GasFeeCap)
		}
		return price
	}
	if msg.GasPrice != nil {
		return new(big.Int).Set(msg.GasPrice)
	}
	return new(big.Int)
}

// calcBlobBaseFee computes the blob base fee from the excess blob gas per
// EIP-4844: blob_base_fee = MIN_BLOB_BASE_FEE * e^(excess_blob_gas / BLOB_BASE_FEE_UPDATE_FRACTION),
// using the fake-exponential approximation from the EIP.
func calcBlobBaseFee(excessBlobGas uint64) *big.Int {
	return taylorApprox(big.NewInt(1), new(big.Int).SetUint64(excessBlobGas), big.NewInt(3338477))
}

// taylorApprox approximates factor * e^(numerator/denominator) via the
// truncated Taylor series used throughout the EIP-4844 fee-market math.
func taylorApprox(factor, numerator, denominator *big.Int) *big.Int {
	i := big.NewInt(1)
	output := new(big.Int)
	accum := new(big.Int).Mul(factor, denominator)
	for accum.Sign() > 0 {
		output.Add(output, accum)
		accum.Mul(accum, numerator)
		accum.Div(accum, new(big.Int).Mul(denominator, i))
		i.Add(i, big.NewInt(1))
	}
	return output.Div(output, denominator)
}
