package core

// EIP-2935 serves historical block hashes from state: every block's
// pre-transaction system step writes the parent hash into a predeploy's
// storage, keyed by number modulo the serve window, so BLOCKHASH can
// reach past the in-memory 256-entry history.

import (
	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
)

// HistoryServeWindow is the number of hashes the contract retains (8192,
// per the Prague revision of the EIP).
const HistoryServeWindow = 8192

// HistoryStorageAddress is the history-storage predeploy.
var HistoryStorageAddress = types.HexToAddress("0x0F792be4B0c0cb4DAE440Ef133E90C0eCD48CCCC")

// historySlot maps a block number to its ring-buffer storage key.
func historySlot(number uint64) types.Hash {
	return uint64ToHash(number % HistoryServeWindow)
}

// ProcessParentBlockHash is the pre-transaction system write: parentHash
// lands at slot parentNumber mod the window, materializing the contract
// account on first use.
func ProcessParentBlockHash(statedb state.StateDB, parentNumber uint64, parentHash types.Hash) {
	if !statedb.Exist(HistoryStorageAddress) {
		statedb.CreateAccount(HistoryStorageAddress)
	}
	statedb.SetState(HistoryStorageAddress, historySlot(parentNumber), parentHash)
}

// GetHistoricalBlockHash reads a served hash back out; zero when the
// contract is absent or the slot was never written.
func GetHistoricalBlockHash(statedb state.StateDB, blockNumber uint64) types.Hash {
	if !statedb.Exist(HistoryStorageAddress) {
		return types.Hash{}
	}
	return statedb.GetState(HistoryStorageAddress, historySlot(blockNumber))
}
