package vm

// EIP-7708: every nonzero-value ETH transfer emits a log shaped like an
// ERC-20 Transfer event, attributed to the system address.

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

var (
	// transferLogEmitter is the address the EIP-7708 logs are attributed to
	// (the EIP-4788 system address).
	transferLogEmitter = types.HexToAddress("0xfffffffffffffffffffffffffffffffffffffffe")

	// TransferEventTopic is keccak256("Transfer(address,address,uint256)").
	TransferEventTopic = types.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

	// BurnEventTopic is keccak256("Burn(address,uint256)").
	BurnEventTopic = types.HexToHash("0xcc16f5dbb4873280815c1ee09dbd06736cffcc184412cf7a71a0fdb75d397ca5")
)

// EmitTransferLog emits an EIP-7708 transfer log for a nonzero ETH move
// between from and to. Zero-value and nil-amount transfers are silent.
func EmitTransferLog(statedb StateDB, from, to types.Address, amount *big.Int) {
	if statedb == nil || amount == nil || amount.Sign() <= 0 {
		return
	}

	data := make([]byte, 32)
	amountBytes := amount.Bytes()
	copy(data[32-len(amountBytes):], amountBytes)

	statedb.AddLog(&types.Log{
		Address: transferLogEmitter,
		Topics: []types.Hash{
			TransferEventTopic,
			addressTopic(from),
			addressTopic(to),
		},
		Data: data,
	})
}

// EmitBurnLog emits an EIP-7708 burn log for ETH destroyed at addr (base
// fee burn, SELFDESTRUCT to self).
func EmitBurnLog(statedb StateDB, addr types.Address, amount *big.Int) {
	if statedb == nil || amount == nil || amount.Sign() <= 0 {
		return
	}

	data := make([]byte, 32)
	amountBytes := amount.Bytes()
	copy(data[32-len(amountBytes):], amountBytes)

	statedb.AddLog(&types.Log{
		Address: transferLogEmitter,
		Topics: []types.Hash{
			BurnEventTopic,
			addressTopic(addr),
		},
		Data: data,
	})
}

// addressTopic left-pads a 20-byte address into a 32-byte log topic.
func addressTopic(addr types.Address) types.Hash {
	var h types.Hash
	copy(h[12:], addr[:])
	return h
}
