package core

import (
	"fmt"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/core/vm"
)

// The EIP-7623 calldata floor: a transaction pays at least
// TX_BASE_COST + tokens * TOTAL_COST_FLOOR_PER_TOKEN, where calldata is
// measured in tokens (one per zero byte, four per non-zero byte). The
// floor binds after execution and refunds: whatever the execution path
// charged, the sender pays max(execution_gas, floor_gas).
//
// Glamsterdam (EIP-7976/7981) re-weighs the measure: every calldata byte
// is four tokens, access-list bytes count too, the per-token price rises
// to 16, and the base cost drops to the EIP-2780 figure.

// FloorGasResult is one floor evaluation: the floor itself, the token
// count behind it, and (when an execution figure was supplied) whether
// the floor won and what will actually be charged.
type FloorGasResult struct {
	FloorGas      uint64
	Tokens        uint64
	IsFloorActive bool
	EffectiveGas  uint64
}

// CalcFloorGas evaluates the standard (pre-Glamsterdam) floor over the
// calldata token measure, with the creation surcharge when applicable.
func CalcFloorGas(data []byte, isCreate bool) FloorGasResult {
	tokens := calldataTokens(data)
	floor := TxGas + tokens*TotalCostFloorPerToken
	if isCreate {
		floor += TxCreateGas
	}
	return FloorGasResult{
		FloorGas: floor,
		Tokens:   tokens,
	}
}

// CalcFloorGasGlamst evaluates the Glamsterdam floor: flat four tokens
// per calldata byte, access-list bytes included, over the repriced
// per-token cost and base.
func CalcFloorGasGlamst(data []byte, accessList types.AccessList, isCreate bool) FloorGasResult {
	calldataFloorTokens := uint64(len(data)) * 4
	alTokens := accessListDataTokens(accessList)
	totalTokens := calldataFloorTokens + alTokens

	floor := vm.TxBaseGlamsterdam + totalTokens*TotalCostFloorPerTokenGlamst
	if isCreate {
		floor += TxCreateGas
	}
	return FloorGasResult{
		FloorGas: floor,
		Tokens:   totalTokens,
	}
}

// ApplyCalldataFloor settles the floor against post-refund execution gas
// and reports whether it was binding.
func ApplyCalldataFloor(executionGas uint64, data []byte, isCreate bool) (effectiveGas uint64, floorApplied bool) {
	result := CalcFloorGas(data, isCreate)
	if result.FloorGas > executionGas {
		return result.FloorGas, true
	}
	return executionGas, false
}

// ApplyCalldataFloorGlamst is the Glamsterdam settlement counterpart.
func ApplyCalldataFloorGlamst(executionGas uint64, data []byte, accessList types.AccessList, isCreate bool) (effectiveGas uint64, floorApplied bool) {
	result := CalcFloorGasGlamst(data, accessList, isCreate)
	if result.FloorGas > executionGas {
		return result.FloorGas, true
	}
	return executionGas, false
}

// CalcEffectiveGas picks and applies the fork's floor variant. The input
// is post-refund execution gas; the output is what the sender pays. Forks
// before Prague have no floor.
func CalcEffectiveGas(config *ChainConfig, headerTime uint64, executionGas uint64, data []byte, accessList types.AccessList, isCreate bool) (effectiveGas uint64, floorApplied bool) {
	if config == nil || !config.IsPrague(headerTime) {
		return executionGas, false
	}
	if config.IsGlamsterdan(headerTime) {
		return ApplyCalldataFloorGlamst(executionGas, data, accessList, isCreate)
	}
	return ApplyCalldataFloor(executionGas, data, isCreate)
}

// CalcFloorGasForTx evaluates the fork-correct floor for a transaction.
func CalcFloorGasForTx(config *ChainConfig, headerTime uint64, tx *types.Transaction) FloorGasResult {
	data := tx.Data()
	isCreate := tx.To() == nil

	if config != nil && config.IsGlamsterdan(headerTime) {
		return CalcFloorGasGlamst(data, tx.AccessList(), isCreate)
	}
	return CalcFloorGas(data, isCreate)
}

// FloorGasExcess is the floor's surcharge over the standard intrinsic
// figure, zero when the floor is not binding. Admission uses it to fail
// under-budgeted transactions before execution.
func FloorGasExcess(config *ChainConfig, headerTime uint64, tx *types.Transaction, standardIntrinsicGas uint64) uint64 {
	result := CalcFloorGasForTx(config, headerTime, tx)
	if result.FloorGas > standardIntrinsicGas {
		return result.FloorGas - standardIntrinsicGas
	}
	return 0
}

// ValidateGasLimitCoversFloor rejects a transaction whose gas limit
// cannot even pay the floor; such a transaction can never succeed.
func ValidateGasLimitCoversFloor(config *ChainConfig, headerTime uint64, tx *types.Transaction) error {
	if config == nil || !config.IsPrague(headerTime) {
		return nil
	}

	result := CalcFloorGasForTx(config, headerTime, tx)
	if tx.Gas() < result.FloorGas {
		return fmt.Errorf("%w: gas_limit=%d, floor=%d (tokens=%d)",
			ErrIntrinsicGasTooLow, tx.Gas(), result.FloorGas, result.Tokens)
	}
	return nil
}

// RefundWithFloor runs the post-execution settlement in protocol order:
// the EIP-3529 refund cap (a fifth of gas used) first, the calldata floor
// second, so the floor can claw back refunded gas.
func RefundWithFloor(
	gasUsed uint64,
	refund uint64,
	data []byte,
	accessList types.AccessList,
	isCreate bool,
	config *ChainConfig,
	headerTime uint64,
) (finalGas uint64, refundApplied uint64, floorApplied bool) {
	if maxRefund := gasUsed / 5; refund > maxRefund {
		refund = maxRefund
	}
	refundApplied = refund

	finalGas, floorApplied = CalcEffectiveGas(config, headerTime, gasUsed-refund, data, accessList, isCreate)
	return finalGas, refundApplied, floorApplied
}
