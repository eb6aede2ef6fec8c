package core

// EIP-7706: a separate gas dimension for calldata. The mechanism mirrors
// EIP-4844 blob gas: a per-block calldata gas limit derived from the
// execution gas limit, and an exponential base-fee adjustment driven by
// excess calldata gas.

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

const (
	// CalldataBaseFeeUpdateFraction controls the exponential update speed.
	CalldataBaseFeeUpdateFraction = 8

	// CalldataTargetRatio is the limit-to-target ratio for calldata gas.
	// Higher than the execution dimension's 2 so blocks rarely hit the
	// calldata limit.
	CalldataTargetRatio uint64 = 4

	// MinCalldataBaseFee is the floor base fee per calldata gas, in wei.
	MinCalldataBaseFee = 1
)

// CalcCalldataGasLimit derives the calldata gas limit from the execution
// gas limit: calldata_gas_limit = execution_gas_limit / CALLDATA_GAS_LIMIT_RATIO.
func CalcCalldataGasLimit(executionGasLimit uint64) uint64 {
	return executionGasLimit / types.CalldataGasLimitRatio
}

// CalcCalldataGasTarget computes the per-block calldata gas target.
func CalcCalldataGasTarget(calldataGasLimit uint64) uint64 {
	return calldataGasLimit / CalldataTargetRatio
}

// CalcCalldataExcessGas calculates the excess calldata gas carried into the
// next block: max(0, parent_excess + parent_used - target).
func CalcCalldataExcessGas(parentExcess, parentUsed, parentGasLimit uint64) uint64 {
	target := CalcCalldataGasTarget(CalcCalldataGasLimit(parentGasLimit))
	sum := parentExcess + parentUsed
	if sum < target {
		return 0
	}
	return sum - target
}

// CalcCalldataBaseFee computes the calldata base fee from the excess
// calldata gas via the EIP-4844-style Taylor exponential.
func CalcCalldataBaseFee(excessCalldataGas, calldataGasLimit uint64) *big.Int {
	target := CalcCalldataGasTarget(calldataGasLimit)
	if target == 0 {
		return big.NewInt(MinCalldataBaseFee)
	}
	return taylorApprox(
		big.NewInt(MinCalldataBaseFee),
		new(big.Int).SetUint64(excessCalldataGas),
		new(big.Int).SetUint64(target*CalldataBaseFeeUpdateFraction),
	)
}

// CalcCalldataBaseFeeFromHeader computes the calldata base fee for a block
// carrying EIP-7706 fields; headers without them pay the floor fee.
func CalcCalldataBaseFeeFromHeader(header *types.Header) *big.Int {
	if header.CalldataExcessGas == nil {
		return big.NewInt(MinCalldataBaseFee)
	}
	return CalcCalldataBaseFee(*header.CalldataExcessGas, CalcCalldataGasLimit(header.GasLimit))
}

// CalldataGasCost is the wei cost of calldataGas at calldataBaseFee.
func CalldataGasCost(calldataGas uint64, calldataBaseFee *big.Int) *big.Int {
	return new(big.Int).Mul(calldataBaseFee, new(big.Int).SetUint64(calldataGas))
}
