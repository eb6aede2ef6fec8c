package core

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// EIP-1559 base fee parameters.
const (
	// InitialBaseFee seeds the schedule at the London activation (1 Gwei).
	InitialBaseFee = 1_000_000_000

	// MinBaseFee floors the schedule at 7 wei so quiet periods never
	// price gas at zero.
	MinBaseFee = 7
)

// baseFeeDelta is the EIP-1559 adjustment magnitude for a gas-usage
// deviation of gasDelta from the target:
// parentFee * gasDelta / target / BaseFeeChangeDenominator.
func baseFeeDelta(parentFee *big.Int, gasDelta, target uint64) *big.Int {
	delta := new(big.Int).Mul(parentFee, new(big.Int).SetUint64(gasDelta))
	delta.Div(delta, new(big.Int).SetUint64(target))
	return delta.Div(delta, new(big.Int).SetUint64(BaseFeeChangeDenominator))
}

// CalcBaseFee derives the child block's base fee from the parent: steady
// at the gas target, up to 12.5% movement per block away from it, with a
// one-wei minimum bump on the way up and the 7-wei floor on the way down.
func CalcBaseFee(parent *types.Header) *big.Int {
	if parent.BaseFee == nil {
		return big.NewInt(InitialBaseFee)
	}

	target := parent.GasLimit / ElasticityMultiplier
	switch {
	case parent.GasUsed == target:
		return new(big.Int).Set(parent.BaseFee)

	case parent.GasUsed > target:
		delta := baseFeeDelta(parent.BaseFee, parent.GasUsed-target, target)
		if delta.Sign() == 0 {
			delta.SetInt64(1)
		}
		return delta.Add(parent.BaseFee, delta)

	default:
		delta := baseFeeDelta(parent.BaseFee, target-parent.GasUsed, target)
		fee := delta.Sub(parent.BaseFee, delta)
		if floor := big.NewInt(MinBaseFee); fee.Cmp(floor) < 0 {
			fee.Set(floor)
		}
		return fee
	}
}
