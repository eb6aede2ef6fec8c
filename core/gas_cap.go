package core

import "errors"

// EIP-7825 caps any single transaction at 2^24 gas, enforced both at
// admission and in block validation once Prague is active.

// MaxTransactionGas is the per-transaction gas ceiling.
const MaxTransactionGas uint64 = 1 << 24 // 16,777,216

// ErrTxGasLimitExceeded rejects a transaction over the EIP-7825 cap.
var ErrTxGasLimitExceeded = errors.New("transaction gas limit exceeds maximum (EIP-7825)")

// ValidateTransactionGasLimit enforces the cap.
func ValidateTransactionGasLimit(gasLimit uint64) error {
	if gasLimit > MaxTransactionGas {
		return ErrTxGasLimitExceeded
	}
	return nil
}

// IsGasLimitCapped reports whether the cap applies at the given time; it
// ships with Prague.
func IsGasLimitCapped(config *ChainConfig, time uint64) bool {
	return config.IsPrague(time)
}
