package core

import "github.com/ethstate/execution-core/core/types"

// ExecutionResult is what one transaction's execution produced: gas
// spent (both post-refund and the EIP-7778 pre-refund figure the block
// accounts with), the EVM outcome, and the created contract's address
// when the message was a creation.
type ExecutionResult struct {
	UsedGas         uint64
	BlockGasUsed    uint64 // pre-refund, per EIP-7778
	Err             error
	ReturnData      []byte
	ContractAddress types.Address
}

// Unwrap exposes the execution error for errors.Is chains.
func (r *ExecutionResult) Unwrap() error {
	return r.Err
}

// Failed reports whether execution ended in any error, revert included.
func (r *ExecutionResult) Failed() bool {
	return r.Err != nil
}

// Return is the output of a successful execution, nil otherwise.
func (r *ExecutionResult) Return() []byte {
	if r.Failed() {
		return nil
	}
	return r.ReturnData
}

// Revert is the revert reason bytes of a failed execution, nil otherwise.
func (r *ExecutionResult) Revert() []byte {
	if r.Failed() {
		return r.ReturnData
	}
	return nil
}
