package vm

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// EVMLogger receives execution callbacks from the interpreter when tracing
// is enabled via Config.Debug. The host supplies an implementation;
// rendering traces is outside this module's scope.
type EVMLogger interface {
	// CaptureStart fires at the beginning of a top-level call.
	CaptureStart(from, to types.Address, create bool, input []byte, gas uint64, value *big.Int)
	// CaptureState fires before each opcode executes.
	CaptureState(pc uint64, op OpCode, gas, cost uint64, stack *Stack, memory *Memory, depth int, err error)
	// CaptureEnd fires at the end of a top-level call.
	CaptureEnd(output []byte, gasUsed uint64, err error)
}
