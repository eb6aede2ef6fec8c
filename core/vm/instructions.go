package vm

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

// opHandler is the signature every opcode handler implements.
type opHandler func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error)

var (
	wordMax    = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)) // 2^256 - 1
	wordModulo = new(big.Int).Lsh(big.NewInt(1), 256)                                  // 2^256
	signBit    = new(big.Int).Lsh(big.NewInt(1), 255)                                  // 2^255
)

// wrap256 masks val down to the low 256 bits, treating it as unsigned.
func wrap256(val *big.Int) *big.Int {
	return val.And(val, wordMax)
}

// asSigned reinterprets a 256-bit unsigned word as EVM's two's-complement
// signed integer.
func asSigned(val *big.Int) *big.Int {
	if val.Cmp(signBit) < 0 {
		return val
	}
	return new(big.Int).Sub(val, wordModulo)
}

// asUnsigned converts a signed integer back to its 256-bit unsigned
// representation.
func asUnsigned(val *big.Int) *big.Int {
	if val.Sign() >= 0 {
		return val
	}
	return new(big.Int).Add(val, wordModulo)
}

func opAdd(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	wrap256(y.Add(x, y))
	return nil, nil
}

func opSub(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	wrap256(y.Sub(x, y))
	return nil, nil
}

func opMul(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	wrap256(y.Mul(x, y))
	return nil, nil
}

func opDiv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if y.Sign() == 0 {
		y.SetUint64(0)
	} else {
		y.Div(x, y)
	}
	return nil, nil
}

// signedDivMod runs a signed division-family op (SDIV, SMOD): it converts
// both operands to signed form, applies unsignedOp to their absolute
// values, and restores the sign according to signRule.
func signedDivMod(x, y *big.Int, unsignedOp func(z, a, b *big.Int) *big.Int, negate func(sx, sy *big.Int) bool) {
	sx := asSigned(new(big.Int).Set(x))
	sy := asSigned(new(big.Int).Set(y))
	if sy.Sign() == 0 {
		y.SetUint64(0)
		return
	}
	result := unsignedOp(new(big.Int), new(big.Int).Abs(sx), new(big.Int).Abs(sy))
	if negate(sx, sy) {
		result.Neg(result)
	}
	wrap256(y.Set(asUnsigned(result)))
}

func opSdiv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	signedDivMod(x, y, (*big.Int).Div, func(sx, sy *big.Int) bool { return sx.Sign() != sy.Sign() })
	return nil, nil
}

func opMod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if y.Sign() == 0 {
		y.SetUint64(0)
	} else {
		y.Mod(x, y)
	}
	return nil, nil
}

func opSmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	signedDivMod(x, y, (*big.Int).Mod, func(sx, _ *big.Int) bool { return sx.Sign() < 0 })
	return nil, nil
}

func opAddmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y, z := stack.Pop(), stack.Pop(), stack.Peek()
	if z.Sign() == 0 {
		z.SetUint64(0)
	} else {
		wrap256(z.Mod(new(big.Int).Add(x, y), z))
	}
	return nil, nil
}

func opMulmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y, z := stack.Pop(), stack.Pop(), stack.Peek()
	if z.Sign() == 0 {
		z.SetUint64(0)
	} else {
		wrap256(z.Mod(new(big.Int).Mul(x, y), z))
	}
	return nil, nil
}

func opExp(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	base, exponent := stack.Pop(), stack.Peek()
	exponent.Exp(base, exponent, wordModulo)
	return nil, nil
}

func opSignExtend(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	back, num := stack.Pop(), stack.Peek()
	if back.Cmp(big.NewInt(31)) >= 0 {
		return nil, nil
	}
	bit := uint(back.Uint64()*8 + 7)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bit), big.NewInt(1))
	if num.Bit(int(bit)) > 0 {
		num.Or(num, new(big.Int).Not(mask))
	} else {
		num.And(num, mask)
	}
	wrap256(num)
	return nil, nil
}

// pushBool stores 1 or 0 into dst depending on cond.
func pushBool(dst *big.Int, cond bool) {
	if cond {
		dst.SetUint64(1)
	} else {
		dst.SetUint64(0)
	}
}

func opLt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	pushBool(y, x.Cmp(y) < 0)
	return nil, nil
}

func opGt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	pushBool(y, x.Cmp(y) > 0)
	return nil, nil
}

func opSlt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	sx, sy := asSigned(new(big.Int).Set(x)), asSigned(new(big.Int).Set(y))
	pushBool(y, sx.Cmp(sy) < 0)
	return nil, nil
}

func opSgt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	sx, sy := asSigned(new(big.Int).Set(x)), asSigned(new(big.Int).Set(y))
	pushBool(y, sx.Cmp(sy) > 0)
	return nil, nil
}

func opEq(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	pushBool(y, x.Cmp(y) == 0)
	return nil, nil
}

func opIsZero(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	pushBool(x, x.Sign() == 0)
	return nil, nil
}

func opAnd(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.And(x, y)
	return nil, nil
}

func opOr(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Or(x, y)
	return nil, nil
}

func opXor(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Xor(x, y)
	return nil, nil
}

func opNot(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	wrap256(x.Not(x))
	return nil, nil
}

// opClz counts leading zero bits of the 256-bit operand; 256 for zero.
func opClz(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	x.SetUint64(uint64(256 - x.BitLen()))
	return nil, nil
}

func opByte(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	th, val := stack.Pop(), stack.Peek()
	if th.Cmp(big.NewInt(32)) >= 0 {
		val.SetUint64(0)
		return nil, nil
	}
	padded := make([]byte, 32)
	b := val.Bytes()
	copy(padded[32-len(b):], b)
	val.SetUint64(uint64(padded[th.Uint64()]))
	return nil, nil
}

func opSHL(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift, value := stack.Pop(), stack.Peek()
	if shift.Cmp(big.NewInt(256)) >= 0 {
		value.SetUint64(0)
	} else {
		wrap256(value.Lsh(value, uint(shift.Uint64())))
	}
	return nil, nil
}

func opSHR(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift, value := stack.Pop(), stack.Peek()
	if shift.Cmp(big.NewInt(256)) >= 0 {
		value.SetUint64(0)
	} else {
		value.Rsh(value, uint(shift.Uint64()))
	}
	return nil, nil
}

func opSAR(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift, value := stack.Pop(), stack.Peek()
	signed := asSigned(new(big.Int).Set(value))
	if shift.Cmp(big.NewInt(256)) >= 0 {
		if signed.Sign() >= 0 {
			value.SetUint64(0)
		} else {
			value.Set(wordMax)
		}
		return nil, nil
	}
	signed.Rsh(signed, uint(shift.Uint64()))
	wrap256(value.Set(asUnsigned(signed)))
	return nil, nil
}

func opCalldataLoad(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	offset := x.Uint64()
	word := make([]byte, 32)
	if offset < uint64(len(contract.Input)) {
		copy(word, contract.Input[offset:])
	}
	x.SetBytes(word)
	return nil, nil
}

func opCalldataSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(len(contract.Input))))
	return nil, nil
}

// sliceFrom copies length bytes of src starting at offset into a
// fresh, zero-padded buffer — the shared read pattern behind CALLDATACOPY,
// CODECOPY, and EXTCODECOPY.
func sliceFrom(src []byte, offset, length uint64) []byte {
	out := make([]byte, length)
	if offset < uint64(len(src)) {
		copy(out, src[offset:])
	}
	return out
}

func opCalldataCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset, dataOffset, length := stack.Pop(), stack.Pop(), stack.Pop()
	if l := length.Uint64(); l > 0 {
		memory.Set(memOffset.Uint64(), l, sliceFrom(contract.Input, dataOffset.Uint64(), l))
	}
	return nil, nil
}

func opCodeSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(len(contract.Code))))
	return nil, nil
}

func opCodeCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset, codeOffset, length := stack.Pop(), stack.Pop(), stack.Pop()
	if l := length.Uint64(); l > 0 {
		memory.Set(memOffset.Uint64(), l, sliceFrom(contract.Code, codeOffset.Uint64(), l))
	}
	return nil, nil
}

func opAddress(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(contract.Address[:]))
	return nil, nil
}

func opOrigin(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(evm.TxContext.Origin[:]))
	return nil, nil
}

func opCaller(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(contract.CallerAddress[:]))
	return nil, nil
}

// pushOrZero pushes a copy of v, or a zero word if v is nil — the shared
// pattern for stack-pushing optional *big.Int context fields.
func pushOrZero(stack *Stack, v *big.Int) {
	out := new(big.Int)
	if v != nil {
		out.Set(v)
	}
	stack.Push(out)
}

func opCallValue(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pushOrZero(stack, contract.Value)
	return nil, nil
}

func opGasPrice(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pushOrZero(stack, evm.TxContext.GasPrice)
	return nil, nil
}

func opCoinbase(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(evm.Context.Coinbase[:]))
	return nil, nil
}

func opTimestamp(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(evm.Context.Time))
	return nil, nil
}

func opNumber(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pushOrZero(stack, evm.Context.BlockNumber)
	return nil, nil
}

func opPrevRandao(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(evm.Context.PrevRandao[:]))
	return nil, nil
}

func opGasLimit(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(evm.Context.GasLimit))
	return nil, nil
}

func opChainID(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(evm.chainID))
	return nil, nil
}

func opBaseFee(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pushOrZero(stack, evm.Context.BaseFee)
	return nil, nil
}

func opPop(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Pop()
	return nil, nil
}

func opMload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Peek()
	offset.SetBytes(memory.Get(int64(offset.Uint64()), 32))
	return nil, nil
}

func opMstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, val := stack.Pop(), stack.Pop()
	memory.Set32(offset.Uint64(), val)
	return nil, nil
}

func opMstore8(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, val := stack.Pop(), stack.Pop()
	memory.Set(offset.Uint64(), 1, []byte{byte(val.Uint64())})
	return nil, nil
}

func opJump(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dest := stack.Pop()
	if !contract.validJumpdest(dest) {
		return nil, ErrInvalidJump
	}
	*pc = dest.Uint64()
	return nil, nil
}

func opJumpi(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dest, cond := stack.Pop(), stack.Pop()
	if cond.Sign() == 0 {
		*pc++
		return nil, nil
	}
	if !contract.validJumpdest(dest) {
		return nil, ErrInvalidJump
	}
	*pc = dest.Uint64()
	return nil, nil
}

func opJumpdest(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, nil
}

func opPc(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(*pc))
	return nil, nil
}

func opMsize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(memory.Len())))
	return nil, nil
}

func opGas(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(contract.Gas))
	return nil, nil
}

func opPush0(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int))
	return nil, nil
}

func opPush1(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	var b uint64
	if *pc+1 < uint64(len(contract.Code)) {
		b = uint64(contract.Code[*pc+1])
	}
	stack.Push(new(big.Int).SetUint64(b))
	*pc++
	return nil, nil
}

// makePush builds a PUSH2..PUSH32 handler that reads size bytes of
// immediate data out of the code stream (PUSH1 has its own fast path above).
func makePush(size uint64) opHandler {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		start := *pc + 1
		codeLen := uint64(len(contract.Code))

		var data []byte
		switch {
		case start >= codeLen:
			data = make([]byte, size)
		case start+size > codeLen:
			data = make([]byte, size)
			copy(data, contract.Code[start:codeLen])
		default:
			data = contract.Code[start : start+size]
		}

		stack.Push(new(big.Int).SetBytes(data))
		*pc += size
		return nil, nil
	}
}

// makeDup builds a DUP1..DUP16 handler.
func makeDup(n int) opHandler {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		stack.Dup(n)
		return nil, nil
	}
}

// makeSwap builds a SWAP1..SWAP16 handler.
func makeSwap(n int) opHandler {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		stack.Swap(n)
		return nil, nil
	}
}

func opStop(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, nil
}

// readMemRange pops offset and size off the stack and returns the memory
// span between them — the shared read behind RETURN, REVERT, and KECCAK256.
func readMemRange(memory *Memory, stack *Stack) []byte {
	offset, size := stack.Pop(), stack.Pop()
	return memory.Get(int64(offset.Uint64()), int64(size.Uint64()))
}

func opReturn(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return readMemRange(memory, stack), nil
}

func opRevert(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return readMemRange(memory, stack), ErrExecutionReverted
}

func opInvalid(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, ErrInvalidOpCode
}

func opKeccak256(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, size := stack.Pop(), stack.Peek()
	data := memory.Get(int64(offset.Uint64()), int64(size.Uint64()))
	size.SetBytes(crypto.Keccak256(data))
	return nil, nil
}

// bigToHash converts a big.Int to a types.Hash (big-endian, zero-padded).
func bigToHash(b *big.Int) types.Hash {
	return types.BytesToHash(b.Bytes())
}

// bigToAddr converts a big.Int to a types.Address, keeping its lower 20 bytes.
func bigToAddr(b *big.Int) types.Address {
	return types.BytesToAddress(b.Bytes())
}

func opSload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	loc := stack.Peek()
	if evm.StateDB == nil {
		loc.SetUint64(0)
		return nil, nil
	}
	val := evm.StateDB.GetState(contract.Address, bigToHash(loc))
	loc.SetBytes(val[:])
	return nil, nil
}

func opSstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.staticMode {
		return nil, ErrWriteProtection
	}
	loc, val := stack.Pop(), stack.Pop()
	if evm.StateDB != nil {
		evm.StateDB.SetState(contract.Address, bigToHash(loc), bigToHash(val))
	}
	return nil, nil
}

func opReturndataSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(len(evm.lastReturn))))
	return nil, nil
}

func opReturndataCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset, dataOffset, length := stack.Pop(), stack.Pop(), stack.Pop()
	l := length.Uint64()
	if l == 0 {
		return nil, nil
	}
	dOff := dataOffset.Uint64()
	end := dOff + l
	if end < dOff || end > uint64(len(evm.lastReturn)) {
		return nil, ErrReturnDataOutOfBounds
	}
	memory.Set(memOffset.Uint64(), l, evm.lastReturn[dOff:end])
	return nil, nil
}

func opSelfBalance(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.StateDB == nil {
		stack.Push(new(big.Int))
		return nil, nil
	}
	stack.Push(new(big.Int).Set(evm.StateDB.GetBalance(contract.Address)))
	return nil, nil
}

// addrFromSlot reads the 20-byte address encoded in stack slot top-of-stack
// state — the shared decode behind BALANCE, EXTCODESIZE, EXTCODEHASH and the
// CALL family's target-address argument.
func addrFromSlot(slot *big.Int) types.Address {
	return types.BytesToAddress(slot.Bytes())
}

func opBalance(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	if evm.StateDB == nil {
		slot.SetUint64(0)
		return nil, nil
	}
	slot.Set(evm.StateDB.GetBalance(addrFromSlot(slot)))
	return nil, nil
}

// makeLog builds a LOG0..LOG4 handler; n is the number of indexed topics.
func makeLog(n int) opHandler {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		if evm.staticMode {
			return nil, ErrWriteProtection
		}
		offset, size := stack.Pop(), stack.Pop()
		topics := make([]types.Hash, n)
		for i := 0; i < n; i++ {
			topics[i] = bigToHash(stack.Pop())
		}
		data := memory.Get(int64(offset.Uint64()), int64(size.Uint64()))
		if evm.StateDB != nil {
			evm.StateDB.AddLog(&types.Log{
				Address: contract.Address,
				Topics:  topics,
				Data:    data,
			})
		}
		return nil, nil
	}
}

// callArgs is the stack layout shared by CALL/CALLCODE/DELEGATECALL/
// STATICCALL once value (absent from the latter two) has been peeled off.
type callArgs struct {
	gas                  uint64
	addr                 types.Address
	input                []byte
	retOffset, retLength uint64
}

// capGas pops a requested gas amount off the stack, clamps it to what the
// caller contract has left, and deducts it up front — the 63/64ths rule
// itself lives in the gas table; this just enforces the hard cap.
func capGas(contract *Contract, stack *Stack) uint64 {
	requested := stack.Pop().Uint64()
	gas := requested
	if gas > contract.Gas {
		gas = contract.Gas
	}
	contract.Gas -= gas
	return gas
}

// popCallArgs pops the gas/addr/argsOffset/argsLength/retOffset/retLength
// stack items common to DELEGATECALL and STATICCALL (which carry no value
// argument) and reads the input data out of memory.
func popCallArgs(contract *Contract, memory *Memory, stack *Stack) callArgs {
	gas := capGas(contract, stack)
	addr := bigToAddr(stack.Pop())
	inOffset, inSize := stack.Pop(), stack.Pop()
	retOffset, retSize := stack.Pop(), stack.Pop()

	return callArgs{
		gas:       gas,
		addr:      addr,
		input:     memory.Get(int64(inOffset.Uint64()), int64(inSize.Uint64())),
		retOffset: retOffset.Uint64(),
		retLength: retSize.Uint64(),
	}
}

// popCallArgsWithValue is popCallArgs plus the value argument CALL and
// CALLCODE carry between the target address and the input-data offsets.
func popCallArgsWithValue(contract *Contract, memory *Memory, stack *Stack) (callArgs, *big.Int) {
	gas := capGas(contract, stack)
	addr := bigToAddr(stack.Pop())
	value := stack.Pop()
	inOffset, inSize := stack.Pop(), stack.Pop()
	retOffset, retSize := stack.Pop(), stack.Pop()

	return callArgs{
		gas:       gas,
		addr:      addr,
		input:     memory.Get(int64(inOffset.Uint64()), int64(inSize.Uint64())),
		retOffset: retOffset.Uint64(),
		retLength: retSize.Uint64(),
	}, value
}

// finishCall restores unused gas, records the sub-call's return data for
// RETURNDATA*, copies it into the caller's requested memory span, and
// pushes the EVM-level success flag — the tail shared by every CALL-family
// opcode after the underlying evm.* method returns.
func finishCall(evm *EVM, contract *Contract, memory *Memory, stack *Stack, args callArgs, ret []byte, returnGas uint64, err error) {
	contract.Gas += returnGas
	evm.lastReturn = ret

	if args.retLength > 0 && len(ret) > 0 {
		n := args.retLength
		if uint64(len(ret)) < n {
			n = uint64(len(ret))
		}
		memory.Set(args.retOffset, n, ret[:n])
	}

	if err != nil {
		stack.Push(new(big.Int))
	} else {
		stack.Push(big.NewInt(1))
	}
}

// opCall implements CALL.
// Stack: gas, addr, value, argsOffset, argsLength, retOffset, retLength.
func opCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	args, value := popCallArgsWithValue(contract, memory, stack)
	ret, returnGas, err := evm.Call(contract.Address, args.addr, args.input, args.gas, value)
	finishCall(evm, contract, memory, stack, args, ret, returnGas, err)
	return nil, nil
}

// opCallCode implements CALLCODE.
// Stack: gas, addr, value, argsOffset, argsLength, retOffset, retLength.
func opCallCode(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	args, value := popCallArgsWithValue(contract, memory, stack)
	ret, returnGas, err := evm.CallCode(contract.Address, args.addr, args.input, args.gas, value)
	finishCall(evm, contract, memory, stack, args, ret, returnGas, err)
	return nil, nil
}

// opDelegateCall implements DELEGATECALL (no value on the stack; the
// sub-call inherits the caller's own caller and value).
// Stack: gas, addr, argsOffset, argsLength, retOffset, retLength.
func opDelegateCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	args := popCallArgs(contract, memory, stack)
	ret, returnGas, err := evm.DelegateCall(contract.CallerAddress, args.addr, args.input, args.gas)
	finishCall(evm, contract, memory, stack, args, ret, returnGas, err)
	return nil, nil
}

// opStaticCall implements STATICCALL (no value on the stack; the sub-call
// runs with write protection enabled).
// Stack: gas, addr, argsOffset, argsLength, retOffset, retLength.
func opStaticCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	args := popCallArgs(contract, memory, stack)
	ret, returnGas, err := evm.StaticCall(contract.Address, args.addr, args.input, args.gas)
	finishCall(evm, contract, memory, stack, args, ret, returnGas, err)
	return nil, nil
}

// finishCreate restores unused gas, records the sub-call's return data, and
// pushes the new contract's address on success or zero on failure — the
// tail shared by CREATE and CREATE2.
func finishCreate(evm *EVM, contract *Contract, stack *Stack, addr types.Address, ret []byte, returnGas uint64, err error) {
	contract.Gas += returnGas
	evm.lastReturn = ret
	if err != nil {
		stack.Push(new(big.Int))
	} else {
		stack.Push(new(big.Int).SetBytes(addr[:]))
	}
}

// opCreate implements CREATE.
// Stack: value, offset, length.
func opCreate(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.staticMode {
		return nil, ErrWriteProtection
	}
	value := stack.Pop()
	offset, size := stack.Pop(), stack.Pop()
	initCode := memory.Get(int64(offset.Uint64()), int64(size.Uint64()))

	callGas := contract.Gas
	contract.Gas = 0
	ret, addr, returnGas, err := evm.Create(contract.Address, initCode, callGas, value)
	finishCreate(evm, contract, stack, addr, ret, returnGas, err)
	return nil, nil
}

// opCreate2 implements CREATE2.
// Stack: value, offset, length, salt.
func opCreate2(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.staticMode {
		return nil, ErrWriteProtection
	}
	value := stack.Pop()
	offset, size := stack.Pop(), stack.Pop()
	salt := stack.Pop()
	initCode := memory.Get(int64(offset.Uint64()), int64(size.Uint64()))

	callGas := contract.Gas
	contract.Gas = 0
	ret, addr, returnGas, err := evm.Create2(contract.Address, initCode, callGas, value, salt)
	finishCreate(evm, contract, stack, addr, ret, returnGas, err)
	return nil, nil
}

func opExtcodesize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	if evm.StateDB == nil {
		slot.SetUint64(0)
		return nil, nil
	}
	slot.SetUint64(uint64(len(evm.StateDB.GetCode(addrFromSlot(slot)))))
	return nil, nil
}

func opExtcodecopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	addrVal, memOffset, codeOffset, length := stack.Pop(), stack.Pop(), stack.Pop(), stack.Pop()
	l := length.Uint64()
	if l == 0 {
		return nil, nil
	}
	var code []byte
	if evm.StateDB != nil {
		code = evm.StateDB.GetCode(addrFromSlot(addrVal))
	}
	memory.Set(memOffset.Uint64(), l, sliceFrom(code, codeOffset.Uint64(), l))
	return nil, nil
}

func opExtcodehash(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	if evm.StateDB == nil {
		slot.SetUint64(0)
		return nil, nil
	}
	addr := addrFromSlot(slot)
	if !evm.StateDB.Exist(addr) {
		slot.SetUint64(0)
		return nil, nil
	}
	hash := evm.StateDB.GetCodeHash(addr)
	slot.SetBytes(hash[:])
	return nil, nil
}

// opTload implements TLOAD (EIP-1153): pops a key, pushes the current
// contract's transient-storage value at that key.
func opTload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	loc := stack.Peek()
	if evm.StateDB == nil {
		loc.SetUint64(0)
		return nil, nil
	}
	val := evm.StateDB.GetTransientState(contract.Address, bigToHash(loc))
	loc.SetBytes(val[:])
	return nil, nil
}

// opTstore implements TSTORE (EIP-1153): pops a key and value, mutates the
// value into the current contract's transient storage at that key.
func opTstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.staticMode {
		return nil, ErrWriteProtection
	}
	loc, val := stack.Pop(), stack.Pop()
	if evm.StateDB != nil {
		evm.StateDB.SetTransientState(contract.Address, bigToHash(loc), bigToHash(val))
	}
	return nil, nil
}

// opMcopy implements MCOPY (EIP-5656): pops dest, src, size and copies
// memory[src:src+size] to memory[dest:dest+size], safe under overlap since
// Memory.Get returns a fresh copy of the source range.
func opMcopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dest, src, size := stack.Pop(), stack.Pop(), stack.Pop()
	if l := size.Uint64(); l > 0 {
		memory.Set(dest.Uint64(), l, memory.Get(int64(src.Uint64()), int64(l)))
	}
	return nil, nil
}

// opBlobHash implements BLOBHASH (EIP-4844): pops an index, pushes the
// versioned hash at that index from the tx's blob hash list, or zero if the
// index is out of range.
func opBlobHash(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	idx := stack.Peek()
	if idx.IsUint64() {
		if i := idx.Uint64(); i < uint64(len(evm.TxContext.BlobHashes)) {
			hash := evm.TxContext.BlobHashes[i]
			idx.SetBytes(hash[:])
			return nil, nil
		}
	}
	idx.SetUint64(0)
	return nil, nil
}

// opBlobBaseFee implements BLOBBASEFEE (EIP-7516): pushes the block's blob
// base fee.
func opBlobBaseFee(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pushOrZero(stack, evm.Context.BlobBaseFee)
	return nil, nil
}

// opBlockhash implements BLOCKHASH: returns the hash of one of the 256 most
// recent complete blocks, or zero outside that window.
func opBlockhash(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	num := stack.Peek()
	target := num.Uint64()

	var upper uint64
	if evm.Context.BlockNumber != nil {
		upper = evm.Context.BlockNumber.Uint64()
	}
	var lower uint64
	if upper > 256 {
		lower = upper - 256
	}

	if target >= lower && target < upper && evm.Context.GetHash != nil {
		hash := evm.Context.GetHash(target)
		num.SetBytes(hash[:])
	} else {
		num.SetUint64(0)
	}
	return nil, nil
}

// opSelfdestruct implements SELFDESTRUCT. Post-EIP-6780 (Cancun), it only
// sweeps the contract's balance to the beneficiary; it never destroys the
// account itself. Full destruction is only applied by the state processor,
// and only for contracts created earlier in the same transaction.
func opSelfdestruct(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.staticMode {
		return nil, ErrWriteProtection
	}
	beneficiary := bigToAddr(stack.Pop())

	if evm.StateDB != nil {
		if balance := evm.StateDB.GetBalance(contract.Address); balance.Sign() > 0 {
			evm.StateDB.AddBalance(beneficiary, balance)
			evm.StateDB.SubBalance(contract.Address, balance)
		}
	}
	return nil, nil
}
