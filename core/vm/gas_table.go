package vm

import (
	"math"
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// Dynamic gas pricing: EIP-2929 cold/warm access, the EIP-2200/3529 SSTORE
// schedule, the CALL-family surcharges, and their Glamsterdam revisions.
// Every dynamic-gas function here also folds in the memory-expansion delta
// via gasMemExpansion, so the interpreter charges one number per step.

// EIP-2929 / EIP-3529 / metering constants.
const (
	ColdAccountAccessCost uint64 = 2600
	ColdSloadCost         uint64 = 2100
	WarmStorageReadCost   uint64 = 100
	CallStipend           uint64 = 2300 // gifted to value-bearing CALLs
	MaxCallDepth          int    = 1024

	MemoryGasCostPerWord uint64 = 3

	// EIP-3529 capped the refund at gasUsed/5 (down from /2).
	MaxRefundQuotient uint64 = 5

	// EIP-3529 SSTORE clear refund: SSTORE_RESET_GAS (2900) plus the
	// access-list storage key cost (1900).
	SstoreClearsScheduleRefund uint64 = 4800

	SelfdestructGas         uint64 = 5000
	CreateBySelfdestructGas uint64 = 25000 // beneficiary must be created
	CreateDataGas           uint64 = 200   // per byte of deployed code
	MaxCodeSize             int    = 24576 // EIP-170
	MaxInitCodeSize         int    = 49152 // EIP-3860, 2*MaxCodeSize

	InitCodeWordGas uint64 = 2 // EIP-3860 per-word init code charge

	CallGasFraction      uint64 = 64    // EIP-150: forward at most 63/64
	CallValueTransferGas uint64 = 9000  // non-zero value transfer
	CallNewAccountGas    uint64 = 25000 // value sent to a non-existent account
)

// EIP-2780 (Glamsterdam): intrinsic and call-surcharge reductions.
const (
	TxBaseGlamsterdam       uint64 = 4500  // TX_BASE_COST, was 21000
	GasNewAccount           uint64 = 25000 // new-account surcharge
	StateUpdate             uint64 = 1000  // one account-leaf write
	ColdAccountCostNoCode   uint64 = 500   // cold touch, codeless account
	ColdAccountCostCode     uint64 = 2600  // cold touch, account with code
	CallValueTransferGlamst uint64 = 2000  // 2 * STATE_UPDATE, was 9000
	CallNewAccountGlamst    uint64 = 26000 // STATE_UPDATE + GAS_NEW_ACCOUNT
)

// EIP-8037 (Glamsterdam): state creation priced per state byte. The
// per-byte figure assumes a 60M gas limit:
// ceil((gas_limit * 2_628_000) / (2 * TARGET_STATE_GROWTH_PER_YEAR)),
// quantized to 662.
const (
	CostPerStateByte          uint64 = 662
	GasCreateGlamsterdam      uint64 = 112*CostPerStateByte + 9000 // 83,144
	GasCodeDepositGlamsterdam uint64 = CostPerStateByte            // per byte, was 200
	GasSstoreSetGlamsterdam   uint64 = 32*CostPerStateByte + 2900  // 24,084
	GasNewAccountState        uint64 = 112 * CostPerStateByte      // 74,144
)

// EIP-8038 (Glamsterdam): state access repriced for a ~2x larger state;
// the EXT* family pays an extra warm read for its second DB lookup.
const (
	ColdAccountAccessGlamst uint64 = 3500 // was 2600
	ColdSloadGlamst         uint64 = 2800 // was 2100
	WarmStorageReadGlamst   uint64 = 150  // was 100
	SstoreClearsRefundGlam  uint64 = 6400 // was 4800
	AccessListAddressGlamst uint64 = 3200 // was 2400
	AccessListStorageGlamst uint64 = 2500 // was 1900
)

// MemoryGasCost prices a memory size in bytes: 3 words + words^2/512.
// Sizes past ~5.8 MB return MaxUint64, which any gas check treats as
// out-of-gas long before the multiplication could overflow.
func MemoryGasCost(memSize uint64) uint64 {
	if memSize == 0 {
		return 0
	}
	words := toWordSize(memSize)
	if words > 181_000 {
		return math.MaxUint64
	}
	return words*MemoryGasCostPerWord + words*words/512
}

// MemoryExpansionGas prices growth from oldSize to newSize bytes; shrink
// or no-op costs nothing.
func MemoryExpansionGas(oldSize, newSize uint64) uint64 {
	if newSize <= oldSize {
		return 0
	}
	return MemoryGasCost(newSize) - MemoryGasCost(oldSize)
}

// toWordSize converts a byte count to 32-byte words, rounding up and
// guarding the +31 overflow at the top of the range.
func toWordSize(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	if size > math.MaxUint64-31 {
		return math.MaxUint64/32 + 1
	}
	return (size + 31) / 32
}

// CallGas applies the EIP-150 63/64 rule: the requested amount, clamped
// so the caller retains at least 1/64 of what it has.
func CallGas(availableGas, requestedGas uint64) uint64 {
	maxGas := availableGas - availableGas/CallGasFraction
	if requestedGas > maxGas {
		return maxGas
	}
	return requestedGas
}

// SstoreGas runs the EIP-2200/3529 schedule over (original, current, new)
// and returns the charge plus the (possibly negative) refund delta:
//
//	current == new:            warm read, nothing else
//	original == current:       set (20000) or reset (2900), clear refund 4800
//	otherwise (dirty slot):    warm read, with refund corrections for
//	                           re-clearing, un-clearing, and restoring.
func SstoreGas(original, current, newVal [32]byte, cold bool) (gas uint64, refund int64) {
	if cold {
		gas += ColdSloadCost
	}

	if current == newVal {
		return gas + WarmStorageReadCost, 0
	}

	if original == current {
		if isZero(original) {
			return gas + GasSstoreSet, 0
		}
		gas += GasSstoreReset
		if isZero(newVal) {
			refund = int64(SstoreClearsScheduleRefund)
		}
		return gas, refund
	}

	gas += WarmStorageReadCost

	if !isZero(original) {
		if isZero(current) && !isZero(newVal) {
			// A previously-granted clear refund is taken back.
			refund -= int64(SstoreClearsScheduleRefund)
		} else if !isZero(current) && isZero(newVal) {
			refund += int64(SstoreClearsScheduleRefund)
		}
	}
	if original == newVal {
		if isZero(original) {
			refund += int64(GasSstoreSet) - int64(WarmStorageReadCost)
		} else {
			refund += int64(GasSstoreReset) - int64(WarmStorageReadCost)
		}
	}
	return gas, refund
}

// LogGas prices a LOG: base + per-topic + per-data-byte.
func LogGas(numTopics uint64, dataSize uint64) uint64 {
	gas := safeAdd(GasLog, safeMul(numTopics, GasLogTopic))
	return safeAdd(gas, safeMul(dataSize, GasLogData))
}

// Sha3Gas prices KECCAK256 over dataSize bytes.
func Sha3Gas(dataSize uint64) uint64 {
	return safeAdd(GasKeccak256, safeMul(toWordSize(dataSize), GasKeccak256Word))
}

// ExpGas prices EXP: the slow-step base plus 50 per exponent byte.
func ExpGas(exponent *big.Int) uint64 {
	if exponent.Sign() == 0 {
		return GasSlowStep
	}
	return safeAdd(GasSlowStep, safeMul(50, uint64((exponent.BitLen()+7)/8)))
}

// CopyGas prices the word-granular copy opcodes.
func CopyGas(size uint64) uint64 {
	return safeMul(GasCopy, toWordSize(size))
}

func isZero(val [32]byte) bool {
	for _, b := range val {
		if b != 0 {
			return false
		}
	}
	return true
}

// safeAdd and safeMul saturate at MaxUint64; a saturated charge always
// fails the gas check, which is the behavior an overflow should have.
func safeAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func safeMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}

// --- shared stack decoding ---

// stackAddr reads the stack word n from the top as an address.
func stackAddr(stack *Stack, n int) types.Address {
	return types.BytesToAddress(stack.Back(n).Bytes())
}

// stackSlot reads the stack word n from the top as a storage key.
func stackSlot(stack *Stack, n int) types.Hash {
	return bigToHash(stack.Back(n))
}

// --- simple dynamic gas functions ---

// gasSha3: per-word hashing charge on top of the constant base.
func gasSha3(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	gas := safeMul(toWordSize(stack.Back(1).Uint64()), GasKeccak256Word)
	return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
}

// gasExp: 50 per exponent byte; the constant part is charged separately.
func gasExp(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	exp := stack.Back(1)
	if exp.Sign() == 0 {
		return 0
	}
	return 50 * uint64((exp.BitLen()+7)/8)
}

// gasCopy: word charge for CALLDATACOPY/CODECOPY/RETURNDATACOPY, whose
// size operand sits at stack position 2.
func gasCopy(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	gas := safeMul(GasCopy, toWordSize(stack.Back(2).Uint64()))
	return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
}

// gasExtCodeCopyCopy: the pre-Berlin EXTCODECOPY copy charge (size at
// stack position 3).
func gasExtCodeCopyCopy(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	gas := safeMul(GasCopy, toWordSize(stack.Back(3).Uint64()))
	return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
}

// makeGasLog builds the LOGn dynamic charge: topics, payload bytes, and
// memory growth; the 375 base is the opcode's constant gas.
func makeGasLog(n uint64) dynGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
		gas := safeMul(n, GasLogTopic)
		gas = safeAdd(gas, safeMul(stack.Back(1).Uint64(), GasLogData))
		return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
	}
}

// gasCreateDynamic: EIP-3860 init-code word charge for CREATE.
func gasCreateDynamic(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	gas := safeMul(InitCodeWordGas, toWordSize(stack.Back(2).Uint64()))
	return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
}

// gasCreate2Dynamic: CREATE2 additionally hashes the init code, so every
// word pays the keccak word price on top of the EIP-3860 charge.
func gasCreate2Dynamic(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	gas := safeMul(InitCodeWordGas+GasKeccak256Word, toWordSize(stack.Back(2).Uint64()))
	return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
}

// --- access-check plumbing ---

// warmSlotSurcharge warms (addr, slot) if needed and returns coldCost for
// a first touch, zero otherwise.
func warmSlotSurcharge(evm *EVM, addr types.Address, slot types.Hash, coldCost uint64) uint64 {
	if evm.StateDB == nil {
		return 0
	}
	if _, warm := evm.StateDB.SlotInAccessList(addr, slot); warm {
		return 0
	}
	evm.StateDB.AddSlotToAccessList(addr, slot)
	return coldCost
}

// gasEIP8038AccountCheck is the account cold-surcharge under the
// Glamsterdam schedule; gasEIP2929AccountCheck (interpreter.go) is the
// Berlin original.
func gasEIP8038AccountCheck(evm *EVM, addr types.Address) uint64 {
	if evm.StateDB == nil || evm.StateDB.AddressInAccessList(addr) {
		return 0
	}
	evm.StateDB.AddAddressToAccessList(addr)
	return ColdAccountAccessGlamst - WarmStorageReadGlamst
}

// gasEIP8038SlotCheck is the slot cold-surcharge under Glamsterdam.
func gasEIP8038SlotCheck(evm *EVM, addr types.Address, slot types.Hash) uint64 {
	return warmSlotSurcharge(evm, addr, slot, ColdSloadGlamst-WarmStorageReadGlamst)
}

// accountCheckFunc is either the Berlin or the Glamsterdam cold-surcharge.
type accountCheckFunc func(*EVM, types.Address) uint64

// makeGasAccountTouch builds the dynamic gas for opcodes whose only
// dynamic component is a cold-account surcharge plus a flat extra
// (the EXT* second-read charge under EIP-8038).
func makeGasAccountTouch(check accountCheckFunc, extra uint64) dynGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
		return safeAdd(check(evm, stackAddr(stack, 0)), extra)
	}
}

// makeGasExtCodeCopy builds the EXTCODECOPY charge: cold surcharge, the
// optional flat extra, the word copy price, and memory growth.
func makeGasExtCodeCopy(check accountCheckFunc, extra uint64) dynGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
		gas := safeAdd(check(evm, stackAddr(stack, 0)), extra)
		gas = safeAdd(gas, safeMul(GasCopy, toWordSize(stack.Back(3).Uint64())))
		return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
	}
}

// makeGasCall builds the CALL/CALLCODE charge: cold surcharge on the
// target, the value-transfer surcharge, the new-account surcharge (CALL
// only, since CALLCODE never materializes the target), and memory growth.
func makeGasCall(check accountCheckFunc, valueGas, newAccountGas uint64, chargesNewAccount bool) dynGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
		addr := stackAddr(stack, 1)
		var gas uint64
		if check != nil {
			gas = check(evm, addr)
		}
		if stack.Back(2).Sign() != 0 {
			gas = safeAdd(gas, valueGas)
			if chargesNewAccount && evm.StateDB != nil && !evm.StateDB.Exist(addr) {
				gas = safeAdd(gas, newAccountGas)
			}
		}
		return safeAdd(gas, gasMemExpansion(evm, contract, stack, mem, memBound))
	}
}

// makeGasValuelessCall builds the DELEGATECALL/STATICCALL charge: cold
// surcharge plus memory growth only.
func makeGasValuelessCall(check accountCheckFunc) dynGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
		return safeAdd(check(evm, stackAddr(stack, 1)), gasMemExpansion(evm, contract, stack, mem, memBound))
	}
}

// makeGasSelfdestruct builds the SELFDESTRUCT charge: optional cold
// surcharge plus the new-account fee when a balance lands on a
// non-existent beneficiary.
func makeGasSelfdestruct(check accountCheckFunc) dynGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
		addr := stackAddr(stack, 0)
		var gas uint64
		if check != nil {
			gas = check(evm, addr)
		}
		if evm.StateDB != nil && !evm.StateDB.Exist(addr) && evm.StateDB.GetBalance(contract.Address).Sign() != 0 {
			gas = safeAdd(gas, CreateBySelfdestructGas)
		}
		return gas
	}
}

// --- pre-Berlin CALL-family pricing ---

var (
	gasCallFrontier         = makeGasCall(nil, CallValueTransferGas, CallNewAccountGas, true)
	gasCallCodeFrontier     = makeGasCall(nil, CallValueTransferGas, 0, false)
	gasSelfdestructFrontier = makeGasSelfdestruct(nil)
)

// --- EIP-2929 (Berlin) pricing ---

// gasSloadEIP2929 adds the cold surcharge; the warm baseline is the
// opcode's constant gas.
func gasSloadEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	return gasEIP2929SlotCheck(evm, contract.Address, stackSlot(stack, 0))
}

var (
	gasBalanceEIP2929      = makeGasAccountTouch(gasEIP2929AccountCheck, 0)
	gasExtCodeSizeEIP2929  = makeGasAccountTouch(gasEIP2929AccountCheck, 0)
	gasExtCodeHashEIP2929  = makeGasAccountTouch(gasEIP2929AccountCheck, 0)
	gasExtCodeCopyEIP2929  = makeGasExtCodeCopy(gasEIP2929AccountCheck, 0)
	gasCallEIP2929         = makeGasCall(gasEIP2929AccountCheck, CallValueTransferGas, CallNewAccountGas, true)
	gasCallCodeEIP2929     = makeGasCall(gasEIP2929AccountCheck, CallValueTransferGas, 0, false)
	gasDelegateCallEIP2929 = makeGasValuelessCall(gasEIP2929AccountCheck)
	gasStaticCallEIP2929   = makeGasValuelessCall(gasEIP2929AccountCheck)
	gasSelfdestructEIP2929 = makeGasSelfdestruct(gasEIP2929AccountCheck)
)

// gasSstoreEIP2929 prices SSTORE. Unlike SLOAD the opcode's constant gas
// is zero, so a cold touch pays the whole ColdSloadCost here before the
// EIP-2200 schedule is applied.
func gasSstoreEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	slot := stackSlot(stack, 0)
	coldGas := warmSlotSurcharge(evm, contract.Address, slot, ColdSloadCost)
	if evm.StateDB == nil {
		return WarmStorageReadCost + coldGas
	}

	cur := evm.StateDB.GetState(contract.Address, slot)
	orig := evm.StateDB.GetCommittedState(contract.Address, slot)
	nv := bigToHash(stack.Back(1))

	gas, _ := SstoreGas([32]byte(orig), [32]byte(cur), [32]byte(nv), false)
	return gas + coldGas
}

// --- Glamsterdam (EIP-8038/2780/7778) pricing ---

func gasSloadGlamst(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	return gasEIP8038SlotCheck(evm, contract.Address, stackSlot(stack, 0))
}

var (
	gasBalanceGlamst      = makeGasAccountTouch(gasEIP8038AccountCheck, 0)
	gasExtCodeSizeGlamst  = makeGasAccountTouch(gasEIP8038AccountCheck, WarmStorageReadGlamst)
	gasExtCodeHashGlamst  = makeGasAccountTouch(gasEIP8038AccountCheck, 0)
	gasExtCodeCopyGlamst  = makeGasExtCodeCopy(gasEIP8038AccountCheck, WarmStorageReadGlamst)
	gasCallGlamst         = makeGasCall(gasEIP8038AccountCheck, CallValueTransferGlamst, CallNewAccountGlamst, true)
	gasCallCodeGlamst     = makeGasCall(gasEIP8038AccountCheck, CallValueTransferGlamst, 0, false)
	gasDelegateCallGlamst = makeGasValuelessCall(gasEIP8038AccountCheck)
	gasStaticCallGlamst   = makeGasValuelessCall(gasEIP8038AccountCheck)
	gasSelfdestructGlamst = makeGasSelfdestruct(gasEIP8038AccountCheck)
)

// gasSstoreGlamst prices SSTORE under Glamsterdam: EIP-8038 cold/warm
// figures, the EIP-8037 set price, and no refunds at all (EIP-7778).
func gasSstoreGlamst(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memBound uint64) uint64 {
	slot := stackSlot(stack, 0)
	coldGas := warmSlotSurcharge(evm, contract.Address, slot, ColdSloadGlamst)
	if evm.StateDB == nil {
		return WarmStorageReadGlamst + coldGas
	}

	current := evm.StateDB.GetState(contract.Address, slot)
	original := evm.StateDB.GetCommittedState(contract.Address, slot)
	newVal := bigToHash(stack.Back(1))

	switch {
	case current == newVal:
		return WarmStorageReadGlamst + coldGas
	case original == current && original == (types.Hash{}):
		return GasSstoreSetGlamsterdam + coldGas
	case original == current:
		return GasSstoreReset + coldGas
	default:
		// Dirty slot; with refunds abolished there is nothing to track.
		return WarmStorageReadGlamst + coldGas
	}
}
