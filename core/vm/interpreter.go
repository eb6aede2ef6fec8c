package vm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
	"github.com/ethstate/execution-core/rlp"
)

var (
	ErrOutOfGas              = errors.New("out of gas")
	ErrStackOverflow         = errors.New("stack overflow")
	ErrStackUnderflow        = errors.New("stack underflow")
	ErrInvalidJump           = errors.New("invalid jump destination")
	ErrWriteProtection       = errors.New("write protection")
	ErrExecutionReverted     = errors.New("execution reverted")
	ErrMaxCallDepthExceeded  = errors.New("max call depth exceeded")
	ErrInvalidOpCode         = errors.New("invalid opcode")
	ErrReturnDataOutOfBounds = errors.New("return data out of bounds")
	ErrMaxInitCodeSizeExceeded = errors.New("max initcode size exceeded")
)

// ripemdTouchAddr is the RIPEMD-160 precompile, whose account touch
// historically survives a failed call (the EIP-161 exemption).
var ripemdTouchAddr = types.BytesToAddress([]byte{3})

// GetHashFunc resolves a block number to its canonical hash, backing the
// BLOCKHASH opcode.
type GetHashFunc func(uint64) types.Hash

// BlockContext carries the per-block environment the opcodes read
// (NUMBER, COINBASE, BASEFEE, ...). It never changes within a block.
type BlockContext struct {
	GetHash     GetHashFunc
	BlockNumber *big.Int
	Time        uint64
	Coinbase    types.Address
	GasLimit    uint64
	BaseFee     *big.Int
	PrevRandao  types.Hash
	BlobBaseFee *big.Int
	SlotNumber  uint64 // EIP-7843 beacon slot
}

// TxContext carries the per-transaction environment (ORIGIN, GASPRICE,
// BLOBHASH), fixed for all frames of one transaction.
type TxContext struct {
	Origin     types.Address
	GasPrice   *big.Int
	BlobHashes []types.Hash
}

// StateDB is the slice of world state the interpreter needs. It lives in
// this package (rather than importing core/state) to keep the dependency
// arrow pointing from the pipeline into the VM; core/state's interface is
// a superset, so its values satisfy this one directly.
type StateDB interface {
	// Account operations
	CreateAccount(addr types.Address)
	GetBalance(addr types.Address) *big.Int
	AddBalance(addr types.Address, amount *big.Int)
	SubBalance(addr types.Address, amount *big.Int)
	GetNonce(addr types.Address) uint64
	SetNonce(addr types.Address, nonce uint64)
	GetCode(addr types.Address) []byte
	SetCode(addr types.Address, code []byte)
	GetCodeHash(addr types.Address) types.Hash

	GetCodeSize(addr types.Address) int

	// Storage
	GetState(addr types.Address, key types.Hash) types.Hash
	SetState(addr types.Address, key types.Hash, value types.Hash)
	GetCommittedState(addr types.Address, key types.Hash) types.Hash

	// Transient storage (EIP-1153)
	GetTransientState(addr types.Address, key types.Hash) types.Hash
	SetTransientState(addr types.Address, key types.Hash, value types.Hash)
	ClearTransientStorage()

	// Self-destruct
	SelfDestruct(addr types.Address)
	HasSelfDestructed(addr types.Address) bool

	// Account existence
	Exist(addr types.Address) bool
	Empty(addr types.Address) bool

	// Snapshot and revert
	Snapshot() int
	RevertToSnapshot(id int)

	// Logs
	AddLog(log *types.Log)

	// Refund counter (EIP-3529)
	AddRefund(gas uint64)
	SubRefund(gas uint64)
	GetRefund() uint64

	// Access list (EIP-2929 warm/cold tracking)
	AddAddressToAccessList(addr types.Address)
	AddSlotToAccessList(addr types.Address, slot types.Hash)
	AddressInAccessList(addr types.Address) bool
	SlotInAccessList(addr types.Address, slot types.Hash) (addressOk bool, slotOk bool)
}

// Config tunes one EVM instance: an optional tracer (active only with
// Debug set) and the call-depth ceiling, defaulting to the protocol 1024.
type Config struct {
	Debug        bool
	Tracer       EVMLogger
	MaxCallDepth int
}

// EVM is one execution environment: the block and transaction context,
// the state handle, and the per-run machinery (dispatch table, call
// depth, static flag, the CALL gas handoff slot).
type EVM struct {
	Context   BlockContext
	TxContext TxContext
	Config    Config
	StateDB   StateDB

	chainID        uint64
	depth          int
	staticMode     bool
	opSet          JumpTable
	precompiles    map[types.Address]PrecompiledContract
	lastReturn     []byte // output of the most recent call frame
	pendingCallGas uint64 // handoff from the CALL dynamic gas to the handler
	forkCfg        ForkRules
}

// NewEVM creates a new EVM instance.
func NewEVM(blockCtx BlockContext, txCtx TxContext, config Config) *EVM {
	if config.MaxCallDepth == 0 {
		config.MaxCallDepth = 1024
	}
	return &EVM{
		Context:   blockCtx,
		TxContext: txCtx,
		Config:    config,
		opSet:     NewCancunJumpTable(),
	}
}

// NewEVMWithState creates a new EVM instance with state access.
func NewEVMWithState(blockCtx BlockContext, txCtx TxContext, config Config, stateDB StateDB) *EVM {
	evm := NewEVM(blockCtx, txCtx, config)
	evm.StateDB = stateDB
	return evm
}

// SetJumpTable replaces the EVM's jump table. Use SelectJumpTable to pick
// the correct table for a given fork.
func (evm *EVM) SetJumpTable(jt JumpTable) {
	evm.opSet = jt
}

// SetPrecompiles replaces the EVM's precompile map.
func (evm *EVM) SetPrecompiles(p map[types.Address]PrecompiledContract) {
	evm.precompiles = p
}

// SetForkRules sets the active fork rules for this EVM instance.
func (evm *EVM) SetForkRules(rules ForkRules) {
	evm.forkCfg = rules
}

// GetForkRules returns the active fork rules.
func (evm *EVM) GetForkRules() ForkRules {
	return evm.forkCfg
}

// precompile returns the precompiled contract at addr, falling back to the
// default Cancun precompile set if no custom map has been set.
func (evm *EVM) precompile(addr types.Address) (PrecompiledContract, bool) {
	m := evm.precompiles
	if m == nil {
		m = PrecompiledContractsCancun
	}
	p, ok := m[addr]
	return p, ok
}

// runPrecompile executes a precompiled contract and returns the output,
// remaining gas, and any error.
func runPrecompile(p PrecompiledContract, input []byte, gas uint64) ([]byte, uint64, error) {
	gasCost := p.RequiredGas(input)
	if gas < gasCost {
		return nil, 0, ErrOutOfGas
	}
	output, err := p.Run(input)
	return output, gas - gasCost, err
}

// ForkRules mirrors the chain configuration fork flags needed to select
// the correct jump table. The caller (processor) converts ChainConfig.Rules
// into this struct to avoid a circular import.
type ForkRules struct {
	IsGlamsterdan    bool
	IsPrague         bool
	IsCancun         bool
	IsShanghai       bool
	IsMerge          bool
	IsLondon         bool
	IsBerlin         bool
	IsIstanbul       bool
	IsConstantinople bool
	IsByzantium      bool
	IsHomestead      bool
	IsEIP158         bool // EIP-158: empty account cleanup
	IsEIP7708        bool // EIP-7708: ETH transfers emit a log
	IsEIP7954        bool // EIP-7954: increased max contract code size
}

// SelectPrecompiles returns the correct precompile map for the given fork rules.
func SelectPrecompiles(rules ForkRules) map[types.Address]PrecompiledContract {
	if rules.IsGlamsterdan {
		return PrecompiledContractsGlamsterdan
	}
	return PrecompiledContractsCancun
}

// SelectJumpTable returns the correct jump table for the given fork rules.
func SelectJumpTable(rules ForkRules) JumpTable {
	switch {
	case rules.IsGlamsterdan:
		return NewGlamsterdanJumpTable()
	case rules.IsPrague:
		return NewPragueJumpTable()
	case rules.IsCancun:
		return NewCancunJumpTable()
	case rules.IsShanghai:
		return NewShanghaiJumpTable()
	case rules.IsMerge:
		return NewMergeJumpTable()
	case rules.IsLondon:
		return NewLondonJumpTable()
	case rules.IsBerlin:
		return NewBerlinJumpTable()
	case rules.IsIstanbul:
		return NewIstanbulJumpTable()
	case rules.IsConstantinople:
		return NewConstantinopleJumpTable()
	case rules.IsByzantium:
		return NewByzantiumJumpTable()
	case rules.IsHomestead:
		return NewHomesteadJumpTable()
	default:
		return NewFrontierJumpTable()
	}
}

// Run drives the fetch/charge/execute loop over contract.Code. Each step
// settles in a fixed order: stack bounds, base gas, memory bound, dynamic
// gas (which prices the pending expansion), the expansion itself, then the
// handler. Handlers for JUMP-family opcodes steer pc themselves; halting
// opcodes end the loop with whatever output they produced.
func (evm *EVM) Run(contract *Contract, input []byte) ([]byte, error) {
	contract.Input = input

	var (
		pc    uint64
		stack = NewStack()
		mem   = NewMemory()
		trace = evm.Config.Debug && evm.Config.Tracer != nil
	)

	for {
		op := contract.GetOp(pc)
		spec := evm.opSet[op]
		if spec == nil || spec.invoke == nil {
			return nil, ErrInvalidOpCode
		}

		sLen := stack.Len()
		if sLen < spec.stackNeed {
			return nil, ErrStackUnderflow
		}
		if sLen > spec.stackCeil {
			return nil, ErrStackOverflow
		}

		gasBefore := contract.Gas

		if spec.baseGas > 0 && !contract.UseGas(spec.baseGas) {
			return nil, ErrOutOfGas
		}

		// Word-align the memory high-water mark the opcode needs; the
		// dynamic gas function prices the growth before it happens.
		var memBound uint64
		if spec.memBound != nil {
			need, overflow := spec.memBound(stack)
			if overflow {
				return nil, ErrOutOfGas
			}
			if need > 0 {
				memBound = (need + 31) / 32 * 32
			}
		}

		if spec.dynGas != nil {
			cost, err := spec.dynGas(evm, contract, stack, mem, memBound)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrOutOfGas, err)
			}
			if !contract.UseGas(cost) {
				return nil, ErrOutOfGas
			}
		}

		if memBound > 0 && uint64(mem.Len()) < memBound {
			mem.Resize(memBound)
		}

		if trace {
			evm.Config.Tracer.CaptureState(pc, op, gasBefore, gasBefore-contract.Gas, stack, mem, evm.depth, nil)
		}

		ret, err := spec.invoke(&pc, evm, contract, mem, stack)
		if err != nil {
			if errors.Is(err, ErrExecutionReverted) {
				return ret, err
			}
			return nil, err
		}

		if spec.haltsRun {
			return ret, nil
		}
		if spec.reroutes {
			continue
		}
		pc++
	}
}

// runFrame executes contract at one level deeper, then applies the revert
// rules every call variant shares: a revert rolls the state back but keeps
// the frame's remaining gas; any other error rolls back and burns it.
func (evm *EVM) runFrame(snapshot int, contract *Contract, input []byte) ([]byte, uint64, error) {
	evm.depth++
	ret, err := evm.Run(contract, input)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// frameFor builds a frame whose self/storage context is self, running the
// code stored at codeAddr.
func (evm *EVM) frameFor(caller, self, codeAddr types.Address, value *big.Int, gas uint64) *Contract {
	contract := NewContract(caller, self, value, gas)
	contract.Code = evm.StateDB.GetCode(codeAddr)
	contract.CodeHash = evm.StateDB.GetCodeHash(codeAddr)
	return contract
}

// Call executes a message call to the given address with the given input, gas, and value.
func (evm *EVM) Call(caller types.Address, addr types.Address, input []byte, gas uint64, value *big.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	debug := evm.Config.Debug && evm.Config.Tracer != nil

	// Notify tracer at the top-level call (depth 0).
	if debug && evm.depth == 0 {
		evm.Config.Tracer.CaptureStart(caller, addr, false, input, gas, value)
	}

	// Check if the callee has sufficient balance for value transfer.
	transfersValue := value != nil && value.Sign() > 0
	if transfersValue && evm.StateDB != nil {
		callerBalance := evm.StateDB.GetBalance(caller)
		if callerBalance.Cmp(value) < 0 {
			if debug && evm.depth == 0 {
				evm.Config.Tracer.CaptureEnd(nil, 0, errors.New("insufficient balance for transfer"))
			}
			return nil, gas, errors.New("insufficient balance for transfer")
		}
	}

	if evm.StateDB == nil {
		return nil, gas, errors.New("no state database")
	}

	// Snapshot state for revert on failure.
	snapshot := evm.StateDB.Snapshot()

	// Check for precompiled contract.
	p, isPrecompile := evm.precompile(addr)

	// Handle account creation / EIP-158 empty account rule.
	if !evm.StateDB.Exist(addr) {
		if !isPrecompile && evm.forkCfg.IsEIP158 && !transfersValue {
			// EIP-158: do not create empty accounts for zero-value calls.
			if debug && evm.depth == 0 {
				evm.Config.Tracer.CaptureEnd(nil, 0, nil)
			}
			return nil, gas, nil
		}
		evm.StateDB.CreateAccount(addr)
	}

	// Transfer value (before running precompile or code).
	if transfersValue {
		if evm.staticMode {
			return nil, gas, ErrWriteProtection
		}
		evm.StateDB.SubBalance(caller, value)
		evm.StateDB.AddBalance(addr, value)

		// EIP-7708: emit transfer log for nonzero-value CALL to a different account.
		if evm.forkCfg.IsEIP7708 && caller != addr {
			EmitTransferLog(evm.StateDB, caller, addr, value)
		}
	}

	// Execute precompile or contract code.
	if isPrecompile {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
			// Historical EIP-161 exemption: the touch of the RIPEMD-160
			// precompile survives the rollback of a failed call.
			if addr == ripemdTouchAddr && !evm.StateDB.Exist(addr) {
				evm.StateDB.CreateAccount(addr)
			}
		}
		if debug && evm.depth == 0 {
			evm.Config.Tracer.CaptureEnd(ret, gas-gasLeft, err)
		}
		return ret, gasLeft, err
	}

	contract := evm.frameFor(caller, addr, addr, value, gas)
	if len(contract.Code) == 0 {
		// Nothing to run; the call trivially succeeds.
		if debug && evm.depth == 0 {
			evm.Config.Tracer.CaptureEnd(nil, 0, nil)
		}
		return nil, gas, nil
	}

	ret, gasLeft, err := evm.runFrame(snapshot, contract, input)
	if debug && evm.depth == 0 {
		evm.Config.Tracer.CaptureEnd(ret, gas-gasLeft, err)
	}
	return ret, gasLeft, err
}

// CallCode runs addr's code with the caller's own address as the storage
// and balance context (the legacy CALLCODE semantics).
func (evm *EVM) CallCode(caller types.Address, addr types.Address, input []byte, gas uint64, value *big.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}
	if p, ok := evm.precompile(addr); ok {
		return runPrecompile(p, input, gas)
	}
	if evm.StateDB == nil {
		return nil, gas, errors.New("no state database")
	}

	snapshot := evm.StateDB.Snapshot()
	contract := evm.frameFor(caller, caller, addr, value, gas)
	if len(contract.Code) == 0 {
		return nil, gas, nil
	}
	return evm.runFrame(snapshot, contract, input)
}

// DelegateCall runs addr's code in the caller's context while keeping the
// original msg.sender and value visible to it.
func (evm *EVM) DelegateCall(caller types.Address, addr types.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}
	if p, ok := evm.precompile(addr); ok {
		return runPrecompile(p, input, gas)
	}
	if evm.StateDB == nil {
		return nil, gas, errors.New("no state database")
	}

	snapshot := evm.StateDB.Snapshot()
	contract := evm.frameFor(caller, caller, addr, nil, gas)
	if len(contract.Code) == 0 {
		return nil, gas, nil
	}
	return evm.runFrame(snapshot, contract, input)
}

// StaticCall executes a read-only message call. Any state modifications will cause an error.
func (evm *EVM) StaticCall(caller types.Address, addr types.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	if evm.StateDB == nil {
		return nil, gas, errors.New("no state database")
	}

	// Set staticMode mode for the duration of this call.
	prevReadOnly := evm.staticMode
	evm.staticMode = true
	defer func() { evm.staticMode = prevReadOnly }()

	// We take a snapshot here. Even a staticcall is considered a 'touch'.
	// On mainnet, static calls were introduced after all empty accounts
	// were deleted, so this is not required. However, certain tests (e.g.
	// stRevertTest/RevertPrecompiledTouchExactOOG) require this behavior.
	snapshot := evm.StateDB.Snapshot()

	// Check for precompiled contract.
	if p, ok := evm.precompile(addr); ok {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		}
		return ret, gasLeft, err
	}

	contract := evm.frameFor(caller, addr, addr, new(big.Int), gas)
	if len(contract.Code) == 0 {
		return nil, gas, nil
	}
	return evm.runFrame(snapshot, contract, input)
}

// createAddress derives the CREATE target:
// keccak256(rlp([sender, nonce]))[12:].
func createAddress(caller types.Address, nonce uint64) types.Address {
	enc, _ := rlp.EncodeToBytes(struct {
		Sender []byte
		Nonce  uint64
	}{caller[:], nonce})
	hash := crypto.Keccak256(enc)
	return types.BytesToAddress(hash[12:])
}

// create2Address derives the CREATE2 target:
// keccak256(0xff ++ sender ++ salt ++ keccak256(initCode))[12:].
func create2Address(caller types.Address, salt *big.Int, initCodeHash []byte) types.Address {
	preimage := make([]byte, 0, 1+20+32+32)
	preimage = append(preimage, 0xff)
	preimage = append(preimage, caller[:]...)
	var saltWord [32]byte
	if salt != nil {
		b := salt.Bytes()
		copy(saltWord[32-len(b):], b)
	}
	preimage = append(preimage, saltWord[:]...)
	preimage = append(preimage, initCodeHash...)
	hash := crypto.Keccak256(preimage)
	return types.BytesToAddress(hash[12:])
}

// checkCreate guards both creation entry points: depth, static context,
// and state availability.
func (evm *EVM) checkCreate() error {
	if evm.depth > evm.Config.MaxCallDepth {
		return ErrMaxCallDepthExceeded
	}
	if evm.staticMode {
		return ErrWriteProtection
	}
	if evm.StateDB == nil {
		return errors.New("no state database")
	}
	return nil
}

// Create deploys code at the nonce-derived CREATE address, bumping the
// creator's nonce first.
func (evm *EVM) Create(caller types.Address, code []byte, gas uint64, value *big.Int) ([]byte, types.Address, uint64, error) {
	if err := evm.checkCreate(); err != nil {
		return nil, types.Address{}, gas, err
	}

	nonce := evm.StateDB.GetNonce(caller)
	evm.StateDB.SetNonce(caller, nonce+1)

	return evm.create(caller, code, gas, value, createAddress(caller, nonce))
}

// Create2 deploys code at the salt-derived CREATE2 address.
func (evm *EVM) Create2(caller types.Address, code []byte, gas uint64, endowment *big.Int, salt *big.Int) ([]byte, types.Address, uint64, error) {
	if err := evm.checkCreate(); err != nil {
		return nil, types.Address{}, gas, err
	}

	target := create2Address(caller, salt, crypto.Keccak256(code))
	return evm.create(caller, code, gas, endowment, target)
}

// PreWarmAccessList seeds the EIP-2929 access list the way transaction
// setup does: sender, destination (when not a creation), and the full
// precompile range 0x01..0x13.
func (evm *EVM) PreWarmAccessList(sender types.Address, to *types.Address) {
	if evm.StateDB == nil {
		return
	}
	evm.StateDB.AddAddressToAccessList(sender)
	if to != nil {
		evm.StateDB.AddAddressToAccessList(*to)
	}
	for i := 1; i <= 0x13; i++ {
		evm.StateDB.AddAddressToAccessList(types.BytesToAddress([]byte{byte(i)}))
	}
}

// gasEIP2929AccountCheck warms addr on first touch and returns the cold
// surcharge; the warm baseline is charged as the opcode's base gas.
func gasEIP2929AccountCheck(evm *EVM, addr types.Address) uint64 {
	if evm.StateDB == nil || evm.StateDB.AddressInAccessList(addr) {
		return 0
	}
	evm.StateDB.AddAddressToAccessList(addr)
	return ColdAccountAccessCost - WarmStorageReadCost
}

// gasEIP2929SlotCheck is the storage-slot variant of the cold surcharge.
func gasEIP2929SlotCheck(evm *EVM, addr types.Address, slot types.Hash) uint64 {
	if evm.StateDB == nil {
		return 0
	}
	if _, warm := evm.StateDB.SlotInAccessList(addr, slot); warm {
		return 0
	}
	evm.StateDB.AddSlotToAccessList(addr, slot)
	return ColdSloadCost - WarmStorageReadCost
}

// create runs init code for Create and Create2 once the target address is
// known: collision check, account setup, endowment, the EIP-150 63/64
// split, init-code execution, and code deposit.
func (evm *EVM) create(caller types.Address, code []byte, gas uint64, value *big.Int, contractAddr types.Address) ([]byte, types.Address, uint64, error) {
	if len(code) > MaxInitCodeSizeForFork(evm.forkCfg) {
		return nil, types.Address{}, gas, ErrMaxInitCodeSizeExceeded
	}

	// A non-zero nonce or existing code at the target burns all gas.
	targetHash := evm.StateDB.GetCodeHash(contractAddr)
	if evm.StateDB.GetNonce(contractAddr) != 0 ||
		(targetHash != (types.Hash{}) && targetHash != types.EmptyCodeHash) {
		return nil, types.Address{}, 0, errors.New("contract address collision")
	}

	// The EIP-2929 warming of the new address survives a failed creation,
	// so it happens outside the snapshot.
	evm.StateDB.AddAddressToAccessList(contractAddr)

	snapshot := evm.StateDB.Snapshot()

	// The target may already exist with a balance; only materialize it
	// when it does not.
	if !evm.StateDB.Exist(contractAddr) {
		evm.StateDB.CreateAccount(contractAddr)
	}

	// EIP-161: fresh contracts start at nonce 1.
	evm.StateDB.SetNonce(contractAddr, 1)

	if value != nil && value.Sign() > 0 {
		if evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
			return nil, types.Address{}, gas, errors.New("insufficient balance for transfer")
		}
		evm.StateDB.SubBalance(caller, value)
		evm.StateDB.AddBalance(contractAddr, value)
		if evm.forkCfg.IsEIP7708 {
			EmitTransferLog(evm.StateDB, caller, contractAddr, value)
		}
	}

	// GasCreate and the init-code word gas were already charged at the
	// dispatch table; only the EIP-150 63/64 split happens here.
	initGas := gas - gas/CallGasFraction
	gas -= initGas

	frame := NewContract(caller, contractAddr, value, initGas)
	frame.Code = code

	evm.depth++
	ret, err := evm.Run(frame, nil)
	evm.depth--

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if errors.Is(err, ErrExecutionReverted) {
			// REVERT hands back whatever the init frame did not spend.
			gas += frame.Gas
		}
		return ret, types.Address{}, gas, err
	}
	gas += frame.Gas

	if len(ret) > 0 {
		gas, err = evm.depositCode(contractAddr, ret, gas, snapshot)
		if err != nil {
			return nil, types.Address{}, 0, err
		}
	}
	return ret, contractAddr, gas, nil
}

// depositCode bills the per-byte deposit charge and installs the returned
// runtime code, enforcing the fork's size ceiling.
func (evm *EVM) depositCode(addr types.Address, runtime []byte, gas uint64, snapshot int) (uint64, error) {
	if len(runtime) > MaxCodeSizeForFork(evm.forkCfg) {
		evm.StateDB.RevertToSnapshot(snapshot)
		return 0, errors.New("max code size exceeded")
	}
	deposit := uint64(len(runtime)) * CreateDataGas
	if gas < deposit {
		evm.StateDB.RevertToSnapshot(snapshot)
		return 0, ErrOutOfGas
	}
	evm.StateDB.SetCode(addr, runtime)
	return gas - deposit, nil
}
