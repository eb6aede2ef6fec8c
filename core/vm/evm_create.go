package vm

// Contract creation as a reusable unit: CreateExecutor owns the lifecycle
// a CREATE/CREATE2 runs through — upfront gas, address derivation,
// collision checks, init-code execution under the 63/64 rule, and code
// deposit — with the fork-dependent size and validation limits bound at
// construction.

import (
	"errors"
	"math/big"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

// Contract creation errors.
var (
	ErrCreateCollision         = errors.New("create: contract address collision")
	ErrCreateNonceOverflow     = errors.New("create: sender nonce overflow")
	ErrCreateInsufficientFunds = errors.New("create: insufficient balance for endowment")
	ErrCreateCodeTooLarge      = errors.New("create: deployed code exceeds max size")
	ErrCreateInitCodeTooLarge  = errors.New("create: init code exceeds max size")
)

// CreateKind distinguishes CREATE from CREATE2.
type CreateKind uint8

const (
	CreateKindCreate  CreateKind = iota
	CreateKindCreate2
)

func (ck CreateKind) String() string {
	if ck == CreateKindCreate2 {
		return "CREATE2"
	}
	return "CREATE"
}

// CreateParams is the input to one creation.
type CreateParams struct {
	Kind     CreateKind
	Caller   types.Address
	InitCode []byte
	Value    *big.Int // endowment for the new account
	Salt     *big.Int // CREATE2 only
	Gas      uint64
}

// CreateResult is the outcome: the derived address, whatever the init
// code returned (the runtime code on success), and the gas ledger.
type CreateResult struct {
	Address    types.Address
	ReturnData []byte
	GasUsed    uint64
	GasLeft    uint64
	Err        error
}

// CreateExecutor binds the fork-dependent creation limits.
type CreateExecutor struct {
	maxCodeSize     int  // EIP-170 / EIP-7954
	maxInitCodeSize int  // EIP-3860
	eip7610Enabled  bool // storage counts toward collisions
	eofEnabled      bool // EOF containers validated at creation (EIP-3540)
}

// NewCreateExecutor derives the limits from the active fork rules.
func NewCreateExecutor(rules ForkRules) *CreateExecutor {
	return &CreateExecutor{
		maxCodeSize:     MaxCodeSizeForFork(rules),
		maxInitCodeSize: MaxInitCodeSizeForFork(rules),
		eip7610Enabled:  rules.IsPrague || rules.IsGlamsterdan,
		eofEnabled:      rules.IsPrague || rules.IsGlamsterdan,
	}
}

// ComputeAddress derives the target: nonce-based for CREATE, salted
// init-code hash for CREATE2.
func (ce *CreateExecutor) ComputeAddress(params *CreateParams, nonce uint64) types.Address {
	if params.Kind == CreateKindCreate2 {
		return create2Address(params.Caller, params.Salt, crypto.Keccak256(params.InitCode))
	}
	return createAddress(params.Caller, nonce)
}

// ValidateInitCode enforces the EIP-3860 size ceiling and, with EOF
// active, requires EOF-prefixed init code to parse as a container.
func (ce *CreateExecutor) ValidateInitCode(initCode []byte) error {
	if len(initCode) > ce.maxInitCodeSize {
		return ErrCreateInitCodeTooLarge
	}
	return ce.validateEOF(initCode)
}

// ValidateDeployedCode enforces the EIP-170/7954 ceiling on the runtime
// code, with the same EOF container requirement.
func (ce *CreateExecutor) ValidateDeployedCode(code []byte) error {
	if len(code) > ce.maxCodeSize {
		return ErrCreateCodeTooLarge
	}
	return ce.validateEOF(code)
}

func (ce *CreateExecutor) validateEOF(code []byte) error {
	if !ce.eofEnabled || !HasEOFPrefix(code) {
		return nil
	}
	_, err := ParseEOFContainer(code)
	return err
}

// CheckCollision rejects deployment onto an address that has been used: a
// non-zero nonce, code, or (under EIP-7610) storage. Balance alone does
// not collide.
func (ce *CreateExecutor) CheckCollision(stateDB StateDB, addr types.Address) error {
	if stateDB == nil {
		return nil
	}
	if stateDB.GetNonce(addr) != 0 {
		return ErrCreateCollision
	}
	codeHash := stateDB.GetCodeHash(addr)
	if codeHash != (types.Hash{}) && codeHash != types.EmptyCodeHash {
		return ErrCreateCollision
	}
	if ce.eip7610Enabled && HasNonEmptyStorage(stateDB, addr) {
		return ErrCreateCollision
	}
	return nil
}

// CalcCreateGas is the upfront charge: the 32000 base, the EIP-3860
// per-word init-code charge, and for CREATE2 the keccak word charge for
// hashing the init code.
func (ce *CreateExecutor) CalcCreateGas(params *CreateParams) uint64 {
	gas := uint64(GasCreate)
	if n := len(params.InitCode); n > 0 {
		words := toWordSize(uint64(n))
		gas = safeAdd(gas, safeMul(InitCodeWordGas, words))
		if params.Kind == CreateKindCreate2 {
			gas = safeAdd(gas, safeMul(GasKeccak256Word, words))
		}
	}
	return gas
}

// CalcCodeDepositGas is the per-byte charge for installing runtime code.
func (ce *CreateExecutor) CalcCodeDepositGas(code []byte) uint64 {
	return safeMul(CreateDataGas, uint64(len(code)))
}

// fail records err on the result, optionally burning the remaining gas,
// and settles GasUsed.
func (r *CreateResult) fail(totalGas uint64, err error, burnRemaining bool) *CreateResult {
	r.Err = err
	if burnRemaining {
		r.GasLeft = 0
	}
	r.GasUsed = totalGas - r.GasLeft
	return r
}

// Execute runs the full creation lifecycle against evm.
func (ce *CreateExecutor) Execute(evm *EVM, params *CreateParams) *CreateResult {
	result := &CreateResult{GasLeft: params.Gas}

	if err := ce.ValidateInitCode(params.InitCode); err != nil {
		return result.fail(params.Gas, err, true)
	}

	upfrontGas := ce.CalcCreateGas(params)
	if result.GasLeft < upfrontGas {
		return result.fail(params.Gas, ErrOutOfGas, true)
	}
	result.GasLeft -= upfrontGas

	var nonce uint64
	if evm.StateDB != nil {
		nonce = evm.StateDB.GetNonce(params.Caller)
	}
	result.Address = ce.ComputeAddress(params, nonce)

	// CREATE bumps the creator's nonce here; for CREATE2 the outer
	// EVM.Create2 path owns that.
	if params.Kind == CreateKindCreate && evm.StateDB != nil {
		evm.StateDB.SetNonce(params.Caller, nonce+1)
	}

	if err := ce.CheckCollision(evm.StateDB, result.Address); err != nil {
		return result.fail(params.Gas, err, false)
	}

	var snapshot int
	if evm.StateDB != nil {
		snapshot = evm.StateDB.Snapshot()
		evm.StateDB.CreateAccount(result.Address)
		evm.StateDB.SetNonce(result.Address, 1) // EIP-161
	}

	if params.Value != nil && params.Value.Sign() > 0 {
		if evm.StateDB == nil {
			result.Err = errors.New("create: no state database for value transfer")
			return result
		}
		if evm.StateDB.GetBalance(params.Caller).Cmp(params.Value) < 0 {
			evm.StateDB.RevertToSnapshot(snapshot)
			return result.fail(params.Gas, ErrCreateInsufficientFunds, false)
		}
		evm.StateDB.SubBalance(params.Caller, params.Value)
		evm.StateDB.AddBalance(result.Address, params.Value)
	}

	// EIP-150: forward at most 63/64 into the init frame.
	initGas := result.GasLeft - result.GasLeft/CallGasFraction
	result.GasLeft -= initGas

	frame := NewContract(params.Caller, result.Address, params.Value, initGas)
	frame.Code = params.InitCode

	evm.depth++
	ret, err := evm.Run(frame, nil)
	evm.depth--

	result.GasLeft += frame.Gas

	if err != nil {
		if evm.StateDB != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		}
		result.ReturnData = ret
		if !errors.Is(err, ErrExecutionReverted) {
			// The whole forwarded budget burns on a hard failure.
			result.GasLeft = params.Gas - upfrontGas - initGas + frame.Gas
		}
		return result.fail(params.Gas, err, false)
	}

	if len(ret) > 0 {
		if err := ce.depositRuntime(evm, result, ret, snapshot); err != nil {
			return result.fail(params.Gas, err, true)
		}
	}

	result.ReturnData = ret
	result.GasUsed = params.Gas - result.GasLeft
	return result
}

// depositRuntime validates the returned runtime code, charges the deposit
// fee, and installs it; any failure reverts the creation.
func (ce *CreateExecutor) depositRuntime(evm *EVM, result *CreateResult, runtime []byte, snapshot int) error {
	revert := func() {
		if evm.StateDB != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		}
	}
	if err := ce.ValidateDeployedCode(runtime); err != nil {
		revert()
		return err
	}
	depositGas := ce.CalcCodeDepositGas(runtime)
	if result.GasLeft < depositGas {
		revert()
		return ErrOutOfGas
	}
	result.GasLeft -= depositGas
	if evm.StateDB != nil {
		evm.StateDB.SetCode(result.Address, runtime)
	}
	return nil
}

// MaxNonce is the largest usable account nonce; 2^64-1 is the EIP-2681
// sentinel.
const MaxNonce = ^uint64(0) - 1

// CheckNonceOverflow rejects nonces at or past MaxNonce.
func CheckNonceOverflow(nonce uint64) error {
	if nonce >= MaxNonce {
		return ErrCreateNonceOverflow
	}
	return nil
}

// CreateAddressFromNonce exposes the Yellow Paper CREATE derivation.
func CreateAddressFromNonce(caller types.Address, nonce uint64) types.Address {
	return createAddress(caller, nonce)
}

// Create2AddressFromSaltAndCode exposes the CREATE2 derivation over raw
// init code.
func Create2AddressFromSaltAndCode(caller types.Address, salt *big.Int, initCode []byte) types.Address {
	return create2Address(caller, salt, crypto.Keccak256(initCode))
}
