package core

// EIP-7997: deterministic CREATE2 factory predeploy. The factory lives at
// address 0x12 (vacating the precompile slot the Glamsterdam fork set no
// longer registers) and performs CREATE2 with salt = input[:32] and
// initcode = input[32:], forwarding the call value.

import (
	"encoding/hex"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
)

// FactoryAddress is the EIP-7997 CREATE2 factory predeploy address.
var FactoryAddress = types.HexToAddress("0x0000000000000000000000000000000000000012")

// factoryCodeHex is the runtime bytecode from the EIP-7997 specification.
const factoryCodeHex = "60203610602f5760003560203603806020600037600034f5806026573d600060003e3d6000fd5b60005260206000f35b60006000fd"

// FactoryCode is the decoded factory bytecode.
var FactoryCode = func() []byte {
	code, err := hex.DecodeString(factoryCodeHex)
	if err != nil {
		panic("eip7997: invalid factory bytecode hex: " + err.Error())
	}
	return code
}()

// ApplyEIP7997 installs the factory at FactoryAddress. Called once
// Glamsterdam is active; a no-op when code is already present.
func ApplyEIP7997(statedb state.StateDB) {
	if statedb.GetCodeSize(FactoryAddress) > 0 {
		return
	}
	if !statedb.Exist(FactoryAddress) {
		statedb.CreateAccount(FactoryAddress)
	}
	statedb.SetCode(FactoryAddress, FactoryCode)
}
