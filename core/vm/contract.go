package vm

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// Contract carries one frame's immutable execution inputs: who called,
// where the code lives, the calldata, and the gas the frame still holds.
// Jumpdest analysis is cached per contract, so repeated JUMPs in a frame
// scan the code only once.
type Contract struct {
	CallerAddress types.Address
	Address       types.Address
	Code          []byte
	CodeHash      types.Hash
	Input         []byte
	Gas           uint64
	Value         *big.Int

	validDests map[uint64]bool // lazily-built JUMPDEST positions

	// EOF sections (EIP-3540, EIP-7480, EIP-7620).
	Data          []byte   // data section, addressed by DATALOAD and friends
	Subcontainers [][]byte // nested containers for EOFCREATE/RETURNCONTRACT
}

// NewContract builds a frame for code at addr invoked by caller.
func NewContract(caller, addr types.Address, value *big.Int, gas uint64) *Contract {
	return &Contract{
		CallerAddress: caller,
		Address:       addr,
		Value:         value,
		Gas:           gas,
	}
}

// GetOp returns the opcode at offset n, or STOP past the end of code.
func (c *Contract) GetOp(n uint64) OpCode {
	if n < uint64(len(c.Code)) {
		return OpCode(c.Code[n])
	}
	return STOP
}

// UseGas deducts gas from the frame, reporting false when it cannot pay.
func (c *Contract) UseGas(gas uint64) bool {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// SetCallCode points the frame at the code it will run. A nil addr keeps
// the current self address (DELEGATECALL/CALLCODE semantics).
func (c *Contract) SetCallCode(addr *types.Address, hash types.Hash, code []byte) {
	c.Code = code
	c.CodeHash = hash
	if addr != nil {
		c.Address = *addr
	}
}

// validJumpdest reports whether dest is a JUMPDEST byte that is real code
// rather than PUSH immediate data.
func (c *Contract) validJumpdest(dest *big.Int) bool {
	udest := dest.Uint64()
	if dest.BitLen() > 63 || udest >= uint64(len(c.Code)) {
		return false
	}
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	return c.isCode(udest)
}

// isCode reports whether pos holds an instruction boundary, consulting
// (and if needed building) the cached analysis.
func (c *Contract) isCode(pos uint64) bool {
	if c.validDests == nil {
		c.validDests = c.scanJumpdests()
	}
	return c.validDests[pos]
}

// scanJumpdests walks the code once, marking JUMPDEST bytes and stepping
// over PUSH immediates so data bytes are never marked.
func (c *Contract) scanJumpdests() map[uint64]bool {
	dests := make(map[uint64]bool)
	for i := uint64(0); i < uint64(len(c.Code)); i++ {
		op := OpCode(c.Code[i])
		switch {
		case op == JUMPDEST:
			dests[i] = true
		case op.IsPush():
			i += uint64(op - PUSH1 + 1)
		}
	}
	return dests
}
