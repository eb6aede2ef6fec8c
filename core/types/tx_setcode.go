package types

import "bytes"

// EIP-7702 set-code constants.
const (
	// AuthMagic prefixes the authorization signing preimage:
	// keccak256(0x05 || rlp([chain_id, address, nonce])).
	AuthMagic byte = 0x05

	// PerAuthBaseCost is charged for every authorization tuple.
	PerAuthBaseCost uint64 = 12500

	// PerEmptyAccountCost is added when the authority account does not
	// exist yet.
	PerEmptyAccountCost uint64 = 25000
)

// DelegationPrefix marks an account's code as a delegation designator;
// delegationCodeLen is the designator's exact size (prefix + address).
var DelegationPrefix = []byte{0xef, 0x01, 0x00}

const delegationCodeLen = 3 + AddressLength

// ParseDelegation reads the delegated-to address out of designator code.
// Anything that is not exactly a 23-byte 0xef0100-prefixed designator
// reports false.
func ParseDelegation(b []byte) (Address, bool) {
	if len(b) != delegationCodeLen || !bytes.HasPrefix(b, DelegationPrefix) {
		return Address{}, false
	}
	return BytesToAddress(b[len(DelegationPrefix):]), true
}

// AddressToDelegation builds the designator 0xef0100 || addr.
func AddressToDelegation(addr Address) []byte {
	return append(append(make([]byte, 0, delegationCodeLen), DelegationPrefix...), addr[:]...)
}

// HasDelegationPrefix reports whether code starts with 0xef0100.
func HasDelegationPrefix(code []byte) bool {
	return bytes.HasPrefix(code, DelegationPrefix)
}
