// Package types holds the consensus data structures the pipeline moves
// around: fixed-width byte arrays, accounts, logs, transactions, blocks,
// and their canonical encodings.
package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Fixed widths, in bytes.
const (
	HashLength    = 32
	AddressLength = 20
	BloomLength   = 256
	NonceLength   = 8
)

// Hash is a 32-byte Keccak-256 digest.
type Hash [HashLength]byte

// Address is a 20-byte account address.
type Address [AddressLength]byte

// Bloom is the 2048-bit log filter.
type Bloom [BloomLength]byte

// BlockNonce is the legacy 8-byte PoW nonce, all-zero after the merge.
type BlockNonce [NonceLength]byte

// SetBytes fills h from b, keeping the low-order bytes when b is too long
// and left-padding when it is short.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

// BytesToHash left-pads b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash parses an optionally 0x-prefixed hex string into a Hash.
func HexToHash(s string) Hash {
	return BytesToHash(fromHex(s))
}

// Bytes returns h as a slice.
func (h Hash) Bytes() []byte { return h[:] }

// Hex renders h with a 0x prefix.
func (h Hash) Hex() string { return fmt.Sprintf("0x%x", h[:]) }

// IsZero reports the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// SetBytes fills a from b with the same truncation/padding rules as
// Hash.SetBytes.
func (a *Address) SetBytes(b []byte) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
}

// BytesToAddress left-pads b into an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	a.SetBytes(b)
	return a
}

// HexToAddress parses an optionally 0x-prefixed hex string into an Address.
func HexToAddress(s string) Address {
	return BytesToAddress(fromHex(s))
}

// Bytes returns a as a slice.
func (a Address) Bytes() []byte { return a[:] }

// Hex renders a with a 0x prefix.
func (a Address) Hex() string { return fmt.Sprintf("0x%x", a[:]) }

// IsZero reports the all-zero address.
func (a Address) IsZero() bool { return a == Address{} }

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// Account is the state-trie leaf: nonce, balance, the storage trie root,
// and the code hash. Storage and code themselves live outside the leaf.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	Root     Hash
	CodeHash []byte
}

// NewAccount returns a fresh externally-owned account shape: zero
// balance, no storage, empty code.
func NewAccount() Account {
	return Account{
		Balance:  new(big.Int),
		CodeHash: EmptyCodeHash.Bytes(),
		Root:     EmptyRootHash,
	}
}

// Log is one contract event: the emitter, indexed topics, opaque payload,
// and (once derived) its position in the block.
type Log struct {
	Address     Address
	Topics      []Hash
	Data        []byte
	BlockNumber uint64
	TxHash      Hash
	TxIndex     uint
	BlockHash   Hash
	Index       uint
	Removed     bool
}

// Well-known empty commitments.
var (
	// EmptyRootHash commits an empty trie.
	EmptyRootHash = HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

	// EmptyCodeHash is keccak256 of no code.
	EmptyCodeHash = HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")

	// EmptyUncleHash is keccak256(rlp([])), the post-merge ommers field.
	EmptyUncleHash = HexToHash("1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347")
)

// fromHex decodes hex with an optional 0x prefix, tolerating odd length.
func fromHex(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ := hex.DecodeString(s)
	return b
}
