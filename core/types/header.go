package types

import (
	"math/big"
	"sync/atomic"
	"unsafe"
)

// Header is the block header: the parent link, the coinbase, the five
// commitments the pipeline must reproduce (state, transactions, receipts,
// bloom, withdrawals), gas accounting, and the optional per-fork fields
// that accreted from London onward. Nil pointer fields mean "fork not
// active at this block".
type Header struct {
	ParentHash  Hash
	UncleHash   Hash
	Coinbase    Address
	Root        Hash
	TxHash      Hash
	ReceiptHash Hash
	Bloom       Bloom
	Difficulty  *big.Int
	Number      *big.Int
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
	MixDigest   Hash
	Nonce       BlockNonce

	BaseFee *big.Int // EIP-1559

	WithdrawalsHash *Hash // EIP-4895

	// EIP-4844 blob dimension.
	BlobGasUsed   *uint64
	ExcessBlobGas *uint64

	ParentBeaconRoot *Hash // EIP-4788

	RequestsHash *Hash // EIP-7685

	BlockAccessListHash *Hash // EIP-7928

	// EIP-7706 calldata dimension.
	CalldataGasUsed   *uint64
	CalldataExcessGas *uint64

	// EIP-7742: consensus-layer-supplied blob target override. Not part
	// of the header's RLP encoding; carried for excess-blob-gas
	// derivation when the CL drives the blob count.
	TargetBlobsPerBlock *uint64

	// Unserialized caches; copyHeader deliberately drops them.
	hash atomic.Pointer[Hash]
	size atomic.Uint64
}

// Hash returns keccak256(rlp(header)), computed once and cached. A header
// must not be mutated after its first Hash call.
func (h *Header) Hash() Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	hash := hashHeader(h)
	h.hash.Store(&hash)
	return hash
}

// Size approximates the in-memory footprint, cached after the first call.
func (h *Header) Size() uint64 {
	if cached := h.size.Load(); cached != 0 {
		return cached
	}
	s := unsafe.Sizeof(*h) + uintptr(len(h.Extra))
	for _, p := range []*big.Int{h.Difficulty, h.Number, h.BaseFee} {
		if p != nil {
			s += unsafe.Sizeof(*p)
		}
	}
	size := uint64(s)
	h.size.Store(size)
	return size
}
