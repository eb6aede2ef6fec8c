package types

import (
	"math/big"
	"sync/atomic"
	"unsafe"
)

// Transaction type discriminators, matching the leading type byte of the
// typed-transaction envelope (EIP-2718).
const (
	LegacyTxType     = 0x00
	AccessListTxType = 0x01
	DynamicFeeTxType = 0x02
	BlobTxType       = 0x03
	SetCodeTxType    = 0x04
)

// Transaction wraps one of the concrete payload types (LegacyTx,
// AccessListTx, DynamicFeeTx, BlobTx, SetCodeTx) behind a stable envelope
// that caches its hash, approximate size, and recovered sender.
type Transaction struct {
	inner txPayload
	hash  atomic.Pointer[Hash]
	size  atomic.Uint64
	from  atomic.Pointer[Address]
}

// txPayload is satisfied by every concrete transaction body. Method names
// are unexported because callers reach fields through Transaction's
// exported accessors, never through the payload directly.
type txPayload interface {
	kind() byte
	chain() *big.Int
	accessListOf() AccessList
	payload() []byte
	gasLimit() uint64
	price() *big.Int
	tipCap() *big.Int
	feeCap() *big.Int
	amount() *big.Int
	seq() uint64
	recipient() *Address

	clone() txPayload
}

// AccessList is a list of address-slot pairs accessed by a transaction.
type AccessList []AccessTuple

// AccessTuple is a single address and its accessed storage slots.
type AccessTuple struct {
	Address     Address
	StorageKeys []Hash
}

// Authorization is an EIP-7702 authorization tuple carried by a SetCodeTx.
type Authorization struct {
	ChainID *big.Int
	Address Address
	Nonce   uint64
	V       *big.Int
	R       *big.Int
	S       *big.Int
}

// LegacyTx represents a pre-EIP-2718 (type 0x00) transaction.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *Address
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

func (tx *LegacyTx) kind() byte               { return LegacyTxType }
func (tx *LegacyTx) chain() *big.Int          { return chainIDFromV(tx.V) }
func (tx *LegacyTx) accessListOf() AccessList { return nil }
func (tx *LegacyTx) payload() []byte          { return tx.Data }
func (tx *LegacyTx) gasLimit() uint64         { return tx.Gas }
func (tx *LegacyTx) price() *big.Int          { return tx.GasPrice }
func (tx *LegacyTx) tipCap() *big.Int         { return tx.GasPrice }
func (tx *LegacyTx) feeCap() *big.Int         { return tx.GasPrice }
func (tx *LegacyTx) amount() *big.Int         { return tx.Value }
func (tx *LegacyTx) seq() uint64              { return tx.Nonce }
func (tx *LegacyTx) recipient() *Address      { return tx.To }

func (tx *LegacyTx) clone() txPayload {
	return &LegacyTx{
		Nonce:    tx.Nonce,
		GasPrice: cloneBigInt(tx.GasPrice),
		Gas:      tx.Gas,
		To:       cloneAddr(tx.To),
		Value:    cloneBigInt(tx.Value),
		Data:     cloneBytes(tx.Data),
		V:        cloneBigInt(tx.V),
		R:        cloneBigInt(tx.R),
		S:        cloneBigInt(tx.S),
	}
}

// AccessListTx represents an EIP-2930 (type 0x01) transaction.
type AccessListTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *AccessListTx) kind() byte               { return AccessListTxType }
func (tx *AccessListTx) chain() *big.Int          { return tx.ChainID }
func (tx *AccessListTx) accessListOf() AccessList { return tx.AccessList }
func (tx *AccessListTx) payload() []byte          { return tx.Data }
func (tx *AccessListTx) gasLimit() uint64         { return tx.Gas }
func (tx *AccessListTx) price() *big.Int          { return tx.GasPrice }
func (tx *AccessListTx) tipCap() *big.Int         { return tx.GasPrice }
func (tx *AccessListTx) feeCap() *big.Int         { return tx.GasPrice }
func (tx *AccessListTx) amount() *big.Int         { return tx.Value }
func (tx *AccessListTx) seq() uint64              { return tx.Nonce }
func (tx *AccessListTx) recipient() *Address      { return tx.To }

func (tx *AccessListTx) clone() txPayload {
	return &AccessListTx{
		ChainID:    cloneBigInt(tx.ChainID),
		Nonce:      tx.Nonce,
		GasPrice:   cloneBigInt(tx.GasPrice),
		Gas:        tx.Gas,
		To:         cloneAddr(tx.To),
		Value:      cloneBigInt(tx.Value),
		Data:       cloneBytes(tx.Data),
		AccessList: cloneAccessList(tx.AccessList),
		V:          cloneBigInt(tx.V),
		R:          cloneBigInt(tx.R),
		S:          cloneBigInt(tx.S),
	}
}

// DynamicFeeTx represents an EIP-1559 (type 0x02) transaction.
type DynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int // maxPriorityFeePerGas
	GasFeeCap  *big.Int // maxFeePerGas
	Gas        uint64
	To         *Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *DynamicFeeTx) kind() byte               { return DynamicFeeTxType }
func (tx *DynamicFeeTx) chain() *big.Int          { return tx.ChainID }
func (tx *DynamicFeeTx) accessListOf() AccessList { return tx.AccessList }
func (tx *DynamicFeeTx) payload() []byte          { return tx.Data }
func (tx *DynamicFeeTx) gasLimit() uint64         { return tx.Gas }
func (tx *DynamicFeeTx) price() *big.Int          { return tx.GasFeeCap }
func (tx *DynamicFeeTx) tipCap() *big.Int         { return tx.GasTipCap }
func (tx *DynamicFeeTx) feeCap() *big.Int         { return tx.GasFeeCap }
func (tx *DynamicFeeTx) amount() *big.Int         { return tx.Value }
func (tx *DynamicFeeTx) seq() uint64              { return tx.Nonce }
func (tx *DynamicFeeTx) recipient() *Address      { return tx.To }

func (tx *DynamicFeeTx) clone() txPayload {
	return &DynamicFeeTx{
		ChainID:    cloneBigInt(tx.ChainID),
		Nonce:      tx.Nonce,
		GasTipCap:  cloneBigInt(tx.GasTipCap),
		GasFeeCap:  cloneBigInt(tx.GasFeeCap),
		Gas:        tx.Gas,
		To:         cloneAddr(tx.To),
		Value:      cloneBigInt(tx.Value),
		Data:       cloneBytes(tx.Data),
		AccessList: cloneAccessList(tx.AccessList),
		V:          cloneBigInt(tx.V),
		R:          cloneBigInt(tx.R),
		S:          cloneBigInt(tx.S),
	}
}

// BlobTx represents an EIP-4844 (type 0x03) blob-carrying transaction. To is
// a plain Address, not a pointer: a blob transaction can never be a
// contract-creation transaction.
type BlobTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	BlobFeeCap *big.Int
	BlobHashes []Hash
	V, R, S    *big.Int
}

func (tx *BlobTx) kind() byte               { return BlobTxType }
func (tx *BlobTx) chain() *big.Int          { return tx.ChainID }
func (tx *BlobTx) accessListOf() AccessList { return tx.AccessList }
func (tx *BlobTx) payload() []byte          { return tx.Data }
func (tx *BlobTx) gasLimit() uint64         { return tx.Gas }
func (tx *BlobTx) price() *big.Int          { return tx.GasFeeCap }
func (tx *BlobTx) tipCap() *big.Int         { return tx.GasTipCap }
func (tx *BlobTx) feeCap() *big.Int         { return tx.GasFeeCap }
func (tx *BlobTx) amount() *big.Int         { return tx.Value }
func (tx *BlobTx) seq() uint64              { return tx.Nonce }
func (tx *BlobTx) recipient() *Address      { to := tx.To; return &to }

func (tx *BlobTx) clone() txPayload {
	cpy := &BlobTx{
		Nonce:      tx.Nonce,
		ChainID:    cloneBigInt(tx.ChainID),
		GasTipCap:  cloneBigInt(tx.GasTipCap),
		GasFeeCap:  cloneBigInt(tx.GasFeeCap),
		Gas:        tx.Gas,
		To:         tx.To,
		Value:      cloneBigInt(tx.Value),
		Data:       cloneBytes(tx.Data),
		AccessList: cloneAccessList(tx.AccessList),
		BlobFeeCap: cloneBigInt(tx.BlobFeeCap),
		V:          cloneBigInt(tx.V),
		R:          cloneBigInt(tx.R),
		S:          cloneBigInt(tx.S),
	}
	if tx.BlobHashes != nil {
		cpy.BlobHashes = make([]Hash, len(tx.BlobHashes))
		copy(cpy.BlobHashes, tx.BlobHashes)
	}
	return cpy
}

// SetCodeTx represents an EIP-7702 (type 0x04) set-code transaction. Like
// BlobTx, it can never target contract creation.
type SetCodeTx struct {
	ChainID           *big.Int
	Nonce             uint64
	GasTipCap         *big.Int
	GasFeeCap         *big.Int
	Gas               uint64
	To                Address
	Value             *big.Int
	Data              []byte
	AccessList        AccessList
	AuthorizationList []Authorization
	V, R, S           *big.Int
}

func (tx *SetCodeTx) kind() byte               { return SetCodeTxType }
func (tx *SetCodeTx) chain() *big.Int          { return tx.ChainID }
func (tx *SetCodeTx) accessListOf() AccessList { return tx.AccessList }
func (tx *SetCodeTx) payload() []byte          { return tx.Data }
func (tx *SetCodeTx) gasLimit() uint64         { return tx.Gas }
func (tx *SetCodeTx) price() *big.Int          { return tx.GasFeeCap }
func (tx *SetCodeTx) tipCap() *big.Int         { return tx.GasTipCap }
func (tx *SetCodeTx) feeCap() *big.Int         { return tx.GasFeeCap }
func (tx *SetCodeTx) amount() *big.Int         { return tx.Value }
func (tx *SetCodeTx) seq() uint64              { return tx.Nonce }
func (tx *SetCodeTx) recipient() *Address      { to := tx.To; return &to }

func (tx *SetCodeTx) clone() txPayload {
	cpy := &SetCodeTx{
		Nonce:      tx.Nonce,
		ChainID:    cloneBigInt(tx.ChainID),
		GasTipCap:  cloneBigInt(tx.GasTipCap),
		GasFeeCap:  cloneBigInt(tx.GasFeeCap),
		Gas:        tx.Gas,
		To:         tx.To,
		Value:      cloneBigInt(tx.Value),
		Data:       cloneBytes(tx.Data),
		AccessList: cloneAccessList(tx.AccessList),
		V:          cloneBigInt(tx.V),
		R:          cloneBigInt(tx.R),
		S:          cloneBigInt(tx.S),
	}
	if tx.AuthorizationList != nil {
		cpy.AuthorizationList = make([]Authorization, len(tx.AuthorizationList))
		for i, auth := range tx.AuthorizationList {
			cpy.AuthorizationList[i] = Authorization{
				Address: auth.Address,
				Nonce:   auth.Nonce,
				ChainID: cloneBigInt(auth.ChainID),
				V:       cloneBigInt(auth.V),
				R:       cloneBigInt(auth.R),
				S:       cloneBigInt(auth.S),
			}
		}
	}
	return cpy
}

// NewTransaction wraps inner in a Transaction envelope. inner is cloned so
// later mutation of the caller's value can't leak into the envelope.
func NewTransaction(inner txPayload) *Transaction {
	return &Transaction{inner: inner.clone()}
}

func (tx *Transaction) Type() uint8            { return tx.inner.kind() }
func (tx *Transaction) ChainId() *big.Int      { return tx.inner.chain() }
func (tx *Transaction) AccessList() AccessList { return tx.inner.accessListOf() }
func (tx *Transaction) Data() []byte           { return tx.inner.payload() }
func (tx *Transaction) Gas() uint64            { return tx.inner.gasLimit() }
func (tx *Transaction) GasPrice() *big.Int     { return tx.inner.price() }
func (tx *Transaction) GasTipCap() *big.Int    { return tx.inner.tipCap() }
func (tx *Transaction) GasFeeCap() *big.Int    { return tx.inner.feeCap() }
func (tx *Transaction) Value() *big.Int        { return tx.inner.amount() }
func (tx *Transaction) Nonce() uint64          { return tx.inner.seq() }
func (tx *Transaction) To() *Address           { return tx.inner.recipient() }

// SetSender caches the recovered sender address on the transaction so later
// callers (the block pipeline, the mempool) don't re-run signature recovery.
func (tx *Transaction) SetSender(addr Address) {
	a := addr
	tx.from.Store(&a)
}

// Sender returns the cached sender address, or nil if none has been set.
func (tx *Transaction) Sender() *Address {
	return tx.from.Load()
}

// AuthorizationList returns the EIP-7702 authorization tuples for a SetCodeTx,
// or nil for every other transaction type.
func (tx *Transaction) AuthorizationList() []Authorization {
	if setCode, ok := tx.inner.(*SetCodeTx); ok {
		return setCode.AuthorizationList
	}
	return nil
}

// BlobGasFeeCap returns the blob gas fee cap of a BlobTx, or nil otherwise.
func (tx *Transaction) BlobGasFeeCap() *big.Int {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return blob.BlobFeeCap
	}
	return nil
}

// BlobHashes returns the versioned blob hashes of a BlobTx, or nil otherwise.
func (tx *Transaction) BlobHashes() []Hash {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return blob.BlobHashes
	}
	return nil
}

// blobGasPerBlob is the fixed gas cost EIP-4844 assigns to each blob (2^17).
const blobGasPerBlob = 131072

// BlobGas returns the total blob gas consumed by a BlobTx, or 0 otherwise.
func (tx *Transaction) BlobGas() uint64 {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return uint64(len(blob.BlobHashes)) * blobGasPerBlob
	}
	return 0
}

// RawSignatureValues returns the V, R, S signature values carried by the
// transaction's payload.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	switch t := tx.inner.(type) {
	case *LegacyTx:
		return t.V, t.R, t.S
	case *AccessListTx:
		return t.V, t.R, t.S
	case *DynamicFeeTx:
		return t.V, t.R, t.S
	case *BlobTx:
		return t.V, t.R, t.S
	case *SetCodeTx:
		return t.V, t.R, t.S
	default:
		return nil, nil, nil
	}
}

// Hash returns the Keccak-256 hash of the transaction's RLP envelope,
// computing and caching it on first call.
func (tx *Transaction) Hash() Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	h := tx.hashRLP()
	tx.hash.Store(&h)
	return h
}

// Size returns the transaction's approximate in-memory footprint, computing
// and caching it on first call.
func (tx *Transaction) Size() uint64 {
	if cached := tx.size.Load(); cached != 0 {
		return cached
	}
	size := uint64(unsafe.Sizeof(*tx))
	tx.size.Store(size)
	return size
}

func cloneAddr(a *Address) *Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneAccessList(al AccessList) AccessList {
	if al == nil {
		return nil
	}
	cpy := make(AccessList, len(al))
	for i, tuple := range al {
		cpy[i] = AccessTuple{
			Address:     tuple.Address,
			StorageKeys: make([]Hash, len(tuple.StorageKeys)),
		}
		copy(cpy[i].StorageKeys, tuple.StorageKeys)
	}
	return cpy
}

// chainIDFromV recovers the chain ID a legacy transaction's V value encodes
// under EIP-155 (v = chainID*2 + 35/36). Pre-EIP-155 transactions (v == 27 or
// 28) carry no chain ID and yield zero.
func chainIDFromV(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() <= 8 {
		switch v.Uint64() {
		case 27, 28:
			return new(big.Int)
		}
	}
	chainID := new(big.Int).Sub(v, big.NewInt(35))
	chainID.Div(chainID, big.NewInt(2))
	return chainID
}
