package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/rlp"
	"golang.org/x/crypto/sha3"
)

var (
	errUnknownTxType = errors.New("unknown transaction type")
	errShortTypedTx  = errors.New("typed transaction too short")
)

// ---- RLP helper structs (field order matches Ethereum consensus spec) ----

// legacyTxWire is the RLP encoding layout for LegacyTx.
// Fields: [nonce, gasPrice, gasLimit, to, value, data, v, r, s]
type legacyTxWire struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       []byte // empty for contract creation, 20 bytes otherwise
	Value    *big.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// accessListTxWire is the RLP encoding layout for AccessListTx (EIP-2930).
// Fields: [chainID, nonce, gasPrice, gasLimit, to, value, data, accessList, v, r, s]
type accessListTxWire struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         []byte
	Value      *big.Int
	Data       []byte
	AccessList []accessTupleWire
	V          *big.Int
	R          *big.Int
	S          *big.Int
}

// dynamicFeeTxWire is the RLP encoding layout for DynamicFeeTx (EIP-1559).
// Fields: [chainID, nonce, maxPriorityFeePerGas, maxFeePerGas, gasLimit, to, value, data, accessList, v, r, s]
type dynamicFeeTxWire struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         []byte
	Value      *big.Int
	Data       []byte
	AccessList []accessTupleWire
	V          *big.Int
	R          *big.Int
	S          *big.Int
}

// blobTxWire is the RLP encoding layout for BlobTx (EIP-4844).
// Fields: [chainID, nonce, maxPriorityFeePerGas, maxFeePerGas, gasLimit, to, value, data, accessList, maxFeePerBlobGas, blobVersionedHashes, v, r, s]
type blobTxWire struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         Address
	Value      *big.Int
	Data       []byte
	AccessList []accessTupleWire
	BlobFeeCap *big.Int
	BlobHashes []Hash
	V          *big.Int
	R          *big.Int
	S          *big.Int
}

// setCodeTxWire is the RLP encoding layout for SetCodeTx (EIP-7702).
// Fields: [chainID, nonce, maxPriorityFeePerGas, maxFeePerGas, gasLimit, to, value, data, accessList, authorizationList, v, r, s]
type setCodeTxWire struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         Address
	Value      *big.Int
	Data       []byte
	AccessList []accessTupleWire
	AuthList   []authorizationWire
	V          *big.Int
	R          *big.Int
	S          *big.Int
}

type accessTupleWire struct {
	Address     Address
	StorageKeys []Hash
}

type authorizationWire struct {
	ChainID *big.Int
	Address Address
	Nonce   uint64
	V       *big.Int
	R       *big.Int
	S       *big.Int
}

// ---- Encoding ----

// EncodeRLP returns the RLP envelope encoding of the transaction.
// For legacy txs: RLP([nonce, gasPrice, ...])
// For typed txs: type_byte || RLP([chainID, nonce, ...])
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		return emitLegacyTx(inner)
	case *AccessListTx:
		return emitTypedTx(AccessListTxType, inner)
	case *DynamicFeeTx:
		return emitTypedTx(DynamicFeeTxType, inner)
	case *BlobTx:
		return emitTypedTx(BlobTxType, inner)
	case *SetCodeTx:
		return emitTypedTx(SetCodeTxType, inner)
	default:
		return nil, errUnknownTxType
	}
}

func emitLegacyTx(tx *LegacyTx) ([]byte, error) {
	enc := legacyTxWire{
		Nonce:    tx.Nonce,
		GasPrice: valueOrZero(tx.GasPrice),
		Gas:      tx.Gas,
		To:       addrPtrBytes(tx.To),
		Value:    valueOrZero(tx.Value),
		Data:     tx.Data,
		V:        valueOrZero(tx.V),
		R:        valueOrZero(tx.R),
		S:        valueOrZero(tx.S),
	}
	return rlp.EncodeToBytes(enc)
}

func emitTypedTx(txType byte, inner txPayload) ([]byte, error) {
	var payload []byte
	var err error

	switch tx := inner.(type) {
	case *AccessListTx:
		enc := accessListTxWire{
			ChainID:    valueOrZero(tx.ChainID),
			Nonce:      tx.Nonce,
			GasPrice:   valueOrZero(tx.GasPrice),
			Gas:        tx.Gas,
			To:         addrPtrBytes(tx.To),
			Value:      valueOrZero(tx.Value),
			Data:       tx.Data,
			AccessList: marshalAccessList(tx.AccessList),
			V:          valueOrZero(tx.V),
			R:          valueOrZero(tx.R),
			S:          valueOrZero(tx.S),
		}
		payload, err = rlp.EncodeToBytes(enc)

	case *DynamicFeeTx:
		enc := dynamicFeeTxWire{
			ChainID:    valueOrZero(tx.ChainID),
			Nonce:      tx.Nonce,
			GasTipCap:  valueOrZero(tx.GasTipCap),
			GasFeeCap:  valueOrZero(tx.GasFeeCap),
			Gas:        tx.Gas,
			To:         addrPtrBytes(tx.To),
			Value:      valueOrZero(tx.Value),
			Data:       tx.Data,
			AccessList: marshalAccessList(tx.AccessList),
			V:          valueOrZero(tx.V),
			R:          valueOrZero(tx.R),
			S:          valueOrZero(tx.S),
		}
		payload, err = rlp.EncodeToBytes(enc)

	case *BlobTx:
		enc := blobTxWire{
			ChainID:    valueOrZero(tx.ChainID),
			Nonce:      tx.Nonce,
			GasTipCap:  valueOrZero(tx.GasTipCap),
			GasFeeCap:  valueOrZero(tx.GasFeeCap),
			Gas:        tx.Gas,
			To:         tx.To,
			Value:      valueOrZero(tx.Value),
			Data:       tx.Data,
			AccessList: marshalAccessList(tx.AccessList),
			BlobFeeCap: valueOrZero(tx.BlobFeeCap),
			BlobHashes: tx.BlobHashes,
			V:          valueOrZero(tx.V),
			R:          valueOrZero(tx.R),
			S:          valueOrZero(tx.S),
		}
		payload, err = rlp.EncodeToBytes(enc)

	case *SetCodeTx:
		enc := setCodeTxWire{
			ChainID:    valueOrZero(tx.ChainID),
			Nonce:      tx.Nonce,
			GasTipCap:  valueOrZero(tx.GasTipCap),
			GasFeeCap:  valueOrZero(tx.GasFeeCap),
			Gas:        tx.Gas,
			To:         tx.To,
			Value:      valueOrZero(tx.Value),
			Data:       tx.Data,
			AccessList: marshalAccessList(tx.AccessList),
			AuthList:   marshalAuthList(tx.AuthorizationList),
			V:          valueOrZero(tx.V),
			R:          valueOrZero(tx.R),
			S:          valueOrZero(tx.S),
		}
		payload, err = rlp.EncodeToBytes(enc)

	default:
		return nil, errUnknownTxType
	}

	if err != nil {
		return nil, err
	}
	// Prepend type byte.
	result := make([]byte, 1+len(payload))
	result[0] = txType
	copy(result[1:], payload)
	return result, nil
}

// ---- Decoding ----

// DecodeTxRLP decodes an RLP-encoded transaction.
// A first byte in 0x01..0x7f is treated as a typed transaction envelope.
// A list prefix (>= 0xc0) is decoded as a legacy RLP list, a leading 0x00 is
// stripped before legacy decoding, and any other first byte is rejected.
func DecodeTxRLP(data []byte) (*Transaction, error) {
	if len(data) == 0 {
		return nil, errors.New("empty transaction data")
	}
	// Typed transaction: first byte is the type (0x01-0x04 are all < 0x7f).
	if data[0] <= 0x7f && data[0] != 0 {
		return parseTypedTx(data[0], data[1:])
	}
	// Legacy transaction: first byte is an RLP list prefix (>= 0xc0) or type 0.
	// Type 0x00 could be ambiguous; check if it starts with a list prefix.
	if data[0] >= 0xc0 {
		return parseLegacyTx(data)
	}
	// If first byte is 0x00, it could be a typed legacy tx (type 0).
	// Per EIP-2718, type 0 is not formally an envelope type, but we handle
	// it: strip the 0x00 byte and decode the rest as legacy.
	if data[0] == 0x00 {
		if len(data) < 2 {
			return nil, errShortTypedTx
		}
		return parseLegacyTx(data[1:])
	}
	return nil, fmt.Errorf("invalid transaction encoding, first byte: 0x%02x", data[0])
}

func parseLegacyTx(data []byte) (*Transaction, error) {
	var dec legacyTxWire
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode legacy tx: %w", err)
	}
	inner := &LegacyTx{
		Nonce:    dec.Nonce,
		GasPrice: dec.GasPrice,
		Gas:      dec.Gas,
		To:       addrPtrFromBytes(dec.To),
		Value:    dec.Value,
		Data:     dec.Data,
		V:        dec.V,
		R:        dec.R,
		S:        dec.S,
	}
	return NewTransaction(inner), nil
}

func parseTypedTx(txType byte, payload []byte) (*Transaction, error) {
	if len(payload) == 0 {
		return nil, errShortTypedTx
	}
	switch txType {
	case AccessListTxType:
		return parseAccessListTx(payload)
	case DynamicFeeTxType:
		return parseDynamicFeeTx(payload)
	case BlobTxType:
		return parseBlobTx(payload)
	case SetCodeTxType:
		return parseSetCodeTx(payload)
	default:
		return nil, fmt.Errorf("unsupported transaction type: 0x%02x", txType)
	}
}

func parseAccessListTx(data []byte) (*Transaction, error) {
	var dec accessListTxWire
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode access list tx: %w", err)
	}
	inner := &AccessListTx{
		ChainID:    dec.ChainID,
		Nonce:      dec.Nonce,
		GasPrice:   dec.GasPrice,
		Gas:        dec.Gas,
		To:         addrPtrFromBytes(dec.To),
		Value:      dec.Value,
		Data:       dec.Data,
		AccessList: unmarshalAccessList(dec.AccessList),
		V:          dec.V,
		R:          dec.R,
		S:          dec.S,
	}
	return NewTransaction(inner), nil
}

func parseDynamicFeeTx(data []byte) (*Transaction, error) {
	var dec dynamicFeeTxWire
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode dynamic fee tx: %w", err)
	}
	inner := &DynamicFeeTx{
		ChainID:    dec.ChainID,
		Nonce:      dec.Nonce,
		GasTipCap:  dec.GasTipCap,
		GasFeeCap:  dec.GasFeeCap,
		Gas:        dec.Gas,
		To:         addrPtrFromBytes(dec.To),
		Value:      dec.Value,
		Data:       dec.Data,
		AccessList: unmarshalAccessList(dec.AccessList),
		V:          dec.V,
		R:          dec.R,
		S:          dec.S,
	}
	return NewTransaction(inner), nil
}

func parseBlobTx(data []byte) (*Transaction, error) {
	var dec blobTxWire
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode blob tx: %w", err)
	}
	inner := &BlobTx{
		ChainID:    dec.ChainID,
		Nonce:      dec.Nonce,
		GasTipCap:  dec.GasTipCap,
		GasFeeCap:  dec.GasFeeCap,
		Gas:        dec.Gas,
		To:         dec.To,
		Value:      dec.Value,
		Data:       dec.Data,
		AccessList: unmarshalAccessList(dec.AccessList),
		BlobFeeCap: dec.BlobFeeCap,
		BlobHashes: dec.BlobHashes,
		V:          dec.V,
		R:          dec.R,
		S:          dec.S,
	}
	return NewTransaction(inner), nil
}

func parseSetCodeTx(data []byte) (*Transaction, error) {
	var dec setCodeTxWire
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode set code tx: %w", err)
	}
	inner := &SetCodeTx{
		ChainID:           dec.ChainID,
		Nonce:             dec.Nonce,
		GasTipCap:         dec.GasTipCap,
		GasFeeCap:         dec.GasFeeCap,
		Gas:               dec.Gas,
		To:                dec.To,
		Value:             dec.Value,
		Data:              dec.Data,
		AccessList:        unmarshalAccessList(dec.AccessList),
		AuthorizationList: unmarshalAuthList(dec.AuthList),
		V:                 dec.V,
		R:                 dec.R,
		S:                 dec.S,
	}
	return NewTransaction(inner), nil
}

// ---- Access list / authorization helpers ----

func marshalAccessList(al AccessList) []accessTupleWire {
	if al == nil {
		return nil
	}
	out := make([]accessTupleWire, len(al))
	for i, t := range al {
		out[i] = accessTupleWire{
			Address:     t.Address,
			StorageKeys: t.StorageKeys,
		}
	}
	return out
}

func unmarshalAccessList(al []accessTupleWire) AccessList {
	if al == nil {
		return nil
	}
	out := make(AccessList, len(al))
	for i, t := range al {
		out[i] = AccessTuple{
			Address:     t.Address,
			StorageKeys: t.StorageKeys,
		}
	}
	return out
}

func marshalAuthList(auths []Authorization) []authorizationWire {
	if auths == nil {
		return nil
	}
	out := make([]authorizationWire, len(auths))
	for i, a := range auths {
		out[i] = authorizationWire{
			ChainID: valueOrZero(a.ChainID),
			Address: a.Address,
			Nonce:   a.Nonce,
			V:       valueOrZero(a.V),
			R:       valueOrZero(a.R),
			S:       valueOrZero(a.S),
		}
	}
	return out
}

func unmarshalAuthList(auths []authorizationWire) []Authorization {
	if auths == nil {
		return nil
	}
	out := make([]Authorization, len(auths))
	for i, a := range auths {
		out[i] = Authorization{
			ChainID: a.ChainID,
			Address: a.Address,
			Nonce:   a.Nonce,
			V:       a.V,
			R:       a.R,
			S:       a.S,
		}
	}
	return out
}

// ---- Address encoding helpers ----

func addrPtrBytes(a *Address) []byte {
	if a == nil {
		return nil
	}
	return a[:]
}

func addrPtrFromBytes(b []byte) *Address {
	if len(b) == 0 {
		return nil
	}
	a := BytesToAddress(b)
	return &a
}

// valueOrZero returns i if non-nil, otherwise a zero big.Int.
func valueOrZero(i *big.Int) *big.Int {
	if i != nil {
		return i
	}
	return new(big.Int)
}

// ---- Hash using Keccak-256 of RLP encoding ----

// hashRLP computes Keccak-256 of the transaction's RLP envelope encoding.
func (tx *Transaction) hashRLP() Hash {
	enc, err := tx.EncodeRLP()
	if err != nil {
		return Hash{}
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(enc)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// SigningHash returns the hash that was signed to produce the transaction's signature.
// For legacy (pre-EIP-155): Keccak256(RLP([nonce, gasPrice, gas, to, value, data]))
// For EIP-155 legacy: Keccak256(RLP([nonce, gasPrice, gas, to, value, data, chainID, 0, 0]))
// For typed transactions: Keccak256(type || RLP([fields without v, r, s]))
func (tx *Transaction) SigningHash() Hash {
	switch t := tx.inner.(type) {
	case *LegacyTx:
		return legacySigningHash(t)
	case *AccessListTx:
		return accessListSigningHash(t)
	case *DynamicFeeTx:
		return dynamicFeeSigningHash(t)
	case *BlobTx:
		return blobSigningHash(t)
	case *SetCodeTx:
		return setCodeSigningHash(t)
	default:
		return Hash{}
	}
}

// legacySigningHash computes signing hash for legacy transactions.
func legacySigningHash(tx *LegacyTx) Hash {
	chainID := chainIDFromV(tx.V)
	toBytes := make([]byte, 0)
	if tx.To != nil {
		toBytes = tx.To[:]
	}

	var items [][]byte
	enc := func(v interface{}) {
		b, _ := rlp.EncodeToBytes(v)
		items = append(items, b)
	}

	enc(tx.Nonce)
	enc(tx.GasPrice)
	enc(tx.Gas)
	enc(toBytes)
	enc(tx.Value)
	enc(tx.Data)

	if chainID != nil && chainID.Sign() > 0 {
		enc(chainID)
		enc(uint(0))
		enc(uint(0))
	}

	var payload []byte
	for _, item := range items {
		payload = append(payload, item...)
	}
	encoded := rlp.WrapList(payload)

	d := sha3.NewLegacyKeccak256()
	d.Write(encoded)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// accessListSigningHash computes signing hash for EIP-2930 transactions.
func accessListSigningHash(tx *AccessListTx) Hash {
	toBytes := make([]byte, 0)
	if tx.To != nil {
		toBytes = tx.To[:]
	}
	payload := encodeSigningFields(
		tx.ChainID, tx.Nonce, tx.GasPrice, tx.Gas, toBytes, tx.Value, tx.Data,
	)
	payload = append(payload, packAccessList(tx.AccessList)...)
	return hashTypedPayload(AccessListTxType, payload)
}

// dynamicFeeSigningHash computes signing hash for EIP-1559 transactions.
func dynamicFeeSigningHash(tx *DynamicFeeTx) Hash {
	toBytes := make([]byte, 0)
	if tx.To != nil {
		toBytes = tx.To[:]
	}
	payload := encodeSigningFields(
		tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, toBytes, tx.Value, tx.Data,
	)
	payload = append(payload, packAccessList(tx.AccessList)...)
	return hashTypedPayload(DynamicFeeTxType, payload)
}

// blobSigningHash computes signing hash for EIP-4844 transactions.
func blobSigningHash(tx *BlobTx) Hash {
	payload := encodeSigningFields(
		tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To[:], tx.Value, tx.Data,
	)
	payload = append(payload, packAccessList(tx.AccessList)...)
	blobFeeCap, _ := rlp.EncodeToBytes(tx.BlobFeeCap)
	payload = append(payload, blobFeeCap...)
	payload = append(payload, packHashes(tx.BlobHashes)...)
	return hashTypedPayload(BlobTxType, payload)
}

// setCodeSigningHash computes signing hash for EIP-7702 transactions.
func setCodeSigningHash(tx *SetCodeTx) Hash {
	payload := encodeSigningFields(
		tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To[:], tx.Value, tx.Data,
	)
	payload = append(payload, packAccessList(tx.AccessList)...)
	payload = append(payload, packAuthList(tx.AuthorizationList)...)
	return hashTypedPayload(SetCodeTxType, payload)
}

// encodeSigningFields RLP-encodes a sequence of values and concatenates them.
func encodeSigningFields(vals ...interface{}) []byte {
	var payload []byte
	for _, v := range vals {
		b, _ := rlp.EncodeToBytes(v)
		payload = append(payload, b...)
	}
	return payload
}

// hashTypedPayload computes Keccak256(type || RLP_list(payload)).
func hashTypedPayload(txType byte, payload []byte) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte{txType})
	d.Write(rlp.WrapList(payload))
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// packAccessList RLP-encodes an access list as raw bytes.
func packAccessList(list AccessList) []byte {
	var inner []byte
	for _, tuple := range list {
		keysPayload := packHashes(tuple.StorageKeys)
		addrEnc, _ := rlp.EncodeToBytes(tuple.Address[:])
		item := append(addrEnc, keysPayload...)
		inner = append(inner, rlp.WrapList(item)...)
	}
	return rlp.WrapList(inner)
}

// packHashes RLP-encodes a list of hashes.
func packHashes(hashes []Hash) []byte {
	var inner []byte
	for _, h := range hashes {
		encoded, _ := rlp.EncodeToBytes(h[:])
		inner = append(inner, encoded...)
	}
	return rlp.WrapList(inner)
}

// packAuthList RLP-encodes an EIP-7702 authorization list as raw bytes.
func packAuthList(list []Authorization) []byte {
	var inner []byte
	for _, auth := range list {
		chainEnc, _ := rlp.EncodeToBytes(auth.ChainID)
		addrEnc, _ := rlp.EncodeToBytes(auth.Address[:])
		nonceEnc, _ := rlp.EncodeToBytes(auth.Nonce)
		item := append(chainEnc, addrEnc...)
		item = append(item, nonceEnc...)
		inner = append(inner, rlp.WrapList(item)...)
	}
	return rlp.WrapList(inner)
}
