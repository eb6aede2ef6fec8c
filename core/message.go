package core

import (
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// Message is a transaction flattened for execution: the sender resolved,
// the fee fields normalized, and the variant-specific extras (access
// list, blob hashes, authorizations) carried alongside. A nil To marks a
// contract creation.
type Message struct {
	From       types.Address
	To         *types.Address
	Nonce      uint64
	Value      *big.Int
	GasLimit   uint64
	GasPrice   *big.Int
	GasFeeCap  *big.Int
	GasTipCap  *big.Int
	Data       []byte
	AccessList types.AccessList
	BlobHashes []types.Hash
	AuthList   []types.Authorization // EIP-7702
	TxType     uint8
}

// TransactionToMessage flattens tx. The sender comes from the
// transaction's cached recovery when present; otherwise the caller fills
// From after recovering the signature itself.
func TransactionToMessage(tx *types.Transaction) Message {
	msg := Message{
		Nonce:      tx.Nonce(),
		GasLimit:   tx.Gas(),
		GasPrice:   tx.GasPrice(),
		GasFeeCap:  tx.GasFeeCap(),
		GasTipCap:  tx.GasTipCap(),
		Data:       tx.Data(),
		AccessList: tx.AccessList(),
		BlobHashes: tx.BlobHashes(),
		AuthList:   tx.AuthorizationList(),
		TxType:     tx.Type(),
		Value:      new(big.Int),
	}
	if sender := tx.Sender(); sender != nil {
		msg.From = *sender
	}
	if to := tx.To(); to != nil {
		dst := *to
		msg.To = &dst
	}
	if v := tx.Value(); v != nil {
		msg.Value.Set(v)
	}
	return msg
}
