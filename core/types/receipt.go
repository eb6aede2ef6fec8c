package types

import "math/big"

// Post-Byzantium receipt status.
const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt is a transaction's execution record. Only the consensus fields
// feed the receipts trie; everything below them is derived for callers
// after the block runs.
type Receipt struct {
	// Consensus fields.
	Type              uint8
	PostState         []byte
	Status            uint64
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log

	// Derived per-transaction fields.
	TxHash            Hash
	ContractAddress   Address
	GasUsed           uint64
	EffectiveGasPrice *big.Int

	// EIP-4844 blob dimension.
	BlobGasUsed  uint64
	BlobGasPrice *big.Int

	// EIP-7706 calldata dimension.
	CalldataGasUsed  uint64
	CalldataGasPrice *big.Int

	// Block inclusion context.
	BlockHash        Hash
	BlockNumber      *big.Int
	TransactionIndex uint
}

// NewReceipt builds a receipt carrying only the execution outcome.
func NewReceipt(status uint64, cumulativeGasUsed uint64) *Receipt {
	return &Receipt{
		Status:            status,
		CumulativeGasUsed: cumulativeGasUsed,
	}
}

// Succeeded reports a status-1 receipt.
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}

// DeriveReceiptFields stamps the block-inclusion context onto receipts and
// their logs after a block executes, numbering logs block-wide in
// execution order.
func DeriveReceiptFields(receipts []*Receipt, blockHash Hash, blockNumber uint64, baseFee *big.Int, txs []*Transaction) {
	var logIndex uint

	for i, receipt := range receipts {
		receipt.BlockHash = blockHash
		receipt.BlockNumber = new(big.Int).SetUint64(blockNumber)
		receipt.TransactionIndex = uint(i)

		var txHash Hash
		if i < len(txs) {
			txHash = txs[i].Hash()
			receipt.TxHash = txHash
		}

		for _, log := range receipt.Logs {
			log.BlockHash = blockHash
			log.BlockNumber = blockNumber
			log.TxIndex = uint(i)
			log.TxHash = txHash
			log.Index = logIndex
			logIndex++
		}
	}
}
