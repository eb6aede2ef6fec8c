package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// EIP-4844 blob admission and header validation. Blob gas is its own
// dimension: per-block limits, a separate exponential fee, and the excess
// counter that carries demand between blocks.
const (
	MaxBlobGasPerBlock    = 786432 // 6 blobs
	TargetBlobGasPerBlock = 393216 // 3 blobs
	GasPerBlob            = 131072 // 2^17 per blob

	// BlobTxHashVersion is the mandatory leading byte of every versioned
	// hash (the KZG commitment version).
	BlobTxHashVersion = 0x01

	MaxBlobsPerBlock = 6
)

var (
	ErrBlobTxNoBlobHashes     = errors.New("blob transaction must have at least one blob hash")
	ErrBlobTxTooManyBlobs     = errors.New("blob transaction exceeds maximum blobs per block")
	ErrBlobTxInvalidHashVersion = errors.New("blob hash has invalid version byte")
	ErrBlobFeeCapTooLow       = errors.New("max fee per blob gas too low")
	ErrBlobGasUsedNil         = errors.New("post-Cancun block missing BlobGasUsed")
	ErrBlobGasUsedExceeded    = errors.New("block blob gas used exceeds maximum")
	ErrExcessBlobGasNil       = errors.New("post-Cancun block missing ExcessBlobGas")
	ErrExcessBlobGasMismatch  = errors.New("block excess blob gas does not match calculated value")
)

// ValidateBlobTx admits a type-3 transaction: one to six versioned
// hashes, every hash carrying the KZG version byte, and a blob fee cap
// covering the current blob base fee. Any failure invalidates the block
// that carries the transaction.
func ValidateBlobTx(tx *types.Transaction, excessBlobGas uint64) error {
	hashes := tx.BlobHashes()
	if len(hashes) == 0 {
		return ErrBlobTxNoBlobHashes
	}
	if len(hashes) > MaxBlobsPerBlock {
		return fmt.Errorf("%w: have %d, max %d", ErrBlobTxTooManyBlobs, len(hashes), MaxBlobsPerBlock)
	}

	for i, h := range hashes {
		if h[0] != BlobTxHashVersion {
			return fmt.Errorf("%w: hash %d has version 0x%02x, want 0x%02x", ErrBlobTxInvalidHashVersion, i, h[0], BlobTxHashVersion)
		}
	}

	blobBaseFee := calcBlobBaseFee(excessBlobGas)
	maxFeePerBlobGas := tx.BlobGasFeeCap()
	if maxFeePerBlobGas == nil || maxFeePerBlobGas.Cmp(blobBaseFee) < 0 {
		return fmt.Errorf("%w: have %v, want at least %v", ErrBlobFeeCapTooLow, maxFeePerBlobGas, blobBaseFee)
	}

	return nil
}

// CalcExcessBlobGas rolls the parent's excess forward: usage above the
// target accumulates, usage below it drains, floored at zero.
func CalcExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed uint64) uint64 {
	total := parentExcessBlobGas + parentBlobGasUsed
	if total < TargetBlobGasPerBlock {
		return 0
	}
	return total - TargetBlobGasPerBlock
}

// CountBlobGas is the blob gas a transaction consumes; zero for non-blob
// types.
func CountBlobGas(tx *types.Transaction) uint64 {
	return GasPerBlob * uint64(len(tx.BlobHashes()))
}

// ValidateBlockBlobGas checks a post-Cancun header's blob fields: both
// must be present, usage must fit the block cap, and the excess must be
// exactly what the parent header implies. A pre-Cancun parent contributes
// zeros.
func ValidateBlockBlobGas(header *types.Header, parentHeader *types.Header) error {
	if header.BlobGasUsed == nil {
		return ErrBlobGasUsedNil
	}
	if *header.BlobGasUsed > MaxBlobGasPerBlock {
		return fmt.Errorf("%w: have %d, max %d", ErrBlobGasUsedExceeded, *header.BlobGasUsed, MaxBlobGasPerBlock)
	}
	if header.ExcessBlobGas == nil {
		return ErrExcessBlobGasNil
	}

	var parentExcess, parentUsed uint64
	if parentHeader.ExcessBlobGas != nil {
		parentExcess = *parentHeader.ExcessBlobGas
	}
	if parentHeader.BlobGasUsed != nil {
		parentUsed = *parentHeader.BlobGasUsed
	}
	if want := CalcExcessBlobGas(parentExcess, parentUsed); *header.ExcessBlobGas != want {
		return fmt.Errorf("%w: have %d, want %d", ErrExcessBlobGasMismatch, *header.ExcessBlobGas, want)
	}
	return nil
}

// CalcBlobBaseFee exposes the internal exponential blob price to callers
// outside the settlement path.
func CalcBlobBaseFee(excessBlobGas uint64) *big.Int {
	return calcBlobBaseFee(excessBlobGas)
}
