package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// Block validation errors.
var (
	ErrUnknownParent    = errors.New("unknown parent")
	ErrInvalidNumber    = errors.New("invalid block number")
	ErrInvalidGasLimit  = errors.New("invalid gas limit")
	ErrInvalidGasUsed   = errors.New("gas used exceeds gas limit")
	ErrInvalidTimestamp = errors.New("timestamp not greater than parent")
	ErrExtraDataTooLong = errors.New("extra data too long")
	ErrInvalidBaseFee   = errors.New("invalid base fee")
	ErrInvalidDifficulty = errors.New("invalid difficulty for post-merge block")
	ErrInvalidUncleHash  = errors.New("invalid uncle hash for post-merge block")
	ErrInvalidNonce      = errors.New("invalid nonce for post-merge block")
	ErrInvalidRequestHash = errors.New("invalid requests hash")
	ErrBlockTooLarge      = errors.New("block exceeds maximum encoded size")
	ErrInvalidBlockAccessList = errors.New("invalid block access list hash")
	ErrMissingBlockAccessList = errors.New("missing block access list hash")
)

const (
	// MaxExtraDataSize is the maximum allowed extra data in a block header.
	MaxExtraDataSize = 32

	// GasLimitBoundDivisor bounds the per-block gas limit change to 1/1024
	// of the parent's.
	GasLimitBoundDivisor uint64 = 1024

	// MinGasLimit is the minimum gas limit.
	MinGasLimit uint64 = 5000

	// MaxGasLimit is the maximum gas limit (2^63 - 1).
	MaxGasLimit uint64 = 1<<63 - 1

	// ElasticityMultiplier is the EIP-1559 elasticity multiplier.
	ElasticityMultiplier uint64 = 2

	// BaseFeeChangeDenominator is the EIP-1559 base fee change denominator.
	BaseFeeChangeDenominator uint64 = 8

	// MaxRLPBlockSize caps the RLP-encoded block at 10 MiB minus a 2 MiB
	// safety margin for the consensus envelope (EIP-7934).
	MaxRLPBlockSize = 10*1024*1024 - 2*1024*1024
)

// BlockValidator validates block headers and bodies against consensus rules.
type BlockValidator struct {
	config *ChainConfig
}

// NewBlockValidator creates a new block validator.
func NewBlockValidator(config *ChainConfig) *BlockValidator {
	return &BlockValidator{config: config}
}

// ValidateHeader checks a header against its parent: linkage, extra data,
// timestamp monotonicity, number, gas limit drift, gas used, the post-merge
// field constraints, the EIP-1559 base fee, and the EIP-4844 blob gas
// fields.
func (v *BlockValidator) ValidateHeader(header, parent *types.Header) error {
	if header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: want %v, got %v", ErrUnknownParent, parent.Hash(), header.ParentHash)
	}

	if len(header.Extra) > MaxExtraDataSize {
		return fmt.Errorf("%w: %d > %d", ErrExtraDataTooLong, len(header.Extra), MaxExtraDataSize)
	}

	if header.Time <= parent.Time {
		return fmt.Errorf("%w: child %d <= parent %d", ErrInvalidTimestamp, header.Time, parent.Time)
	}

	expected := new(big.Int).Add(parent.Number, big.NewInt(1))
	if header.Number == nil || header.Number.Cmp(expected) != 0 {
		return fmt.Errorf("%w: want %v, got %v", ErrInvalidNumber, expected, header.Number)
	}

	if err := verifyGasLimit(parent.GasLimit, header.GasLimit); err != nil {
		return err
	}

	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("%w: %d > %d", ErrInvalidGasUsed, header.GasUsed, header.GasLimit)
	}

	if err := verifyPostMerge(header); err != nil {
		return err
	}

	if header.BaseFee != nil {
		expectedBaseFee := CalcBaseFee(parent)
		if header.BaseFee.Cmp(expectedBaseFee) != 0 {
			return fmt.Errorf("%w: want %v, got %v", ErrInvalidBaseFee, expectedBaseFee, header.BaseFee)
		}
	}

	if v.config != nil && v.config.IsCancun(header.Time) {
		if err := ValidateBlockBlobGas(header, parent); err != nil {
			return err
		}
	}

	return nil
}

// ValidateBody checks the block body against the header: encoded size cap,
// no uncles post-merge, the blob gas total, and the presence of the
// withdrawals list once Shanghai is active.
func (v *BlockValidator) ValidateBody(block *types.Block) error {
	header := block.Header()

	if enc, err := block.EncodeRLP(); err == nil && len(enc) > MaxRLPBlockSize {
		return fmt.Errorf("%w: %d > %d", ErrBlockTooLarge, len(enc), MaxRLPBlockSize)
	}

	if len(block.Uncles()) > 0 {
		return ErrInvalidUncleHash
	}

	if v.config != nil && v.config.IsCancun(header.Time) {
		var totalBlobGas uint64
		for _, tx := range block.Transactions() {
			totalBlobGas += CountBlobGas(tx)
		}
		if header.BlobGasUsed != nil && *header.BlobGasUsed != totalBlobGas {
			return fmt.Errorf("blob gas used mismatch: header %d, computed %d", *header.BlobGasUsed, totalBlobGas)
		}
	}

	if v.config != nil && v.config.IsShanghai(header.Time) {
		if block.Withdrawals() == nil {
			return errors.New("post-Shanghai block missing withdrawals")
		}
	}

	return nil
}

// ValidateRequests verifies the EIP-7685 requests_hash header field against
// the requests collected during execution. Pre-Prague headers must not
// carry one; post-Prague headers must, and it must match.
func (v *BlockValidator) ValidateRequests(header *types.Header, requests types.Requests) error {
	isPrague := v.config != nil && v.config.IsPrague(header.Time)

	if !isPrague {
		if header.RequestsHash != nil {
			return fmt.Errorf("%w: pre-Prague block has requests_hash", ErrInvalidRequestHash)
		}
		return nil
	}

	if header.RequestsHash == nil {
		return fmt.Errorf("%w: post-Prague block missing requests_hash", ErrInvalidRequestHash)
	}

	return types.ValidateRequestsHash(header, requests)
}

// ValidateBlockAccessList verifies the EIP-7928 BAL hash in the header
// against the hash computed by re-executing the block. Pre-Amsterdam
// headers must not carry one.
func (v *BlockValidator) ValidateBlockAccessList(header *types.Header, computedBALHash *types.Hash) error {
	isAmsterdam := v.config != nil && v.config.IsAmsterdam(header.Time)

	if !isAmsterdam {
		if header.BlockAccessListHash != nil {
			return fmt.Errorf("%w: pre-Amsterdam block has BlockAccessListHash", ErrInvalidBlockAccessList)
		}
		return nil
	}

	if header.BlockAccessListHash == nil {
		return fmt.Errorf("%w: post-Amsterdam block missing BlockAccessListHash", ErrMissingBlockAccessList)
	}
	if computedBALHash == nil {
		return fmt.Errorf("%w: no computed BAL hash available for comparison", ErrInvalidBlockAccessList)
	}
	if *header.BlockAccessListHash != *computedBALHash {
		return fmt.Errorf("%w: header=%s computed=%s", ErrInvalidBlockAccessList,
			header.BlockAccessListHash.Hex(), computedBALHash.Hex())
	}

	return nil
}

// verifyGasLimit checks the gas limit bounds and the 1/1024 drift rule.
func verifyGasLimit(parentGasLimit, headerGasLimit uint64) error {
	if headerGasLimit < MinGasLimit {
		return fmt.Errorf("%w: %d < minimum %d", ErrInvalidGasLimit, headerGasLimit, MinGasLimit)
	}
	if headerGasLimit > MaxGasLimit {
		return fmt.Errorf("%w: %d > maximum %d", ErrInvalidGasLimit, headerGasLimit, MaxGasLimit)
	}

	var diff uint64
	if headerGasLimit < parentGasLimit {
		diff = parentGasLimit - headerGasLimit
	} else {
		diff = headerGasLimit - parentGasLimit
	}
	limit := parentGasLimit / GasLimitBoundDivisor
	if diff >= limit {
		return fmt.Errorf("%w: change %d exceeds limit %d", ErrInvalidGasLimit, diff, limit)
	}
	return nil
}

// verifyPostMerge checks the PoS header constraints: zero difficulty, zero
// nonce, empty uncle hash.
func verifyPostMerge(header *types.Header) error {
	if header.Difficulty != nil && header.Difficulty.Sign() != 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidDifficulty, header.Difficulty)
	}
	if header.Nonce != (types.BlockNonce{}) {
		return fmt.Errorf("%w: got %v", ErrInvalidNonce, header.Nonce)
	}
	if header.UncleHash != (types.Hash{}) && header.UncleHash != types.EmptyUncleHash {
		return fmt.Errorf("%w: got %v", ErrInvalidUncleHash, header.UncleHash)
	}
	return nil
}
