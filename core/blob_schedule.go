package core

import (
	"fmt"
	"math/big"

	"github.com/ethstate/execution-core/core/types"
)

// EIP-7691: Blob Throughput Increase
//
// This file provides a fork-aware blob schedule abstraction that maps
// fork names to their blob parameters (target, max, update fraction).
// It complements the existing blob_gas.go by offering named schedule
// entries for Dencun and Prague/Electra, plus calculation helpers that
// accept a schedule parameter.

// BlobScheduleEntry holds the blob parameters for a specific fork.
type BlobScheduleEntry struct {
	Target                uint64 // target blobs per block
	Max                   uint64 // maximum blobs per block
	BaseFeeUpdateFraction uint64 // blob base fee update fraction
}

// Named blob schedules per fork.
var (
	// DencunBlobSchedule: EIP-4844 original parameters (Cancun/Deneb).
	DencunBlobSchedule = BlobScheduleEntry{
		Target:                3,
		Max:                   6,
		BaseFeeUpdateFraction: 3338477,
	}

	// PragueElectraBlobSchedule: EIP-7691 increased blob throughput (Prague/Electra).
	// Target increased from 3 to 6, max from 6 to 9.
	// Update fraction from EIP-7691: 5007716.
	PragueElectraBlobSchedule = BlobScheduleEntry{
		Target:                6,
		Max:                   9,
		BaseFeeUpdateFraction: 5007716,
	}
)

// GetBlobScheduleEntry returns the active BlobScheduleEntry for the given
// config and timestamp. This mirrors GetBlobSchedule below but returns the
// EIP-7691-style entry type.
func GetBlobScheduleEntry(config *ChainConfig, time uint64) BlobScheduleEntry {
	if config.IsPrague(time) {
		return PragueElectraBlobSchedule
	}
	return DencunBlobSchedule
}

// CalcBlobBaseFeeWithSchedule computes the blob base fee from excess blob gas
// using the given schedule's update fraction. Uses the EIP-4844 fake exponential.
func CalcBlobBaseFeeWithSchedule(parentExcessGas uint64, schedule BlobScheduleEntry) *big.Int {
	return fakeExponentialV2(
		big.NewInt(1), // MIN_BASE_FEE_PER_BLOB_GAS from EIP-4844
		new(big.Int).SetUint64(parentExcessGas),
		new(big.Int).SetUint64(schedule.BaseFeeUpdateFraction),
	)
}

// CalcExcessBlobGasWithSchedule computes excess blob gas for the next block
// using the given schedule's target. This is the simple pre-7918 formula from
// EIP-4844 / EIP-7691.
func CalcExcessBlobGasWithSchedule(parentExcessGas, parentBlobsUsed uint64, schedule BlobScheduleEntry) uint64 {
	parentBlobGasUsed := parentBlobsUsed * GasPerBlob
	targetBlobGas := schedule.Target * GasPerBlob

	if parentExcessGas+parentBlobGasUsed < targetBlobGas {
		return 0
	}
	return parentExcessGas + parentBlobGasUsed - targetBlobGas
}

// BlobSchedule is the fork-activated blob parameter set used by the
// EIP-7918-aware calculation path, including the blob-parameter-only (BPO)
// forks that raise throughput without any other consensus change.
type BlobSchedule struct {
	Target         uint64 // target blobs per block
	Max            uint64 // maximum blobs per block
	UpdateFraction uint64 // blob base fee update fraction
}

// Named schedules, in activation order.
var (
	CancunBlobSchedule = BlobSchedule{Target: 3, Max: 6, UpdateFraction: 3338477}
	PragueBlobSchedule = BlobSchedule{Target: 6, Max: 9, UpdateFraction: 5376681}
	BPO1BlobSchedule   = BlobSchedule{Target: 10, Max: 15, UpdateFraction: 8346193}
	BPO2BlobSchedule   = BlobSchedule{Target: 14, Max: 21, UpdateFraction: 11684671}
)

// GetBlobSchedule returns the schedule active at the given timestamp.
func GetBlobSchedule(config *ChainConfig, time uint64) BlobSchedule {
	switch {
	case config.IsBPO2(time):
		return BPO2BlobSchedule
	case config.IsBPO1(time):
		return BPO1BlobSchedule
	case config.IsPrague(time):
		return PragueBlobSchedule
	default:
		return CancunBlobSchedule
	}
}

// MaxBlobsForBlock returns the blob count ceiling at the given timestamp.
func MaxBlobsForBlock(config *ChainConfig, time uint64) uint64 {
	return GetBlobSchedule(config, time).Max
}

// TargetBlobsForBlock returns the blob count target at the given timestamp.
func TargetBlobsForBlock(config *ChainConfig, time uint64) uint64 {
	return GetBlobSchedule(config, time).Target
}

// CalcBlobBaseFeeV2WithFraction computes the blob base fee with an explicit
// update fraction, applying the EIP-7762 floor and the EIP-7918 reserve.
func CalcBlobBaseFeeV2WithFraction(excessBlobGas uint64, baseFeePerGas *big.Int, updateFraction uint64) *big.Int {
	computed := fakeExponentialV2(
		big.NewInt(MinBaseFeePerBlobGas),
		new(big.Int).SetUint64(excessBlobGas),
		new(big.Int).SetUint64(updateFraction),
	)
	return BlobBaseFeeWithFloor(computed, baseFeePerGas)
}

// CalcExcessBlobGasV2WithSchedule computes the next block's excess blob gas
// under an explicit schedule, with the EIP-7918 execution-fee-led branch.
func CalcExcessBlobGasV2WithSchedule(parentExcessBlobGas, parentBlobGasUsed uint64, parentBaseFeePerGas *big.Int, sched BlobSchedule) uint64 {
	targetBlobGas := sched.Target * GasPerBlob

	if parentExcessBlobGas+parentBlobGasUsed < targetBlobGas {
		return 0
	}

	blobBaseFee := fakeExponentialV2(
		big.NewInt(MinBaseFeePerBlobGas),
		new(big.Int).SetUint64(parentExcessBlobGas),
		new(big.Int).SetUint64(sched.UpdateFraction),
	)
	if IsExecutionFeeLed(parentBaseFeePerGas, blobBaseFee) {
		// Fee discovery is led by the execution base fee: accumulate
		// without subtracting the target so the blob fee can catch up.
		increase := parentBlobGasUsed * (sched.Max - sched.Target) / sched.Max
		return parentExcessBlobGas + increase
	}

	return parentExcessBlobGas + parentBlobGasUsed - targetBlobGas
}

// CalcExcessBlobGasV2ForHeader derives the child block's excess blob gas
// from a parent header. A consensus-supplied TargetBlobsPerBlock override
// (EIP-7742) takes precedence over the fork schedule, which is selected at
// the child's timestamp.
func CalcExcessBlobGasV2ForHeader(parent *types.Header, config *ChainConfig, childTime uint64) uint64 {
	var parentExcess, parentUsed uint64
	if parent.ExcessBlobGas != nil {
		parentExcess = *parent.ExcessBlobGas
	}
	if parent.BlobGasUsed != nil {
		parentUsed = *parent.BlobGasUsed
	}

	sched := GetBlobSchedule(config, childTime)
	if parent.TargetBlobsPerBlock != nil {
		sched.Target = *parent.TargetBlobsPerBlock
		if sched.Max < sched.Target {
			sched.Max = sched.Target
		}
	}
	return CalcExcessBlobGasV2WithSchedule(parentExcess, parentUsed, parent.BaseFee, sched)
}

// ValidateBlockBlobGasWithConfig checks a child header's blob gas fields
// against the parent under the fork schedule active at the child's time.
func ValidateBlockBlobGasWithConfig(config *ChainConfig, header, parent *types.Header) error {
	if header.BlobGasUsed == nil {
		return ErrBlobGasUsedNil
	}
	if header.ExcessBlobGas == nil {
		return ErrExcessBlobGasNil
	}

	maxBlobGas := MaxBlobsForBlock(config, header.Time) * GasPerBlob
	if *header.BlobGasUsed > maxBlobGas {
		return fmt.Errorf("%w: have %d, max %d", ErrBlobGasUsedExceeded, *header.BlobGasUsed, maxBlobGas)
	}

	expected := CalcExcessBlobGasV2ForHeader(parent, config, header.Time)
	if *header.ExcessBlobGas != expected {
		return fmt.Errorf("%w: have %d, want %d", ErrExcessBlobGasMismatch, *header.ExcessBlobGas, expected)
	}
	return nil
}

// ValidateBlobTxWithMax validates a blob transaction against an explicit
// per-block blob ceiling instead of the static EIP-4844 maximum.
func ValidateBlobTxWithMax(tx *types.Transaction, excessBlobGas, maxBlobs uint64) error {
	hashes := tx.BlobHashes()
	if len(hashes) == 0 {
		return ErrBlobTxNoBlobHashes
	}
	if uint64(len(hashes)) > maxBlobs {
		return fmt.Errorf("%w: have %d, max %d", ErrBlobTxTooManyBlobs, len(hashes), maxBlobs)
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
