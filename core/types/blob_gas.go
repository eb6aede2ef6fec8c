package types

import "math/big"

// EIP-4844 blob gas parameters.
const (
	BlobTxBlobGasPerBlob         = 1 << 17 // gas units per blob
	MaxBlobGasPerBlock           = 786432  // 6 blobs
	TargetBlobGasPerBlock        = 393216  // 3 blobs
	BlobTxMinBlobGasprice        = 1
	BlobBaseFeeUpdateFraction    = 3338477
	VersionedHashVersionKZG byte = 0x01
)

// CalcExcessBlobGas carries blob demand across blocks: the parent's
// excess plus its usage, less the target, floored at zero.
func CalcExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed uint64) uint64 {
	total := parentExcessBlobGas + parentBlobGasUsed
	if total < TargetBlobGasPerBlock {
		return 0
	}
	return total - TargetBlobGasPerBlock
}

// CalcBlobFee prices blob gas at the current excess via the EIP-4844
// Taylor-series exponential.
func CalcBlobFee(excessBlobGas uint64) *big.Int {
	return fakeExponential(
		big.NewInt(BlobTxMinBlobGasprice),
		new(big.Int).SetUint64(excessBlobGas),
		big.NewInt(BlobBaseFeeUpdateFraction),
	)
}

// GetBlobGasUsed converts a blob count to blob gas.
func GetBlobGasUsed(numBlobs int) uint64 {
	return uint64(numBlobs) * BlobTxBlobGasPerBlob
}

// fakeExponential approximates factor * e^(numerator/denominator) with
// integer arithmetic: it accumulates the Taylor terms until one rounds to
// zero. All intermediate division is exact enough for consensus because
// every client runs the identical sequence.
func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	var (
		i      = big.NewInt(1)
		output = new(big.Int)
		term   = new(big.Int).Mul(factor, denominator)
		tmp    = new(big.Int)
		div    = new(big.Int)
	)
	for term.Sign() > 0 {
		output.Add(output, term)
		tmp.Mul(term, numerator)
		div.Mul(denominator, i)
		term.Div(tmp, div)
		i.Add(i, big.NewInt(1))
	}
	return output.Div(output, denominator)
}
