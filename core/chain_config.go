package core

import "math/big"

// ChainConfig holds chain-level configuration for fork scheduling.
// Pre-merge forks are activated by block number; post-merge forks are
// activated by timestamp. Mainnet's legacy forks are all long since
// finalized, so most configs set the block-number fields to zero and
// vary only the timestamp fields.
type ChainConfig struct {
	ChainID *big.Int

	HomesteadBlock      *big.Int
	EIP150Block         *big.Int
	EIP155Block         *big.Int
	EIP158Block         *big.Int
	ByzantiumBlock      *big.Int
	ConstantinopleBlock *big.Int
	PetersburgBlock     *big.Int
	IstanbulBlock       *big.Int
	BerlinBlock         *big.Int
	LondonBlock         *big.Int

	// TerminalTotalDifficulty being non-nil marks the chain as having
	// passed the merge; it gates every post-merge timestamp fork.
	TerminalTotalDifficulty *big.Int

	ShanghaiTime    *uint64
	CancunTime      *uint64
	PragueTime      *uint64
	AmsterdamTime   *uint64
	GlamsterdanTime *uint64
	HogotaTime      *uint64

	// Blob-parameter-only (BPO) forks raise the blob count schedule
	// without other consensus changes.
	BPO1Time *uint64
	BPO2Time *uint64
}

func isTimestampForked(forkTime *uint64, blockTime uint64) bool {
	if forkTime == nil {
		return false
	}
	return *forkTime <= blockTime
}

// IsShanghai returns whether the given block time is at or past the Shanghai fork.
func (c *ChainConfig) IsShanghai(time uint64) bool {
	return isTimestampForked(c.ShanghaiTime, time)
}

// IsCancun returns whether the given block time is at or past the Cancun fork.
func (c *ChainConfig) IsCancun(time uint64) bool {
	return isTimestampForked(c.CancunTime, time)
}

// IsPrague returns whether the given block time is at or past the Prague fork.
func (c *ChainConfig) IsPrague(time uint64) bool {
	return isTimestampForked(c.PragueTime, time)
}

// IsAmsterdam returns whether the given block time is at or past the Amsterdam fork.
func (c *ChainConfig) IsAmsterdam(time uint64) bool {
	return isTimestampForked(c.AmsterdamTime, time)
}

// IsBPO1 returns whether the first blob-parameter-only fork is active.
func (c *ChainConfig) IsBPO1(time uint64) bool {
	return isTimestampForked(c.BPO1Time, time)
}

// IsBPO2 returns whether the second blob-parameter-only fork is active.
func (c *ChainConfig) IsBPO2(time uint64) bool {
	return isTimestampForked(c.BPO2Time, time)
}

func newUint64(v uint64) *uint64 { return &v }

// MainnetConfig is the chain config for Ethereum mainnet.
var MainnetConfig = &ChainConfig{
	ChainID:             big.NewInt(1),
	HomesteadBlock:      big.NewInt(1150000),
	EIP150Block:         big.NewInt(2463000),
	EIP155Block:         big.NewInt(2675000),
	EIP158Block:         big.NewInt(2675000),
	ByzantiumBlock:      big.NewInt(4370000),
	ConstantinopleBlock: big.NewInt(7280000),
	PetersburgBlock:     big.NewInt(7280000),
	IstanbulBlock:       big.NewInt(9069000),
	BerlinBlock:         big.NewInt(12244000),
	LondonBlock:             big.NewInt(12965000),
	TerminalTotalDifficulty: big.NewInt(58750000000000000000000),
	ShanghaiTime:            newUint64(1681338455),
	CancunTime:              newUint64(1710338135),
	PragueTime:              nil, // not yet scheduled
	AmsterdamTime:           nil, // not yet scheduled
}

// TestConfig is a chain config with every fork through Amsterdam active at
// genesis (time 0); Glamsterdan and the later forks are left unscheduled.
var TestConfig = &ChainConfig{
	ChainID:             big.NewInt(1337),
	HomesteadBlock:      big.NewInt(0),
	EIP150Block:         big.NewInt(0),
	EIP155Block:         big.NewInt(0),
	EIP158Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	PetersburgBlock:     big.NewInt(0),
	IstanbulBlock:       big.NewInt(0),
	BerlinBlock:         big.NewInt(0),
	LondonBlock:             big.NewInt(0),
	TerminalTotalDifficulty: big.NewInt(0),
	ShanghaiTime:            newUint64(0),
	CancunTime:              newUint64(0),
	PragueTime:              newUint64(0),
	AmsterdamTime:           newUint64(0),
}
