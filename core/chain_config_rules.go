// chain_config_rules.go derives a flattened Rules snapshot from a ChainConfig
// at a specific block number and timestamp. Rules is what the rest of core
// and core/vm consult instead of re-deriving fork activation from
// ChainConfig on every check.
package core

import "math/big"

// Rules is a snapshot of which forks are active at a given block number and
// timestamp, derived once per block and threaded through gas accounting and
// the EVM interpreter.
type Rules struct {
	IsHomestead      bool
	IsEIP158         bool // EIP-150/155/158: repricing and empty-account cleanup
	IsByzantium      bool
	IsConstantinople bool
	IsIstanbul       bool
	IsBerlin         bool
	IsLondon         bool
	IsMerge          bool
	IsShanghai       bool
	IsCancun         bool
	IsPrague         bool
	IsAmsterdam      bool
	IsGlamsterdan    bool
	IsEIP7708        bool // ETH transfers emit a log
	IsEIP7954        bool // increased max contract code size
	IsEIP7904        bool // gas cost schedule revision
	IsEIP7706        bool // multidimensional calldata gas
	IsEIP7778        bool // basefee opcode / gas accounting adjustment
	IsEIP2780        bool // intrinsic gas reduction for simple transfers
}

// isBlockForked reports whether a block-number fork is active at num.
func isBlockForked(forkBlock *big.Int, num *big.Int) bool {
	if forkBlock == nil || num == nil {
		return false
	}
	return forkBlock.Cmp(num) <= 0
}

// IsMerge reports whether this chain configuration has passed the terminal
// total difficulty and is running under proof-of-stake block production.
func (c *ChainConfig) IsMerge() bool {
	return c.TerminalTotalDifficulty != nil
}

// IsGlamsterdan returns whether the given block time is at or past the
// Glamsterdan fork.
func (c *ChainConfig) IsGlamsterdan(time uint64) bool {
	return isTimestampForked(c.GlamsterdanTime, time)
}

// IsHogota returns whether the given block time is at or past the Hogota
// fork.
func (c *ChainConfig) IsHogota(time uint64) bool {
	return isTimestampForked(c.HogotaTime, time)
}

// Rules builds a Rules snapshot for the given block number, merge status,
// and timestamp. Each timestamp fork requires the merge flag and every
// earlier timestamp fork: a chain running Prague is also running Cancun and
// Shanghai. Block-number forks are read from their own fields alone.
func (c *ChainConfig) Rules(num *big.Int, isMerge bool, time uint64) Rules {
	isShanghai := c.IsShanghai(time)
	isCancun := isShanghai && c.IsCancun(time)
	isPrague := isCancun && c.IsPrague(time)
	isAmsterdam := isPrague && c.IsAmsterdam(time)
	isGlamsterdan := isAmsterdam && c.IsGlamsterdan(time)

	return Rules{
		IsHomestead:      isBlockForked(c.HomesteadBlock, num),
		IsEIP158:         isBlockForked(c.EIP158Block, num),
		IsByzantium:      isBlockForked(c.ByzantiumBlock, num),
		IsConstantinople: isBlockForked(c.ConstantinopleBlock, num),
		IsIstanbul:       isBlockForked(c.IstanbulBlock, num),
		IsBerlin:         isBlockForked(c.BerlinBlock, num),
		IsLondon:         isBlockForked(c.LondonBlock, num),
		IsMerge:          isMerge,
		IsShanghai:       isMerge && isShanghai,
		IsCancun:         isMerge && isCancun,
		IsPrague:         isMerge && isPrague,
		IsAmsterdam:      isMerge && isAmsterdam,
		IsGlamsterdan:    isMerge && isGlamsterdan,
		IsEIP7708:        isMerge && isGlamsterdan,
		IsEIP7954:        isMerge && isGlamsterdan,
		IsEIP7904:        isMerge && isGlamsterdan,
		IsEIP7706:        isMerge && isGlamsterdan,
		IsEIP7778:        isMerge && isGlamsterdan,
		IsEIP2780:        isMerge && isGlamsterdan,
	}
}

// TestConfigGlamsterdan is a chain config with all forks, including
// Glamsterdan, active at genesis. Used by tests that exercise
// Glamsterdan-specific gas and precompile repricing.
var TestConfigGlamsterdan = &ChainConfig{
	ChainID:                 big.NewInt(1337),
	HomesteadBlock:          big.NewInt(0),
	EIP150Block:             big.NewInt(0),
	EIP155Block:             big.NewInt(0),
	EIP158Block:             big.NewInt(0),
	ByzantiumBlock:          big.NewInt(0),
	ConstantinopleBlock:     big.NewInt(0),
	PetersburgBlock:         big.NewInt(0),
	IstanbulBlock:           big.NewInt(0),
	BerlinBlock:             big.NewInt(0),
	LondonBlock:             big.NewInt(0),
	TerminalTotalDifficulty: big.NewInt(0),
	ShanghaiTime:            newUint64(0),
	CancunTime:              newUint64(0),
	PragueTime:              newUint64(0),
	AmsterdamTime:           newUint64(0),
	GlamsterdanTime:         newUint64(0),
}
