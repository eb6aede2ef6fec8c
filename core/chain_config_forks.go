// Fork-schedule introspection over ChainConfig: the ordered fork list,
// active/pending/unscheduled queries, and the config comparison used to
// reject a peer whose schedule diverges below the current head.
package core

import (
	"fmt"
	"math/big"
)

// ForkID names one fork and its activation point: pre-merge forks key on
// a block number, post-merge forks on a timestamp, and a fork with
// neither is not scheduled yet.
type ForkID struct {
	Name      string
	Block     *big.Int
	Timestamp *uint64
}

// String renders name@point.
func (f ForkID) String() string {
	switch {
	case f.Block != nil:
		return fmt.Sprintf("%s@block:%s", f.Name, f.Block.String())
	case f.Timestamp != nil:
		return fmt.Sprintf("%s@time:%d", f.Name, *f.Timestamp)
	default:
		return fmt.Sprintf("%s@pending", f.Name)
	}
}

// IsActive evaluates the fork at (num, time) along whichever axis it keys
// on.
func (f ForkID) IsActive(num *big.Int, time uint64) bool {
	switch {
	case f.Block != nil:
		return num != nil && f.Block.Cmp(num) <= 0
	case f.Timestamp != nil:
		return *f.Timestamp <= time
	default:
		return false
	}
}

// ForkSchedule lists every fork this config knows, in protocol order,
// including unscheduled ones.
func (c *ChainConfig) ForkSchedule() []ForkID {
	return []ForkID{
		{Name: "Homestead", Block: c.HomesteadBlock},
		{Name: "EIP150", Block: c.EIP150Block},
		{Name: "EIP155", Block: c.EIP155Block},
		{Name: "EIP158", Block: c.EIP158Block},
		{Name: "Byzantium", Block: c.ByzantiumBlock},
		{Name: "Constantinople", Block: c.ConstantinopleBlock},
		{Name: "Petersburg", Block: c.PetersburgBlock},
		{Name: "Istanbul", Block: c.IstanbulBlock},
		{Name: "Berlin", Block: c.BerlinBlock},
		{Name: "London", Block: c.LondonBlock},
		{Name: "Shanghai", Timestamp: c.ShanghaiTime},
		{Name: "Cancun", Timestamp: c.CancunTime},
		{Name: "Prague", Timestamp: c.PragueTime},
		{Name: "Amsterdam", Timestamp: c.AmsterdamTime},
		{Name: "Glamsterdan", Timestamp: c.GlamsterdanTime},
		{Name: "Hogota", Timestamp: c.HogotaTime},
	}
}

// selectForks filters the schedule by a predicate.
func (c *ChainConfig) selectForks(keep func(ForkID) bool) []ForkID {
	var out []ForkID
	for _, f := range c.ForkSchedule() {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// ActiveForks lists the forks live at (num, time).
func (c *ChainConfig) ActiveForks(num *big.Int, time uint64) []ForkID {
	return c.selectForks(func(f ForkID) bool { return f.IsActive(num, time) })
}

// PendingForks lists scheduled forks not yet live at (num, time).
func (c *ChainConfig) PendingForks(num *big.Int, time uint64) []ForkID {
	return c.selectForks(func(f ForkID) bool {
		return (f.Block != nil || f.Timestamp != nil) && !f.IsActive(num, time)
	})
}

// UnscheduledForks lists forks with no activation point at all.
func (c *ChainConfig) UnscheduledForks() []ForkID {
	return c.selectForks(func(f ForkID) bool {
		return f.Block == nil && f.Timestamp == nil
	})
}

// ForkConfigDiff records one fork whose activation point differs between
// two configs, both points rendered as strings.
type ForkConfigDiff struct {
	ForkName string
	Local    string
	Remote   string
}

// ConfigDiff lists the forks where local and remote disagree. Both
// schedules enumerate the same forks in the same order, so the comparison
// is positional.
func ConfigDiff(local, remote *ChainConfig) []ForkConfigDiff {
	if local == nil || remote == nil {
		return nil
	}

	var diffs []ForkConfigDiff
	localForks := local.ForkSchedule()
	remoteForks := remote.ForkSchedule()
	for i := 0; i < len(localForks) && i < len(remoteForks); i++ {
		lf, rf := localForks[i], remoteForks[i]
		if lf.Name != rf.Name {
			continue
		}
		if lStr, rStr := forkPointString(lf), forkPointString(rf); lStr != rStr {
			diffs = append(diffs, ForkConfigDiff{ForkName: lf.Name, Local: lStr, Remote: rStr})
		}
	}
	return diffs
}

// forkPointString renders just the activation point.
func forkPointString(f ForkID) string {
	switch {
	case f.Block != nil:
		return fmt.Sprintf("block:%s", f.Block.String())
	case f.Timestamp != nil:
		return fmt.Sprintf("time:%d", *f.Timestamp)
	default:
		return "nil"
	}
}

// ConfigCompatError is a schedule disagreement on a fork that is already
// live at the local head, which a node cannot reconcile by rewinding.
type ConfigCompatError struct {
	ForkName  string
	LocalVal  string
	RemoteVal string
	HeadBlock uint64
	HeadTime  uint64
}

// Error implements the error interface.
func (e *ConfigCompatError) Error() string {
	return fmt.Sprintf("incompatible fork %q: local=%s remote=%s (head block=%d time=%d)",
		e.ForkName, e.LocalVal, e.RemoteVal, e.HeadBlock, e.HeadTime)
}

// CheckConfigCompatible reports the first fork where the configs diverge
// below the head; divergence above the head is tolerated because the
// schedule can still change before activation.
func CheckConfigCompatible(local, remote *ChainConfig, headNum uint64, headTime uint64) *ConfigCompatError {
	if local == nil || remote == nil {
		return nil
	}

	num := new(big.Int).SetUint64(headNum)
	for _, d := range ConfigDiff(local, remote) {
		for _, f := range local.ForkSchedule() {
			if f.Name != d.ForkName {
				continue
			}
			if f.IsActive(num, headTime) {
				return &ConfigCompatError{
					ForkName:  d.ForkName,
					LocalVal:  d.Local,
					RemoteVal: d.Remote,
					HeadBlock: headNum,
					HeadTime:  headTime,
				}
			}
			break
		}
	}
	return nil
}

// NextForkAfter is the earliest scheduled fork still ahead of (num,
// time); the zero ForkID when none remain.
func (c *ChainConfig) NextForkAfter(num *big.Int, time uint64) ForkID {
	pending := c.PendingForks(num, time)
	if len(pending) == 0 {
		return ForkID{}
	}
	return pending[0]
}
