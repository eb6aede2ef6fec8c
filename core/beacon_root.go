package core

// EIP-4788 exposes the parent beacon block root to the EVM through a
// system contract holding a two-lane ring buffer: one lane keyed by
// timestamp-mod-8191 storing the timestamp, the mirror lane (offset by the
// buffer length) storing the root.

import (
	"encoding/binary"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
)

// historyBufferLength is the EIP-4788 ring size.
const historyBufferLength = 8191

// BeaconRootAddress is the beacon-roots system contract.
var BeaconRootAddress = types.HexToAddress("0x000F3df6D732807Ef1319fB7B8bB8522d0Beac02")

// ProcessBeaconBlockRoot runs the pre-transaction system write: the
// header's parent beacon root and timestamp land in the ring buffer, from
// SystemAddress, consuming no block gas. Headers without a beacon root
// (pre-Cancun) are a no-op.
func ProcessBeaconBlockRoot(statedb state.StateDB, header *types.Header) {
	if header.ParentBeaconRoot == nil {
		return
	}

	timestampIdx := header.Time % historyBufferLength
	rootIdx := timestampIdx + historyBufferLength

	statedb.SetState(BeaconRootAddress, uint64ToHash(timestampIdx), uint64ToHash(header.Time))
	statedb.SetState(BeaconRootAddress, uint64ToHash(rootIdx), *header.ParentBeaconRoot)
}

// uint64ToHash widens v into a 32-byte big-endian storage word.
func uint64ToHash(v uint64) types.Hash {
	var h types.Hash
	binary.BigEndian.PutUint64(h[24:], v)
	return h
}
