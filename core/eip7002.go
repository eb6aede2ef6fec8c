package core

import (
	"errors"
	"math/big"

	"github.com/ethstate/execution-core/core/state"
	"github.com/ethstate/execution-core/core/types"
)

// EIP-7002: withdrawals triggerable from the execution layer. Contracts
// holding a validator's 0x01 credentials enqueue requests in the
// predeploy; the post-execution system step drains up to a block's worth
// and the fee self-adjusts with an EIP-1559-style excess counter.

// WithdrawalRequestContract is the predeploy holding the queue.
var WithdrawalRequestContract = types.HexToAddress("0x0c15F14308530b7CDB8460094BbB9cC28b9AaAAb")

// The predeploy's fixed storage layout: counters first, the circular
// queue records (three words each) from the offset up.
const (
	ExcessWithdrawalRequestsStorageSlot   = 0
	WithdrawalRequestCountStorageSlot     = 1
	WithdrawalRequestQueueHeadStorageSlot = 2
	WithdrawalRequestQueueTailStorageSlot = 3
	WithdrawalRequestQueueStorageOffset   = 4
)

// Queue and fee parameters.
const (
	MaxWithdrawalRequestsPerBlock      = 16
	TargetWithdrawalRequestsPerBlock   = 2
	MinWithdrawalRequestFee            = 1 // wei
	WithdrawalRequestFeeUpdateFraction = 17
)

// Errors for withdrawal request processing.
var (
	ErrWithdrawalRequestEmptyPubkey     = errors.New("withdrawal request: empty validator pubkey")
	ErrWithdrawalRequestFeeInsufficient = errors.New("withdrawal request: insufficient fee")
)

// WithdrawalRequestQueue is an in-memory request batch plus the fee its
// entries paid.
type WithdrawalRequestQueue struct {
	Requests []types.WithdrawalRequest
	Fee      *big.Int
}

// CalcWithdrawalFee prices one request at the current excess:
// MIN_FEE * e^(excess/UPDATE_FRACTION), via the shared Taylor exponential.
func CalcWithdrawalFee(excessRequests uint64) *big.Int {
	return fakeExponentialV2(
		big.NewInt(MinWithdrawalRequestFee),
		new(big.Int).SetUint64(excessRequests),
		big.NewInt(WithdrawalRequestFeeUpdateFraction),
	)
}

// UpdateExcessWithdrawalRequests rolls the excess counter forward with
// the blob-gas accumulation rule.
func UpdateExcessWithdrawalRequests(previousExcess, count uint64) uint64 {
	if previousExcess+count > TargetWithdrawalRequestsPerBlock {
		return previousExcess + count - TargetWithdrawalRequestsPerBlock
	}
	return 0
}

// counterSlot builds the storage key for one of the predeploy's small
// fixed slots.
func counterSlot(n byte) types.Hash {
	var h types.Hash
	h[31] = n
	return h
}

// readCounter loads a uint64 counter from one of the fixed slots.
func readCounter(statedb state.StateDB, addr types.Address, n byte) uint64 {
	return hashToUint64V2(statedb.GetState(addr, counterSlot(n)))
}

// readQueuedWithdrawal decodes one queue record. Each record spans three
// words: the right-aligned source address, the pubkey's first 32 bytes,
// then the pubkey tail plus the little-endian amount.
func readQueuedWithdrawal(statedb state.StateDB, addr types.Address, index uint64) types.WithdrawalRequest {
	base := WithdrawalRequestQueueStorageOffset + index*3

	word0 := statedb.GetState(addr, uint64ToHash(base))
	word1 := statedb.GetState(addr, uint64ToHash(base+1))
	word2 := statedb.GetState(addr, uint64ToHash(base+2))

	var req types.WithdrawalRequest
	copy(req.SourceAddress[:], word0[12:32])
	copy(req.ValidatorPubkey[0:32], word1[:])
	copy(req.ValidatorPubkey[32:48], word2[0:16])
	req.Amount = littleEndianToUint64(word2[16:24])
	return req
}

// ProcessWithdrawalRequests is the post-execution system step: dequeue up
// to a block's worth of requests, advance (or reset) the queue pointers,
// roll the excess counter, and clear the per-block count.
func ProcessWithdrawalRequests(statedb state.StateDB, header *types.Header) []types.WithdrawalRequest {
	addr := WithdrawalRequestContract

	queueHead := readCounter(statedb, addr, WithdrawalRequestQueueHeadStorageSlot)
	queueTail := readCounter(statedb, addr, WithdrawalRequestQueueTailStorageSlot)

	numDequeued := queueTail - queueHead
	if numDequeued > MaxWithdrawalRequestsPerBlock {
		numDequeued = MaxWithdrawalRequestsPerBlock
	}

	requests := make([]types.WithdrawalRequest, 0, numDequeued)
	for i := uint64(0); i < numDequeued; i++ {
		requests = append(requests, readQueuedWithdrawal(statedb, addr, queueHead+i))
	}

	if newHead := queueHead + numDequeued; newHead == queueTail {
		// Drained; both pointers reset so the queue reuses its slots.
		statedb.SetState(addr, counterSlot(WithdrawalRequestQueueHeadStorageSlot), types.Hash{})
		statedb.SetState(addr, counterSlot(WithdrawalRequestQueueTailStorageSlot), types.Hash{})
	} else {
		statedb.SetState(addr, counterSlot(WithdrawalRequestQueueHeadStorageSlot), uint64ToHash(newHead))
	}

	previousExcess := readCounter(statedb, addr, ExcessWithdrawalRequestsStorageSlot)
	count := readCounter(statedb, addr, WithdrawalRequestCountStorageSlot)
	newExcess := UpdateExcessWithdrawalRequests(previousExcess, count)
	statedb.SetState(addr, counterSlot(ExcessWithdrawalRequestsStorageSlot), uint64ToHash(newExcess))
	statedb.SetState(addr, counterSlot(WithdrawalRequestCountStorageSlot), types.Hash{})

	return requests
}

// ValidateWithdrawalRequest rejects a request with no validator pubkey.
func ValidateWithdrawalRequest(req *types.WithdrawalRequest) error {
	if req.ValidatorPubkey == ([48]byte{}) {
		return ErrWithdrawalRequestEmptyPubkey
	}
	return nil
}

// AddWithdrawalRequest validates and enqueues one request.
func AddWithdrawalRequest(queue *WithdrawalRequestQueue, req types.WithdrawalRequest) error {
	if err := ValidateWithdrawalRequest(&req); err != nil {
		return err
	}
	queue.Requests = append(queue.Requests, req)
	return nil
}

// hashToUint64V2 reads the low eight bytes of a storage word as a
// big-endian counter.
func hashToUint64V2(h types.Hash) uint64 {
	var v uint64
	for i := 24; i < 32; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}

// littleEndianToUint64 reads eight little-endian bytes.
func littleEndianToUint64(data []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}
