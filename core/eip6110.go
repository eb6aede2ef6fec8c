package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

// EIP-6110 lifts validator deposits onto the execution layer: the
// post-execution request step scans the block's receipts for the deposit
// contract's DepositEvent logs and re-emits them as typed requests, so
// the consensus layer stops voting on deposit contract state.

// DepositContractAddr is the canonical beacon deposit contract.
var DepositContractAddr = types.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

// DepositEventSignature is keccak256("DepositEvent(bytes,bytes,bytes,bytes,bytes)").
var DepositEventSignature = crypto.Keccak256Hash([]byte("DepositEvent(bytes,bytes,bytes,bytes,bytes)"))

// MaxDepositsPerBlock bounds a block's deposit count (consensus spec).
const MaxDepositsPerBlock = 8192

// Deposit processing errors.
var (
	ErrDepositEmptyPubkey          = errors.New("eip6110: empty validator pubkey")
	ErrDepositInvalidPubkeySize    = errors.New("eip6110: pubkey must be 48 bytes")
	ErrDepositInvalidSigSize       = errors.New("eip6110: signature must be 96 bytes")
	ErrDepositInvalidCredentials   = errors.New("eip6110: invalid withdrawal credentials")
	ErrDepositZeroAmount           = errors.New("eip6110: deposit amount is zero")
	ErrDepositBelowMinimum         = errors.New("eip6110: deposit amount below minimum (1 ETH)")
	ErrTooManyDeposits             = errors.New("eip6110: too many deposits in block")
	ErrDepositLogWrongAddress      = errors.New("eip6110: log not from deposit contract")
	ErrDepositLogWrongTopic        = errors.New("eip6110: log topic mismatch")
	ErrDepositLogDataTooShort      = errors.New("eip6110: log data too short")
)

// MinDepositAmount is 1 ETH in Gwei, the smallest accepted deposit.
const MinDepositAmount = 1_000_000_000

// DepositLog is a decoded DepositEvent before conversion to a request.
type DepositLog struct {
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	Amount                uint64
	Signature             [96]byte
	Index                 uint64
}

// isDepositEvent matches a log against the deposit contract and event
// signature.
func isDepositEvent(log *types.Log) bool {
	return log.Address == DepositContractAddr &&
		len(log.Topics) >= 1 && log.Topics[0] == DepositEventSignature
}

// ParseDepositLogs walks the block's receipts and decodes every
// DepositEvent from a successful transaction; malformed logs are skipped
// rather than poisoning the block.
func ParseDepositLogs(receipts []*types.Receipt) []types.DepositRequest {
	var deposits []types.DepositRequest
	for _, receipt := range receipts {
		if receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for _, log := range receipt.Logs {
			if !isDepositEvent(log) {
				continue
			}
			if dep, err := parseDepositLogData(log.Data); err == nil {
				deposits = append(deposits, *dep)
			}
		}
	}
	return deposits
}

// parseDepositLogData decodes the ABI-encoded payload of
// DepositEvent(bytes,bytes,bytes,bytes,bytes): five 32-byte offsets, then
// five length-prefixed fields (pubkey 48, credentials 32, amount 8 LE,
// signature 96, index 8 LE).
func parseDepositLogData(data []byte) (*types.DepositRequest, error) {
	if len(data) < 512 {
		return nil, ErrDepositLogDataTooShort
	}

	readField := func(slot int, wantLen int) ([]byte, error) {
		offset := int(binary.BigEndian.Uint64(data[slot*32+24 : (slot+1)*32]))
		if offset+32 > len(data) {
			return nil, ErrDepositLogDataTooShort
		}
		length := int(binary.BigEndian.Uint64(data[offset+24 : offset+32]))
		start := offset + 32
		if start+length > len(data) {
			return nil, ErrDepositLogDataTooShort
		}
		if length != wantLen {
			return nil, fmt.Errorf("eip6110: field %d has size %d, want %d", slot, length, wantLen)
		}
		return data[start : start+length], nil
	}

	pubkeyBytes, err := readField(0, 48)
	if err != nil {
		return nil, err
	}
	wcBytes, err := readField(1, 32)
	if err != nil {
		return nil, err
	}
	amountBytes, err := readField(2, 8)
	if err != nil {
		return nil, err
	}
	sigBytes, err := readField(3, 96)
	if err != nil {
		return nil, err
	}
	indexBytes, err := readField(4, 8)
	if err != nil {
		return nil, err
	}

	dep := &types.DepositRequest{
		Amount: binary.LittleEndian.Uint64(amountBytes),
		Index:  binary.LittleEndian.Uint64(indexBytes),
	}
	copy(dep.Pubkey[:], pubkeyBytes)
	copy(dep.WithdrawalCredentials[:], wcBytes)
	copy(dep.Signature[:], sigBytes)
	return dep, nil
}

// ValidateDepositRequest rejects zero pubkeys and dust amounts.
func ValidateDepositRequest(req *types.DepositRequest) error {
	if req.Pubkey == ([48]byte{}) {
		return ErrDepositEmptyPubkey
	}
	if req.Amount == 0 {
		return ErrDepositZeroAmount
	}
	if req.Amount < MinDepositAmount {
		return ErrDepositBelowMinimum
	}
	return nil
}

// ValidateBlockDeposits validates all deposit requests in a block.
func ValidateBlockDeposits(deposits []types.DepositRequest) error {
	if len(deposits) > MaxDepositsPerBlock {
		return ErrTooManyDeposits
	}
	for i := range deposits {
		if err := ValidateDepositRequest(&deposits[i]); err != nil {
			return fmt.Errorf("deposit %d: %w", i, err)
		}
	}
	return nil
}

// ProcessDeposits validates each deposit and folds it into the tracking
// set; registry-level effects belong to the consensus layer consuming the
// requests.
func ProcessDeposits(deposits []types.DepositRequest, validators *depositValidatorSet) error {
	if len(deposits) > MaxDepositsPerBlock {
		return ErrTooManyDeposits
	}

	for i := range deposits {
		if err := ValidateDepositRequest(&deposits[i]); err != nil {
			return fmt.Errorf("deposit %d: %w", i, err)
		}
		if err := validators.ApplyDeposit(&deposits[i]); err != nil {
			return fmt.Errorf("deposit %d: %w", i, err)
		}
	}
	return nil
}

// depositValidatorSet tracks per-pubkey Gwei balances as deposits land.
type depositValidatorSet struct {
	balances map[[48]byte]uint64
	count    uint64
}

// NewDepositValidatorSet creates a new deposit validator set.
func NewDepositValidatorSet() *depositValidatorSet {
	return &depositValidatorSet{
		balances: make(map[[48]byte]uint64),
	}
}

// ApplyDeposit credits an existing validator or registers a new one.
func (vs *depositValidatorSet) ApplyDeposit(dep *types.DepositRequest) error {
	if _, ok := vs.balances[dep.Pubkey]; !ok {
		vs.count++
	}
	vs.balances[dep.Pubkey] += dep.Amount
	return nil
}

// GetBalance returns the balance for a validator pubkey.
func (vs *depositValidatorSet) GetBalance(pubkey [48]byte) (uint64, bool) {
	bal, ok := vs.balances[pubkey]
	return bal, ok
}

// Count returns the number of validators.
func (vs *depositValidatorSet) Count() uint64 {
	return vs.count
}

// BuildDepositLogData is the encoder mirroring parseDepositLogData: five
// ABI offsets, then each field as a length word plus 32-byte-padded data.
// Block construction tests and deposit-log fixtures use it.
func BuildDepositLogData(dep *types.DepositRequest) []byte {
	amountBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(amountBytes, dep.Amount)
	indexBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(indexBytes, dep.Index)

	fields := [][]byte{
		dep.Pubkey[:],
		dep.WithdrawalCredentials[:],
		amountBytes,
		dep.Signature[:],
		indexBytes,
	}

	offsets := make([]byte, 160)
	dataOffset := len(offsets)
	for i, f := range fields {
		binary.BigEndian.PutUint64(offsets[i*32+24:], uint64(dataOffset))
		dataOffset += 32 + ((len(f)+31)/32)*32
	}

	buf := append([]byte{}, offsets...)
	for _, f := range fields {
		lenWord := make([]byte, 32)
		binary.BigEndian.PutUint64(lenWord[24:], uint64(len(f)))
		buf = append(buf, lenWord...)
		padded := make([]byte, ((len(f)+31)/32)*32)
		copy(padded, f)
		buf = append(buf, padded...)
	}
	return buf
}
