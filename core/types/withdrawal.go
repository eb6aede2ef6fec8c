package types

// EIP-4895 beacon-chain withdrawals. The Withdrawal struct itself lives in
// block.go next to the Body that carries it; this file holds the encoding
// and the list-level helpers.

import (
	"errors"
	"fmt"

	"github.com/ethstate/execution-core/rlp"
	"golang.org/x/crypto/sha3"
)

// MaxWithdrawalsPerPayload bounds one payload's withdrawal list.
const MaxWithdrawalsPerPayload = 16

var (
	errNilWithdrawal       = errors.New("withdrawal is nil")
	errZeroAddress         = errors.New("withdrawal address must not be zero")
	errTooManyWithdrawals  = errors.New("too many withdrawals in payload")
	errDuplicateWithdrawal = errors.New("duplicate withdrawal index")
)

// withdrawalWire is the consensus RLP layout:
// [index, validatorIndex, address, amount].
type withdrawalWire struct {
	Index          uint64
	ValidatorIndex uint64
	Address        Address
	Amount         uint64
}

// digest256 is a local keccak256 (the crypto package imports this one, so
// it cannot be used from here).
func digest256(data []byte) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// EncodeWithdrawal emits the consensus RLP form of w.
func EncodeWithdrawal(w *Withdrawal) []byte {
	data, err := rlp.EncodeToBytes(withdrawalWire{
		Index:          w.Index,
		ValidatorIndex: w.ValidatorIndex,
		Address:        w.Address,
		Amount:         w.Amount,
	})
	if err != nil {
		return nil
	}
	return data
}

// DecodeWithdrawal reverses EncodeWithdrawal.
func DecodeWithdrawal(data []byte) (*Withdrawal, error) {
	var dec withdrawalWire
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode withdrawal: %w", err)
	}
	return &Withdrawal{
		Index:          dec.Index,
		ValidatorIndex: dec.ValidatorIndex,
		Address:        dec.Address,
		Amount:         dec.Amount,
	}, nil
}

// WithdrawalHash is keccak256 of the encoded withdrawal.
func WithdrawalHash(w *Withdrawal) Hash {
	return digest256(EncodeWithdrawal(w))
}

// WithdrawalsRoot is a linear hash commitment over the ordered list (the
// trie-keyed root the header carries is derived in the core package).
func WithdrawalsRoot(withdrawals []*Withdrawal) Hash {
	if len(withdrawals) == 0 {
		return EmptyRootHash
	}
	var payload []byte
	for _, w := range withdrawals {
		payload = append(payload, EncodeWithdrawal(w)...)
	}
	return digest256(payload)
}

// ValidateWithdrawal rejects nil entries and zero recipients.
func ValidateWithdrawal(w *Withdrawal) error {
	if w == nil {
		return errNilWithdrawal
	}
	if w.Address.IsZero() {
		return errZeroAddress
	}
	return nil
}

// ProcessWithdrawals validates a payload's list (size, per-entry fields,
// unique indices) and folds it into per-address Gwei credits.
func ProcessWithdrawals(withdrawals []*Withdrawal) (map[Address]uint64, error) {
	if len(withdrawals) > MaxWithdrawalsPerPayload {
		return nil, errTooManyWithdrawals
	}

	seen := make(map[uint64]bool, len(withdrawals))
	credits := make(map[Address]uint64, len(withdrawals))
	for _, w := range withdrawals {
		if err := ValidateWithdrawal(w); err != nil {
			return nil, fmt.Errorf("withdrawal index %d: %w", w.Index, err)
		}
		if seen[w.Index] {
			return nil, fmt.Errorf("%w: %d", errDuplicateWithdrawal, w.Index)
		}
		seen[w.Index] = true
		credits[w.Address] += w.Amount
	}
	return credits, nil
}

// FilterByValidator selects the withdrawals targeting one validator.
func FilterByValidator(withdrawals []*Withdrawal, validatorIndex uint64) []*Withdrawal {
	var out []*Withdrawal
	for _, w := range withdrawals {
		if w.ValidatorIndex == validatorIndex {
			out = append(out, w)
		}
	}
	return out
}

// TotalWithdrawalAmount sums the list's Gwei amounts.
func TotalWithdrawalAmount(withdrawals []*Withdrawal) uint64 {
	var total uint64
	for _, w := range withdrawals {
		total += w.Amount
	}
	return total
}
