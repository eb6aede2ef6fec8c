package rlp

import "errors"

// Structural errors surfaced while decoding an RLP byte stream. Each names
// the specific canonical-form rule or shape mismatch that was violated.
var (
	// ErrNotString is returned when a list header is found where a string was expected.
	ErrNotString = errors.New("rlp: expected string")

	// ErrNotList is returned when a string header is found where a list was expected.
	ErrNotList = errors.New("rlp: expected list")

	// ErrBadShortSize is returned when a single byte in [0x00, 0x7f] is wrapped
	// in a one-byte string header instead of being encoded directly.
	ErrBadShortSize = errors.New("rlp: non-canonical size information")

	// ErrListNotExhausted is returned when a ListEnd call finds unread bytes
	// remaining in the enclosing list scope.
	ErrListNotExhausted = errors.New("rlp: end of list")

	// ErrLeadingZero is returned when an encoded integer's big-endian form
	// carries a leading zero byte.
	ErrLeadingZero = errors.New("rlp: non-canonical integer encoding")

	// ErrShortLengthEncoding is returned when a long-form length prefix
	// encodes a size that would have fit in the short form (<=55 bytes).
	ErrShortLengthEncoding = errors.New("rlp: non-canonical size")

	// ErrIntTooWide is returned when a decoded integer does not fit in 64 bits.
	ErrIntTooWide = errors.New("rlp: uint64 overflow")

	// ErrUnsupportedKind is returned when a Go value has no RLP representation.
	ErrUnsupportedKind = errors.New("rlp: value too large")
)
