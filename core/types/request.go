package types

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// EIP-7685 typed execution-layer requests. A request travels as a single
// type byte followed by an opaque, type-specific payload; the header
// commits to the whole set through ComputeRequestsHash.
const (
	DepositRequestType       byte = 0x00 // EIP-6110
	WithdrawalRequestType    byte = 0x01 // EIP-7002
	ConsolidationRequestType byte = 0x02 // EIP-7251
)

// Fixed payload sizes per request type.
const (
	depositRequestSize       = 48 + 32 + 8 + 96 + 8
	withdrawalRequestSize    = 20 + 48 + 8
	consolidationRequestSize = 20 + 48 + 48
)

// The system contracts the post-execution step reads requests from.
var (
	// DepositContractAddress is the beacon deposit contract (EIP-6110).
	DepositContractAddress = HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

	// WithdrawalRequestAddress triggers validator withdrawals (EIP-7002).
	WithdrawalRequestAddress = HexToAddress("0x0c15F14308530b7CDB8460094BbB9cC28b9AaAAb")

	// ConsolidationRequestAddress merges validators (EIP-7251).
	ConsolidationRequestAddress = HexToAddress("0x00431F263cE400f4da8Fc0D8Edf967BBB28Bc16a")
)

// SystemAddress is the synthetic caller for system contract invocations.
var SystemAddress = HexToAddress("0xfffffffffffffffffffffffffffffffffffffffe")

// DepositRequest is a validator deposit surfaced from the deposit
// contract's event log.
type DepositRequest struct {
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	Amount                uint64
	Signature             [96]byte
	Index                 uint64
}

// Encode lays the deposit out as
// pubkey(48) || creds(32) || amount(8, LE) || signature(96) || index(8, LE).
func (d *DepositRequest) Encode() []byte {
	buf := make([]byte, depositRequestSize)
	n := copy(buf, d.Pubkey[:])
	n += copy(buf[n:], d.WithdrawalCredentials[:])
	binary.LittleEndian.PutUint64(buf[n:], d.Amount)
	n += 8
	n += copy(buf[n:], d.Signature[:])
	binary.LittleEndian.PutUint64(buf[n:], d.Index)
	return buf
}

// DecodeDepositRequest reverses DepositRequest.Encode.
func DecodeDepositRequest(data []byte) (*DepositRequest, error) {
	if len(data) != depositRequestSize {
		return nil, fmt.Errorf("invalid deposit request length: %d, want %d", len(data), depositRequestSize)
	}
	d := &DepositRequest{}
	copy(d.Pubkey[:], data[:48])
	copy(d.WithdrawalCredentials[:], data[48:80])
	d.Amount = binary.LittleEndian.Uint64(data[80:88])
	copy(d.Signature[:], data[88:184])
	d.Index = binary.LittleEndian.Uint64(data[184:192])
	return d, nil
}

// WithdrawalRequest asks the consensus layer to withdraw from a validator
// (EIP-7002).
type WithdrawalRequest struct {
	SourceAddress   Address
	ValidatorPubkey [48]byte
	Amount          uint64
}

// Encode lays the request out as source(20) || pubkey(48) || amount(8, LE).
func (w *WithdrawalRequest) Encode() []byte {
	buf := make([]byte, withdrawalRequestSize)
	n := copy(buf, w.SourceAddress[:])
	n += copy(buf[n:], w.ValidatorPubkey[:])
	binary.LittleEndian.PutUint64(buf[n:], w.Amount)
	return buf
}

// DecodeWithdrawalRequest reverses WithdrawalRequest.Encode.
func DecodeWithdrawalRequest(data []byte) (*WithdrawalRequest, error) {
	if len(data) != withdrawalRequestSize {
		return nil, fmt.Errorf("invalid withdrawal request length: %d, want %d", len(data), withdrawalRequestSize)
	}
	w := &WithdrawalRequest{}
	copy(w.SourceAddress[:], data[:20])
	copy(w.ValidatorPubkey[:], data[20:68])
	w.Amount = binary.LittleEndian.Uint64(data[68:76])
	return w, nil
}

// ConsolidationRequest merges one validator into another (EIP-7251).
type ConsolidationRequest struct {
	SourceAddress Address
	SourcePubkey  [48]byte
	TargetPubkey  [48]byte
}

// Encode lays the request out as source(20) || srcPubkey(48) || dstPubkey(48).
func (c *ConsolidationRequest) Encode() []byte {
	buf := make([]byte, consolidationRequestSize)
	n := copy(buf, c.SourceAddress[:])
	n += copy(buf[n:], c.SourcePubkey[:])
	copy(buf[n:], c.TargetPubkey[:])
	return buf
}

// DecodeConsolidationRequest reverses ConsolidationRequest.Encode.
func DecodeConsolidationRequest(data []byte) (*ConsolidationRequest, error) {
	if len(data) != consolidationRequestSize {
		return nil, fmt.Errorf("invalid consolidation request length: %d, want %d", len(data), consolidationRequestSize)
	}
	c := &ConsolidationRequest{}
	copy(c.SourceAddress[:], data[:20])
	copy(c.SourcePubkey[:], data[20:68])
	copy(c.TargetPubkey[:], data[68:116])
	return c, nil
}

// Request is the generic type-prefixed envelope.
type Request struct {
	Type byte
	Data []byte
}

// NewRequest wraps a payload in its type.
func NewRequest(reqType byte, data []byte) *Request {
	return &Request{Type: reqType, Data: data}
}

// Encode emits the wire form: type || data.
func (r *Request) Encode() []byte {
	out := make([]byte, 1+len(r.Data))
	out[0] = r.Type
	copy(out[1:], r.Data)
	return out
}

// DecodeRequest splits a wire-form request into its type and payload.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) < 1 {
		return nil, errors.New("request too short")
	}
	return &Request{Type: data[0], Data: data[1:]}, nil
}

// Requests is an ordered request list.
type Requests []*Request

// FilterByType keeps only the requests of one type, in order.
func (rs Requests) FilterByType(reqType byte) Requests {
	var out Requests
	for _, r := range rs {
		if r.Type == reqType {
			out = append(out, r)
		}
	}
	return out
}

// Encode emits every request's wire form.
func (rs Requests) Encode() [][]byte {
	out := make([][]byte, len(rs))
	for i, r := range rs {
		out[i] = r.Encode()
	}
	return out
}

// SortRequests orders requests by ascending type, stably, as EIP-7685's
// hash requires.
func SortRequests(requests Requests) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Type < requests[j].Type
	})
}

// EncodeRequests flattens a request list: each entry is a 4-byte
// little-endian length followed by the wire form.
func EncodeRequests(requests Requests) []byte {
	var buf []byte
	for _, r := range requests {
		wire := r.Encode()
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(wire)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, wire...)
	}
	return buf
}

// DecodeRequests reverses EncodeRequests.
func DecodeRequests(data []byte) (Requests, error) {
	var requests Requests
	for offset := 0; offset < len(data); {
		if offset+4 > len(data) {
			return nil, errors.New("truncated request length prefix")
		}
		length := binary.LittleEndian.Uint32(data[offset : offset+4])
		offset += 4
		if length == 0 {
			return nil, errors.New("zero-length request")
		}
		end := offset + int(length)
		if end > len(data) {
			return nil, fmt.Errorf("request data truncated: need %d bytes at offset %d, have %d", length, offset, len(data)-offset)
		}
		r, err := DecodeRequest(data[offset:end])
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
		offset = end
	}
	return requests, nil
}

// ComputeRequestsHash builds the EIP-7685 commitment: for each request
// type present, sha256(type || payloads...) in ascending type order, then
// sha256 over the concatenated per-type digests.
func ComputeRequestsHash(requests Requests) Hash {
	outer := sha256.New()
	for reqType := DepositRequestType; reqType <= ConsolidationRequestType; reqType++ {
		ofType := requests.FilterByType(reqType)
		if len(ofType) == 0 {
			continue
		}
		inner := sha256.New()
		inner.Write([]byte{reqType})
		for _, r := range ofType {
			inner.Write(r.Data)
		}
		outer.Write(inner.Sum(nil))
	}

	var result Hash
	copy(result[:], outer.Sum(nil))
	return result
}

// ValidateRequestsHash compares the header's requests_hash claim against
// the computed commitment; a header without one is valid only for an
// empty request set.
func ValidateRequestsHash(header *Header, requests Requests) error {
	if header.RequestsHash == nil {
		if len(requests) == 0 {
			return nil
		}
		return fmt.Errorf("header has no requests_hash but block has %d requests", len(requests))
	}
	computed := ComputeRequestsHash(requests)
	if *header.RequestsHash != computed {
		return fmt.Errorf("requests hash mismatch: header=%s computed=%s", header.RequestsHash.Hex(), computed.Hex())
	}
	return nil
}
