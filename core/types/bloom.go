package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// BloomBitLength is the filter width in bits (2048).
const BloomBitLength = 8 * BloomLength

// bloom9 derives the three filter bits for an entry: the first six bytes
// of keccak256(data), read as three big-endian uint16s mod 2048.
func bloom9(data []byte) [3]uint {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	h := d.Sum(nil)
	var bits [3]uint
	for i := range bits {
		bits[i] = uint(binary.BigEndian.Uint16(h[2*i:])) & (BloomBitLength - 1)
	}
	return bits
}

// bloomIndex maps a bit number to its byte offset and mask. Bit zero is
// the least-significant bit of the last byte.
func bloomIndex(bit uint) (int, byte) {
	return BloomLength - 1 - int(bit/8), 1 << (bit % 8)
}

// BloomAdd sets data's three bits in the filter.
func BloomAdd(bloom *Bloom, data []byte) {
	for _, bit := range bloom9(data) {
		idx, mask := bloomIndex(bit)
		bloom[idx] |= mask
	}
}

// BloomContains reports whether all three of data's bits are set. False
// means definitely absent; true means possibly present.
func BloomContains(bloom Bloom, data []byte) bool {
	for _, bit := range bloom9(data) {
		idx, mask := bloomIndex(bit)
		if bloom[idx]&mask == 0 {
			return false
		}
	}
	return true
}

// LogsBloom folds every log's address and topics into one filter.
func LogsBloom(logs []*Log) Bloom {
	var bloom Bloom
	for _, log := range logs {
		BloomAdd(&bloom, log.Address.Bytes())
		for _, topic := range log.Topics {
			BloomAdd(&bloom, topic.Bytes())
		}
	}
	return bloom
}

// CreateBloom ORs the per-receipt blooms into the block-level filter.
func CreateBloom(receipts []*Receipt) Bloom {
	var bloom Bloom
	for _, receipt := range receipts {
		for i := range receipt.Bloom {
			bloom[i] |= receipt.Bloom[i]
		}
	}
	return bloom
}
