package types

import (
	"github.com/ethstate/execution-core/rlp"
	"golang.org/x/crypto/sha3"
)

// EncodeRLP emits the receipt's consensus form
// [status, cumulativeGasUsed, bloom, logs], with the transaction's type
// byte prefixed for typed receipts.
func (r *Receipt) EncodeRLP() ([]byte, error) {
	statusEnc, err := rlp.EncodeToBytes(r.Status)
	if err != nil {
		return nil, err
	}
	gasEnc, err := rlp.EncodeToBytes(r.CumulativeGasUsed)
	if err != nil {
		return nil, err
	}
	bloomEnc, err := rlp.EncodeToBytes(r.Bloom)
	if err != nil {
		return nil, err
	}

	var logsPayload []byte
	for _, log := range r.Logs {
		enc, err := EncodeLogRLP(log)
		if err != nil {
			return nil, err
		}
		logsPayload = append(logsPayload, enc...)
	}

	payload := append(statusEnc, gasEnc...)
	payload = append(payload, bloomEnc...)
	payload = append(payload, rlp.WrapList(logsPayload)...)
	encoded := rlp.WrapList(payload)

	if r.Type != 0 {
		typed := make([]byte, 1+len(encoded))
		typed[0] = r.Type
		copy(typed[1:], encoded)
		return typed, nil
	}
	return encoded, nil
}

// DecodeReceiptRLP reverses Receipt.EncodeRLP, accepting both legacy and
// type-prefixed envelopes.
func DecodeReceiptRLP(data []byte) (*Receipt, error) {
	r := &Receipt{}

	// A leading byte below the RLP string range is the receipt type.
	if len(data) > 0 && data[0] < 0x80 {
		r.Type = data[0]
		data = data[1:]
	}

	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}

	var err error
	if r.Status, err = s.Uint64(); err != nil {
		return nil, err
	}
	if r.CumulativeGasUsed, err = s.Uint64(); err != nil {
		return nil, err
	}
	if err := readBloom(s, &r.Bloom); err != nil {
		return nil, err
	}

	if _, err := s.List(); err != nil {
		return nil, err
	}
	for !s.AtListEnd() {
		log, err := parseLog(s)
		if err != nil {
			return nil, err
		}
		r.Logs = append(r.Logs, log)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}

	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return r, nil
}

// parseLog reads one in-stream [address, topics, data] triple.
func parseLog(s *rlp.Stream) (*Log, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}

	l := &Log{}
	if err := readAddress(s, &l.Address); err != nil {
		return nil, err
	}

	if _, err := s.List(); err != nil {
		return nil, err
	}
	for !s.AtListEnd() {
		var topic Hash
		if err := readHash(s, &topic); err != nil {
			return nil, err
		}
		l.Topics = append(l.Topics, topic)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}

	var err error
	if l.Data, err = s.Bytes(); err != nil {
		return nil, err
	}

	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return l, nil
}

// DeriveSha folds the ordered receipt encodings into one keccak digest: a
// flat commitment used where the full trie-keyed root is not needed.
func DeriveSha(receipts []*Receipt) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, r := range receipts {
		enc, err := r.EncodeRLP()
		if err != nil {
			continue
		}
		d.Write(enc)
	}
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}
