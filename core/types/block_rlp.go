package types

import (
	"fmt"

	"github.com/ethstate/execution-core/rlp"
)

// EncodeRLP emits the block envelope [header, [txs...], [uncles...]].
// Transactions appear as opaque byte strings holding their canonical
// (possibly type-prefixed) encodings; uncle headers are nested lists.
func (b *Block) EncodeRLP() ([]byte, error) {
	headerEnc, err := b.header.EncodeRLP()
	if err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}

	var txsPayload []byte
	for i, tx := range b.body.Transactions {
		canonical, err := tx.EncodeRLP()
		if err != nil {
			return nil, fmt.Errorf("encoding tx %d: %w", i, err)
		}
		wrapped, err := rlp.EncodeToBytes(canonical)
		if err != nil {
			return nil, fmt.Errorf("wrapping tx %d: %w", i, err)
		}
		txsPayload = append(txsPayload, wrapped...)
	}

	var unclesPayload []byte
	for _, uncle := range b.body.Uncles {
		enc, err := uncle.EncodeRLP()
		if err != nil {
			return nil, fmt.Errorf("encoding uncle: %w", err)
		}
		unclesPayload = append(unclesPayload, enc...)
	}

	envelope := append([]byte{}, headerEnc...)
	envelope = append(envelope, rlp.WrapList(txsPayload)...)
	envelope = append(envelope, rlp.WrapList(unclesPayload)...)
	return rlp.WrapList(envelope), nil
}

// DecodeBlockRLP reverses Block.EncodeRLP.
func DecodeBlockRLP(data []byte) (*Block, error) {
	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("opening block list: %w", err)
	}

	headerBytes, err := s.RawItem()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DecodeHeaderRLP(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	txs, err := decodeBlockTxs(s)
	if err != nil {
		return nil, err
	}
	uncles, err := decodeBlockUncles(s)
	if err != nil {
		return nil, err
	}

	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("closing block list: %w", err)
	}

	block := &Block{header: header}
	block.body.Transactions = txs
	block.body.Uncles = uncles
	return block, nil
}

func decodeBlockTxs(s *rlp.Stream) ([]*Transaction, error) {
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("opening txs list: %w", err)
	}
	var txs []*Transaction
	for !s.AtListEnd() {
		raw, err := s.Bytes()
		if err != nil {
			return nil, fmt.Errorf("reading tx bytes: %w", err)
		}
		tx, err := DecodeTxRLP(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding tx: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("closing txs list: %w", err)
	}
	return txs, nil
}

func decodeBlockUncles(s *rlp.Stream) ([]*Header, error) {
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("opening uncles list: %w", err)
	}
	var uncles []*Header
	for !s.AtListEnd() {
		raw, err := s.RawItem()
		if err != nil {
			return nil, fmt.Errorf("reading uncle: %w", err)
		}
		uncle, err := DecodeHeaderRLP(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding uncle: %w", err)
		}
		uncles = append(uncles, uncle)
	}
	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("closing uncles list: %w", err)
	}
	return uncles, nil
}
