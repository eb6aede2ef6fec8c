package trie

import (
	"errors"
	"fmt"
)

var (
	errDecodeInvalid = errors.New("trie: invalid encoded node")
)

// decodeNode decodes an RLP-encoded trie node.
// The hash is the expected hash reference of this node (for caching).
func decodeNode(hash refNode, data []byte) (node, error) {
	if len(data) == 0 {
		return nil, errDecodeInvalid
	}

	// Decode the RLP.
	elems, err := decodeRLPList(data)
	if err != nil {
		return nil, fmt.Errorf("trie decode: %w", err)
	}

	switch len(elems) {
	case 2:
		return decodeShort(hash, elems)
	case 17:
		return decodeFull(hash, elems)
	default:
		return nil, fmt.Errorf("%w: expected 2 or 17 elements, got %d", errDecodeInvalid, len(elems))
	}
}

// decodeShort decodes a 2-element RLP list into a pathNode.
func decodeShort(hash refNode, elems [][]byte) (node, error) {
	// First element is the compact-encoded key.
	key := compactToNibbles(elems[0])

	// Second element is either a value (leaf) or a child reference (extension).
	if endsWithTerm(key) {
		// Leaf node: value is the second element.
		return &pathNode{
			Key: key,
			Val: leafValue(elems[1]),
			flags: cacheFlag{
				hash:  hash,
				dirty: false,
			},
		}, nil
	}

	// Extension node: second element is a child node reference.
	child, err := decodeRef(elems[1])
	if err != nil {
		return nil, err
	}
	return &pathNode{
		Key: key,
		Val: child,
		flags: cacheFlag{
			hash:  hash,
			dirty: false,
		},
	}, nil
}

// decodeFull decodes a 17-element RLP list into a branchNode.
func decodeFull(hash refNode, elems [][]byte) (node, error) {
	n := &branchNode{
		flags: cacheFlag{
			hash:  hash,
			dirty: false,
		},
	}
	for i := 0; i < 16; i++ {
		if len(elems[i]) == 0 {
			continue
		}
		child, err := decodeRef(elems[i])
		if err != nil {
			return nil, err
		}
		n.Children[i] = child
	}
	// Element 17 is the value at this branch point.
	if len(elems[16]) > 0 {
		n.Children[16] = leafValue(elems[16])
	}
	return n, nil
}

// decodeRef decodes a child node reference.
// If the data is 32 bytes, it's a hash reference.
// Otherwise, it's an inline node (decode recursively).
func decodeRef(data []byte) (node, error) {
	if len(data) == 0 {
		return nil, nil
	}
	// 32-byte hash reference.
	if len(data) == 32 {
		return refNode(data), nil
	}
	// Inline node: decode it.
	return decodeNode(nil, data)
}

// decodeLength reads a big-endian length of lenLen bytes.
func decodeLength(data []byte, lenLen int) int {
	var length int
	for i := 0; i < lenLen; i++ {
		length = length<<8 | int(data[i])
	}
	return length
}

// itemSpan measures the RLP item at the front of data: how many bytes its
// header occupies, how long its payload is, and whether it is a list.
// The caller slices with those figures; nothing is copied.
func itemSpan(data []byte) (headLen, payloadLen int, isList bool, err error) {
	if len(data) == 0 {
		return 0, 0, false, errDecodeInvalid
	}
	prefix := data[0]
	switch {
	case prefix <= 0x7f: // literal single byte, no header
		return 0, 1, false, nil
	case prefix <= 0xb7: // short string
		headLen, payloadLen = 1, int(prefix-0x80)
	case prefix <= 0xbf: // long string
		lenLen := int(prefix - 0xb7)
		if 1+lenLen > len(data) {
			return 0, 0, false, errDecodeInvalid
		}
		headLen, payloadLen = 1+lenLen, decodeLength(data[1:1+lenLen], lenLen)
	case prefix <= 0xf7: // short list
		headLen, payloadLen, isList = 1, int(prefix-0xc0), true
	default: // long list
		lenLen := int(prefix - 0xf7)
		if 1+lenLen > len(data) {
			return 0, 0, false, errDecodeInvalid
		}
		headLen, payloadLen, isList = 1+lenLen, decodeLength(data[1:1+lenLen], lenLen), true
	}
	if headLen+payloadLen > len(data) {
		return 0, 0, false, errDecodeInvalid
	}
	return headLen, payloadLen, isList, nil
}

// decodeRLPList splits a top-level list into its element byte slices:
// string payloads without their headers, nested lists with headers intact
// so they can carry inline node encodings.
func decodeRLPList(data []byte) ([][]byte, error) {
	headLen, payloadLen, isList, err := itemSpan(data)
	if err != nil {
		return nil, err
	}
	if !isList {
		return nil, fmt.Errorf("%w: expected list, got string prefix 0x%02x", errDecodeInvalid, data[0])
	}

	payload := data[headLen : headLen+payloadLen]
	var elems [][]byte
	for len(payload) > 0 {
		elem, rest, err := decodeOneElement(payload)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		payload = rest
	}
	return elems, nil
}

// decodeOneElement slices one item off the front of data per the
// decodeRLPList conventions.
func decodeOneElement(data []byte) (content []byte, rest []byte, err error) {
	headLen, payloadLen, isList, err := itemSpan(data)
	if err != nil {
		return nil, nil, err
	}
	end := headLen + payloadLen
	if isList {
		// Keep the header: nested lists are inline nodes whose exact
		// encoding matters to the caller.
		return data[:end], data[end:], nil
	}
	if payloadLen == 0 {
		return nil, data[end:], nil
	}
	return data[headLen:end], data[end:], nil
}
