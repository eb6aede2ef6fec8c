package trie

import (
	"github.com/ethstate/execution-core/crypto"
	"github.com/ethstate/execution-core/rlp"
)

// hasher turns a node tree into its commitment form: every subtree whose
// RLP encoding is at least 32 bytes is replaced by a refNode holding its
// Keccak-256 hash, while smaller subtrees stay embedded inline.
type hasher struct{}

func newHasher() *hasher {
	return &hasher{}
}

// hash returns both the collapsed form of n (children replaced by their
// hash/inline encoding, suitable for serializing) and the cached form (same
// shape as n, but with the now-known hash recorded on it so a later call
// with the node still clean can skip recomputation). force causes n itself
// to be hashed even if its encoding is under 32 bytes; only the trie root
// ever passes force=true.
func (h *hasher) hash(n node, force bool) (node, node) {
	if cached, dirty := n.cache(); cached != nil && !dirty {
		return cached, n
	}

	collapsed, retained := h.collapseChildren(n)
	sealed, err := h.commitOrInline(collapsed, force)
	if err != nil {
		panic("hasher: " + err.Error())
	}

	ref, _ := sealed.(refNode)
	switch rn := retained.(type) {
	case *pathNode:
		rn.flags = cacheFlag{hash: ref, dirty: false}
	case *branchNode:
		rn.flags = cacheFlag{hash: ref, dirty: false}
	}
	return sealed, retained
}

// collapseChildren produces two copies of n: one (collapsed) with every
// non-leaf child replaced by its own hash() result for encoding, and one
// (retained) with children replaced by their cached equivalents, for
// keeping in the live tree.
func (h *hasher) collapseChildren(n node) (collapsed, retained node) {
	switch n := n.(type) {
	case *pathNode:
		collapsed, retained := n.copy(), n.copy()
		collapsed.Key = nibblesToCompact(n.Key)
		if _, isLeaf := n.Val.(leafValue); !isLeaf {
			collapsed.Val, retained.Val = h.hash(n.Val, false)
		}
		return collapsed, retained

	case *branchNode:
		collapsed, retained := n.copy(), n.copy()
		for i := 0; i < 16; i++ {
			if n.Children[i] == nil {
				continue
			}
			collapsed.Children[i], retained.Children[i] = h.hash(n.Children[i], false)
		}
		return collapsed, retained

	default:
		return n, n
	}
}

// commitOrInline RLP-encodes n and, unless the encoding is short enough to
// stay embedded (and force is not set), replaces it with its Keccak-256
// hash wrapped as a refNode.
func (h *hasher) commitOrInline(n node, force bool) (node, error) {
	switch n.(type) {
	case refNode, leafValue:
		return n, nil
	}

	enc, err := encodeNode(n)
	if err != nil {
		return nil, err
	}
	if len(enc) < 32 && !force {
		return n, nil
	}
	return refNode(crypto.Keccak256(enc)), nil
}

// encodeNode RLP-encodes n as it would appear in its parent: a pathNode is
// a 2-element [compactKey, value] list, a branchNode a 17-element
// [child0..child15, value] list, a refNode is already just its raw
// reference bytes, and a leafValue is an RLP string.
func encodeNode(n node) ([]byte, error) {
	switch n := n.(type) {
	case *pathNode:
		return encodePathNode(n)
	case *branchNode:
		return encodeBranchNode(n)
	case refNode:
		return []byte(n), nil
	case leafValue:
		return rlp.EncodeToBytes([]byte(n))
	default:
		return nil, nil
	}
}

// encodePathNode assumes n.Key is already compact-encoded.
func encodePathNode(n *pathNode) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(n.Key)
	if err != nil {
		return nil, err
	}
	valEnc, err := encodeChildRef(n.Val)
	if err != nil {
		return nil, err
	}
	return listHeader(append(keyEnc, valEnc...)), nil
}

func encodeBranchNode(n *branchNode) ([]byte, error) {
	var payload []byte
	for i := 0; i < 17; i++ {
		enc, err := encodeChildRef(n.Children[i])
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return listHeader(payload), nil
}

// encodeChildRef encodes n as it appears nested inside a parent's RLP list:
// nil becomes the empty string, a leafValue or refNode becomes an RLP
// string of its bytes, and an inline pathNode/branchNode is encoded in
// full at the parent's position.
func encodeChildRef(n node) ([]byte, error) {
	if n == nil {
		return []byte{0x80}, nil
	}
	switch n := n.(type) {
	case leafValue:
		return rlp.EncodeToBytes([]byte(n))
	case refNode:
		return rlp.EncodeToBytes([]byte(n))
	case *pathNode:
		return encodePathNode(n)
	case *branchNode:
		return encodeBranchNode(n)
	default:
		return []byte{0x80}, nil
	}
}

// listHeader wraps an already-encoded sequence of items in an RLP list
// header.
func listHeader(payload []byte) []byte {
	n := len(payload)
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = 0xc0 + byte(n)
		copy(buf[1:], payload)
		return buf
	}
	lenBytes := bigEndianTrim(uint64(n))
	buf := make([]byte, 1+len(lenBytes)+n)
	buf[0] = 0xf7 + byte(len(lenBytes))
	copy(buf[1:], lenBytes)
	copy(buf[1+len(lenBytes):], payload)
	return buf
}

// bigEndianTrim renders u as minimal-length big-endian bytes (no leading
// zero byte).
func bigEndianTrim(u uint64) []byte {
	switch {
	case u < (1 << 8):
		return []byte{byte(u)}
	case u < (1 << 16):
		return []byte{byte(u >> 8), byte(u)}
	case u < (1 << 24):
		return []byte{byte(u >> 16), byte(u >> 8), byte(u)}
	case u < (1 << 32):
		return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
	default:
		return []byte{
			byte(u >> 56), byte(u >> 48), byte(u >> 40), byte(u >> 32),
			byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u),
		}
	}
}
