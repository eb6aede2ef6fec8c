// proof.go generates and checks Merkle proofs: the RLP encodings of the
// nodes on the path from the root to a key. A proof verifies against a root
// hash alone, so a light consumer can check membership (or absence) without
// the full trie.
package trie

import (
	"bytes"
	"errors"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

// ErrProofInvalid is returned when a Merkle proof does not verify.
var ErrProofInvalid = errors.New("trie: invalid proof")

// Prove generates a Merkle proof for key. The proof holds the RLP-encoded
// nodes from the root down to the value; pass it to VerifyProof together
// with the trie's root hash.
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	if t.root == nil {
		return nil, ErrNotFound
	}
	var proof [][]byte
	found, err := proveAt(t.root, noResolve, keyToNibbles(key), 0, &proof)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return proof, nil
}

// ProveAbsence generates a proof that key is not present: the nodes along
// the lookup path up to the point where it diverges. For an empty trie the
// proof is empty.
func (t *Trie) ProveAbsence(key []byte) ([][]byte, error) {
	if t.root == nil {
		return nil, nil
	}
	var proof [][]byte
	if err := proveAbsenceAt(t.root, noResolve, keyToNibbles(key), 0, &proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// Prove generates a Merkle proof for key, resolving nodes from the backing
// database as needed.
func (t *ResolvableTrie) Prove(key []byte) ([][]byte, error) {
	if t.root == nil {
		return nil, ErrNotFound
	}
	var proof [][]byte
	found, err := proveAt(t.root, t.resolveHash, keyToNibbles(key), 0, &proof)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return proof, nil
}

// ProveAbsence is the database-resolving variant of Trie.ProveAbsence.
func (t *ResolvableTrie) ProveAbsence(key []byte) ([][]byte, error) {
	if t.root == nil {
		return nil, nil
	}
	var proof [][]byte
	if err := proveAbsenceAt(t.root, t.resolveHash, keyToNibbles(key), 0, &proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// noResolve is the resolver for fully in-memory tries, where an unresolved
// reference cannot occur on a reachable path.
func noResolve(hash refNode) (node, error) {
	return nil, ErrNotFound
}

// proofEncoding renders n exactly as it was hashed: compact keys, children
// collapsed to their references.
func proofEncoding(n node) ([]byte, error) {
	h := newHasher()
	collapsed, _ := h.collapseChildren(n)
	return encodeNode(collapsed)
}

// proveAt walks the nibble path key[pos:], appending each visited node's
// canonical encoding, and reports whether the key's value was reached.
func proveAt(n node, resolve func(refNode) (node, error), key []byte, pos int, proof *[][]byte) (bool, error) {
	switch n := n.(type) {
	case nil:
		return false, nil

	case leafValue:
		return true, nil

	case refNode:
		resolved, err := resolve(n)
		if err != nil {
			return false, err
		}
		return proveAt(resolved, resolve, key, pos, proof)

	case *pathNode:
		enc, err := proofEncoding(n)
		if err != nil {
			return false, err
		}
		*proof = append(*proof, enc)
		if len(key)-pos < len(n.Key) || !equalNibbles(n.Key, key[pos:pos+len(n.Key)]) {
			return false, nil
		}
		return proveAt(n.Val, resolve, key, pos+len(n.Key), proof)

	case *branchNode:
		enc, err := proofEncoding(n)
		if err != nil {
			return false, err
		}
		*proof = append(*proof, enc)
		if pos >= len(key) {
			return n.Children[16] != nil, nil
		}
		return proveAt(n.Children[key[pos]], resolve, key, pos+1, proof)

	default:
		return false, nil
	}
}

// proveAbsenceAt collects nodes along the path until the key diverges.
func proveAbsenceAt(n node, resolve func(refNode) (node, error), key []byte, pos int, proof *[][]byte) error {
	switch n := n.(type) {
	case nil, leafValue:
		return nil

	case refNode:
		resolved, err := resolve(n)
		if err != nil {
			return err
		}
		return proveAbsenceAt(resolved, resolve, key, pos, proof)

	case *pathNode:
		enc, err := proofEncoding(n)
		if err != nil {
			return err
		}
		*proof = append(*proof, enc)
		if len(key)-pos < len(n.Key) || !equalNibbles(n.Key, key[pos:pos+len(n.Key)]) {
			return nil
		}
		return proveAbsenceAt(n.Val, resolve, key, pos+len(n.Key), proof)

	case *branchNode:
		enc, err := proofEncoding(n)
		if err != nil {
			return err
		}
		*proof = append(*proof, enc)
		if pos >= len(key) {
			return nil
		}
		child := n.Children[key[pos]]
		if child == nil {
			return nil
		}
		return proveAbsenceAt(child, resolve, key, pos+1, proof)

	default:
		return nil
	}
}

// VerifyProof checks a proof for key against a root hash. It returns the
// proven value, or (nil, nil) when the proof validly shows the key absent.
//
// Consecutive proof nodes are linked by 32-byte keccak references, or by
// exact inline embedding when a child's encoding is shorter than 32 bytes.
func VerifyProof(rootHash types.Hash, key []byte, proof [][]byte) ([]byte, error) {
	if len(proof) == 0 {
		if rootHash == emptyRoot {
			return nil, nil
		}
		return nil, ErrProofInvalid
	}

	hexKey := keyToNibbles(key)
	wantHash := rootHash[:]
	var wantInline []byte
	pos := 0

	for i, encoded := range proof {
		if wantInline != nil {
			if !bytes.Equal(encoded, wantInline) {
				return nil, ErrProofInvalid
			}
			wantInline = nil
		} else {
			if !bytes.Equal(crypto.Keccak256(encoded), wantHash) {
				return nil, ErrProofInvalid
			}
		}

		items, err := decodeRLPList(encoded)
		if err != nil {
			return nil, ErrProofInvalid
		}
		last := i == len(proof)-1

		switch len(items) {
		case 2:
			nibbles := compactToNibbles(items[0])

			matchLen := 0
			for matchLen < len(nibbles) && pos+matchLen < len(hexKey) {
				if nibbles[matchLen] != hexKey[pos+matchLen] {
					break
				}
				matchLen++
			}
			if matchLen < len(nibbles) {
				// Path diverges inside this node's key segment.
				if last {
					return nil, nil
				}
				return nil, ErrProofInvalid
			}
			pos += len(nibbles)

			if endsWithTerm(nibbles) {
				if last {
					return items[1], nil
				}
				return nil, ErrProofInvalid
			}

			// Extension: items[1] references the next node.
			if last {
				return nil, ErrProofInvalid
			}
			if len(items[1]) == 32 {
				wantHash = items[1]
				wantInline = nil
			} else {
				wantInline = items[1]
				wantHash = nil
			}

		case 17:
			if pos >= len(hexKey) {
				return nil, ErrProofInvalid
			}
			nibble := hexKey[pos]
			pos++

			if nibble == nibbleTerminator {
				val := items[16]
				if len(val) == 0 {
					return nil, nil
				}
				return val, nil
			}

			childRef := items[nibble]
			if len(childRef) == 0 {
				if last {
					return nil, nil
				}
				return nil, ErrProofInvalid
			}
			if last {
				return nil, ErrProofInvalid
			}
			if len(childRef) == 32 {
				wantHash = childRef
				wantInline = nil
			} else {
				wantInline = childRef
				wantHash = nil
			}

		default:
			return nil, ErrProofInvalid
		}
	}

	return nil, ErrProofInvalid
}
