package trie

import (
	"errors"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
	"github.com/ethstate/execution-core/rlp"
)

// ErrNotFound is returned by Get when the requested key is absent.
var ErrNotFound = errors.New("trie: key not found")

// emptyRoot is the commitment of a trie with no entries: keccak256 of the
// RLP encoding of the empty byte string (a single 0x80 byte).
var emptyRoot = computeEmptyRoot()

func computeEmptyRoot() types.Hash {
	enc, _ := rlp.EncodeToBytes([]byte{})
	return crypto.Keccak256Hash(enc)
}

// Trie is an in-memory Merkle-Patricia radix tree over arbitrary byte keys.
// It does not persist to or resolve nodes from a backing database: every
// node reachable from root lives on the Go heap for the trie's lifetime.
type Trie struct {
	root node
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{}
}

// Get looks up key and returns ErrNotFound if it has no entry.
func (t *Trie) Get(key []byte) ([]byte, error) {
	val, ok := lookup(t.root, keyToNibbles(key), 0)
	if !ok {
		return nil, ErrNotFound
	}
	return val, nil
}

// lookup walks n for the nibble path key[pos:], following branch children
// and matching path-node prefixes until it bottoms out at a value or a dead
// end.
func lookup(n node, key []byte, pos int) ([]byte, bool) {
	switch n := n.(type) {
	case nil:
		return nil, false

	case leafValue:
		return []byte(n), true

	case *pathNode:
		remaining := key[pos:]
		if len(remaining) < len(n.Key) || !equalNibbles(n.Key, remaining[:len(n.Key)]) {
			return nil, false
		}
		return lookup(n.Val, key, pos+len(n.Key))

	case *branchNode:
		if pos >= len(key) {
			return lookup(n.Children[16], key, pos)
		}
		return lookup(n.Children[key[pos]], key, pos+1)

	case refNode:
		// This trie never persists nodes out-of-tree, so a reference that
		// has not been resolved in place is unreachable by construction.
		return nil, false

	default:
		return nil, false
	}
}

// Put inserts or overwrites key with value. An empty value is treated as a
// delete, matching the Yellow Paper's equivalence of "unset" and "empty".
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	root, err := insertAt(t.root, keyToNibbles(key), leafValue(value))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func dirtyFlag() cacheFlag { return cacheFlag{dirty: true} }

// insertAt returns the subtree obtained by writing value at the nibble path
// key within n, path-copying every node along the way.
func insertAt(n node, key []byte, value node) (node, error) {
	if len(key) == 0 {
		if existing, ok := n.(leafValue); ok && equalNibbles(existing, value.(leafValue)) {
			return existing, nil
		}
		return value, nil
	}

	switch n := n.(type) {
	case nil:
		return &pathNode{Key: key, Val: value, flags: dirtyFlag()}, nil

	case *pathNode:
		return insertIntoPath(n, key, value)

	case *branchNode:
		cp := n.copy()
		cp.flags = dirtyFlag()
		child, err := insertAt(n.Children[key[0]], key[1:], value)
		if err != nil {
			return nil, err
		}
		cp.Children[key[0]] = child
		return cp, nil

	case refNode:
		return nil, errors.New("trie: cannot insert into an unresolved node reference")

	default:
		return nil, errors.New("trie: unknown node type")
	}
}

// insertIntoPath handles the three ways a new key can interact with an
// existing path (extension/leaf) node: fully inside it, or diverging at
// some nibble and requiring a branch split.
func insertIntoPath(n *pathNode, key []byte, value node) (node, error) {
	shared := commonPrefixLen(key, n.Key)
	if shared == len(n.Key) {
		child, err := insertAt(n.Val, key[shared:], value)
		if err != nil {
			return nil, err
		}
		return &pathNode{Key: n.Key, Val: child, flags: dirtyFlag()}, nil
	}

	branch := &branchNode{flags: dirtyFlag()}
	oldBranch, err := insertAt(nil, n.Key[shared+1:], n.Val)
	if err != nil {
		return nil, err
	}
	branch.Children[n.Key[shared]] = oldBranch

	newBranch, err := insertAt(nil, key[shared+1:], value)
	if err != nil {
		return nil, err
	}
	branch.Children[key[shared]] = newBranch

	if shared > 0 {
		return &pathNode{Key: key[:shared], Val: branch, flags: dirtyFlag()}, nil
	}
	return branch, nil
}

// Delete removes key, doing nothing if it is already absent.
func (t *Trie) Delete(key []byte) error {
	root, err := deleteAt(t.root, keyToNibbles(key))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func deleteAt(n node, key []byte) (node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil

	case leafValue:
		if len(key) == 0 {
			return nil, nil
		}
		return n, nil

	case *pathNode:
		return deleteFromPath(n, key)

	case *branchNode:
		return deleteFromBranch(n, key)

	case refNode:
		return nil, errors.New("trie: cannot delete from an unresolved node reference")

	default:
		return nil, errors.New("trie: unknown node type")
	}
}

func deleteFromPath(n *pathNode, key []byte) (node, error) {
	shared := commonPrefixLen(key, n.Key)
	if shared < len(n.Key) {
		return n, nil // key not present under this subtree
	}
	if shared == len(key) {
		return nil, nil // exact match: drop the node
	}
	child, err := deleteAt(n.Val, key[len(n.Key):])
	if err != nil {
		return nil, err
	}
	switch child := child.(type) {
	case nil:
		return nil, nil
	case *pathNode:
		return &pathNode{Key: joinNibbles(n.Key, child.Key), Val: child.Val, flags: dirtyFlag()}, nil
	default:
		return &pathNode{Key: n.Key, Val: child, flags: dirtyFlag()}, nil
	}
}

func deleteFromBranch(n *branchNode, key []byte) (node, error) {
	cp := n.copy()
	cp.flags = dirtyFlag()
	child, err := deleteAt(n.Children[key[0]], key[1:])
	if err != nil {
		return nil, err
	}
	cp.Children[key[0]] = child

	only := soleSurvivor(cp)
	if only < 0 {
		return cp, nil // more than one child remains (or a genuine no-children state we don't expect)
	}

	if only == 16 {
		return &pathNode{Key: []byte{nibbleTerminator}, Val: cp.Children[16], flags: dirtyFlag()}, nil
	}
	survivor := cp.Children[only]
	if path, ok := survivor.(*pathNode); ok {
		return &pathNode{Key: joinNibbles([]byte{byte(only)}, path.Key), Val: path.Val, flags: dirtyFlag()}, nil
	}
	return &pathNode{Key: []byte{byte(only)}, Val: survivor, flags: dirtyFlag()}, nil
}

// soleSurvivor returns the index of the one remaining non-nil child of a
// branch, or -1 if zero or more than one child remains.
func soleSurvivor(n *branchNode) int {
	found := -1
	for i := 0; i < 17; i++ {
		if n.Children[i] == nil {
			continue
		}
		if found >= 0 {
			return -1
		}
		found = i
	}
	return found
}

// Hash computes the root commitment, replacing the in-memory root with its
// hashed-and-cached form (small subtrees stay embedded rather than hashed).
func (t *Trie) Hash() types.Hash {
	if t.root == nil {
		return emptyRoot
	}
	h := newHasher()
	hashedRoot, cachedRoot := h.hash(t.root, true)
	t.root = cachedRoot

	if ref, ok := hashedRoot.(refNode); ok {
		return types.BytesToHash(ref)
	}
	// A root small enough to stay embedded was still forced to hash here;
	// fall back to hashing its encoding directly.
	enc, _ := encodeNode(hashedRoot)
	return crypto.Keccak256Hash(enc)
}

// Len walks the whole tree and counts stored values; O(n) in trie size.
func (t *Trie) Len() int {
	return countLeaves(t.root)
}

// Empty reports whether the trie holds no entries.
func (t *Trie) Empty() bool {
	return t.root == nil
}

func countLeaves(n node) int {
	switch n := n.(type) {
	case nil:
		return 0
	case leafValue:
		return 1
	case *pathNode:
		return countLeaves(n.Val)
	case *branchNode:
		total := 0
		for i := 0; i < 17; i++ {
			total += countLeaves(n.Children[i])
		}
		return total
	default:
		return 0 // refNode: cannot count through an unresolved reference
	}
}

func equalNibbles(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinNibbles(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}
