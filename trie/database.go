package trie

import (
	"errors"
	"sync"

	"github.com/ethstate/execution-core/core/types"
	"github.com/ethstate/execution-core/crypto"
)

// ErrNodeNotFound means a referenced node exists in neither the pending
// layer nor the backing reader.
var ErrNodeNotFound = errors.New("trie: node not found in database")

// NodeReader resolves a node hash to its RLP encoding.
type NodeReader interface {
	Node(hash types.Hash) ([]byte, error)
}

// NodeWriter accepts committed nodes keyed by hash.
type NodeWriter interface {
	Put(hash types.Hash, data []byte) error
}

// NodeDatabase layers a pending in-memory node set over an optional
// backing reader. Freshly committed trie nodes accumulate in the pending
// layer until Commit flushes them to a writer; reads check pending first.
type NodeDatabase struct {
	mu      sync.RWMutex
	pending map[types.Hash][]byte
	disk    NodeReader // nil for purely in-memory operation
	size    int        // pending bytes
}

// NewNodeDatabase builds a node database over disk; nil keeps everything
// in memory.
func NewNodeDatabase(disk NodeReader) *NodeDatabase {
	return &NodeDatabase{
		pending: make(map[types.Hash][]byte),
		disk:    disk,
	}
}

// Node resolves hash through the pending layer, then the backing reader.
func (db *NodeDatabase) Node(hash types.Hash) ([]byte, error) {
	if hash == (types.Hash{}) {
		return nil, ErrNodeNotFound
	}

	db.mu.RLock()
	data, ok := db.pending[hash]
	db.mu.RUnlock()
	if ok {
		return data, nil
	}

	if db.disk != nil {
		return db.disk.Node(hash)
	}
	return nil, ErrNodeNotFound
}

// InsertNode adds a node to the pending layer.
func (db *NodeDatabase) InsertNode(hash types.Hash, data []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.pending[hash]; !ok {
		db.size += len(data)
	}
	db.pending[hash] = data
}

// DirtySize is the pending layer's byte total.
func (db *NodeDatabase) DirtySize() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.size
}

// DirtyCount is the pending layer's node count.
func (db *NodeDatabase) DirtyCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.pending)
}

// Commit flushes every pending node to writer and empties the layer.
func (db *NodeDatabase) Commit(writer NodeWriter) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for hash, data := range db.pending {
		if err := writer.Put(hash, data); err != nil {
			return err
		}
	}
	db.pending = make(map[types.Hash][]byte)
	db.size = 0
	return nil
}

// diskNodeReader adapts a plain key-value getter to NodeReader.
type diskNodeReader struct {
	get func(key []byte) ([]byte, error)
}

func (r *diskNodeReader) Node(hash types.Hash) ([]byte, error) {
	// Use the trie node prefix "t" + hash
	key := append([]byte("t"), hash[:]...)
	data, err := r.get(key)
	if err != nil {
		return nil, ErrNodeNotFound
	}
	return data, nil
}

// NewRawDBNodeReader creates a NodeReader from a function that reads by key.
func NewRawDBNodeReader(get func(key []byte) ([]byte, error)) NodeReader {
	return &diskNodeReader{get: get}
}

// diskNodeWriter adapts a rawdb key-value writer to the NodeWriter interface.
type diskNodeWriter struct {
	put func(key, value []byte) error
}

func (w *diskNodeWriter) Put(hash types.Hash, data []byte) error {
	key := append([]byte("t"), hash[:]...)
	return w.put(key, data)
}

// NewRawDBNodeWriter creates a NodeWriter from a function that writes by key.
func NewRawDBNodeWriter(put func(key, value []byte) error) NodeWriter {
	return &diskNodeWriter{put: put}
}

// CommitTrie collects all dirty nodes from the trie and stores them in
// the node database. Returns the root hash.
func CommitTrie(t *Trie, db *NodeDatabase) (types.Hash, error) {
	if t.root == nil {
		return emptyRoot, nil
	}

	h := newHasher()
	root, cached := sealAndStore(h, t.root, db)
	t.root = cached

	switch n := root.(type) {
	case refNode:
		return types.BytesToHash(n), nil
	default:
		enc, err := encodeNode(root)
		if err != nil {
			return types.Hash{}, err
		}
		hash := crypto.Keccak256Hash(enc)
		db.InsertNode(hash, enc)
		return hash, nil
	}
}

// sealAndStore recursively hashes and stores all dirty nodes in the database.
func sealAndStore(h *hasher, n node, db *NodeDatabase) (node, node) {
	switch n := n.(type) {
	case nil:
		return nil, nil

	case leafValue:
		return n, n

	case refNode:
		return n, n

	case *pathNode:
		// Commit child first.
		collapsed := n.copy()
		collapsed.Key = nibblesToCompact(n.Key)

		cached := n.copy()
		if _, ok := n.Val.(leafValue); !ok {
			childH, childC := sealAndStore(h, n.Val, db)
			collapsed.Val = childH
			cached.Val = childC
		}

		// Encode and store.
		enc, err := encodeNode(collapsed)
		if err != nil {
			return collapsed, cached
		}
		if len(enc) >= 32 {
			hash := crypto.Keccak256(enc)
			db.InsertNode(types.BytesToHash(hash), enc)
			hn := refNode(hash)
			cached.flags.hash = hn
			cached.flags.dirty = false
			return hn, cached
		}
		return collapsed, cached

	case *branchNode:
		collapsed := n.copy()
		cached := n.copy()

		for i := 0; i < 16; i++ {
			if n.Children[i] != nil {
				childH, childC := sealAndStore(h, n.Children[i], db)
				collapsed.Children[i] = childH
				cached.Children[i] = childC
			}
		}

		enc, err := encodeNode(collapsed)
		if err != nil {
			return collapsed, cached
		}
		if len(enc) >= 32 {
			hash := crypto.Keccak256(enc)
			db.InsertNode(types.BytesToHash(hash), enc)
			hn := refNode(hash)
			cached.flags.hash = hn
			cached.flags.dirty = false
			return hn, cached
		}
		return collapsed, cached
	}

	return n, n
}

// ResolveTrie creates a trie that can resolve refNode references from
// the node database. This enables loading tries from persistent storage.
type ResolvableTrie struct {
	Trie
	db *NodeDatabase
}

// NewResolvableTrie creates a trie backed by the given node database.
// If root is the empty root hash, returns an empty trie.
func NewResolvableTrie(root types.Hash, db *NodeDatabase) (*ResolvableTrie, error) {
	t := &ResolvableTrie{
		db: db,
	}
	if root == emptyRoot || root == (types.Hash{}) {
		return t, nil
	}

	// Load root node from database.
	rootNode, err := t.resolveHash(refNode(root[:]))
	if err != nil {
		return nil, err
	}
	t.root = rootNode
	return t, nil
}

// Get retrieves a value from the trie, resolving hash nodes as needed.
func (t *ResolvableTrie) Get(key []byte) ([]byte, error) {
	value, found := t.resolveGet(t.root, keyToNibbles(key), 0)
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

func (t *ResolvableTrie) resolveGet(n node, key []byte, pos int) ([]byte, bool) {
	switch n := n.(type) {
	case nil:
		return nil, false
	case leafValue:
		return []byte(n), true
	case *pathNode:
		if len(key)-pos < len(n.Key) || !equalNibbles(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, false
		}
		return t.resolveGet(n.Val, key, pos+len(n.Key))
	case *branchNode:
		if pos >= len(key) {
			return t.resolveGet(n.Children[16], key, pos)
		}
		return t.resolveGet(n.Children[key[pos]], key, pos+1)
	case refNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, false
		}
		return t.resolveGet(resolved, key, pos)
	default:
		return nil, false
	}
}

// resolveHash loads a node from the database by its hash.
func (t *ResolvableTrie) resolveHash(hash refNode) (node, error) {
	h := types.BytesToHash(hash)
	data, err := t.db.Node(h)
	if err != nil {
		return nil, err
	}
	return decodeNode(hash, data)
}

// Put inserts a key-value pair, resolving hash nodes as needed.
func (t *ResolvableTrie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Trie.Delete(key)
	}
	k := keyToNibbles(key)
	n, err := t.insertResolved(t.root, nil, k, leafValue(value))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *ResolvableTrie) insertResolved(n node, prefix, key []byte, value node) (node, error) {
	if hn, ok := n.(refNode); ok {
		resolved, err := t.resolveHash(hn)
		if err != nil {
			return nil, err
		}
		return t.insertResolved(resolved, prefix, key, value)
	}
	return t.Trie.insert(n, prefix, key, value)
}

// Hash computes the root hash.
func (t *ResolvableTrie) Hash() types.Hash {
	return t.Trie.Hash()
}

// Commit stores all dirty nodes to the database and returns the root hash.
func (t *ResolvableTrie) Commit() (types.Hash, error) {
	return CommitTrie(&t.Trie, t.db)
}
