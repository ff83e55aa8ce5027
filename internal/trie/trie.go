// Package trie implements a Merkle Patricia Trie over a pluggable
// byte-key/byte-value persistent backend: extension,
// branch and leaf nodes with hex-prefix encoded path nibbles, nodes
// under 32 bytes after RLP inlined into their parent, larger nodes
// addressed by Keccak-256(RLP(node)) in the backend.
package trie

import (
	"bytes"

	"github.com/dstn-labs/dstn/internal/kv"
)

// Trie is a single MPT session: Get/Put/Delete mutate only the
// in-memory node tree (the "overlay"); Commit is what makes writes
// durable and advances the addressable root hash.
type Trie struct {
	root node
	db   *Database
}

// New returns the empty trie, backed by db.
func New(db *Database) *Trie {
	return &Trie{db: db}
}

// NewAt reopens a previously committed trie at root without copying any
// state: root is kept as an unresolved hashNode and nodes are paged in
// from db lazily as Get/Put/Delete touch them.
func NewAt(root []byte, db *Database) (*Trie, error) {
	t := &Trie{db: db}
	if len(root) == 0 || bytes.Equal(root, EmptyRoot[:]) {
		return t, nil
	}
	t.root = hashNode(root)
	return t, nil
}

// resolve replaces a hashNode reference with its decoded contents,
// loading from the backend if necessary. Non-hash nodes are returned
// unchanged.
func (t *Trie) resolve(n node) (node, error) {
	if hn, ok := n.(hashNode); ok {
		return t.db.node(hn)
	}
	return n, nil
}

// Get returns the value stored for key, or nil if key is absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	value, newroot, err := t.get(t.root, keyToNibbles(key), 0)
	if err != nil {
		return nil, err
	}
	t.root = newroot
	return value, nil
}

func (t *Trie) get(n node, key []byte, pos int) ([]byte, node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil, nil
	case valueNode:
		return []byte(n), n, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytes.Equal(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, n, nil
		}
		value, newval, err := t.get(n.Val, key, pos+len(n.Key))
		if err != nil {
			return nil, n, err
		}
		n.Val = newval
		return value, n, nil
	case *fullNode:
		child := n.Children[key[pos]]
		value, newchild, err := t.get(child, key, pos+1)
		if err != nil {
			return nil, n, err
		}
		n.Children[key[pos]] = newchild
		return value, n, nil
	case hashNode:
		resolved, err := t.db.node(n)
		if err != nil {
			return nil, n, err
		}
		return t.get(resolved, key, pos)
	default:
		return nil, nil, errInvalidNode
	}
}

// Put inserts or overwrites the value for key.
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	_, newroot, err := t.insert(t.root, nil, keyToNibbles(key), valueNode(value))
	if err != nil {
		return err
	}
	t.root = newroot
	return nil
}

func (t *Trie) insert(n node, prefix, key []byte, value node) (bool, node, error) {
	if len(key) == 0 {
		if vn, ok := n.(valueNode); ok {
			return !bytes.Equal(vn, value.(valueNode)), value, nil
		}
		return true, value, nil
	}
	switch n := n.(type) {
	case nil:
		return true, &shortNode{Key: append([]byte(nil), key...), Val: value}, nil
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen == len(n.Key) {
			dirty, nn, err := t.insert(n.Val, append(prefix, key[:matchlen]...), key[matchlen:], value)
			if err != nil {
				return false, n, err
			}
			return dirty, &shortNode{Key: n.Key, Val: nn}, nil
		}
		branch := &fullNode{}
		var err error
		_, branch.Children[n.Key[matchlen]], err = t.insert(nil, append(prefix, n.Key[:matchlen+1]...), n.Key[matchlen+1:], n.Val)
		if err != nil {
			return false, nil, err
		}
		_, branch.Children[key[matchlen]], err = t.insert(nil, append(prefix, key[:matchlen+1]...), key[matchlen+1:], value)
		if err != nil {
			return false, nil, err
		}
		if matchlen == 0 {
			return true, branch, nil
		}
		return true, &shortNode{Key: key[:matchlen], Val: branch}, nil
	case *fullNode:
		dirty, nn, err := t.insert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if err != nil {
			return false, n, err
		}
		n.Children[key[0]] = nn
		return dirty, n, nil
	case hashNode:
		resolved, err := t.db.node(n)
		if err != nil {
			return false, n, err
		}
		return t.insert(resolved, prefix, key, value)
	default:
		return false, nil, errInvalidNode
	}
}

// Delete removes key from the trie, if present.
func (t *Trie) Delete(key []byte) error {
	_, newroot, err := t.delete(t.root, nil, keyToNibbles(key))
	if err != nil {
		return err
	}
	t.root = newroot
	return nil
}

func (t *Trie) delete(n node, prefix, key []byte) (bool, node, error) {
	switch n := n.(type) {
	case nil:
		return false, nil, nil
	case valueNode:
		return true, nil, nil
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return false, n, nil
		}
		if matchlen == len(key) {
			return true, nil, nil
		}
		dirty, child, err := t.delete(n.Val, append(prefix, key[:len(n.Key)]...), key[len(n.Key):])
		if err != nil || !dirty {
			return false, n, err
		}
		switch child := child.(type) {
		case *shortNode:
			return true, &shortNode{Key: concatNibbles(n.Key, child.Key), Val: child.Val}, nil
		default:
			return true, &shortNode{Key: n.Key, Val: child}, nil
		}
	case *fullNode:
		dirty, nn, err := t.delete(n.Children[key[0]], append(prefix, key[0]), key[1:])
		if err != nil || !dirty {
			return false, n, err
		}
		n.Children[key[0]] = nn

		pos := -1
		for i, c := range n.Children {
			if c != nil {
				if pos == -1 {
					pos = i
				} else {
					pos = -2
					break
				}
			}
		}
		if pos >= 0 {
			if pos != 16 {
				cnode, err := t.resolve(n.Children[pos])
				if err != nil {
					return false, n, err
				}
				if sn, ok := cnode.(*shortNode); ok {
					k := append([]byte{byte(pos)}, sn.Key...)
					return true, &shortNode{Key: k, Val: sn.Val}, nil
				}
			}
			return true, &shortNode{Key: []byte{byte(pos)}, Val: n.Children[pos]}, nil
		}
		return true, n, nil
	case hashNode:
		resolved, err := t.db.node(n)
		if err != nil {
			return false, n, err
		}
		return t.delete(resolved, prefix, key)
	default:
		return false, nil, errInvalidNode
	}
}

func concatNibbles(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// Root returns the current root hash of the trie without committing
// anything to the backend. If the root is still an unresolved hashNode
// (the trie was reopened via NewAt but nothing has been touched since),
// that hash already IS the root and no re-encoding is needed.
func (t *Trie) Root() ([32]byte, error) {
	if t.root == nil {
		return EmptyRoot, nil
	}
	if hn, ok := t.root.(hashNode); ok {
		var h [32]byte
		copy(h[:], hn)
		return h, nil
	}
	enc, err := encodeNodeRaw(t.root)
	if err != nil {
		return [32]byte{}, err
	}
	return hashData(enc), nil
}

// commitNode walks the dirty subtree, replacing resolvable nodes with
// hashNode references and queuing their encodings into batch.
func (t *Trie) commitNode(n node, batch kv.Batch) (node, error) {
	switch n := n.(type) {
	case nil, valueNode, hashNode:
		return n, nil
	case *shortNode:
		child, err := t.commitNode(n.Val, batch)
		if err != nil {
			return nil, err
		}
		cp := &shortNode{Key: n.Key, Val: child}
		return t.store(cp, batch)
	case *fullNode:
		cp := &fullNode{}
		for i := 0; i < 17; i++ {
			child, err := t.commitNode(n.Children[i], batch)
			if err != nil {
				return nil, err
			}
			cp.Children[i] = child
		}
		return t.store(cp, batch)
	default:
		return nil, errInvalidNode
	}
}

// store encodes n, and if the encoding is 32 bytes or larger, persists
// it keyed by its hash and returns a hashNode in its place; otherwise n
// is left inline for its parent to encode directly.
func (t *Trie) store(n node, batch kv.Batch) (node, error) {
	enc, err := encodeNodeRaw(n)
	if err != nil {
		return nil, err
	}
	if len(enc) < 32 {
		return n, nil
	}
	hash := hashData(enc)
	batch.Put(nodeKey(hash[:]), enc)
	return hashNode(hash[:]), nil
}

// Commit flushes every node touched since the trie was opened into
// batch and returns the new root hash. The caller is responsible for
// calling batch.Write(); Commit does not write the batch itself so the
// state manager can fold the trie's writes into a larger atomic batch
// alongside the account journal.
func (t *Trie) Commit(batch kv.Batch) ([32]byte, error) {
	if t.root == nil {
		return EmptyRoot, nil
	}
	newroot, err := t.commitNode(t.root, batch)
	if err != nil {
		return [32]byte{}, err
	}
	t.root = newroot
	if hn, ok := newroot.(hashNode); ok {
		var h [32]byte
		copy(h[:], hn)
		return h, nil
	}
	// Root itself was small enough to stay inline: its hash is still
	// well-defined, it's just not separately persisted.
	enc, err := encodeNodeRaw(newroot)
	if err != nil {
		return [32]byte{}, err
	}
	return hashData(enc), nil
}
