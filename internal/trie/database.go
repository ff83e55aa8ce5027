package trie

import (
	"github.com/dstn-labs/dstn/internal/kv"
)

// nodeKeyPrefix is the "s:" namespace reserved for the MPT
// backend: key = "s:" || 32-byte node hash.
var nodeKeyPrefix = []byte("s:")

func nodeKey(hash []byte) []byte {
	k := make([]byte, 0, len(nodeKeyPrefix)+len(hash))
	k = append(k, nodeKeyPrefix...)
	k = append(k, hash...)
	return k
}

// Database resolves committed trie nodes by hash from the underlying
// persistent store, and batches up newly-hashed nodes for a commit.
type Database struct {
	store kv.Store
}

// NewDatabase wraps store as the MPT's persistent backend.
func NewDatabase(store kv.Store) *Database {
	return &Database{store: store}
}

// node loads and decodes the node stored under hash.
func (db *Database) node(hash []byte) (node, error) {
	enc, err := db.store.Get(nodeKey(hash))
	if err != nil {
		return nil, err
	}
	return decodeNode(enc)
}
