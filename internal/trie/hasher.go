package trie

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

var errInvalidNode = errors.New("trie: invalid encoded node")

// hashData returns Keccak-256(data), the hash function specified for
// both the MPT's node addressing and the block/tx/receipt roots.
func hashData(data []byte) [32]byte {
	return crypto.Keccak256Hash(data)
}

// EmptyRoot is the root hash of the trie containing no key-value pairs:
// Keccak-256(RLP("")).
var EmptyRoot = hashData(emptyStringRLP)
