// Package account defines the Ethereum-style Account record stored in
// the state trie and its RLP codec.
package account

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// EmptyCodeHash is Keccak-256 of the empty byte string, the codeHash
// sentinel every externally-owned account keeps forever.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// emptyTrieRoot holds trie.EmptyRoot once state.New has injected it via
// SetEmptyTrieRoot, so this package does not import internal/trie and
// the account codec can be tested without a trie.Database.
var emptyTrieRoot [32]byte

// SetEmptyTrieRoot injects trie.EmptyRoot; state.New calls it each time
// a state manager is opened, keeping this package trie-agnostic.
func SetEmptyTrieRoot(root [32]byte) {
	emptyTrieRoot = root
}

// EmptyTrieRoot returns the sentinel storageRoot for an account that has
// never written to its own storage trie.
func EmptyTrieRoot() [32]byte {
	return emptyTrieRoot
}

// Account is the RLP-encoded record the state trie stores at
// Keccak-256(address). A freshly observed address, never written to,
// is the zero value of this struct widened with the two empty
// sentinels for StorageRoot and CodeHash.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot [32]byte
	CodeHash    [32]byte
}

// New returns the account for an address that has never been touched:
// nonce 0, balance 0, both sentinels set.
func New() *Account {
	return &Account{
		Nonce:       0,
		Balance:     uint256.NewInt(0),
		StorageRoot: emptyTrieRoot,
		CodeHash:    EmptyCodeHash,
	}
}

// rlpAccount is the wire shape; *uint256.Int and [32]byte arrays encode
// directly under go-ethereum's rlp package, but we keep a distinct type
// so the in-memory Account can carry convenience methods without
// affecting the encoding.
type rlpAccount struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot [32]byte
	CodeHash    [32]byte
}

// Encode returns the canonical RLP(Account) stored in the trie.
func Encode(a *Account) ([]byte, error) {
	return rlp.EncodeToBytes(&rlpAccount{
		Nonce:       a.Nonce,
		Balance:     a.Balance,
		StorageRoot: a.StorageRoot,
		CodeHash:    a.CodeHash,
	})
}

// Decode parses the RLP form written by Encode.
func Decode(enc []byte) (*Account, error) {
	var r rlpAccount
	if err := rlp.DecodeBytes(enc, &r); err != nil {
		return nil, err
	}
	bal := r.Balance
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	return &Account{
		Nonce:       r.Nonce,
		Balance:     bal,
		StorageRoot: r.StorageRoot,
		CodeHash:    r.CodeHash,
	}, nil
}

// IsEmpty reports whether a is indistinguishable from an account that
// was never touched.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() &&
		a.StorageRoot == emptyTrieRoot && a.CodeHash == EmptyCodeHash
}

// Copy returns a deep copy, since Account is mutated in place by the
// journal overlay and callers must not alias a committed snapshot.
func (a *Account) Copy() *Account {
	return &Account{
		Nonce:       a.Nonce,
		Balance:     new(uint256.Int).Set(a.Balance),
		StorageRoot: a.StorageRoot,
		CodeHash:    a.CodeHash,
	}
}
