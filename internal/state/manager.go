// Package state implements the account state manager: a committed MPT
// snapshot plus a per-block write-through journal overlay. Replaces a
// UTXO-set StateManager with the account-balance/nonce engine an
// account-based chain needs instead.
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/account"
	"github.com/dstn-labs/dstn/internal/kv"
	"github.com/dstn-labs/dstn/internal/trie"
)

// ErrInsufficientBalance is returned by SubBalance when an address's
// journaled balance is lower than the requested deduction.
var ErrInsufficientBalance = fmt.Errorf("state: insufficient balance")

// Manager is the single state-tree session the execution pipeline reads
// and writes through for one block at a time. It is not safe for
// concurrent use by multiple goroutines; the driver serializes block
// production so a mutex would only add overhead here.
type Manager struct {
	db            *trie.Database
	store         kv.Store
	committedRoot [32]byte

	trie    *trie.Trie
	journal map[common.Address]*account.Account
	touched map[common.Address]struct{}
	inBlock bool
}

// New opens the state manager against store, reopening the committed
// trie at root (trie.EmptyRoot for a brand-new chain).
func New(store kv.Store, root [32]byte) (*Manager, error) {
	db := trie.NewDatabase(store)
	account.SetEmptyTrieRoot(trie.EmptyRoot)
	t, err := trie.NewAt(root[:], db)
	if err != nil {
		return nil, fmt.Errorf("state: reopen trie at %x: %w", root, err)
	}
	return &Manager{
		db:            db,
		store:         store,
		committedRoot: root,
		trie:          t,
		journal:       make(map[common.Address]*account.Account),
		touched:       make(map[common.Address]struct{}),
	}, nil
}

// Root returns the last committed root (not any speculative root a
// live journal may imply).
func (m *Manager) Root() [32]byte {
	return m.committedRoot
}

// accountKey is where an account is stored in the trie: Keccak-256 of
// its 20-byte address.
func accountKey(addr common.Address) []byte {
	return crypto.Keccak256(addr[:])
}

// GetAccount returns the journal's pending value for addr if touched
// this block, otherwise the committed account, otherwise a fresh empty
// account. The returned value is never nil and is safe to mutate via
// SetAccount (it is already a private copy).
func (m *Manager) GetAccount(addr common.Address) (*account.Account, error) {
	if a, ok := m.journal[addr]; ok {
		return a, nil
	}
	enc, err := m.trie.Get(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("state: get account %s: %w", addr, err)
	}
	if len(enc) == 0 {
		return account.New(), nil
	}
	return account.Decode(enc)
}

// SetAccount overwrites addr's journaled value, marking it touched.
func (m *Manager) SetAccount(addr common.Address, a *account.Account) {
	m.journal[addr] = a
	m.touched[addr] = struct{}{}
}

// AddBalance credits addr's journaled balance by delta.
func (m *Manager) AddBalance(addr common.Address, delta *uint256.Int) error {
	a, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	a.Balance = new(uint256.Int).Add(a.Balance, delta)
	m.SetAccount(addr, a)
	return nil
}

// SubBalance debits addr's journaled balance by delta, failing with
// ErrInsufficientBalance rather than underflowing.
func (m *Manager) SubBalance(addr common.Address, delta *uint256.Int) error {
	a, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if a.Balance.Lt(delta) {
		return fmt.Errorf("%w: address %s has %s, needs %s", ErrInsufficientBalance, addr, a.Balance, delta)
	}
	a.Balance = new(uint256.Int).Sub(a.Balance, delta)
	m.SetAccount(addr, a)
	return nil
}

// IncrementNonce bumps addr's journaled nonce by one and returns the
// nonce the caller should use for this transaction — the value BEFORE
// the increment. Contract-creation addresses must derive from this
// pre-increment value, never by subtracting 1 from the post-increment
// nonce (see DESIGN.md's nonce-1 resolution).
func (m *Manager) IncrementNonce(addr common.Address) (uint64, error) {
	a, err := m.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	prev := a.Nonce
	a.Nonce++
	m.SetAccount(addr, a)
	return prev, nil
}

// StartBlock opens a new journal frame. Calling StartBlock while a
// frame is already open indicates the driver failed to commit or roll
// back the previous block; the stale frame is discarded and logged
// rather than silently merged into the new one.
func (m *Manager) StartBlock() {
	if m.inBlock {
		log.Warn("StartBlock called with a frame already open; discarding it")
	}
	m.journal = make(map[common.Address]*account.Account)
	m.touched = make(map[common.Address]struct{})
	m.inBlock = true
}

// CommitBlock encodes every touched account, writes it into the MPT at
// Keccak-256(addr), persists the resulting nodes in one batched write,
// advances the committed root, and clears the journal.
func (m *Manager) CommitBlock() ([32]byte, error) {
	for addr := range m.touched {
		a := m.journal[addr]
		enc, err := account.Encode(a)
		if err != nil {
			return [32]byte{}, fmt.Errorf("state: encode account %s: %w", addr, err)
		}
		if err := m.trie.Put(accountKey(addr), enc); err != nil {
			return [32]byte{}, fmt.Errorf("state: put account %s: %w", addr, err)
		}
	}
	batch := m.store.NewBatch()
	root, err := m.trie.Commit(batch)
	if err != nil {
		return [32]byte{}, fmt.Errorf("state: commit trie: %w", err)
	}
	if err := batch.Write(); err != nil {
		return [32]byte{}, fmt.Errorf("state: write batch: %w", err)
	}
	m.committedRoot = root
	m.journal = make(map[common.Address]*account.Account)
	m.touched = make(map[common.Address]struct{})
	m.inBlock = false
	return root, nil
}

// RollbackBlock discards the open journal frame. CommitBlock is the
// only place that mutates the live trie overlay, so an uncommitted
// frame never touched it and clearing the journal alone restores the
// pre-StartBlock state.
func (m *Manager) RollbackBlock() {
	m.journal = make(map[common.Address]*account.Account)
	m.touched = make(map[common.Address]struct{})
	m.inBlock = false
}

// StagedRoot computes what CommitBlock's resulting root would be,
// without mutating the live trie or persisting anything, by replaying
// the journal's writes into a throwaway trie opened at the same
// committed root.
func (m *Manager) StagedRoot() ([32]byte, error) {
	scratch, err := trie.NewAt(m.committedRoot[:], m.db)
	if err != nil {
		return [32]byte{}, err
	}
	for addr := range m.touched {
		a := m.journal[addr]
		enc, err := account.Encode(a)
		if err != nil {
			return [32]byte{}, err
		}
		if err := scratch.Put(accountKey(addr), enc); err != nil {
			return [32]byte{}, err
		}
	}
	return scratch.Root()
}
