// Package blockstore persists blocks and receipts in the opaque
// byte-key/byte-value backend, indexed by number and by hash with an
// append-only tip pointer. Built in the kv package's constructor
// pattern.
package blockstore

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/dstn-labs/dstn/internal/core"
	"github.com/dstn-labs/dstn/internal/kv"
)

var tipKey = []byte("meta:tip")

func numberKey(n uint64) []byte {
	k := make([]byte, 0, 4+8)
	k = append(k, "b:n:"...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return append(k, buf[:]...)
}

func hashKey(h common.Hash) []byte {
	k := make([]byte, 0, 4+32)
	k = append(k, "b:h:"...)
	return append(k, h[:]...)
}

func receiptKey(txHash common.Hash) []byte {
	k := make([]byte, 0, 2+32)
	k = append(k, "r:"...)
	return append(k, txHash[:]...)
}

func receiptIndexKey(blockHash common.Hash, index uint64) []byte {
	k := make([]byte, 0, 2+32+8)
	k = append(k, "r:"...)
	k = append(k, blockHash[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return append(append(k, ':'), buf[:]...)
}

// Store is the append-only block/receipt index.
type Store struct {
	kv kv.Store
}

// New wraps kv as the block store's backend.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// rlpBlock mirrors core.Block so RLP can see concrete field types
// (core.Block's Transactions are *core.Transaction pointers, which the
// rlp package handles, but keeping a package-local wire struct avoids
// coupling the store's encoding to core's in-memory method set).
type rlpBlock struct {
	Header       core.Header
	Transactions []*core.Transaction
}

// Save persists block and its receipts in one atomic batch: the block
// under both its number and hash index, each receipt under its tx hash
// and under (blockHash, index), and advances the tip pointer.
func (s *Store) Save(block *core.Block, receipts []*core.Receipt) error {
	hash, err := block.Hash()
	if err != nil {
		return fmt.Errorf("blockstore: hash block: %w", err)
	}
	enc, err := rlp.EncodeToBytes(&rlpBlock{Header: block.Header, Transactions: block.Transactions})
	if err != nil {
		return fmt.Errorf("blockstore: encode block: %w", err)
	}

	batch := s.kv.NewBatch()
	batch.Put(numberKey(block.Header.Number), hash[:])
	batch.Put(hashKey(hash), enc)

	for i, r := range receipts {
		renc, err := r.EncodeFull()
		if err != nil {
			return fmt.Errorf("blockstore: encode receipt %d: %w", i, err)
		}
		batch.Put(receiptKey(r.TxHash), renc)
		batch.Put(receiptIndexKey(hash, uint64(i)), r.TxHash[:])
	}

	var tip [8]byte
	binary.BigEndian.PutUint64(tip[:], block.Header.Number)
	batch.Put(tipKey, tip[:])

	if err := batch.Write(); err != nil {
		return fmt.Errorf("blockstore: write batch: %w", err)
	}
	return nil
}

func decodeBlock(enc []byte) (*core.Block, error) {
	var rb rlpBlock
	if err := rlp.DecodeBytes(enc, &rb); err != nil {
		return nil, err
	}
	return &core.Block{Header: rb.Header, Transactions: rb.Transactions}, nil
}

// FindByNumber returns the block at n, or ok=false if none exists.
func (s *Store) FindByNumber(n uint64) (*core.Block, bool, error) {
	hashBytes, err := s.kv.Get(numberKey(n))
	if err == kv.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: lookup number %d: %w", n, err)
	}
	var hash common.Hash
	copy(hash[:], hashBytes)
	block, ok, err := s.FindByHash(hash)
	return block, ok, err
}

// FindByHash returns the block with the given hash, or ok=false if
// none exists.
func (s *Store) FindByHash(h common.Hash) (*core.Block, bool, error) {
	enc, err := s.kv.Get(hashKey(h))
	if err == kv.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: lookup hash %s: %w", h, err)
	}
	block, err := decodeBlock(enc)
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: decode block %s: %w", h, err)
	}
	return block, true, nil
}

// Latest returns the highest committed block, or ok=false if the store
// is empty (no genesis persisted yet). Satisfies core.LatestBlock.
func (s *Store) Latest() (*core.Block, bool, error) {
	tipBytes, err := s.kv.Get(tipKey)
	if err == kv.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: read tip: %w", err)
	}
	tip := binary.BigEndian.Uint64(tipBytes)
	return s.FindByNumber(tip)
}

// Count returns the number of blocks persisted (latest number + 1), or
// 0 if the store is empty.
func (s *Store) Count() (uint64, error) {
	_, ok, err := s.Latest()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	tipBytes, err := s.kv.Get(tipKey)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tipBytes) + 1, nil
}

// GetReceipt returns the receipt committed for txHash, including the
// position/addressing fields the receipt trie commitment omits.
func (s *Store) GetReceipt(txHash common.Hash) (*core.Receipt, bool, error) {
	enc, err := s.kv.Get(receiptKey(txHash))
	if err == kv.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: lookup receipt %s: %w", txHash, err)
	}
	receipt, err := core.DecodeFullReceipt(enc)
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: decode receipt %s: %w", txHash, err)
	}
	return receipt, true, nil
}
