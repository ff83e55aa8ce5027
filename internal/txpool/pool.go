// Package txpool holds transactions waiting to be included in a block:
// a pending set ready for the sender's next nonce, and a queued set
// sitting behind a nonce gap. Built on a mutex-guarded map in the shape
// of a classic mempool (hex-keyed, Add/Remove/Count), generalized from
// a single id-keyed map to (sender, nonce) indexing.
package txpool

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dstn-labs/dstn/internal/core"
)

// ErrDuplicateNonce is returned when an insert collides with an
// existing (sender, nonce) pair already held by the pool.
var ErrDuplicateNonce = fmt.Errorf("txpool: duplicate (sender, nonce)")

// ErrPoolFull is returned when sender or global bounds are exceeded.
var ErrPoolFull = fmt.Errorf("txpool: pool is full")

// MaxPerSender and MaxTotal bound the pool; eviction when full is
// oldest-first among the queued set.
const (
	MaxPerSender = 64
	MaxTotal     = 5000
)

type entry struct {
	tx       *core.Transaction
	sender   common.Address
	hash     common.Hash
	inserted uint64 // insertion sequence, for tie-breaking drain order
}

// Pool is the transaction pool. Not safe to share across processes;
// safe for concurrent callers within one.
type Pool struct {
	mu sync.Mutex

	byHash map[common.Hash]*entry
	pool   map[common.Address]map[uint64]*entry // sender -> nonce -> entry
	seq    uint64
	total  int

	// currentNonce reports the state-manager nonce for a sender, used
	// to tell the pending chain from the queued (gapped) set when
	// draining and when choosing a transaction to evict.
	currentNonce func(common.Address) uint64
}

// New returns an empty pool. currentNonce is consulted on every drain,
// and on an insert that needs eviction, to classify pending vs. queued.
func New(currentNonce func(common.Address) uint64) *Pool {
	return &Pool{
		byHash:       make(map[common.Hash]*entry),
		pool:         make(map[common.Address]map[uint64]*entry),
		currentNonce: currentNonce,
	}
}

// Add inserts tx from sender, failing with ErrDuplicateNonce if
// (sender, tx.Nonce) is already held, or ErrPoolFull if bounds are
// exceeded and eviction could not make room.
func (p *Pool) Add(tx *core.Transaction, sender common.Address) error {
	hash, err := tx.Hash()
	if err != nil {
		return fmt.Errorf("txpool: hash transaction: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bySender, ok := p.pool[sender]
	if !ok {
		bySender = make(map[uint64]*entry)
		p.pool[sender] = bySender
	}
	if _, exists := bySender[tx.Nonce]; exists {
		return fmt.Errorf("%w: sender %s nonce %d", ErrDuplicateNonce, sender, tx.Nonce)
	}

	if len(bySender) >= MaxPerSender || p.total >= MaxTotal {
		if !p.evictOldestQueued(sender) {
			return ErrPoolFull
		}
	}

	p.seq++
	e := &entry{tx: tx, sender: sender, hash: hash, inserted: p.seq}
	bySender[tx.Nonce] = e
	p.byHash[hash] = e
	p.total++
	return nil
}

// evictOldestQueued drops the oldest-inserted queued (gapped) tx to
// make room for a new insert: among forSender's own txs when forSender
// is at MaxPerSender, otherwise anywhere in the pool. Returns false if
// nothing was evictable (the candidates are entirely pending work).
func (p *Pool) evictOldestQueued(forSender common.Address) bool {
	var oldest *entry
	senderFull := len(p.pool[forSender]) >= MaxPerSender
	for sender, bySender := range p.pool {
		if senderFull && sender != forSender {
			continue
		}
		base := p.currentNonce(sender)
		for nonce, e := range bySender {
			if nonce <= base {
				continue // pending, not queued
			}
			if !p.isPendingChain(sender, base, nonce) {
				if oldest == nil || e.inserted < oldest.inserted {
					oldest = e
				}
			}
		}
	}
	if oldest == nil {
		return false
	}
	delete(p.pool[oldest.sender], oldest.tx.Nonce)
	delete(p.byHash, oldest.hash)
	p.total--
	return true
}

// isPendingChain reports whether nonce is reachable from base via a
// gap-free run of nonces already present for sender.
func (p *Pool) isPendingChain(sender common.Address, base, nonce uint64) bool {
	bySender := p.pool[sender]
	for n := base; n < nonce; n++ {
		if _, ok := bySender[n]; !ok {
			return false
		}
	}
	return true
}

// DrainPending returns up to max pending transactions — those whose
// nonce continues a gap-free chain from the sender's current state
// nonce — in ascending (sender, nonce) order, tie-broken by insertion
// order. Draining does not remove the transactions; callers call
// Remove for each one once it is durably included.
func (p *Pool) DrainPending(max int) []*core.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pending []*entry
	for sender, bySender := range p.pool {
		base := p.currentNonce(sender)
		for n := base; ; n++ {
			e, ok := bySender[n]
			if !ok {
				break
			}
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].sender != pending[j].sender {
			return hex.EncodeToString(pending[i].sender[:]) < hex.EncodeToString(pending[j].sender[:])
		}
		if pending[i].tx.Nonce != pending[j].tx.Nonce {
			return pending[i].tx.Nonce < pending[j].tx.Nonce
		}
		return pending[i].inserted < pending[j].inserted
	})
	if max > 0 && len(pending) > max {
		pending = pending[:max]
	}
	out := make([]*core.Transaction, len(pending))
	for i, e := range pending {
		out[i] = e.tx
	}
	return out
}

// Remove drops a transaction from the pool by hash; a no-op if absent.
func (p *Pool) Remove(hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	delete(p.pool[e.sender], e.tx.Nonce)
	p.total--
}

// Count returns the number of transactions currently held, pending and
// queued combined.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
