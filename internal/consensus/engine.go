package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dstn-labs/dstn/internal/core"
	"github.com/dstn-labs/dstn/internal/state"
)

// SlotMS is the process-wide slot width in milliseconds.
const SlotMS = 12000

// engineState enumerates the driver's lifecycle:
// Uninitialized -> Starting -> Running <-> Stopped.
type engineState int

const (
	stateUninitialized engineState = iota
	stateStarting
	stateRunning
	stateStopped
)

// BlockSaver is the subset of blockstore.Store the engine persists
// committed blocks through and reads genesis/restart state from.
type BlockSaver interface {
	Save(block *core.Block, receipts []*core.Receipt) error
	Latest() (*core.Block, bool, error)
}

// PoolPruner is the subset of txpool.Pool the engine prunes committed
// transactions from, so included transactions don't stay lodged in the
// pool forever.
type PoolPruner interface {
	Remove(hash common.Hash)
}

// Engine is the slot driver: a monotonic one-shot timer anchored at
// genesis time that drives proposer selection, block assembly,
// attestation collection and commit/rollback each slot. Shutdown is a
// stopChan + sync.WaitGroup pair guarding a goroutine-owned select
// loop with structured log progress lines; each wake-up is a one-shot timer
// rescheduled against the next absolute slot boundary rather than a
// fixed-interval ticker, so a late wake-up never drifts the schedule.
type Engine struct {
	mu          sync.Mutex
	state       engineState
	genesisTime uint64 // ms

	validators *ValidatorSet
	assembler  *core.Assembler
	attester   Attester
	mgr        *state.Manager
	store      BlockSaver
	pool       PoolPruner

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine wires together the pieces the slot driver coordinates.
func NewEngine(validators *ValidatorSet, assembler *core.Assembler, attester Attester, mgr *state.Manager, store BlockSaver, pool PoolPruner) *Engine {
	return &Engine{
		validators: validators,
		assembler:  assembler,
		attester:   attester,
		mgr:        mgr,
		store:      store,
		pool:       pool,
		state:      stateUninitialized,
	}
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// currentSlot computes floor((now - genesisTime) / SlotMS).
func currentSlot(now, genesisTime uint64) uint64 {
	if now <= genesisTime {
		return 0
	}
	return (now - genesisTime) / SlotMS
}

// Start transitions Uninitialized/Stopped -> Starting -> Running,
// loading genesisTime from the block store's genesis block and
// scheduling the first wake-up at the next absolute slot boundary.
// Restart recovery falls naturally out of reading block#0's timestamp
// from the durable store rather than caching it in memory.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state == stateRunning {
		e.mu.Unlock()
		return fmt.Errorf("consensus: engine already running")
	}
	e.state = stateStarting
	e.mu.Unlock()

	genesis, ok, err := e.store.Latest()
	if err != nil {
		return fmt.Errorf("consensus: load genesis: %w", err)
	}
	if !ok {
		return fmt.Errorf("consensus: cannot start slot driver before genesis is persisted")
	}
	if genesis.Header.Number != 0 {
		finder, canFind := e.store.(interface {
			FindByNumber(n uint64) (*core.Block, bool, error)
		})
		if canFind {
			block0, found, err := finder.FindByNumber(0)
			if err != nil {
				return fmt.Errorf("consensus: load genesis: %w", err)
			}
			if found {
				genesis = block0
			}
		}
	}

	e.mu.Lock()
	if genesis.Header.Number == 0 {
		e.genesisTime = genesis.Header.Timestamp
	}
	e.stopChan = make(chan struct{})
	e.state = stateRunning
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()
	log.Info("slot driver started")
	return nil
}

// Stop drains the pending timer. A cycle already in flight is allowed
// to finish (commit or rollback); no further slots are scheduled until
// Start is called again.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != stateRunning {
		e.mu.Unlock()
		return
	}
	e.state = stateStopped
	stopChan := e.stopChan
	e.mu.Unlock()

	close(stopChan)
	e.wg.Wait()
	log.Info("slot driver stopped")
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		genesisTime := e.genesisTime
		e.mu.Unlock()

		now := nowMillis()
		slot := currentSlot(now, genesisTime)
		nextBoundary := genesisTime + (slot+1)*SlotMS
		wait := time.Duration(0)
		if nextBoundary > now {
			wait = time.Duration(nextBoundary-now) * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-e.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			e.fireSlot(currentSlot(nowMillis(), genesisTime))
		}
	}
}

// fireSlot runs one production cycle: select proposer and committee,
// assemble a block, collect attestations, then commit or roll back.
// Missed slots (the wall clock having jumped ahead) are never
// retro-produced — run's loop always recomputes against the next
// absolute boundary from the current slot, not from the fired one.
func (e *Engine) fireSlot(slot uint64) {
	proposer, err := e.validators.SelectProposer(slot)
	if err != nil {
		log.Error("select proposer failed", "slot", slot, "err", err)
		return
	}
	committee, err := e.validators.SelectCommittee(slot)
	if err != nil {
		log.Error("select committee failed", "slot", slot, "err", err)
		return
	}

	block, receipts, err := e.assembler.BuildBlock(proposer, nowMillis())
	if err != nil {
		log.Error("build block failed", "slot", slot, "err", err)
		e.mgr.RollbackBlock()
		return
	}

	blockHash, err := block.Hash()
	if err != nil {
		log.Error("hash block failed", "slot", slot, "err", err)
		e.mgr.RollbackBlock()
		return
	}

	atts := CollectAttestations(e.attester, blockHash, slot, committee)
	if !HasSupermajority(atts, len(committee)) {
		log.Warn("insufficient attestations, rolling back", "slot", slot, "got", len(atts), "committee", len(committee))
		e.mgr.RollbackBlock()
		return
	}

	if _, err := e.mgr.CommitBlock(); err != nil {
		log.Error("commit state failed", "slot", slot, "err", err)
		return
	}
	e.pruneCommitted(block.Transactions)

	e.mgr.StartBlock()
	if err := DistributeRewards(e.mgr, proposer, atts); err != nil {
		log.Error("distribute rewards failed", "slot", slot, "err", err)
	}
	if _, err := e.mgr.CommitBlock(); err != nil {
		log.Error("commit reward frame failed", "slot", slot, "err", err)
	}
	if err := e.store.Save(block, receipts); err != nil {
		log.Error("persist block failed", "slot", slot, "err", err)
		return
	}
	log.Info("committed block", "slot", slot, "number", block.Header.Number, "txs", len(block.Transactions), "attestations", len(atts))
}

// pruneCommitted removes every transaction in a just-committed block
// from the pool so it never stays lodged there waiting to be drained
// again or counted against the sender's pool bounds.
func (e *Engine) pruneCommitted(txs []*core.Transaction) {
	if e.pool == nil {
		return
	}
	for _, tx := range txs {
		hash, err := tx.Hash()
		if err != nil {
			log.Error("hash committed transaction for pruning failed", "err", err)
			continue
		}
		e.pool.Remove(hash)
	}
}
