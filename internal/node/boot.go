// Package node wires the engine, state manager, block store, tx pool
// and config loaders together into a bootable process and exposes the
// synchronous query surface a running chain needs: block/account/
// receipt lookups and transaction submission. Built as a sequential
// component construction chain with structured progress logging and
// early fmt.Errorf-wrapped returns on failure.
package node

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dstn-labs/dstn/internal/account"
	"github.com/dstn-labs/dstn/internal/blockstore"
	"github.com/dstn-labs/dstn/internal/config"
	"github.com/dstn-labs/dstn/internal/consensus"
	"github.com/dstn-labs/dstn/internal/core"
	"github.com/dstn-labs/dstn/internal/kv"
	"github.com/dstn-labs/dstn/internal/state"
	"github.com/dstn-labs/dstn/internal/txpool"
)

// ChainStats is the summary the query surface's getChainStats()
// returns.
type ChainStats struct {
	LatestNumber uint64
	LatestHash   common.Hash
	StateRoot    common.Hash
	BlockCount   uint64
}

// Node owns every long-lived component one running process needs:
// the durable KV backend, state manager, block store, tx pool,
// validator set, assembler and slot driver.
type Node struct {
	store   kv.Store
	mgr     *state.Manager
	blocks  *blockstore.Store
	pool    *txpool.Pool
	engine  *consensus.Engine
	chainID uint64
}

// Boot performs the second phase of a two-phase startup; the first,
// opening the KV backend, is done by the caller. Boot inspects whatever
// block store state already exists in store, then either creates a
// fresh genesis block (first run) or reopens the state trie at the
// persisted tip's stateRoot (restart).
func Boot(store kv.Store, attester consensus.Attester) (*Node, error) {
	log.Info("opening block store")
	blocks := blockstore.New(store)

	latest, hasGenesis, err := blocks.Latest()
	if err != nil {
		return nil, fmt.Errorf("node: read latest block: %w", err)
	}

	genesisCfg, err := config.LoadGenesis()
	if err != nil {
		return nil, fmt.Errorf("node: load genesis.json: %w", err)
	}
	validatorAddrs, err := config.LoadValidatorAddresses()
	if err != nil {
		return nil, fmt.Errorf("node: load validator set: %w", err)
	}

	var root [32]byte
	if hasGenesis {
		log.Info("existing chain found, reopening state trie at its stateRoot", "height", latest.Header.Number)
		root = latest.Header.StateRoot
	} else {
		log.Info("no existing chain, state trie starts empty")
	}

	mgr, err := state.New(store, root)
	if err != nil {
		return nil, fmt.Errorf("node: open state manager: %w", err)
	}

	pool := txpool.New(func(addr common.Address) uint64 {
		acct, err := mgr.GetAccount(addr)
		if err != nil {
			return 0
		}
		return acct.Nonce
	})

	validators := make([]consensus.Validator, len(validatorAddrs))
	for i, addr := range validatorAddrs {
		validators[i] = consensus.Validator{Address: addr, Active: true}
	}
	validatorSet := consensus.NewValidatorSet(validators)

	assembler := core.NewAssembler(blocks, pool, mgr, genesisCfg.ChainID)

	if !hasGenesis {
		log.Info("assembling genesis block from genesis.json alloc")
		genesisBlock, receipts, err := assembler.BuildGenesis(uint64(genesisCfg.Timestamp.UnixMilli()), genesisCfg.Proposer, genesisCfg.AllocBalances())
		if err != nil {
			return nil, fmt.Errorf("node: build genesis block: %w", err)
		}
		if _, err := mgr.CommitBlock(); err != nil {
			return nil, fmt.Errorf("node: commit genesis state: %w", err)
		}
		if err := blocks.Save(genesisBlock, receipts); err != nil {
			return nil, fmt.Errorf("node: persist genesis block: %w", err)
		}
		log.Info("genesis block persisted", "proposer", genesisCfg.Proposer)
	}

	engine := consensus.NewEngine(validatorSet, assembler, attester, mgr, blocks, pool)

	return &Node{
		store:   store,
		mgr:     mgr,
		blocks:  blocks,
		pool:    pool,
		engine:  engine,
		chainID: genesisCfg.ChainID,
	}, nil
}

// Start resumes slot scheduling at the current wall-clock slot.
func (n *Node) Start() error {
	return n.engine.Start()
}

// Stop drains the slot driver's pending timer.
func (n *Node) Stop() {
	n.engine.Stop()
}

// Close releases the underlying KV backend. Call after Stop.
func (n *Node) Close() error {
	return n.store.Close()
}

// GetBlockByNumber looks up a block by its height.
func (n *Node) GetBlockByNumber(number uint64) (*core.Block, bool, error) {
	return n.blocks.FindByNumber(number)
}

// GetBlockByHash looks up a block by its hash.
func (n *Node) GetBlockByHash(hash common.Hash) (*core.Block, bool, error) {
	return n.blocks.FindByHash(hash)
}

// GetLatestBlock returns the chain tip.
func (n *Node) GetLatestBlock() (*core.Block, bool, error) {
	return n.blocks.Latest()
}

// GetChainStats summarizes the chain's current height, tip and size.
func (n *Node) GetChainStats() (*ChainStats, error) {
	latest, ok, err := n.blocks.Latest()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ChainStats{}, nil
	}
	hash, err := latest.Hash()
	if err != nil {
		return nil, err
	}
	count, err := n.blocks.Count()
	if err != nil {
		return nil, err
	}
	return &ChainStats{
		LatestNumber: latest.Header.Number,
		LatestHash:   hash,
		StateRoot:    latest.Header.StateRoot,
		BlockCount:   count,
	}, nil
}

// GetAccount returns the committed account state for addr.
func (n *Node) GetAccount(addr common.Address) (*account.Account, error) {
	return n.mgr.GetAccount(addr)
}

// GetReceipt looks up a transaction's receipt by transaction hash.
func (n *Node) GetReceipt(txHash common.Hash) (*core.Receipt, bool, error) {
	return n.blocks.GetReceipt(txHash)
}

// SubmitTransaction decodes an RLP-encoded signed transaction and
// admits it to the pool, recovering the sender for pool bookkeeping.
func (n *Node) SubmitTransaction(encoded []byte) (common.Hash, error) {
	tx, err := core.DecodeTransaction(encoded)
	if err != nil {
		return common.Hash{}, fmt.Errorf("node: decode transaction: %w", err)
	}
	sender, err := tx.Sender(n.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("node: recover sender: %w", err)
	}
	if err := n.pool.Add(tx, sender); err != nil {
		return common.Hash{}, fmt.Errorf("node: admit transaction: %w", err)
	}
	return tx.Hash()
}
