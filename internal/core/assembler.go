package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/kv"
	"github.com/dstn-labs/dstn/internal/state"
	"github.com/dstn-labs/dstn/internal/trie"
	"github.com/dstn-labs/dstn/internal/vm"
)

// ErrNoGenesis is returned by BuildBlock when the block store has no
// latest block to extend (the chain was never initialized).
var ErrNoGenesis = errors.New("core: no genesis block in store")

// MaxTxsPerBlock bounds how many pending transactions one block drains
// from the pool.
const MaxTxsPerBlock = 1000

// LatestBlock is the subset of the block store the assembler needs to
// find its parent, kept as a narrow interface so core does not import
// blockstore (which in turn will import core for the Block type).
type LatestBlock interface {
	Latest() (*Block, bool, error)
}

// TxSource is the subset of txpool.Pool the assembler drains from.
type TxSource interface {
	DrainPending(max int) []*Transaction
}

// Assembler drives one block's worth of execution against a state
// manager and transaction pool.
type Assembler struct {
	store   LatestBlock
	pool    TxSource
	mgr     *state.Manager
	chainID uint64
}

// NewAssembler wires together the block store, tx pool and state
// manager the assembler needs to produce blocks.
func NewAssembler(store LatestBlock, pool TxSource, mgr *state.Manager, chainID uint64) *Assembler {
	return &Assembler{store: store, pool: pool, mgr: mgr, chainID: chainID}
}

// BuildBlock drains pending transactions, executes them against a
// fresh journal frame, and returns the assembled, unsaved, uncommitted
// block. The caller (the consensus driver) decides whether to commit
// the journal and persist the block, or roll back.
func (a *Assembler) BuildBlock(proposer common.Address, timestamp uint64) (*Block, []*Receipt, error) {
	parent, ok, err := a.store.Latest()
	if err != nil {
		return nil, nil, fmt.Errorf("core: read latest block: %w", err)
	}
	if !ok {
		return nil, nil, ErrNoGenesis
	}

	a.mgr.StartBlock()

	txs := a.pool.DrainPending(MaxTxsPerBlock)
	receipts := make([]*Receipt, 0, len(txs))
	var cumulativeGas uint64

	ctx := vm.BlockContext{
		Number:    parent.Header.Number + 1,
		Timestamp: timestamp,
		Proposer:  proposer,
		ChainID:   a.chainID,
	}

	for i, tx := range txs {
		receipt, err := a.executeOne(tx, ctx, uint64(i), &cumulativeGas)
		if err != nil {
			return nil, nil, fmt.Errorf("core: execute tx %d: %w", i, err)
		}
		receipts = append(receipts, receipt)
	}

	txRoot, err := hashList(txs, func(tx *Transaction) ([]byte, error) { return tx.EncodeRLP() })
	if err != nil {
		return nil, nil, fmt.Errorf("core: compute txRoot: %w", err)
	}
	receiptRoot, err := hashList(receipts, func(r *Receipt) ([]byte, error) { return r.EncodeRLP() })
	if err != nil {
		return nil, nil, fmt.Errorf("core: compute receiptRoot: %w", err)
	}
	stateRoot, err := a.mgr.StagedRoot()
	if err != nil {
		return nil, nil, fmt.Errorf("core: compute stateRoot: %w", err)
	}

	parentHash, err := parent.Hash()
	if err != nil {
		return nil, nil, fmt.Errorf("core: hash parent: %w", err)
	}

	header := Header{
		ParentHash:  parentHash,
		StateRoot:   stateRoot,
		TxRoot:      txRoot,
		ReceiptRoot: receiptRoot,
		Number:      ctx.Number,
		Timestamp:   timestamp,
		Proposer:    proposer,
	}
	block := NewBlock(header, txs)
	blockHash, err := block.Hash()
	if err != nil {
		return nil, nil, fmt.Errorf("core: hash block: %w", err)
	}
	for _, r := range receipts {
		r.BlockHash = blockHash
		r.BlockNumber = header.Number
	}
	return block, receipts, nil
}

// BuildGenesis assembles block #0: no parent, a zero parentHash, and
// whatever balances alloc credits inside the first journal frame.
// proposer is the designated genesis proposer (the first key in the
// source genesis.json's alloc object).
func (a *Assembler) BuildGenesis(timestamp uint64, proposer common.Address, alloc map[common.Address]*uint256.Int) (*Block, []*Receipt, error) {
	a.mgr.StartBlock()
	for addr, balance := range alloc {
		if err := a.mgr.AddBalance(addr, balance); err != nil {
			return nil, nil, fmt.Errorf("core: credit genesis alloc for %s: %w", addr, err)
		}
	}
	stateRoot, err := a.mgr.StagedRoot()
	if err != nil {
		return nil, nil, fmt.Errorf("core: compute genesis stateRoot: %w", err)
	}
	txRoot, err := hashList[*Transaction](nil, nil)
	if err != nil {
		return nil, nil, err
	}
	receiptRoot, err := hashList[*Receipt](nil, nil)
	if err != nil {
		return nil, nil, err
	}
	header := Header{
		ParentHash:  ZeroHash,
		StateRoot:   stateRoot,
		TxRoot:      txRoot,
		ReceiptRoot: receiptRoot,
		Number:      0,
		Timestamp:   timestamp,
		Proposer:    proposer,
	}
	return NewBlock(header, nil), nil, nil
}

// executeOne runs one transaction through vm.Execute, folding the
// "intrinsic failure" fallback: even when
// Execute reports a pre-state error (bad nonce, unrecoverable
// signature, insufficient balance for gas), the transaction is still
// included with status=0, intrinsic gas is still charged where the
// account can afford it, and the sender's nonce is still advanced.
func (a *Assembler) executeOne(tx *Transaction, ctx vm.BlockContext, index uint64, cumulativeGas *uint64) (*Receipt, error) {
	result, err := vm.Execute(tx, a.mgr, ctx)
	if err != nil && !errors.Is(err, vm.ErrUnsupportedOperation) {
		result, err = a.forceIntrinsicFailure(tx, ctx)
		if err != nil {
			return nil, err
		}
	}

	*cumulativeGas += result.GasUsed
	receipt := &Receipt{
		Status:            result.Status,
		CumulativeGasUsed: *cumulativeGas,
		LogsBloom:         createBloom(result.Logs),
		Logs:              result.Logs,
		ContractAddress:   result.ContractAddress,
		TxIndex:           index,
		From:              result.Sender,
		To:                tx.To,
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash transaction: %w", err)
	}
	receipt.TxHash = hash
	return receipt, nil
}

// forceIntrinsicFailure recovers whatever identity it can from tx and
// applies the gas-charge/nonce-increment fallback. If the sender
// cannot even be recovered, the transaction cannot be attributed to
// any account and is reported with status=0, zero gas charged — the
// assembler still includes a receipt rather than silently dropping a
// mined transaction.
func (a *Assembler) forceIntrinsicFailure(tx *Transaction, ctx vm.BlockContext) (*vm.Result, error) {
	sender, err := tx.Sender(ctx.ChainID)
	if err != nil {
		return &vm.Result{Status: 0}, nil
	}
	intrinsic := vm.IntrinsicGas(tx.Data)
	if tx.GasPrice != nil {
		account, accErr := a.mgr.GetAccount(sender)
		if accErr == nil {
			cost := new(uint256.Int).Mul(uint256.NewInt(intrinsic), tx.GasPrice)
			if !account.Balance.Lt(cost) {
				_ = a.mgr.SubBalance(sender, cost)
			}
		}
	}
	if _, err := a.mgr.IncrementNonce(sender); err != nil {
		return nil, fmt.Errorf("force intrinsic failure: increment nonce: %w", err)
	}
	return &vm.Result{Status: 0, GasUsed: intrinsic, Sender: sender}, nil
}

// hashList builds an ephemeral MPT over { RLP(i) -> RLP(item) } and
// returns its root; an empty list yields trie.EmptyRoot.
func hashList[T any](items []T, encode func(T) ([]byte, error)) (common.Hash, error) {
	if len(items) == 0 {
		return trie.EmptyRoot, nil
	}
	db := trie.NewDatabase(kv.NewMemory())
	t := trie.New(db)
	for i, item := range items {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		value, err := encode(item)
		if err != nil {
			return common.Hash{}, err
		}
		if err := t.Put(key, value); err != nil {
			return common.Hash{}, err
		}
	}
	return t.Root()
}
