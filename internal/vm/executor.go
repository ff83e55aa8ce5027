// Package vm implements the transaction executor: a restricted,
// value-transfer-only engine standing in for a full EVM. Recovers the
// sender via EIP-155 recovery through go-ethereum/crypto rather than a
// raw ECDSA scheme.
package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/core"
	"github.com/dstn-labs/dstn/internal/state"
)

// ErrUnsupportedOperation is returned for any transaction this
// restricted executor cannot carry out — currently contract creation
// (to = nil), since there is no EVM wired in to run the init code.
var ErrUnsupportedOperation = errors.New("vm: unsupported operation")

// Gas cost constants, Ethereum's own intrinsic-gas schedule for a
// value-transfer-only transaction (no opcode execution happens here,
// so CALL/CREATE gas is never charged beyond this).
const (
	TxGas                    = 21000
	TxDataZeroGas            = 4
	TxDataNonZeroGasFrontier = 68
)

// BlockContext is the subset of block data execution needs, independent
// of any single transaction.
type BlockContext struct {
	Number    uint64
	Timestamp uint64
	Proposer  common.Address
	ChainID   uint64
}

// Result is what the assembler folds into a Receipt.
type Result struct {
	Status          uint64 // 0 or 1
	GasUsed         uint64
	ContractAddress *common.Address
	Logs            []core.Log
	Sender          common.Address
}

// IntrinsicGas computes the minimum gas a transaction must pay before
// any execution happens, Ethereum's classic zero/nonzero-byte data
// schedule.
func IntrinsicGas(data []byte) uint64 {
	gas := uint64(TxGas)
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGasFrontier
		}
	}
	return gas
}

// ContractAddress derives the address a contract-creation transaction
// from sender at senderNonce (the nonce BEFORE incrementing) would
// deploy to: Keccak-256(RLP([sender, senderNonce]))[12:].
func ContractAddress(sender common.Address, senderNonce uint64) (common.Address, error) {
	enc, err := rlp.EncodeToBytes([]interface{}{sender, senderNonce})
	if err != nil {
		return common.Address{}, err
	}
	hash := crypto.Keccak256(enc)
	var addr common.Address
	copy(addr[:], hash[12:])
	return addr, nil
}

// Execute runs tx against mgr under ctx. It recovers the sender,
// deducts intrinsic gas, increments the sender's nonce, and — for a
// plain value transfer — moves value from sender to *tx.To. Any
// failure before nonce increment/gas charge (bad signature, bad
// chainId, insufficient balance for intrinsic gas) is returned as an
// error; the caller (the block assembler) is responsible for still
// including the transaction with status=0.
func Execute(tx *core.Transaction, mgr *state.Manager, ctx BlockContext) (*Result, error) {
	sender, err := tx.Sender(ctx.ChainID)
	if err != nil {
		return nil, fmt.Errorf("vm: recover sender: %w", err)
	}

	senderAccount, err := mgr.GetAccount(sender)
	if err != nil {
		return nil, fmt.Errorf("vm: load sender account: %w", err)
	}
	if senderAccount.Nonce != tx.Nonce {
		return nil, fmt.Errorf("vm: bad nonce: tx has %d, sender has %d", tx.Nonce, senderAccount.Nonce)
	}

	intrinsic := IntrinsicGas(tx.Data)
	if tx.GasLimit < intrinsic {
		return nil, fmt.Errorf("vm: gas limit %d below intrinsic gas %d", tx.GasLimit, intrinsic)
	}
	gasCost := new(uint256.Int).Mul(uint256.NewInt(intrinsic), tx.GasPrice)
	if senderAccount.Balance.Lt(gasCost) {
		return nil, fmt.Errorf("vm: insufficient balance for intrinsic gas: have %s, need %s", senderAccount.Balance, gasCost)
	}

	if err := mgr.SubBalance(sender, gasCost); err != nil {
		return nil, fmt.Errorf("vm: charge intrinsic gas: %w", err)
	}
	if _, err := mgr.IncrementNonce(sender); err != nil {
		return nil, fmt.Errorf("vm: increment nonce: %w", err)
	}

	if tx.To == nil {
		return &Result{Status: 0, GasUsed: intrinsic, Sender: sender}, ErrUnsupportedOperation
	}

	if tx.Value != nil && !tx.Value.IsZero() {
		if err := mgr.SubBalance(sender, tx.Value); err != nil {
			return &Result{Status: 0, GasUsed: intrinsic, Sender: sender}, nil
		}
		if err := mgr.AddBalance(*tx.To, tx.Value); err != nil {
			return nil, fmt.Errorf("vm: credit recipient: %w", err)
		}
	}

	return &Result{Status: 1, GasUsed: intrinsic, Sender: sender}, nil
}
