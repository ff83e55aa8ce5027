package txpool_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/core"
	"github.com/dstn-labs/dstn/internal/txpool"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func tx(nonce uint64) *core.Transaction {
	to := addr(2)
	return &core.Transaction{
		Nonce:    nonce,
		GasPrice: uint256.NewInt(1),
		GasLimit: 21000,
		To:       &to,
		Value:    uint256.NewInt(1),
	}
}

func zeroNonce(common.Address) uint64 { return 0 }

func TestAddAndDrainInNonceOrder(t *testing.T) {
	p := txpool.New(zeroNonce)
	sender := addr(1)
	if err := p.Add(tx(1), sender); err != nil {
		t.Fatalf("Add nonce 1: %v", err)
	}
	if err := p.Add(tx(0), sender); err != nil {
		t.Fatalf("Add nonce 0: %v", err)
	}

	drained := p.DrainPending(10)
	if len(drained) != 2 {
		t.Fatalf("len(drained) = %d, want 2", len(drained))
	}
	if drained[0].Nonce != 0 || drained[1].Nonce != 1 {
		t.Fatalf("drain order = %d, %d, want 0, 1", drained[0].Nonce, drained[1].Nonce)
	}
}

func TestDrainExcludesGappedNonces(t *testing.T) {
	p := txpool.New(zeroNonce)
	sender := addr(1)
	if err := p.Add(tx(0), sender); err != nil {
		t.Fatalf("Add nonce 0: %v", err)
	}
	if err := p.Add(tx(5), sender); err != nil {
		t.Fatalf("Add nonce 5: %v", err)
	}

	drained := p.DrainPending(10)
	if len(drained) != 1 || drained[0].Nonce != 0 {
		t.Fatalf("expected only nonce 0 to be pending, got %v", drained)
	}
}

func TestAddDuplicateNonceRejected(t *testing.T) {
	p := txpool.New(zeroNonce)
	sender := addr(1)
	if err := p.Add(tx(0), sender); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(tx(0), sender); err == nil {
		t.Fatalf("expected ErrDuplicateNonce on second insert at the same nonce")
	}
}

func TestRemoveByHash(t *testing.T) {
	p := txpool.New(zeroNonce)
	sender := addr(1)
	transaction := tx(0)
	if err := p.Add(transaction, sender); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hash, err := transaction.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	p.Remove(hash)
	if p.Count() != 0 {
		t.Fatalf("Count() = %d after Remove, want 0", p.Count())
	}
}
