package consensus

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/core"
)

func testTransaction(nonce uint64, to common.Address) *core.Transaction {
	return &core.Transaction{
		Nonce:    nonce,
		GasPrice: uint256.NewInt(1),
		GasLimit: 21000,
		To:       &to,
		Value:    uint256.NewInt(0),
		V:        big.NewInt(0),
		R:        big.NewInt(0),
		S:        big.NewInt(0),
	}
}

func TestCurrentSlotFloorsToSlotWidth(t *testing.T) {
	genesisTime := uint64(1_000_000)
	cases := []struct {
		now  uint64
		want uint64
	}{
		{genesisTime, 0},
		{genesisTime + SlotMS - 1, 0},
		{genesisTime + SlotMS, 1},
		{genesisTime + SlotMS*5 + 1, 5},
	}
	for _, c := range cases {
		if got := currentSlot(c.now, genesisTime); got != c.want {
			t.Fatalf("currentSlot(%d, %d) = %d, want %d", c.now, genesisTime, got, c.want)
		}
	}
}

func TestCurrentSlotBeforeGenesisIsZero(t *testing.T) {
	if got := currentSlot(0, 1_000_000); got != 0 {
		t.Fatalf("currentSlot before genesis = %d, want 0", got)
	}
}

func TestEngineStartFailsWithoutGenesis(t *testing.T) {
	e := NewEngine(NewValidatorSet(nil), nil, nil, nil, emptyBlockSaver{}, nil)
	if err := e.Start(); err == nil {
		t.Fatalf("expected Start to fail with no persisted genesis")
	}
}

type emptyBlockSaver struct{}

func (emptyBlockSaver) Save(block *core.Block, receipts []*core.Receipt) error { return nil }
func (emptyBlockSaver) Latest() (*core.Block, bool, error)                    { return nil, false, nil }

type recordingPoolPruner struct {
	removed []common.Hash
}

func (p *recordingPoolPruner) Remove(hash common.Hash) {
	p.removed = append(p.removed, hash)
}

func TestPruneCommittedRemovesEveryBlockTransaction(t *testing.T) {
	to := common.Address{0xAA}
	tx1 := testTransaction(0, to)
	tx2 := testTransaction(1, to)
	want1, err := tx1.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	want2, err := tx2.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	pruner := &recordingPoolPruner{}
	e := &Engine{pool: pruner}
	e.pruneCommitted([]*core.Transaction{tx1, tx2})

	if len(pruner.removed) != 2 || pruner.removed[0] != want1 || pruner.removed[1] != want2 {
		t.Fatalf("pruneCommitted removed = %v, want [%x %x]", pruner.removed, want1, want2)
	}
}

func TestPruneCommittedNilPoolIsNoop(t *testing.T) {
	e := &Engine{}
	e.pruneCommitted([]*core.Transaction{testTransaction(0, common.Address{0xAA})})
}
