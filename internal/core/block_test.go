package core_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dstn-labs/dstn/internal/core"
)

func TestHeaderHashDeterministic(t *testing.T) {
	h := core.Header{
		ParentHash:  core.ZeroHash,
		StateRoot:   common.Hash{0x1},
		TxRoot:      common.Hash{0x2},
		ReceiptRoot: common.Hash{0x3},
		Number:      1,
		Timestamp:   1000,
		Proposer:    common.Address{0xAA},
	}
	h1, err := h.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := h.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("header hash is not deterministic")
	}
}

func TestHeaderHashChangesWithNumber(t *testing.T) {
	base := core.Header{Number: 1, Proposer: common.Address{0xAA}}
	other := base
	other.Number = 2

	h1, err := base.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := other.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("changing Number should change the block hash")
	}
}

func TestGenesisBlockShape(t *testing.T) {
	header := core.Header{
		ParentHash: core.ZeroHash,
		Number:     0,
	}
	b := core.NewBlock(header, nil)
	if b.Header.Number != 0 {
		t.Fatalf("genesis number = %d, want 0", b.Header.Number)
	}
	if b.Header.ParentHash != core.ZeroHash {
		t.Fatalf("genesis parentHash should be 32 zero bytes")
	}
}
