package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dstn-labs/dstn/internal/consensus"
	"github.com/dstn-labs/dstn/internal/kv"
)

type alwaysAttest struct{}

func (alwaysAttest) Attest(block common.Hash, slot uint64, validator common.Address) (*consensus.Attestation, error) {
	return &consensus.Attestation{Slot: slot, BlockHash: block, Validator: validator}, nil
}

func writeTestGenesis(t *testing.T, dir string) {
	t.Helper()
	body := `{
	  "config": {"chainId": 999, "blockTime": 12, "epochSize": 100},
	  "timestamp": "2024-01-01T00:00:00Z",
	  "extraData": "0x",
	  "alloc": {
	    "0x0000000000000000000000000000000000000001": {"balance": "1000000000000000000000"}
	  }
	}`
	if err := os.WriteFile(filepath.Join(dir, "genesis.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write genesis.json: %v", err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestBootCreatesGenesisOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	writeTestGenesis(t, dir)
	chdir(t, dir)

	n, err := Boot(kv.NewMemory(), alwaysAttest{})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	stats, err := n.GetChainStats()
	if err != nil {
		t.Fatalf("GetChainStats: %v", err)
	}
	if stats.LatestNumber != 0 {
		t.Fatalf("LatestNumber = %d, want 0", stats.LatestNumber)
	}
	if stats.BlockCount != 1 {
		t.Fatalf("BlockCount = %d, want 1", stats.BlockCount)
	}

	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	acct, err := n.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Balance.IsZero() {
		t.Fatalf("expected genesis alloc balance to be credited")
	}

	genesis, ok, err := n.GetBlockByNumber(0)
	if err != nil || !ok {
		t.Fatalf("GetBlockByNumber(0): ok=%v err=%v", ok, err)
	}
	if genesis.Header.Proposer != addr {
		t.Fatalf("genesis Header.Proposer = %x, want %x (first alloc entry)", genesis.Header.Proposer, addr)
	}
}

func TestBootReopensExistingChain(t *testing.T) {
	dir := t.TempDir()
	writeTestGenesis(t, dir)
	chdir(t, dir)

	store := kv.NewMemory()
	if _, err := Boot(store, alwaysAttest{}); err != nil {
		t.Fatalf("first Boot: %v", err)
	}

	n2, err := Boot(store, alwaysAttest{})
	if err != nil {
		t.Fatalf("second Boot: %v", err)
	}
	stats, err := n2.GetChainStats()
	if err != nil {
		t.Fatalf("GetChainStats: %v", err)
	}
	if stats.BlockCount != 1 {
		t.Fatalf("BlockCount after reopen = %d, want 1 (no duplicate genesis)", stats.BlockCount)
	}
}
