package blockstore_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dstn-labs/dstn/internal/blockstore"
	"github.com/dstn-labs/dstn/internal/core"
	"github.com/dstn-labs/dstn/internal/kv"
)

func TestSaveAndFindRoundTrip(t *testing.T) {
	store := blockstore.New(kv.NewMemory())

	genesis := core.NewBlock(core.Header{Number: 0, ParentHash: core.ZeroHash}, nil)
	if err := store.Save(genesis, nil); err != nil {
		t.Fatalf("Save genesis: %v", err)
	}

	genesisHash, err := genesis.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	block1 := core.NewBlock(core.Header{Number: 1, ParentHash: genesisHash, Proposer: common.Address{0x1}}, nil)
	if err := store.Save(block1, nil); err != nil {
		t.Fatalf("Save block1: %v", err)
	}

	latest, ok, err := store.Latest()
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.Header.Number != 1 {
		t.Fatalf("Latest().Number = %d, want 1", latest.Header.Number)
	}

	byNumber, ok, err := store.FindByNumber(0)
	if err != nil || !ok {
		t.Fatalf("FindByNumber(0): ok=%v err=%v", ok, err)
	}
	if byNumber.Header.Number != 0 {
		t.Fatalf("FindByNumber(0).Number = %d, want 0", byNumber.Header.Number)
	}

	block1Hash, err := block1.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	byHash, ok, err := store.FindByHash(block1Hash)
	if err != nil || !ok {
		t.Fatalf("FindByHash: ok=%v err=%v", ok, err)
	}
	if byHash.Header.Number != 1 {
		t.Fatalf("FindByHash.Number = %d, want 1", byHash.Header.Number)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Count() = %d, want 2", count)
	}
}

func TestLatestOnEmptyStore(t *testing.T) {
	store := blockstore.New(kv.NewMemory())
	_, ok, err := store.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on an empty store")
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	store := blockstore.New(kv.NewMemory())
	genesis := core.NewBlock(core.Header{Number: 0, ParentHash: core.ZeroHash}, nil)
	genesisHash, err := genesis.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	from := common.Address{0x11}
	to := common.Address{0x22}
	contract := common.Address{0x33}
	receipt := &core.Receipt{
		Status:            1,
		CumulativeGasUsed: 21000,
		TxHash:            common.Hash{0x42},
		TxIndex:           3,
		BlockHash:         genesisHash,
		BlockNumber:       0,
		From:              from,
		To:                &to,
		ContractAddress:   &contract,
	}
	if err := store.Save(genesis, []*core.Receipt{receipt}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.GetReceipt(common.Hash{0x42})
	if err != nil || !ok {
		t.Fatalf("GetReceipt: ok=%v err=%v", ok, err)
	}
	if got.Status != 1 || got.CumulativeGasUsed != 21000 {
		t.Fatalf("GetReceipt = %+v, want status=1 cumulativeGasUsed=21000", got)
	}
	if got.TxIndex != 3 {
		t.Fatalf("GetReceipt.TxIndex = %d, want 3", got.TxIndex)
	}
	if got.BlockHash != genesisHash {
		t.Fatalf("GetReceipt.BlockHash = %x, want %x", got.BlockHash, genesisHash)
	}
	if got.From != from {
		t.Fatalf("GetReceipt.From = %x, want %x", got.From, from)
	}
	if got.To == nil || *got.To != to {
		t.Fatalf("GetReceipt.To = %v, want %x", got.To, to)
	}
	if got.ContractAddress == nil || *got.ContractAddress != contract {
		t.Fatalf("GetReceipt.ContractAddress = %v, want %x", got.ContractAddress, contract)
	}
}

func TestReceiptRoundTripWithNilAddresses(t *testing.T) {
	store := blockstore.New(kv.NewMemory())
	genesis := core.NewBlock(core.Header{Number: 0, ParentHash: core.ZeroHash}, nil)
	receipt := &core.Receipt{
		Status: 0,
		TxHash: common.Hash{0x99},
	}
	if err := store.Save(genesis, []*core.Receipt{receipt}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.GetReceipt(common.Hash{0x99})
	if err != nil || !ok {
		t.Fatalf("GetReceipt: ok=%v err=%v", ok, err)
	}
	if got.To != nil {
		t.Fatalf("GetReceipt.To = %v, want nil", got.To)
	}
	if got.ContractAddress != nil {
		t.Fatalf("GetReceipt.ContractAddress = %v, want nil", got.ContractAddress)
	}
}
