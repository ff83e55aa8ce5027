package core_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/core"
)

const testChainID = 1337

func signedTransfer(t *testing.T, priv []byte, nonce uint64, to common.Address, value uint64) *core.Transaction {
	t.Helper()
	tx := &core.Transaction{
		Nonce:    nonce,
		GasPrice: uint256.NewInt(1),
		GasLimit: 21000,
		To:       &to,
		Value:    uint256.NewInt(value),
		Data:     nil,
	}
	if err := tx.Sign(priv, testChainID); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func TestTransactionRoundTripRLP(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	to := common.Address{0xBB}
	tx := signedTransfer(t, crypto.FromECDSA(priv), 3, to, 30)

	enc, err := tx.EncodeRLP()
	if err != nil {
		t.Fatalf("EncodeRLP: %v", err)
	}
	got, err := core.DecodeTransaction(enc)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if got.Nonce != tx.Nonce || got.Value.Uint64() != tx.Value.Uint64() || *got.To != *tx.To {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, tx)
	}
}

func TestTransactionSenderRecovery(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want := crypto.PubkeyToAddress(priv.PublicKey)
	to := common.Address{0xCC}
	tx := signedTransfer(t, crypto.FromECDSA(priv), 0, to, 1)

	got, err := tx.Sender(testChainID)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if got != want {
		t.Fatalf("Sender = %s, want %s", got, want)
	}
}

func TestTransactionSenderWrongChainID(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	to := common.Address{0xDD}
	tx := signedTransfer(t, crypto.FromECDSA(priv), 0, to, 1)

	if _, err := tx.Sender(testChainID + 1); err == nil {
		t.Fatalf("expected ErrBadChainID for a tx signed on a different network")
	}
}

func TestTransactionHashStable(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	to := common.Address{0xEE}
	tx := signedTransfer(t, crypto.FromECDSA(priv), 0, to, 1)

	h1, err := tx.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := tx.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("Hash is not deterministic: %x != %x", h1, h2)
	}
}
