package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Errors surfaced by transaction decoding and sender recovery. Kept as
// package-level sentinels rather than ad-hoc fmt.Errorf calls so the
// pool and assembler can branch on them with errors.Is.
var (
	ErrMalformedRLP     = errors.New("core: malformed transaction RLP")
	ErrInvalidSignature = errors.New("core: invalid transaction signature")
	ErrBadChainID       = errors.New("core: transaction chainId does not match this network")
)

// Transaction is the account-model, EIP-155-signed transaction this
// chain runs. The wire form carries no sender: it is always recovered
// from (v, r, s) against the signing hash.
type Transaction struct {
	Nonce    uint64
	GasPrice *uint256.Int
	GasLimit uint64
	To       *common.Address // nil means contract creation
	Value    *uint256.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// rlpTransaction is the exact wire shape, field order significant:
// (nonce, gasPrice, gasLimit, to, value, data, v, r, s).
type rlpTransaction struct {
	Nonce    uint64
	GasPrice *uint256.Int
	GasLimit uint64
	To       *common.Address `rlp:"nil"`
	Value    *uint256.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// signingPayload is the transaction content that is actually signed
// (EIP-155): the same fields, but with chainId, 0, 0 appended per the
// EIP-155 specification instead of v, r, s.
type signingPayload struct {
	Nonce    uint64
	GasPrice *uint256.Int
	GasLimit uint64
	To       *common.Address `rlp:"nil"`
	Value    *uint256.Int
	Data     []byte
	ChainID  uint64
	Zero1    uint8
	Zero2    uint8
}

// EncodeRLP returns the canonical wire encoding used for hashing,
// storage, and network relay.
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(&rlpTransaction{
		Nonce:    tx.Nonce,
		GasPrice: tx.GasPrice,
		GasLimit: tx.GasLimit,
		To:       tx.To,
		Value:    tx.Value,
		Data:     tx.Data,
		V:        tx.V,
		R:        tx.R,
		S:        tx.S,
	})
}

// DecodeTransaction parses the wire form produced by EncodeRLP.
func DecodeTransaction(enc []byte) (*Transaction, error) {
	var r rlpTransaction
	if err := rlp.DecodeBytes(enc, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRLP, err)
	}
	return &Transaction{
		Nonce:    r.Nonce,
		GasPrice: r.GasPrice,
		GasLimit: r.GasLimit,
		To:       r.To,
		Value:    r.Value,
		Data:     r.Data,
		V:        r.V,
		R:        r.R,
		S:        r.S,
	}, nil
}

// Hash returns Keccak-256(RLP(tx)), the transaction's identity in the
// pool, in receipts, and in the tx-root trie.
func (tx *Transaction) Hash() (common.Hash, error) {
	enc, err := tx.EncodeRLP()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// chainIDFromV recovers the EIP-155 chainId encoded in V (v = chainId*2
// + 35 + {0,1}) and the recovery id (0 or 1) go-ethereum's crypto
// package expects in the 65th signature byte.
func chainIDFromV(v *big.Int) (chainID uint64, recoveryID byte) {
	vv := new(big.Int).Sub(v, big.NewInt(35))
	recoveryID = byte(new(big.Int).Mod(vv, big.NewInt(2)).Int64())
	chainID = new(big.Int).Rsh(vv, 1).Uint64()
	return chainID, recoveryID
}

// signingHash returns the Keccak-256 hash EIP-155 actually signs:
// RLP([nonce, gasPrice, gasLimit, to, value, data, chainId, 0, 0]).
func (tx *Transaction) signingHash(chainID uint64) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(&signingPayload{
		Nonce:    tx.Nonce,
		GasPrice: tx.GasPrice,
		GasLimit: tx.GasLimit,
		To:       tx.To,
		Value:    tx.Value,
		Data:     tx.Data,
		ChainID:  chainID,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Sender recovers the EIP-155 signing address from (v, r, s), verifying
// along the way that V encodes wantChainID.
func (tx *Transaction) Sender(wantChainID uint64) (common.Address, error) {
	chainID, recoveryID := chainIDFromV(tx.V)
	if chainID != wantChainID {
		return common.Address{}, fmt.Errorf("%w: tx chainId %d, network %d", ErrBadChainID, chainID, wantChainID)
	}
	hash, err := tx.signingHash(chainID)
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	rBytes := tx.R.Bytes()
	sBytes := tx.S.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = recoveryID
	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign populates V, R, S from the ECDSA private key priv under EIP-155
// for chainID. Used by tests and by any in-process transaction
// originator (e.g. a genesis faucet script); normal submission arrives
// pre-signed over the wire.
func (tx *Transaction) Sign(priv []byte, chainID uint64) error {
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	hash, err := tx.signingHash(chainID)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	recoveryID := int64(sig[64])
	tx.V = new(big.Int).Add(big.NewInt(int64(chainID)*2+35), big.NewInt(recoveryID))
	return nil
}
