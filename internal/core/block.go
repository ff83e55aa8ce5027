package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Header is a block's committed header. Block hash is
// Keccak-256(RLP(header)) over exactly these fields in this order.
type Header struct {
	ParentHash  common.Hash
	StateRoot   common.Hash
	TxRoot      common.Hash
	ReceiptRoot common.Hash
	Number      uint64
	Timestamp   uint64
	Proposer    common.Address
}

// rlpHeader mirrors Header field-for-field; kept distinct so Header can
// carry methods without affecting the wire encoding.
type rlpHeader struct {
	ParentHash  common.Hash
	StateRoot   common.Hash
	TxRoot      common.Hash
	ReceiptRoot common.Hash
	Number      uint64
	Timestamp   uint64
	Proposer    common.Address
}

// Hash returns Keccak-256(RLP(header)).
func (h *Header) Hash() (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(&rlpHeader{
		ParentHash:  h.ParentHash,
		StateRoot:   h.StateRoot,
		TxRoot:      h.TxRoot,
		ReceiptRoot: h.ReceiptRoot,
		Number:      h.Number,
		Timestamp:   h.Timestamp,
		Proposer:    h.Proposer,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Block is a header plus its ordered transaction list. Genesis has
// Number 0 and a ParentHash of 32 zero bytes.
type Block struct {
	Header       Header
	Transactions []*Transaction
}

// NewBlock assembles an unhashed block; the caller fills Header.StateRoot
// etc. before calling Header.Hash.
func NewBlock(header Header, txs []*Transaction) *Block {
	return &Block{Header: header, Transactions: txs}
}

// Hash is a convenience wrapper over Header.Hash.
func (b *Block) Hash() (common.Hash, error) {
	return b.Header.Hash()
}

// ZeroHash is the 32 zero-byte parentHash genesis carries.
var ZeroHash common.Hash
