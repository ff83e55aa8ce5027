package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BloomByteLength is the width of a receipt's logsBloom filter.
const BloomByteLength = 256

// Log is one event emitted during execution; the assembler folds each
// log's address and topics into the receipt's LogsBloom.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt records the outcome of including one transaction in a block,
// Receipts of a block are ordered by TxIndex and
// CumulativeGasUsed is nondecreasing across the block.
type Receipt struct {
	Status            uint64 // 0 = failed, 1 = succeeded
	CumulativeGasUsed uint64
	LogsBloom         [BloomByteLength]byte
	Logs              []Log
	ContractAddress   *common.Address // set only for successful contract creation
	TxHash            common.Hash
	TxIndex           uint64
	BlockHash         common.Hash
	BlockNumber       uint64
	From              common.Address
	To                *common.Address
}

// rlpReceipt is the subset of Receipt that participates in the
// receipt-root trie: the block/position fields are index-derived and
// are not part of the committed wire form, mirroring how Ethereum's
// own receipt trie commits only status/gas/bloom/logs.
type rlpReceipt struct {
	Status            uint64
	CumulativeGasUsed uint64
	LogsBloom         []byte
	Logs              []rlpLog
}

type rlpLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// EncodeRLP returns the canonical encoding stored at the receipt's
// index in the receipt trie.
func (r *Receipt) EncodeRLP() ([]byte, error) {
	logs := make([]rlpLog, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = rlpLog{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	return rlp.EncodeToBytes(&rlpReceipt{
		Status:            r.Status,
		CumulativeGasUsed: r.CumulativeGasUsed,
		LogsBloom:         r.LogsBloom[:],
		Logs:              logs,
	})
}

// rlpFullReceipt is the wire form persisted at a transaction's lookup
// key in the block store: every field a client's receipt query needs,
// not just what the receipt trie commits to.
type rlpFullReceipt struct {
	Status            uint64
	CumulativeGasUsed uint64
	LogsBloom         []byte
	Logs              []rlpLog
	TxHash            common.Hash
	TxIndex           uint64
	BlockHash         common.Hash
	BlockNumber       uint64
	From              common.Address
	To                *common.Address `rlp:"nil"`
	ContractAddress   *common.Address `rlp:"nil"`
}

// EncodeFull returns the full wire encoding persisted under a
// transaction's lookup key, carrying the position/addressing fields the
// receipt trie commitment omits.
func (r *Receipt) EncodeFull() ([]byte, error) {
	logs := make([]rlpLog, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = rlpLog{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	return rlp.EncodeToBytes(&rlpFullReceipt{
		Status:            r.Status,
		CumulativeGasUsed: r.CumulativeGasUsed,
		LogsBloom:         r.LogsBloom[:],
		Logs:              logs,
		TxHash:            r.TxHash,
		TxIndex:           r.TxIndex,
		BlockHash:         r.BlockHash,
		BlockNumber:       r.BlockNumber,
		From:              r.From,
		To:                r.To,
		ContractAddress:   r.ContractAddress,
	})
}

// DecodeFullReceipt reverses EncodeFull.
func DecodeFullReceipt(enc []byte) (*Receipt, error) {
	var rr rlpFullReceipt
	if err := rlp.DecodeBytes(enc, &rr); err != nil {
		return nil, err
	}
	logs := make([]Log, len(rr.Logs))
	for i, l := range rr.Logs {
		logs[i] = Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	receipt := &Receipt{
		Status:            rr.Status,
		CumulativeGasUsed: rr.CumulativeGasUsed,
		Logs:              logs,
		ContractAddress:   rr.ContractAddress,
		TxHash:            rr.TxHash,
		TxIndex:           rr.TxIndex,
		BlockHash:         rr.BlockHash,
		BlockNumber:       rr.BlockNumber,
		From:              rr.From,
		To:                rr.To,
	}
	copy(receipt.LogsBloom[:], rr.LogsBloom)
	return receipt, nil
}

// createBloom ORs each log's address and topics into a 2048-bit filter
// using Ethereum's 3-hash scheme, same construction go-ethereum's
// core/types.Bloom uses.
func createBloom(logs []Log) [BloomByteLength]byte {
	var bloom [BloomByteLength]byte
	addBloom := func(b [BloomByteLength]byte, data []byte) [BloomByteLength]byte {
		h := crypto.Keccak256(data)
		for i := 0; i < 3; i++ {
			bitIdx := (uint(h[2*i])<<8 | uint(h[2*i+1])) & 2047
			byteIdx := BloomByteLength - 1 - bitIdx/8
			b[byteIdx] |= 1 << (bitIdx % 8)
		}
		return b
	}
	for _, l := range logs {
		bloom = addBloom(bloom, l.Address[:])
		for _, t := range l.Topics {
			bloom = addBloom(bloom, t[:])
		}
	}
	return bloom
}
