package trie

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// node is the in-memory representation of one MPT node. Four concrete
// types implement it: fullNode (branch), shortNode (extension or leaf,
// distinguished by whether Key ends in the terminator), hashNode (a
// reference to a node already committed to the backend under
// Keccak-256(RLP(node))), and valueNode (a leaf's stored value).
type node interface {
	fstring(ind string) string
}

type (
	fullNode struct {
		Children [17]node // Children[16] holds the value at this branch, if any
	}
	shortNode struct {
		Key []byte // nibble path, including terminator if this is a leaf
		Val node
	}
	hashNode  []byte
	valueNode []byte
)

func (n *fullNode) fstring(ind string) string  { return "full" }
func (n *shortNode) fstring(ind string) string { return "short" }
func (n hashNode) fstring(ind string) string   { return "hash" }
func (n valueNode) fstring(ind string) string  { return "value" }

func (n *fullNode) copy() *fullNode {
	cp := *n
	return &cp
}

func (n *shortNode) copy() *shortNode {
	cp := *n
	return &cp
}

var emptyStringRLP = []byte{0x80}

// encodeRef returns the RLP-raw representation a parent node uses to
// reference child. Per the MPT contract: a nil child is the empty RLP
// string; a child whose own RLP encoding is at least 32 bytes is
// replaced by its Keccak-256 hash (wrapped as an RLP string); a smaller
// child is inlined directly as its RLP list encoding.
func encodeRef(child node) (rlp.RawValue, error) {
	if child == nil {
		return rlp.RawValue(emptyStringRLP), nil
	}
	if hn, ok := child.(hashNode); ok {
		return rlp.EncodeToBytes([]byte(hn))
	}
	enc, err := encodeNodeRaw(child)
	if err != nil {
		return nil, err
	}
	if len(enc) >= 32 {
		h := hashData(enc)
		return rlp.EncodeToBytes(h[:])
	}
	return rlp.RawValue(enc), nil
}

// encodeNodeRaw returns the canonical RLP list encoding of a fullNode or
// shortNode. valueNode/hashNode are not node containers and are encoded
// by their callers directly.
func encodeNodeRaw(n node) ([]byte, error) {
	switch n := n.(type) {
	case *fullNode:
		items := make([]rlp.RawValue, 17)
		for i := 0; i < 16; i++ {
			ref, err := encodeRef(n.Children[i])
			if err != nil {
				return nil, err
			}
			items[i] = ref
		}
		if vn, ok := n.Children[16].(valueNode); ok && vn != nil {
			v, err := rlp.EncodeToBytes([]byte(vn))
			if err != nil {
				return nil, err
			}
			items[16] = v
		} else {
			items[16] = rlp.RawValue(emptyStringRLP)
		}
		return rlp.EncodeToBytes(items)
	case *shortNode:
		keyEnc, err := rlp.EncodeToBytes(hexToCompact(n.Key))
		if err != nil {
			return nil, err
		}
		var valEnc rlp.RawValue
		if hasTerm(n.Key) {
			vn, _ := n.Val.(valueNode)
			valEnc, err = rlp.EncodeToBytes([]byte(vn))
		} else {
			valEnc, err = encodeRef(n.Val)
		}
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes([]rlp.RawValue{rlp.RawValue(keyEnc), valEnc})
	default:
		return nil, errInvalidNode
	}
}

// decodeNode parses the RLP list encoding of a fullNode or shortNode.
func decodeNode(buf []byte) (node, error) {
	var items []rlp.RawValue
	if err := rlp.DecodeBytes(buf, &items); err != nil {
		return nil, err
	}
	switch len(items) {
	case 2:
		return decodeShort(items)
	case 17:
		return decodeFull(items)
	default:
		return nil, errInvalidNode
	}
}

func decodeShort(items []rlp.RawValue) (node, error) {
	var keyCompact []byte
	if err := rlp.DecodeBytes(items[0], &keyCompact); err != nil {
		return nil, err
	}
	key, isLeaf := compactToHex(keyCompact)
	if isLeaf {
		var val []byte
		if err := rlp.DecodeBytes(items[1], &val); err != nil {
			return nil, err
		}
		return &shortNode{Key: key, Val: valueNode(val)}, nil
	}
	child, err := decodeRef(items[1])
	if err != nil {
		return nil, err
	}
	return &shortNode{Key: key, Val: child}, nil
}

func decodeFull(items []rlp.RawValue) (node, error) {
	fn := &fullNode{}
	for i := 0; i < 16; i++ {
		child, err := decodeRef(items[i])
		if err != nil {
			return nil, err
		}
		fn.Children[i] = child
	}
	var val []byte
	if err := rlp.DecodeBytes(items[16], &val); err != nil {
		return nil, err
	}
	if len(val) > 0 {
		fn.Children[16] = valueNode(val)
	}
	return fn, nil
}

// decodeRef decodes one child reference: empty, inline, or hashed.
func decodeRef(raw rlp.RawValue) (node, error) {
	kind, _, _, err := rlp.Split([]byte(raw))
	if err != nil {
		return nil, err
	}
	if kind == rlp.List {
		return decodeNode(raw)
	}
	var b []byte
	if err := rlp.DecodeBytes(raw, &b); err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return hashNode(b), nil
}
