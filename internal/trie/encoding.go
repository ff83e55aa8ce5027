package trie

// Hex-prefix (compact) encoding of trie paths, following the scheme used
// throughout the Ethereum Merkle Patricia Trie: a path is a sequence of
// nibbles (half-bytes); compact encoding packs two nibbles per byte and
// uses the high nibble of the first byte to flag odd length and
// leaf-ness so a decoder can recover both without extra metadata.

// keyToNibbles expands a byte slice into its nibble sequence and appends
// the trie terminator (16), which marks a path as ending at a leaf's
// value rather than continuing through a branch.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2+1)
	for i, b := range key {
		nibbles[i*2] = b / 16
		nibbles[i*2+1] = b % 16
	}
	nibbles[len(nibbles)-1] = 16
	return nibbles
}

// hasTerm reports whether a nibble slice ends in the trie terminator.
func hasTerm(nibbles []byte) bool {
	return len(nibbles) > 0 && nibbles[len(nibbles)-1] == 16
}

// hexToCompact packs a nibble slice (terminator included, if present)
// into hex-prefix encoded bytes.
func hexToCompact(nibbles []byte) []byte {
	terminator := byte(0)
	if hasTerm(nibbles) {
		terminator = 1
		nibbles = nibbles[:len(nibbles)-1]
	}
	odd := len(nibbles) % 2
	flag := terminator*2 + byte(odd)

	buf := make([]byte, len(nibbles)/2+1)
	buf[0] = flag << 4
	if odd == 1 {
		buf[0] |= nibbles[0]
		nibbles = nibbles[1:]
	}
	for i := 0; i < len(nibbles); i += 2 {
		buf[i/2+1] = nibbles[i]<<4 | nibbles[i+1]
	}
	return buf
}

// compactToHex is the inverse of hexToCompact; it returns the nibble
// path (terminator appended if the leaf flag is set) and whether the
// encoded node is a leaf.
func compactToHex(compact []byte) (nibbles []byte, isLeaf bool) {
	if len(compact) == 0 {
		return nil, false
	}
	flag := compact[0] >> 4
	isLeaf = flag&2 != 0
	odd := flag&1 != 0

	var out []byte
	if odd {
		out = append(out, compact[0]&0x0f)
	}
	for _, b := range compact[1:] {
		out = append(out, b>>4, b&0x0f)
	}
	if isLeaf {
		out = append(out, 16)
	}
	return out, isLeaf
}

// prefixLen returns the length of the common prefix of a and b.
func prefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
