// Package config loads the genesis configuration and validator set a
// node boots from. Replaces a hand-built placeholder genesis
// constructor with a real file-backed loader reading an actual
// genesis.json wire format.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ChainID is the process-wide chain identifier used in EIP-155 signing.
const ChainID = 999

// SyntheticValidatorCount is the fallback validator set size when
// genesis-accounts.json is absent: 256 synthetic addresses
// 0x00...01 through 0x00...100.
const SyntheticValidatorCount = 256

// rawGenesis mirrors genesis.json's wire shape exactly.
type rawGenesis struct {
	Config struct {
		ChainID   uint64 `json:"chainId"`
		BlockTime uint64 `json:"blockTime"`
		EpochSize uint64 `json:"epochSize"`
	} `json:"config"`
	Timestamp string                    `json:"timestamp"`
	ExtraData string                    `json:"extraData"`
	Alloc     map[string]rawAllocEntry  `json:"alloc"`
}

type rawAllocEntry struct {
	Balance string `json:"balance"`
}

// AllocEntry is one genesis balance credit, preserving the address's
// position in the source file's alloc object so the first key can be
// identified as the genesis proposer.
type AllocEntry struct {
	Address common.Address
	Balance *uint256.Int
}

// Genesis is the parsed, validated genesis configuration.
type Genesis struct {
	ChainID   uint64
	BlockTime uint64
	EpochSize uint64
	Timestamp time.Time
	ExtraData []byte
	Alloc     []AllocEntry
	Proposer  common.Address
}

// findFile looks for name in the process working directory, then one
// directory up.
func findFile(name string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}
	candidates := []string{
		filepath.Join(wd, name),
		filepath.Join(wd, "..", name),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("config: %s not found in %s or its parent", name, wd)
}

// LoadGenesis reads and parses genesis.json. The alloc map is ordered
// by re-reading the file's raw bytes with json.Decoder so the first key
// in source order becomes the designated genesis proposer — a bare
// map[string]... loses this ordering, since Go map iteration order is
// randomized.
func LoadGenesis() (*Genesis, error) {
	path, err := findFile("genesis.json")
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var g rawGenesis
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	orderedAddrs, err := allocKeyOrder(raw)
	if err != nil {
		return nil, fmt.Errorf("config: determine alloc order in %s: %w", path, err)
	}

	ts, err := time.Parse(time.RFC3339, g.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("config: parse timestamp %q: %w", g.Timestamp, err)
	}

	alloc := make([]AllocEntry, 0, len(orderedAddrs))
	for _, addrHex := range orderedAddrs {
		entry, ok := g.Alloc[addrHex]
		if !ok {
			continue
		}
		balance, ok := new(uint256.Int).SetString(entry.Balance)
		if !ok {
			return nil, fmt.Errorf("config: bad balance %q for %s", entry.Balance, addrHex)
		}
		alloc = append(alloc, AllocEntry{Address: common.HexToAddress(addrHex), Balance: balance})
	}
	if len(alloc) == 0 {
		return nil, fmt.Errorf("config: %s has an empty alloc", path)
	}

	return &Genesis{
		ChainID:   g.Config.ChainID,
		BlockTime: g.Config.BlockTime,
		EpochSize: g.Config.EpochSize,
		Timestamp: ts,
		ExtraData: []byte(g.ExtraData),
		Alloc:     alloc,
		Proposer:  alloc[0].Address,
	}, nil
}

// allocKeyOrder walks raw's top-level object token-by-token to recover
// the source-file order of the "alloc" object's keys — a bare
// map[string]... loses this order since Go randomizes map iteration,
// and the first alloc key is designated the genesis proposer.
func allocKeyOrder(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if key.(string) != "alloc" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		return readObjectKeys(dec)
	}
	return nil, fmt.Errorf("no \"alloc\" key found")
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return fmt.Errorf("expected delimiter %q, got %v", want, tok)
	}
	return nil
}

func readObjectKeys(dec *json.Decoder) ([]string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	return keys, nil
}

// AllocBalances returns alloc as a map for the assembler's genesis
// credit step.
func (g *Genesis) AllocBalances() map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(g.Alloc))
	for _, e := range g.Alloc {
		out[e.Address] = e.Balance
	}
	return out
}

// rawValidatorEntry mirrors one object in genesis-accounts.json.
type rawValidatorEntry struct {
	Index      int    `json:"index"`
	Address    string `json:"address"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// LoadValidatorAddresses reads genesis-accounts.json's ordered address
// list, falling back to 256 synthetic addresses 0x00...01 through
// 0x00...100 when the file is absent.
func LoadValidatorAddresses() ([]common.Address, error) {
	path, err := findFile("genesis-accounts.json")
	if err != nil {
		return syntheticValidators(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var entries []rawValidatorEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	addrs := make([]common.Address, len(entries))
	for i, e := range entries {
		addrs[i] = common.HexToAddress(e.Address)
	}
	return addrs, nil
}

func syntheticValidators() []common.Address {
	addrs := make([]common.Address, SyntheticValidatorCount)
	for i := range addrs {
		var a common.Address
		// 1-indexed: 0x00...01 through 0x00...100.
		n := i + 1
		a[18] = byte(n >> 8)
		a[19] = byte(n)
		addrs[i] = a
	}
	return addrs
}
