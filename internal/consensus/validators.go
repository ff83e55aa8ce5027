// Package consensus implements the slot-driven proof-of-stake loop:
// deterministic proposer/committee selection, attestation collection,
// supermajority finality, and reward distribution. Built on a
// mutex-guarded struct holding an ordered validator slice and
// fmt.Errorf errors, with round-robin proposer selection replaced by a
// RANDAO-seeded shuffle.
package consensus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CommitteeSize is the process-wide K = min(|V|, 128) cap on committee
// membership.
const CommitteeSize = 128

// Validator is an address, active flag and registration slot. The
// active set stays static once loaded at genesis.
type Validator struct {
	Address      common.Address
	Active       bool
	RegisteredAt uint64
}

// ValidatorSet holds the fixed list of validators loaded at genesis and
// answers the shuffler's selectProposer/selectCommittee queries.
type ValidatorSet struct {
	mu         sync.RWMutex
	validators []Validator
}

// NewValidatorSet loads a fixed validator list. The list is never
// mutated afterward — there is no dynamic validator set churn.
func NewValidatorSet(validators []Validator) *ValidatorSet {
	cp := make([]Validator, len(validators))
	copy(cp, validators)
	return &ValidatorSet{validators: cp}
}

// Size returns |V|, the number of loaded validators.
func (vs *ValidatorSet) Size() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.validators)
}

func (vs *ValidatorSet) active() []Validator {
	out := make([]Validator, 0, len(vs.validators))
	for _, v := range vs.validators {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}

// committeeSeed derives the committee shuffle's LCG seed for a slot:
// Keccak-256("randao-" || slot || "-committee").
func committeeSeed(slot uint64) uint32 {
	preimage := fmt.Sprintf("randao-%d-committee", slot)
	hash := crypto.Keccak256([]byte(preimage))
	// Fold the first 4 bytes into the seed, masked into the LCG's
	// modulus domain (2^31 - 1, a Mersenne prime): seed must be
	// nonzero and below the modulus for the LCG to mix properly.
	const modulus = 1<<31 - 1
	seed := binary.BigEndian.Uint32(hash[:4]) % modulus
	if seed == 0 {
		seed = 1
	}
	return seed
}

// nextLCG advances the seeded linear-congruential generator:
// s <- (s * 48271) mod (2^31 - 1).
func nextLCG(s uint32) uint32 {
	const (
		multiplier = 48271
		modulus    = 1<<31 - 1
	)
	return uint32((uint64(s) * multiplier) % modulus)
}

// SelectProposer deterministically picks the slot's proposer: the first
// 8 bytes of Keccak-256("randao-"||slot||"-proposer"), folded as a
// big-endian uint64 and taken modulo the active validator count, index
// directly into the list. No LCG step here — the LCG is reserved for
// the committee shuffle below.
func (vs *ValidatorSet) SelectProposer(slot uint64) (common.Address, error) {
	vs.mu.RLock()
	active := vs.active()
	vs.mu.RUnlock()
	if len(active) == 0 {
		return common.Address{}, fmt.Errorf("consensus: no active validators")
	}
	preimage := fmt.Sprintf("randao-%d-proposer", slot)
	hash := crypto.Keccak256([]byte(preimage))
	idx := binary.BigEndian.Uint64(hash[:8]) % uint64(len(active))
	return active[idx].Address, nil
}

// SelectCommittee deterministically picks the slot's committee via a
// Fisher-Yates shuffle of the active validator list seeded by the
// committee RANDAO seed, returning the first K = min(|V|, CommitteeSize)
// elements.
func (vs *ValidatorSet) SelectCommittee(slot uint64) ([]common.Address, error) {
	vs.mu.RLock()
	active := vs.active()
	vs.mu.RUnlock()
	if len(active) == 0 {
		return nil, fmt.Errorf("consensus: no active validators")
	}

	shuffled := make([]Validator, len(active))
	copy(shuffled, active)

	seed := committeeSeed(slot)
	for i := len(shuffled) - 1; i > 0; i-- {
		seed = nextLCG(seed)
		j := int(seed % uint32(i+1))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	k := CommitteeSize
	if len(shuffled) < k {
		k = len(shuffled)
	}
	committee := make([]common.Address, k)
	for i := 0; i < k; i++ {
		committee[i] = shuffled[i].Address
	}
	return committee, nil
}
