package consensus

import (
	"github.com/ethereum/go-ethereum/common"
)

// Attestation is a committee member's signed endorsement of a
// proposed block.
type Attestation struct {
	Slot      uint64
	BlockHash common.Hash
	Validator common.Address
	Signature []byte
}

// Attester solicits an attestation from a single committee member for
// a proposed block. A single-process deployment calls this
// synchronously per member; a networked implementation could instead
// poll peers concurrently behind the same signature.
type Attester interface {
	Attest(block common.Hash, slot uint64, validator common.Address) (*Attestation, error)
}

// CollectAttestations solicits one attestation per committee member,
// sequentially, and discards duplicate attestations from the same
// validator before returning. A member that fails or refuses to attest
// is simply absent from the result — the supermajority check tolerates
// partial participation.
func CollectAttestations(attester Attester, blockHash common.Hash, slot uint64, committee []common.Address) []Attestation {
	seen := make(map[common.Address]struct{}, len(committee))
	out := make([]Attestation, 0, len(committee))
	for _, validator := range committee {
		if _, dup := seen[validator]; dup {
			continue
		}
		att, err := attester.Attest(blockHash, slot, validator)
		if err != nil || att == nil {
			continue
		}
		seen[validator] = struct{}{}
		out = append(out, *att)
	}
	return out
}

// HasSupermajority reports whether len(attestations) is at least two
// thirds of committeeSize: attestations*3 >= committeeSize*2.
func HasSupermajority(attestations []Attestation, committeeSize int) bool {
	return len(attestations)*3 >= committeeSize*2
}

// LocalAttester is the minimum-viable-core Attester: every solicited
// validator attests unconditionally. There is no peer-to-peer network
// to poll a remote validator over, so this stands in for a
// single-process deployment where every validator runs in-process.
type LocalAttester struct{}

func (LocalAttester) Attest(block common.Hash, slot uint64, validator common.Address) (*Attestation, error) {
	return &Attestation{Slot: slot, BlockHash: block, Validator: validator}, nil
}
