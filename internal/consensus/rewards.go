package consensus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/state"
)

// ProposerReward and CommitteeRewardPool are the process-wide reward
// constants: 2 DSTN and 1 DSTN respectively, in Wei (10^18 Wei/DSTN).
var (
	ProposerReward       = new(uint256.Int).Mul(uint256.NewInt(2), uint256.NewInt(1_000_000_000_000_000_000))
	CommitteeRewardPool  = new(uint256.Int).Mul(uint256.NewInt(1), uint256.NewInt(1_000_000_000_000_000_000))
)

// DistributeRewards credits the proposer with ProposerReward and splits
// CommitteeRewardPool equally among the validators whose attestations
// were included: each gets floor(pool/|atts|); the remainder
// (pool mod |atts|) is forfeited rather than credited anywhere. Rewards
// are credited into mgr's open journal frame. The engine commits that
// frame after the block's own, so the rewards reach the committed state
// root but not the stateRoot in the rewarded block's header; the next
// block's stateRoot includes them.
func DistributeRewards(mgr *state.Manager, proposer common.Address, attestations []Attestation) error {
	if err := mgr.AddBalance(proposer, ProposerReward); err != nil {
		return fmt.Errorf("consensus: credit proposer reward: %w", err)
	}
	if len(attestations) == 0 {
		return nil
	}

	share := new(uint256.Int).Div(CommitteeRewardPool, uint256.NewInt(uint64(len(attestations))))
	if share.IsZero() {
		return nil
	}

	credited := make(map[common.Address]struct{}, len(attestations))
	for _, att := range attestations {
		if _, dup := credited[att.Validator]; dup {
			continue
		}
		credited[att.Validator] = struct{}{}
		if err := mgr.AddBalance(att.Validator, share); err != nil {
			return fmt.Errorf("consensus: credit committee reward to %s: %w", att.Validator, err)
		}
	}
	return nil
}
