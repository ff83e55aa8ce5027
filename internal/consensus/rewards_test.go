package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dstn-labs/dstn/internal/kv"
	"github.com/dstn-labs/dstn/internal/state"
	"github.com/dstn-labs/dstn/internal/trie"
)

func newRewardsManager(t *testing.T) *state.Manager {
	t.Helper()
	mgr, err := state.New(kv.NewMemory(), trie.EmptyRoot)
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	mgr.StartBlock()
	return mgr
}

func TestDistributeRewardsCreditsProposerAndCommittee(t *testing.T) {
	mgr := newRewardsManager(t)
	proposer := common.Address{0x1}
	atts := []Attestation{
		{Validator: common.Address{0x2}},
		{Validator: common.Address{0x3}},
		{Validator: common.Address{0x4}},
	}
	if err := DistributeRewards(mgr, proposer, atts); err != nil {
		t.Fatalf("DistributeRewards: %v", err)
	}

	proposerAcct, err := mgr.GetAccount(proposer)
	if err != nil {
		t.Fatalf("GetAccount(proposer): %v", err)
	}
	if proposerAcct.Balance.Cmp(ProposerReward) != 0 {
		t.Fatalf("proposer balance = %s, want %s", proposerAcct.Balance, ProposerReward)
	}

	wantShare := new(uint256.Int).Div(CommitteeRewardPool, uint256.NewInt(3))
	for _, att := range atts {
		acct, err := mgr.GetAccount(att.Validator)
		if err != nil {
			t.Fatalf("GetAccount(%s): %v", att.Validator, err)
		}
		if acct.Balance.Cmp(wantShare) != 0 {
			t.Fatalf("committee member %s balance = %s, want %s", att.Validator, acct.Balance, wantShare)
		}
	}
}

func TestDistributeRewardsNoAttestationsStillPaysProposer(t *testing.T) {
	mgr := newRewardsManager(t)
	proposer := common.Address{0x1}
	if err := DistributeRewards(mgr, proposer, nil); err != nil {
		t.Fatalf("DistributeRewards: %v", err)
	}
	acct, err := mgr.GetAccount(proposer)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Balance.Cmp(ProposerReward) != 0 {
		t.Fatalf("proposer balance = %s, want %s", acct.Balance, ProposerReward)
	}
}
