package consensus

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func testValidators(n int) []Validator {
	vs := make([]Validator, n)
	for i := 0; i < n; i++ {
		var addr [20]byte
		addr[19] = byte(i + 1)
		vs[i] = Validator{Address: addr, Active: true}
	}
	return vs
}

func TestSelectProposerIsDeterministic(t *testing.T) {
	vs := NewValidatorSet(testValidators(10))
	a, err := vs.SelectProposer(5)
	if err != nil {
		t.Fatalf("SelectProposer: %v", err)
	}
	b, err := vs.SelectProposer(5)
	if err != nil {
		t.Fatalf("SelectProposer: %v", err)
	}
	if a != b {
		t.Fatalf("SelectProposer(5) is not deterministic: %x != %x", a, b)
	}
}

func TestSelectProposerVariesBySlot(t *testing.T) {
	vs := NewValidatorSet(testValidators(10))
	seen := map[[20]byte]bool{}
	for slot := uint64(0); slot < 20; slot++ {
		p, err := vs.SelectProposer(slot)
		if err != nil {
			t.Fatalf("SelectProposer(%d): %v", slot, err)
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected proposer selection to vary across slots, saw %d distinct", len(seen))
	}
}

func TestSelectCommitteeSizeCapped(t *testing.T) {
	vs := NewValidatorSet(testValidators(200))
	committee, err := vs.SelectCommittee(1)
	if err != nil {
		t.Fatalf("SelectCommittee: %v", err)
	}
	if len(committee) != CommitteeSize {
		t.Fatalf("len(committee) = %d, want %d", len(committee), CommitteeSize)
	}
}

func TestSelectCommitteeSmallerThanCap(t *testing.T) {
	vs := NewValidatorSet(testValidators(5))
	committee, err := vs.SelectCommittee(1)
	if err != nil {
		t.Fatalf("SelectCommittee: %v", err)
	}
	if len(committee) != 5 {
		t.Fatalf("len(committee) = %d, want 5", len(committee))
	}
}

func TestSelectCommitteeIsDeterministic(t *testing.T) {
	vs := NewValidatorSet(testValidators(30))
	a, err := vs.SelectCommittee(7)
	if err != nil {
		t.Fatalf("SelectCommittee: %v", err)
	}
	b, err := vs.SelectCommittee(7)
	if err != nil {
		t.Fatalf("SelectCommittee: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("SelectCommittee(7) is not deterministic at index %d", i)
		}
	}
}

func TestSelectProposerMatchesRandaoFormula(t *testing.T) {
	vs := NewValidatorSet(testValidators(17))
	const slot = 42
	preimage := fmt.Sprintf("randao-%d-proposer", slot)
	hash := crypto.Keccak256([]byte(preimage))
	wantIdx := binary.BigEndian.Uint64(hash[:8]) % 17

	got, err := vs.SelectProposer(slot)
	if err != nil {
		t.Fatalf("SelectProposer: %v", err)
	}
	want := testValidators(17)[wantIdx].Address
	if got != want {
		t.Fatalf("SelectProposer(%d) = %x, want %x (index %d)", slot, got, want, wantIdx)
	}
}

func TestSelectProposerNoValidators(t *testing.T) {
	vs := NewValidatorSet(nil)
	if _, err := vs.SelectProposer(1); err == nil {
		t.Fatalf("expected error selecting proposer with no validators")
	}
}
