// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package voting

import (
	"testing"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
)

type fakeBroadcaster struct {
	starts  int
	votes   int
	results []Result
}

func (f *fakeBroadcaster) BroadcastVotingStart(common.Hash, string) { f.starts++ }
func (f *fakeBroadcaster) BroadcastVote(Vote, string)               { f.votes++ }
func (f *fakeBroadcaster) BroadcastVotingResult(r Result)           { f.results = append(f.results, r) }

type allowAll struct{}

func (allowAll) IsEligibleToVote(common.Address) bool { return true }

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func TestStartForbidsDoubleStart(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Hour, DefaultMinParticipation, DefaultQuorum, &fakeBroadcaster{}, allowAll{})
	m.SetTotalValidators(10)
	bh := common.BytesToHash([]byte("block1"))
	if _, err := m.Start(bh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Start(bh); err != ErrAlreadyInProgress {
		t.Errorf("expected ErrAlreadyInProgress, got %v", err)
	}
}

func TestEndRoundFailsBelowMinParticipation(t *testing.T) {
	t.Parallel()
	bc := &fakeBroadcaster{}
	m := NewManager(time.Hour, DefaultMinParticipation, DefaultQuorum, bc, allowAll{})
	m.SetTotalValidators(10)
	bh := common.BytesToHash([]byte("block2"))
	m.Start(bh)

	scores := []uint8{80, 70, 60, 90, 55}
	for i, s := range scores {
		if err := m.CastVote(addr(byte(i+1)), bh, s); err != nil {
			t.Fatalf("unexpected error casting vote: %v", err)
		}
	}
	res := m.EndRound(bh, ReasonNone)
	if res.Status != Failed || res.Reason != ReasonInsufficientParticipation {
		t.Errorf("expected Failed/InsufficientParticipation, got %+v", res)
	}
}

func TestEndRoundApprovesOnSufficientParticipationAndScore(t *testing.T) {
	t.Parallel()
	bc := &fakeBroadcaster{}
	m := NewManager(time.Hour, DefaultMinParticipation, DefaultQuorum, bc, allowAll{})
	m.SetTotalValidators(10)
	bh := common.BytesToHash([]byte("block3"))
	m.Start(bh)

	scores := []uint8{80, 70, 60, 90, 55, 40, 30}
	for i, s := range scores {
		if err := m.CastVote(addr(byte(i+1)), bh, s); err != nil {
			t.Fatalf("unexpected error casting vote: %v", err)
		}
	}
	res := m.EndRound(bh, ReasonNone)
	if res.Status != Completed || !res.Approved {
		t.Errorf("expected Completed/approved, got %+v", res)
	}
}

func TestCastVoteRejectsDuplicate(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Hour, DefaultMinParticipation, DefaultQuorum, &fakeBroadcaster{}, allowAll{})
	m.SetTotalValidators(10)
	bh := common.BytesToHash([]byte("block4"))
	m.Start(bh)
	v := addr(1)
	if err := m.CastVote(v, bh, 80); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.CastVote(v, bh, 90); err != ErrDuplicateVote {
		t.Errorf("expected ErrDuplicateVote, got %v", err)
	}
}

func TestShutdownFailsInFlightRound(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Hour, DefaultMinParticipation, DefaultQuorum, &fakeBroadcaster{}, allowAll{})
	m.SetTotalValidators(10)
	bh := common.BytesToHash([]byte("block5"))
	m.Start(bh)
	m.Shutdown()
	round, inProgress := m.Current()
	if inProgress {
		t.Errorf("expected round no longer in progress after shutdown")
	}
	if round.Status != Failed {
		t.Errorf("expected Failed status after shutdown, got %v", round.Status)
	}
}
