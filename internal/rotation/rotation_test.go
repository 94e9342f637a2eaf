// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package rotation

import (
	"testing"

	"github.com/equa-labs/poai-node/internal/common"
)

func addr(s string) common.Address { return common.HexToAddress(s) }

func TestRotationFairnessWindow(t *testing.T) {
	t.Parallel()
	r := New(10)
	b1 := addr("0x1111111111111111111111111111111111111111")

	r.UpdateHeight(100)
	if err := r.RecordSuccess(b1, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.UpdateHeight(105)
	if r.IsEligible(b1) {
		t.Errorf("expected b1 ineligible at height 105")
	}
	if got := r.BlocksUntilEligible(b1); got != 5 {
		t.Errorf("expected 5 blocks until eligible, got %d", got)
	}

	r.UpdateHeight(110)
	if !r.IsEligible(b1) {
		t.Errorf("expected b1 eligible at height 110")
	}
}

func TestRecordSuccessFailsWhenIneligible(t *testing.T) {
	t.Parallel()
	r := New(10)
	b1 := addr("0x2222222222222222222222222222222222222222")
	r.UpdateHeight(10)
	if err := r.RecordSuccess(b1, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.UpdateHeight(12)
	if err := r.RecordSuccess(b1, 12); err == nil {
		t.Errorf("expected error recording success for ineligible builder")
	}
}

func TestFilterEligibleReturnsOnlyEligible(t *testing.T) {
	t.Parallel()
	r := New(10)
	b1 := addr("0x3333333333333333333333333333333333333333")
	b2 := addr("0x4444444444444444444444444444444444444444")
	r.UpdateHeight(50)
	if err := r.RecordSuccess(b1, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := r.FilterEligible([]common.Address{b1, b2})
	if len(got) != 1 || got[0] != b2 {
		t.Errorf("expected only b2 eligible, got %v", got)
	}
}

func TestSelectIsDeterministicForSameSeed(t *testing.T) {
	t.Parallel()
	r := New(10)
	eligible := []common.Address{
		addr("0x5555555555555555555555555555555555555555"),
		addr("0x6666666666666666666666666666666666666666"),
	}
	a, ok := r.Select(7, eligible)
	if !ok {
		t.Fatalf("expected a selection")
	}
	b, ok := r.Select(7, eligible)
	if !ok {
		t.Fatalf("expected a selection")
	}
	if a != b {
		t.Errorf("expected deterministic selection for identical inputs")
	}
}

func TestSelectEmptyCandidates(t *testing.T) {
	t.Parallel()
	r := New(10)
	_, ok := r.Select(1, nil)
	if ok {
		t.Errorf("expected no selection from empty candidate set")
	}
}

func TestUpdateHeightPurgesExpiredTimeouts(t *testing.T) {
	t.Parallel()
	r := New(5)
	b1 := addr("0x7777777777777777777777777777777777777777")
	r.UpdateHeight(0)
	if err := r.RecordSuccess(b1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.timeouts.Len() != 1 {
		t.Fatalf("expected 1 queued timeout, got %d", r.timeouts.Len())
	}
	r.UpdateHeight(5)
	if r.timeouts.Len() != 0 {
		t.Errorf("expected timeout purged at expiry height, got %d remaining", r.timeouts.Len())
	}
}
