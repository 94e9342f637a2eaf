// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package reward

import (
	"testing"

	"github.com/equa-labs/poai-node/internal/common"
)

func addr(s string) common.Address { return common.HexToAddress(s) }

func TestCalculateSplitSumsExactly(t *testing.T) {
	t.Parallel()
	builder := addr("0x1111111111111111111111111111111111111111")
	v1 := addr("0x2222222222222222222222222222222222222222")
	v2 := addr("0x3333333333333333333333333333333333333333")
	v3 := addr("0x4444444444444444444444444444444444444444")
	checker := addr("0x5555555555555555555555555555555555555555")

	r, err := Calculate(builder, []common.Address{v1, v2, v3}, checker, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.BuilderShare != 900 {
		t.Errorf("expected builder share 900, got %d", r.BuilderShare)
	}
	if r.ColorShare != 10 {
		t.Errorf("expected color share 10, got %d", r.ColorShare)
	}
	if r.ReserveShare != 10 {
		t.Errorf("expected reserve share 10, got %d", r.ReserveShare)
	}
	if r.Validators[v1] != 28 || r.Validators[v2] != 26 || r.Validators[v3] != 26 {
		t.Errorf("expected validator split 28/26/26, got %d/%d/%d", r.Validators[v1], r.Validators[v2], r.Validators[v3])
	}
	if r.Total() != 1000 {
		t.Errorf("expected total of 1000, got %d", r.Total())
	}
}

func TestCalculateRejectsEmptyValidatorSet(t *testing.T) {
	t.Parallel()
	builder := addr("0x1111111111111111111111111111111111111111")
	checker := addr("0x5555555555555555555555555555555555555555")
	if _, err := Calculate(builder, nil, checker, 1000); err == nil {
		t.Errorf("expected error for empty validator set")
	}
}

func TestCalculateExactSumAcrossVariousBases(t *testing.T) {
	t.Parallel()
	builder := addr("0x1111111111111111111111111111111111111111")
	checker := addr("0x5555555555555555555555555555555555555555")
	validators := []common.Address{
		addr("0x2222222222222222222222222222222222222222"),
		addr("0x3333333333333333333333333333333333333333"),
	}
	for _, base := range []uint64{1, 7, 99, 500000, 123456789} {
		r, err := Calculate(builder, validators, checker, base)
		if err != nil {
			t.Fatalf("base=%d: unexpected error: %v", base, err)
		}
		if r.Total() != base {
			t.Errorf("base=%d: expected exact sum, got %d", base, r.Total())
		}
	}
}
