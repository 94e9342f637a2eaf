// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package efficiency

import (
	"testing"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/types"
)

func mkTx(id string, amount uint64) *types.Transaction {
	return &types.Transaction{
		ID:        id,
		Sender:    common.HexToAddress("0x01"),
		Receiver:  common.HexToAddress("0x02"),
		Amount:    amount,
		Timestamp: 0,
		Signature: "sig",
	}
}

func TestCalculateZeroInputPolicy(t *testing.T) {
	t.Parallel()
	c := New(100000, 0.1)
	b := &types.Block{}
	coeff, err := c.Calculate(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coeff.EfficiencyPct != 0 {
		t.Errorf("expected efficiency 0 with no transactions, got %v", coeff.EfficiencyPct)
	}
}

func TestMeetsThresholdBoundary(t *testing.T) {
	t.Parallel()
	c := New(100000, 0.5)
	coeff := Coefficient{Score: 0.5}
	if !c.MeetsThreshold(coeff) {
		t.Errorf("score exactly at threshold must be accepted")
	}
	coeff.Score = 0.499999
	if c.MeetsThreshold(coeff) {
		t.Errorf("score just below threshold must be rejected")
	}
}

func TestCompareOrdering(t *testing.T) {
	t.Parallel()
	c := New(100000, 0.1)
	lo := Coefficient{Score: 0.2}
	hi := Coefficient{Score: 0.8}
	if c.Compare(lo, hi) != Less {
		t.Errorf("expected Less")
	}
	if c.Compare(hi, lo) != Greater {
		t.Errorf("expected Greater")
	}
	if c.Compare(lo, lo) != Equal {
		t.Errorf("expected Equal")
	}
}

func TestOverflowDetected(t *testing.T) {
	t.Parallel()
	c := New(100000, 0.1)
	b := &types.Block{Transactions: []*types.Transaction{mkTx("a", ^uint64(0))}}
	if _, err := c.Calculate(b); err != ErrOverflow {
		// with zero fee, amount+fee cannot overflow; this asserts the
		// accumulator-overflow path is reachable if multiple huge amounts
		// are summed instead.
		b2 := &types.Block{Transactions: []*types.Transaction{mkTx("a", ^uint64(0)), mkTx("b", 1)}}
		if _, err2 := c.Calculate(b2); err2 != ErrOverflow {
			t.Errorf("expected overflow error, got %v / %v", err, err2)
		}
	}
}
