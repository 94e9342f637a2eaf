// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package efficiency computes the deterministic efficiency coefficient
// that PoAI uses to order and gate competing blocks (spec §3, §4.A). It is
// pure and side-effect free, mirroring the two-ratio blend the teacher's
// ForkChoice.updateForkWeight performs over MEV penalty and ordering
// bonus, here over fee-burn ratio and block-space utilization.
package efficiency

import (
	"errors"
	"math"

	"github.com/equa-labs/poai-node/internal/types"
)

// ErrOverflow is returned when a transaction's amount+fee would overflow
// a u64 accumulator.
var ErrOverflow = errors.New("poai: efficiency calculation overflow")

// baseTxBytes is the fixed per-transaction byte overhead counted toward
// useful_bytes, per spec §4.A.
const baseTxBytes = 80

// txEnvelopeOverhead is the fixed overhead added per transaction on top of
// its useful bytes when computing block_bytes (spec §4.A: "+50").
const txEnvelopeOverhead = 50

// blockHeaderBytes approximates the fixed header overhead counted toward
// block_bytes, per spec §4.A ("header(≈200)").
const blockHeaderBytes = 200

// Coefficient is the result of Calculate: a [0,1] score blending fee-burn
// efficiency and block-space utilization, per spec §3.
type Coefficient struct {
	Score          float64
	TotalInput     uint64
	TotalOutput    uint64
	EfficiencyPct  float64
	UtilizationPct float64
}

// Calculator is a pure function object parameterized by the block-size cap
// and the acceptance threshold used by MeetsThreshold.
type Calculator struct {
	MaxBlockSize int
	MinThreshold float64
}

// New returns a Calculator with the given size cap and acceptance
// threshold (spec §4.A parameters).
func New(maxBlockSize int, minThreshold float64) *Calculator {
	return &Calculator{MaxBlockSize: maxBlockSize, MinThreshold: minThreshold}
}

// txFee is a placeholder fee accessor: this spec's Transaction has no
// explicit fee field, so the fee contribution is always zero and
// total_input degenerates to total_output's sum of amounts. Kept as a
// named function (rather than inlined 0) so a future fee field only needs
// one call site changed.
func txFee(*types.Transaction) uint64 { return 0 }

// Calculate computes block's EfficiencyCoefficient per spec §4.A.
func (c *Calculator) Calculate(b *types.Block) (Coefficient, error) {
	var totalInput, totalOutput uint64
	var usefulBytes int

	for _, tx := range b.Transactions {
		fee := txFee(tx)
		sum := tx.Amount + fee
		if sum < tx.Amount {
			return Coefficient{}, ErrOverflow
		}
		newTotalInput := totalInput + sum
		if newTotalInput < totalInput {
			return Coefficient{}, ErrOverflow
		}
		totalInput = newTotalInput
		totalOutput += tx.Amount

		usefulBytes += baseTxBytes + len(tx.ID) + len(tx.Signature)
	}

	blockBytes := blockHeaderBytes
	for range b.Transactions {
		blockBytes += txEnvelopeOverhead
	}
	blockBytes += usefulBytes

	var effPct float64
	if totalInput != 0 {
		effPct = float64(totalInput-totalOutput) / float64(totalInput) * 100
	}

	var utilPct float64
	if c.MaxBlockSize > 0 {
		utilPct = float64(usefulBytes) / float64(c.MaxBlockSize) * 100
	}

	score := 0.7*(effPct/100) + 0.3*(utilPct/100)

	return Coefficient{
		Score:          score,
		TotalInput:     totalInput,
		TotalOutput:    totalOutput,
		EfficiencyPct:  effPct,
		UtilizationPct: utilPct,
	}, nil
}

// MeetsThreshold reports whether coeff clears the configured minimum.
func (c *Calculator) MeetsThreshold(coeff Coefficient) bool {
	return coeff.Score >= c.MinThreshold
}

// Ordering mirrors a three-way comparison result (spec §4.A: Less, Equal,
// Greater).
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// CompareBlocks computes and compares the efficiency of two blocks
// directly; used by AIValidator's reference-block dominance check (spec
// §4.F step 5).
func (c *Calculator) CompareBlocks(a, b *types.Block) (Ordering, error) {
	ca, err := c.Calculate(a)
	if err != nil {
		return Equal, err
	}
	cb, err := c.Calculate(b)
	if err != nil {
		return Equal, err
	}
	return c.Compare(ca, cb), nil
}

// Compare orders two coefficients by Score ascending. NaN cannot occur
// given Calculate's policy (total_input == 0 forces EfficiencyPct to 0),
// but is treated as Equal defensively, per spec §4.A.
func (c *Calculator) Compare(a, b Coefficient) Ordering {
	if math.IsNaN(a.Score) || math.IsNaN(b.Score) {
		return Equal
	}
	switch {
	case a.Score < b.Score:
		return Less
	case a.Score > b.Score:
		return Greater
	default:
		return Equal
	}
}
