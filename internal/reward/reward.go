// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package reward implements RewardManager (spec §4.H): a pure function
// that splits a base block reward 90/8/1/1 across builder, validators,
// color checker, and reserve. It is grounded on equa_helpers.go's
// processMEVAndRewards (splits a reward into burn/proposer components
// with exact remainder handling) and the teacher's engine-level
// RewardCalculator.CalculateReward (cmd/equa-beacon-engine/engine/
// fork_reputation.go) for the "config in, *big.Int out, no mutation"
// shape. Arithmetic runs in math/big throughout, narrowed to uint64 only
// at the BlockRewards boundary, to keep the split exact for any
// operator-configured base_reward without overflow risk.
package reward

import (
	"errors"
	"math/big"

	"github.com/equa-labs/poai-node/internal/common"
)

// ErrNoValidators is returned when Calculate is given an empty validator
// list, whatever the base reward.
var ErrNoValidators = errors.New("poai: reward split requires at least one validator")

// ErrOverflow is returned when a narrowed share does not fit in a uint64.
var ErrOverflow = errors.New("poai: reward share overflows u64")

// Split percentages, per spec §4.H/§6.
var (
	builderNum    = big.NewInt(90)
	validatorsNum = big.NewInt(8)
	colorNum      = big.NewInt(1)
	reserveNum    = big.NewInt(1)
	denom         = big.NewInt(100)
)

// BlockRewards is the result of Calculate: an address-keyed share map plus
// the aggregate components, per spec §4.H. No state is mutated by
// RewardManager; applying these shares to balances is the ledger's
// concern.
type BlockRewards struct {
	Builder      common.Address
	BuilderShare uint64
	ColorChecker common.Address
	ColorShare   uint64
	ReserveShare uint64
	Validators   map[common.Address]uint64
}

// Calculate computes the 90/8/1/1 split of baseReward across builder,
// validators (equal split, remainder to first in input order), and color
// checker, with all rounding remainder folded into the builder's share
// (spec §4.H, §6).
func Calculate(builder common.Address, validators []common.Address, colorChecker common.Address, baseReward uint64) (BlockRewards, error) {
	if len(validators) == 0 {
		return BlockRewards{}, ErrNoValidators
	}

	base := new(big.Int).SetUint64(baseReward)

	builderShare := floorMul(base, builderNum, denom)
	validatorsTotal := floorMul(base, validatorsNum, denom)
	colorShare := floorMul(base, colorNum, denom)
	reserveShare := floorMul(base, reserveNum, denom)

	allocated := new(big.Int).Add(builderShare, validatorsTotal)
	allocated.Add(allocated, colorShare)
	allocated.Add(allocated, reserveShare)
	remainder := new(big.Int).Sub(base, allocated)
	builderShare.Add(builderShare, remainder)

	n := big.NewInt(int64(len(validators)))
	perValidator := new(big.Int).Div(validatorsTotal, n)
	validatorRemainder := new(big.Int).Mod(validatorsTotal, n)

	shares := make(map[common.Address]uint64, len(validators))
	for i, v := range validators {
		share := new(big.Int).Set(perValidator)
		if i == 0 {
			share.Add(share, validatorRemainder)
		}
		u, err := toUint64(share)
		if err != nil {
			return BlockRewards{}, err
		}
		shares[v] = shares[v] + u
	}

	builderU, err := toUint64(builderShare)
	if err != nil {
		return BlockRewards{}, err
	}
	colorU, err := toUint64(colorShare)
	if err != nil {
		return BlockRewards{}, err
	}
	reserveU, err := toUint64(reserveShare)
	if err != nil {
		return BlockRewards{}, err
	}

	return BlockRewards{
		Builder:      builder,
		BuilderShare: builderU,
		ColorChecker: colorChecker,
		ColorShare:   colorU,
		ReserveShare: reserveU,
		Validators:   shares,
	}, nil
}

// Total sums every share in r; callers use it to assert against the
// original base_reward (spec §8 property 4: reward sum is exact).
func (r BlockRewards) Total() uint64 {
	total := r.BuilderShare + r.ColorShare + r.ReserveShare
	for _, v := range r.Validators {
		total += v
	}
	return total
}

func floorMul(base, num, denom *big.Int) *big.Int {
	product := new(big.Int).Mul(base, num)
	return product.Div(product, denom)
}

func toUint64(v *big.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}
