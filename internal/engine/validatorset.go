// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package engine

import (
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/validator"
)

// ValidatorSet is the engine's in-memory ValidatorStats table (spec §3). It
// satisfies both voting.EligibilityChecker and peervalidator.StatsStore so
// a single instance backs eligibility checks and bookkeeping updates across
// the voting and peer-cross-validation components, mirroring the teacher's
// ReputationManager (cmd/equa-beacon-engine/engine/fork_reputation.go):
// one mutex-guarded address-keyed table, mutated by several call sites
// after the fact rather than inline during validation.
type ValidatorSet struct {
	mu  sync.RWMutex
	cfg validator.EligibilityConfig
	m   map[common.Address]*validator.Stats
}

// NewValidatorSet builds an empty set using cfg as the eligibility floors.
func NewValidatorSet(cfg validator.EligibilityConfig) *ValidatorSet {
	return &ValidatorSet{cfg: cfg, m: make(map[common.Address]*validator.Stats)}
}

// Register adds id to the set with a blank Stats record if not already
// present.
func (vs *ValidatorSet) Register(id common.Address) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if _, ok := vs.m[id]; !ok {
		// Uptime starts at 1.0: a node that just registered is, by
		// definition, online now. It decays only if something tracks
		// missed liveness checks, which this process-local engine does
		// not do, so it stays at its registered value.
		vs.m[id] = &validator.Stats{ID: id, LastActive: time.Now(), Uptime: 1.0}
	}
}

// Addresses returns every registered validator address, in map order.
func (vs *ValidatorSet) Addresses() []common.Address {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]common.Address, 0, len(vs.m))
	for a := range vs.m {
		out = append(out, a)
	}
	return out
}

// Count returns the number of registered validators, used to feed
// voting.Manager.SetTotalValidators.
func (vs *ValidatorSet) Count() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.m)
}

// IsEligible satisfies peervalidator.StatsStore; unregistered addresses are
// not eligible.
func (vs *ValidatorSet) IsEligible(id common.Address) bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	s, ok := vs.m[id]
	if !ok {
		return false
	}
	return s.IsEligible(vs.cfg)
}

// IsEligibleToVote satisfies voting.EligibilityChecker.
func (vs *ValidatorSet) IsEligibleToVote(id common.Address) bool {
	return vs.IsEligible(id)
}

// RecordSuccess satisfies peervalidator.StatsStore: bumps the validation
// score and marks the validator active.
func (vs *ValidatorSet) RecordSuccess(id common.Address) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	s := vs.ensureLocked(id)
	s.BlocksValidated++
	s.LastActive = time.Now()
	s.ValidationScore = clamp01(s.ValidationScore + (1-s.ValidationScore)*0.1)
}

// RecordFailure satisfies peervalidator.StatsStore: decays the validation
// score.
func (vs *ValidatorSet) RecordFailure(id common.Address) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	s := vs.ensureLocked(id)
	s.BlocksRejected++
	s.LastActive = time.Now()
	s.ValidationScore = clamp01(s.ValidationScore * 0.9)
}

// RecordParticipation satisfies peervalidator.StatsStore: updates the
// exponential moving average of voting/response participation.
func (vs *ValidatorSet) RecordParticipation(id common.Address, participated bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	s := vs.ensureLocked(id)
	obs := 0.0
	if participated {
		obs = 1.0
		s.VotesCast++
	}
	s.VotingParticipation = s.VotingParticipation*0.9 + obs*0.1
}

func (vs *ValidatorSet) ensureLocked(id common.Address) *validator.Stats {
	s, ok := vs.m[id]
	if !ok {
		s = &validator.Stats{ID: id}
		vs.m[id] = s
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
