// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package rotation implements BuilderRotation (spec §4.G): an N-block
// timeout that prevents the same builder address from producing two
// blocks within N heights, plus deterministic narrowing of a candidate
// set. It is grounded on the teacher's StakeManager.LastBlock tracking
// (consensus/equa/stake.go) for the per-address map, and on
// ProposerSelector.generateSelectionSeed (cmd/equa-beacon-engine/engine/
// proposer.go) for the process-persistent wall-clock seed; the timeout
// queue is a container/list-backed FIFO mirroring
// AttestationPool.cleanOldAttestations' age-based purge shape
// (cmd/equa-beacon-engine/engine/attestation.go).
package rotation

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
)

// ErrNotEligible is returned by RecordSuccess when called for a builder
// still inside its timeout window.
var ErrNotEligible = errors.New("poai: builder not eligible")

type timeoutEntry struct {
	builder common.Address
	expiry  uint64
}

// Rotation tracks builder success heights and enforces the N-block
// timeout from spec §4.G.
type Rotation struct {
	mu            sync.Mutex
	timeoutBlocks uint64
	currentHeight uint64
	lastSuccess   map[common.Address]uint64
	timeouts      *list.List // ordered by expiry ascending
	seed          uint64
}

// New builds a Rotation with the given N-block timeout. The selection
// seed is derived once from wall-clock at construction and held for the
// life of the process (spec §4.G: "process-persistent, derived at start
// from wall-clock").
func New(timeoutBlocks uint64) *Rotation {
	return &Rotation{
		timeoutBlocks: timeoutBlocks,
		lastSuccess:   make(map[common.Address]uint64),
		timeouts:      list.New(),
		seed:          uint64(time.Now().UnixNano()),
	}
}

// UpdateHeight sets the current height and purges expired timeout
// entries from the front of the queue.
func (r *Rotation) UpdateHeight(h uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentHeight = h
	for e := r.timeouts.Front(); e != nil; {
		entry := e.Value.(timeoutEntry)
		if entry.expiry > h {
			break
		}
		next := e.Next()
		r.timeouts.Remove(e)
		e = next
	}
}

// IsEligible reports whether builder may produce a block at the current
// height: either never seen, or its last success was at least N blocks
// ago (last success + N <= current height).
func (r *Rotation) IsEligible(builder common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isEligibleLocked(builder)
}

func (r *Rotation) isEligibleLocked(builder common.Address) bool {
	last, seen := r.lastSuccess[builder]
	return !seen || last+r.timeoutBlocks <= r.currentHeight
}

// RecordSuccess marks builder as having succeeded at height h, pushing a
// timeout entry expiring at h+N. It fails if builder is not currently
// eligible.
func (r *Rotation) RecordSuccess(builder common.Address, h uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isEligibleLocked(builder) {
		return ErrNotEligible
	}
	r.lastSuccess[builder] = h
	r.insertTimeout(timeoutEntry{builder: builder, expiry: h + r.timeoutBlocks})
	return nil
}

// insertTimeout keeps the queue ordered by expiry ascending so
// UpdateHeight can purge from the front in O(expired count).
func (r *Rotation) insertTimeout(entry timeoutEntry) {
	for e := r.timeouts.Back(); e != nil; e = e.Prev() {
		if e.Value.(timeoutEntry).expiry <= entry.expiry {
			r.timeouts.InsertAfter(entry, e)
			return
		}
	}
	r.timeouts.PushFront(entry)
}

// BlocksUntilEligible reports how many more heights must pass before
// builder becomes eligible again, or 0 if already eligible.
func (r *Rotation) BlocksUntilEligible(builder common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, seen := r.lastSuccess[builder]
	if !seen {
		return 0
	}
	expiry := last + r.timeoutBlocks
	if expiry <= r.currentHeight {
		return 0
	}
	return expiry - r.currentHeight
}

// FilterEligible returns the subset of candidates that pass IsEligible,
// preserving input order.
func (r *Rotation) FilterEligible(candidates []common.Address) []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]common.Address, 0, len(candidates))
	for _, c := range candidates {
		if r.isEligibleLocked(c) {
			out = append(out, c)
		}
	}
	return out
}

// Select deterministically narrows eligible to one candidate using the
// process seed: idx = (height * seed) mod len(eligible). The seed is not
// security-critical — rotation guarantees liveness/fairness, not Sybil
// resistance (spec §4.G).
func (r *Rotation) Select(height uint64, eligible []common.Address) (common.Address, bool) {
	if len(eligible) == 0 {
		return common.Address{}, false
	}
	r.mu.Lock()
	seed := r.seed
	r.mu.Unlock()
	idx := (height * seed) % uint64(len(eligible))
	return eligible[idx], true
}
