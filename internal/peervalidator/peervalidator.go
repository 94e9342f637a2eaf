// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package peervalidator implements PeerValidator (spec §4.J): broadcast a
// validation request to eligible peers, collect their responses under a
// deadline, and compute a count-weighted majority verdict. It is grounded
// on FinalityEngine.calculateAttestingStake/calculateAverage*Score
// (cmd/equa-beacon-engine/engine/finality.go), adapted from stake-weighted
// to count-weighted per §4.J, and on the request/await-with-deadline shape
// of cmd/equa-beacon-engine/engine/rpc.go.
package peervalidator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
)

// ErrInsufficientParticipation is returned when too few peers responded
// within the deadline to reach a verdict (spec §4.J step 4).
var ErrInsufficientParticipation = errors.New("poai: insufficient peer participation")

// Tunables, per spec §6.
const (
	DefaultResponseDeadline = 10 * time.Second
	DefaultMinParticipation = 0.60
	DefaultMajority         = 0.50
)

// Request is ValidationRequest from spec §6.
type Request struct {
	BlockHash common.Hash
	Validator common.Address
	Timestamp time.Time
}

// Response is ValidationResponse from spec §6.
type Response struct {
	BlockHash common.Hash
	IsValid   bool
	Score     uint8
	Validator common.Address
}

// Broadcaster is the narrow network surface PeerValidator needs.
type Broadcaster interface {
	BroadcastValidationRequest(req Request)
	Peers() []common.Address
}

// StatsStore lets PeerValidator read eligibility and mutate bookkeeping
// counters after a round (spec §4.J step 6).
type StatsStore interface {
	IsEligible(peer common.Address) bool
	RecordSuccess(peer common.Address)
	RecordFailure(peer common.Address)
	RecordParticipation(peer common.Address, participated bool)
}

// Outcome is the result of one validate_block_with_peers call.
type Outcome struct {
	Approved      bool
	Participation float64
	Responses     int
	Eligible      int
}

// PeerValidator coordinates a single round of peer cross-validation.
type PeerValidator struct {
	net             Broadcaster
	stats           StatsStore
	responseDeadline time.Duration
	minParticipation float64
	majority        float64

	mu      sync.Mutex
	pending map[common.Hash]chan Response
}

// New builds a PeerValidator with the given collaborators and tunables.
func New(net Broadcaster, stats StatsStore, responseDeadline time.Duration, minParticipation, majority float64) *PeerValidator {
	return &PeerValidator{
		net:              net,
		stats:            stats,
		responseDeadline: responseDeadline,
		minParticipation: minParticipation,
		majority:         majority,
		pending:          make(map[common.Hash]chan Response),
	}
}

// HandleResponse routes an inbound ValidationResponse to the waiting
// collector for its block hash, if any. Late responses (after the
// deadline, once the channel has been torn down) are dropped silently,
// per spec §4.J step 3.
func (p *PeerValidator) HandleResponse(blockHash common.Hash, resp Response) {
	p.mu.Lock()
	ch, ok := p.pending[blockHash]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// ValidateBlockWithPeers runs the full peer cross-check for blockHash,
// per spec §4.J.
func (p *PeerValidator) ValidateBlockWithPeers(ctx context.Context, blockHash common.Hash, self common.Address) (Outcome, error) {
	eligible := make([]common.Address, 0)
	for _, peer := range p.net.Peers() {
		if p.stats == nil || p.stats.IsEligible(peer) {
			eligible = append(eligible, peer)
		}
	}
	if len(eligible) == 0 {
		return Outcome{}, ErrInsufficientParticipation
	}

	ch := make(chan Response, len(eligible))
	p.mu.Lock()
	p.pending[blockHash] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, blockHash)
		p.mu.Unlock()
	}()

	p.net.BroadcastValidationRequest(Request{BlockHash: blockHash, Validator: self, Timestamp: time.Now()})

	deadlineCtx, cancel := context.WithTimeout(ctx, p.responseDeadline)
	defer cancel()

	responded := make(map[common.Address]Response)
collect:
	for len(responded) < len(eligible) {
		select {
		case resp := <-ch:
			responded[resp.Validator] = resp
		case <-deadlineCtx.Done():
			break collect
		}
	}

	participation := float64(len(responded)) / float64(len(eligible))
	if p.stats != nil {
		for _, peer := range eligible {
			_, ok := responded[peer]
			p.stats.RecordParticipation(peer, ok)
		}
	}
	if participation < p.minParticipation {
		return Outcome{Participation: participation, Responses: len(responded), Eligible: len(eligible)}, ErrInsufficientParticipation
	}

	var valid int
	for _, resp := range responded {
		if resp.IsValid {
			valid++
		}
	}
	approved := float64(valid)/float64(len(eligible)) >= p.majority

	if p.stats != nil {
		if approved {
			p.stats.RecordSuccess(self)
		} else {
			p.stats.RecordFailure(self)
		}
	}

	return Outcome{
		Approved:      approved,
		Participation: participation,
		Responses:     len(responded),
		Eligible:      len(eligible),
	}, nil
}
