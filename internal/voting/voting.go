// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package voting implements VotingRound (spec §4.I): a bounded-time
// vote-collection state machine closed by quorum or timer. It is
// grounded on the teacher's AttestationPool+FinalityEngine pair
// (cmd/equa-beacon-engine/engine/attestation.go, finality.go):
// AttestationPool's "collect signed per-validator votes keyed by
// round/slot, guard duplicates, compute participation" is exactly
// cast_vote's bookkeeping; FinalityEngine.CheckFinality's
// stake-threshold-then-justify-then-finalize progression is adapted here
// into the quorum-or-timer close. round_id uses github.com/google/uuid,
// present in the teacher's go.mod.
package voting

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/equa-labs/poai-node/internal/common"
)

// Status is VotingRound's state, per spec §3.
type Status int

const (
	Idle Status = iota
	InProgress
	Completed
	Failed
)

// FailReason records why a round ended Failed, for metrics and logging
// (spec §7).
type FailReason string

const (
	ReasonNone                    FailReason = ""
	ReasonInsufficientParticipation FailReason = "InsufficientParticipation"
	ReasonShutdown                FailReason = "Shutdown"
)

var (
	// ErrAlreadyInProgress is returned by Start when a round is active.
	ErrAlreadyInProgress = errors.New("poai: voting round already in progress")
	// ErrNotInProgress is returned by CastVote when there is no active
	// round to act on.
	ErrNotInProgress = errors.New("poai: no voting round in progress")
	// ErrDuplicateVote is returned when a validator has already voted in
	// the active round.
	ErrDuplicateVote = errors.New("poai: validator already voted this round")
)

// Tunables, per spec §6 defaults.
const (
	DefaultVotingWindow    = 300 * time.Second
	DefaultMinParticipation = 0.60
	DefaultQuorum          = 0.67
)

// Vote is a single validator's signed score for a block, per spec §3.
type Vote struct {
	BlockHash common.Hash
	Validator common.Address
	Timestamp time.Time
	Score     uint8
}

// Result is the outcome of a closed round: whether it reached Completed
// with approval, or Failed with a reason.
type Result struct {
	RoundID   string
	BlockHash common.Hash
	Status    Status
	Approved  bool
	Reason    FailReason
	AvgScore  float64
	Participation float64
}

// Round is a single VotingRound instance.
type Round struct {
	ID        string
	BlockHash common.Hash
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Votes     map[common.Address]Vote
}

// Broadcaster is the narrow slice of NetworkAdapter VotingRound needs to
// announce state transitions (spec §6 message set).
type Broadcaster interface {
	BroadcastVotingStart(blockHash common.Hash, roundID string)
	BroadcastVote(v Vote, roundID string)
	BroadcastVotingResult(r Result)
}

// EligibilityChecker reports whether validator may cast a vote, per spec
// §4.I ("passes ValidatorStats eligibility").
type EligibilityChecker interface {
	IsEligibleToVote(validator common.Address) bool
}

// Manager drives a single VotingRound at a time, per spec §3 ("one active
// round at a time per node").
type Manager struct {
	mu            sync.Mutex
	window        time.Duration
	minParticipation float64
	quorum        float64
	totalValidators int
	current       *Round
	timer         *time.Timer
	net           Broadcaster
	eligibility   EligibilityChecker
	onResult      func(Result)
}

// NewManager builds a Manager with the given tunables and collaborators.
func NewManager(window time.Duration, minParticipation, quorum float64, net Broadcaster, eligibility EligibilityChecker) *Manager {
	return &Manager{
		window:           window,
		minParticipation: minParticipation,
		quorum:           quorum,
		net:              net,
		eligibility:      eligibility,
	}
}

// OnResult registers fn to be called with every round's Result, in
// addition to the network broadcast; used by the engine façade to drive
// reward distribution and chain append on approval.
func (m *Manager) OnResult(fn func(Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResult = fn
}

// SetTotalValidators updates the active-set size used to compute
// participation; called by the engine whenever the validator set changes.
func (m *Manager) SetTotalValidators(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalValidators = n
}

// Start opens a new round for blockHash. Forbidden while another round is
// InProgress (spec §4.I).
func (m *Manager) Start(blockHash common.Hash) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Status == InProgress {
		return nil, ErrAlreadyInProgress
	}

	now := time.Now()
	round := &Round{
		ID:        uuid.NewString(),
		BlockHash: blockHash,
		StartTime: now,
		EndTime:   now.Add(m.window),
		Status:    InProgress,
		Votes:     make(map[common.Address]Vote),
	}
	m.current = round
	if m.net != nil {
		m.net.BroadcastVotingStart(blockHash, round.ID)
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.window, func() {
		m.EndRound(blockHash, ReasonNone)
	})
	return round, nil
}

// CastVote records validator's vote for the active round. Duplicate votes
// and ineligible validators are rejected without failing the round (spec
// §7: "vote discarded, round continues").
func (m *Manager) CastVote(validator common.Address, blockHash common.Hash, score uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.Status != InProgress {
		return ErrNotInProgress
	}
	if m.eligibility != nil && !m.eligibility.IsEligibleToVote(validator) {
		return nil
	}
	if _, dup := m.current.Votes[validator]; dup {
		return ErrDuplicateVote
	}
	v := Vote{BlockHash: blockHash, Validator: validator, Timestamp: time.Now(), Score: score}
	m.current.Votes[validator] = v
	if m.net != nil {
		m.net.BroadcastVote(v, m.current.ID)
	}

	if m.totalValidators > 0 {
		participation := float64(len(m.current.Votes)) / float64(m.totalValidators)
		if participation >= m.quorum {
			round := m.current
			go m.EndRound(round.BlockHash, ReasonNone)
		}
	}
	return nil
}

// EndRound closes the active round (called by the timer or on quorum) and
// computes the final Result per spec §4.I.
func (m *Manager) EndRound(blockHash common.Hash, forcedReason FailReason) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.Status != InProgress || m.current.BlockHash != blockHash {
		return Result{Status: Failed, Reason: ReasonNone}
	}
	if m.timer != nil {
		m.timer.Stop()
	}

	round := m.current
	total := m.totalValidators
	if total <= 0 {
		total = len(round.Votes)
	}

	var participation float64
	if total > 0 {
		participation = float64(len(round.Votes)) / float64(total)
	}

	result := Result{RoundID: round.ID, BlockHash: round.BlockHash, Participation: participation}

	if forcedReason == ReasonShutdown {
		round.Status = Failed
		result.Status = Failed
		result.Reason = ReasonShutdown
	} else if participation < m.minParticipation {
		round.Status = Failed
		result.Status = Failed
		result.Reason = ReasonInsufficientParticipation
	} else {
		var sum float64
		for _, v := range round.Votes {
			sum += float64(v.Score)
		}
		avg := sum / float64(len(round.Votes))
		result.AvgScore = avg
		round.Status = Completed
		result.Status = Completed
		result.Approved = avg > 50
	}

	if m.net != nil {
		m.net.BroadcastVotingResult(result)
	}
	if m.onResult != nil {
		result := result
		go m.onResult(result)
	}
	return result
}

// Shutdown aborts any in-flight round to Failed(Shutdown) without
// mutating chain state, per spec §5 cancellation semantics.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	round := m.current
	m.mu.Unlock()
	if round == nil || round.Status != InProgress {
		return
	}
	m.EndRound(round.BlockHash, ReasonShutdown)
}

// Current returns the active round, if any.
func (m *Manager) Current() (*Round, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	return m.current, m.current.Status == InProgress
}
