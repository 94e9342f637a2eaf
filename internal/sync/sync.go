// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package sync implements BlockSynchronizer (spec §4.L): height
// reconciliation against connected peers, chunked range fetch, and
// re-validation of every fetched block through the same acceptance port
// live consensus uses. It is grounded on the teacher's
// ProposerSelector.cachedSelections bounded-map-with-cleanup shape
// (cmd/equa-beacon-engine/engine/proposer.go) for the per-height
// bookkeeping, and on FinalityEngine.Prune's monotonic-watermark pattern
// (finality.go) for last_sync_height's advance-only semantics.
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/types"
)

// ErrSyncInProgress is returned by StartSync when another sync is already
// running (spec §4.L: "mutually exclusive").
var ErrSyncInProgress = errors.New("poai: sync already in progress")

// ErrNoPeers is returned when there is nobody to query or fetch from.
var ErrNoPeers = errors.New("poai: no peers available for sync")

// Tunables, per spec §6/§5.
const (
	DefaultMaxBlocksPerSync = 100
	DefaultOperationTimeout = 5 * time.Second
)

// ConsensusPort is the narrow slice of the engine's accept pipeline the
// synchronizer drives each fetched block through, breaking the
// Blockchain<->BlockSynchronizer<->MessageHandler cycle the source has
// (spec §7 redesign flag): the engine owns both sides, the synchronizer
// only ever calls through this interface.
type ConsensusPort interface {
	AcceptBlock(ctx context.Context, b *types.Block) error
}

// PeerLister is the narrow slice of NetworkAdapter the synchronizer needs
// to enumerate candidate peers.
type PeerLister interface {
	Peers() []common.Address
}

// Requester abstracts the actual message send/receive so Synchronizer
// never depends on the network package's concrete Message type;
// NetRequester (netrequester.go) is the implementation over the network
// package.
type Requester interface {
	RequestHeight(ctx context.Context, peer common.Address) (uint64, error)
	RequestBlocks(ctx context.Context, peer common.Address, from, to uint64) ([]*types.Block, error)
}

// ChainPort is the narrow slice of Blockchain the synchronizer reads.
type ChainPort interface {
	GetHeight() uint64
}

// Synchronizer implements BlockSynchronizer (spec §4.L).
type Synchronizer struct {
	chain            ChainPort
	net              PeerLister
	requester        Requester
	port             ConsensusPort
	maxBlocksPerSync int
	opTimeout        time.Duration

	mu             sync.Mutex
	active         bool
	lastSyncHeight uint64
	failedHeight   *uint64
}

// New builds a Synchronizer from its collaborators and tunables.
func New(chain ChainPort, net PeerLister, requester Requester, port ConsensusPort, maxBlocksPerSync int, opTimeout time.Duration) *Synchronizer {
	return &Synchronizer{
		chain:            chain,
		net:              net,
		requester:        requester,
		port:             port,
		maxBlocksPerSync: maxBlocksPerSync,
		opTimeout:        opTimeout,
	}
}

// StartSync runs one sync pass to completion: query peer heights, pick the
// max, fetch and accept every missing block in chunks of maxBlocksPerSync
// (spec §4.L). It is mutually exclusive with any other in-flight sync.
func (s *Synchronizer) StartSync(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.active = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	peers := s.net.Peers()
	if len(peers) == 0 {
		return ErrNoPeers
	}

	best, bestHeight, err := s.pickBestPeer(ctx, peers)
	if err != nil {
		return err
	}

	localTip := s.localTipIndex()
	if bestHeight == 0 || bestHeight <= localTip {
		return nil
	}

	for start := localTip + 1; start <= bestHeight; start += uint64(s.maxBlocksPerSync) {
		end := start + uint64(s.maxBlocksPerSync) - 1
		if end > bestHeight {
			end = bestHeight
		}

		chunkCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		blocks, err := s.requester.RequestBlocks(chunkCtx, best, start, end)
		cancel()
		if err != nil {
			return err
		}

		for _, b := range blocks {
			if err := s.port.AcceptBlock(ctx, b); err != nil {
				s.mu.Lock()
				h := b.Header.Index
				s.failedHeight = &h
				s.mu.Unlock()
				return err
			}
			s.mu.Lock()
			if b.Header.Index > s.lastSyncHeight {
				s.lastSyncHeight = b.Header.Index
			}
			s.mu.Unlock()
		}
	}
	return nil
}

// pickBestPeer queries every peer's height concurrently and returns the one
// reporting the highest value.
func (s *Synchronizer) pickBestPeer(ctx context.Context, peers []common.Address) (common.Address, uint64, error) {
	type result struct {
		peer   common.Address
		height uint64
		err    error
	}
	results := make(chan result, len(peers))
	queryCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	for _, p := range peers {
		p := p
		go func() {
			h, err := s.requester.RequestHeight(queryCtx, p)
			results <- result{peer: p, height: h, err: err}
		}()
	}

	var best common.Address
	var bestHeight uint64
	found := false
	for i := 0; i < len(peers); i++ {
		r := <-results
		if r.err != nil {
			continue
		}
		if !found || r.height > bestHeight {
			best, bestHeight, found = r.peer, r.height, true
		}
	}
	if !found {
		return common.Address{}, 0, ErrNoPeers
	}
	return best, bestHeight, nil
}

func (s *Synchronizer) localTipIndex() uint64 {
	h := s.chain.GetHeight()
	if h == 0 {
		return 0
	}
	return h - 1
}

// LastSyncHeight returns the highest block index successfully accepted by
// the most recent (or in-flight) sync pass.
func (s *Synchronizer) LastSyncHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncHeight
}

// FailedHeight reports the height sync aborted on, if the last pass failed
// a PoAI check partway through (spec §4.L: "abort with failing height
// recorded, to avoid infinite retry against a byzantine peer").
func (s *Synchronizer) FailedHeight() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failedHeight == nil {
		return 0, false
	}
	return *s.failedHeight, true
}

// IsActive reports whether a sync pass is currently running.
func (s *Synchronizer) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
