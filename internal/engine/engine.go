// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package engine implements PoAIEngine (spec §4.K): the coordinator that
// drives the tick loop, wires the consensus components (F, G, H, I, J, M)
// together, and routes inbound network.Messages to the right collaborator.
// It is grounded on the teacher's Engine
// (cmd/equa-beacon-engine/engine/engine.go): a mutex-guarded struct holding
// every consensus component, started with ctx/cancel/sync.WaitGroup and a
// ticker goroutine feeding a processor goroutine over a buffered channel.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/chain"
	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/network"
	"github.com/equa-labs/poai-node/internal/peervalidator"
	"github.com/equa-labs/poai-node/internal/poaierr"
	"github.com/equa-labs/poai-node/internal/reward"
	"github.com/equa-labs/poai-node/internal/rotation"
	blocksync "github.com/equa-labs/poai-node/internal/sync"
	"github.com/equa-labs/poai-node/internal/types"
	"github.com/equa-labs/poai-node/internal/validator"
	"github.com/equa-labs/poai-node/internal/voting"
	"github.com/equa-labs/poai-node/internal/xlog"
)

// Config bundles the tunables Engine needs beyond its collaborators.
type Config struct {
	TickInterval    time.Duration
	MaxTxPerBlock   int
	AIThreshold     uint32
	BaseBlockReward uint64
	Self            common.Address
	ColorChecker    common.Address
}

// Stats is a running count of engine activity, surfaced for diagnostics.
type Stats struct {
	mu             sync.Mutex
	BlocksProposed uint64
	BlocksAccepted uint64
	BlocksRejected uint64
	VotingRounds   uint64
	LastTickHeight uint64
}

func (s *Stats) incProposed() { s.mu.Lock(); s.BlocksProposed++; s.mu.Unlock() }
func (s *Stats) incAccepted() { s.mu.Lock(); s.BlocksAccepted++; s.mu.Unlock() }
func (s *Stats) incRejected() { s.mu.Lock(); s.BlocksRejected++; s.mu.Unlock() }
func (s *Stats) incRounds()   { s.mu.Lock(); s.VotingRounds++; s.mu.Unlock() }
func (s *Stats) setHeight(h uint64) { s.mu.Lock(); s.LastTickHeight = h; s.mu.Unlock() }

// Engine is the PoAIEngine coordinator. It owns no consensus logic of its
// own; every decision is delegated to the named component.
type Engine struct {
	mu sync.RWMutex

	cfg Config

	chain      *chain.Chain
	validator  *validator.Validator
	rotation   *rotation.Rotation
	voting     *voting.Manager
	peer       *peervalidator.PeerValidator
	net        *network.LoopbackAdapter
	validators *ValidatorSet

	syncer        *blocksync.Synchronizer
	syncRequester *blocksync.NetRequester

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats *Stats

	tickCh  chan uint64
	pending map[common.Hash]*types.Block
}

// New wires an Engine from its collaborators. vs must be the same
// ValidatorSet the caller passed to vm and pv as their
// EligibilityChecker/StatsStore, so the engine's validator count and their
// eligibility checks read one table.
func New(cfg Config, c *chain.Chain, v *validator.Validator, r *rotation.Rotation, vm *voting.Manager, pv *peervalidator.PeerValidator, net *network.LoopbackAdapter, vs *ValidatorSet) *Engine {
	e := &Engine{
		cfg:        cfg,
		chain:      c,
		validator:  v,
		rotation:   r,
		voting:     vm,
		peer:       pv,
		net:        net,
		validators: vs,
		stats:      &Stats{},
		tickCh:     make(chan uint64, 16),
		pending:    make(map[common.Hash]*types.Block),
	}
	vm.OnResult(e.onVotingResult)
	return e
}

// AttachSynchronizer wires a BlockSynchronizer that drives this Engine as
// its ConsensusPort, and a NetRequester that the message router forwards
// Pong/Blocks replies to. Both are optional; an Engine with neither attached
// simply never catches up a lagging chain.
func (e *Engine) AttachSynchronizer(s *blocksync.Synchronizer, r *blocksync.NetRequester) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncer = s
	e.syncRequester = r
}

// AcceptBlock implements sync.ConsensusPort: it runs the same local
// validation gate live consensus uses (F) and appends on success (M),
// without re-running a fresh voting round (spec §4.L: blocks fetched by
// sync already carry the originating peer's finalization, so their own
// acceptance gate is structural/pattern/AI/efficiency re-verification, not
// a second vote).
func (e *Engine) AcceptBlock(ctx context.Context, b *types.Block) error {
	ok, err := e.validator.ValidateBlock(ctx, b)
	if err != nil {
		return err
	}
	if !ok {
		return poaierr.Wrap(poaierr.ErrInvalidBlock, "sync: block %d failed acceptance gate", b.Header.Index)
	}
	return e.chain.AddBlock(b)
}

// Start spawns the tick ticker, the tick processor, and the inbound message
// router, all bound to an internal context cancelled by Stop.
func (e *Engine) Start() {
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(3)
	go e.tickTicker()
	go e.tickProcessor()
	go e.messageRouter()
}

// Stop cancels the engine's context and waits for its goroutines to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.voting.Shutdown()
	e.wg.Wait()
}

// Stats returns a snapshot of the engine's running counters.
func (e *Engine) Stats() Stats {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	return Stats{
		BlocksProposed: e.stats.BlocksProposed,
		BlocksAccepted: e.stats.BlocksAccepted,
		BlocksRejected: e.stats.BlocksRejected,
		VotingRounds:   e.stats.VotingRounds,
		LastTickHeight: e.stats.LastTickHeight,
	}
}

func (e *Engine) tickTicker() {
	defer e.wg.Done()
	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			h := e.chain.GetHeight()
			select {
			case e.tickCh <- h:
			default:
				xlog.Warn("engine tick channel full, dropping tick", "height", h)
			}
		}
	}
}

func (e *Engine) tickProcessor() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case h := <-e.tickCh:
			e.stats.setHeight(h)
			e.processTick(h)
		}
	}
}

// processTick runs one proposal attempt: if this node is the eligible
// builder for the current height, it assembles a candidate block from the
// pending pool and starts the accept pipeline (spec §4.K step 2).
func (e *Engine) processTick(height uint64) {
	e.rotation.UpdateHeight(height)
	e.voting.SetTotalValidators(e.validators.Count())
	if !e.rotation.IsEligible(e.cfg.Self) {
		return
	}
	if e.chain.PendingCount() == 0 {
		return
	}

	txs := e.chain.DrainPending(e.cfg.MaxTxPerBlock)
	b, err := e.chain.CreateBlock(txs, e.cfg.Self, e.cfg.AIThreshold)
	if err != nil {
		xlog.Warn("create candidate block failed", "error", err)
		return
	}
	e.stats.incProposed()
	e.onBlock(b)
}

// onBlock runs the accept pipeline for a candidate or inbound block: local
// validation (F), peer cross-validation (J), then a quorum vote (I). Reward
// distribution and chain append happen asynchronously in onVotingResult
// once the round closes.
func (e *Engine) onBlock(b *types.Block) {
	ok, err := e.validator.ValidateBlock(e.ctx, b)
	if err != nil || !ok {
		xlog.Warn("block failed local validation", "height", b.Header.Index, "error", err)
		e.stats.incRejected()
		return
	}

	// Peer cross-validation only applies once this node has peers; a
	// freshly bootstrapped or single-node deployment has nothing to ask
	// and falls through to the voting round on local validation alone.
	if e.peer != nil && e.net != nil && len(e.net.Peers()) > 0 {
		outcome, err := e.peer.ValidateBlockWithPeers(e.ctx, b.Hash, e.cfg.Self)
		if err != nil || !outcome.Approved {
			xlog.Warn("block failed peer cross-validation", "height", b.Header.Index, "error", err)
			e.stats.incRejected()
			return
		}
	}

	e.mu.Lock()
	e.pending[b.Hash] = b
	e.mu.Unlock()

	if _, err := e.voting.Start(b.Hash); err != nil {
		xlog.Warn("could not start voting round", "height", b.Header.Index, "error", err)
		return
	}
	e.stats.incRounds()
}

// onVotingResult is registered with voting.Manager.OnResult and finishes
// the pipeline: on approval it computes rewards (H) and appends the block
// (M); on rejection or timeout it simply records the outcome.
func (e *Engine) onVotingResult(r voting.Result) {
	e.mu.Lock()
	b, ok := e.pending[r.BlockHash]
	if ok {
		delete(e.pending, r.BlockHash)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if r.Status != voting.Completed || !r.Approved {
		// No RecordSuccess call: the builder keeps its rotation slot and
		// may retry next tick.
		e.stats.incRejected()
		return
	}

	if err := e.chain.AddBlock(b); err != nil {
		xlog.Warn("approved block failed chain append", "height", b.Header.Index, "error", err)
		e.stats.incRejected()
		return
	}
	if err := e.rotation.RecordSuccess(b.Meta.ValidatorID, b.Header.Index); err != nil {
		xlog.Warn("record builder success failed", "error", err)
	}

	validators := e.validators.Addresses()
	rewards, err := reward.Calculate(b.Meta.ValidatorID, validators, e.cfg.ColorChecker, e.cfg.BaseBlockReward)
	if err != nil {
		xlog.Warn("reward split failed", "error", err)
	} else {
		xlog.Info("block rewarded", "height", b.Header.Index, "builder_share", rewards.BuilderShare, "total", rewards.Total())
	}
	e.stats.incAccepted()
}

// messageRouter drains the network inbox and dispatches each message to the
// component that owns its semantics (spec §4.K step 3).
func (e *Engine) messageRouter() {
	defer e.wg.Done()
	if e.net == nil {
		return
	}
	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-e.net.Inbox():
			if !ok {
				return
			}
			e.handleMessage(msg)
		}
	}
}

func (e *Engine) handleMessage(msg network.Message) {
	switch msg.Type {
	case network.MsgNewBlock:
		if msg.Block != nil {
			e.onBlock(msg.Block)
		}
	case network.MsgTransaction:
		if msg.Tx != nil {
			if ok, err := e.validator.ValidateTransaction(e.ctx, msg.Tx); err == nil && ok {
				_ = e.chain.AddTransaction(msg.Tx)
			}
		}
	case network.MsgVote:
		if msg.Vote != nil {
			_ = e.voting.CastVote(msg.Vote.Validator, msg.Vote.BlockHash, msg.Vote.Score)
		}
	case network.MsgValidationRequest:
		if msg.ValidationRequest != nil && e.peer != nil {
			e.respondToValidationRequest(*msg.ValidationRequest, msg.From)
		}
	case network.MsgValidationResponse:
		if msg.ValidationResponse != nil && e.peer != nil {
			e.peer.HandleResponse(msg.ValidationResponse.BlockHash, *msg.ValidationResponse)
		}
	case network.MsgSyncHeightRequest:
		e.net.SendToPeer(msg.From, network.Message{Type: network.MsgPong, Height: e.chain.GetHeight()})
	case network.MsgGetBlocks:
		blocks := make([]*types.Block, 0, msg.RangeTo-msg.RangeFrom+1)
		for idx := msg.RangeFrom; idx <= msg.RangeTo; idx++ {
			if b, ok := e.chain.ByIndex(idx); ok {
				blocks = append(blocks, b)
			}
		}
		e.net.SendToPeer(msg.From, network.Message{Type: network.MsgBlocks, Blocks: blocks})
	case network.MsgPong, network.MsgBlocks:
		if e.syncRequester != nil {
			e.syncRequester.HandleMessage(msg)
		}
	}
}

func (e *Engine) respondToValidationRequest(req peervalidator.Request, from common.Address) {
	e.mu.RLock()
	b, ok := e.pending[req.BlockHash]
	e.mu.RUnlock()
	if !ok {
		return
	}
	valid, _ := e.validator.ValidateBlock(e.ctx, b)
	resp := peervalidator.Response{BlockHash: req.BlockHash, IsValid: valid, Score: 0, Validator: e.cfg.Self}
	if valid {
		resp.Score = 100
	}
	e.net.SendToPeer(from, network.Message{Type: network.MsgValidationResponse, ValidationResponse: &resp})
}
