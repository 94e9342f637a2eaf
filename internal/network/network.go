// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package network defines the NetworkAdapter contract (spec §6) and a
// LoopbackAdapter that delivers messages directly between in-process
// peers, for single-node operation and for tests that simulate a small
// peer set without real transport. It is grounded on the teacher's
// RPCClient (cmd/equa-beacon-engine/engine/rpc.go): a typed thin facade
// the rest of the engine depends on only through its method set.
package network

import (
	"sync"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/peervalidator"
	"github.com/equa-labs/poai-node/internal/types"
	"github.com/equa-labs/poai-node/internal/voting"
)

// MessageType enumerates the wire message set from spec §6.
type MessageType int

const (
	MsgNewBlock MessageType = iota
	MsgTransaction
	MsgGetBlocks
	MsgBlocks
	MsgPing
	MsgPong
	MsgVotingStart
	MsgVote
	MsgVotingResult
	MsgValidationRequest
	MsgValidationResponse
	MsgSyncHeightRequest
)

// DefaultInboxCapacity bounds each adapter's inbound channel, per spec §5
// ("inbound message channels are bounded (default 1000)").
const DefaultInboxCapacity = 1000

// Message is the envelope carried over the wire; only the payload fields
// relevant to Type are populated (e.g. RangeFrom/RangeTo for GetBlocks,
// BlockHash and RoundID for VotingStart).
type Message struct {
	Type MessageType
	From common.Address

	Block              *types.Block
	Blocks             []*types.Block
	Tx                 *types.Transaction
	RoundID            string
	BlockHash          common.Hash
	Vote               *voting.Vote
	VotingResult       *voting.Result
	ValidationRequest  *peervalidator.Request
	ValidationResponse *peervalidator.Response
	HeightRequestPeer  common.Address

	// Height answers a SyncHeightRequest, carried back on Pong (spec §6
	// lists no dedicated response type for SyncHeightRequest).
	Height    uint64
	RangeFrom uint64
	RangeTo   uint64
}

// Adapter is the NetworkAdapter contract: broadcast, direct send, and
// peer discovery. Framing is opaque to the consensus core (spec §6).
type Adapter interface {
	Broadcast(msg Message)
	SendToPeer(peer common.Address, msg Message)
	Peers() []common.Address
	Inbox() <-chan Message
}

// LoopbackAdapter delivers messages directly to connected peer adapters
// in the same process, with no serialization. Connect two adapters to
// simulate a link; Broadcast fans out to every connected peer.
type LoopbackAdapter struct {
	mu    sync.RWMutex
	self  common.Address
	peers map[common.Address]*LoopbackAdapter
	inbox chan Message
}

// NewLoopbackAdapter builds an adapter identified by self with a bounded
// inbox of DefaultInboxCapacity.
func NewLoopbackAdapter(self common.Address) *LoopbackAdapter {
	return &LoopbackAdapter{
		self:  self,
		peers: make(map[common.Address]*LoopbackAdapter),
		inbox: make(chan Message, DefaultInboxCapacity),
	}
}

// Connect registers a mutual link between a and peer so each appears in
// the other's Peers() and Broadcast fan-out.
func (a *LoopbackAdapter) Connect(peer *LoopbackAdapter) {
	a.mu.Lock()
	a.peers[peer.self] = peer
	a.mu.Unlock()

	peer.mu.Lock()
	peer.peers[a.self] = a
	peer.mu.Unlock()
}

func (a *LoopbackAdapter) Broadcast(msg Message) {
	msg.From = a.self
	a.mu.RLock()
	targets := make([]*LoopbackAdapter, 0, len(a.peers))
	for _, p := range a.peers {
		targets = append(targets, p)
	}
	a.mu.RUnlock()
	for _, p := range targets {
		p.deliver(msg)
	}
}

func (a *LoopbackAdapter) SendToPeer(peer common.Address, msg Message) {
	msg.From = a.self
	a.mu.RLock()
	p, ok := a.peers[peer]
	a.mu.RUnlock()
	if ok {
		p.deliver(msg)
	}
}

func (a *LoopbackAdapter) Peers() []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]common.Address, 0, len(a.peers))
	for addr := range a.peers {
		out = append(out, addr)
	}
	return out
}

func (a *LoopbackAdapter) Inbox() <-chan Message { return a.inbox }

// deliver enqueues msg, dropping it if the inbox is full rather than
// blocking the sender (spec §5: "drops or back-pressures on overflow").
func (a *LoopbackAdapter) deliver(msg Message) {
	select {
	case a.inbox <- msg:
	default:
	}
}

// BroadcastVotingStart satisfies voting.Broadcaster.
func (a *LoopbackAdapter) BroadcastVotingStart(blockHash common.Hash, roundID string) {
	a.Broadcast(Message{Type: MsgVotingStart, BlockHash: blockHash, RoundID: roundID})
}

// BroadcastVote satisfies voting.Broadcaster.
func (a *LoopbackAdapter) BroadcastVote(v voting.Vote, roundID string) {
	a.Broadcast(Message{Type: MsgVote, Vote: &v, RoundID: roundID})
}

// BroadcastVotingResult satisfies voting.Broadcaster.
func (a *LoopbackAdapter) BroadcastVotingResult(r voting.Result) {
	a.Broadcast(Message{Type: MsgVotingResult, VotingResult: &r})
}

// BroadcastValidationRequest satisfies peervalidator.Broadcaster.
func (a *LoopbackAdapter) BroadcastValidationRequest(req peervalidator.Request) {
	a.Broadcast(Message{Type: MsgValidationRequest, ValidationRequest: &req})
}
