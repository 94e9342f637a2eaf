// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/network"
	"github.com/equa-labs/poai-node/internal/types"
)

// ErrNoResponse is returned when a height or block-range request's context
// expires before a response arrives.
var ErrNoResponse = errors.New("poai: sync request timed out")

// NetRequester implements Requester over a network.Adapter: it sends
// SyncHeightRequest/GetBlocks and waits on per-call channels fed by
// HandleMessage, mirroring peervalidator.PeerValidator's
// pending-channel-keyed-by-call request/await shape.
type NetRequester struct {
	net  *network.LoopbackAdapter
	self common.Address

	mu            sync.Mutex
	pendingHeight map[common.Address]chan uint64
	pendingBlocks chan []*types.Block
}

// NewNetRequester builds a NetRequester bound to net, identified as self.
func NewNetRequester(net *network.LoopbackAdapter, self common.Address) *NetRequester {
	return &NetRequester{
		net:           net,
		self:          self,
		pendingHeight: make(map[common.Address]chan uint64),
	}
}

// RequestHeight sends a SyncHeightRequest to peer and awaits its Pong reply
// carrying its current height.
func (r *NetRequester) RequestHeight(ctx context.Context, peer common.Address) (uint64, error) {
	ch := make(chan uint64, 1)
	r.mu.Lock()
	r.pendingHeight[peer] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pendingHeight, peer)
		r.mu.Unlock()
	}()

	r.net.SendToPeer(peer, network.Message{Type: network.MsgSyncHeightRequest, HeightRequestPeer: r.self})

	select {
	case h := <-ch:
		return h, nil
	case <-ctx.Done():
		return 0, ErrNoResponse
	}
}

// RequestBlocks sends a GetBlocks request for [from,to] to peer and awaits
// the Blocks reply.
func (r *NetRequester) RequestBlocks(ctx context.Context, peer common.Address, from, to uint64) ([]*types.Block, error) {
	ch := make(chan []*types.Block, 1)
	r.mu.Lock()
	r.pendingBlocks = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.pendingBlocks == ch {
			r.pendingBlocks = nil
		}
		r.mu.Unlock()
	}()

	r.net.SendToPeer(peer, network.Message{Type: network.MsgGetBlocks, RangeFrom: from, RangeTo: to})

	select {
	case blocks := <-ch:
		return blocks, nil
	case <-ctx.Done():
		return nil, ErrNoResponse
	}
}

// HandleMessage routes inbound Pong (height answers) and Blocks (range
// answers) to whichever RequestHeight/RequestBlocks call is waiting, if
// any; other message types are ignored. The engine's message router calls
// this for every inbound message so sync never polls the inbox itself.
func (r *NetRequester) HandleMessage(msg network.Message) {
	switch msg.Type {
	case network.MsgPong:
		r.mu.Lock()
		ch, ok := r.pendingHeight[msg.From]
		r.mu.Unlock()
		if ok {
			select {
			case ch <- msg.Height:
			default:
			}
		}
	case network.MsgBlocks:
		r.mu.Lock()
		ch := r.pendingBlocks
		r.mu.Unlock()
		if ch != nil {
			select {
			case ch <- msg.Blocks:
			default:
			}
		}
	}
}
