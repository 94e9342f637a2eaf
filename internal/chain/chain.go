// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package chain implements Blockchain (spec §4.M): chain state, the
// pending transaction pool, genesis creation, and block
// append/create/read operations. It is grounded on the teacher's
// BeaconState (cmd/equa-beacon-engine/engine/types.go) for the
// single-struct-holding-all-chain-relevant-maps-under-one-lock shape, and
// on StakeManager's read-accessor style for the read-only query surface.
package chain

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/poaierr"
	"github.com/equa-labs/poai-node/internal/storage"
	"github.com/equa-labs/poai-node/internal/types"
)

var (
	ErrAlreadyGenesis    = errors.New("poai: chain already has a genesis block")
	ErrEmptyChain        = errors.New("poai: chain has no genesis block yet")
	ErrDuplicateTx       = errors.New("poai: duplicate transaction")
	ErrUnknownTx         = errors.New("poai: unknown transaction id")
	ErrIndexMismatch     = errors.New("poai: block index does not match chain height")
	ErrParentHashMismatch = errors.New("poai: previous_hash does not match chain tip")
)

// Chain holds all chain-relevant state behind a single read/write lock,
// per spec §5 ("exclusive-writer / many-reader lock... pool shares the
// same lock").
type Chain struct {
	mu      sync.RWMutex
	blocks  []*types.Block
	byHash  map[common.Hash]*types.Block
	pending map[string]*types.Transaction
	store   storage.Store
}

// New builds an empty Chain backed by store, which may be nil for a
// pure in-memory chain used in tests.
func New(store storage.Store) *Chain {
	return &Chain{
		byHash:  make(map[common.Hash]*types.Block),
		pending: make(map[string]*types.Transaction),
		store:   store,
	}
}

// CreateGenesis builds and appends the unique height-0 block from txs,
// only if the chain is currently empty (spec §4.M).
func (c *Chain) CreateGenesis(txs []*types.Transaction) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) != 0 {
		return nil, ErrAlreadyGenesis
	}

	b := &types.Block{
		Header:       types.BlockHeader{Index: 0, Timestamp: time.Now().Unix(), PreviousHash: common.ZeroHash64, AIThreshold: 1},
		Transactions: txs,
	}
	if err := b.Finalize(); err != nil {
		return nil, poaierr.Wrap(poaierr.ErrInvalidBlock, "finalize genesis: %v", err)
	}
	c.appendLocked(b)
	return b, nil
}

// AddTransaction verifies tx is not a duplicate by id and appends it to
// the pending pool (spec §4.M). Signature/structure validation is the
// caller's responsibility (AIValidator.ValidateTransaction), run before
// this call so the pool only ever holds tx's that passed the gate once.
func (c *Chain) AddTransaction(tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.pending[tx.ID]; dup {
		return ErrDuplicateTx
	}
	c.pending[tx.ID] = tx
	if c.store != nil {
		enc, err := json.Marshal(tx)
		if err == nil {
			_ = c.store.Put(storage.PrefixPendingTxPool+tx.ID, enc)
		}
	}
	return nil
}

// PendingCount reports the number of transactions waiting in the pool.
func (c *Chain) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// DrainPending returns up to maxTx pending transactions (stable order is
// not guaranteed beyond map iteration) for use as a block template; it
// does not remove them from the pool until the block that included them
// is actually appended.
func (c *Chain) DrainPending(maxTx int) []*types.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Transaction, 0, maxTx)
	for _, tx := range c.pending {
		if len(out) >= maxTx {
			break
		}
		out = append(out, tx)
	}
	return out
}

// CreateBlock builds a candidate block carrying txs atop the current tip,
// filling index/timestamp/previous_hash/tx_count/size/hash. It does not
// run F's gates or append the block — callers run validation and then
// call AddBlock.
func (c *Chain) CreateBlock(txs []*types.Transaction, validatorID common.Address, aiThreshold uint32) (*types.Block, error) {
	c.mu.RLock()
	if len(c.blocks) == 0 {
		c.mu.RUnlock()
		return nil, ErrEmptyChain
	}
	tip := c.blocks[len(c.blocks)-1]
	c.mu.RUnlock()

	b := &types.Block{
		Header: types.BlockHeader{
			Index:        tip.Header.Index + 1,
			Timestamp:    time.Now().Unix(),
			PreviousHash: tip.Hash.HexBare(),
			AIThreshold:  aiThreshold,
		},
		Transactions: txs,
		Meta:         types.BlockMeta{Height: tip.Header.Index + 1, ValidatorID: validatorID},
	}
	if err := b.Finalize(); err != nil {
		return nil, poaierr.Wrap(poaierr.ErrInvalidBlock, "finalize candidate: %v", err)
	}
	return b, nil
}

// AddBlock appends an externally-sourced block after checking index
// continuity, previous-hash linkage, and timestamp drift against the
// current tip via types.ValidateLinkage (spec §3, §4.M). Full consensus
// validation (component F) is the caller's responsibility, run before
// this call.
func (c *Chain) AddBlock(b *types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var parent *types.Block
	if len(c.blocks) != 0 {
		parent = c.blocks[len(c.blocks)-1]
	}
	if err := types.ValidateLinkage(b, parent); err != nil {
		switch {
		case errors.Is(err, types.ErrBadIndex):
			return ErrIndexMismatch
		case errors.Is(err, types.ErrBadParentHash):
			return ErrParentHashMismatch
		default:
			return poaierr.Wrap(poaierr.ErrInvalidBlock, "%v", err)
		}
	}

	c.appendLocked(b)
	return nil
}

// appendLocked appends b, indexes it by hash, persists it if a store is
// attached, and clears its transactions from the pending pool. Caller
// must hold c.mu for writing.
func (c *Chain) appendLocked(b *types.Block) {
	c.blocks = append(c.blocks, b)
	c.byHash[b.Hash] = b
	for _, tx := range b.Transactions {
		delete(c.pending, tx.ID)
	}
	if c.store == nil {
		return
	}
	if enc, err := json.Marshal(b); err == nil {
		_ = c.store.Put(storage.PrefixBlock+strconv.FormatUint(b.Header.Index, 10), enc)
		_ = c.store.Put(storage.PrefixBlockByHash+b.Hash.HexBare(), enc)
	}
	for _, tx := range b.Transactions {
		c.store.Delete(storage.PrefixPendingTxPool + tx.ID)
	}
}

// GetHeight returns the number of blocks in the chain (genesis counts as
// height 1, per S1: "height==1" after create_genesis).
func (c *Chain) GetHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks))
}

// LastBlock returns the chain tip, or nil if the chain is empty.
func (c *Chain) LastBlock() *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the full block list.
func (c *Chain) Blocks() []*types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// ByHash looks up a block by its hash.
func (c *Chain) ByHash(h common.Hash) (*types.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byHash[h]
	return b, ok
}

// ByIndex looks up a block by its index (equivalently, chain position).
func (c *Chain) ByIndex(index uint64) (*types.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return nil, false
	}
	return c.blocks[index], true
}
