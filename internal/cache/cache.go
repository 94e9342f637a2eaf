// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package cache memoizes AIValidator verdicts so that repeated validation
// of the same block, transaction, or color transition is cheap (spec
// §4.B). It replaces the teacher's hand-rolled
// ProposerSelector.cachedSelections map+manual-eviction
// (cmd/equa-beacon-engine/engine/proposer.go) with the library the rest of
// the corpus reaches for this exact shape: github.com/hashicorp/golang-lru.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Default capacities and TTL window, per spec §6.
const (
	DefaultBlockCapacity = 1000
	DefaultTxCapacity    = 10000
	DefaultColorCapacity = 1000
	DefaultWindow        = 3600 * time.Second
)

// Entry is a memoized verdict: whether the keyed item validated, when it
// was computed, and the score it carried at that time (spec §3).
type Entry struct {
	Value     bool
	Timestamp time.Time
	Score     uint64
}

// class is one of the three independent LRU maps; each guarded by its own
// lock so a touch on one class never blocks another (spec §5).
type class struct {
	mu     sync.Mutex
	lru    *lru.Cache
	window time.Duration
}

func newClass(capacity int, window time.Duration) *class {
	c, err := lru.New(capacity)
	if err != nil {
		// Only invalid (<=0) capacities can cause this; defaults are always
		// positive, so this indicates programmer error in a caller passing
		// a bad capacity.
		panic(err)
	}
	return &class{lru: c, window: window}
}

func (c *class) put(key string, value bool, score uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, Entry{Value: value, Timestamp: time.Now(), Score: score})
}

func (c *class) get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

func (c *class) isValid(e Entry) bool {
	return time.Since(e.Timestamp) < c.window
}

func (c *class) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.lru.Keys() {
		v, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		if !c.isValid(v.(Entry)) {
			c.lru.Remove(k)
		}
	}
}

// ValidationCache holds the three LRU classes described in spec §4.B:
// block-hash, tx-hash, and color-string keyed verdicts.
type ValidationCache struct {
	blocks *class
	txs    *class
	colors *class
}

// Config lets callers override the default capacities/window (spec §6).
type Config struct {
	BlockCapacity int
	TxCapacity    int
	ColorCapacity int
	Window        time.Duration
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		BlockCapacity: DefaultBlockCapacity,
		TxCapacity:    DefaultTxCapacity,
		ColorCapacity: DefaultColorCapacity,
		Window:        DefaultWindow,
	}
}

// New builds a ValidationCache from cfg.
func New(cfg Config) *ValidationCache {
	return &ValidationCache{
		blocks: newClass(cfg.BlockCapacity, cfg.Window),
		txs:    newClass(cfg.TxCapacity, cfg.Window),
		colors: newClass(cfg.ColorCapacity, cfg.Window),
	}
}

// PutBlock memoizes a block verdict keyed by its hash.
func (vc *ValidationCache) PutBlock(hash string, value bool, score uint64) { vc.blocks.put(hash, value, score) }

// GetBlock returns the cached verdict for a block hash, if any and still
// within the TTL window (spec §4.F step 1).
func (vc *ValidationCache) GetBlock(hash string) (Entry, bool) {
	e, ok := vc.blocks.get(hash)
	if !ok || !vc.blocks.isValid(e) {
		return Entry{}, false
	}
	return e, true
}

// PutTx memoizes a transaction verdict keyed by its hash.
func (vc *ValidationCache) PutTx(hash string, value bool, score uint64) { vc.txs.put(hash, value, score) }

// GetTx returns the cached verdict for a transaction hash, if valid.
func (vc *ValidationCache) GetTx(hash string) (Entry, bool) {
	e, ok := vc.txs.get(hash)
	if !ok || !vc.txs.isValid(e) {
		return Entry{}, false
	}
	return e, true
}

// PutColor memoizes a color-transition verdict.
func (vc *ValidationCache) PutColor(color string, value bool, score uint64) {
	vc.colors.put(color, value, score)
}

// GetColor returns the cached verdict for a color string, if valid.
func (vc *ValidationCache) GetColor(color string) (Entry, bool) {
	e, ok := vc.colors.get(color)
	if !ok || !vc.colors.isValid(e) {
		return Entry{}, false
	}
	return e, true
}

// Cleanup scans all three classes and evicts stale entries; intended to be
// called periodically by the owning engine.
func (vc *ValidationCache) Cleanup() {
	vc.blocks.cleanup()
	vc.txs.cleanup()
	vc.colors.cleanup()
}
