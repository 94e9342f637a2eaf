// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package validator

import (
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/equa-labs/poai-node/internal/common"
)

// KeyRegistry is a minimal in-memory PubKeySource: a map from sender
// address to the public key that must verify its transactions' detached
// signatures. Grounded on the map+mutex shape used throughout this
// codebase for small owned state (color.Tracker, cache.ValidationCache).
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[common.Address]*secp256k1.PublicKey
}

// NewKeyRegistry builds an empty KeyRegistry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[common.Address]*secp256k1.PublicKey)}
}

// Register associates sender with pub, overwriting any prior entry.
func (r *KeyRegistry) Register(sender common.Address, pub *secp256k1.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[sender] = pub
}

// PublicKey satisfies PubKeySource.
func (r *KeyRegistry) PublicKey(sender common.Address) (*secp256k1.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[sender]
	return pub, ok
}
