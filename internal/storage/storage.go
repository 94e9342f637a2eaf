// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package storage defines the document-store persistence contract (spec
// §4.N, §6) backing a node's local half of its "private IPFS+document-store
// pair." The keyspace is fixed by spec §6: block:<index>,
// block_by_hash:<hash>, tx:<id>, validator:<id>, ai_context:<validator_id>,
// pending_tx_pool:*. Values are JSON.
package storage

import "errors"

// ErrNotFound is returned by Get when key does not exist.
var ErrNotFound = errors.New("poai: storage key not found")

// Key prefixes, per spec §6.
const (
	PrefixBlock         = "block:"
	PrefixBlockByHash   = "block_by_hash:"
	PrefixTx            = "tx:"
	PrefixValidator     = "validator:"
	PrefixAIContext     = "ai_context:"
	PrefixPendingTxPool = "pending_tx_pool:"
)

// Store is the persistence contract consumed by internal/chain.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Iterate calls fn for every key with the given prefix, in
	// implementation-defined order, stopping early if fn returns false.
	Iterate(prefix string, fn func(key string, value []byte) bool) error
	Close() error
}
