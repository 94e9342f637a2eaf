// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package ai

import (
	"context"
	"crypto/sha256"

	"github.com/equa-labs/poai-node/internal/types"
)

// FakeService is a deterministic, hash-derived stand-in for a real AI
// model, used by this node's own tests and by operators running without a
// model attached. It mirrors the teacher's RPCClient
// (cmd/equa-beacon-engine/engine/rpc.go): a thin typed facade the rest of
// the engine depends on only through its method set, never its
// implementation.
type FakeService struct {
	// RejectBelow, if non-zero, makes ValidateBlock/ValidateTransaction
	// reject any item whose hash, hashed again with SHA-256, has a first
	// byte below this value, giving tests a
	// knob to force deterministic rejection without touching call sites.
	RejectBelow byte
}

func (f *FakeService) ValidateBlock(_ context.Context, block *types.Block, _ map[string]interface{}) (bool, error) {
	return f.accept(block.Hash.Bytes()), nil
}

func (f *FakeService) ValidateTransaction(_ context.Context, tx *types.Transaction, _ map[string]interface{}) (bool, error) {
	h := tx.Hash()
	return f.accept(h.Bytes()), nil
}

func (f *FakeService) GenerateReferenceBlock(_ context.Context, block *types.Block) (*types.Block, error) {
	ref := *block
	ref.Meta = block.Meta
	txs := make([]*types.Transaction, len(block.Transactions))
	copy(txs, block.Transactions)
	ref.Transactions = txs
	if err := ref.Finalize(); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (f *FakeService) accept(b []byte) bool {
	sum := sha256.Sum256(b)
	return sum[0] >= f.RejectBelow
}
