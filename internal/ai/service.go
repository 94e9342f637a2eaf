// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package ai defines the external AI oracle contract consumed by
// AIValidator (spec §4.C). The concrete model is out of scope; this
// package only fixes the interface and a deterministic fake used by tests
// and by nodes running without a real model attached.
package ai

import (
	"context"
	"errors"

	"github.com/equa-labs/poai-node/internal/types"
)

// ErrUnavailable wraps any failure from the underlying model (spec §4.C:
// "every operation is fallible with AIFailure"). Callers treat it as a
// soft error per spec §4.F step 4.
var ErrUnavailable = errors.New("poai: AI oracle unavailable")

// Service is the oracle contract. Every method must honor ctx's deadline
// and must never panic; implementations run arbitrarily untrusted model
// code behind this boundary.
type Service interface {
	// ValidateBlock reports whether block_json/context_json pass the
	// model's acceptance check.
	ValidateBlock(ctx context.Context, block *types.Block, chainContext map[string]interface{}) (bool, error)

	// ValidateTransaction reports whether tx_json/context_json pass the
	// model's acceptance check.
	ValidateTransaction(ctx context.Context, tx *types.Transaction, chainContext map[string]interface{}) (bool, error)

	// GenerateReferenceBlock produces a canonical "optimal" peer block used
	// as an efficiency tie-break by AIValidator (spec §4.F step 5).
	GenerateReferenceBlock(ctx context.Context, block *types.Block) (*types.Block, error)
}
