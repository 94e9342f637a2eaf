// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package validator implements AIValidator (spec §4.F): the orchestrator
// that threads a candidate block through cache, efficiency, pattern, AI,
// and color gates, in that fixed order, and returns an accept/reject
// verdict. It is grounded on Equa.Seal/VerifySeal
// (consensus/equa/equa.go), a consensus engine method that calls through
// several owned subcomponents in a fixed order.
package validator

import (
	"context"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/equa-labs/poai-node/internal/ai"
	"github.com/equa-labs/poai-node/internal/cache"
	"github.com/equa-labs/poai-node/internal/color"
	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/efficiency"
	"github.com/equa-labs/poai-node/internal/pattern"
	"github.com/equa-labs/poai-node/internal/poaierr"
	"github.com/equa-labs/poai-node/internal/types"
	"github.com/equa-labs/poai-node/internal/xlog"
)

// Tunables, per spec §6 defaults.
const (
	blockPatternDeadline = 2000 * time.Millisecond
	txPatternDeadline    = 2000 * time.Millisecond
)

var blockPatternTypes = []pattern.Type{
	pattern.TimestampValidation,
	pattern.BlockSize,
	pattern.AnomalyDetection,
	pattern.TransactionClustering,
}

// Stats is ValidatorStats from spec §3: per-validator reputation and
// eligibility bookkeeping, mutated by AIValidator, PeerValidator, and
// VotingRound.
type Stats struct {
	ID                 common.Address
	LastActive         time.Time
	ValidationScore    float64
	BlocksValidated    uint64
	BlocksRejected     uint64
	VotesCast          uint64
	VotingParticipation float64
	Uptime             float64
}

// EligibilityConfig holds the three thresholds spec §3 requires for a
// validator to be considered eligible.
type EligibilityConfig struct {
	MinUptime      float64
	MinScore       float64
	MinParticipation float64
}

// DefaultEligibilityConfig mirrors the §6 voting tunables' 0.60
// participation floor; the 0.5 score/uptime floors are conservative
// defaults chosen by this package.
func DefaultEligibilityConfig() EligibilityConfig {
	return EligibilityConfig{MinUptime: 0.5, MinScore: 0.5, MinParticipation: 0.6}
}

// IsEligible reports whether s clears every eligibility floor in cfg.
func (s Stats) IsEligible(cfg EligibilityConfig) bool {
	return s.Uptime >= cfg.MinUptime && s.ValidationScore >= cfg.MinScore && s.VotingParticipation >= cfg.MinParticipation
}

// PubKeySource resolves a transaction sender's secp256k1 public key.
// A sender Address is a hash of the key, not the key itself, so
// AIValidator cannot recover it from the transaction alone; it depends on
// this interface instead, grounded on the narrow collaborator interfaces
// (ai.Service, sync.NetRequester) the rest of this codebase favors over
// passing concrete stores around.
type PubKeySource interface {
	PublicKey(sender common.Address) (*secp256k1.PublicKey, bool)
}

// Validator orchestrates components A-E into block and transaction
// verdicts (spec §4.F).
type Validator struct {
	Cache      *cache.ValidationCache
	Efficiency *efficiency.Calculator
	AI         ai.Service
	Pattern    *pattern.Analyzer
	Color      *color.Tracker
	Keys       PubKeySource
}

// New builds a Validator from its six collaborators.
func New(c *cache.ValidationCache, eff *efficiency.Calculator, model ai.Service, pa *pattern.Analyzer, ct *color.Tracker, keys PubKeySource) *Validator {
	return &Validator{Cache: c, Efficiency: eff, AI: model, Pattern: pa, Color: ct, Keys: keys}
}

// ValidateBlock runs the seven-step pipeline from spec §4.F and returns
// the accept/reject verdict. A block's ai_threshold and hash are
// structural invariants (spec §3) checked before anything else, since a
// wrong hash would otherwise let a forged block borrow another block's
// cached verdict.
func (v *Validator) ValidateBlock(ctx context.Context, b *types.Block) (bool, error) {
	if err := types.ValidateAIThreshold(b); err != nil {
		return false, poaierr.Wrap(poaierr.ErrInvalidBlock, "%v", err)
	}
	if err := types.ValidateHash(b); err != nil {
		return false, poaierr.Wrap(poaierr.ErrInvalidBlock, "%v", err)
	}

	hashHex := b.Hash.HexBare()

	if entry, ok := v.Cache.GetBlock(hashHex); ok {
		return entry.Value, nil
	}

	coeff, err := v.Efficiency.Calculate(b)
	if err != nil {
		return false, poaierr.Wrap(poaierr.ErrInvalidBlock, "efficiency calc: %v", err)
	}
	if !v.Efficiency.MeetsThreshold(coeff) {
		v.cacheVerdict(hashHex, false, coeff)
		return false, poaierr.Wrap(poaierr.ErrLowEfficiency, "score %.4f below threshold", coeff.Score)
	}

	patternCtx, cancel := context.WithTimeout(ctx, blockPatternDeadline)
	defer cancel()
	for _, pt := range blockPatternTypes {
		res := v.Pattern.Analyze(patternCtx, pattern.Request{
			Block:         b,
			PatternType:   pt,
			Context:       map[string]interface{}{"height": b.Meta.Height},
			SecurityLevel: 2,
		})
		if res.ConsensusRejects() {
			v.cacheVerdict(hashHex, false, coeff)
			return false, poaierr.Wrap(poaierr.ErrPatternRejected, "%s: %s", res.Name, res.Reasoning)
		}
	}

	aiCtx := map[string]interface{}{
		"height":    b.Header.Index,
		"timestamp": b.Header.Timestamp,
		"tx_count":  b.Meta.TxCount,
	}
	ok, err := v.AI.ValidateBlock(ctx, b, aiCtx)
	if err != nil {
		xlog.Warn("AI block validation unavailable, continuing", "error", err)
	} else if !ok {
		v.cacheVerdict(hashHex, false, coeff)
		return false, poaierr.Wrap(poaierr.ErrPatternRejected, "AI oracle rejected block")
	}

	ref, err := v.AI.GenerateReferenceBlock(ctx, b)
	if err != nil {
		xlog.Warn("AI reference block unavailable, skipping tie-break", "error", err)
	} else {
		ord, err := v.Efficiency.CompareBlocks(b, ref)
		if err == nil && ord == efficiency.Less {
			v.cacheVerdict(hashHex, false, coeff)
			return false, poaierr.Wrap(poaierr.ErrLowEfficiency, "below reference block")
		}
	}

	for _, tx := range b.Transactions {
		accepted, err := v.validateTransactionLocked(ctx, tx)
		if err != nil {
			v.cacheVerdict(hashHex, false, coeff)
			return false, err
		}
		if !accepted {
			v.cacheVerdict(hashHex, false, coeff)
			return false, poaierr.Wrap(poaierr.ErrColorTransitionRejected, "tx %s", tx.ID)
		}
	}

	v.cacheVerdict(hashHex, true, coeff)
	return true, nil
}

func (v *Validator) cacheVerdict(hashHex string, value bool, coeff efficiency.Coefficient) {
	v.Cache.PutBlock(hashHex, value, uint64(coeff.Score*100))
}

// ValidateTransaction runs structure+signature+pattern+color gates for a
// single transaction (spec §4.F step 6), caching the verdict keyed by tx
// hash. The sender's public key is resolved through v.Keys; a sender with
// no registered key fails the structural gate, since an unverifiable
// signature can never satisfy the "signature verifies" invariant of §3.
func (v *Validator) ValidateTransaction(ctx context.Context, tx *types.Transaction) (bool, error) {
	return v.validateTransactionLocked(ctx, tx)
}

func (v *Validator) validateTransactionLocked(ctx context.Context, tx *types.Transaction) (bool, error) {
	txHash := tx.Hash().HexBare()
	if entry, ok := v.Cache.GetTx(txHash); ok {
		return entry.Value, nil
	}

	pub, ok := v.resolvePubKey(tx.Sender)
	if !ok {
		v.Cache.PutTx(txHash, false, 0)
		return false, poaierr.Wrap(poaierr.ErrInvalidBlock, "tx %s: no known public key for sender %s", tx.ID, tx.Sender.Hex())
	}
	if err := tx.Validate(pub); err != nil {
		v.Cache.PutTx(txHash, false, 0)
		return false, poaierr.Wrap(poaierr.ErrInvalidBlock, "tx %s: %v", tx.ID, err)
	}

	patternCtx, cancel := context.WithTimeout(ctx, txPatternDeadline)
	defer cancel()
	res := v.Pattern.Analyze(patternCtx, pattern.Request{
		Tx:            tx,
		PatternType:   pattern.TransactionPattern,
		SecurityLevel: 2,
	})
	if res.ConsensusRejects() {
		v.Cache.PutTx(txHash, false, 0)
		return false, poaierr.Wrap(poaierr.ErrPatternRejected, "%s: %s", res.Name, res.Reasoning)
	}

	next, valid, err := v.Color.Peek(tx.Sender, tx)
	if err != nil {
		return false, poaierr.Wrap(poaierr.ErrColorTransitionRejected, "color lookup: %v", err)
	}
	if !valid {
		v.Cache.PutTx(txHash, false, 0)
		return false, nil
	}

	v.Color.Commit(tx.Sender, next)
	v.Cache.PutTx(txHash, true, uint64(res.Confidence*100))
	return true, nil
}

func (v *Validator) resolvePubKey(sender common.Address) (*secp256k1.PublicKey, bool) {
	if v.Keys == nil {
		return nil, false
	}
	return v.Keys.PublicKey(sender)
}
