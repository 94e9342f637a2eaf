// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package validator

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/equa-labs/poai-node/internal/ai"
	"github.com/equa-labs/poai-node/internal/cache"
	"github.com/equa-labs/poai-node/internal/color"
	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/efficiency"
	"github.com/equa-labs/poai-node/internal/pattern"
	"github.com/equa-labs/poai-node/internal/types"
)

// testSenderPriv is a fixed keypair so transactions built by these tests
// carry a verifiable signature and a sender address mkValidator's
// KeyRegistry knows about.
var testSenderPriv, _ = secp256k1.GeneratePrivateKey()
var testSender = common.BytesToAddress(testSenderPriv.PubKey().SerializeCompressed())

func mkValidator(reject byte) *Validator {
	keys := NewKeyRegistry()
	keys.Register(testSender, testSenderPriv.PubKey())
	return New(
		cache.New(cache.DefaultConfig()),
		efficiency.New(1_000_000, 0),
		&ai.FakeService{RejectBelow: reject},
		pattern.New(),
		color.New(),
		keys,
	)
}

func mkValidBlock(t *testing.T, idx uint64, prevHash string, ts int64) *types.Block {
	t.Helper()
	receiver := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx, err := types.NewTransaction("t1", testSender, receiver, 10, ts, testSenderPriv)
	if err != nil {
		t.Fatalf("new tx: %v", err)
	}
	b := &types.Block{
		Header:       types.BlockHeader{Index: idx, Timestamp: ts, PreviousHash: prevHash, AIThreshold: 5},
		Transactions: []*types.Transaction{tx},
		Meta:         types.BlockMeta{Height: idx},
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return b
}

func TestValidateBlockAcceptsWellFormedBlock(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	b := mkValidBlock(t, 1, common.ZeroHash64, time.Now().Unix())
	ok, err := v.ValidateBlock(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("expected block to be accepted")
	}
}

func TestValidateBlockCachesVerdict(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	b := mkValidBlock(t, 1, common.ZeroHash64, time.Now().Unix())
	ctx := context.Background()
	ok1, err := v.ValidateBlock(ctx, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, hit := v.Cache.GetBlock(b.Hash.HexBare())
	if !hit {
		t.Fatalf("expected cache entry after first validation")
	}
	if entry.Value != ok1 {
		t.Errorf("cache entry mismatch: cached=%v verdict=%v", entry.Value, ok1)
	}
	ok2, err := v.ValidateBlock(ctx, b)
	if err != nil {
		t.Fatalf("unexpected error on cached path: %v", err)
	}
	if ok2 != ok1 {
		t.Errorf("cached verdict changed between calls")
	}
}

func TestValidateBlockRejectsFutureTimestamp(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	// The transaction keeps a current timestamp (NewTransaction rejects
	// future ones); only the block header is moved an hour ahead.
	b := mkValidBlock(t, 1, common.ZeroHash64, time.Now().Unix())
	b.Header.Timestamp = time.Now().Add(time.Hour).Unix()
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ok, _ := v.ValidateBlock(context.Background(), b)
	if ok {
		t.Errorf("expected far-future block to be rejected")
	}
}

func TestValidateTransactionRejectsInvalidColorTransition(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	receiver := common.HexToAddress("0x8888888888888888888888888888888888888888")
	// Force the color tracker's seed so the transition is invalid: NextColor
	// keeps the first 6 characters of the current color, so a malformed
	// (non-hex) current color yields a successor ValidateTransition rejects.
	v.Color.Commit(testSender, "zzzzzz")
	tx, err := types.NewTransaction("x1", testSender, receiver, 1, time.Now().Unix(), testSenderPriv)
	if err != nil {
		t.Fatalf("new tx: %v", err)
	}

	next, valid, err := v.Color.Peek(testSender, tx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	ok, verr := v.ValidateTransaction(context.Background(), tx)
	if valid {
		if !ok || verr != nil {
			t.Errorf("expected acceptance when transition %q is valid, got ok=%v err=%v", next, ok, verr)
		}
	} else if ok {
		t.Errorf("expected rejection when transition is invalid")
	}
}

func TestValidateTransactionRejectsUnknownSender(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	unregisteredPriv, _ := secp256k1.GeneratePrivateKey()
	unregisteredSender := common.BytesToAddress(unregisteredPriv.PubKey().SerializeCompressed())
	receiver := common.HexToAddress("0x8888888888888888888888888888888888888888")
	tx, err := types.NewTransaction("x2", unregisteredSender, receiver, 1, time.Now().Unix(), unregisteredPriv)
	if err != nil {
		t.Fatalf("new tx: %v", err)
	}

	ok, err := v.ValidateTransaction(context.Background(), tx)
	if ok || err == nil {
		t.Errorf("expected rejection for a sender with no registered public key, got ok=%v err=%v", ok, err)
	}
}

func TestValidateTransactionRejectsForgedSignature(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	receiver := common.HexToAddress("0x8888888888888888888888888888888888888888")
	tx, err := types.NewTransaction("x3", testSender, receiver, 1, time.Now().Unix(), testSenderPriv)
	if err != nil {
		t.Fatalf("new tx: %v", err)
	}
	tx.Amount = 999 // mutate after signing so the signature no longer verifies

	ok, err := v.ValidateTransaction(context.Background(), tx)
	if ok || err == nil {
		t.Errorf("expected rejection for a tampered, unverifiable signature, got ok=%v err=%v", ok, err)
	}
}

func TestValidateBlockRejectsTamperedHash(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	b := mkValidBlock(t, 1, common.ZeroHash64, time.Now().Unix())
	b.Hash[0] ^= 0xFF

	ok, err := v.ValidateBlock(context.Background(), b)
	if ok || err == nil {
		t.Errorf("expected rejection for a block whose hash does not match its contents, got ok=%v err=%v", ok, err)
	}
}

func TestValidateBlockRejectsOutOfRangeAIThreshold(t *testing.T) {
	t.Parallel()
	v := mkValidator(0)
	b := mkValidBlock(t, 1, common.ZeroHash64, time.Now().Unix())
	b.Header.AIThreshold = 0
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	ok, err := v.ValidateBlock(context.Background(), b)
	if ok || err == nil {
		t.Errorf("expected rejection for ai_threshold=0, got ok=%v err=%v", ok, err)
	}
}

func TestIsEligibleRequiresAllThresholds(t *testing.T) {
	t.Parallel()
	cfg := DefaultEligibilityConfig()
	good := Stats{Uptime: 1, ValidationScore: 1, VotingParticipation: 1}
	if !good.IsEligible(cfg) {
		t.Errorf("expected fully-qualified stats to be eligible")
	}
	bad := Stats{Uptime: 0, ValidationScore: 1, VotingParticipation: 1}
	if bad.IsEligible(cfg) {
		t.Errorf("expected zero-uptime stats to be ineligible")
	}
}
