// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/types"
)

func mkBlock(ts int64, txCount int, amounts ...uint64) *types.Block {
	b := &types.Block{
		Header: types.BlockHeader{Index: 1, Timestamp: ts, PreviousHash: common.ZeroHash64, AIThreshold: 5},
		Meta:   types.BlockMeta{TxCount: txCount},
	}
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	receiver := common.HexToAddress("0x2222222222222222222222222222222222222222")
	for _, amt := range amounts {
		b.Transactions = append(b.Transactions, &types.Transaction{
			ID: "tx", Sender: sender, Receiver: receiver, Amount: amt, Timestamp: ts,
		})
	}
	return b
}

func TestTimestampValidationAcceptsCurrent(t *testing.T) {
	t.Parallel()
	a := New()
	req := Request{PatternType: TimestampValidation, Block: mkBlock(time.Now().Unix(), 0)}
	res := a.Analyze(context.Background(), req)
	if res.ConsensusRejects() {
		t.Errorf("current timestamp should not be rejected: %+v", res)
	}
}

func TestTimestampValidationRejectsFarFuture(t *testing.T) {
	t.Parallel()
	a := New()
	future := time.Now().Add(time.Hour).Unix()
	req := Request{PatternType: TimestampValidation, Block: mkBlock(future, 0)}
	res := a.Analyze(context.Background(), req)
	if !res.ConsensusRejects() {
		t.Errorf("far-future timestamp should be rejected: %+v", res)
	}
}

func TestBlockSizeRejectsOversizedTxCount(t *testing.T) {
	t.Parallel()
	a := New()
	req := Request{
		PatternType: BlockSize,
		Block:       mkBlock(time.Now().Unix(), 500),
		Context:     map[string]interface{}{"max_tx_per_block": 100},
	}
	res := a.Analyze(context.Background(), req)
	if !res.ConsensusRejects() {
		t.Errorf("oversized block should be rejected: %+v", res)
	}
}

func TestAnomalyDetectionFlagsZeroAmount(t *testing.T) {
	t.Parallel()
	a := New()
	req := Request{PatternType: AnomalyDetection, Block: mkBlock(time.Now().Unix(), 1, 0)}
	res := a.Analyze(context.Background(), req)
	if !res.ConsensusRejects() {
		t.Errorf("zero-amount tx should be flagged: %+v", res)
	}
}

func TestTransactionClusteringFlagsSingleSenderDominance(t *testing.T) {
	t.Parallel()
	a := New()
	req := Request{PatternType: TransactionClustering, Block: mkBlock(time.Now().Unix(), 5, 1, 2, 3, 4, 5)}
	res := a.Analyze(context.Background(), req)
	if !res.ConsensusRejects() {
		t.Errorf("single-sender dominance should be flagged: %+v", res)
	}
}

func TestHistoryIsScopedByHeight(t *testing.T) {
	t.Parallel()
	a := New()
	req := Request{
		PatternType: TimestampValidation,
		Block:       mkBlock(time.Now().Unix(), 0),
		Context:     map[string]interface{}{"height": uint64(42)},
	}
	a.Analyze(context.Background(), req)
	if got := a.History(42); len(got) != 1 {
		t.Fatalf("expected 1 recorded result at height 42, got %d", len(got))
	}
	if got := a.History(43); len(got) != 0 {
		t.Errorf("expected no history at height 43, got %d", len(got))
	}
}

func TestPruneDropsOldHeights(t *testing.T) {
	t.Parallel()
	a := New()
	req := Request{
		PatternType: TimestampValidation,
		Block:       mkBlock(time.Now().Unix(), 0),
		Context:     map[string]interface{}{"height": uint64(10)},
	}
	a.Analyze(context.Background(), req)
	a.Prune(11)
	if got := a.History(10); len(got) != 0 {
		t.Errorf("expected height 10 pruned, got %d entries", len(got))
	}
}

func TestAnalyzeHonorsCancelledContext(t *testing.T) {
	t.Parallel()
	a := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := Request{PatternType: TimestampValidation, Block: mkBlock(time.Now().Unix(), 0)}
	res := a.Analyze(ctx, req)
	if res.RiskLevel != 1 || res.Confidence != 1 {
		t.Errorf("cancelled context should yield a maximal-risk verdict, got %+v", res)
	}
}
