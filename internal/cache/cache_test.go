// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package cache

import (
	"testing"
	"time"
)

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	vc := New(DefaultConfig())
	vc.PutBlock("h1", true, 77)
	e, ok := vc.GetBlock("h1")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if !e.Value || e.Score != 77 {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	t.Parallel()
	vc := New(Config{BlockCapacity: 10, TxCapacity: 10, ColorCapacity: 10, Window: time.Nanosecond})
	vc.PutBlock("h1", true, 1)
	time.Sleep(time.Millisecond)
	if _, ok := vc.GetBlock("h1"); ok {
		t.Errorf("expected expired entry to miss")
	}
}

func TestCleanupEvictsStale(t *testing.T) {
	t.Parallel()
	vc := New(Config{BlockCapacity: 10, TxCapacity: 10, ColorCapacity: 10, Window: time.Nanosecond})
	vc.PutTx("t1", false, 0)
	time.Sleep(time.Millisecond)
	vc.Cleanup()
	if vc.txs.lru.Len() != 0 {
		t.Errorf("expected stale entry evicted, len=%d", vc.txs.lru.Len())
	}
}

func TestClassesAreIndependent(t *testing.T) {
	t.Parallel()
	vc := New(DefaultConfig())
	vc.PutBlock("k", true, 1)
	if _, ok := vc.GetTx("k"); ok {
		t.Errorf("tx class must not see block class entries")
	}
}
