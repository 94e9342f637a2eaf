// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package types

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
)

var (
	ErrBadIndex       = errors.New("poai: invalid block index")
	ErrBadParentHash  = errors.New("poai: previous_hash does not match parent")
	ErrBadTimestamp   = errors.New("poai: block timestamp out of bounds")
	ErrBadHash        = errors.New("poai: block hash does not match recomputed digest")
	ErrBadAIThreshold = errors.New("poai: ai_threshold out of range")
)

// BlockHeader carries the chain-linkage and PoAI-specific envelope fields.
// Nonce is retained for wire compatibility with PoW-era tooling but is
// always zero under PoAI consensus.
type BlockHeader struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Nonce        uint64 `json:"nonce"`
	AIThreshold  uint32 `json:"ai_threshold"`
}

// BlockMeta carries block bookkeeping that is not part of the hash
// preimage but travels with the block.
type BlockMeta struct {
	Size               int            `json:"size"`
	TxCount            int            `json:"tx_count"`
	Height             uint64         `json:"height"`
	ValidatorID        common.Address `json:"validator_id"`
	ValidatorSignature string         `json:"validator_signature,omitempty"`
}

// Block is the unit of PoAI consensus: a header, an ordered transaction
// list, and bookkeeping metadata, bound together by Hash.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Meta         BlockMeta      `json:"meta"`
	Hash         common.Hash    `json:"hash"`
}

// IsGenesis reports whether b is the unique height-0 block.
func (b *Block) IsGenesis() bool {
	return b.Header.Index == 0
}

// ComputeHash recomputes sha256(index ∥ timestamp ∥ previous_hash ∥
// json(transactions) ∥ validator_id ∥ size), per spec §6.
func (b *Block) ComputeHash() (common.Hash, error) {
	txJSON, err := json.Marshal(b.Transactions)
	if err != nil {
		return common.Hash{}, err
	}

	validatorID := "none"
	if !b.Meta.ValidatorID.IsZero() {
		validatorID = b.Meta.ValidatorID.HexBare()
	}

	buf := make([]byte, 0, 256+len(txJSON))
	buf = append(buf, []byte(strconv.FormatUint(b.Header.Index, 10))...)
	buf = append(buf, []byte(strconv.FormatInt(b.Header.Timestamp, 10))...)
	buf = append(buf, []byte(b.Header.PreviousHash)...)
	buf = append(buf, txJSON...)
	buf = append(buf, []byte(validatorID)...)
	buf = append(buf, []byte(strconv.Itoa(b.Meta.Size))...)

	sum := sha256.Sum256(buf)
	return common.BytesToHash(sum[:]), nil
}

// Finalize fills in Meta.Size/TxCount and Hash from the current header and
// transaction list. It must be called (or re-called) any time the
// transaction list or header changes before the block is handed to
// consensus.
func (b *Block) Finalize() error {
	b.Meta.TxCount = len(b.Transactions)
	txJSON, err := json.Marshal(b.Transactions)
	if err != nil {
		return err
	}
	b.Meta.Size = headerByteEstimate + len(txJSON)

	h, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = h
	return nil
}

// headerByteEstimate is the fixed envelope overhead counted toward
// Meta.Size and EfficiencyCalculator's block_bytes, per spec §4.A.
const headerByteEstimate = 200

// ValidateLinkage checks the structural invariants from spec §3 that bind
// b to its parent: index continuity, previous-hash linkage, and bounded
// timestamp drift. parent is nil only for genesis.
func ValidateLinkage(b, parent *Block) error {
	if parent == nil {
		if b.Header.Index != 0 {
			return ErrBadIndex
		}
		if b.Header.PreviousHash != common.ZeroHash64 {
			return ErrBadParentHash
		}
		return nil
	}

	if b.Header.Index != parent.Header.Index+1 {
		return ErrBadIndex
	}
	if b.Header.PreviousHash != parent.Hash.HexBare() {
		return ErrBadParentHash
	}

	drift := MaxClockDrift
	if b.Header.Timestamp > time.Now().Add(drift).Unix() {
		return ErrBadTimestamp
	}
	if b.Header.Timestamp < parent.Header.Timestamp-int64(drift.Seconds()) {
		return ErrBadTimestamp
	}
	return nil
}

// ValidateHash recomputes b's hash and compares it against the stored
// value (spec §8 property 2: hash determinism).
func ValidateHash(b *Block) error {
	h, err := b.ComputeHash()
	if err != nil {
		return err
	}
	if h != b.Hash {
		return ErrBadHash
	}
	return nil
}

// ValidateAIThreshold checks the operator-set header field is in [1,10].
func ValidateAIThreshold(b *Block) error {
	if b.Header.AIThreshold < 1 || b.Header.AIThreshold > 10 {
		return ErrBadAIThreshold
	}
	return nil
}
