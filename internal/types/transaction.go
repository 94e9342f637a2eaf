// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package types

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/equa-labs/poai-node/internal/common"
)

// MaxClockDrift bounds how far a transaction or block timestamp may sit in
// the future relative to the local wall clock before being rejected.
const MaxClockDrift = 300 * time.Second

var (
	ErrEmptyField      = errors.New("poai: required transaction field is empty")
	ErrNonPositiveAmt  = errors.New("poai: transaction amount must be positive")
	ErrFutureTimestamp = errors.New("poai: transaction timestamp too far in the future")
	ErrBadSignature    = errors.New("poai: transaction signature does not verify")
)

// Transaction is an immutable, signed value transfer. Field order matches
// the wire/hash contract in spec §6: id, sender, receiver, amount,
// timestamp, signature.
type Transaction struct {
	ID        string         `json:"id"`
	Sender    common.Address `json:"sender"`
	Receiver  common.Address `json:"receiver"`
	Amount    uint64         `json:"amount"`
	Timestamp int64          `json:"timestamp"`
	Signature string         `json:"signature"`
}

// NewTransaction validates and signs a transaction in one step. It never
// returns a transaction that fails Validate.
func NewTransaction(id string, sender, receiver common.Address, amount uint64, ts int64, priv *secp256k1.PrivateKey) (*Transaction, error) {
	tx := &Transaction{ID: id, Sender: sender, Receiver: receiver, Amount: amount, Timestamp: ts}
	if err := tx.validateStructure(); err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(priv, tx.signingDigest())
	tx.Signature = string(sig.Serialize()) // DER string form per spec §6
	return tx, nil
}

// signingDigest computes sha256(sender ∥ receiver ∥ ascii(amount)) per §6.
func (tx *Transaction) signingDigest() []byte {
	buf := make([]byte, 0, common.AddressLength*2+20)
	buf = append(buf, tx.Sender.Bytes()...)
	buf = append(buf, tx.Receiver.Bytes()...)
	buf = append(buf, []byte(strconv.FormatUint(tx.Amount, 10))...)
	sum := sha256.Sum256(buf)
	return sum[:]
}

// validateStructure checks the structural invariants from spec §3 that do
// not require a public key (non-empty fields, positive amount, drift).
func (tx *Transaction) validateStructure() error {
	if tx.ID == "" || tx.Sender.IsZero() || tx.Receiver.IsZero() {
		return ErrEmptyField
	}
	if tx.Amount == 0 {
		return ErrNonPositiveAmt
	}
	if time.Unix(tx.Timestamp, 0).After(time.Now().Add(MaxClockDrift)) {
		return ErrFutureTimestamp
	}
	return nil
}

// Validate checks structure and, given the sender's public key, the
// detached signature. It is the structural+signature gate AIValidator
// runs before pattern/color analysis (spec §4.F step 6).
func (tx *Transaction) Validate(senderPubKey *secp256k1.PublicKey) error {
	if tx.Signature == "" {
		return ErrEmptyField
	}
	if err := tx.validateStructure(); err != nil {
		return err
	}
	sig, err := ecdsa.ParseDERSignature([]byte(tx.Signature))
	if err != nil {
		return ErrBadSignature
	}
	if !sig.Verify(tx.signingDigest(), senderPubKey) {
		return ErrBadSignature
	}
	return nil
}

// Hash returns a deterministic digest over every field of tx.
func (tx *Transaction) Hash() common.Hash {
	enc, _ := json.Marshal(tx)
	sum := sha256.Sum256(enc)
	return common.BytesToHash(sum[:])
}
