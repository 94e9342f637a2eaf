// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package color implements ColorMarker (spec §4.E): a per-sender 6-hex
// state machine that advances deterministically with every accepted
// transaction. It is grounded on the teacher's StakeManager
// (consensus/equa/stake.go), which keeps a per-address map behind a single
// mutex and updates one entry at a time under that lock.
package color

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/types"
)

// ErrInvalidTransition is returned when a proposed new color does not
// follow from the current one under the §3 transition rule.
var ErrInvalidTransition = errors.New("poai: invalid color transition")

// maxStep bounds how far a valid transition may move the color value,
// interpreted as a big-endian integer (spec §3: |current - new| <= 0x10000).
const maxStep = 0x10000

// Marker is a wallet's color and when it was last updated.
type Marker struct {
	Color      string
	LastUpdate time.Time
}

// Tracker owns the per-sender color map (spec §4.E).
type Tracker struct {
	mu      sync.Mutex
	markers map[common.Address]Marker
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{markers: make(map[common.Address]Marker)}
}

// Get returns sender's current marker, initializing it with a random
// 6-hex seed on first sighting (spec §4.E).
func (t *Tracker) Get(sender common.Address) (Marker, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(sender)
}

func (t *Tracker) getLocked(sender common.Address) (Marker, error) {
	if m, ok := t.markers[sender]; ok {
		return m, nil
	}
	seed, err := randomColor()
	if err != nil {
		return Marker{}, err
	}
	m := Marker{Color: seed, LastUpdate: time.Now()}
	t.markers[sender] = m
	return m, nil
}

// NextColor computes the deterministic successor of cur given tx, per
// spec §3/§6: new = (current ++ hex(sha256(tx)))[:6].
func NextColor(cur string, tx *types.Transaction) string {
	h := tx.Hash()
	combined := cur + hex.EncodeToString(h.Bytes())
	return combined[:6]
}

// ValidateTransition reports whether moving from cur to next is legal:
// both must be 6 hex characters (either case), and their integer distance must
// not exceed maxStep (spec §3).
func ValidateTransition(cur, next string) bool {
	if !isHex6(cur) || !isHex6(next) {
		return false
	}
	a, errA := hex.DecodeString(cur)
	b, errB := hex.DecodeString(next)
	if errA != nil || errB != nil {
		return false
	}
	av := uint32(a[0])<<16 | uint32(a[1])<<8 | uint32(a[2])
	bv := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	diff := int64(av) - int64(bv)
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxStep
}

func isHex6(s string) bool {
	if len(s) != 6 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Advance computes sender's next color for tx and, if the transition is
// valid, commits it atomically. It never mutates state on an invalid
// transition, per spec §4.F: "update color only if overall result is
// accepted."
func (t *Tracker) Advance(sender common.Address, tx *types.Transaction) (Marker, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, err := t.getLocked(sender)
	if err != nil {
		return Marker{}, err
	}
	next := NextColor(cur.Color, tx)
	if !ValidateTransition(cur.Color, next) {
		return Marker{}, ErrInvalidTransition
	}
	m := Marker{Color: next, LastUpdate: time.Now()}
	t.markers[sender] = m
	return m, nil
}

// Peek computes what sender's next color would be for tx without
// committing it, used by AIValidator to check the transition before
// deciding whether to accept the transaction.
func (t *Tracker) Peek(sender common.Address, tx *types.Transaction) (next string, valid bool, err error) {
	t.mu.Lock()
	cur, err := t.getLocked(sender)
	t.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	next = NextColor(cur.Color, tx)
	return next, ValidateTransition(cur.Color, next), nil
}

// Commit sets sender's color directly to next, used after AIValidator has
// independently confirmed the transition via Peek and accepted the
// transaction carrying it.
func (t *Tracker) Commit(sender common.Address, next string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markers[sender] = Marker{Color: next, LastUpdate: time.Now()}
}

func randomColor() (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
